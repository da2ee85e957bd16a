package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func register(t *testing.T, env *testEnv, email, nickname string) Session {
	t.Helper()
	sess, err := env.svc.Register(context.Background(), Credentials{Email: email, Password: "pa55word"}, Profile{Nickname: nickname})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return sess
}

func TestRegisterLoginRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := register(t, env, "Alice@Example.com", "alice")
	if reg.Principal.Role != RoleUser || reg.Principal.Nickname != "alice" {
		t.Fatalf("unexpected summary %+v", reg.Principal)
	}
	if reg.AccessToken == "" || reg.RefreshToken == "" {
		t.Fatalf("register must issue both tokens")
	}

	login, err := env.svc.Login(ctx, "alice@example.com", "pa55word")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	env.clock.Advance(2 * time.Second)
	access, err := env.svc.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if access.Token == login.AccessToken {
		t.Fatalf("refresh must mint a new access token")
	}
	// Refresh does not rotate: the same value keeps working.
	if _, err := env.svc.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	actor, err := env.svc.Authenticate(access.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if actor.ID != reg.Principal.ID || actor.Role != RoleUser || actor.Email != "alice@example.com" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	register(t, env, "alice@example.com", "alice")

	if _, err := env.svc.Register(ctx, Credentials{Email: "ALICE@example.com", Password: "x"}, Profile{Nickname: "a2"}); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if _, err := env.svc.Register(ctx, Credentials{Email: "not-an-email", Password: "x"}, Profile{Nickname: "n"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := env.svc.Register(ctx, Credentials{Email: "b@example.com", Password: "x"}, Profile{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing nickname, got %v", err)
	}
}

func TestRegisterRejectsPasswordOverBcryptLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 40 runes, 80 bytes.
	long := strings.Repeat("é", 40)
	_, err := env.svc.Register(ctx, Credentials{Email: "long@example.com", Password: long}, Profile{Nickname: "long"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := env.dir.FindByEmail(ctx, "long@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("principal must not be created, got %v", err)
	}

	exact := strings.Repeat("a", MaxPasswordBytes)
	if _, err := env.svc.Register(ctx, Credentials{Email: "exact@example.com", Password: exact}, Profile{Nickname: "exact"}); err != nil {
		t.Fatalf("72-byte password: %v", err)
	}
}

type countingHasher struct {
	BcryptHasher
	compares int
}

func (h *countingHasher) Compare(hash, plain string) error {
	h.compares++
	return h.BcryptHasher.Compare(hash, plain)
}

func TestLoginUnknownEmailStillComparesHash(t *testing.T) {
	hasher := &countingHasher{BcryptHasher: BcryptHasher{Cost: bcrypt.MinCost}}
	env := newTestEnv(t, WithHasher(hasher))
	ctx := context.Background()

	if _, err := env.svc.Login(ctx, "nobody@example.com", "pa55word"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
	if _, err := env.svc.Login(ctx, "ghost@example.com", "pa55word"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
	if hasher.compares != 2 {
		t.Fatalf("expected one comparison per unknown-email login, got %d", hasher.compares)
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	register(t, env, "alice@example.com", "alice")

	if _, err := env.svc.Login(ctx, "nobody@example.com", "pa55word"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
	if _, err := env.svc.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSecondLoginSupersedesFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	register(t, env, "bob@example.com", "bob")

	first, err := env.svc.Login(ctx, "bob@example.com", "pa55word")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, err := env.svc.Login(ctx, "bob@example.com", "pa55word")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := env.svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenUnusable) {
		t.Fatalf("expected first token unusable, got %v", err)
	}
	if _, err := env.svc.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("expected second token usable, got %v", err)
	}
	if got := env.tokens.count(); got != 1 {
		t.Fatalf("expected one refresh row, got %d", got)
	}
}

func TestConcurrentLoginsLeaveOneLiveToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	register(t, env, "carol@example.com", "carol")

	const n = 16
	sessions := make([]Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := env.svc.Login(ctx, "carol@example.com", "pa55word")
			if err != nil {
				t.Errorf("Login: %v", err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	if got := env.tokens.count(); got != 1 {
		t.Fatalf("expected one refresh row, got %d", got)
	}
	live := 0
	for _, s := range sessions {
		if _, err := env.svc.Refresh(ctx, s.RefreshToken); err == nil {
			live++
		} else if !errors.Is(err, ErrTokenUnusable) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if live != 1 {
		t.Fatalf("expected exactly one live refresh token, got %d", live)
	}
}

func TestLogoutThenRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := register(t, env, "dave@example.com", "dave")

	if err := env.svc.Logout(ctx, sess.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := env.svc.Logout(ctx, sess.RefreshToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if _, err := env.svc.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrTokenUnusable) {
		t.Fatalf("expected ErrTokenUnusable, got %v", err)
	}
	if err := env.svc.Logout(ctx, "garbage"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func seedAdmin(t *testing.T, env *testEnv) Actor {
	t.Helper()
	sess := register(t, env, "root@example.com", "root")
	if err := env.dir.UpdateRole(context.Background(), sess.Principal.ID, RoleAdmin, env.clock.t); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	return Actor{ID: sess.Principal.ID, Role: RoleAdmin}
}

func TestRegisterPrivileged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := seedAdmin(t, env)
	user := register(t, env, "u@example.com", "u")

	summary, err := env.svc.RegisterPrivileged(ctx, admin, Credentials{Email: "m@example.com", Password: "pw"}, Profile{Nickname: "mgr"})
	if err != nil {
		t.Fatalf("RegisterPrivileged: %v", err)
	}
	if summary.Role != RoleManager {
		t.Fatalf("expected MANAGER, got %s", summary.Role)
	}
	if _, err := env.tokens.GetByPrincipal(ctx, summary.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no refresh token must be issued for a new manager, got %v", err)
	}

	// A forged claim does not help: the directory role is authoritative.
	forged := Actor{ID: user.Principal.ID, Role: RoleAdmin}
	if _, err := env.svc.RegisterPrivileged(ctx, forged, Credentials{Email: "x@example.com", Password: "pw"}, Profile{Nickname: "x"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestDeletePrincipalRunsHooks(t *testing.T) {
	var hooked []string
	env := newTestEnv(t, OnPrincipalDeleted(func(_ context.Context, id string) error {
		hooked = append(hooked, id)
		return nil
	}))
	ctx := context.Background()
	admin := seedAdmin(t, env)
	victim := register(t, env, "v@example.com", "v")

	if err := env.svc.DeletePrincipal(ctx, Actor{ID: victim.Principal.ID}, admin.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}
	if err := env.svc.DeletePrincipal(ctx, admin, victim.Principal.ID); err != nil {
		t.Fatalf("DeletePrincipal: %v", err)
	}
	if len(hooked) != 1 || hooked[0] != victim.Principal.ID {
		t.Fatalf("hook not run: %v", hooked)
	}
	if _, err := env.svc.Refresh(ctx, victim.RefreshToken); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound after delete, got %v", err)
	}
	if err := env.svc.DeletePrincipal(ctx, admin, victim.Principal.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// Access tokens are stateless and outlive the principal until expiry.
	if _, err := env.svc.Authenticate(victim.AccessToken); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
}

func TestAssignRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := seedAdmin(t, env)
	user := register(t, env, "u@example.com", "u")

	summary, err := env.svc.AssignRole(ctx, admin, user.Principal.ID, RoleManager)
	if err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if summary.Role != RoleManager {
		t.Fatalf("expected MANAGER, got %s", summary.Role)
	}
	if role, _ := env.svc.CurrentRole(ctx, user.Principal.ID); role != RoleManager {
		t.Fatalf("expected current role MANAGER, got %s", role)
	}
	if _, err := env.svc.AssignRole(ctx, admin, user.Principal.ID, Role("ROOT")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := env.svc.AssignRole(ctx, Actor{ID: user.Principal.ID}, admin.ID, RoleUser); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestListPrincipalsAndUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := seedAdmin(t, env)
	user := register(t, env, "u@example.com", "u")

	if _, err := env.svc.ListPrincipals(ctx, Actor{ID: user.Principal.ID}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	list, err := env.svc.ListPrincipals(ctx, admin)
	if err != nil {
		t.Fatalf("ListPrincipals: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 principals, got %d", len(list))
	}

	p, err := env.svc.UpdateProfile(ctx, Actor{ID: user.Principal.ID}, Profile{Nickname: " neo ", FirstName: "Thomas"})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p.Nickname != "neo" || p.FirstName != "Thomas" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if _, err := env.svc.UpdateProfile(ctx, Actor{ID: user.Principal.ID}, Profile{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBootstrapAdminOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creds := Credentials{Email: "root@example.com", Password: "changeme"}

	created, err := env.svc.BootstrapAdmin(ctx, creds, Profile{})
	if err != nil || !created {
		t.Fatalf("BootstrapAdmin: created=%v err=%v", created, err)
	}
	created, err = env.svc.BootstrapAdmin(ctx, Credentials{Email: "other@example.com", Password: "x"}, Profile{})
	if err != nil || created {
		t.Fatalf("second BootstrapAdmin must be a no-op: created=%v err=%v", created, err)
	}
	sess, err := env.svc.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Principal.Role != RoleAdmin {
		t.Fatalf("expected ADMIN, got %s", sess.Principal.Role)
	}
}
