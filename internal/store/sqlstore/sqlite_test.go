package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/migrate"
	"taskflow.dev/internal/team"
	"taskflow.dev/migrations"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "taskflow.db") + "?_foreign_keys=on&_busy_timeout=5000"
	store, err := Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := migrate.NewManager(store.DB(), migrations.FS).Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func newAuthService(t *testing.T, store *Store) *auth.Service {
	t.Helper()
	signer, err := auth.NewSigner("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	svc, err := auth.NewService(store, signer, auth.NewRefreshManager(store), auth.WithHasher(auth.BcryptHasher{Cost: bcrypt.MinCost}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestSQLiteConcurrentLoginsKeepOneRow(t *testing.T) {
	store := openSQLite(t)
	svc := newAuthService(t, store)
	ctx := context.Background()

	reg, err := svc.Register(ctx, auth.Credentials{Email: "bob@example.com", Password: "pa55word"}, auth.Profile{Nickname: "bob"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	const n = 12
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := svc.Login(ctx, "bob@example.com", "pa55word")
			if err != nil {
				t.Errorf("Login: %v", err)
				return
			}
			tokens[i] = sess.RefreshToken
		}(i)
	}
	wg.Wait()

	count, err := store.RefreshCount(ctx, reg.Principal.ID)
	if err != nil {
		t.Fatalf("RefreshCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one refresh row, got %d", count)
	}
	live := 0
	for _, tok := range append(tokens, reg.RefreshToken) {
		_, err := svc.Refresh(ctx, tok)
		switch {
		case err == nil:
			live++
		case errors.Is(err, auth.ErrTokenUnusable):
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if live != 1 {
		t.Fatalf("expected one live token, got %d", live)
	}
}

func TestSQLiteLogoutAndDelete(t *testing.T) {
	store := openSQLite(t)
	svc := newAuthService(t, store)
	ctx := context.Background()

	sess, err := svc.Register(ctx, auth.Credentials{Email: "carol@example.com", Password: "pw"}, auth.Profile{Nickname: "carol"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Logout(ctx, sess.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, sess.RefreshToken); !errors.Is(err, auth.ErrTokenUnusable) {
		t.Fatalf("expected ErrTokenUnusable, got %v", err)
	}
	if _, err := svc.Register(ctx, auth.Credentials{Email: "carol@example.com", Password: "pw"}, auth.Profile{Nickname: "c2"}); !errors.Is(err, auth.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	now := time.Now().UTC()
	if err := store.CreateTeam(ctx, &team.Team{ID: "t1", Name: "core", CreatedBy: sess.Principal.ID, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if err := store.AddMember(ctx, team.Member{TeamID: "t1", UserID: sess.Principal.ID, JoinedAt: now}); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := store.Delete(ctx, sess.Principal.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	tm, err := store.GetTeam(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTeam: %v", err)
	}
	if tm.MemberCount != 0 || tm.CreatedBy != "" {
		t.Fatalf("references survived delete: %+v", tm)
	}
	if _, err := store.GetByPrincipal(ctx, sess.Principal.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("refresh row survived delete: %v", err)
	}
}
