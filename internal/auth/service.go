package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"taskflow.dev/internal/ids"
)

// PrincipalHook runs while a principal is being deleted, before its record is removed.
type PrincipalHook func(ctx context.Context, principalID string) error

// Service orchestrates registration, login, refresh and logout, plus the
// administrative operations on principals.
type Service struct {
	directory PrincipalDirectory
	hasher    PasswordHasher
	signer    *Signer
	refresh   *RefreshManager
	now       func() time.Time

	onDelete []PrincipalHook

	decoyOnce sync.Once
	decoyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h PasswordHasher) ServiceOption {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

// OnPrincipalDeleted registers a hook that runs for every deleted principal.
func OnPrincipalDeleted(hook PrincipalHook) ServiceOption {
	return func(s *Service) {
		if hook != nil {
			s.onDelete = append(s.onDelete, hook)
		}
	}
}

// NewService constructs Service with optional configuration.
func NewService(directory PrincipalDirectory, signer *Signer, refresh *RefreshManager, opts ...ServiceOption) (*Service, error) {
	if directory == nil || signer == nil || refresh == nil {
		return nil, errors.New("auth: directory, signer and refresh manager are required")
	}
	svc := &Service{
		directory: directory,
		hasher:    BcryptHasher{},
		signer:    signer,
		refresh:   refresh,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates a USER principal and opens a session for it.
func (s *Service) Register(ctx context.Context, creds Credentials, profile Profile) (Session, error) {
	p, err := s.createPrincipal(ctx, creds, profile, RoleUser)
	if err != nil {
		return Session{}, err
	}
	return s.openSession(ctx, p)
}

// RegisterPrivileged creates a MANAGER principal without issuing tokens.
// Callers gate it on ADMIN at the boundary; the acting principal's current role
// is checked again here so the operation is unreachable without it.
func (s *Service) RegisterPrivileged(ctx context.Context, actor Actor, creds Credentials, profile Profile) (Summary, error) {
	if err := s.requireRole(ctx, actor, RoleAdmin); err != nil {
		return Summary{}, err
	}
	p, err := s.createPrincipal(ctx, creds, profile, RoleManager)
	if err != nil {
		return Summary{}, err
	}
	return p.Summary(), nil
}

// BootstrapAdmin creates an ADMIN with the given credentials unless one
// already exists. It reports whether a principal was created.
func (s *Service) BootstrapAdmin(ctx context.Context, creds Credentials, profile Profile) (bool, error) {
	list, err := s.directory.List(ctx)
	if err != nil {
		return false, err
	}
	for i := range list {
		if list[i].Role == RoleAdmin {
			return false, nil
		}
	}
	if strings.TrimSpace(profile.Nickname) == "" {
		profile.Nickname = "admin"
	}
	if _, err := s.createPrincipal(ctx, creds, profile, RoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}

// Login verifies credentials and opens a session, replacing any refresh token
// previously issued to the principal.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	p, err := s.directory.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.compareDecoy(password)
		return Session{}, ErrPrincipalNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.hasher.Compare(p.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.openSession(ctx, p)
}

// Refresh issues a new access token for a live refresh token. The refresh token
// itself is left untouched.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AccessToken, error) {
	principalID, err := s.refresh.Redeem(ctx, refreshToken)
	if err != nil {
		return AccessToken{}, err
	}
	p, err := s.directory.FindByID(ctx, principalID)
	if errors.Is(err, ErrNotFound) {
		return AccessToken{}, ErrTokenNotFound
	}
	if err != nil {
		return AccessToken{}, err
	}
	return s.signer.Issue(p)
}

// Logout revokes the refresh token. It is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.refresh.Revoke(ctx, refreshToken)
}

// Authenticate verifies an access token and returns the actor it identifies.
func (s *Service) Authenticate(token string) (Actor, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return Actor{}, err
	}
	return claims.Actor(), nil
}

// Principal loads a principal by id.
func (s *Service) Principal(ctx context.Context, id string) (*Principal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	return s.directory.FindByID(ctx, id)
}

// DeletePrincipal removes a principal together with its refresh token and
// anything registered through OnPrincipalDeleted. ADMIN only.
func (s *Service) DeletePrincipal(ctx context.Context, actor Actor, id string) error {
	if err := s.requireRole(ctx, actor, RoleAdmin); err != nil {
		return err
	}
	if _, err := s.directory.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.refresh.DeleteForPrincipal(ctx, id); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	for _, hook := range s.onDelete {
		if err := hook(ctx, id); err != nil {
			return err
		}
	}
	return s.directory.Delete(ctx, id)
}

// AssignRole changes a principal's role. ADMIN only. The new role applies to
// the next policy evaluation; outstanding access tokens keep their old claim.
func (s *Service) AssignRole(ctx context.Context, actor Actor, id string, role Role) (Summary, error) {
	if err := s.requireRole(ctx, actor, RoleAdmin); err != nil {
		return Summary{}, err
	}
	if !role.Valid() {
		return Summary{}, ErrInvalidInput
	}
	if err := s.directory.UpdateRole(ctx, id, role, s.now().UTC()); err != nil {
		return Summary{}, err
	}
	p, err := s.directory.FindByID(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return p.Summary(), nil
}

// ListPrincipals returns every principal. MANAGER or above.
func (s *Service) ListPrincipals(ctx context.Context, actor Actor) ([]Summary, error) {
	if err := s.requireRole(ctx, actor, RoleManager); err != nil {
		return nil, err
	}
	list, err := s.directory.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(list))
	for i := range list {
		out = append(out, list[i].Summary())
	}
	return out, nil
}

// UpdateProfile changes the actor's own descriptive fields.
func (s *Service) UpdateProfile(ctx context.Context, actor Actor, profile Profile) (*Principal, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return nil, ErrForbidden
	}
	profile.Nickname = strings.TrimSpace(profile.Nickname)
	profile.FirstName = strings.TrimSpace(profile.FirstName)
	profile.LastName = strings.TrimSpace(profile.LastName)
	if profile.Nickname == "" {
		return nil, ErrInvalidInput
	}
	if err := s.directory.UpdateProfile(ctx, actor.ID, profile, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.directory.FindByID(ctx, actor.ID)
}

// CurrentRole returns the actor's role as stored now, ignoring token claims.
// A principal that no longer exists is forbidden.
func (s *Service) CurrentRole(ctx context.Context, actorID string) (Role, error) {
	return CurrentRole(ctx, s.directory, actorID)
}

func (s *Service) requireRole(ctx context.Context, actor Actor, min Role) error {
	role, err := s.CurrentRole(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !role.AtLeast(min) {
		return ErrForbidden
	}
	return nil
}

// compareDecoy spends one hash comparison so unknown emails take as long as
// wrong passwords.
func (s *Service) compareDecoy(password string) {
	s.decoyOnce.Do(func() {
		s.decoyHash, _ = s.hasher.Hash("taskflow-decoy-password")
	})
	if s.decoyHash != "" {
		_ = s.hasher.Compare(s.decoyHash, password)
	}
}

func (s *Service) createPrincipal(ctx context.Context, creds Credentials, profile Profile, role Role) (*Principal, error) {
	email := normalizeEmail(creds.Email)
	if _, err := mail.ParseAddress(email); err != nil || creds.Password == "" {
		return nil, ErrInvalidInput
	}
	if len(creds.Password) > MaxPasswordBytes {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, MaxPasswordBytes)
	}
	nickname := strings.TrimSpace(profile.Nickname)
	if nickname == "" {
		return nil, ErrInvalidInput
	}
	if _, err := s.directory.FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	hash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	p := &Principal{
		ID:           ids.New(),
		Email:        email,
		Nickname:     nickname,
		FirstName:    strings.TrimSpace(profile.FirstName),
		LastName:     strings.TrimSpace(profile.LastName),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// The directory's unique constraint still decides a concurrent registration race.
	if err := s.directory.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) openSession(ctx context.Context, p *Principal) (Session, error) {
	access, err := s.signer.Issue(p)
	if err != nil {
		return Session{}, err
	}
	refresh, err := s.refresh.IssueOrRotate(ctx, p.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Principal:        p.Summary(),
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Value,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// CurrentRole resolves the role a principal holds in the directory right now.
func CurrentRole(ctx context.Context, directory PrincipalLookup, principalID string) (Role, error) {
	if strings.TrimSpace(principalID) == "" {
		return "", ErrForbidden
	}
	p, err := directory.FindByID(ctx, principalID)
	if errors.Is(err, ErrNotFound) {
		return "", ErrForbidden
	}
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
