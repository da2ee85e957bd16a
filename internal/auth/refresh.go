package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskflow.dev/internal/ids"
)

// DefaultRefreshTTL is the lifetime of a refresh token from issuance or rotation.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// IssuedRefresh is a freshly minted refresh token. Value is only known at issuance.
type IssuedRefresh struct {
	Value     string
	ExpiresAt time.Time
}

// RefreshManager owns the refresh token lifecycle on top of a RefreshStore.
// Each principal has one slot; its id is the public prefix of every token
// issued into it and never changes across rotation.
type RefreshManager struct {
	store RefreshStore
	ttl   time.Duration
	now   func() time.Time
}

// RefreshOption configures RefreshManager behavior.
type RefreshOption func(*RefreshManager)

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) RefreshOption {
	return func(m *RefreshManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithRefreshClock overrides time source (useful for tests).
func WithRefreshClock(fn func() time.Time) RefreshOption {
	return func(m *RefreshManager) {
		if fn != nil {
			m.now = fn
		}
	}
}

func NewRefreshManager(store RefreshStore, opts ...RefreshOption) *RefreshManager {
	m := &RefreshManager{store: store, ttl: DefaultRefreshTTL, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IssueOrRotate creates the principal's slot or overwrites it in place with a new
// secret and expiry, clearing the revoked flag. Any token previously issued for
// the principal stops being redeemable.
func (m *RefreshManager) IssueOrRotate(ctx context.Context, principalID string) (IssuedRefresh, error) {
	if strings.TrimSpace(principalID) == "" {
		return IssuedRefresh{}, ErrInvalidInput
	}
	secret, err := randomSecret()
	if err != nil {
		return IssuedRefresh{}, err
	}
	now := m.now().UTC()
	row, err := m.store.Upsert(ctx, principalID, ids.New(), hashSecret(secret), now.Add(m.ttl), now)
	if err != nil {
		return IssuedRefresh{}, fmt.Errorf("upsert refresh token: %w", err)
	}
	return IssuedRefresh{Value: row.ID + "." + secret, ExpiresAt: row.ExpiresAt}, nil
}

// Redeem returns the owning principal id of a live token. It does not rotate.
func (m *RefreshManager) Redeem(ctx context.Context, value string) (string, error) {
	row, err := m.lookup(ctx, value)
	if err != nil {
		return "", err
	}
	if row.Revoked || !m.now().Before(row.ExpiresAt) {
		return "", ErrTokenUnusable
	}
	return row.PrincipalID, nil
}

// Revoke marks the token revoked. Revoking an already revoked token succeeds.
// A value superseded by a later login no longer exists and yields
// ErrTokenNotFound; the live value in its slot is left alone.
func (m *RefreshManager) Revoke(ctx context.Context, value string) error {
	row, err := m.lookup(ctx, value)
	if errors.Is(err, ErrTokenUnusable) {
		return ErrTokenNotFound
	}
	if err != nil {
		return err
	}
	if row.Revoked {
		return nil
	}
	// Conditioned on the hash so a concurrent login's fresh secret survives.
	ok, err := m.store.Revoke(ctx, row.ID, row.TokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !ok {
		return ErrTokenNotFound
	}
	return nil
}

// DeleteForPrincipal removes the principal's slot. Missing slots are ignored.
func (m *RefreshManager) DeleteForPrincipal(ctx context.Context, principalID string) error {
	if err := m.store.DeleteByPrincipal(ctx, principalID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// lookup resolves a token value to its slot. A slot holding a different secret
// means the token was superseded, which is unusable rather than unknown.
func (m *RefreshManager) lookup(ctx context.Context, value string) (*RefreshToken, error) {
	id, secret, ok := splitRefreshToken(value)
	if !ok {
		return nil, ErrTokenNotFound
	}
	row, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if !secureCompareHash(row.TokenHash, secret) {
		return nil, ErrTokenUnusable
	}
	return row, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func splitRefreshToken(raw string) (id, secret string, ok bool) {
	id, secret, found := strings.Cut(strings.TrimSpace(raw), ".")
	if !found || !ids.Valid(id) || secret == "" || strings.Contains(secret, ".") {
		return "", "", false
	}
	return id, secret, true
}

func secureCompareHash(expectedHash, secret string) bool {
	actual := hashSecret(secret)
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
