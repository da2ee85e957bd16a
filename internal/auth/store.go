package auth

import (
	"context"
	"time"
)

// PrincipalLookup resolves principals by id.
type PrincipalLookup interface {
	FindByID(ctx context.Context, id string) (*Principal, error)
}

// PrincipalDirectory persists principals.
type PrincipalDirectory interface {
	PrincipalLookup
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	// Create stores a new principal. It returns ErrDuplicateEmail when the email is taken.
	Create(ctx context.Context, p *Principal) error
	List(ctx context.Context) ([]Principal, error)
	UpdateRole(ctx context.Context, id string, role Role, at time.Time) error
	UpdateProfile(ctx context.Context, id string, profile Profile, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// RefreshStore persists refresh credential slots, one per principal.
type RefreshStore interface {
	Get(ctx context.Context, id string) (*RefreshToken, error)
	GetByPrincipal(ctx context.Context, principalID string) (*RefreshToken, error)
	// Upsert atomically creates the slot for principalID or replaces its hash and
	// expiry, clearing the revoked flag. newID is only used when no slot exists yet.
	// The stored row is returned.
	Upsert(ctx context.Context, principalID, newID, tokenHash string, expiresAt, now time.Time) (*RefreshToken, error)
	// Revoke marks the slot revoked only while it still holds tokenHash.
	// It reports whether a row was updated.
	Revoke(ctx context.Context, id, tokenHash string) (bool, error)
	DeleteByPrincipal(ctx context.Context, principalID string) error
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) error
}
