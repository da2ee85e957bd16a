package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTTL bounds how long a leaked access token stays usable.
	DefaultAccessTTL = 15 * time.Minute
	defaultIssuer    = "taskflow"
	minSecretLength  = 32
)

// Claims represents JWT claims carried by an access token.
type Claims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into the identity passed to core operations.
func (c *Claims) Actor() Actor {
	return Actor{ID: c.Subject, Email: c.Email, Role: c.Role}
}

// Signer issues and verifies HS256 access tokens with a single process-wide secret.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// SignerOption configures Signer behavior.
type SignerOption func(*Signer)

// WithSignerIssuer overrides the iss claim.
func WithSignerIssuer(issuer string) SignerOption {
	return func(s *Signer) {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) SignerOption {
	return func(s *Signer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSignerClock overrides time source (useful for tests).
func WithSignerClock(fn func() time.Time) SignerOption {
	return func(s *Signer) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSigner validates the secret and constructs a Signer.
// A missing or short secret is a startup error.
func NewSigner(secret string, opts ...SignerOption) (*Signer, error) {
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	s := &Signer{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    DefaultAccessTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ValidateSecret reports whether secret is usable for HS256 signing.
func ValidateSecret(secret string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrMissingSecret
	}
	if len(secret) < minSecretLength {
		return fmt.Errorf("%w: secret must be at least %d bytes", ErrMissingSecret, minSecretLength)
	}
	return nil
}

// TTL returns the configured access token lifetime.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Issue signs an access token for p. It has no side effects.
func (s *Signer) Issue(p *Principal) (AccessToken, error) {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return AccessToken{}, errors.New("auth: principal id is required")
	}
	iat := s.now().UTC().Truncate(time.Second)
	exp := iat.Add(s.ttl)
	claims := Claims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign token: %w", err)
	}
	return AccessToken{Token: signed, ExpiresAt: exp}, nil
}

// Verify checks the signature and expiry of token. It never consults storage,
// so a token stays valid until it expires even if its principal is revoked.
func (s *Signer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidCredential
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	if claims.Issuer != s.issuer || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidCredential
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil || !claims.Role.Valid() {
		return nil, ErrInvalidCredential
	}
	// Expired exactly when now >= exp.
	if !s.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrCredentialExpired
	}
	return claims, nil
}
