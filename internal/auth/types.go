package auth

import "time"

// Principal is a registered account.
type Principal struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Nickname     string    `json:"nickname"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary is the public view of a principal returned to clients.
type Summary struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Role     Role   `json:"role"`
}

func (p *Principal) Summary() Summary {
	return Summary{ID: p.ID, Nickname: p.Nickname, Role: p.Role}
}

// Actor identifies who is performing an operation. It is always passed explicitly.
type Actor struct {
	ID    string
	Email string
	Role  Role
}

// RefreshToken is the persisted refresh credential slot of a principal.
// There is at most one per principal; rotation rewrites TokenHash and ExpiresAt in place.
type RefreshToken struct {
	ID          string
	PrincipalID string
	TokenHash   string
	ExpiresAt   time.Time
	Revoked     bool
	CreatedAt   time.Time
	RotatedAt   time.Time
}

// Credentials are the login inputs of a principal.
type Credentials struct {
	Email    string
	Password string
}

// Profile carries the descriptive fields captured at registration.
type Profile struct {
	Nickname  string
	FirstName string
	LastName  string
}

// AccessToken is a signed access credential with its expiry.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// Session is returned by register and login.
type Session struct {
	Principal        Summary
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
