package model

import "time"

// User represents an account record as stored in the `users` table.
// The json tags are omitted here because these structs are used by the
// repository layer; handlers define their own response projections so the
// password hash never leaves the process.
//
// Fields:
//
//	ID            – primary key identifier of the user.
//	Email         – unique, lower-cased email address.
//	PasswordHash  – bcrypt hash of the password.
//	Name          – display name.
//	EmailVerified – set once the verification link has been followed.
//	CreatedAt     – timestamp of creation.
type User struct {
	ID            uint64    // users.id
	Email         string    // users.email
	PasswordHash  string    // users.password
	Name          string    // users.name
	EmailVerified bool      // users.email_verified
	CreatedAt     time.Time // users.created_at
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	ID    uint64
	Email string
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token value is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
