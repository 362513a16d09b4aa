package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the accounts table row. Email and username carry unique indexes;
// the database is the authority on uniqueness, application-level pre-checks
// are advisory only.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Email        string    `bun:"email,notnull,unique"`
	Username     string    `bun:"username,notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`

	EmailVerified           bool       `bun:"email_verified,notnull,default:false"`
	EmailVerificationToken  *string    `bun:"email_verification_token"`
	EmailVerificationSentAt *time.Time `bun:"email_verification_sent_at"`

	FirstName          *string    `bun:"first_name"`
	LastName           *string    `bun:"last_name"`
	Bio                *string    `bun:"bio"`
	BirthDate          *time.Time `bun:"birth_date,type:date"`
	ProfilePicturePath *string    `bun:"profile_picture_path"`
	PhoneNumber        *string    `bun:"phone_number"`
	Address            *string    `bun:"address"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// RefreshToken is the fallback Postgres store for refresh tokens. The
// primary deployment keeps them in Redis; this table backs installs that
// run without Redis persistence.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`

	ID        int64      `bun:"id,pk,autoincrement"`
	UserID    uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	TokenHash string     `bun:"token_hash,notnull,unique"`
	ExpiresAt time.Time  `bun:"expires_at,notnull"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	RevokedAt *time.Time `bun:"revoked_at"`
}
