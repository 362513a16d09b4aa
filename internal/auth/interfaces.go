package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenService defines the interface for access token creation and
// validation. PasetoService (PASETO v4.local) is the production
// implementation.
type TokenService interface {
	CreateToken(userID uuid.UUID, email string, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// RefreshTokenRepository defines the interface for refresh token storage
type RefreshTokenRepository interface {
	StoreRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error
	CleanupExpiredTokens(ctx context.Context) error
}

// ResetTokenRepository defines the interface for single-use password reset
// token storage.
type ResetTokenRepository interface {
	StorePasswordResetToken(ctx context.Context, userID uuid.UUID, token string) error
	ClaimPasswordResetToken(ctx context.Context, token string) (uuid.UUID, error)
}

// EmailService defines the interface for email operations
type EmailService interface {
	SendVerificationEmail(ctx context.Context, toEmail, token string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
}
