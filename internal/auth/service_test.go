package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/logging"
	"github.com/accountd/accountd/internal/user"
)

// memStore is an in-memory user.Store used instead of Postgres in tests.
type memStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
}

func newMemStore() *memStore {
	return &memStore{users: make(map[uuid.UUID]*user.User)}
}

var _ user.Store = (*memStore)(nil)

func (s *memStore) Create(ctx context.Context, params user.CreateParams) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == params.Email {
			return nil, user.ErrDuplicateEmail
		}
		if u.Username == params.Username {
			return nil, user.ErrDuplicateUsername
		}
	}

	now := time.Now()
	token := params.VerificationToken
	u := &user.User{
		ID:                      uuid.New(),
		Email:                   params.Email,
		Username:                params.Username,
		PasswordHash:            params.PasswordHash,
		EmailVerificationToken:  &token,
		EmailVerificationSentAt: &now,
		FirstName:               params.FirstName,
		LastName:                params.LastName,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *memStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *memStore) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *memStore) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) GetByVerificationToken(ctx context.Context, token string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.EmailVerificationToken != nil && *u.EmailVerificationToken == token && !u.EmailVerified {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *memStore) CheckIfTokenAlreadyUsed(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.EmailVerificationToken != nil && *u.EmailVerificationToken == token && u.EmailVerified {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) MarkEmailAsVerified(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	// The token stays on the row so replayed confirmations can be told apart.
	u.EmailVerified = true
	u.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) UpdateVerificationToken(ctx context.Context, userID uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.EmailVerified {
		return user.ErrNotFound
	}
	now := time.Now()
	u.EmailVerificationToken = &token
	u.EmailVerificationSentAt = &now
	u.UpdatedAt = now
	return nil
}

func (s *memStore) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) UpdateInfo(ctx context.Context, userID uuid.UUID, update user.InfoUpdate) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, user.ErrNotFound
	}

	setNullable := func(dst **string, value *string) {
		if value == nil {
			return
		}
		if *value == "" {
			*dst = nil
		} else {
			v := *value
			*dst = &v
		}
	}
	setNullable(&u.FirstName, update.FirstName)
	setNullable(&u.LastName, update.LastName)
	setNullable(&u.Bio, update.Bio)
	setNullable(&u.PhoneNumber, update.PhoneNumber)
	setNullable(&u.Address, update.Address)
	if update.BirthDateSet {
		u.BirthDate = update.BirthDate
	}
	if update.PicturePathSet {
		u.ProfilePicturePath = update.ProfilePicturePath
	}
	u.UpdatedAt = time.Now()

	cp := *u
	return &cp, nil
}

func (s *memStore) UpdateCredentials(ctx context.Context, userID uuid.UUID, update user.CredentialsUpdate) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, user.ErrNotFound
	}

	for id, other := range s.users {
		if id == userID {
			continue
		}
		if update.Email != nil && other.Email == *update.Email {
			return nil, user.ErrDuplicateEmail
		}
		if update.Username != nil && other.Username == *update.Username {
			return nil, user.ErrDuplicateUsername
		}
	}

	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.Username != nil {
		u.Username = *update.Username
	}
	u.UpdatedAt = time.Now()

	cp := *u
	return &cp, nil
}

// fakeEmailService captures outbound tokens instead of talking to SMTP.
type fakeEmailService struct {
	verification chan string
	reset        chan string
}

func newFakeEmailService() *fakeEmailService {
	return &fakeEmailService{
		verification: make(chan string, 8),
		reset:        make(chan string, 8),
	}
}

func (f *fakeEmailService) SendVerificationEmail(ctx context.Context, toEmail, token string) error {
	f.verification <- token
	return nil
}

func (f *fakeEmailService) SendPasswordResetEmail(ctx context.Context, toEmail, token string) error {
	f.reset <- token
	return nil
}

func waitForToken(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case token := <-ch:
		return token
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for email token")
		return ""
	}
}

type testEnv struct {
	service *Service
	store   *memStore
	emails  *fakeEmailService
	tokens  *PasetoService
	redis   *redis.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	tokens := newTestPasetoService(t)
	store := newMemStore()
	emails := newFakeEmailService()

	service := NewService(
		store,
		NewRedisRepository(client),
		NewPasswordResetRepository(client),
		tokens,
		emails,
		logging.NewLogger(true),
		PasswordPolicy{MinLength: 8},
		15*time.Minute,
		7*24*time.Hour,
	)

	return &testEnv{service: service, store: store, emails: emails, tokens: tokens, redis: client}
}

// registerVerified creates an account and walks it through email
// confirmation so login tests start from a usable state.
func (e *testEnv) registerVerified(t *testing.T, email, password string) *user.User {
	t.Helper()
	ctx := context.Background()

	u, err := e.service.Register(ctx, RegisterInput{Email: email, Password: password})
	require.NoError(t, err)

	token := waitForToken(t, e.emails.verification)
	require.NoError(t, e.service.VerifyEmail(ctx, token))

	verified, err := e.store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	return verified
}

func TestRegisterNormalizesEmailAndDefaultsUsername(t *testing.T) {
	env := newTestEnv(t)

	u, err := env.service.Register(context.Background(), RegisterInput{
		Email:     "  Alice@Example.COM ",
		Password:  "password123",
		FirstName: "Alice",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "alice@example.com", u.Username)
	assert.False(t, u.EmailVerified)
	require.NotNil(t, u.FirstName)
	assert.Equal(t, "Alice", *u.FirstName)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Register(ctx, RegisterInput{Email: "", Password: "password123"})
	assert.ErrorIs(t, err, ErrEmailRequired)

	_, err = env.service.Register(ctx, RegisterInput{Email: "not-an-email", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidEmailFormat)

	_, err = env.service.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = env.service.Register(ctx, RegisterInput{Email: "ALICE@example.com", Password: "password123"})
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)
}

func TestLoginBeforeEmailVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registered, err := env.service.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)

	// A freshly registered account can sign in right away; verification is a
	// separate workflow that never gates login.
	tokens, u, err := env.service.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)
	assert.False(t, u.EmailVerified)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)
	registered := env.registerVerified(t, "alice@example.com", "password123")

	tokens, u, err := env.service.Login(context.Background(), "Alice@Example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.NotEmpty(t, tokens.RefreshToken)

	claims, err := env.tokens.VerifyToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.ID.String(), claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestLoginInvalidCredentialsIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice@example.com", "password123")
	ctx := context.Background()

	_, _, wrongPassword := env.service.Login(ctx, "alice@example.com", "not-the-password")
	_, _, unknownEmail := env.service.Login(ctx, "nobody@example.com", "password123")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestRefreshRotatesAndRevokesOldToken(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice@example.com", "password123")
	ctx := context.Background()

	tokens, _, err := env.service.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	rotated, err := env.service.RefreshAccessToken(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// Reusing the consumed token must fail.
	_, err = env.service.RefreshAccessToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)

	// The rotated token still works.
	_, err = env.service.RefreshAccessToken(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.RefreshAccessToken(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyEmailReplayAndUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	token := waitForToken(t, env.emails.verification)

	require.NoError(t, env.service.VerifyEmail(ctx, token))

	assert.ErrorIs(t, env.service.VerifyEmail(ctx, token), ErrEmailAlreadyVerified)
	assert.ErrorIs(t, env.service.VerifyEmail(ctx, "bogus"), ErrInvalidVerificationToken)
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.service.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	token := waitForToken(t, env.emails.verification)

	// Age the send timestamp past the confirmation window.
	env.store.mu.Lock()
	stale := time.Now().Add(-25 * time.Hour)
	env.store.users[u.ID].EmailVerificationSentAt = &stale
	env.store.mu.Unlock()

	assert.ErrorIs(t, env.service.VerifyEmail(ctx, token), ErrTokenExpired)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerVerified(t, "alice@example.com", "password123")
	ctx := context.Background()

	tokens, _, err := env.service.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	assert.ErrorIs(t, env.service.ChangePassword(ctx, u.ID, "wrong", "newpassword1"), ErrIncorrectOldPassword)
	assert.ErrorIs(t, env.service.ChangePassword(ctx, u.ID, "password123", "password123"), ErrSamePassword)
	assert.ErrorIs(t, env.service.ChangePassword(ctx, u.ID, "password123", "short"), ErrPasswordTooShort)

	require.NoError(t, env.service.ChangePassword(ctx, u.ID, "password123", "newpassword1"))

	// Old password no longer works, new one does.
	_, _, err = env.service.Login(ctx, "alice@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = env.service.Login(ctx, "alice@example.com", "newpassword1")
	assert.NoError(t, err)

	// Existing sessions die with the old password.
	_, err = env.service.RefreshAccessToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice@example.com", "password123")
	ctx := context.Background()

	// Unknown addresses get the same silent success.
	require.NoError(t, env.service.RequestPasswordReset(ctx, "nobody@example.com"))

	require.NoError(t, env.service.RequestPasswordReset(ctx, "alice@example.com"))
	token := waitForToken(t, env.emails.reset)

	assert.ErrorIs(t, env.service.ResetPassword(ctx, token, "short"), ErrPasswordTooShort)

	require.NoError(t, env.service.ResetPassword(ctx, token, "freshpassword1"))

	// The token is single use.
	assert.ErrorIs(t, env.service.ResetPassword(ctx, token, "anotherpassword1"), ErrPasswordResetTokenNotFound)

	_, _, err := env.service.Login(ctx, "alice@example.com", "freshpassword1")
	assert.NoError(t, err)
}

func TestResendVerificationEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.service.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	firstToken := waitForToken(t, env.emails.verification)

	require.NoError(t, env.service.ResendVerificationEmail(ctx, "alice@example.com"))
	secondToken := waitForToken(t, env.emails.verification)
	assert.NotEqual(t, firstToken, secondToken)

	// The first token was replaced on the row.
	assert.ErrorIs(t, env.service.VerifyEmail(ctx, firstToken), ErrInvalidVerificationToken)
	require.NoError(t, env.service.VerifyEmail(ctx, secondToken))

	updated, err := env.store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, updated.EmailVerified)

	// Unknown and already-verified addresses both succeed silently without mail.
	require.NoError(t, env.service.ResendVerificationEmail(ctx, "nobody@example.com"))
	require.NoError(t, env.service.ResendVerificationEmail(ctx, "alice@example.com"))
	select {
	case tok := <-env.emails.verification:
		t.Fatalf("unexpected verification email sent: %s", tok)
	case <-time.After(100 * time.Millisecond):
	}
}
