package profile

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/logging"
	"github.com/accountd/accountd/internal/user"
)

// stubStore is an in-memory user.Store standing in for Postgres.
type stubStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
}

func newStubStore() *stubStore {
	return &stubStore{users: make(map[uuid.UUID]*user.User)}
}

var _ user.Store = (*stubStore)(nil)

func (s *stubStore) add(u *user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *stubStore) Create(ctx context.Context, params user.CreateParams) (*user.User, error) {
	u := &user.User{
		ID:           uuid.New(),
		Email:        params.Email,
		Username:     params.Username,
		PasswordHash: params.PasswordHash,
	}
	s.add(u)
	cp := *u
	return &cp, nil
}

func (s *stubStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
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

func (s *stubStore) GetByUsername(ctx context.Context, username string) (*user.User, error) {
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

func (s *stubStore) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *stubStore) GetByVerificationToken(ctx context.Context, token string) (*user.User, error) {
	return nil, user.ErrNotFound
}

func (s *stubStore) CheckIfTokenAlreadyUsed(ctx context.Context, token string) (bool, error) {
	return false, nil
}

func (s *stubStore) MarkEmailAsVerified(ctx context.Context, userID uuid.UUID) error {
	return nil
}

func (s *stubStore) UpdateVerificationToken(ctx context.Context, userID uuid.UUID, token string) error {
	return nil
}

func (s *stubStore) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *stubStore) UpdateInfo(ctx context.Context, userID uuid.UUID, update user.InfoUpdate) (*user.User, error) {
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

func (s *stubStore) UpdateCredentials(ctx context.Context, userID uuid.UUID, update user.CredentialsUpdate) (*user.User, error) {
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

type profileEnv struct {
	service *Service
	store   *stubStore
	dir     string
}

func newProfileEnv(t *testing.T) *profileEnv {
	t.Helper()

	dir := t.TempDir()
	blobs, err := NewDiskStore(dir)
	require.NoError(t, err)

	service := NewService(
		newStubStore(),
		blobs,
		NewImageNormalizer(5<<20, 512, 85),
		logging.NewLogger(true),
	)

	env := &profileEnv{service: service, dir: dir}
	env.store = service.userRepo.(*stubStore)
	return env
}

func (e *profileEnv) seedUser(t *testing.T, email, username string) *user.User {
	t.Helper()
	u := &user.User{
		ID:       uuid.New(),
		Email:    email,
		Username: username,
	}
	e.store.add(u)
	return u
}

func (e *profileEnv) storedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func strPtr(s string) *string { return &s }

func TestGetProfileView(t *testing.T) {
	env := newProfileEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")
	birthDate := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	env.store.users[u.ID].BirthDate = &birthDate
	env.store.users[u.ID].Bio = strPtr("hello")

	view, err := env.service.Get(context.Background(), u.ID)
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", view.Email)
	assert.Equal(t, "alice", view.Username)
	require.NotNil(t, view.BirthDate)
	assert.Equal(t, "1990-06-15", *view.BirthDate)
	require.NotNil(t, view.Bio)
	assert.Equal(t, "hello", *view.Bio)
	assert.Nil(t, view.ProfilePicture)
}

func TestGetProfileUnknownUser(t *testing.T) {
	env := newProfileEnv(t)

	_, err := env.service.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestUpdateRejectsMixedModes(t *testing.T) {
	env := newProfileEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")

	_, err := env.service.Update(context.Background(), u.ID, UpdateInput{
		Credentials: user.CredentialsUpdate{Email: strPtr("new@example.com")},
		Bio:         strPtr("new bio"),
	})
	assert.ErrorIs(t, err, ErrMixedUpdateMode)
}

func TestUpdateEmptyInputReturnsCurrentView(t *testing.T) {
	env := newProfileEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")

	view, err := env.service.Update(context.Background(), u.ID, UpdateInput{})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", view.Email)
}

func TestUpdateCredentials(t *testing.T) {
	env := newProfileEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")
	env.seedUser(t, "bob@example.com", "bob")
	ctx := context.Background()

	t.Run("email conflict", func(t *testing.T) {
		_, err := env.service.Update(ctx, u.ID, UpdateInput{
			Credentials: user.CredentialsUpdate{Email: strPtr("Bob@Example.com")},
		})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("username conflict", func(t *testing.T) {
		_, err := env.service.Update(ctx, u.ID, UpdateInput{
			Credentials: user.CredentialsUpdate{Username: strPtr("bob")},
		})
		assert.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("empty username", func(t *testing.T) {
		_, err := env.service.Update(ctx, u.ID, UpdateInput{
			Credentials: user.CredentialsUpdate{Username: strPtr("   ")},
		})
		assert.ErrorIs(t, err, ErrUsernameRequired)
	})

	t.Run("success normalizes email", func(t *testing.T) {
		view, err := env.service.Update(ctx, u.ID, UpdateInput{
			Credentials: user.CredentialsUpdate{
				Email:    strPtr(" Alice.New@Example.COM "),
				Username: strPtr("alice2"),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "alice.new@example.com", view.Email)
		assert.Equal(t, "alice2", view.Username)
	})

	t.Run("keeping own identifiers is not a conflict", func(t *testing.T) {
		view, err := env.service.Update(ctx, u.ID, UpdateInput{
			Credentials: user.CredentialsUpdate{Email: strPtr("alice.new@example.com")},
		})
		require.NoError(t, err)
		assert.Equal(t, "alice.new@example.com", view.Email)
	})
}

// contendedStore lets a test sneak a competing writer in between the
// uniqueness pre-check and the commit, so the store's duplicate rejection
// is what the service has to translate.
type contendedStore struct {
	*stubStore
	beforeCommit func()
}

func (s *contendedStore) UpdateCredentials(ctx context.Context, userID uuid.UUID, update user.CredentialsUpdate) (*user.User, error) {
	if s.beforeCommit != nil {
		s.beforeCommit()
	}
	return s.stubStore.UpdateCredentials(ctx, userID, update)
}

func TestUpdateCredentialsConflictAfterPreCheck(t *testing.T) {
	blobs, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	store := &contendedStore{stubStore: newStubStore()}
	service := NewService(store, blobs, NewImageNormalizer(5<<20, 512, 85), logging.NewLogger(true))

	alice := &user.User{ID: uuid.New(), Email: "alice@example.com", Username: "alice"}
	store.add(alice)
	ctx := context.Background()

	t.Run("email claimed by a concurrent writer", func(t *testing.T) {
		store.beforeCommit = func() {
			store.add(&user.User{ID: uuid.New(), Email: "contested@example.com", Username: "early-bird"})
		}
		_, err := service.Update(ctx, alice.ID, UpdateInput{
			Credentials: user.CredentialsUpdate{Email: strPtr("contested@example.com")},
		})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("username claimed by a concurrent writer", func(t *testing.T) {
		store.beforeCommit = func() {
			store.add(&user.User{ID: uuid.New(), Email: "other@example.com", Username: "contested"})
		}
		_, err := service.Update(ctx, alice.ID, UpdateInput{
			Credentials: user.CredentialsUpdate{Username: strPtr("contested")},
		})
		assert.ErrorIs(t, err, ErrUsernameTaken)
	})
}

func TestUpdateInfoFields(t *testing.T) {
	env := newProfileEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")
	ctx := context.Background()

	view, err := env.service.Update(ctx, u.ID, UpdateInput{
		FirstName:   strPtr("Alice"),
		Bio:         strPtr("about me"),
		BirthDate:   strPtr("1990-06-15"),
		PhoneNumber: strPtr("415-555-2671"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", *view.FirstName)
	assert.Equal(t, "about me", *view.Bio)
	assert.Equal(t, "1990-06-15", *view.BirthDate)
	assert.Equal(t, "+14155552671", *view.PhoneNumber)

	// Empty strings clear; untouched fields survive.
	view, err = env.service.Update(ctx, u.ID, UpdateInput{
		Bio:       strPtr(""),
		BirthDate: strPtr(""),
	})
	require.NoError(t, err)
	assert.Nil(t, view.Bio)
	assert.Nil(t, view.BirthDate)
	require.NotNil(t, view.FirstName)
	assert.Equal(t, "Alice", *view.FirstName)
}

func TestUpdateInfoValidation(t *testing.T) {
	env := newProfileEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")
	ctx := context.Background()

	longBio := make([]byte, maxBioLength+1)
	for i := range longBio {
		longBio[i] = 'a'
	}
	_, err := env.service.Update(ctx, u.ID, UpdateInput{Bio: strPtr(string(longBio))})
	assert.ErrorIs(t, err, ErrBioTooLong)

	longAddress := make([]byte, maxAddressLength+1)
	for i := range longAddress {
		longAddress[i] = 'a'
	}
	_, err = env.service.Update(ctx, u.ID, UpdateInput{Address: strPtr(string(longAddress))})
	assert.ErrorIs(t, err, ErrAddressTooLong)

	_, err = env.service.Update(ctx, u.ID, UpdateInput{BirthDate: strPtr("15/06/1990")})
	assert.ErrorIs(t, err, ErrInvalidBirthDate)

	_, err = env.service.Update(ctx, u.ID, UpdateInput{PhoneNumber: strPtr("12")})
	assert.ErrorIs(t, err, ErrInvalidPhoneNumber)
}

func TestImageUploadReplaceAndClear(t *testing.T) {
	env := newProfileEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")
	ctx := context.Background()

	view, err := env.service.Update(ctx, u.ID, UpdateInput{
		Image: &ImageUpdate{Data: makeJPEG(t, 64, 64)},
	})
	require.NoError(t, err)
	require.NotNil(t, view.ProfilePicture)
	first := *view.ProfilePicture
	assert.Equal(t, []string{first}, env.storedFiles(t))

	// Replacing the picture frees the old blob.
	view, err = env.service.Update(ctx, u.ID, UpdateInput{
		Image: &ImageUpdate{Data: makeJPEG(t, 32, 32)},
	})
	require.NoError(t, err)
	require.NotNil(t, view.ProfilePicture)
	second := *view.ProfilePicture
	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{second}, env.storedFiles(t))

	// Clearing removes both the reference and the blob.
	view, err = env.service.Update(ctx, u.ID, UpdateInput{
		Image: &ImageUpdate{Clear: true},
	})
	require.NoError(t, err)
	assert.Nil(t, view.ProfilePicture)
	assert.Empty(t, env.storedFiles(t))
}

func TestImageUploadRejectsBadPayloads(t *testing.T) {
	env := newProfileEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")
	ctx := context.Background()

	_, err := env.service.Update(ctx, u.ID, UpdateInput{
		Image: &ImageUpdate{Data: []byte("not an image")},
	})
	assert.ErrorIs(t, err, ErrInvalidFileType)
	assert.Empty(t, env.storedFiles(t))
}
