package user

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfileView(t *testing.T) {
	birthDate := time.Date(1985, 12, 3, 0, 0, 0, 0, time.UTC)
	bio := "hello"
	picture := "abc.jpg"

	u := &User{
		ID:                 uuid.New(),
		Email:              "alice@example.com",
		Username:           "alice",
		EmailVerified:      true,
		Bio:                &bio,
		BirthDate:          &birthDate,
		ProfilePicturePath: &picture,
	}

	view := NewProfileView(u)
	assert.Equal(t, u.ID, view.ID)
	assert.Equal(t, "alice@example.com", view.Email)
	assert.True(t, view.EmailVerified)
	require.NotNil(t, view.BirthDate)
	assert.Equal(t, "1985-12-03", *view.BirthDate)
	require.NotNil(t, view.ProfilePicture)
	assert.Equal(t, "abc.jpg", *view.ProfilePicture)

	// Nil optionals stay nil.
	empty := NewProfileView(&User{ID: uuid.New()})
	assert.Nil(t, empty.BirthDate)
	assert.Nil(t, empty.ProfilePicture)
	assert.Nil(t, empty.Bio)
}

func TestUpdateEmptyChecks(t *testing.T) {
	assert.True(t, (&InfoUpdate{}).Empty())
	assert.True(t, (&CredentialsUpdate{}).Empty())

	name := "Alice"
	assert.False(t, (&InfoUpdate{FirstName: &name}).Empty())
	assert.False(t, (&InfoUpdate{BirthDateSet: true}).Empty())
	assert.False(t, (&InfoUpdate{PicturePathSet: true}).Empty())
	assert.False(t, (&CredentialsUpdate{Username: &name}).Empty())
}
