package user

import (
	"time"

	"github.com/google/uuid"
)

// User is the account domain model. Credential fields (email, username,
// password hash) are only ever mutated through dedicated repository
// operations; profile fields are independently nullable.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose password hash in JSON

	EmailVerified           bool       `json:"email_verified"`
	EmailVerificationToken  *string    `json:"-"`
	EmailVerificationSentAt *time.Time `json:"-"`

	FirstName          *string    `json:"first_name"`
	LastName           *string    `json:"last_name"`
	Bio                *string    `json:"bio"`
	BirthDate          *time.Time `json:"birth_date"`
	ProfilePicturePath *string    `json:"-"`
	PhoneNumber        *string    `json:"phone_number"`
	Address            *string    `json:"address"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileView is the full read model returned by the profile endpoints.
// Credential fields appear here read-only; they are only writable through
// the credentials update path.
type ProfileView struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	EmailVerified  bool      `json:"email_verified"`
	FirstName      *string   `json:"first_name"`
	LastName       *string   `json:"last_name"`
	Bio            *string   `json:"bio"`
	BirthDate      *string   `json:"birth_date"`
	ProfilePicture *string   `json:"profile_picture"`
	PhoneNumber    *string   `json:"phone_number"`
	Address        *string   `json:"address"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewProfileView builds the read model for a user. Birth dates render as
// bare dates, and the picture path is exposed as a URL-relative reference.
func NewProfileView(u *User) *ProfileView {
	view := &ProfileView{
		ID:             u.ID,
		Email:          u.Email,
		Username:       u.Username,
		EmailVerified:  u.EmailVerified,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Bio:            u.Bio,
		ProfilePicture: u.ProfilePicturePath,
		PhoneNumber:    u.PhoneNumber,
		Address:        u.Address,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
	if u.BirthDate != nil {
		s := u.BirthDate.Format("2006-01-02")
		view.BirthDate = &s
	}
	return view
}

// CreateParams carries everything needed to insert a new account row.
type CreateParams struct {
	Email             string
	Username          string
	PasswordHash      string
	FirstName         *string
	LastName          *string
	VerificationToken string
}

// InfoUpdate carries the non-credential profile fields of an update
// request. A nil pointer leaves the column untouched; a pointer to an
// empty string clears the column to NULL. Fields without a natural empty
// value carry an explicit Set flag.
type InfoUpdate struct {
	FirstName   *string
	LastName    *string
	Bio         *string
	PhoneNumber *string
	Address     *string

	BirthDate    *time.Time // nil with BirthDateSet clears
	BirthDateSet bool

	ProfilePicturePath *string // nil with PicturePathSet clears
	PicturePathSet     bool
}

// Empty reports whether the update touches no columns.
func (u *InfoUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Bio == nil &&
		u.PhoneNumber == nil && u.Address == nil &&
		!u.BirthDateSet && !u.PicturePathSet
}

// CredentialsUpdate carries the unique login identifiers of an update
// request. Nil pointers leave the column untouched.
type CredentialsUpdate struct {
	Email    *string
	Username *string
}

// Empty reports whether the update touches no columns.
func (u *CredentialsUpdate) Empty() bool {
	return u.Email == nil && u.Username == nil
}
