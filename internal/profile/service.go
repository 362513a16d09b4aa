package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/logging"
	"github.com/accountd/accountd/internal/user"
)

var (
	ErrMixedUpdateMode    = errors.New("credential and profile fields cannot be updated in the same request")
	ErrUsernameRequired   = errors.New("username cannot be empty")
	ErrEmailTaken         = errors.New("email already in use")
	ErrUsernameTaken      = errors.New("username already in use")
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
	ErrBioTooLong         = errors.New("bio must be at most 500 characters")
	ErrAddressTooLong     = errors.New("address must be at most 255 characters")
	ErrInvalidBirthDate   = errors.New("birth date must be formatted as YYYY-MM-DD")
)

const (
	maxBioLength     = 500
	maxAddressLength = 255

	// Region used to parse phone numbers given without a country prefix.
	defaultPhoneRegion = "US"
)

// ImageUpdate describes what to do with the profile picture: either a raw
// payload to normalize and store, or an explicit clear.
type ImageUpdate struct {
	Data  []byte
	Clear bool
}

// UpdateInput is the parsed profile update request. Exactly one of the two
// update modes may carry fields; the image belongs to info mode.
type UpdateInput struct {
	Credentials user.CredentialsUpdate

	FirstName   *string
	LastName    *string
	Bio         *string
	PhoneNumber *string
	Address     *string
	BirthDate   *string // YYYY-MM-DD, empty string clears

	Image *ImageUpdate
}

func (in *UpdateInput) hasCredentialFields() bool {
	return !in.Credentials.Empty()
}

func (in *UpdateInput) hasInfoFields() bool {
	return in.FirstName != nil || in.LastName != nil || in.Bio != nil ||
		in.PhoneNumber != nil || in.Address != nil || in.BirthDate != nil ||
		in.Image != nil
}

// Service implements the profile read and mutation workflows.
type Service struct {
	userRepo   user.Store
	blobs      BlobStore
	normalizer *ImageNormalizer
	logger     *logging.Logger
}

func NewService(userRepo user.Store, blobs BlobStore, normalizer *ImageNormalizer, logger *logging.Logger) *Service {
	return &Service{
		userRepo:   userRepo,
		blobs:      blobs,
		normalizer: normalizer,
		logger:     logger,
	}
}

// Get returns the full profile view of an account.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*user.ProfileView, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.NewProfileView(u), nil
}

// Update applies a profile update in exactly one of the two modes. A
// request mixing credential and info fields is rejected before anything
// is written.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, input UpdateInput) (*user.ProfileView, error) {
	creds := input.hasCredentialFields()
	info := input.hasInfoFields()

	switch {
	case creds && info:
		return nil, ErrMixedUpdateMode
	case creds:
		return s.updateCredentials(ctx, userID, input.Credentials)
	case info:
		return s.updateInfo(ctx, userID, input)
	default:
		// Nothing to change; return the current view.
		return s.Get(ctx, userID)
	}
}

// updateCredentials validates uniqueness of the new identifiers before
// committing. The pre-check excludes the account's own row; the store's
// unique constraints remain the authority if a concurrent writer slips in
// between check and commit.
func (s *Service) updateCredentials(ctx context.Context, userID uuid.UUID, update user.CredentialsUpdate) (*user.ProfileView, error) {
	if update.Email != nil {
		email := auth.NormalizeEmail(*update.Email)
		if err := auth.ValidateEmail(email); err != nil {
			return nil, err
		}
		update.Email = &email

		existing, err := s.userRepo.GetByEmail(ctx, email)
		if err != nil && !errors.Is(err, user.ErrNotFound) {
			return nil, fmt.Errorf("failed to check email uniqueness: %w", err)
		}
		if existing != nil && existing.ID != userID {
			return nil, ErrEmailTaken
		}
	}

	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if username == "" {
			return nil, ErrUsernameRequired
		}
		update.Username = &username

		existing, err := s.userRepo.GetByUsername(ctx, username)
		if err != nil && !errors.Is(err, user.ErrNotFound) {
			return nil, fmt.Errorf("failed to check username uniqueness: %w", err)
		}
		if existing != nil && existing.ID != userID {
			return nil, ErrUsernameTaken
		}
	}

	updated, err := s.userRepo.UpdateCredentials(ctx, userID, update)
	if err != nil {
		// A concurrent writer won the race: surface the store's verdict as
		// the same conflict errors the pre-check produces.
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		if errors.Is(err, user.ErrDuplicateUsername) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	return user.NewProfileView(updated), nil
}

func (s *Service) updateInfo(ctx context.Context, userID uuid.UUID, input UpdateInput) (*user.ProfileView, error) {
	update := user.InfoUpdate{
		FirstName: input.FirstName,
		LastName:  input.LastName,
	}

	if input.Bio != nil {
		if len(*input.Bio) > maxBioLength {
			return nil, ErrBioTooLong
		}
		update.Bio = input.Bio
	}

	if input.Address != nil {
		if len(*input.Address) > maxAddressLength {
			return nil, ErrAddressTooLong
		}
		update.Address = input.Address
	}

	if input.PhoneNumber != nil {
		if *input.PhoneNumber != "" {
			normalized, err := normalizePhoneNumber(*input.PhoneNumber)
			if err != nil {
				return nil, err
			}
			update.PhoneNumber = &normalized
		} else {
			update.PhoneNumber = input.PhoneNumber
		}
	}

	if input.BirthDate != nil {
		update.BirthDateSet = true
		if *input.BirthDate != "" {
			parsed, err := time.Parse("2006-01-02", *input.BirthDate)
			if err != nil {
				return nil, ErrInvalidBirthDate
			}
			update.BirthDate = &parsed
		}
	}

	var previousPicture *string
	if input.Image != nil {
		current, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		previousPicture = current.ProfilePicturePath

		update.PicturePathSet = true
		if !input.Image.Clear {
			normalized, err := s.normalizer.Normalize(input.Image.Data)
			if err != nil {
				return nil, err
			}
			ref, err := s.blobs.Save(ctx, normalized)
			if err != nil {
				return nil, fmt.Errorf("failed to store profile image: %w", err)
			}
			update.ProfilePicturePath = &ref
		}
	}

	updated, err := s.userRepo.UpdateInfo(ctx, userID, update)
	if err != nil {
		// The row update failed; clean up the orphaned blob.
		if update.ProfilePicturePath != nil {
			if rmErr := s.blobs.Remove(ctx, *update.ProfilePicturePath); rmErr != nil {
				s.logger.Warn("failed to remove orphaned image blob", "error", rmErr)
			}
		}
		return nil, err
	}

	// Free the replaced or cleared artifact once the row points away from it.
	if update.PicturePathSet && previousPicture != nil {
		if err := s.blobs.Remove(ctx, *previousPicture); err != nil {
			s.logger.Warn("failed to remove previous image blob", "ref", *previousPicture, "error", err)
		}
	}

	return user.NewProfileView(updated), nil
}

// normalizePhoneNumber validates and formats a phone number to E.164.
func normalizePhoneNumber(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, defaultPhoneRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhoneNumber, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhoneNumber
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
