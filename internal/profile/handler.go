package profile

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/httputil"
	"github.com/accountd/accountd/internal/logging"
	"github.com/accountd/accountd/internal/user"
)

// multipartOverhead is slack on top of the image cap for the other form
// fields when bounding the request body.
const multipartOverhead = 1 << 20

// Handler contains HTTP handlers for the profile endpoints. All routes
// require a verified bearer token; the user identity comes from the
// request context set by the auth middleware.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// updateRequest is the JSON body of a profile update. Pointers distinguish
// absent fields from explicitly emptied ones; an empty string clears a
// nullable field.
type updateRequest struct {
	Email          *string `json:"email"`
	Username       *string `json:"username"`
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Bio            *string `json:"bio"`
	BirthDate      *string `json:"birth_date"`
	PhoneNumber    *string `json:"phone_number"`
	Address        *string `json:"address"`
	ProfilePicture *string `json:"profile_picture"` // only "" (clear) is meaningful in JSON
}

// Get returns the current user's profile
// @Summary      Get profile
// @Description  Retrieve the authenticated user's full profile. Credential fields are read-only here.
// @Tags         user
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} user.ProfileView
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Router       /user/profile [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	view, err := h.service.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("failed to get profile", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to get profile", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, view, http.StatusOK)
}

// Update applies a profile update
// @Summary      Update profile
// @Description  Update credential fields (email/username) or profile info fields, never both in one call. Accepts JSON or multipart form data; the profile image travels as the multipart file field "profile_picture".
// @Tags         user
// @Accept       json
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} user.ProfileView
// @Failure      400 {object} httputil.ErrorResponse "Validation failure"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      409 {object} httputil.ErrorResponse "Email or username already in use"
// @Router       /user/profile [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.service.normalizer.MaxBytes()+multipartOverhead)

	var input UpdateInput
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		input, err = parseMultipartUpdate(r)
	} else {
		input, err = parseJSONUpdate(r)
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			logger.Warn("profile update request exceeds body limit", "limit", maxBytesErr.Limit)
			httputil.RespondErrorWithCode(w, ErrFileTooLarge.Error(), httputil.CodeFileTooLarge, http.StatusBadRequest)
			return
		}
		logger.Warn("invalid profile update request", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	view, err := h.service.Update(r.Context(), userID, input)
	if err != nil {
		h.respondUpdateError(w, logger, err)
		return
	}

	logger.Info("profile updated", "user_id", userID)

	httputil.RespondJSON(w, view, http.StatusOK)
}

func (h *Handler) respondUpdateError(w http.ResponseWriter, logger *logging.Logger, err error) {
	switch {
	case errors.Is(err, ErrMixedUpdateMode):
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeMixedUpdateMode, http.StatusBadRequest)
	case errors.Is(err, ErrEmailTaken):
		httputil.RespondFieldErrors(w, map[string]string{"email": err.Error()}, http.StatusConflict)
	case errors.Is(err, ErrUsernameTaken):
		httputil.RespondFieldErrors(w, map[string]string{"username": err.Error()}, http.StatusConflict)
	case errors.Is(err, auth.ErrEmailRequired), errors.Is(err, auth.ErrInvalidEmailFormat):
		httputil.RespondFieldErrors(w, map[string]string{"email": err.Error()}, http.StatusBadRequest)
	case errors.Is(err, ErrUsernameRequired):
		httputil.RespondFieldErrors(w, map[string]string{"username": err.Error()}, http.StatusBadRequest)
	case errors.Is(err, ErrBioTooLong):
		httputil.RespondFieldErrors(w, map[string]string{"bio": err.Error()}, http.StatusBadRequest)
	case errors.Is(err, ErrAddressTooLong):
		httputil.RespondFieldErrors(w, map[string]string{"address": err.Error()}, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidPhoneNumber):
		httputil.RespondFieldErrors(w, map[string]string{"phone_number": err.Error()}, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidBirthDate):
		httputil.RespondFieldErrors(w, map[string]string{"birth_date": err.Error()}, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidFileType):
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidFileType, http.StatusBadRequest)
	case errors.Is(err, ErrFileTooLarge):
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeFileTooLarge, http.StatusBadRequest)
	case errors.Is(err, user.ErrNotFound):
		httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
	default:
		logger.Error("profile update failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to update profile", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}

func parseJSONUpdate(r *http.Request) (UpdateInput, error) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return UpdateInput{}, err
	}

	input := UpdateInput{
		Credentials: user.CredentialsUpdate{
			Email:    req.Email,
			Username: req.Username,
		},
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Bio:         req.Bio,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		BirthDate:   req.BirthDate,
	}

	// JSON cannot carry an image payload; an empty string clears it.
	if req.ProfilePicture != nil && *req.ProfilePicture == "" {
		input.Image = &ImageUpdate{Clear: true}
	}

	return input, nil
}

func parseMultipartUpdate(r *http.Request) (UpdateInput, error) {
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		return UpdateInput{}, err
	}

	formValue := func(key string) *string {
		values, ok := r.MultipartForm.Value[key]
		if !ok || len(values) == 0 {
			return nil
		}
		v := values[0]
		return &v
	}

	input := UpdateInput{
		Credentials: user.CredentialsUpdate{
			Email:    formValue("email"),
			Username: formValue("username"),
		},
		FirstName:   formValue("first_name"),
		LastName:    formValue("last_name"),
		Bio:         formValue("bio"),
		PhoneNumber: formValue("phone_number"),
		Address:     formValue("address"),
		BirthDate:   formValue("birth_date"),
	}

	if files, ok := r.MultipartForm.File["profile_picture"]; ok && len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			return UpdateInput{}, err
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return UpdateInput{}, err
		}
		input.Image = &ImageUpdate{Data: data}
	} else if v := formValue("profile_picture"); v != nil && *v == "" {
		// An empty form value clears the existing image.
		input.Image = &ImageUpdate{Clear: true}
	}

	return input, nil
}
