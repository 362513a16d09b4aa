package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/logging"
	"github.com/accountd/accountd/internal/user"
)

func newHandlerEnv(t *testing.T) (*Handler, *profileEnv) {
	t.Helper()
	env := newProfileEnv(t)
	return NewHandler(env.service, logging.NewLogger(true)), env
}

func authedRequest(method, target string, body *bytes.Buffer, userID uuid.UUID) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	ctx := context.WithValue(req.Context(), auth.UserIDContextKey, userID)
	return req.WithContext(ctx)
}

func TestHandlerGetProfile(t *testing.T) {
	handler, env := newHandlerEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")

	rr := httptest.NewRecorder()
	handler.Get(rr, authedRequest(http.MethodGet, "/user/profile", nil, u.ID))

	require.Equal(t, http.StatusOK, rr.Code)
	var view user.ProfileView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, "alice@example.com", view.Email)
	assert.Equal(t, "alice", view.Username)
}

func TestHandlerGetProfileMissingAuth(t *testing.T) {
	handler, _ := newHandlerEnv(t)

	rr := httptest.NewRecorder()
	handler.Get(rr, httptest.NewRequest(http.MethodGet, "/user/profile", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandlerUpdateJSON(t *testing.T) {
	handler, env := newHandlerEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")

	body := bytes.NewBufferString(`{"bio": "hello there", "first_name": "Alice"}`)
	req := authedRequest(http.MethodPatch, "/user/profile", body, u.ID)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler.Update(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var view user.ProfileView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.NotNil(t, view.Bio)
	assert.Equal(t, "hello there", *view.Bio)
	require.NotNil(t, view.FirstName)
	assert.Equal(t, "Alice", *view.FirstName)
}

func TestHandlerUpdateJSONMixedMode(t *testing.T) {
	handler, env := newHandlerEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")

	body := bytes.NewBufferString(`{"email": "new@example.com", "bio": "hello"}`)
	req := authedRequest(http.MethodPut, "/user/profile", body, u.ID)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler.Update(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "mixed_update_mode")
}

func TestHandlerUpdateCredentialsConflict(t *testing.T) {
	handler, env := newHandlerEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")
	env.seedUser(t, "bob@example.com", "bob")

	body := bytes.NewBufferString(`{"email": "bob@example.com"}`)
	req := authedRequest(http.MethodPut, "/user/profile", body, u.ID)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler.Update(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerUpdateMultipartWithImage(t *testing.T) {
	handler, env := newHandlerEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("bio", "multipart bio"))
	fw, err := mw.CreateFormFile("profile_picture", "avatar.jpg")
	require.NoError(t, err)
	_, err = fw.Write(makeJPEG(t, 48, 48))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := authedRequest(http.MethodPut, "/user/profile", &buf, u.ID)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	handler.Update(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var view user.ProfileView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.NotNil(t, view.Bio)
	assert.Equal(t, "multipart bio", *view.Bio)
	require.NotNil(t, view.ProfilePicture)
	assert.True(t, strings.HasSuffix(*view.ProfilePicture, ".jpg"))
	assert.Len(t, env.storedFiles(t), 1)
}

func TestHandlerUpdateMultipartClearImage(t *testing.T) {
	handler, env := newHandlerEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")

	// Seed an existing picture through the service.
	_, err := env.service.Update(context.Background(), u.ID, UpdateInput{
		Image: &ImageUpdate{Data: makeJPEG(t, 48, 48)},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("profile_picture", ""))
	require.NoError(t, mw.Close())

	req := authedRequest(http.MethodPatch, "/user/profile", &buf, u.ID)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	handler.Update(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var view user.ProfileView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Nil(t, view.ProfilePicture)
	assert.Empty(t, env.storedFiles(t))
}

func TestHandlerUpdateRejectsNonImageUpload(t *testing.T) {
	handler, env := newHandlerEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("profile_picture", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := authedRequest(http.MethodPut, "/user/profile", &buf, u.ID)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	handler.Update(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid_file_type")
}

func TestHandlerUpdateOversizedBodyReportsFileTooLarge(t *testing.T) {
	handler, env := newHandlerEnv(t)
	u := env.seedUser(t, "alice@example.com", "alice")

	// Larger than the image cap plus the multipart slack, so the body limit
	// trips before any parsing succeeds.
	oversized := env.service.normalizer.MaxBytes() + multipartOverhead + 1
	var buf bytes.Buffer
	buf.WriteString(`{"bio": "`)
	buf.Write(bytes.Repeat([]byte("a"), int(oversized)))
	buf.WriteString(`"}`)

	req := authedRequest(http.MethodPut, "/user/profile", &buf, u.ID)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler.Update(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "file_too_large")
}
