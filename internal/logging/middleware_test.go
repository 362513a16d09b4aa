package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLoggerStoresContextLogger(t *testing.T) {
	var got *Logger
	handler := RequestLogger(NewLogger(true))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetLoggerFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("body"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	require.NotNil(t, got)
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "body", rr.Body.String())
}

func TestResponseWriterCapturesStatusAndBytes(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError) // first status wins

	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusAccepted, rw.statusCode)
	assert.Equal(t, 5, rw.bytes)
}

func TestQuietPath(t *testing.T) {
	assert.True(t, quietPath("/health"))
	assert.True(t, quietPath("/swagger/index.html"))
	assert.True(t, quietPath("/media/profile_pics/abc.jpg"))
	assert.False(t, quietPath("/auth/login"))
	assert.False(t, quietPath("/user/profile"))
}

func TestGetLoggerFromContextFallback(t *testing.T) {
	assert.NotNil(t, GetLoggerFromContext(context.Background()))
}
