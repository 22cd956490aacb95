package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"burndown/internal/shared/auth"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestResponseWriter_CountsBytesAndDefaultsStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	wrapped := wrapResponseWriter(rr)
	assert.Equal(t, 0, wrapped.Status())

	_, err := wrapped.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = wrapped.Write([]byte(" world"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, wrapped.Status())
	assert.Equal(t, 11, wrapped.bytes)

	wrapped.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, wrapped.Status(), "header already sent")
}

func TestLogging_AnonymousRequest(t *testing.T) {
	buf := captureLog(t)

	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, buf.String(), "GET /health 204 0B")
	assert.Contains(t, buf.String(), "household=-")
}

func TestLogging_TagsAuthenticatedHousehold(t *testing.T) {
	buf := captureLog(t)

	jwt := auth.NewJWT("test-secret")
	token, err := jwt.Generate("household-7")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/api/plaid/connections/{id}", Auth(jwt)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})))
	handler := Logging(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/plaid/connections/item-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, buf.String(), "GET /api/plaid/connections/item-1 200 2B")
	assert.Contains(t, buf.String(), "household=household-7")
}

func TestLogging_RejectedTokenHasNoHousehold(t *testing.T) {
	buf := captureLog(t)

	handler := Logging(Auth(auth.NewJWT("test-secret"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/plaid/sync", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, buf.String(), "POST /api/plaid/sync 401")
	assert.Contains(t, buf.String(), "household=-")
}
