package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jgirmay/presencehub/pkg/auth"
)

func TestRequireUser(t *testing.T) {
	var seen string
	handler := RequireUser(auth.HeaderAuthenticator{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/presence/online", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_TOKEN")
	assert.Empty(t, seen)

	req = httptest.NewRequest(http.MethodGet, "/api/presence/online", nil)
	req.Header.Set("X-User-ID", "u1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", seen)
}

func TestUserIDFromContextEmpty(t *testing.T) {
	assert.Equal(t, "", UserIDFromContext(context.Background()))
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
