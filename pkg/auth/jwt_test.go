package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenManager() *TokenManager {
	return NewTokenManager("test-secret", time.Hour, "presencehub", "presencehub-clients")
}

func TestGenerateAndValidateToken(t *testing.T) {
	tm := newTestTokenManager()

	token, err := tm.GenerateToken("user-1")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestValidateTokenRejects(t *testing.T) {
	tm := newTestTokenManager()

	expired, err := NewTokenManager("test-secret", -time.Minute, "presencehub", "presencehub-clients").GenerateToken("u")
	require.NoError(t, err)
	foreignIssuer, err := NewTokenManager("test-secret", time.Hour, "someone-else", "presencehub-clients").GenerateToken("u")
	require.NoError(t, err)
	wrongAudience, err := NewTokenManager("test-secret", time.Hour, "presencehub", "other").GenerateToken("u")
	require.NoError(t, err)
	wrongKey, err := NewTokenManager("other-secret", time.Hour, "presencehub", "presencehub-clients").GenerateToken("u")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"foreign issuer", foreignIssuer},
		{"wrong audience", wrongAudience},
		{"wrong key", wrongKey},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestValidateTokenFallsBackToSubject(t *testing.T) {
	tm := newTestTokenManager()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "from-sub",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "presencehub",
			Audience:  jwt.ClaimStrings{"presencehub-clients"},
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	got, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "from-sub", got.UserID)
}

func TestAuthenticate(t *testing.T) {
	tm := newTestTokenManager()
	token, err := tm.GenerateToken("user-1")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/ws", nil)
	_, err = tm.Authenticate(req)
	assert.ErrorIs(t, err, ErrMissingToken)

	req = httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	userID, err := tm.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	req = httptest.NewRequest("GET", "/ws?token="+token, nil)
	userID, err = tm.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	req = httptest.NewRequest("GET", "/ws?token=bogus", nil)
	_, err = tm.Authenticate(req)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHeaderAuthenticator(t *testing.T) {
	var a HeaderAuthenticator

	req := httptest.NewRequest("GET", "/ws", nil)
	_, err := a.Authenticate(req)
	assert.ErrorIs(t, err, ErrMissingToken)

	req.Header.Set("X-User-ID", "u1")
	userID, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

}

func TestHeaderAuthenticatorIgnoresQueryIdentity(t *testing.T) {
	var a HeaderAuthenticator

	req := httptest.NewRequest("GET", "/ws?user_id=admin", nil)
	_, err := a.Authenticate(req)
	assert.ErrorIs(t, err, ErrMissingToken)

	req.Header.Set("X-User-ID", "u1")
	userID, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}
