// Package auth resolves the user behind an inbound request. It validates
// credentials issued elsewhere; it does not manage accounts or sessions.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when a request carries no credentials.
	ErrMissingToken = errors.New("auth: missing token")

	// ErrInvalidToken is returned when credentials fail validation.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Authenticator resolves the user ID of an inbound request
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// TokenManager manages JWT token creation and validation
type TokenManager struct {
	secretKey string
	expiresIn time.Duration
	issuer    string
	audience  string
}

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// NewTokenManager creates a new token manager
func NewTokenManager(secretKey string, expiresIn time.Duration, issuer, audience string) *TokenManager {
	return &TokenManager{
		secretKey: secretKey,
		expiresIn: expiresIn,
		issuer:    issuer,
		audience:  audience,
	}
}

// GenerateToken generates a new JWT token
func (tm *TokenManager) GenerateToken(userID string) (string, error) {
	now := time.Now()

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiresIn)),
			Issuer:    tm.issuer,
			Audience:  jwt.ClaimStrings{tm.audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(tm.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken validates and parses a JWT token
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Issuer != tm.issuer {
		return nil, fmt.Errorf("%w: invalid issuer", ErrInvalidToken)
	}
	if !slices.Contains(claims.Audience, tm.audience) {
		return nil, fmt.Errorf("%w: invalid audience", ErrInvalidToken)
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no user id", ErrInvalidToken)
	}
	return claims, nil
}

// Authenticate validates the bearer token of r
func (tm *TokenManager) Authenticate(r *http.Request) (string, error) {
	token := ExtractToken(r)
	if token == "" {
		return "", ErrMissingToken
	}
	claims, err := tm.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// ExtractToken reads the token from the Authorization header or the
// "token" query parameter, which browsers use for websocket upgrades.
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// HeaderAuthenticator trusts a user ID set by an upstream proxy. The proxy
// must authenticate the caller and overwrite any client-supplied X-User-ID.
type HeaderAuthenticator struct{}

// Authenticate reads X-User-ID. Query parameters are never consulted since
// clients control them end to end.
func (HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		return "", ErrMissingToken
	}
	return userID, nil
}
