package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-identity-api/internal/models"
	appErrors "github.com/noah-isme/tutor-identity-api/pkg/errors"
)

func signTestToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func testClaims(userID string, role models.UserRole) *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "tutor-auth",
			Audience:  jwt.ClaimStrings{"tutor-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "tutor-auth", Audience: []string{"tutor-api"}})

	claims, err := svc.ValidateToken(signTestToken(t, "secret", testClaims("user-1", models.RoleStudent)))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceValidateTokenRejects(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "tutor-auth", Audience: []string{"tutor-api"}})

	expired := testClaims("user-1", models.RoleStudent)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongAudience := testClaims("user-1", models.RoleStudent)
	wrongAudience.Audience = jwt.ClaimStrings{"other"}

	wrongIssuer := testClaims("user-1", models.RoleStudent)
	wrongIssuer.Issuer = "someone-else"

	cases := map[string]string{
		"bad signature": signTestToken(t, "other-secret", testClaims("user-1", models.RoleStudent)),
		"expired":       signTestToken(t, "secret", expired),
		"audience":      signTestToken(t, "secret", wrongAudience),
		"issuer":        signTestToken(t, "secret", wrongIssuer),
		"missing user":  signTestToken(t, "secret", testClaims("", models.RoleStudent)),
		"not a jwt":     "garbage",
		"empty":         "",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
		})
	}
}

func TestAuthServiceAudienceOptional(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret"})
	claims := testClaims("user-1", models.RoleTeacher)
	claims.Audience = nil

	_, err := svc.ValidateToken(signTestToken(t, "secret", claims))
	assert.NoError(t, err)
}
