package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyValidAccessToken(t *testing.T) {
	v := NewVerifier(testSecret)
	token := sign(t, Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID:   "alice",
		Username: "Alice",
		Type:     "access",
	}, testSecret)

	claims, err := v.Verify(token)

	require.NoError(t, err)
	require.Equal(t, "alice", claims.UserID)
	require.Equal(t, "Alice", claims.Username)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier(testSecret)
	token := sign(t, Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UserID: "alice",
		Type:   "access",
	}, testSecret)

	_, err := v.Verify(token)

	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewVerifier(testSecret)
	token := sign(t, Claims{UserID: "alice", Type: "access"}, "other-secret")

	_, err := v.Verify(token)

	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsRefreshToken(t *testing.T) {
	v := NewVerifier(testSecret)
	token := sign(t, Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "alice",
		Type:   "refresh",
	}, testSecret)

	_, err := v.Verify(token)

	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	v := NewVerifier(testSecret)
	token := sign(t, Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: "access",
	}, testSecret)

	_, err := v.Verify(token)

	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewVerifier(testSecret)

	_, err := v.Verify("not-a-token")

	require.ErrorIs(t, err, ErrInvalidToken)
}
