package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_GenerateAndValidate(t *testing.T) {
	j := NewJWT("my-secret-key")

	token, err := j.Generate("household-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := j.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "household-1", claims.HouseholdID)
	assert.Equal(t, "household-1", claims.Subject)

	parts := strings.Split(token, ".")
	_, err = j.Validate(parts[0] + "." + parts[1] + ".invalid-signature")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = j.Validate("invalid.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_GenerateRequiresHousehold(t *testing.T) {
	_, err := NewJWT("secret").Generate("")
	assert.Error(t, err)
}

func TestJWT_ExpiredToken(t *testing.T) {
	j := NewJWT("my-secret-key")
	j.now = func() time.Time { return time.Now().Add(-25 * time.Hour) }

	token, err := j.Generate("household-1")
	require.NoError(t, err)

	j.now = time.Now
	_, err = j.Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWT_WrongSecret(t *testing.T) {
	token, err := NewJWT("one").Generate("household-1")
	require.NoError(t, err)

	_, err = NewJWT("two").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		HouseholdID: "household-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewJWT("secret").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_RejectsMissingHousehold(t *testing.T) {
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewJWT("secret").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
