package jwtauth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/pkg/derrors"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := New("test-signing-key", "aegis", "aegis-api")
	userID := uuid.New()

	token, err := svc.GenerateAccessToken(userID, "manager", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "manager", claims.Role)
	assert.Equal(t, "aegis", claims.Issuer)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := New("test-signing-key", "aegis", "aegis-api")

	token, err := svc.GenerateAccessToken(uuid.New(), "auditor", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "token has expired")
}

func TestValidateToken_WrongKey(t *testing.T) {
	issuer := New("key-one", "aegis", "aegis-api")
	verifier := New("key-two", "aegis", "aegis-api")

	token, err := issuer.GenerateAccessToken(uuid.New(), "auditor", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeUnauthorized))
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := New("test-signing-key", "aegis", "aegis-api")
	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := svc.ValidateToken(token)
		require.Error(t, err, "token %q", token)
		assert.True(t, derrors.HasCode(err, derrors.CodeUnauthorized))
	}
}

func TestValidator_Adapter(t *testing.T) {
	svc := New("test-signing-key", "aegis", "aegis-api")
	userID := uuid.New()
	token, err := svc.GenerateAccessToken(userID, "auditor", time.Hour)
	require.NoError(t, err)

	claims, err := NewValidator(svc).Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "auditor", claims.Role)
}
