package jwt

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	Configure("test-secret", 0)
	id := uuid.New()

	token, err := GenerateToken(id, "a@b.c", "Ann", "ADMIN", []string{"stock:view"}, "v1")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, []string{"stock:view"}, claims.Privileges)
	assert.Equal(t, "v1", claims.TokenVersion)
}

func TestValidateRejectsOtherSecret(t *testing.T) {
	Configure("first", 0)
	token, err := GenerateToken(uuid.New(), "a@b.c", "Ann", "ADMIN", nil, "v1")
	require.NoError(t, err)

	Configure("second", 0)
	_, err = ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
