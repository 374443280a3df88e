package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7)

	tokenString, err := m.GenerateToken(42, "alice", "editor")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "editor", claims.Role)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	m1 := NewJWTManager("secret-one", 1, 7)
	m2 := NewJWTManager("secret-two", 1, 7)

	tokenString, err := m1.GenerateToken(1, "alice", "user")
	require.NoError(t, err)

	_, err = m2.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	// 有效期为 -1 小时，签发即过期
	m := NewJWTManager("test-secret", -1, 7)

	tokenString, err := m.GenerateToken(1, "alice", "user")
	require.NoError(t, err)

	_, err = m.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7)

	_, err := m.VerifyToken("not.a.jwt")
	assert.Error(t, err)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7)

	refresh, err := m.GenerateRefreshToken(7, "bob", "admin")
	require.NoError(t, err)

	claims, err := m.VerifyToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}
