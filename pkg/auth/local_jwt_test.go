package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(t *testing.T) *LocalJWTAuth {
	t.Helper()
	a, err := NewLocalJWTAuth("test-secret-that-is-long-enough-32b", time.Minute, time.Hour)
	require.NoError(t, err)
	return a
}

func TestGenerateAndVerifyTokens(t *testing.T) {
	a := newTestAuth(t)

	access, refresh, err := a.GenerateTokens("alice@example.com", "user", 3)
	require.NoError(t, err)

	p, err := a.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", p.UserName)
	assert.Equal(t, "user", p.Role)

	claims, err := a.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, 3, claims.Version)
	assert.NotEmpty(t, claims.ID)

	_, err = a.VerifyAccessToken(refresh)
	assert.Error(t, err, "refresh tokens are not access tokens")
	_, err = a.VerifyRefreshToken(access)
	assert.Error(t, err)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	a := newTestAuth(t)
	other, err := NewLocalJWTAuth("a-completely-different-secret-value", 0, 0)
	require.NoError(t, err)

	access, _, err := other.GenerateTokens("mallory@example.com", "admin", 0)
	require.NoError(t, err)

	_, err = a.VerifyAccessToken(access)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	a, err := NewLocalJWTAuth("test-secret-that-is-long-enough-32b", -time.Minute, time.Hour)
	require.NoError(t, err)
	access, _, err := a.GenerateTokens("alice@example.com", "user", 0)
	require.NoError(t, err)

	_, err = a.VerifyAccessToken(access)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	a := newTestAuth(t)

	hash, err := a.HashPassword("correct horse 1")
	require.NoError(t, err)

	ok, err := a.VerifyPassword(hash, "correct horse 1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.VerifyPassword(hash, "wrong horse 1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.VerifyPassword("bcrypt$abc", "x")
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def", "abc.def", false},
		{"bearer   abc", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := ExtractToken(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, ValidatePassword("short1"))
	assert.Error(t, ValidatePassword("onlyletters"))
	assert.Error(t, ValidatePassword("1234567890"))
	assert.NoError(t, ValidatePassword("letters4ndnumbers"))
}
