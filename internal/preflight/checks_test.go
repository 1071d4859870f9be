package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinetree/internal/database"
)

func setupPreflightTest(t *testing.T, initialize bool) (*database.DB, func()) {
	t.Helper()
	db, err := database.New("sqlite://" + filepath.Join(t.TempDir(), "preflight.db"))
	require.NoError(t, err)
	if initialize {
		require.NoError(t, db.Initialize())
	}
	return db, func() { db.Close() }
}

func goodOptions(t *testing.T) Options {
	return Options{
		UploadDir:     filepath.Join(t.TempDir(), "uploads"),
		JWTSecret:     strings.Repeat("s", MinJWTSecretLength),
		EncryptionKey: "master-key",
	}
}

func TestRunAll_AllPass(t *testing.T) {
	db, cleanup := setupPreflightTest(t, true)
	defer cleanup()

	opts := goodOptions(t)
	results := NewChecker(db, opts).RunAll()
	require.Len(t, results, 5)
	for _, r := range results {
		assert.Equal(t, "pass", r.Status, r.Name)
	}
	assert.False(t, HasFailures(results))

	entries, err := os.ReadDir(opts.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch file must be removed")
}

func TestCheckDatabaseSchema_MissingTables(t *testing.T) {
	db, cleanup := setupPreflightTest(t, false)
	defer cleanup()

	result := NewChecker(db, goodOptions(t)).checkDatabaseSchema()
	assert.Equal(t, "fail", result.Status)
	assert.Contains(t, result.Message, "users")
}

func TestCheckDatabaseConnection_Closed(t *testing.T) {
	db, cleanup := setupPreflightTest(t, true)
	cleanup()

	result := NewChecker(db, goodOptions(t)).checkDatabaseConnection()
	assert.Equal(t, "fail", result.Status)
	assert.Error(t, result.Error)
}

func TestCheckUploadDir_NotADirectory(t *testing.T) {
	db, cleanup := setupPreflightTest(t, true)
	defer cleanup()

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	opts := goodOptions(t)
	opts.UploadDir = file
	result := NewChecker(db, opts).checkUploadDir()
	assert.Equal(t, "fail", result.Status)
}

func TestCheckJWTSecret(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		production bool
		want       string
	}{
		{"long secret", strings.Repeat("k", MinJWTSecretLength), true, "pass"},
		{"missing in development", "", false, "warning"},
		{"missing in production", "", true, "fail"},
		{"short in production", "short", true, "fail"},
		{"short in development", "short", false, "warning"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(nil, Options{JWTSecret: tt.secret, Production: tt.production})
			assert.Equal(t, tt.want, c.checkJWTSecret().Status)
		})
	}
}

func TestCheckEncryptionKey(t *testing.T) {
	assert.Equal(t, "warning", NewChecker(nil, Options{}).checkEncryptionKey().Status)
	assert.Equal(t, "pass", NewChecker(nil, Options{EncryptionKey: "k"}).checkEncryptionKey().Status)
}

func TestQuickCheck(t *testing.T) {
	db, cleanup := setupPreflightTest(t, false)
	defer cleanup()

	results := NewChecker(db, Options{}).QuickCheck()
	require.Len(t, results, 1)
	assert.False(t, HasFailures(results))
}
