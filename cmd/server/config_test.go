package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/icco/taverna"
)

// unsetenv clears name for the rest of the test.
func unsetenv(t *testing.T, name string) {
	t.Helper()
	t.Setenv(name, "")
	require.NoError(t, os.Unsetenv(name))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite:taverna.db")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("ALLOWED_ORIGINS", "https://taverna.app,https://beta.taverna.app")
	t.Setenv("CHAT_PAGE_MAX", "0")
	unsetenv(t, "PORT")
	unsetenv(t, "NAT_ENV")
	unsetenv(t, "AUTH_TOKEN_DURATION")

	c, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.True(t, c.IsDev())
	assert.Equal(t, 24*time.Hour, c.TokenDuration)
	assert.Equal(t, []string{"https://taverna.app", "https://beta.taverna.app"}, c.AllowedOrigins)
	assert.Equal(t, 100, c.ChatPageMax, "non-positive page sizes fall back to the default")

	t.Setenv("NAT_ENV", "production")
	c, err = loadConfig()
	require.NoError(t, err)
	assert.False(t, c.IsDev())
}

func TestLoadConfigRequired(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	unsetenv(t, "DATABASE_URL")

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TAVERNA_TEST_A=from-file\nTAVERNA_TEST_B=from-file\n"), 0o600))

	unsetenv(t, "TAVERNA_TEST_A")
	t.Setenv("TAVERNA_TEST_B", "from-env")

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("TAVERNA_TEST_A"))
	assert.Equal(t, "from-env", os.Getenv("TAVERNA_TEST_B"), "the environment wins")

	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestDBError(t *testing.T) {
	assert.NoError(t, dbError(nil, "quest"))

	err := dbError(gorm.ErrRecordNotFound, "quest")
	assert.Equal(t, taverna.KindNotFound, taverna.KindOf(err))
	assert.Equal(t, "quest not found", taverna.MessageOf(err))

	err = dbError(gorm.ErrDuplicatedKey, "user")
	assert.Equal(t, taverna.KindConflict, taverna.KindOf(err))
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))

	assert.Same(t, taverna.ErrNotDM, dbError(taverna.ErrNotDM, "scene"))

	err = dbError(errors.New("dial tcp: connection refused"), "campaign")
	assert.Equal(t, taverna.KindInternal, taverna.KindOf(err))
	assert.Contains(t, taverna.MessageOf(err), "internal")
}

func TestUniqueEmail(t *testing.T) {
	db := setupTestDB(t)

	u := User{Provider: "local", ProviderID: "a", Email: "same@example.com"}
	require.NoError(t, db.Create(&u).Error)
	err := db.Create(&User{Provider: "local", ProviderID: "b", Email: "same@example.com"}).Error
	require.Error(t, err)
	assert.True(t, isDuplicate(err))
	assert.Equal(t, "already exists", getDBErrorMessage(err))
}
