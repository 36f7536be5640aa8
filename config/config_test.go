package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tavle/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tavle.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
database = "board.db"

[server]
hostname = "board.example.com"
port = 8080
allow_origins = "https://board.example.com"

[media]
type = "s3"
bucket = "board-media"
region = "eu-north-1"

[[users]]
token = "token-a"
id = "user-a"
display_name = "Alice"
email = "alice@example.com"

[[users]]
token = "token-b"
id = "user-b"
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "board.db", cfg.Database)
	assert.Equal(t, "board.example.com", cfg.Server.Hostname)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://board.example.com", cfg.Server.AllowOrigins)
	assert.Equal(t, "s3", cfg.Media.Type)
	assert.Equal(t, "board-media", cfg.Media.Bucket)

	require.Len(t, cfg.Users, 2)
	assert.Equal(t, "Alice", cfg.Users[0].DisplayName)
	assert.Empty(t, cfg.Users[1].Email)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "tavle.db", cfg.Database)
	assert.Equal(t, "filesystem", cfg.Media.Type)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Empty(t, cfg.Users)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidToml(t *testing.T) {
	path := writeConfig(t, "not = [valid")
	_, err := config.LoadConfig(path)
	assert.Error(t, err)
}
