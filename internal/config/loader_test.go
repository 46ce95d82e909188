package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to write a config.yaml into dir
func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0644)
	require.NoError(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	tempDir := t.TempDir()

	loaded, err := LoadConfig(tempDir)
	require.NoError(t, err)

	assert.Equal(t, GetDefaultConfig(), loaded)
}

func TestLoadConfig_FullFile(t *testing.T) {
	tempDir := t.TempDir()
	writeConfigFile(t, tempDir, `
issuer: "https://auth.example.com"
client_id: "tokenward-cli"
client_secret: "s3cret"
scopes:
  - openid
  - profile
endpoints:
  authorization: "https://auth.example.com/authorize"
  token: "https://auth.example.com/oauth/token"
  revocation: "https://auth.example.com/oauth/revoke"
callback:
  port: 9001
  path: "/oauth/done"
token_dir: "/tmp/tokenward-tokens"
log_level: "debug"
`)

	loaded, err := LoadConfig(tempDir)
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com", loaded.Issuer)
	assert.Equal(t, "tokenward-cli", loaded.ClientID)
	assert.Equal(t, "s3cret", loaded.ClientSecret)
	assert.Equal(t, []string{"openid", "profile"}, loaded.Scopes)
	assert.Equal(t, "https://auth.example.com/authorize", loaded.Endpoints.Authorization)
	assert.Equal(t, "https://auth.example.com/oauth/token", loaded.Endpoints.Token)
	assert.Equal(t, "https://auth.example.com/oauth/revoke", loaded.Endpoints.Revocation)
	assert.Equal(t, 9001, loaded.Callback.Port)
	assert.Equal(t, "/oauth/done", loaded.Callback.Path)
	assert.Equal(t, "/tmp/tokenward-tokens", loaded.TokenDir)
	assert.Equal(t, "debug", loaded.LogLevel)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	tempDir := t.TempDir()
	writeConfigFile(t, tempDir, `
issuer: "https://auth.example.com"
client_id: "tokenward-cli"
scopes: [openid]
`)

	loaded, err := LoadConfig(tempDir)
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com", loaded.Issuer)
	assert.Equal(t, DefaultCallbackPort, loaded.Callback.Port)
	assert.Equal(t, DefaultCallbackPath, loaded.Callback.Path)
	assert.Equal(t, DefaultLogLevel, loaded.LogLevel)
}

func TestLoadConfig_PartialCallbackOverride(t *testing.T) {
	tempDir := t.TempDir()
	writeConfigFile(t, tempDir, "callback:\n  port: 9001\n")

	loaded, err := LoadConfig(tempDir)
	require.NoError(t, err)

	// Only the named field is overridden; the sibling keeps its default
	assert.Equal(t, 9001, loaded.Callback.Port)
	assert.Equal(t, DefaultCallbackPath, loaded.Callback.Path)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	tempDir := t.TempDir()
	writeConfigFile(t, tempDir, "issuer: [unclosed")

	_, err := LoadConfig(tempDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading config")
}
