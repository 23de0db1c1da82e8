package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tario-you/pollevbot/internal/models"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pollevbot.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "cookies", config.Login.Mode)
	assert.Equal(t, 25*time.Second, config.Watch.WaitBudget)
	assert.Equal(t, 5*time.Second, config.Watch.Grace)
	assert.Equal(t, time.Duration(0), config.Watch.Lifetime)
	assert.Equal(t, 5*time.Second, config.Respond.OpenWait)
	assert.Equal(t, "./data", config.Storage.Badger.Path)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadFromFiles(t *testing.T) {
	path := writeConfigFile(t, `
host = "prof101"

[login]
mode = "login"
username = "alice"
password = "hunter2"
type = "sso"

[watch]
lifetime = "2h"

[respond]
min_option = 1
max_option = 3
`)

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "prof101", config.Host)
	assert.Equal(t, "login", config.Login.Mode)
	assert.Equal(t, "sso", config.Login.Type)
	assert.Equal(t, 2*time.Hour, config.Watch.Lifetime)
	assert.Equal(t, 1, config.Respond.MinOption)
	assert.Equal(t, 3, config.Respond.MaxOption)
	// Untouched sections keep their defaults
	assert.Equal(t, 25*time.Second, config.Watch.WaitBudget)
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	first := writeConfigFile(t, `host = "prof101"`)
	second := writeConfigFile(t, `host = "prof202"`)

	config, err := LoadFromFiles(first, second)
	require.NoError(t, err)
	assert.Equal(t, "prof202", config.Host)
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("POLLEVBOT_HOST", "env-host")
	t.Setenv("POLLEVBOT_LOGIN_MODE", "token")
	t.Setenv("POLLEVBOT_TOKEN", "env-token")
	t.Setenv("POLLEVBOT_LIFETIME", "90m")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "env-host", config.Host)
	assert.Equal(t, "token", config.Login.Mode)
	assert.Equal(t, "env-token", config.Login.Token)
	assert.Equal(t, 90*time.Minute, config.Watch.Lifetime)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	config.Host = "from-file"

	ApplyFlagOverrides(config, "from-flag", "token", "", "tok-1")

	assert.Equal(t, "from-flag", config.Host)
	assert.Equal(t, "token", config.Login.Mode)
	assert.Equal(t, "tok-1", config.Login.Token)
}

func TestConfig_Validate(t *testing.T) {
	config := NewDefaultConfig()
	config.Host = "prof101"
	config.Login.Cookies = "pe_auth_token=abc"

	assert.NoError(t, config.Validate())
}

func TestConfig_ValidateRequiresHost(t *testing.T) {
	config := NewDefaultConfig()
	config.Login.Cookies = "pe_auth_token=abc"

	assert.Error(t, config.Validate())
}

func TestConfig_ValidateRejectsEmptyCredential(t *testing.T) {
	config := NewDefaultConfig()
	config.Host = "prof101"
	// cookies mode with no cookie material

	assert.Error(t, config.Validate())
}

func TestConfig_Credential(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantKind models.CredentialKind
		wantErr  bool
	}{
		{
			name: "cookies mode",
			mutate: func(c *Config) {
				c.Login.Mode = "cookies"
				c.Login.Cookies = "pe_auth_token=abc; pollev_visitor=v"
			},
			wantKind: models.CredentialCookies,
		},
		{
			name: "token mode",
			mutate: func(c *Config) {
				c.Login.Mode = "token"
				c.Login.Token = "fh-token"
			},
			wantKind: models.CredentialToken,
		},
		{
			name: "login mode",
			mutate: func(c *Config) {
				c.Login.Mode = "login"
				c.Login.Username = "alice"
				c.Login.Password = "hunter2"
				c.Login.Type = "native"
			},
			wantKind: models.CredentialLogin,
		},
		{
			name: "unknown mode",
			mutate: func(c *Config) {
				c.Login.Mode = "magic"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			config.Host = "prof101"
			tt.mutate(config)

			cred, err := config.Credential()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, cred.Kind)
		})
	}
}
