package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the minimum environment needed for NewConfig to succeed
func setRequiredEnv(t *testing.T) {
	t.Setenv("APP_GH_OWNER", "octo-student")
	t.Setenv("APP_GH_TOKEN", "ghp_token")
}

func TestNewConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, "main", cfg.GhBranch)
	assert.Equal(t, "student-repo-", cfg.RepoPrefix)
	assert.Equal(t, "/tmp/uploads", cfg.UploadDir)
	assert.Equal(t, 2*time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 8*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 30*time.Second, cfg.OutboundTimeout)
	assert.True(t, cfg.GhTokenAuth())
	assert.False(t, cfg.GhAppAuth())
	assert.True(t, cfg.DevMode(), "no secret set should mean dev mode")
}

func TestNewConfigRequiresOwner(t *testing.T) {
	t.Setenv("APP_GH_OWNER", "")
	t.Setenv("APP_GH_TOKEN", "ghp_token")

	_, err := NewConfig()
	assert.Error(t, err, "NewConfig should have responded with an error")
}

func TestNewConfigRequiresGitHubCredentials(t *testing.T) {
	t.Setenv("APP_GH_OWNER", "octo-student")
	t.Setenv("APP_GH_TOKEN", "")

	_, err := NewConfig()
	assert.Error(t, err, "no GitHub credential should fail")

	// Partial GitHub App credentials are not enough
	t.Setenv("APP_GH_APP_ID", "12")
	t.Setenv("APP_GH_INSTALLATION_ID", "34")

	_, err = NewConfig()
	assert.Error(t, err, "incomplete GitHub App credentials should fail")

	t.Setenv("APP_GH_PRIVATE_KEY_PATH", "gh.private-key.pem")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.True(t, cfg.GhAppAuth())
	assert.Equal(t, int64(12), cfg.GhAppID)
	assert.Equal(t, int64(34), cfg.GhInstallationID)
}

func TestNewConfigRejectsInvertedRetryDelays(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_RETRY_BASE_DELAY", "10s")
	t.Setenv("APP_RETRY_MAX_DELAY", "1s")

	_, err := NewConfig()
	assert.Error(t, err)
}

func TestConfigStringRedactsSecrets(t *testing.T) {
	cfg := Config{
		Secret:            "shh",
		GhToken:           "ghp_token",
		AipipeAPIKey:      "aipipe-key",
		HuggingfaceAPIKey: "",
		GhOwner:           "octo-student",
	}

	str, err := cfg.String()
	require.NoError(t, err)

	assert.NotContains(t, str, "shh")
	assert.NotContains(t, str, "ghp_token")
	assert.NotContains(t, str, "aipipe-key")
	assert.Contains(t, str, "REDACTED_NOT_EMPTY")
	assert.Contains(t, str, "octo-student")

	// Receiver must be untouched
	assert.Equal(t, "shh", cfg.Secret)
	assert.False(t, cfg.DevMode())
}
