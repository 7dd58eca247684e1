package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dupbot/dupbot/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server().Addr())
	assert.Equal(t, "0.0.0.0:9090", cfg.Server().MetricsAddr())
	assert.Equal(t, config.DefaultEmbeddingsSize, cfg.Model().EmbeddingsSize())
	assert.Equal(t, config.DefaultMaxInputSize, cfg.Model().MaxInputSize())
	assert.Equal(t, config.DefaultSuggestionLimit, cfg.Suggestion().Limit())
	assert.InDelta(t, config.DefaultSuggestionFloor, cfg.Suggestion().ScoreFloor(), 1e-9)
	assert.Equal(t, config.LogFormatPretty, cfg.LogFormat())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "base.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth_token: tok
database:
  connection_string: sqlite://file::memory:?cache=shared
  max_connections: 3
server:
  port: 9999
github_api:
  webhook_secret: gh-secret
  comments_enabled: true
  bot_login: dup-bot
huggingface_api:
  webhook_secret: hf-secret
embedding_api:
  url: http://embed.local
suggestion:
  limit: 2
  score_floor: 0.85
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "tok", cfg.AuthToken())
	assert.Equal(t, 3, cfg.Database().MaxConnections())
	assert.Equal(t, 9999, cfg.Server().Port())
	assert.True(t, cfg.GitHub().CommentsEnabled())
	assert.False(t, cfg.HuggingFace().CommentsEnabled())
	assert.Equal(t, "dup-bot", cfg.GitHub().BotLogin())
	assert.Equal(t, 2, cfg.Suggestion().Limit())
	assert.InDelta(t, 0.85, cfg.Suggestion().ScoreFloor(), 1e-9)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "base.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 1234\n"), 0o600))

	t.Setenv("ISSUE_BOT_SERVER__PORT", "4321")
	t.Setenv("ISSUE_BOT_GITHUB_API__COMMENTS_ENABLED", "true")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4321, cfg.Server().Port())
	assert.True(t, cfg.GitHub().CommentsEnabled())
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.NoError(t, err)
}

func TestValidateReportsAllMissing(t *testing.T) {
	cfg := config.NewAppConfig()
	err := cfg.Validate()
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "auth_token")
	assert.Contains(t, err.Error(), "database.connection_string")
	assert.Contains(t, err.Error(), "embedding_api.url")
	assert.Contains(t, err.Error(), "github_api.webhook_secret")
	assert.Contains(t, err.Error(), "huggingface_api.webhook_secret")
}

func TestSlackIsConfigured(t *testing.T) {
	// Token and channel are enough; the endpoint URL has a default in the
	// Slack client.
	assert.True(t, config.NewSlackConfig("xoxb-1", "#triage", "").IsConfigured())
	assert.True(t, config.NewSlackConfig("xoxb-1", "#triage", "http://slack.local/api/chat.postMessage").IsConfigured())

	assert.False(t, config.NewSlackConfig("", "#triage", "").IsConfigured())
	assert.False(t, config.NewSlackConfig("xoxb-1", "", "").IsConfigured())
}

func TestApplyDoesNotMutateOriginal(t *testing.T) {
	base := config.NewAppConfigWithOptions(config.WithAuthToken("a"))
	derived := base.Apply(config.WithAuthToken("b"))

	assert.Equal(t, "a", base.AuthToken())
	assert.Equal(t, "b", derived.AuthToken())
}
