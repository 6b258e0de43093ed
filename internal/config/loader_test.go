package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("DOGGO_TEST_KEY", "sk-live")

	assert.Equal(t, "key: sk-live", expandEnv("key: ${DOGGO_TEST_KEY}"))
	assert.Equal(t, "key: sk-live", expandEnv("key: ${DOGGO_TEST_KEY:fallback}"))
	assert.Equal(t, "url: http://x:1", expandEnv("url: ${DOGGO_UNSET_KEY:http://x:1}"))
	assert.Equal(t, "v: ${DOGGO_UNSET_KEY}", expandEnv("v: ${DOGGO_UNSET_KEY}"))
}

func TestLoadFromMergesEnvFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	t.Setenv("DOGGO_TEST_ANTHROPIC", "ak-123")

	base := `
llm:
  default_model: opus
  providers:
    anthropic:
      api_key: ${DOGGO_TEST_ANTHROPIC}
chat:
  history_limit: 20
`
	override := `
chat:
  history_limit: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(base), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.test.yaml"), []byte(override), 0o600))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "opus", cfg.LLM.DefaultModel)
	assert.Equal(t, "ak-123", cfg.LLM.Providers["anthropic"].APIKey)
	assert.Equal(t, 8, cfg.Chat.HistoryLimit)
	assert.Equal(t, 4096, cfg.Chat.DefaultMaxTokens)
	assert.InDelta(t, 1.0, cfg.Chat.DefaultTemperature, 1e-9)
	assert.Equal(t, int64(10<<20), cfg.Attachments.MaxFileSize)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "X-User-ID", cfg.Security.UserHeader)
}

func TestLoadFromMissingBaseFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
}
