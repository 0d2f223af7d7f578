package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("SOURCE_CHANNEL_ID", "-1001, -1002")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []int64{-1001, -1002}, cfg.SourceChannelIDs)
	assert.True(t, cfg.IsSourceChannel(-1002))
	assert.False(t, cfg.IsSourceChannel(-1))
	assert.Equal(t, "file", cfg.Dedup.Backend)
	assert.Equal(t, 4000, cfg.Dedup.Retention)
	assert.Equal(t, 1200*time.Millisecond, cfg.Album.Debounce)
	assert.Equal(t, 18.0, cfg.Watermark.WidthPercent)
	assert.Equal(t, 20, cfg.Watermark.MarginPx)
	assert.Equal(t, "spoiler", cfg.Text.HiddenMode)
}

func TestLoadConfigLegacyNames(t *testing.T) {
	t.Setenv("BOT_TOKEN", "legacy")
	t.Setenv("TARGET_CHANNEL_ID", "-1003")
	t.Setenv("ADD_SPOILER_KEYWORDS", "false")
	t.Setenv("ALBUM_DEBOUNCE", "1500")
	t.Setenv("FOOTER_ONELINE", "Follow us: X|FB")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.BotToken)
	assert.Equal(t, []int64{-1003}, cfg.SourceChannelIDs)
	assert.Equal(t, "zerowidth", cfg.Text.HiddenMode)
	assert.Equal(t, 1500*time.Millisecond, cfg.Album.Debounce)
	assert.Equal(t, "Follow us: X|FB", cfg.Text.FooterText)
}

func TestLoadConfigReportsAllParseErrors(t *testing.T) {
	t.Setenv("DEBUG", "maybe")
	t.Setenv("WM_MARGIN", "wide")
	t.Setenv("SOURCE_CHANNEL_ID", "abc")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEBUG")
	assert.Contains(t, err.Error(), "WM_MARGIN")
	assert.Contains(t, err.Error(), "SOURCE_CHANNEL_ID")
}

func TestValidate(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("SOURCE_CHANNEL_ID", "")
	t.Setenv("DEDUP_BACKEND", "postgres")
	t.Setenv("WM_ENABLE", "true")
	t.Setenv("WM_IMAGE", "/does/not/exist.png")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Watermark.Enabled, "missing watermark image disables watermarking")

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
	assert.Contains(t, err.Error(), "SOURCE_CHANNEL_ID")
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
