package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsboost-bot/config"
	"newsboost-bot/internal/delivery"
	"newsboost-bot/internal/locales"
	"newsboost-bot/internal/textpolicy"
)

func TestNewEngineBuildsLocalizedFooter(t *testing.T) {
	require.NoError(t, locales.Init("en"))
	cfg := &config.Config{Text: config.TextConfig{
		FooterVisible:   true,
		FooterLinked:    true,
		FooterOneLine:   true,
		LinkX:           "https://x.com/news",
		CreditSignature: true,
		HTML:            true,
	}}

	engine, err := newEngine(cfg)
	require.NoError(t, err)

	out := engine.Compose("Hi", "Dana", textpolicy.TargetMessage)
	assert.Contains(t, out, "Hi\n— Dana")
	assert.Contains(t, out, `Follow us: <a href="https://x.com/news">X</a>`)
	assert.NotContains(t, out, "Facebook", "links without a URL are skipped")
}

func TestNewEngineHiddenFooter(t *testing.T) {
	require.NoError(t, locales.Init("en"))
	cfg := &config.Config{Text: config.TextConfig{FooterVisible: false, FooterText: "ignored"}}

	engine, err := newEngine(cfg)
	require.NoError(t, err)
	assert.Equal(t, "plain", engine.Compose("plain", "", textpolicy.TargetMessage))
}

func TestNewSelectorRejectsUnknownStrategy(t *testing.T) {
	cfg := &config.Config{Delivery: config.DeliveryConfig{SingleMedia: "teleport", Fallback: "repost"}}
	_, err := newSelector(cfg, nil)
	assert.Error(t, err)

	cfg.Delivery.SingleMedia = string(delivery.ModeEdit)
	_, err = newSelector(cfg, nil)
	assert.NoError(t, err)
}

func TestOpenResourcesFileBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Dedup: config.DedupConfig{
		Backend:   "file",
		File:      filepath.Join(dir, "seen.json"),
		MapFile:   filepath.Join(dir, "map.json"),
		Retention: 10,
	}}

	ctx := context.Background()
	res, err := openResources(ctx, cfg)
	require.NoError(t, err)
	defer res.Close()

	fresh, err := res.store.TryMark(ctx, "-1:1")
	require.NoError(t, err)
	assert.True(t, fresh)
	require.NotNil(t, res.mapper)
	assert.Nil(t, res.posts)
}

func TestOpenResourcesMongoBackendRequiresURI(t *testing.T) {
	cfg := &config.Config{Dedup: config.DedupConfig{Backend: "mongo"}}
	_, err := openResources(context.Background(), cfg)
	assert.Error(t, err)
}

func TestPipelineConfig(t *testing.T) {
	cfg := &config.Config{
		SourceChannelIDs: []int64{-5},
		MaxPostAge:       time.Minute,
		Album:            config.AlbumConfig{Debounce: time.Second, MaxSize: 10},
	}
	pc := pipelineConfig(cfg)
	assert.Equal(t, []int64{-5}, pc.SourceChannelIDs)
	assert.Equal(t, time.Second, pc.AlbumDebounce)
	assert.Equal(t, 10, pc.AlbumMaxSize)
}
