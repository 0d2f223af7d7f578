package main

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/mongo"

	"newsboost-bot/config"
	"newsboost-bot/internal/backoff"
	"newsboost-bot/internal/database"
	"newsboost-bot/internal/dedup"
	"newsboost-bot/internal/delivery"
	"newsboost-bot/internal/fanout"
	"newsboost-bot/internal/locales"
	"newsboost-bot/internal/media"
	"newsboost-bot/internal/pipeline"
	"newsboost-bot/internal/telegram"
	"newsboost-bot/internal/textpolicy"
	"newsboost-bot/pkg/telegoapi"
)

// resources are the persistence handles opened for a command.
type resources struct {
	store   dedup.Store
	mapper  dedup.Mapper
	postLog database.PostLogger
	posts   *database.MongoPostLogger
	client  *mongo.Client
}

func openResources(ctx context.Context, cfg *config.Config) (*resources, error) {
	res := &resources{postLog: database.NopPostLogger{}}

	var db *mongo.Database
	if cfg.MongoDBURI != "" {
		client, mdb, err := database.ConnectDB(ctx, cfg.MongoDBURI, cfg.MongoDBDatabase)
		if err != nil {
			return nil, err
		}
		res.client, db = client, mdb
		posts, err := database.NewMongoPostLogger(ctx, db)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.posts, res.postLog = posts, posts
	}

	retention := cfg.Dedup.Retention
	var (
		store dedup.Store
		err   error
	)
	switch cfg.Dedup.Backend {
	case "memory":
		store = dedup.NewMemoryStore(retention)
	case "mongo":
		if db == nil {
			err = fmt.Errorf("MONGODB_URI is not set")
			break
		}
		store, err = dedup.NewMongoStore(ctx, db, retention)
	case "postgres":
		store, err = dedup.OpenPostgresStore(ctx, cfg.Dedup.PostgresURL, retention)
	default:
		store, err = dedup.NewFileStore(cfg.Dedup.File, retention)
	}
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("failed to open %s dedup store: %w", cfg.Dedup.Backend, err)
	}
	res.store = store

	switch {
	case db != nil:
		res.mapper = dedup.NewMongoMapper(db)
	case cfg.Dedup.MapFile != "":
		mapper, err := dedup.NewFileMapper(cfg.Dedup.MapFile, retention)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("failed to open message map: %w", err)
		}
		res.mapper = mapper
	}
	log.Printf("Dedup backend: %s (retention %d)", cfg.Dedup.Backend, retention)
	return res, nil
}

// Close releases every opened handle.
func (r *resources) Close() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			log.Printf("Error closing dedup store: %v", err)
		}
	}
	if r.client != nil {
		if err := r.client.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		} else {
			log.Println("Disconnected from MongoDB.")
		}
	}
}

func newEngine(cfg *config.Config) (*textpolicy.Engine, error) {
	t := cfg.Text
	footer := ""
	if t.FooterVisible {
		footer = textpolicy.BuildFooter(textpolicy.FooterConfig{
			Text:   t.FooterText,
			Header: locales.Text(locales.MsgFooterHeader),
			Links: []textpolicy.Link{
				{Label: locales.Text(locales.MsgLinkX), URL: t.LinkX},
				{Label: locales.Text(locales.MsgLinkFacebook), URL: t.LinkFacebook},
				{Label: locales.Text(locales.MsgLinkWhatsApp), URL: t.LinkWhatsApp},
				{Label: locales.Text(locales.MsgLinkInsta), URL: t.LinkInstagram},
				{Label: locales.Text(locales.MsgLinkTikTok), URL: t.LinkTikTok},
			},
			Linked:  t.FooterLinked,
			OneLine: t.FooterOneLine,
			HTML:    t.HTML,
		})
	}

	rotator, err := textpolicy.LoadKeywordRotator(t.KeywordsFile)
	if err != nil {
		return nil, err
	}
	if t.KeywordsPerPost > 0 && rotator.Len() == 0 {
		log.Printf("Warning: KEYWORDS_PER_POST=%d but %s has no keywords", t.KeywordsPerPost, t.KeywordsFile)
	}

	policy := textpolicy.Policy{
		Footer:          footer,
		SignaturePhrase: t.SignaturePhrase,
		SkipIfHashtag:   t.SkipIfHashtag,
		SkipHashtags:    t.SkipHashtags,
		CreditSignature: t.CreditSignature,
		CreditPrefix:    locales.Text(locales.MsgCreditPrefix),
		HTML:            t.HTML,
	}
	if t.KeywordsPerPost > 0 {
		policy.HiddenMode = textpolicy.HiddenMode(t.HiddenMode)
	}
	return textpolicy.NewEngine(policy, rotator, t.KeywordsPerPost), nil
}

func newTelegramClient(cfg *config.Config, bot telegoapi.BotAPI) *telegram.Client {
	parseMode := ""
	if cfg.Text.HTML {
		parseMode = "HTML"
	}
	return telegram.New(bot, telegram.Options{
		RequestsPerSecond: cfg.Delivery.RequestsPerSecond,
		ParseMode:         parseMode,
		DisableWebPreview: cfg.Delivery.DisableWebPreview,
		SupportsStreaming: true,
		MaxDownloadBytes:  cfg.Watermark.MaxFileBytes,
	})
}

func newCoordinator(cfg *config.Config, client *telegram.Client) *media.Coordinator {
	wm := cfg.Watermark
	if !wm.Enabled {
		return media.NewCoordinator(media.Config{}, client, nil)
	}
	pos, err := media.ParsePosition(wm.Position)
	if err != nil {
		log.Printf("Warning: %v, using %s", err, media.TopRight)
		pos = media.TopRight
	}
	transformer := media.Watermarker{
		Images: media.ImagingTransformer{JPEGQuality: 90},
		Videos: media.NewFFmpegTransformer(wm.FFmpegPath),
	}
	return media.NewCoordinator(media.Config{
		Enabled: true,
		Overlay: media.Overlay{
			Watermark:    wm.Image,
			Position:     pos,
			MarginPx:     wm.MarginPx,
			WidthPercent: wm.WidthPercent,
		},
		TempDir: wm.TempDir,
	}, client, transformer)
}

func newSelector(cfg *config.Config, client *telegram.Client) (*delivery.Selector, error) {
	single, err := delivery.ParseMode(cfg.Delivery.SingleMedia)
	if err != nil {
		return nil, fmt.Errorf("DELIVERY_STRATEGY: %w", err)
	}
	fallback, err := delivery.ParseMode(cfg.Delivery.Fallback)
	if err != nil {
		return nil, fmt.Errorf("EDIT_FALLBACK: %w", err)
	}
	controller := backoff.New(backoff.Config{
		MaxAttempts: uint(cfg.Retry.MaxAttempts),
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Growth:      backoff.Growth(cfg.Retry.Growth),
	})
	return delivery.NewSelector(client, controller, delivery.Config{
		SingleMedia:    single,
		Fallback:       fallback,
		RepostDelayMin: cfg.Delivery.RepostDelayMin,
		RepostDelayMax: cfg.Delivery.RepostDelayMax,
	}), nil
}

func newNotifier(cfg *config.Config) *fanout.Notifier {
	if cfg.Fanout.WebhookURL == "" {
		log.Println("MAKE_WEBHOOK_URL is not set, fanout disabled")
	}
	return fanout.NewNotifier(fanout.Config{
		URL:      cfg.Fanout.WebhookURL,
		Timeout:  cfg.Fanout.Timeout,
		Attempts: uint(cfg.Fanout.Attempts),
	})
}

func safetyFilter(cfg *config.Config) fanout.SafetyFilter {
	return fanout.SafetyFilter{Words: cfg.Fanout.SafetyWords, Override: cfg.Fanout.SafetyOverride}
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		SourceChannelIDs:  cfg.SourceChannelIDs,
		MaxPostAge:        cfg.MaxPostAge,
		ContentHashDedup:  cfg.ContentHashDedup,
		ProcessingTimeout: cfg.ProcessingTimeout,
		AlbumDebounce:     cfg.Album.Debounce,
		AlbumMaxSize:      cfg.Album.MaxSize,
		Debug:             cfg.Debug,
	}
}
