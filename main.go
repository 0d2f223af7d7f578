package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"github.com/urfave/cli/v2"

	telegoBot "newsboost-bot/bot"
	"newsboost-bot/config"
	"newsboost-bot/internal/auth"
	"newsboost-bot/internal/locales"
	"newsboost-bot/internal/pipeline"
	"newsboost-bot/internal/textpolicy"
)

func main() {
	app := &cli.App{
		Name:   "newsboost-bot",
		Usage:  "Republish Telegram channel posts with footer, credit and watermark",
		Action: run,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Start the channel bot (default)",
				Action: run,
			},
			{
				Name:  "compose",
				Usage: "Print the text the bot would publish for a post",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Usage: "Post text or caption", Required: true},
					&cli.StringFlag{Name: "signature", Usage: "Author signature"},
					&cli.BoolFlag{Name: "caption", Usage: "Apply the caption length limit"},
				},
				Action: composePreview,
			},
			{
				Name:  "dedup",
				Usage: "Inspect the processed-post store",
				Subcommands: []*cli.Command{
					{
						Name:      "check",
						Usage:     "Report whether a key (chat:msg, group:chat:id) was processed",
						ArgsUsage: "<key>",
						Action:    dedupCheck,
					},
				},
			},
			{
				Name:  "history",
				Usage: "List recently republished posts from MongoDB",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "chat", Usage: "Channel ID", Required: true},
					&cli.IntFlag{Name: "limit", Usage: "Number of entries", Value: 10},
				},
				Action: history,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads configuration, localization and Sentry shared by every command.
func setup() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if err := locales.Init(cfg.Locale); err != nil {
		return nil, fmt.Errorf("failed to initialize locales: %w", err)
	}
	err = sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.AppEnv,
		Release:     cfg.Version,
		Debug:       cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry.Init: %w", err)
	}
	return cfg, nil
}

func run(_ *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer sentry.Flush(2 * time.Second)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Creating context for application lifecycle
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("failed to create telego bot: %w", err)
	}

	res, err := openResources(ctx, cfg)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}
	defer res.Close()

	checker, err := auth.NewSelfChecker(ctx, bot, res.store)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	client := newTelegramClient(cfg, bot)
	selector, err := newSelector(cfg, client)
	if err != nil {
		return err
	}
	notifier := newNotifier(cfg)
	defer notifier.Wait()

	processor, err := pipeline.New(pipelineConfig(cfg), pipeline.Deps{
		Store:      res.store,
		Mapper:     res.mapper,
		Composer:   engine,
		Media:      newCoordinator(cfg, client),
		Delivery:   selector,
		Automation: checker,
		PostLog:    res.postLog,
		Fanout:     notifier,
		Safety:     safetyFilter(cfg),
	})
	if err != nil {
		return err
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"channel_post"},
	})
	if err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	appBot, err := telegoBot.New(telegoBot.BotDeps{
		UpdatesChan: updates,
		Dispatcher:  processor,
		SelfID:      checker.SelfID(),
		Debug:       cfg.Debug,
	})
	if err != nil {
		return err
	}

	log.Printf("Watching channels %v", cfg.SourceChannelIDs)
	appBot.Start(ctx)
	log.Println("Bot shutdown complete.")
	return nil
}

func composePreview(c *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	target := textpolicy.TargetMessage
	if c.Bool("caption") {
		target = textpolicy.TargetCaption
	}
	out := engine.Compose(c.String("text"), c.String("signature"), target)
	fmt.Fprintln(c.App.Writer, out)
	fmt.Fprintf(c.App.Writer, "\n(%d of %d visible characters)\n", textpolicy.VisibleLength(out), target.Limit())
	return nil
}

func dedupCheck(c *cli.Context) error {
	key := c.Args().First()
	if key == "" {
		return cli.Exit("missing <key>", 2)
	}
	cfg, err := setup()
	if err != nil {
		return err
	}
	res, err := openResources(c.Context, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	seen, err := res.store.HasBeenProcessed(c.Context, key)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s processed=%t (backend %s)\n", key, seen, cfg.Dedup.Backend)
	return nil
}

func history(c *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	if cfg.MongoDBURI == "" {
		return cli.Exit("MONGODB_URI is not set", 1)
	}
	res, err := openResources(c.Context, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	entries, err := res.posts.RecentPosts(c.Context, c.Int64("chat"), c.Int("limit"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(c.App.Writer, "%s  %-18s %-11s src=%v pub=%v\n",
			e.PublishedAt.Format(time.RFC3339), e.Mode, e.MessageType, e.SourceIDs, e.PublishedIDs)
	}
	return nil
}
