package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration. It is built once by LoadConfig
// and passed by value or pointer into constructors; nothing else reads the environment.
type Config struct {
	AppEnv          string
	Debug           bool
	Version         string
	BotToken        string
	SentryDSN       string
	MongoDBURI      string
	MongoDBDatabase string
	Locale          string

	// SourceChannelIDs are the channels whose posts are processed.
	SourceChannelIDs  []int64
	MaxPostAge        time.Duration
	ContentHashDedup  bool
	ProcessingTimeout time.Duration

	Dedup     DedupConfig
	Text      TextConfig
	Watermark WatermarkConfig
	Album     AlbumConfig
	Retry     RetryConfig
	Delivery  DeliveryConfig
	Fanout    FanoutConfig
}

// DedupConfig selects and sizes the processed-key store.
type DedupConfig struct {
	Backend     string
	File        string
	MapFile     string
	Retention   int
	PostgresURL string
}

// TextConfig drives footer, credit and keyword composition.
type TextConfig struct {
	FooterVisible   bool
	FooterText      string
	FooterLinked    bool
	FooterOneLine   bool
	LinkX           string
	LinkFacebook    string
	LinkWhatsApp    string
	LinkInstagram   string
	LinkTikTok      string
	SignaturePhrase string
	SkipIfHashtag   bool
	SkipHashtags    []string
	CreditSignature bool
	KeywordsFile    string
	KeywordsPerPost int
	HiddenMode      string
	HTML            bool
}

// WatermarkConfig controls the media pipeline.
type WatermarkConfig struct {
	Enabled      bool
	Image        string
	Position     string
	MarginPx     int
	WidthPercent float64
	FFmpegPath   string
	TempDir      string
	MaxFileBytes int64
}

// AlbumConfig controls the album aggregator.
type AlbumConfig struct {
	Debounce time.Duration
	MaxSize  int
}

// RetryConfig bounds rate-limit retries.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Growth      string
}

// DeliveryConfig selects publishing strategies.
type DeliveryConfig struct {
	SingleMedia       string
	Fallback          string
	RepostDelayMin    time.Duration
	RepostDelayMax    time.Duration
	DisableWebPreview bool
	RequestsPerSecond int
}

// FanoutConfig points at the automation webhook.
type FanoutConfig struct {
	WebhookURL     string
	Timeout        time.Duration
	Attempts       int
	SafetyWords    []string
	SafetyOverride string
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	p := &parser{}
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Debug:           p.bool("DEBUG", false),
		Version:         getEnv("VERSION", "dev"),
		BotToken:        getEnv("TELEGRAM_BOT_TOKEN", getEnv("BOT_TOKEN", "")),
		SentryDSN:       getEnv("SENTRY_DSN", ""),
		MongoDBURI:      getEnv("MONGODB_URI", ""),
		MongoDBDatabase: getEnv("MONGODB_DATABASE", "newsboost"),
		Locale:          getEnv("LOCALE", "en"),

		SourceChannelIDs:  p.int64List("SOURCE_CHANNEL_ID", getEnv("TARGET_CHANNEL_ID", getEnv("CHANNEL_ID", ""))),
		MaxPostAge:        p.duration("MAX_POST_AGE", 10*time.Minute),
		ContentHashDedup:  p.bool("CONTENT_HASH_DEDUP", true),
		ProcessingTimeout: p.duration("PROCESSING_TIMEOUT", 2*time.Minute),

		Dedup: DedupConfig{
			Backend:     strings.ToLower(getEnv("DEDUP_BACKEND", "file")),
			File:        getEnv("DEDUP_FILE", "./data/seen.json"),
			MapFile:     getEnv("DEDUP_MAP_FILE", "./data/message_map.json"),
			Retention:   p.int("DEDUP_RETENTION", 4000),
			PostgresURL: getEnv("DATABASE_URL", ""),
		},
		Text: TextConfig{
			FooterVisible:   p.bool("FOOTER_VISIBLE_TG", true),
			FooterText:      getEnv("FOOTER_ONELINE", getEnv("FOOTER_TEXT", "")),
			FooterLinked:    p.bool("FOOTER_LINKED", true),
			FooterOneLine:   p.bool("FOOTER_SINGLE_LINE", true),
			LinkX:           getEnv("LINK_X", ""),
			LinkFacebook:    getEnv("LINK_FB", ""),
			LinkWhatsApp:    getEnv("LINK_WA", ""),
			LinkInstagram:   getEnv("LINK_IG", ""),
			LinkTikTok:      getEnv("LINK_TT", ""),
			SignaturePhrase: getEnv("FOOTER_SIGNATURE_PHRASE", ""),
			SkipIfHashtag:   p.bool("SKIP_IF_HASHTAG", true),
			SkipHashtags:    list(getEnv("SKIP_HASHTAGS", "")),
			CreditSignature: p.bool("CREDIT_SIGNATURE", true),
			KeywordsFile:    getEnv("KEYWORDS_FILE", "./data/keywords.txt"),
			KeywordsPerPost: p.int("KEYWORDS_PER_POST", 0),
			HiddenMode:      hiddenMode(p.bool("ADD_SPOILER_KEYWORDS", true)),
			HTML:            true,
		},
		Watermark: WatermarkConfig{
			Enabled:      p.bool("WM_ENABLE", false),
			Image:        getEnv("WM_IMAGE", "./assets/watermark.png"),
			Position:     getEnv("WM_POS", "top-right"),
			MarginPx:     p.int("WM_MARGIN", 20),
			WidthPercent: p.float("WM_WIDTH_PCT", 18),
			FFmpegPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
			TempDir:      getEnv("TMP_DIR", ""),
			MaxFileBytes: int64(p.int("WM_MAX_FILE_MB", 20)) << 20,
		},
		Album: AlbumConfig{
			Debounce: p.duration("ALBUM_DEBOUNCE", 1200*time.Millisecond),
			MaxSize:  p.int("ALBUM_MAX_SIZE", 10),
		},
		Retry: RetryConfig{
			MaxAttempts: p.int("RETRY_MAX_ATTEMPTS", 4),
			BaseDelay:   p.duration("RETRY_BASE_DELAY", time.Second),
			MaxDelay:    p.duration("RETRY_MAX_DELAY", time.Minute),
			Growth:      getEnv("RETRY_GROWTH", "exponential"),
		},
		Delivery: DeliveryConfig{
			SingleMedia:       getEnv("DELIVERY_STRATEGY", "edit"),
			Fallback:          getEnv("EDIT_FALLBACK", "repost"),
			RepostDelayMin:    p.duration("REPOST_DELAY_MIN", 0),
			RepostDelayMax:    p.duration("REPOST_DELAY_MAX", 0),
			DisableWebPreview: p.bool("DISABLE_WEB_PREVIEW", true),
			RequestsPerSecond: p.int("TELEGRAM_RPS", 20),
		},
		Fanout: FanoutConfig{
			WebhookURL:     getEnv("MAKE_WEBHOOK_URL", ""),
			Timeout:        p.duration("FANOUT_TIMEOUT", 15*time.Second),
			Attempts:       p.int("FANOUT_ATTEMPTS", 2),
			SafetyWords:    list(getEnv("FANOUT_BLOCKED_WORDS", "")),
			SafetyOverride: getEnv("FANOUT_SAFE_HASHTAG", "#SAFEPOST"),
		},
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}

	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}
	if cfg.Watermark.Enabled {
		if _, err := os.Stat(cfg.Watermark.Image); err != nil {
			log.Printf("Warning: watermark image %s is not readable (%v), watermarking disabled", cfg.Watermark.Image, err)
			cfg.Watermark.Enabled = false
		}
	}
	return cfg, nil
}

// Validate checks the settings required to run the bot.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, fmt.Errorf("TELEGRAM_BOT_TOKEN is required"))
	}
	if len(c.SourceChannelIDs) == 0 {
		errs = append(errs, fmt.Errorf("SOURCE_CHANNEL_ID is required"))
	}
	switch c.Dedup.Backend {
	case "file", "memory":
	case "mongo":
		if c.MongoDBURI == "" {
			errs = append(errs, fmt.Errorf("MONGODB_URI is required for DEDUP_BACKEND=mongo"))
		}
	case "postgres":
		if c.Dedup.PostgresURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for DEDUP_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DEDUP_BACKEND %q", c.Dedup.Backend))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Watermark.WidthPercent <= 0 || c.Watermark.WidthPercent > 100 {
		errs = append(errs, fmt.Errorf("WM_WIDTH_PCT must be in (0, 100]"))
	}
	if c.Delivery.RepostDelayMax < c.Delivery.RepostDelayMin {
		errs = append(errs, fmt.Errorf("REPOST_DELAY_MAX must not be below REPOST_DELAY_MIN"))
	}
	return errors.Join(errs...)
}

// IsSourceChannel reports whether chatID is one of the watched channels.
func (c *Config) IsSourceChannel(chatID int64) bool {
	for _, id := range c.SourceChannelIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func hiddenMode(spoiler bool) string {
	if spoiler {
		return "spoiler"
	}
	return "zerowidth"
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func list(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects conversion errors so that every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) bool(key string, def bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) int(key string, def int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

// duration accepts Go durations ("1.5s") or plain milliseconds ("1500").
func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) int64List(key, def string) []int64 {
	var ids []int64
	for _, part := range list(getEnv(key, def)) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
