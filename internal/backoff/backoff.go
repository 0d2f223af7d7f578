package backoff

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// RateLimitError is the distinguished signal that an operation may be retried.
// RetryAfter is the server-suggested wait, zero when unknown.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err carries a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// RetryAfter returns the server hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// ParseRetryAfter extracts the "retry after N" hint (seconds) from an error string,
// e.g. "telego: sendMediaGroup: api: 429 Too Many Requests: retry after 5".
func ParseRetryAfter(errorString string) (time.Duration, bool) {
	fields := strings.Fields(errorString)
	for i := 0; i+2 < len(fields); i++ {
		if !strings.EqualFold(fields[i], "retry") || !strings.EqualFold(fields[i+1], "after") {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimRight(fields[i+2], ".,;)"))
		if err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second, true
		}
	}
	return 0, false
}

// Growth is how the base delay scales with the attempt number.
type Growth string

const (
	Exponential Growth = "exponential"
	Linear      Growth = "linear"
)

// Config bounds the controller.
type Config struct {
	MaxAttempts uint
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Growth      Growth
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: time.Minute, Growth: Exponential}
}

// Controller retries operations that fail with a RateLimitError.
// Every other error is returned after the first attempt.
type Controller struct {
	cfg Config
}

// New creates a controller, filling zero fields from DefaultConfig.
func New(cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Growth == "" {
		cfg.Growth = def.Growth
	}
	return &Controller{cfg: cfg}
}

// Delay returns the wait before retry number n (0-based):
// max(server hint, base * multiplier(n)), capped at MaxDelay.
func (c *Controller) Delay(n uint, err error) time.Duration {
	mult := time.Duration(n + 1)
	if c.cfg.Growth == Exponential {
		mult = time.Duration(1) << min(n, 20)
	}
	d := c.cfg.BaseDelay * mult
	if hint := RetryAfter(err); hint > d {
		d = hint
	}
	if d > c.cfg.MaxDelay {
		d = c.cfg.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, fails with a non-rate-limit error, or
// MaxAttempts is exhausted.
func (c *Controller) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			return fn(ctx)
		},
		retry.Attempts(c.cfg.MaxAttempts),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			return c.Delay(n, err)
		}),
		retry.MaxDelay(c.cfg.MaxDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRateLimited),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[Backoff Op:%s] Rate limited (attempt %d/%d): %v", op, n+1, c.cfg.MaxAttempts, err)
		}),
	)
	if err != nil && IsRateLimited(err) {
		return fmt.Errorf("%s: gave up after %d attempt(s): %w", op, attempts, err)
	}
	return err
}

// Call is Do for operations that return a value.
func Call[T any](ctx context.Context, c *Controller, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := c.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
