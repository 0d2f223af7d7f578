package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"newsboost-bot/internal/media"
	"newsboost-bot/internal/posts"
)

// Client is the set of platform operations the pipeline needs.
// Implementations return *backoff.RateLimitError for rate limiting and
// *PlatformError for every other API failure.
type Client interface {
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error
	EditMedia(ctx context.Context, chatID int64, messageID int, item media.Artifact, caption string) error
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendMedia(ctx context.Context, chatID int64, item media.Artifact, caption string) (int, error)
	// SendMediaGroup publishes items as one album; caption goes on the first item.
	SendMediaGroup(ctx context.Context, chatID int64, items []media.Artifact, caption string) ([]int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	DownloadMedia(ctx context.Context, ref posts.MediaRef, dst string) error
}

// PlatformError is a non-retryable API failure.
type PlatformError struct {
	Method      string
	Code        int
	Description string
	Err         error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Method, e.Code, e.Description)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// IsNotModified reports an edit that left the message unchanged.
func IsNotModified(err error) bool {
	var pe *PlatformError
	return errors.As(err, &pe) && strings.Contains(strings.ToLower(pe.Description), "message is not modified")
}

// IsMessageGone reports that the target message no longer exists.
func IsMessageGone(err error) bool {
	var pe *PlatformError
	if !errors.As(err, &pe) {
		return false
	}
	d := strings.ToLower(pe.Description)
	return strings.Contains(d, "message to delete not found") || strings.Contains(d, "message to edit not found")
}
