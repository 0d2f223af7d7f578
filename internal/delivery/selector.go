package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"newsboost-bot/internal/backoff"
	"newsboost-bot/internal/channel"
	"newsboost-bot/internal/media"
)

// Mode is a delivery strategy.
type Mode string

const (
	// ModeEdit rewrites the original message in place.
	ModeEdit Mode = "edit"
	// ModeReplace deletes the original, then sends the new message.
	ModeReplace Mode = "replace"
	// ModeRepostThenDelete sends the new message, then deletes the original.
	ModeRepostThenDelete Mode = "repost-then-delete"
	// ModeNone disables the fallback after a failed edit.
	ModeNone Mode = "none"
)

// ParseMode accepts the configuration spellings of a mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "edit":
		return ModeEdit, nil
	case "replace", "delete-then-send":
		return ModeReplace, nil
	case "repost", "repost-then-delete", "send-then-delete":
		return ModeRepostThenDelete, nil
	case "none", "":
		return ModeNone, nil
	}
	return "", fmt.Errorf("unknown delivery mode %q", s)
}

// ErrDeleteFailed marks a replace that was aborted because the original could not be removed.
var ErrDeleteFailed = errors.New("original could not be deleted")

// Content is the fully resolved payload of one post or album.
type Content struct {
	ChatID int64
	// SourceIDs are the original message ids, in album order.
	SourceIDs []int
	Text      string
	Media     []media.Artifact
	Album     bool
	// OnPublished, when set, receives the new message ids as soon as a send
	// is confirmed and before any original is deleted.
	OnPublished func(ctx context.Context, ids []int)
}

// Result describes what was published.
type Result struct {
	Mode         Mode
	PublishedIDs []int
	Edited       bool
	// UndeletedIDs are originals that remain visible after a repost.
	UndeletedIDs []int
}

// Config holds the strategy choices.
type Config struct {
	// SingleMedia is the strategy for one media item; ModeEdit by default.
	SingleMedia Mode
	// Fallback is used after an edit fails permanently.
	Fallback       Mode
	RepostDelayMin time.Duration
	RepostDelayMax time.Duration
}

// Selector chooses and executes the delivery strategy. Every platform call
// goes through the retry controller.
type Selector struct {
	client channel.Client
	retry  *backoff.Controller
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewSelector creates a selector.
func NewSelector(client channel.Client, retry *backoff.Controller, cfg Config) *Selector {
	if cfg.SingleMedia == "" || cfg.SingleMedia == ModeNone {
		cfg.SingleMedia = ModeEdit
	}
	if cfg.Fallback == "" {
		cfg.Fallback = ModeRepostThenDelete
	}
	return &Selector{client: client, retry: retry, cfg: cfg, sleep: sleepContext}
}

// Choose applies the decision table.
func (s *Selector) Choose(c Content) Mode {
	switch {
	case len(c.Media) == 0:
		return ModeEdit
	case c.Album || len(c.Media) > 1:
		return ModeRepostThenDelete
	default:
		return s.cfg.SingleMedia
	}
}

// Deliver publishes c.
func (s *Selector) Deliver(ctx context.Context, c Content) (Result, error) {
	if len(c.SourceIDs) == 0 {
		return Result{}, fmt.Errorf("content has no source message")
	}
	mode := s.Choose(c)
	switch mode {
	case ModeEdit:
		res, err := s.edit(ctx, c)
		if err == nil || backoff.IsRateLimited(err) || s.cfg.Fallback == ModeNone {
			return res, err
		}
		log.Printf("[Delivery Chat:%d Msg:%d] Edit failed, falling back to %s: %v", c.ChatID, c.SourceIDs[0], s.cfg.Fallback, err)
		return s.deliverAs(ctx, s.cfg.Fallback, c)
	default:
		return s.deliverAs(ctx, mode, c)
	}
}

func (s *Selector) deliverAs(ctx context.Context, mode Mode, c Content) (Result, error) {
	if mode == ModeReplace && !c.Album && len(c.Media) <= 1 {
		return s.replace(ctx, c)
	}
	return s.repostThenDelete(ctx, c)
}

func (s *Selector) edit(ctx context.Context, c Content) (Result, error) {
	id := c.SourceIDs[0]
	var (
		op  string
		err error
	)
	switch {
	case len(c.Media) == 0:
		op = "editText"
		err = s.retry.Do(ctx, op, func(ctx context.Context) error {
			return s.client.EditText(ctx, c.ChatID, id, c.Text)
		})
	case c.Media[0].Transformed:
		op = "editMedia"
		err = s.retry.Do(ctx, op, func(ctx context.Context) error {
			return s.client.EditMedia(ctx, c.ChatID, id, c.Media[0], c.Text)
		})
	default:
		op = "editCaption"
		err = s.retry.Do(ctx, op, func(ctx context.Context) error {
			return s.client.EditCaption(ctx, c.ChatID, id, c.Text)
		})
	}
	if err != nil && !channel.IsNotModified(err) {
		return Result{Mode: ModeEdit}, fmt.Errorf("%s: %w", op, err)
	}
	return Result{Mode: ModeEdit, PublishedIDs: []int{id}, Edited: true}, nil
}

// repostThenDelete never deletes an original unless the new message was confirmed.
func (s *Selector) repostThenDelete(ctx context.Context, c Content) (Result, error) {
	if err := s.repostDelay(ctx); err != nil {
		return Result{Mode: ModeRepostThenDelete}, err
	}
	ids, err := s.send(ctx, c)
	if err != nil {
		return Result{Mode: ModeRepostThenDelete}, err
	}
	c.published(ctx, ids)
	res := Result{Mode: ModeRepostThenDelete, PublishedIDs: ids}
	for _, id := range c.SourceIDs {
		if err := s.delete(ctx, c.ChatID, id); err != nil {
			log.Printf("[Delivery Chat:%d Msg:%d] Published, but deleting the original failed: %v", c.ChatID, id, err)
			res.UndeletedIDs = append(res.UndeletedIDs, id)
		}
	}
	return res, nil
}

// replace aborts when the original cannot be deleted, so no duplicate appears.
func (s *Selector) replace(ctx context.Context, c Content) (Result, error) {
	id := c.SourceIDs[0]
	if err := s.delete(ctx, c.ChatID, id); err != nil {
		return Result{Mode: ModeReplace}, fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	if err := s.repostDelay(ctx); err != nil {
		return Result{Mode: ModeReplace}, err
	}
	ids, err := s.send(ctx, c)
	if err != nil {
		return Result{Mode: ModeReplace}, fmt.Errorf("original %d deleted but send failed: %w", id, err)
	}
	c.published(ctx, ids)
	return Result{Mode: ModeReplace, PublishedIDs: ids}, nil
}

func (s *Selector) send(ctx context.Context, c Content) ([]int, error) {
	switch {
	case len(c.Media) == 0:
		id, err := backoff.Call(ctx, s.retry, "sendText", func(ctx context.Context) (int, error) {
			return s.client.SendText(ctx, c.ChatID, c.Text)
		})
		if err != nil {
			return nil, fmt.Errorf("sendText: %w", err)
		}
		return []int{id}, nil
	case len(c.Media) == 1:
		// sendMediaGroup needs at least two items, so a lone album item goes out on its own.
		id, err := backoff.Call(ctx, s.retry, "sendMedia", func(ctx context.Context) (int, error) {
			return s.client.SendMedia(ctx, c.ChatID, c.Media[0], c.Text)
		})
		if err != nil {
			return nil, fmt.Errorf("sendMedia: %w", err)
		}
		return []int{id}, nil
	default:
		ids, err := backoff.Call(ctx, s.retry, "sendMediaGroup", func(ctx context.Context) ([]int, error) {
			return s.client.SendMediaGroup(ctx, c.ChatID, c.Media, c.Text)
		})
		if err != nil {
			return nil, fmt.Errorf("sendMediaGroup: %w", err)
		}
		return ids, nil
	}
}

func (c Content) published(ctx context.Context, ids []int) {
	if c.OnPublished != nil && len(ids) > 0 {
		c.OnPublished(ctx, ids)
	}
}

func (s *Selector) delete(ctx context.Context, chatID int64, id int) error {
	err := s.retry.Do(ctx, "deleteMessage", func(ctx context.Context) error {
		return s.client.DeleteMessage(ctx, chatID, id)
	})
	if channel.IsMessageGone(err) {
		return nil
	}
	return err
}

func (s *Selector) repostDelay(ctx context.Context) error {
	lo, hi := s.cfg.RepostDelayMin, s.cfg.RepostDelayMax
	if hi <= 0 {
		return nil
	}
	d := lo
	if hi > lo {
		d += time.Duration(rand.Int64N(int64(hi - lo)))
	}
	return s.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
