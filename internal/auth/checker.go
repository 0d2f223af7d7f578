package auth

import (
	"context"
	"fmt"
	"log"

	"newsboost-bot/internal/dedup"
	"newsboost-bot/internal/posts"
	"newsboost-bot/pkg/telegoapi"
)

// SelfChecker decides whether a post was produced by the automation itself,
// so that edits and reposts never re-enter the pipeline.
type SelfChecker struct {
	selfID    int64
	username  string
	published dedup.Store
}

// NewSelfChecker resolves the bot identity with getMe. published holds the
// keys of messages the bot has posted.
func NewSelfChecker(ctx context.Context, bot telegoapi.BotAPI, published dedup.Store) (*SelfChecker, error) {
	if bot == nil {
		return nil, fmt.Errorf("telego bot instance cannot be nil")
	}
	if published == nil {
		return nil, fmt.Errorf("published store cannot be nil")
	}
	me, err := bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot identity: %w", err)
	}
	log.Printf("[SelfCheck] Running as @%s (ID: %d)", me.Username, me.ID)
	return &SelfChecker{selfID: me.ID, username: me.Username, published: published}, nil
}

// SelfID returns the bot user id.
func (c *SelfChecker) SelfID() int64 {
	return c.selfID
}

// IsAutomated reports whether post must be ignored. A store failure is
// treated as automated so that the post is skipped rather than re-published.
func (c *SelfChecker) IsAutomated(ctx context.Context, post posts.InboundPost) (bool, error) {
	if post.AuthorIsAutomated {
		return true, nil
	}
	ours, err := c.published.HasBeenProcessed(ctx, posts.PublishedKey(post.ChatID, post.MessageID))
	if err != nil {
		log.Printf("[SelfCheck Chat:%d Msg:%d] Published-store lookup failed: %v", post.ChatID, post.MessageID, err)
		return true, fmt.Errorf("published lookup failed: %w", err)
	}
	return ours, nil
}

// RememberPublished records messages the bot has just posted.
func (c *SelfChecker) RememberPublished(ctx context.Context, chatID int64, messageIDs ...int) error {
	for _, id := range messageIDs {
		if err := c.published.MarkProcessed(ctx, posts.PublishedKey(chatID, id)); err != nil {
			return fmt.Errorf("failed to remember published message %d: %w", id, err)
		}
	}
	return nil
}
