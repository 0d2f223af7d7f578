package bot

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"

	"newsboost-bot/internal/pipeline"
	"newsboost-bot/internal/posts"
)

// Dispatcher accepts inbound posts. Implemented by *pipeline.Processor.
type Dispatcher interface {
	Dispatch(ctx context.Context, post posts.InboundPost) pipeline.Verdict
	Shutdown()
}

// Bot owns the update loop. Updates are read from a single channel and handed
// to the dispatcher in arrival order.
type Bot struct {
	updatesChan <-chan telego.Update
	dispatcher  Dispatcher
	selfID      int64
	debug       bool
}

// BotDeps holds the dependencies required by the Bot.
type BotDeps struct {
	UpdatesChan <-chan telego.Update
	Dispatcher  Dispatcher
	// SelfID is the bot's own user id, used to flag its own posts.
	SelfID      int64
	Debug       bool
}

// New creates a new Bot instance from its dependencies.
func New(deps BotDeps) (*Bot, error) {
	if deps.UpdatesChan == nil {
		return nil, fmt.Errorf("updates channel cannot be nil")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	return &Bot{
		updatesChan: deps.UpdatesChan,
		dispatcher:  deps.Dispatcher,
		selfID:      deps.SelfID,
		debug:       deps.Debug,
	}, nil
}

// processUpdate routes channel posts to the dispatcher. A panic affects only
// the update that caused it.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in processUpdate: %v\n%s", r, debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(time.Second * 2)
		}
	}()

	var message *telego.Message
	switch {
	case update.ChannelPost != nil:
		message = update.ChannelPost
	case update.Message != nil && update.Message.Chat.Type == telego.ChatTypeChannel:
		message = update.Message
	default:
		if b.debug {
			log.Printf("Ignoring unhandled update type (ID: %d)", update.UpdateID)
		}
		return
	}

	post := posts.FromMessage(*message, b.selfID)
	verdict := b.dispatcher.Dispatch(ctx, post)
	if b.debug {
		log.Printf("[Update:%d Chat:%d Msg:%d] %s", update.UpdateID, post.ChatID, post.MessageID, verdict)
	}
}

// Start runs the update loop until ctx is done or the updates channel closes,
// then flushes pending albums and waits for in-flight posts.
func (b *Bot) Start(ctx context.Context) {
	log.Println("Listening for updates...")
	defer func() {
		log.Println("Flushing pending albums and in-flight posts...")
		b.dispatcher.Shutdown()
		log.Println("All update processing finished.")
	}()

	for {
		select {
		case <-ctx.Done():
			log.Println("Context done, stopping update processing...")
			return
		case update, ok := <-b.updatesChan:
			if !ok {
				log.Println("Updates channel closed.")
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}
