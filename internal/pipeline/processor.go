package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"newsboost-bot/internal/database"
	"newsboost-bot/internal/database/models"
	"newsboost-bot/internal/dedup"
	"newsboost-bot/internal/delivery"
	"newsboost-bot/internal/fanout"
	"newsboost-bot/internal/media"
	"newsboost-bot/internal/mediagroups"
	"newsboost-bot/internal/posts"
	"newsboost-bot/internal/textpolicy"
)

// Composer renders the final text of a post. Verbatim is what Compose returns
// for a body it leaves undecorated.
type Composer interface {
	Compose(raw, signature string, target textpolicy.Target) string
	Verbatim(raw string) string
}

// MediaPreparer runs fn with watermarked (or passthrough) artifacts.
type MediaPreparer interface {
	Enabled() bool
	With(ctx context.Context, chatID int64, messageID int, items []posts.MediaRef, fn func([]media.Artifact) error) error
}

// Deliverer publishes resolved content.
type Deliverer interface {
	Deliver(ctx context.Context, c delivery.Content) (delivery.Result, error)
}

// AutomationChecker filters posts made by the bot and remembers its own publications.
type AutomationChecker interface {
	IsAutomated(ctx context.Context, post posts.InboundPost) (bool, error)
	RememberPublished(ctx context.Context, chatID int64, messageIDs ...int) error
}

// EventNotifier forwards processed posts.
type EventNotifier interface {
	Notify(ev fanout.Event)
}

// Config holds the processor settings.
type Config struct {
	SourceChannelIDs  []int64
	// MaxPostAge drops posts older than this at the gate; zero disables the check.
	MaxPostAge        time.Duration
	ContentHashDedup  bool
	ProcessingTimeout time.Duration
	AlbumDebounce     time.Duration
	AlbumMaxSize      int
	Debug             bool
}

// Deps holds the processor collaborators. Mapper, PostLog and Fanout are optional.
type Deps struct {
	Store      dedup.Store
	Mapper     dedup.Mapper
	Composer   Composer
	Media      MediaPreparer
	Delivery   Deliverer
	Automation AutomationChecker
	PostLog    database.PostLogger
	Fanout     EventNotifier
	Safety     fanout.SafetyFilter
}

// Processor turns inbound channel posts into republished posts.
type Processor struct {
	cfg     Config
	deps    Deps
	sources map[int64]struct{}
	albums  *mediagroups.Manager
	locks   chatLocks
	singles sync.WaitGroup
	now     func() time.Time
}

// New validates deps and creates a processor with its own album manager.
func New(cfg Config, deps Deps) (*Processor, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("dedup store cannot be nil")
	}
	if deps.Composer == nil {
		return nil, fmt.Errorf("composer cannot be nil")
	}
	if deps.Media == nil {
		return nil, fmt.Errorf("media preparer cannot be nil")
	}
	if deps.Delivery == nil {
		return nil, fmt.Errorf("deliverer cannot be nil")
	}
	if deps.Automation == nil {
		return nil, fmt.Errorf("automation checker cannot be nil")
	}
	if deps.PostLog == nil {
		deps.PostLog = database.NopPostLogger{}
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 2 * time.Minute
	}

	p := &Processor{
		cfg:     cfg,
		deps:    deps,
		sources: make(map[int64]struct{}, len(cfg.SourceChannelIDs)),
		locks:   chatLocks{m: make(map[int64]*sync.Mutex)},
		now:     time.Now,
	}
	for _, id := range cfg.SourceChannelIDs {
		p.sources[id] = struct{}{}
	}
	p.albums = mediagroups.NewManager(cfg.AlbumDebounce, cfg.AlbumMaxSize, p.flushAlbum)
	return p, nil
}

// Shutdown flushes pending albums and waits for in-flight posts.
func (p *Processor) Shutdown() {
	p.albums.Shutdown()
	p.singles.Wait()
}

// ProcessPost handles one standalone post synchronously.
func (p *Processor) ProcessPost(ctx context.Context, post posts.InboundPost) error {
	logPrefix := fmt.Sprintf("[Pipeline Chat:%d Msg:%d]", post.ChatID, post.MessageID)

	claimCtx, cancel := context.WithTimeout(ctx, p.cfg.ProcessingTimeout)
	fresh, err := p.claim(claimCtx, post.Key(), posts.ContentKey(post))
	cancel()
	if err != nil {
		return fmt.Errorf("dedup gate: %w", err)
	}
	if !fresh {
		log.Printf("%s Already processed, skipping", logPrefix)
		return nil
	}

	target := textpolicy.TargetMessage
	var refs []posts.MediaRef
	if post.Media != nil {
		target = textpolicy.TargetCaption
		refs = []posts.MediaRef{*post.Media}
	}
	body := post.Body()
	text := p.deps.Composer.Compose(body, post.AuthorSignature, target)

	if text == p.deps.Composer.Verbatim(body) && !p.transforms(refs) {
		if p.cfg.Debug {
			log.Printf("%s Nothing to change", logPrefix)
		}
		return nil
	}

	return p.publish(ctx, []posts.InboundPost{post}, text, refs)
}

// ProcessAlbum handles a batch of album items. Every item key and the album key
// are claimed before any platform call, so a second flush of the same batch is a
// no-op. Items arriving after the album was published go out as a follow-up
// carrying only their own caption.
func (p *Processor) ProcessAlbum(ctx context.Context, groupID string, items []posts.InboundPost) error {
	if len(items) == 0 {
		return errors.New("received empty media group")
	}
	logPrefix := fmt.Sprintf("[Pipeline Chat:%d Group:%s]", items[0].ChatID, groupID)

	claimCtx, cancel := context.WithTimeout(ctx, p.cfg.ProcessingTimeout)
	items, followUp, err := p.claimAlbum(claimCtx, groupID, items)
	cancel()
	if err != nil {
		return fmt.Errorf("dedup gate: %w", err)
	}
	if len(items) == 0 {
		log.Printf("%s Album already processed, skipping", logPrefix)
		return nil
	}

	caption, signature := albumCaption(items)
	text := ""
	if !followUp || caption != "" {
		text = p.deps.Composer.Compose(caption, signature, textpolicy.TargetCaption)
	} else {
		log.Printf("%s Publishing %d late item(s) without caption", logPrefix, len(items))
	}

	refs := make([]posts.MediaRef, 0, len(items))
	for _, item := range items {
		if item.Media != nil {
			refs = append(refs, *item.Media)
		}
	}
	if len(refs) == 0 {
		return fmt.Errorf("album %s has no media", groupID)
	}
	return p.publish(ctx, items, text, refs)
}

// claimAlbum returns the items whose keys were fresh and whether the album
// itself had already been published.
func (p *Processor) claimAlbum(ctx context.Context, groupID string, items []posts.InboundPost) ([]posts.InboundPost, bool, error) {
	fresh := make([]posts.InboundPost, 0, len(items))
	for _, item := range items {
		ok, err := p.deps.Store.TryMark(ctx, item.Key())
		if err != nil {
			return nil, false, err
		}
		if ok {
			fresh = append(fresh, item)
		}
	}
	if len(fresh) == 0 {
		return nil, false, nil
	}
	albumFresh, err := p.deps.Store.TryMark(ctx, posts.AlbumKey(items[0].ChatID, groupID))
	if err != nil {
		return nil, false, err
	}
	return fresh, !albumFresh, nil
}

// publish serializes delivery per chat, then records the outcome. The
// processing deadline starts once the chat lock is held.
func (p *Processor) publish(ctx context.Context, items []posts.InboundPost, text string, refs []posts.MediaRef) error {
	first := items[0]
	logPrefix := fmt.Sprintf("[Pipeline Chat:%d Msg:%d]", first.ChatID, first.MessageID)
	content := delivery.Content{
		ChatID: first.ChatID,
		Text:   text,
		Album:  first.GroupID != "",
		OnPublished: func(ctx context.Context, ids []int) {
			p.rememberPublished(ctx, logPrefix, first.ChatID, ids)
		},
	}
	for _, item := range items {
		content.SourceIDs = append(content.SourceIDs, item.MessageID)
	}

	unlock := p.locks.lock(first.ChatID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProcessingTimeout)
	defer cancel()

	// A repost published while this post waited for the lock is only known now.
	for _, item := range items {
		automated, err := p.deps.Automation.IsAutomated(ctx, item)
		if err != nil {
			return fmt.Errorf("automation re-check: %w", err)
		}
		if automated {
			log.Printf("%s Message %d was published by us, skipping", logPrefix, item.MessageID)
			return nil
		}
	}

	var (
		res         delivery.Result
		watermarked bool
	)
	err := p.deps.Media.With(ctx, first.ChatID, first.MessageID, refs, func(artifacts []media.Artifact) error {
		content.Media = artifacts
		for _, a := range artifacts {
			watermarked = watermarked || a.Transformed
		}
		var err error
		res, err = p.deps.Delivery.Deliver(ctx, content)
		return err
	})
	if err != nil {
		return fmt.Errorf("delivery: %w", err)
	}

	p.record(ctx, items, text, res, watermarked)
	return nil
}

// record runs the post-delivery bookkeeping. Failures here are logged only:
// the post is already published.
func (p *Processor) record(ctx context.Context, items []posts.InboundPost, text string, res delivery.Result, watermarked bool) {
	first := items[0]
	logPrefix := fmt.Sprintf("[Pipeline Chat:%d Msg:%d]", first.ChatID, first.MessageID)
	log.Printf("%s Published via %s as %v", logPrefix, res.Mode, res.PublishedIDs)
	if len(res.UndeletedIDs) > 0 {
		log.Printf("%s Originals still visible: %v", logPrefix, res.UndeletedIDs)
	}

	if p.deps.Mapper != nil && len(res.PublishedIDs) == len(items) {
		for i, item := range items {
			if err := p.deps.Mapper.Put(ctx, item.Key(), res.PublishedIDs[i]); err != nil {
				log.Printf("%s Failed to map %s: %v", logPrefix, item.Key(), err)
			}
		}
	}

	entry := models.PostLog{
		SourceKey:       first.Key(),
		ChatID:          first.ChatID,
		ChatUsername:    first.ChatUsername,
		MediaGroupID:    first.GroupID,
		PublishedIDs:    res.PublishedIDs,
		Mode:            string(res.Mode),
		MessageType:     messageType(items),
		Text:            text,
		AuthorSignature: first.AuthorSignature,
		Watermarked:     watermarked,
		UndeletedIDs:    res.UndeletedIDs,
		ReceivedAt:      first.Timestamp,
		PublishedAt:     p.now(),
	}
	for _, item := range items {
		entry.SourceIDs = append(entry.SourceIDs, item.MessageID)
	}
	if first.GroupID != "" {
		entry.SourceKey = posts.AlbumKey(first.ChatID, first.GroupID)
	}
	if err := p.deps.PostLog.LogPublishedPost(ctx, entry); err != nil {
		log.Printf("%s Failed to write post log: %v", logPrefix, err)
	}

	if p.deps.Fanout != nil {
		p.deps.Fanout.Notify(fanout.NewEvent(items, text, res.PublishedIDs, p.deps.Safety))
	}
}

// rememberPublished marks the bot's own messages as soon as the send is confirmed.
func (p *Processor) rememberPublished(ctx context.Context, logPrefix string, chatID int64, ids []int) {
	if err := p.deps.Automation.RememberPublished(ctx, chatID, ids...); err != nil {
		log.Printf("%s %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s %w", logPrefix, err))
	}
}

// claim atomically records the primary key and, when enabled, the content key.
// Any store error is returned so the caller skips the post.
func (p *Processor) claim(ctx context.Context, key, contentKey string) (bool, error) {
	fresh, err := p.deps.Store.TryMark(ctx, key)
	if err != nil || !fresh {
		return false, err
	}
	if !p.cfg.ContentHashDedup || contentKey == "" {
		return true, nil
	}
	fresh, err = p.deps.Store.TryMark(ctx, contentKey)
	if err != nil {
		return false, err
	}
	if !fresh {
		log.Printf("[Pipeline] Same content already processed under %s", contentKey)
	}
	return fresh, nil
}

func (p *Processor) transforms(refs []posts.MediaRef) bool {
	if !p.deps.Media.Enabled() {
		return false
	}
	for _, r := range refs {
		if r.Kind.Watermarkable() {
			return true
		}
	}
	return false
}

// guard turns errors and panics of fn into log lines and Sentry events.
// Deadlines are applied by the stages themselves, not while queued.
func (p *Processor) guard(ctx context.Context, logPrefix string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s PANIC recovered: %v\n%s", logPrefix, r, debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)
		}
	}()

	if err := fn(ctx); err != nil {
		log.Printf("%s Processing failed: %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s %w", logPrefix, err))
	}
}

func (p *Processor) flushAlbum(ctx context.Context, groupID string, items []posts.InboundPost) {
	chatID := int64(0)
	if len(items) > 0 {
		chatID = items[0].ChatID
	}
	p.guard(ctx, fmt.Sprintf("[Pipeline Chat:%d Group:%s]", chatID, groupID), func(ctx context.Context) error {
		return p.ProcessAlbum(ctx, groupID, items)
	})
}

// albumCaption returns the first non-empty caption and its signature. Telegram
// normally carries the album caption on the first item only.
func albumCaption(items []posts.InboundPost) (string, string) {
	for _, item := range items {
		if item.Body() != "" {
			return item.Body(), item.AuthorSignature
		}
	}
	return "", items[0].AuthorSignature
}

func messageType(items []posts.InboundPost) string {
	switch {
	case len(items) > 1 || items[0].GroupID != "":
		return "media_group"
	case items[0].Media != nil:
		return string(items[0].Media.Kind)
	default:
		return "text"
	}
}

// chatLocks hands out one mutex per chat.
type chatLocks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

func (l *chatLocks) lock(chatID int64) func() {
	l.mu.Lock()
	m, ok := l.m[chatID]
	if !ok {
		m = &sync.Mutex{}
		l.m[chatID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
