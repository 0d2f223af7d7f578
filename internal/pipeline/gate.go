package pipeline

import (
	"context"
	"fmt"
	"log"

	"newsboost-bot/internal/posts"
)

// Verdict is the gate decision for an inbound post.
type Verdict string

const (
	Accepted         Verdict = "accepted"
	Buffered         Verdict = "buffered"
	SkippedChat      Verdict = "skipped-chat"
	SkippedAutomated Verdict = "skipped-automated"
	SkippedStale     Verdict = "skipped-stale"
	SkippedEmpty     Verdict = "skipped-empty"
)

// Dispatch applies the entry gate. Album items are buffered synchronously so
// their arrival order is kept; accepted singles are processed in the background.
func (p *Processor) Dispatch(ctx context.Context, post posts.InboundPost) Verdict {
	v := p.gate(ctx, post)
	if v != Accepted {
		if p.cfg.Debug {
			log.Printf("[Gate Chat:%d Msg:%d] %s", post.ChatID, post.MessageID, v)
		}
		return v
	}

	if post.GroupID != "" {
		p.albums.Add(post)
		return Buffered
	}

	// Shutdown cancels ctx; a post already accepted still runs to completion.
	detached := context.WithoutCancel(ctx)
	p.singles.Add(1)
	go func() {
		defer p.singles.Done()
		p.guard(detached, fmt.Sprintf("[Pipeline Chat:%d Msg:%d]", post.ChatID, post.MessageID), func(ctx context.Context) error {
			return p.ProcessPost(ctx, post)
		})
	}()
	return Accepted
}

func (p *Processor) gate(ctx context.Context, post posts.InboundPost) Verdict {
	if _, ok := p.sources[post.ChatID]; !ok {
		return SkippedChat
	}
	if post.IsEmpty() {
		return SkippedEmpty
	}
	if p.cfg.MaxPostAge > 0 && !post.Timestamp.IsZero() && p.now().Sub(post.Timestamp) > p.cfg.MaxPostAge {
		return SkippedStale
	}
	automated, err := p.deps.Automation.IsAutomated(ctx, post)
	if err != nil {
		log.Printf("[Gate Chat:%d Msg:%d] Automation check failed, skipping: %v", post.ChatID, post.MessageID, err)
		return SkippedAutomated
	}
	if automated {
		return SkippedAutomated
	}
	return Accepted
}
