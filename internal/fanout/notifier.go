package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// Config controls the webhook sink.
type Config struct {
	URL      string
	Timeout  time.Duration
	Attempts uint
}

// Notifier posts events to a webhook without blocking the caller.
// Failures are logged and dropped.
type Notifier struct {
	cfg    Config
	client *http.Client
	wg     sync.WaitGroup
}

// NewNotifier creates a notifier; an empty URL disables it.
func NewNotifier(cfg Config) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 2
	}
	return &Notifier{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Enabled reports whether a sink is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.URL != ""
}

// Notify sends ev in the background.
func (n *Notifier) Notify(ev Event) {
	if !n.Enabled() {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout*time.Duration(n.cfg.Attempts))
		defer cancel()
		if err := n.send(ctx, ev); err != nil {
			log.Printf("[Fanout Event:%s Chat:%d Msg:%d] Webhook failed: %v", ev.ID, ev.ChatID, ev.MessageID, err)
			return
		}
		log.Printf("[Fanout Event:%s Chat:%d Msg:%d] Delivered", ev.ID, ev.ChatID, ev.MessageID)
	}()
}

// Wait blocks until in-flight notifications finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Event-ID", ev.ID)

			resp, err := n.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return fmt.Errorf("webhook returned %s", resp.Status)
			}
			return nil
		},
		retry.Attempts(n.cfg.Attempts),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
}
