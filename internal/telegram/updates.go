package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/plexmon/plexmon/internal/logging"
	"github.com/plexmon/plexmon/internal/retry"
)

// SecretHeader carries the webhook secret on every delivery.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Handler processes one inbound update.
type Handler interface {
	HandleUpdate(ctx context.Context, u Update)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u Update)

func (f HandlerFunc) HandleUpdate(ctx context.Context, u Update) { f(ctx, u) }

// Poller receives updates with getUpdates.
type Poller struct {
	client      *Client
	handler     Handler
	pollTimeout time.Duration
	backoff     retry.Config
}

// NewPoller creates a long-polling receiver.
func NewPoller(client *Client, handler Handler) *Poller {
	return &Poller{
		client:      client,
		handler:     handler,
		pollTimeout: 30 * time.Second,
		backoff: retry.Config{
			InitialWait: time.Second,
			MaxWait:     time.Minute,
			Multiplier:  2,
			Jitter:      0.1,
		},
	}
}

// Run polls until ctx is cancelled. Updates are handled in order.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	failures := 0

	for {
		updates, next, err := p.client.GetUpdates(ctx, offset, p.pollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			failures++
			if IsConflict(err) {
				logging.Error("telegram 409 conflict: another instance is polling or a webhook is set",
					logging.Err(err))
			} else if !errors.Is(err, context.DeadlineExceeded) {
				logging.Warn("telegram polling error", logging.Err(err), logging.Int("failures", failures))
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff.Backoff(failures)):
			}
			continue
		}

		failures = 0
		offset = next
		for _, u := range updates {
			p.handler.HandleUpdate(ctx, u)
		}
	}
}

// WebhookHandler accepts POSTed updates authenticated by SecretHeader.
// Updates are handled asynchronously under base so a slow command never
// delays Telegram's delivery acknowledgement.
func WebhookHandler(base context.Context, secret string, handler Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(secret)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		var u Update
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&u); err != nil {
			http.Error(w, "invalid update", http.StatusBadRequest)
			return
		}

		go handler.HandleUpdate(base, u)
		w.WriteHeader(http.StatusOK)
	})
}
