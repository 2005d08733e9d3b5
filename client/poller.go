package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
)

// Fetcher retrieves a conversation snapshot over plain HTTP. Implemented
// by Client; a fake is enough for tests.
type Fetcher interface {
	FetchConversation(ctx context.Context, conversationID string) (models.Conversation, error)
}

// Poller drives the store while no live session exists: every tick it
// fetches the full conversation snapshot and replaces the store's
// history. Fetch failures are logged and swallowed; the next tick
// proceeds unaffected. The poller stops itself as soon as the store
// reports a connected session, keeping the two update sources mutually
// exclusive.
type Poller struct {
	fetch    Fetcher
	store    *Store
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(fetch Fetcher, store *Store, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		fetch:    fetch,
		store:    store,
		interval: interval,
	}
}

// Start begins periodic snapshot refresh for the conversation. Calling
// Start while already running is a no-op.
func (p *Poller) Start(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, conversationID, p.done)
}

// Stop cancels polling and waits for the loop to exit, so no tick is
// observable after Stop returns. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the poller currently has an active loop.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) loop(ctx context.Context, conversationID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Refresh immediately so a fresh fallback does not wait a full
	// interval for the first snapshot.
	p.tick(ctx, conversationID)

	for {
		select {
		case <-ticker.C:
			if p.store.Status() == StatusConnected {
				// The live session took over; bow out.
				p.mu.Lock()
				if p.cancel != nil {
					p.cancel()
					p.cancel, p.done = nil, nil
				}
				p.mu.Unlock()
				return
			}
			p.tick(ctx, conversationID)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) tick(ctx context.Context, conversationID string) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	conv, err := p.fetch.FetchConversation(fetchCtx, conversationID)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("poll fetch failed", "conversation_id", conversationID, "error", err)
		}
		return
	}
	if ctx.Err() != nil {
		// Cancelled while the fetch was in flight; do not surface a
		// late replace after Stop.
		return
	}
	if !p.store.ReplaceMessages(conv.Messages) {
		slog.Debug("stale poll snapshot skipped", "conversation_id", conversationID)
	}
}
