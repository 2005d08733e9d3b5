// Package client is the Go SDK for the Sifas Heart Foundation support
// chat. It bundles the transport session, the fallback poller and the
// conversation state store, and keeps the two update sources mutually
// exclusive: the poller only runs while no live session exists.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
)

type Config struct {
	// Endpoint is the websocket address, e.g. ws://host/api/chat.
	Endpoint string
	// APIBase is the HTTP address used for polling and rehydration,
	// e.g. http://host.
	APIBase string
	// Token is the credential token obtained from /api/login.
	Token string

	MaxReconnectAttempts int           // default 5
	ReconnectDelay       time.Duration // default 2s
	PollingInterval      time.Duration // default 3s
}

func (c *Config) withDefaults() {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.PollingInterval <= 0 {
		c.PollingInterval = 3 * time.Second
	}
}

// Client ties the SDK together for one participant. Start resolves the
// identity and conversation, opens the session, and arranges the
// fallback: on terminal disconnect the poller takes over, on (re)connect
// the store is rehydrated from a snapshot fetch and the poller stops.
type Client struct {
	cfg   Config
	httpc *http.Client

	Store   *Store
	Session *Session
	Poller  *Poller

	mu             sync.Mutex
	identity       models.Participant
	conversationID string
}

func New(cfg Config) *Client {
	cfg.withDefaults()
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 15 * time.Second},
		Store: NewStore(),
	}
}

// Start resolves the participant identity, loads the initial
// conversation snapshot, and opens the transport session.
func (c *Client) Start(ctx context.Context) error {
	identity, err := c.fetchMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve identity: %w", err)
	}

	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()

	if identity.Role == models.RoleUser {
		conv, err := c.fetchOwnConversation(ctx)
		if err != nil {
			return fmt.Errorf("failed to load conversation: %w", err)
		}
		c.SetConversationID(conv.ID)
		c.Store.ReplaceMessages(conv.Messages)
	}

	c.Session = NewSession(c.cfg, identity, c.Store)
	c.Poller = NewPoller(c, c.Store, c.cfg.PollingInterval)

	c.Session.SetOnStatus(func(status Status) {
		switch status {
		case StatusConnected:
			// Rehydrate so anything missed while down is recovered,
			// then hand the store back to the socket.
			go func() {
				c.Poller.Stop()
				c.rehydrate()
			}()
		case StatusDisconnected:
			// Terminal: retry budget exhausted, auth rejected, or
			// closed. Fall back to polling if we know the thread.
			if id := c.ConversationID(); id != "" {
				c.Poller.Start(id)
			}
		}
	})

	return c.Session.Open(ctx)
}

// Stop shuts down both update sources. Idempotent.
func (c *Client) Stop() {
	if c.Session != nil {
		_ = c.Session.Close()
	}
	if c.Poller != nil {
		c.Poller.Stop()
	}
}

// Identity returns the authenticated participant, valid after Start.
func (c *Client) Identity() models.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// ConversationID returns the watched conversation, empty if none yet.
func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// SetConversationID selects which thread the poller and rehydration
// follow. Admins call this when picking a conversation from the inbox.
func (c *Client) SetConversationID(id string) {
	c.mu.Lock()
	c.conversationID = id
	c.mu.Unlock()
}

// MarkRead resets the unread counter; called when the conversation
// gains foreground focus.
func (c *Client) MarkRead() {
	c.Store.ResetUnread()
}

// FetchConversation implements Fetcher against the REST API.
func (c *Client) FetchConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := c.getJSON(ctx, "/api/conversations/"+conversationID, &conv)
	return conv, err
}

func (c *Client) fetchMe(ctx context.Context) (models.Participant, error) {
	var p models.Participant
	err := c.getJSON(ctx, "/api/me", &p)
	return p, err
}

func (c *Client) fetchOwnConversation(ctx context.Context) (models.Conversation, error) {
	var conv models.Conversation
	err := c.getJSON(ctx, "/api/me/conversation", &conv)
	return conv, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("token", c.cfg.Token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) rehydrate() {
	id := c.ConversationID()
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conv, err := c.FetchConversation(ctx, id)
	if err != nil {
		// The live session is up; missed history will also arrive
		// through subsequent deliveries or the next fallback cycle.
		return
	}
	c.Store.ReplaceMessages(conv.Messages)
}
