package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"

	"github.com/gorilla/websocket"
)

var (
	// ErrAuthRejected means the server refused the credential token at
	// handshake time. Terminal: the session will not retry.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrNotConnected is returned by sends attempted while the session
	// is not connected. Sends are never queued.
	ErrNotConnected = errors.New("session not connected")

	ErrAlreadyOpen = errors.New("session already open")
)

// Session owns one live websocket connection for a participant. It
// registers the identity on connect, retries transient failures up to a
// bound with a fixed delay, and translates inbound events into store
// mutations. It holds no conversation data itself.
//
// Status flows connecting -> connected, and drops to disconnected only
// terminally: after the reconnect budget is exhausted, after an auth
// rejection, or after Close. The fallback poller keys off that terminal
// status.
type Session struct {
	cfg      Config
	store    *Store
	identity models.Participant
	dialer   *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error

	onStatus    func(Status)
	onBroadcast func(html string)
}

func NewSession(cfg Config, identity models.Participant, store *Store) *Session {
	cfg.withDefaults()
	return &Session{
		cfg:      cfg,
		store:    store,
		identity: identity,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// SetOnStatus installs a status-transition callback, invoked outside the
// session lock.
func (s *Session) SetOnStatus(fn func(Status)) {
	s.mu.Lock()
	s.onStatus = fn
	s.mu.Unlock()
}

// SetOnBroadcast installs a handler for server-wide announcement events.
func (s *Session) SetOnBroadcast(fn func(html string)) {
	s.mu.Lock()
	s.onBroadcast = fn
	s.mu.Unlock()
}

// Open starts the connection loop. It returns immediately; progress is
// observable through the store status and the status callback. Err
// reports why the session last became disconnected.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyOpen
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.lastErr = nil

	go s.run(ctx, s.done)
	return nil
}

// Close tears the session down deterministically: the connection is
// closed and any in-flight reconnect timer is cancelled. Safe to call
// multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	cancel, done, conn := s.cancel, s.done, s.conn
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
	return nil
}

// Err returns the reason the session last transitioned to disconnected,
// or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SendMessage emits a send event. Fails with ErrNotConnected while the
// session is down; the caller decides whether to surface or retry.
func (s *Session) SendMessage(to, text, emoji string) error {
	return s.write(models.ClientEvent{
		Type:  models.ClientEventSend,
		To:    to,
		Text:  text,
		Emoji: emoji,
	})
}

// SendTyping emits a typing signal. Best effort.
func (s *Session) SendTyping(to string, isTyping bool) error {
	return s.write(models.ClientEvent{
		Type:     models.ClientEventTyping,
		To:       to,
		IsTyping: isTyping,
	})
}

func (s *Session) write(ev models.ClientEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.WriteJSON(ev)
}

func (s *Session) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.setStatus(StatusDisconnected)

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}
		s.setStatus(StatusConnecting)

		conn, err := s.connect(ctx)
		if err != nil {
			if errors.Is(err, ErrAuthRejected) || ctx.Err() != nil {
				s.setErr(err)
				return
			}

			attempts++
			if attempts >= s.cfg.MaxReconnectAttempts {
				s.setErr(err)
				return
			}
			slog.Debug("connect failed, retrying", "attempt", attempts, "error", err)
			select {
			case <-time.After(s.cfg.ReconnectDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		attempts = 0
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.setStatus(StatusConnected)

		err = s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		slog.Debug("connection dropped, reconnecting", "error", err)
	}
}

// connect dials and registers the identity. Registration must precede
// any delivery targeted at this participant.
func (s *Session) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("token", s.cfg.Token)

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.Endpoint, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrAuthRejected
		}
		return nil, err
	}

	err = conn.WriteJSON(models.ClientEvent{
		Type:     models.ClientEventRegister,
		Identity: s.identity.ID,
		Role:     s.identity.Role,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

func (s *Session) readLoop(conn *websocket.Conn) error {
	for {
		var ev models.ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		s.handleEvent(ev)
	}
}

func (s *Session) handleEvent(ev models.ServerEvent) {
	switch ev.Type {
	case models.ServerEventNewMessage:
		if ev.Message == nil {
			return
		}
		appended := s.store.AppendMessage(*ev.Message)
		if appended && ev.Message.SenderID != s.identity.ID && !s.store.Focused() {
			s.store.IncrementUnread()
		}
	case models.ServerEventTypingStatus:
		s.store.SetTyping(ev.IsTyping)
	case models.ServerEventRejected:
		slog.Warn("server rejected event", "reason", ev.Reason)
	case models.ServerEventBroadcast:
		s.mu.Lock()
		fn := s.onBroadcast
		s.mu.Unlock()
		if fn != nil {
			fn(ev.HTML)
		}
	default:
		slog.Debug("ignoring unknown server event", "type", ev.Type)
	}
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Session) setStatus(status Status) {
	s.store.SetStatus(status)
	s.mu.Lock()
	fn := s.onStatus
	s.mu.Unlock()
	if fn != nil {
		fn(status)
	}
}
