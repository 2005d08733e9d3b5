package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
)

type mockWS struct {
	readCh      chan models.ClientEvent
	writeCh     chan any
	closeCh     chan struct{}
	closed      bool
	errToReturn error
}

func newMockWS() *mockWS {
	return &mockWS{
		readCh:  make(chan models.ClientEvent, 10),
		writeCh: make(chan any, 10),
		closeCh: make(chan struct{}),
	}
}

func (m *mockWS) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.closeCh)
	return nil
}

func (m *mockWS) WriteJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	m.writeCh <- v
	return nil
}

func (m *mockWS) ReadJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	select {
	case ev, ok := <-m.readCh:
		if !ok {
			return errors.New("closed")
		}
		if ptr, ok := v.(*models.ClientEvent); ok {
			*ptr = ev
		}
		return nil
	case <-m.closeCh:
		return errors.New("connection closed")
	}
}

type mockHub struct {
	registerCh   chan string
	unregisterCh chan string
	sendCh       chan models.ClientEvent
	typingCh     chan bool
	sendErr      error
	deliveries   map[string]chan models.ServerEvent
}

func newMockHub() *mockHub {
	return &mockHub{
		registerCh:   make(chan string, 10),
		unregisterCh: make(chan string, 10),
		sendCh:       make(chan models.ClientEvent, 10),
		typingCh:     make(chan bool, 10),
		deliveries:   make(map[string]chan models.ServerEvent),
	}
}

func (m *mockHub) Register(sessionID string, p models.Participant) chan models.ServerEvent {
	m.registerCh <- sessionID
	ch := make(chan models.ServerEvent, 10)
	m.deliveries[sessionID] = ch
	return ch
}

func (m *mockHub) Unregister(sessionID string) {
	m.unregisterCh <- sessionID
}

func (m *mockHub) Send(from models.Participant, toID, text, emoji string) (models.Message, error) {
	if m.sendErr != nil {
		return models.Message{}, m.sendErr
	}
	m.sendCh <- models.ClientEvent{To: toID, Text: text, Emoji: emoji}
	return models.Message{Text: text}, nil
}

func (m *mockHub) Typing(fromID, toID string, isTyping bool) {
	m.typingCh <- isTyping
}

func TestConnection_Lifecycle(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	participant := models.Participant{ID: "u1", Role: models.RoleUser}

	conn := NewConnection(hub, ws, "sess1", participant)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	// 1. Register binds the session and opens the delivery channel.
	ws.readCh <- models.ClientEvent{Type: models.ClientEventRegister}
	select {
	case id := <-hub.registerCh:
		if id != "sess1" {
			t.Errorf("expected register for sess1, got %s", id)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("hub did not see register")
	}

	// 2. Client -> hub send.
	ws.readCh <- models.ClientEvent{Type: models.ClientEventSend, To: "a1", Text: "hello"}
	select {
	case sent := <-hub.sendCh:
		if sent.Text != "hello" || sent.To != "a1" {
			t.Errorf("hub received wrong send: %+v", sent)
		}
	case <-time.After(1 * time.Second):
		t.Error("hub did not receive send")
	}

	// 3. Hub -> client delivery.
	hub.deliveries["sess1"] <- models.ServerEvent{
		Type:    models.ServerEventNewMessage,
		Message: &models.Message{Text: "hi back"},
	}
	select {
	case received := <-ws.writeCh:
		ev, ok := received.(models.ServerEvent)
		if !ok {
			t.Fatalf("WS received wrong type: %T", received)
		}
		if ev.Message == nil || ev.Message.Text != "hi back" {
			t.Errorf("WS received wrong event: %+v", ev)
		}
	case <-time.After(1 * time.Second):
		t.Error("WS did not receive server event")
	}

	// 4. Typing passthrough.
	ws.readCh <- models.ClientEvent{Type: models.ClientEventTyping, To: "a1", IsTyping: true}
	select {
	case isTyping := <-hub.typingCh:
		if !isTyping {
			t.Error("expected isTyping true")
		}
	case <-time.After(1 * time.Second):
		t.Error("hub did not receive typing")
	}

	// 5. Teardown unbinds the session.
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return after cancel")
	}

	select {
	case id := <-hub.unregisterCh:
		if id != "sess1" {
			t.Errorf("expected unregister for sess1, got %s", id)
		}
	default:
		t.Error("Unregister not called")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}

func TestConnection_EmptySendRejected(t *testing.T) {
	hub := newMockHub()
	hub.sendErr = models.ErrEmptyMessage
	ws := newMockWS()

	conn := NewConnection(hub, ws, "sess1", models.Participant{ID: "u1", Role: models.RoleUser})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	ws.readCh <- models.ClientEvent{Type: models.ClientEventSend, To: "a1"}

	select {
	case received := <-ws.writeCh:
		ev, ok := received.(models.ServerEvent)
		if !ok || ev.Type != models.ServerEventRejected {
			t.Errorf("expected rejected event, got %+v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("sender was not informed of the rejection")
	}

	// The connection survives a rejection.
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return")
	}
}

func TestConnection_UnknownTargetRejected(t *testing.T) {
	hub := newMockHub()
	hub.sendErr = models.ErrUnknownParticipant
	ws := newMockWS()

	conn := NewConnection(hub, ws, "sess1", models.Participant{ID: "a1", Role: models.RoleAdmin})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	ws.readCh <- models.ClientEvent{Type: models.ClientEventSend, To: "no-such-id", Text: "hello?"}

	select {
	case received := <-ws.writeCh:
		ev, ok := received.(models.ServerEvent)
		if !ok || ev.Type != models.ServerEventRejected {
			t.Errorf("expected rejected event, got %+v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("sender was not informed of the rejection")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return")
	}
}

func TestConnection_MismatchedRegisterRejected(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()

	conn := NewConnection(hub, ws, "sess1", models.Participant{ID: "u1", Role: models.RoleUser})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = conn.Handle(ctx) }()

	ws.readCh <- models.ClientEvent{Type: models.ClientEventRegister, Identity: "someone-else"}

	select {
	case received := <-ws.writeCh:
		ev, ok := received.(models.ServerEvent)
		if !ok || ev.Type != models.ServerEventRejected {
			t.Errorf("expected rejected event, got %+v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("mismatched register was not rejected")
	}

	select {
	case <-hub.registerCh:
		t.Error("mismatched register must not bind")
	default:
	}
}

func TestConnection_WSError(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()

	conn := NewConnection(hub, ws, "sess2", models.Participant{ID: "u2", Role: models.RoleUser})

	ws.errToReturn = errors.New("read error")

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error from Handle, got nil")
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return on error")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}
