package ws

import (
	"log/slog"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
)

// Conversations is the slice of the chat service the hub needs.
type Conversations interface {
	Append(from models.Participant, toID, text, emoji string) (models.Message, error)
}

// Notifier is told about messages that could not be delivered to a live
// session. Optional; a nil notifier means delivery misses only persist.
type Notifier interface {
	NotifyOffline(identity string, msg models.Message)
}

// Hub routes inbound socket events: it validates and persists sends,
// forwards them to the addressed participant's live session, and
// propagates typing signals. Session bindings live in the injected
// Registry. An offline target is not an error; the message is persisted
// and picked up by the target's next poll or rehydrate.
type Hub struct {
	registry *Registry
	chats    Conversations
	notifier Notifier
}

func NewHub(chats Conversations, registry *Registry, notifier Notifier) *Hub {
	return &Hub{
		registry: registry,
		chats:    chats,
		notifier: notifier,
	}
}

// Register binds a session under the participant's identity and returns
// its delivery channel. A prior binding for the same identity is
// superseded.
func (h *Hub) Register(sessionID string, p models.Participant) chan models.ServerEvent {
	ch := make(chan models.ServerEvent, 100)
	h.registry.Bind(p.ID, sessionID, ch)
	slog.Info("session registered", "identity", p.ID, "role", p.Role, "session_id", sessionID)
	return ch
}

// Unregister removes the session's binding, if it still owns one.
func (h *Hub) Unregister(sessionID string) {
	h.registry.Unbind(sessionID)
}

// Send persists the message and forwards it to the target's live
// session. The sender's own session gets an echo carrying the assigned
// seq, so the client store can reconcile against poll snapshots.
func (h *Hub) Send(from models.Participant, toID, text, emoji string) (models.Message, error) {
	msg, err := h.chats.Append(from, toID, text, emoji)
	if err != nil {
		return models.Message{}, err
	}

	event := models.ServerEvent{
		Type:    models.ServerEventNewMessage,
		Message: &msg,
	}

	if ch, ok := h.registry.Lookup(toID); ok {
		deliver(ch, event)
	} else {
		slog.Debug("delivery miss, message persisted", "to", toID, "message_id", msg.ID)
		if h.notifier != nil {
			h.notifier.NotifyOffline(toID, msg)
		}
	}

	if ch, ok := h.registry.Lookup(from.ID); ok {
		deliver(ch, event)
	}

	return msg, nil
}

// Typing forwards a typing signal to the target's live session.
// Best effort: never persisted, silently dropped when the target is
// offline.
func (h *Hub) Typing(fromID, toID string, isTyping bool) {
	ch, ok := h.registry.Lookup(toID)
	if !ok {
		return
	}
	deliver(ch, models.ServerEvent{
		Type:     models.ServerEventTypingStatus,
		From:     fromID,
		IsTyping: isTyping,
	})
}

// Broadcast fans an event out to every live session. Used for admin
// announcements and donation leaderboard pushes.
func (h *Hub) Broadcast(event models.ServerEvent) {
	for _, ch := range h.registry.Channels() {
		deliver(ch, event)
	}
}

// deliver pushes without blocking; a session that cannot keep up loses
// the event and recovers through its next poll or rehydrate.
func deliver(ch chan models.ServerEvent, event models.ServerEvent) {
	select {
	case ch <- event:
	default:
		slog.Warn("session channel full, dropping event", "type", event.Type)
	}
}
