package client

import (
	"sync"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
)

// Status is the client-observed connection state of the transport
// session. It drives whether the fallback poller runs.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Store is the single source of truth for the chat UI: message history,
// typing flag, unread counter and connection status. All mutators are
// synchronous and total; readers always get a consistent snapshot.
//
// Socket deliveries append, poll ticks replace. Both are reconciled by
// seq: AppendMessage drops anything at or below the highest seq already
// held, so a snapshot racing a live delivery never produces duplicates.
type Store struct {
	mu sync.RWMutex

	messages []models.Message
	lastSeq  int64
	typing   bool
	unread   int
	status   Status
	focused  bool

	onChange func()
}

func NewStore() *Store {
	return &Store{status: StatusDisconnected}
}

// SetOnChange installs a callback invoked after every mutation, outside
// the store lock. Presentation layers use it to re-render.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Snapshot is a consistent copy of the store's observable state.
type Snapshot struct {
	Messages []models.Message
	Typing   bool
	Unread   int
	Status   Status
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]models.Message, len(s.messages))
	copy(msgs, s.messages)

	return Snapshot{
		Messages: msgs,
		Typing:   s.typing,
		Unread:   s.unread,
		Status:   s.status,
	}
}

// ReplaceMessages swaps the whole history for the server snapshot.
// Replace, never merge: the server ordering is authoritative. The high
// water mark never goes backwards, though: server seq is monotonic, so
// a snapshot whose tail seq is below lastSeq was fetched before a
// delivery that already reached the store. Applying it would silently
// drop that delivered message, so the stale snapshot is rejected and
// false is returned; the next fetch carries everything anyway.
func (s *Store) ReplaceMessages(msgs []models.Message) bool {
	var tail int64
	if n := len(msgs); n > 0 {
		tail = msgs[n-1].Seq
	}

	s.mu.Lock()
	if tail < s.lastSeq {
		s.mu.Unlock()
		return false
	}
	s.messages = make([]models.Message, len(msgs))
	copy(s.messages, msgs)
	s.lastSeq = tail
	s.mu.Unlock()
	s.notify()
	return true
}

// AppendMessage adds one live-delivered message. Returns false when the
// message was already present (seq at or below the stored high water
// mark) and was dropped.
func (s *Store) AppendMessage(msg models.Message) bool {
	s.mu.Lock()
	if msg.Seq != 0 && msg.Seq <= s.lastSeq {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages, msg)
	if msg.Seq > s.lastSeq {
		s.lastSeq = msg.Seq
	}
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *Store) SetTyping(typing bool) {
	s.mu.Lock()
	s.typing = typing
	s.mu.Unlock()
	s.notify()
}

func (s *Store) IncrementUnread() {
	s.mu.Lock()
	s.unread++
	s.mu.Unlock()
	s.notify()
}

// ResetUnread zeroes the counter. Idempotent.
func (s *Store) ResetUnread() {
	s.mu.Lock()
	s.unread = 0
	s.mu.Unlock()
	s.notify()
}

func (s *Store) SetStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.notify()
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetFocused records whether the conversation is in foreground focus.
// Unread counting is suspended while focused.
func (s *Store) SetFocused(focused bool) {
	s.mu.Lock()
	s.focused = focused
	s.mu.Unlock()
}

func (s *Store) Focused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focused
}

func (s *Store) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
