package ws

import (
	"sync"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
)

type binding struct {
	sessionID string
	ch        chan models.ServerEvent
}

// Registry maps a participant identity to at most one live session.
// A new bind for the same identity supersedes the old one; the old
// socket is not closed, it just stops receiving targeted deliveries.
// All mutations are serialized behind the mutex so concurrent connect
// and disconnect events never observe a partial update.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]binding
	bySession  map[string]string // sessionID -> identity
}

func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]binding),
		bySession:  make(map[string]string),
	}
}

// Bind registers the session's delivery channel under the identity,
// replacing any prior binding (last registrant wins).
func (r *Registry) Bind(identity, sessionID string, ch chan models.ServerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byIdentity[identity]; ok {
		delete(r.bySession, old.sessionID)
	}
	r.byIdentity[identity] = binding{sessionID: sessionID, ch: ch}
	r.bySession[sessionID] = identity
}

// Unbind removes whatever identity currently maps to the session. Keyed
// by session so a socket that drops before registering, or after being
// superseded, still cleans up safely. Idempotent.
func (r *Registry) Unbind(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.bySession[sessionID]
	if !ok {
		return
	}
	delete(r.bySession, sessionID)

	// Only drop the identity binding if it still points at this session.
	if cur, ok := r.byIdentity[identity]; ok && cur.sessionID == sessionID {
		delete(r.byIdentity, identity)
	}
}

// Lookup returns the live delivery channel for the identity, if any.
func (r *Registry) Lookup(identity string) (chan models.ServerEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byIdentity[identity]
	return b.ch, ok
}

// Identities returns all currently bound identities.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byIdentity))
	for id := range r.byIdentity {
		ids = append(ids, id)
	}
	return ids
}

// Channels returns the delivery channels of every live session, for
// broadcast fan-out.
func (r *Registry) Channels() []chan models.ServerEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chs := make([]chan models.ServerEvent, 0, len(r.byIdentity))
	for _, b := range r.byIdentity {
		chs = append(chs, b.ch)
	}
	return chs
}
