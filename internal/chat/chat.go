package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/content"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/storage"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
)

// snapshotTTL is how long a cached message history is kept. Entries are
// keyed by LastSeq, so the TTL only bounds memory, not staleness.
const snapshotTTL = 2 * time.Second

// Store is the slice of the persistence layer the conversation service
// needs.
type Store interface {
	GetCredentialsByID(id string) (storage.DBCredentials, error)
	UpsertConversation(conv storage.DBConversation) error
	GetConversation(id string) (storage.DBConversation, error)
	GetConversationByUser(userID string) (storage.DBConversation, error)
	ListConversations() ([]storage.DBConversation, error)
	AppendMessage(msg storage.DBMessage) (storage.DBMessage, error)
	ListMessages(conversationID string) ([]storage.DBMessage, error)
}

// Service owns the conversation threads between donors and admins.
// Each user owns exactly one conversation, created lazily on first
// message. Message history is append-only; ordering is the storage
// layer's seq assignment.
type Service struct {
	store Store
	// histories caches assembled message lists keyed by conversation id
	// plus its LastSeq; every poll tick hits Snapshot, so this keeps
	// repeated polls off the store. A write bumps LastSeq and thereby
	// misses the cache, so a stale entry can never shadow newer
	// messages. Old keys age out by TTL.
	histories geche.Geche[string, []models.Message]
	now       func() time.Time
}

func New(ctx context.Context, store Store) *Service {
	return &Service{
		store:     store,
		histories: geche.NewMapTTLCache[string, []models.Message](ctx, snapshotTTL, time.Minute),
		now:       time.Now,
	}
}

// Append validates, sanitizes and persists one message from sender to
// target. The conversation is resolved through the user-role side of the
// pair and created on first contact. Returns the stored message with its
// server-assigned seq and timestamp.
func (s *Service) Append(from models.Participant, toID, text, emoji string) (models.Message, error) {
	if text == "" && emoji == "" {
		return models.Message{}, models.ErrEmptyMessage
	}

	userID := from.ID
	if from.Role == models.RoleAdmin {
		// The target must be a real account; lazy-create would otherwise
		// turn an admin typo into a ghost conversation in the inbox.
		creds, err := s.store.GetCredentialsByID(toID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.Message{}, models.ErrUnknownParticipant
			}
			return models.Message{}, err
		}
		if models.Role(creds.Role) != models.RoleUser {
			return models.Message{}, models.ErrUnknownParticipant
		}
		userID = toID
	}

	conv, err := s.conversationForUser(userID)
	if err != nil {
		return models.Message{}, err
	}

	// First admin engagement claims the conversation.
	if from.Role == models.RoleAdmin && conv.AdminID == "" {
		conv.AdminID = from.ID
		if err := s.store.UpsertConversation(conv); err != nil {
			return models.Message{}, fmt.Errorf("failed to assign admin: %w", err)
		}
	}

	stored, err := s.store.AppendMessage(storage.DBMessage{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       from.ID,
		SenderRole:     string(from.Role),
		Text:           content.Sanitize(text),
		Emoji:          emoji,
		Timestamp:      s.now().Unix(),
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to append message: %w", err)
	}

	return toModelMessage(stored), nil
}

// conversationForUser returns the user's conversation, creating it if
// this is the first contact.
func (s *Service) conversationForUser(userID string) (storage.DBConversation, error) {
	conv, err := s.store.GetConversationByUser(userID)
	if err == nil {
		return conv, nil
	}

	conv = storage.DBConversation{
		ID:           uuid.NewString(),
		UserID:       userID,
		LastActivity: s.now().Unix(),
	}
	if err := s.store.UpsertConversation(conv); err != nil {
		return storage.DBConversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// Snapshot returns the conversation record with its full ordered message
// history. Serves both poll ticks and reconnect rehydration. The record
// itself is always read fresh; only the message list is cached, under
// the LastSeq observed in the record.
func (s *Service) Snapshot(conversationID string) (models.Conversation, error) {
	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		return models.Conversation{}, err
	}

	result := toModelConversation(conv)

	key := historyKey(conv.ID, conv.LastSeq)
	if msgs, err := s.histories.Get(key); err == nil {
		result.Messages = msgs
		return result, nil
	}

	msgs, err := s.loadMessages(conv.ID)
	if err != nil {
		return models.Conversation{}, err
	}

	// A concurrent append between the record read and the message read
	// leaves msgs ahead of the key; serving the fresher list is fine,
	// caching it under the older key is not.
	var tail int64
	if n := len(msgs); n > 0 {
		tail = msgs[n-1].Seq
	}
	if tail == conv.LastSeq {
		s.histories.Set(key, msgs)
	}

	result.Messages = msgs
	return result, nil
}

// SnapshotByUser resolves the owning user's conversation, creating it
// lazily so a fresh donor session always has a thread to poll.
func (s *Service) SnapshotByUser(userID string) (models.Conversation, error) {
	conv, err := s.conversationForUser(userID)
	if err != nil {
		return models.Conversation{}, err
	}
	return s.Snapshot(conv.ID)
}

func (s *Service) loadMessages(conversationID string) ([]models.Message, error) {
	dbMsgs, err := s.store.ListMessages(conversationID)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, len(dbMsgs))
	for i, m := range dbMsgs {
		msgs[i] = toModelMessage(m)
	}
	return msgs, nil
}

func historyKey(conversationID string, lastSeq int64) string {
	return fmt.Sprintf("%s@%d", conversationID, lastSeq)
}

// List returns all conversation records without messages, most recent
// activity first. Backs the admin dashboard inbox.
func (s *Service) List() ([]models.Conversation, error) {
	dbConvs, err := s.store.ListConversations()
	if err != nil {
		return nil, err
	}

	convs := make([]models.Conversation, len(dbConvs))
	for i, c := range dbConvs {
		convs[i] = toModelConversation(c)
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastActivity > convs[j].LastActivity
	})

	return convs, nil
}

// MarkComplex flags a conversation as needing human escalation.
func (s *Service) MarkComplex(conversationID string, escalated bool) error {
	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		return err
	}
	conv.Complex = escalated
	return s.store.UpsertConversation(conv)
}

func toModelMessage(m storage.DBMessage) models.Message {
	return models.Message{
		ID:             m.ID,
		Seq:            m.Seq,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderRole:     models.Role(m.SenderRole),
		Text:           m.Text,
		Emoji:          m.Emoji,
		Timestamp:      m.Timestamp,
	}
}

func toModelConversation(c storage.DBConversation) models.Conversation {
	return models.Conversation{
		ID:           c.ID,
		UserID:       c.UserID,
		AdminID:      c.AdminID,
		Complex:      c.Complex,
		LastActivity: c.LastActivity,
	}
}
