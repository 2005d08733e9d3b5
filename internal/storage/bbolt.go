package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketCredentials   = []byte("credentials")
	bucketTokens        = []byte("tokens")
	bucketConversations = []byte("conversations")
	bucketConvByUser    = []byte("conversations_by_user")
	bucketMessages      = []byte("messages")
	bucketPushSubs      = []byte("push_subscriptions")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketCredentials,
			bucketTokens,
			bucketConversations,
			bucketConvByUser,
			bucketMessages,
			bucketPushSubs,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertCredentials stores new or updated account credentials.
func (s *BboltStorage) UpsertCredentials(creds DBCredentials) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		data, err := creds.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(creds.Key(), data)
	})
}

func (s *BboltStorage) GetCredentials(userName string) (DBCredentials, error) {
	var creds DBCredentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		data := b.Get([]byte(userName))
		if data == nil {
			return models.ErrNotFound
		}
		return creds.UnmarshalBinary(data)
	})
	return creds, err
}

// GetCredentialsByID resolves an account by its participant id. The
// bucket is keyed by username, so this scans; account counts are small.
func (s *BboltStorage) GetCredentialsByID(id string) (DBCredentials, error) {
	var found DBCredentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		return b.ForEach(func(k, v []byte) error {
			var creds DBCredentials
			if err := creds.UnmarshalBinary(v); err != nil {
				return err
			}
			if creds.ID == id {
				found = creds
			}
			return nil
		})
	})
	if err != nil {
		return DBCredentials{}, err
	}
	if found.ID == "" {
		return DBCredentials{}, models.ErrNotFound
	}
	return found, nil
}

// ListCredentials returns all account credentials stored in the database.
func (s *BboltStorage) ListCredentials() ([]DBCredentials, error) {
	var all []DBCredentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		return b.ForEach(func(k, v []byte) error {
			var creds DBCredentials
			if err := creds.UnmarshalBinary(v); err != nil {
				return err
			}
			all = append(all, creds)
			return nil
		})
	})
	return all, err
}

func (s *BboltStorage) UpsertToken(userID string, tokenHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		dbToken := &DBToken{
			UserID: userID,
			Token:  tokenHash,
		}
		data, err := dbToken.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbToken.Key(), data)
	})
}

func (s *BboltStorage) DeleteToken(tokenHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		return b.Delete([]byte(tokenHash))
	})
}

// ListTokens returns a map of token hash -> user ID.
func (s *BboltStorage) ListTokens() (map[string]string, error) {
	tokens := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		return b.ForEach(func(k, v []byte) error {
			var dbToken DBToken
			if err := dbToken.UnmarshalBinary(v); err != nil {
				return err
			}
			tokens[dbToken.Token] = dbToken.UserID
			return nil
		})
	})
	return tokens, err
}

// UpsertConversation saves the conversation record (without messages).
func (s *BboltStorage) UpsertConversation(conv DBConversation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if conv.UserID == "" {
			return errors.New("conversation missing userID")
		}
		if err := putConversation(tx, conv); err != nil {
			return err
		}
		return tx.Bucket(bucketConvByUser).Put([]byte(conv.UserID), []byte(conv.ID))
	})
}

func putConversation(tx *bbolt.Tx, conv DBConversation) error {
	data, err := conv.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Bucket(bucketConversations).Put(conv.Key(), data)
}

func getConversation(tx *bbolt.Tx, id string) (DBConversation, error) {
	var conv DBConversation
	data := tx.Bucket(bucketConversations).Get([]byte(id))
	if data == nil {
		return conv, models.ErrNotFound
	}
	return conv, conv.UnmarshalBinary(data)
}

func (s *BboltStorage) GetConversation(id string) (DBConversation, error) {
	var conv DBConversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		conv, err = getConversation(tx, id)
		return err
	})
	return conv, err
}

// GetConversationByUser resolves the owning user's conversation through
// the user index.
func (s *BboltStorage) GetConversationByUser(userID string) (DBConversation, error) {
	var conv DBConversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketConvByUser).Get([]byte(userID))
		if id == nil {
			return models.ErrNotFound
		}
		var err error
		conv, err = getConversation(tx, string(id))
		return err
	})
	return conv, err
}

// ListConversations returns all conversation records, messages excluded.
func (s *BboltStorage) ListConversations() ([]DBConversation, error) {
	var convs []DBConversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		return b.ForEach(func(k, v []byte) error {
			var conv DBConversation
			if err := conv.UnmarshalBinary(v); err != nil {
				return err
			}
			convs = append(convs, conv)
			return nil
		})
	})
	return convs, err
}

// AppendMessage assigns the next sequence number within the conversation
// and persists the message. Seq assignment and the write happen in one
// bbolt update transaction, so concurrent senders serialize on the store
// and persisted order matches arrival order. The stored message (with Seq
// and updated conversation bookkeeping) is returned.
func (s *BboltStorage) AppendMessage(msg DBMessage) (DBMessage, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if msg.ConversationID == "" {
			return errors.New("message missing conversationID")
		}

		conv, err := getConversation(tx, msg.ConversationID)
		if err != nil {
			return fmt.Errorf("conversation %s: %w", msg.ConversationID, err)
		}

		conv.LastSeq++
		msg.Seq = conv.LastSeq
		conv.LastActivity = msg.Timestamp

		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(msg.ConversationID))
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}

		data, err := msg.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := chatBucket.Put(msg.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		return putConversation(tx, conv)
	})
	return msg, err
}

// ListMessages returns all messages of a conversation in seq order.
func (s *BboltStorage) ListMessages(conversationID string) ([]DBMessage, error) {
	var messages []DBMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(conversationID))
		if chatBucket == nil {
			return nil // no messages yet
		}
		c := chatBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, dbMsg)
		}
		return nil
	})
	return messages, err
}

func (s *BboltStorage) UpsertPushSubscription(sub DBPushSubscription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPushSubs)
		data, err := sub.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(sub.Key(), data)
	})
}

func (s *BboltStorage) GetPushSubscription(userID string) (DBPushSubscription, error) {
	var sub DBPushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPushSubs).Get([]byte(userID))
		if data == nil {
			return models.ErrNotFound
		}
		return sub.UnmarshalBinary(data)
	})
	return sub, err
}
