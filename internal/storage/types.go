package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBCredentials struct {
	ID           string `msgpack:"id"`
	UserName     string `msgpack:"userName"`
	DisplayName  string `msgpack:"displayName"`
	Role         string `msgpack:"role"`
	PasswordHash string `msgpack:"passwordHash"`
	Status       string `msgpack:"status"`
}

func (c *DBCredentials) Key() []byte {
	return []byte(c.UserName)
}

func (c *DBCredentials) MarshalBinary() (data []byte, err error) {
	type alias DBCredentials
	return msgpack.Marshal((*alias)(c))
}

func (c *DBCredentials) UnmarshalBinary(data []byte) error {
	type alias DBCredentials
	return msgpack.Unmarshal(data, (*alias)(c))
}

type DBToken struct {
	UserID string `msgpack:"userId"`
	Token  string `msgpack:"token"`
}

func (t *DBToken) Key() []byte {
	return []byte(t.Token)
}

func (t *DBToken) MarshalBinary() (data []byte, err error) {
	type alias DBToken
	return msgpack.Marshal((*alias)(t))
}

func (t *DBToken) UnmarshalBinary(data []byte) error {
	type alias DBToken
	return msgpack.Unmarshal(data, (*alias)(t))
}

type DBConversation struct {
	ID           string `msgpack:"id"`
	UserID       string `msgpack:"userId"`
	AdminID      string `msgpack:"adminId"`
	Complex      bool   `msgpack:"complex"`
	LastSeq      int64  `msgpack:"lastSeq"`
	LastActivity int64  `msgpack:"lastActivity"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

type DBMessage struct {
	ID             string `msgpack:"id"`
	Seq            int64  `msgpack:"seq"`
	ConversationID string `msgpack:"conversationId"`
	SenderID       string `msgpack:"senderId"`
	SenderRole     string `msgpack:"senderRole"`
	Text           string `msgpack:"text"`
	Emoji          string `msgpack:"emoji"`
	Timestamp      int64  `msgpack:"timestamp"`
}

// Key is the big-endian seq so a bucket cursor walks messages in
// server-assigned order.
func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(m.Seq))
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBPushSubscription struct {
	UserID       string `msgpack:"userId"`
	Subscription []byte `msgpack:"subscription"` // raw webpush subscription JSON
}

func (p *DBPushSubscription) Key() []byte {
	return []byte(p.UserID)
}

func (p *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(p))
}

func (p *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(p))
}
