package models

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrEmptyMessage       = errors.New("message needs text or emoji")
	ErrUnknownParticipant = errors.New("unknown participant")
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Participant is a user or admin identity capable of holding one live
// chat session. Immutable for the lifetime of a session.
type Participant struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName"`
}

// Message is one entry in a conversation. Seq and Timestamp are
// server-assigned; Seq is monotonic within a conversation and is what
// clients use to deduplicate socket deliveries against poll snapshots.
type Message struct {
	ID             string `json:"id"`
	Seq            int64  `json:"seq"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderRole     Role   `json:"senderRole"`
	Text           string `json:"text"`
	Emoji          string `json:"emoji,omitempty"`
	Timestamp      int64  `json:"timestamp"` // Unix timestamp (seconds)
}

// Conversation is the message thread between one user and at most one admin.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	AdminID      string    `json:"adminId,omitempty"` // empty until an admin engages
	Messages     []Message `json:"messages,omitempty"`
	Complex      bool      `json:"complex"`
	LastActivity int64     `json:"lastActivity"` // Unix timestamp (seconds)
}

type ClientEventType string

const (
	ClientEventRegister ClientEventType = "register"
	ClientEventSend     ClientEventType = "send"
	ClientEventTyping   ClientEventType = "typing"
)

// ClientEvent is the tagged envelope for everything a client sends over
// the socket. Fields beyond Type are per event type and are validated at
// the boundary, never assumed.
type ClientEvent struct {
	Type     ClientEventType `json:"type"`
	Identity string          `json:"identity,omitempty"` // register
	Role     Role            `json:"role,omitempty"`     // register
	To       string          `json:"to,omitempty"`       // send, typing
	Text     string          `json:"text,omitempty"`     // send
	Emoji    string          `json:"emoji,omitempty"`    // send
	IsTyping bool            `json:"isTyping,omitempty"` // typing
}

type ServerEventType string

const (
	ServerEventNewMessage   ServerEventType = "newMessage"
	ServerEventTypingStatus ServerEventType = "typingStatus"
	ServerEventRejected     ServerEventType = "rejected"
	ServerEventBroadcast    ServerEventType = "broadcast"
)

// ServerEvent is the tagged envelope for everything the server pushes to
// a client session.
type ServerEvent struct {
	Type     ServerEventType `json:"type"`
	Message  *Message        `json:"message,omitempty"`  // newMessage
	From     string          `json:"from,omitempty"`     // typingStatus
	IsTyping bool            `json:"isTyping,omitempty"` // typingStatus
	Reason   string          `json:"reason,omitempty"`   // rejected
	HTML     string          `json:"html,omitempty"`     // broadcast
}
