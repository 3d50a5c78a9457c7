package models

import (
	"strings"
	"time"
)

// Kind is the payload type of a message.
type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
)

// Status tracks delivery of a locally originated message. Records that
// arrived from history or the socket carry StatusSent or no status at all.
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// ProvisionalPrefix marks ids generated on the client before the server
// has confirmed a message.
const ProvisionalPrefix = "temp-"

// ReplyPreviewLength is the number of runes of the quoted message kept in
// a reply reference.
const ReplyPreviewLength = 100

// Reaction is a single user's emoji on a message. A user holds at most
// one reaction per message.
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// ReplyRef quotes the message being replied to. It is never nested.
type ReplyRef struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Sender  UserRef `json:"sender"`
}

// Message represents a chat message in the system
type Message struct {
	ID            string     `json:"id"`
	ClientID      string     `json:"clientId,omitempty"`
	Sender        UserRef    `json:"sender"`
	Recipient     UserRef    `json:"recipient"`
	Content       string     `json:"content"`
	Kind          Kind       `json:"type"`
	CreatedAt     time.Time  `json:"createdAt"`
	ReplyTo       *ReplyRef  `json:"replyTo,omitempty"`
	Reactions     []Reaction `json:"reactions,omitempty"`
	Edited        bool       `json:"edited,omitempty"`
	EditedAt      *time.Time `json:"editedAt,omitempty"`
	Status        Status     `json:"status,omitempty"`
	ThreadID      string     `json:"threadId,omitempty"`
	AudioURL      string     `json:"audioUrl,omitempty"`
	AudioDuration float64    `json:"audioDuration,omitempty"`
}

// IsProvisional reports whether the message still carries a client id.
func (m *Message) IsProvisional() bool {
	return strings.HasPrefix(m.ID, ProvisionalPrefix)
}

// ThreadRoot returns the id of the thread the message belongs to. A message
// without a thread id is its own root.
func (m *Message) ThreadRoot() string {
	if m.ThreadID != "" {
		return m.ThreadID
	}
	return m.ID
}

// Between reports whether the message was exchanged between a and b, in
// either direction.
func (m *Message) Between(a, b string) bool {
	return (m.Sender.ID == a && m.Recipient.ID == b) ||
		(m.Sender.ID == b && m.Recipient.ID == a)
}

// ReactionOf returns the emoji userID reacted with, if any.
func (m *Message) ReactionOf(userID string) (string, bool) {
	for _, r := range m.Reactions {
		if r.UserID == userID {
			return r.Emoji, true
		}
	}
	return "", false
}

// Clone returns a deep copy so callers can never mutate a stored record
// through a shared slice or pointer.
func (m Message) Clone() Message {
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		m.ReplyTo = &r
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		m.EditedAt = &t
	}
	if m.Reactions != nil {
		m.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	return m
}

// Reply builds the quote for a reply to m, truncating long content.
func (m *Message) Reply() *ReplyRef {
	content := m.Content
	if r := []rune(content); len(r) > ReplyPreviewLength {
		content = string(r[:ReplyPreviewLength])
	}
	return &ReplyRef{ID: m.ID, Content: content, Sender: m.Sender}
}

// MessagePage is one page of history as returned by the REST API.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

// PageQuery selects a page of history strictly older than Before.
type PageQuery struct {
	Limit  int
	Before *time.Time
}

// SendRequest is the body of a send call.
type SendRequest struct {
	Content  string    `json:"content"`
	Kind     Kind      `json:"type"`
	ReplyTo  *ReplyRef `json:"replyTo,omitempty"`
	ThreadID string    `json:"threadId,omitempty"`
	ClientID string    `json:"clientId,omitempty"`
}

// EditRequest is the body of an edit call.
type EditRequest struct {
	Content string `json:"content"`
}

// ReactionRequest is the body of a reaction call.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// VoiceNote is a recorded audio clip waiting to be uploaded.
type VoiceNote struct {
	Audio    []byte
	FileName string
	Duration float64
	ReplyTo  *ReplyRef
	ClientID string

	// OnProgress receives the upload percentage (0-100).
	OnProgress func(percent int)
}
