package models

// Socket event names
const (
	EventJoin            = "join"
	EventTyping          = "typing"
	EventNewMessage      = "newMessage"
	EventMessageSent     = "messageSent"
	EventMessageEdited   = "messageEdited"
	EventMessageReaction = "messageReaction"
)

// JoinPayload registers the connection for a user's events.
type JoinPayload struct {
	UserID string `json:"userId"`
}

// TypingPayload is sent in both directions while a user is typing.
type TypingPayload struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
}

// ReactionPayload carries the authoritative reaction set of a message.
type ReactionPayload struct {
	MessageID string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}
