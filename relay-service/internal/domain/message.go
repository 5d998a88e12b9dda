package domain

import (
	"time"
)

// Message is a stored direct message.
type Message struct {
	ID        string    `json:"id"`
	FromUser  string    `json:"from_user"`
	ToUser    string    `json:"to_user"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Delivered bool      `json:"delivered"`
}

// Payload is the frame pushed to the recipient's socket. The delivered
// flag reflects the state after a successful push.
func (m *Message) Payload() *MessagePayload {
	return &MessagePayload{
		ID:        m.ID,
		FromUser:  m.FromUser,
		ToUser:    m.ToUser,
		Text:      m.Text,
		Timestamp: m.Timestamp,
		Delivered: true,
	}
}

// MessagePayload is the wire shape of a chat message.
type MessagePayload struct {
	ID        string    `json:"id"`
	FromUser  string    `json:"from_user"`
	ToUser    string    `json:"to_user"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Delivered bool      `json:"delivered"`
}

// InboundMessage is a frame sent by a connected client. Older clients send
// the recipient as "to", newer ones as "to_user".
type InboundMessage struct {
	To     string `json:"to"`
	ToUser string `json:"to_user"`
	Text   string `json:"text"`
}

// Recipient returns the addressed username.
func (m *InboundMessage) Recipient() string {
	if m.To != "" {
		return m.To
	}
	return m.ToUser
}
