package events

import (
	"context"
	"time"
)

// Event types.
const (
	TypeMessageStored        = "message.stored"
	TypeMessageDelivered     = "message.delivered"
	TypeRequestCreated       = "request.created"
	TypeRequestAccepted      = "request.accepted"
	TypeRequestRejected      = "request.rejected"
	TypeRequestStatusUpdated = "request.status_updated"
)

// Event is a lifecycle notification. Key selects the partition.
type Event struct {
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func New(eventType, key string, payload interface{}) *Event {
	return &Event{
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
