package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/mfenderov/knowra/pkg/models"
)

// TopicCreatedEvent is sent when the resolver persists a new topic.
type TopicCreatedEvent struct {
	ID        uuid.UUID     // unique per event, used for log correlation
	Topic     *models.Topic // snapshot of the persisted record
	Timestamp time.Time
}

// NewTopicCreated builds the event for topic.
func NewTopicCreated(topic *models.Topic, at time.Time) TopicCreatedEvent {
	return TopicCreatedEvent{
		ID:        uuid.New(),
		Topic:     topic.Clone(),
		Timestamp: at,
	}
}

