package events

import (
	"testing"
	"time"

	"github.com/mfenderov/knowra/pkg/models"
)

func TestNewTopicCreated(t *testing.T) {
	topic := &models.Topic{Title: "Go", Slug: "go"}
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	a := NewTopicCreated(topic, at)
	b := NewTopicCreated(topic, at)

	if a.ID == b.ID {
		t.Error("events should get distinct IDs")
	}
	if a.Topic == topic {
		t.Error("event should carry a snapshot, not the caller's pointer")
	}
	topic.Slug = "changed"
	if a.Topic.Slug != "go" {
		t.Errorf("snapshot slug = %q, want go", a.Topic.Slug)
	}
	if !a.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v", a.Timestamp)
	}
}
