// Package store persists topics in a document store that enforces unique
// titles and slugs.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mfenderov/knowra/pkg/models"
)

var (
	// ErrNotFound is returned when no topic matches a lookup.
	ErrNotFound = errors.New("topic not found")

	// ErrDuplicate matches every *DuplicateError.
	ErrDuplicate = errors.New("duplicate topic")
)

// Fields guarded by a uniqueness constraint.
const (
	FieldTitle = "title"
	FieldSlug  = "slug"
)

// DuplicateError reports a uniqueness violation on Field.
type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s %q", e.Field, e.Value)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// IsDuplicate reports whether err is a uniqueness violation on field.
func IsDuplicate(err error, field string) bool {
	var dup *DuplicateError
	return errors.As(err, &dup) && dup.Field == field
}

// Store is the topic document store.
type Store interface {
	// FindBySlug returns the topic with the given lowercase slug.
	FindBySlug(ctx context.Context, slug string) (*models.Topic, error)
	// FindByTitle matches title case-insensitively.
	FindByTitle(ctx context.Context, title string) (*models.Topic, error)
	// Insert persists a new topic and sets its ID. It fails with a
	// *DuplicateError when the title or slug is taken.
	Insert(ctx context.Context, topic *models.Topic) error
	// SetSlug assigns a slug to an existing topic.
	SetSlug(ctx context.Context, id primitive.ObjectID, slug string) error
	// SetRelated replaces the related topics of an existing topic.
	SetRelated(ctx context.Context, id primitive.ObjectID, related []string) error
	// SetEnrichment replaces one enrichment category of an existing topic.
	SetEnrichment(ctx context.Context, id primitive.ObjectID, category models.Category, set models.ItemSet) error
	// SlugTaken reports whether a topic other than except holds slug.
	SlugTaken(ctx context.Context, slug string, except primitive.ObjectID) (bool, error)
	// Suggest returns up to limit topics whose title contains query.
	Suggest(ctx context.Context, query string, limit int) ([]models.Suggestion, error)
	// ListMissingSlugs returns topics without a slug.
	ListMissingSlugs(ctx context.Context) ([]*models.Topic, error)
	// ListMissingRelated returns topics with no related topics.
	ListMissingRelated(ctx context.Context) ([]*models.Topic, error)
	Close(ctx context.Context) error
}
