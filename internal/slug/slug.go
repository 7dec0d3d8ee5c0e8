// Package slug derives unique URL-safe identifiers from topic titles.
package slug

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mfenderov/knowra/internal/store"
)

const (
	// MaxSuffix is the highest numeric suffix tried for one base slug.
	MaxSuffix = 99
	// MaxCommitAttempts bounds how often Commit recomputes after losing a race.
	MaxCommitAttempts = 5
)

// ErrExhausted is returned when no free slug could be committed.
var ErrExhausted = errors.New("slug collision retries exhausted")

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases title, replaces every run of characters outside
// [a-z0-9] with a single dash and trims leading and trailing dashes.
func Slugify(title string) string {
	s := nonAlnum.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(s, "-")
}

// Base returns the slug a title starts from. Titles with no ASCII letters or
// digits get a stable hash-derived slug.
func Base(title string) string {
	if s := Slugify(title); s != "" {
		return s
	}
	sum := sha256.Sum256([]byte(title))
	return "topic-" + hex.EncodeToString(sum[:4])
}

// Checker reports whether a slug belongs to a record other than except.
type Checker interface {
	SlugTaken(ctx context.Context, slug string, except primitive.ObjectID) (bool, error)
}

// Allocator finds free slugs.
type Allocator struct {
	checker Checker
}

// NewAllocator creates an allocator that checks availability with c.
func NewAllocator(c Checker) *Allocator {
	return &Allocator{checker: c}
}

// Allocate returns the first free slug among base, base-1 ... base-MaxSuffix.
// except excludes the record being updated.
func (a *Allocator) Allocate(ctx context.Context, title string, except primitive.ObjectID) (string, error) {
	base := Base(title)
	for i := 0; i <= MaxSuffix; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		taken, err := a.checker.SlugTaken(ctx, candidate, except)
		if err != nil {
			return "", fmt.Errorf("failed to check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q has no free suffix up to %d", ErrExhausted, base, MaxSuffix)
}

// Commit allocates a slug and hands it to write, which must persist it under
// the store's slug uniqueness constraint. A slug conflict from write means
// another writer claimed the slug between check and write, so the whole
// sequence runs again, up to MaxCommitAttempts times.
func (a *Allocator) Commit(ctx context.Context, title string, except primitive.ObjectID, write func(slug string) error) (string, error) {
	for attempt := 1; attempt <= MaxCommitAttempts; attempt++ {
		s, err := a.Allocate(ctx, title, except)
		if err != nil {
			return "", err
		}

		err = write(s)
		if err == nil {
			return s, nil
		}
		if !store.IsDuplicate(err, store.FieldSlug) {
			return "", err
		}
		slog.Debug("slug claimed concurrently, retrying", "slug", s, "attempt", attempt)
	}
	return "", fmt.Errorf("%w: %q after %d attempts", ErrExhausted, title, MaxCommitAttempts)
}
