package enrichment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mfenderov/knowra/internal/clock"
	"github.com/mfenderov/knowra/internal/store"
	"github.com/mfenderov/knowra/pkg/models"
)

type fakeSearcher struct {
	calls   atomic.Int32
	items   []models.Item
	err     error
	release chan struct{}
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]models.Item, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, searchers map[models.Category]Searcher) (*Coordinator, *store.Memory, *models.Topic) {
	t.Helper()
	s := store.NewMemory()
	topic := &models.Topic{Title: "Quantum Entanglement", Slug: "quantum-entanglement"}
	if err := s.Insert(context.Background(), topic); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return New(s, searchers, Config{Clock: clock.NewFake(now)}), s, topic
}

func TestExpand_FetchesOnceThenServesPersisted(t *testing.T) {
	ctx := context.Background()
	videos := &fakeSearcher{items: []models.Item{{ID: "abc", Title: "Entanglement explained", URL: "https://example.com/v/abc"}}}
	c, s, topic := setup(t, map[models.Category]Searcher{models.CategoryVideos: videos})

	first, err := c.Expand(ctx, topic, models.CategoryVideos)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("Expand() = %v", first)
	}
	if c.State(topic, models.CategoryVideos) != Cached {
		t.Errorf("State() = %v, want cached", c.State(topic, models.CategoryVideos))
	}

	second, err := c.Expand(ctx, topic, models.CategoryVideos)
	if err != nil {
		t.Fatalf("second Expand() error = %v", err)
	}
	if len(second) != 1 || videos.calls.Load() != 1 {
		t.Errorf("second Expand() should not call the integration again, calls = %d", videos.calls.Load())
	}

	// A fresh load from the store also sees the persisted results.
	stored, _ := s.FindBySlug(ctx, "quantum-entanglement")
	if len(stored.Enrichment.Videos.Items) != 1 {
		t.Errorf("persisted videos = %+v", stored.Enrichment.Videos)
	}
	if !stored.Enrichment.Videos.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", stored.Enrichment.Videos.UpdatedAt, now)
	}
	if _, err := c.Expand(ctx, stored, models.CategoryVideos); err != nil || videos.calls.Load() != 1 {
		t.Errorf("reloaded topic should be served from the record")
	}
}

func TestExpand_EmptyResultIsPersisted(t *testing.T) {
	ctx := context.Background()
	books := &fakeSearcher{}
	c, s, topic := setup(t, map[models.Category]Searcher{models.CategoryBooks: books})

	items, err := c.Expand(ctx, topic, models.CategoryBooks)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("Expand() = %#v, want empty non-nil list", items)
	}

	stored, _ := s.FindBySlug(ctx, topic.Slug)
	if stored.Enrichment.Books.UpdatedAt.IsZero() {
		t.Error("empty result should still be written with a timestamp")
	}
}

func TestExpand_FailureLeavesCategoryUnfetched(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("quota exceeded")
	wiki := &fakeSearcher{err: boom}
	books := &fakeSearcher{items: []models.Item{{Title: "Book", URL: "https://example.com/b"}}}
	c, s, topic := setup(t, map[models.Category]Searcher{
		models.CategoryWiki:  wiki,
		models.CategoryBooks: books,
	})

	_, err := c.Expand(ctx, topic, models.CategoryWiki)
	if !errors.Is(err, ErrSearchFailed) || !errors.Is(err, boom) {
		t.Fatalf("Expand() error = %v, want ErrSearchFailed wrapping cause", err)
	}
	if c.State(topic, models.CategoryWiki) != Unfetched {
		t.Errorf("failed category should stay unfetched")
	}

	stored, _ := s.FindBySlug(ctx, topic.Slug)
	if !stored.Enrichment.Wiki.UpdatedAt.IsZero() {
		t.Error("nothing should be persisted for a failed fetch")
	}

	if _, err := c.Expand(ctx, topic, models.CategoryBooks); err != nil {
		t.Errorf("other categories must still expand, got %v", err)
	}

	// Retry after the integration recovers.
	wiki.err = nil
	wiki.items = []models.Item{{Title: "Quantum entanglement", URL: "https://en.wikipedia.org/?curid=25280"}}
	items, err := c.Expand(ctx, topic, models.CategoryWiki)
	if err != nil || len(items) != 1 {
		t.Errorf("retry Expand() = %v, %v", items, err)
	}
}

func TestExpand_UnknownCategory(t *testing.T) {
	c, _, topic := setup(t, map[models.Category]Searcher{})
	if _, err := c.Expand(context.Background(), topic, models.CategoryVideos); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("Expand() error = %v, want ErrUnknownCategory", err)
	}
}

func TestExpand_ConcurrentCallersShareOneFetch(t *testing.T) {
	videos := &fakeSearcher{
		items:   []models.Item{{ID: "x", Title: "t", URL: "u"}},
		release: make(chan struct{}),
	}
	c, _, topic := setup(t, map[models.Category]Searcher{models.CategoryVideos: videos})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := *topic
			if _, err := c.Expand(context.Background(), &local, models.CategoryVideos); err != nil {
				t.Errorf("Expand() error = %v", err)
			}
		}()
	}

	// Wait until the fetch is in flight, then let it finish.
	deadline := time.Now().Add(2 * time.Second)
	for c.State(topic, models.CategoryVideos) != Fetching {
		if time.Now().After(deadline) {
			t.Fatal("fetch never started")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(videos.release)
	wg.Wait()

	if n := videos.calls.Load(); n != 1 {
		t.Errorf("Search called %d times, want 1", n)
	}
}

// blockingSearcher honours cancellation while it waits for release.
type blockingSearcher struct {
	items   []models.Item
	release chan struct{}
}

func (b *blockingSearcher) Search(ctx context.Context, query string) ([]models.Item, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return b.items, nil
	}
}

func TestExpand_AbandonedCallerDoesNotFailJoinedCallers(t *testing.T) {
	videos := &blockingSearcher{
		items:   []models.Item{{ID: "x", Title: "Entanglement explained", URL: "u"}},
		release: make(chan struct{}),
	}
	c, s, topic := setup(t, map[models.Category]Searcher{models.CategoryVideos: videos})

	abandoned, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		local := *topic
		c.Expand(abandoned, &local, models.CategoryVideos)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for c.State(topic, models.CategoryVideos) != Fetching {
		if time.Now().After(deadline) {
			t.Fatal("fetch never started")
		}
		time.Sleep(time.Millisecond)
	}

	var joined []models.Item
	var joinedErr error
	go func() {
		defer wg.Done()
		local := *topic
		joined, joinedErr = c.Expand(context.Background(), &local, models.CategoryVideos)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(videos.release)
	wg.Wait()

	if joinedErr != nil {
		t.Fatalf("joined Expand() error = %v", joinedErr)
	}
	if len(joined) != 1 {
		t.Errorf("joined Expand() = %v, want 1 item", joined)
	}

	stored, err := s.FindBySlug(context.Background(), topic.Slug)
	if err != nil {
		t.Fatalf("FindBySlug() error = %v", err)
	}
	if len(stored.Enrichment.Videos.Items) != 1 {
		t.Errorf("persisted videos = %+v, want 1 item", stored.Enrichment.Videos.Items)
	}
}

func TestExpandAll_IsolatesFailures(t *testing.T) {
	c, _, topic := setup(t, map[models.Category]Searcher{
		models.CategoryBooks:  &fakeSearcher{items: []models.Item{{Title: "B", URL: "b"}}},
		models.CategoryVideos: &fakeSearcher{err: errors.New("missing API key")},
		models.CategoryWiki:   &fakeSearcher{items: []models.Item{{Title: "W", URL: "w"}}},
	})

	got := c.ExpandAll(context.Background(), topic)

	if len(got) != 2 {
		t.Errorf("ExpandAll() returned %d categories, want 2", len(got))
	}
	if _, ok := got[models.CategoryVideos]; ok {
		t.Error("failed category should be absent")
	}
	if len(topic.Enrichment.Books.Items) != 1 || len(topic.Enrichment.Wiki.Items) != 1 {
		t.Errorf("topic should be updated in place: %+v", topic.Enrichment)
	}
}

func TestState_String(t *testing.T) {
	if Unfetched.String() != "unfetched" || Fetching.String() != "fetching" || Cached.String() != "cached" {
		t.Error("unexpected State strings")
	}
}
