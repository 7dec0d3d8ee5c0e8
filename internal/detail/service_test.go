package detail

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mfenderov/knowra/internal/cache"
	"github.com/mfenderov/knowra/internal/clock"
	"github.com/mfenderov/knowra/internal/ratelimit"
	"github.com/mfenderov/knowra/internal/scraper"
	"github.com/mfenderov/knowra/pkg/models"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   atomic.Int32
	prompts []string
	err     error
}

func (g *fakeGenerator) GenerateDetail(_ context.Context, title, fact, prompt string) (*models.Detail, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return &models.Detail{Caption: title + ": " + fact, Points: []string{"p1", "p2"}}, nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

var start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestLookup_CacheHit(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(gen, Config{Clock: clock.NewFake(start)})
	ctx := context.Background()

	first, err := s.Lookup(ctx, "Quantum Entanglement", "Bell inequalities")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	second, err := s.Lookup(ctx, "Quantum Entanglement", "Bell inequalities")
	if err != nil {
		t.Fatalf("second Lookup() error = %v", err)
	}

	if first.Markdown() != second.Markdown() {
		t.Errorf("cached content differs:\n%s\n%s", first.Markdown(), second.Markdown())
	}
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("GenerateDetail called %d times, want 1", n)
	}

	if _, err := s.Lookup(ctx, "Quantum Entanglement", "No-cloning"); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if n := gen.calls.Load(); n != 2 {
		t.Errorf("a different fact should miss, calls = %d", n)
	}
}

func TestLookup_CallerMutationDoesNotReachCache(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(gen, Config{Clock: clock.NewFake(start)})
	ctx := context.Background()

	first, err := s.Lookup(ctx, "Go", "goroutines")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	first.Points[0] = "changed by caller"
	first.Points = append(first.Points, "extra")

	second, err := s.Lookup(ctx, "Go", "goroutines")
	if err != nil {
		t.Fatalf("second Lookup() error = %v", err)
	}
	if want := []string{"p1", "p2"}; strings.Join(second.Points, ",") != strings.Join(want, ",") {
		t.Errorf("cached Points = %v, want %v", second.Points, want)
	}

	second.Points[1] = "changed again"
	third, _ := s.Lookup(ctx, "Go", "goroutines")
	if third.Points[1] != "p2" {
		t.Errorf("cache hit shares Points with a caller: %v", third.Points)
	}
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("GenerateDetail called %d times, want 1", n)
	}
}

func TestLookup_ExpiresAfterMaxAge(t *testing.T) {
	fake := clock.NewFake(start)
	gen := &fakeGenerator{}
	s := New(gen, Config{MaxAge: time.Hour, Clock: fake})
	ctx := context.Background()

	s.Lookup(ctx, "Go", "channels")
	fake.Advance(time.Hour + time.Second)
	s.Lookup(ctx, "Go", "channels")

	if n := gen.calls.Load(); n != 2 {
		t.Errorf("expired entry should be regenerated, calls = %d", n)
	}
}

func TestLookup_FailureNotCached(t *testing.T) {
	gen := &fakeGenerator{err: ratelimit.ErrRateLimited}
	s := New(gen, Config{})
	ctx := context.Background()

	if _, err := s.Lookup(ctx, "Go", "channels"); !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Fatalf("Lookup() error = %v, want ErrRateLimited", err)
	}
	if s.Len() != 0 {
		t.Errorf("failed lookup should not be cached")
	}

	gen.err = nil
	if _, err := s.Lookup(ctx, "Go", "channels"); err != nil {
		t.Errorf("retry Lookup() error = %v", err)
	}
}

func TestLookup_SharedTier(t *testing.T) {
	shared := &mapCache{data: map[string]string{}}
	ctx := context.Background()

	// One process generates and publishes the answer.
	gen1 := &fakeGenerator{}
	if _, err := New(gen1, Config{Shared: shared}).Lookup(ctx, "Go", "interfaces"); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	raw, ok := shared.data[cache.Key("detail", "Go", "interfaces")]
	if !ok {
		t.Fatal("answer should be written to the shared tier")
	}
	var stored models.Detail
	if err := json.Unmarshal([]byte(raw), &stored); err != nil || stored.Caption != "Go: interfaces" {
		t.Errorf("shared entry = %q", raw)
	}

	// A second process with a cold local cache reads it back.
	gen2 := &fakeGenerator{}
	s2 := New(gen2, Config{Shared: shared})
	got, err := s2.Lookup(ctx, "Go", "interfaces")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got.Caption != "Go: interfaces" || gen2.calls.Load() != 0 {
		t.Errorf("shared hit should skip generation, got %+v after %d calls", got, gen2.calls.Load())
	}
	if s2.Len() != 1 {
		t.Errorf("shared hit should populate the local tier")
	}
}

func TestLookup_ConcurrentMissesGenerateOnce(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(gen, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Lookup(context.Background(), "Go", "goroutines")
		}()
	}
	wg.Wait()

	// Late arrivals hit the local tier; early ones share one flight.
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("GenerateDetail called %d times, want 1", n)
	}
}

func TestLookupItem_Prompts(t *testing.T) {
	tests := []struct {
		name     string
		category models.Category
		item     models.Item
		want     []string
	}{
		{
			name:     "video",
			category: models.CategoryVideos,
			item:     models.Item{ID: "https://v/1", Title: "Entanglement in 5 minutes", Description: "short intro", URL: "https://v/1"},
			want:     []string{"Entanglement in 5 minutes", "short intro", "https://v/1", `"points"`},
		},
		{
			name:     "book",
			category: models.CategoryBooks,
			item:     models.Item{Title: "Quantum Mechanics", Authors: []string{"Susskind", "Friedman"}, Description: "theoretical minimum", URL: "https://b/1"},
			want:     []string{`"Quantum Mechanics"`, "Susskind, Friedman", "theoretical minimum", `"caption"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			s := New(gen, Config{})

			if _, err := s.LookupItem(context.Background(), "Quantum", tt.category, tt.item); err != nil {
				t.Fatalf("LookupItem() error = %v", err)
			}
			if _, err := s.LookupItem(context.Background(), "Quantum", tt.category, tt.item); err != nil {
				t.Fatalf("LookupItem() error = %v", err)
			}
			if gen.calls.Load() != 1 {
				t.Errorf("second LookupItem should be cached, calls = %d", gen.calls.Load())
			}
			for _, w := range tt.want {
				if !strings.Contains(gen.prompts[0], w) {
					t.Errorf("prompt missing %q:\n%s", w, gen.prompts[0])
				}
			}
		})
	}
}

func TestLookupItem_CategoriesDoNotShareKeys(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(gen, Config{})
	item := models.Item{ID: "same", Title: "Same Title", URL: "u"}

	s.LookupItem(context.Background(), "T", models.CategoryVideos, item)
	s.LookupItem(context.Background(), "T", models.CategoryBooks, item)
	s.LookupItem(context.Background(), "T", models.CategoryWiki, item)

	if n := gen.calls.Load(); n != 3 {
		t.Errorf("each category should have its own key, calls = %d", n)
	}
}

type fakeFetcher struct {
	html string
	err  error
	urls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*scraper.Page, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return &scraper.Page{URL: url, HTML: f.html}, nil
}

type upperConverter struct{ maxLen int }

func (c *upperConverter) Markdown(html string, maxLen int) (string, error) {
	c.maxLen = maxLen
	return strings.ToUpper(html), nil
}

func TestLookupItem_MissingVideoIDDoesNotShareKey(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(gen, Config{})
	ctx := context.Background()

	a, _ := s.LookupItem(ctx, "T", models.CategoryVideos, models.Item{Title: "Intro", Description: "A"})
	b, _ := s.LookupItem(ctx, "T", models.CategoryVideos, models.Item{ID: "Intro", Description: "B"})

	if n := gen.calls.Load(); n != 2 {
		t.Errorf("distinct videos should have distinct keys, calls = %d", n)
	}
	if a.Caption == b.Caption {
		t.Errorf("distinct videos got the same answer %q", a.Caption)
	}
}

func TestLookupItem_WikiUsesPageText(t *testing.T) {
	gen := &fakeGenerator{}
	fetcher := &fakeFetcher{html: "page body"}
	conv := &upperConverter{}
	s := New(gen, Config{Fetcher: fetcher, Converter: conv})

	item := models.Item{Title: "Quantum entanglement", URL: "https://en.wikipedia.org/?curid=25280", Description: "intro"}
	if _, err := s.LookupItem(context.Background(), "Quantum", models.CategoryWiki, item); err != nil {
		t.Fatalf("LookupItem() error = %v", err)
	}

	if len(fetcher.urls) != 1 || fetcher.urls[0] != item.URL {
		t.Errorf("fetched %v", fetcher.urls)
	}
	if conv.maxLen != MaxPageChars {
		t.Errorf("converter maxLen = %d, want %d", conv.maxLen, MaxPageChars)
	}
	if !strings.Contains(gen.prompts[0], "PAGE BODY") {
		t.Errorf("prompt should embed converted page text:\n%s", gen.prompts[0])
	}
}

func TestLookupItem_WikiFetchFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(gen, Config{Fetcher: &fakeFetcher{err: errors.New("timeout")}, Converter: &upperConverter{}})

	item := models.Item{Title: "Bell test", URL: "https://en.wikipedia.org/?curid=1", Description: "An experiment"}
	if _, err := s.LookupItem(context.Background(), "Quantum", models.CategoryWiki, item); err != nil {
		t.Fatalf("LookupItem() error = %v", err)
	}
	if !strings.Contains(gen.prompts[0], "An experiment") {
		t.Errorf("prompt should fall back to the description:\n%s", gen.prompts[0])
	}
}

func TestLookupItem_UnknownCategory(t *testing.T) {
	s := New(&fakeGenerator{}, Config{})
	if _, err := s.LookupItem(context.Background(), "T", models.Category("podcasts"), models.Item{}); err == nil {
		t.Error("LookupItem() should reject unknown categories")
	}
}
