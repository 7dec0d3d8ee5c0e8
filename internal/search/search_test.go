package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient() *Client {
	return NewClient(HTTPConfig{Timeout: 2 * time.Second, RetryMax: 1, RequestsPerSecond: 100})
}

func TestBooks_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "quantum entanglement" || q.Get("key") != "k" || q.Get("maxResults") != "9" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"items":[
			{"id":"v1","volumeInfo":{"title":"Entangled","authors":["A. Author"],"publishedDate":"2019-05-01","description":"About it","infoLink":"https://books.example/v1","imageLinks":{"thumbnail":"http://img?zoom=1"}}},
			{"id":"v2","volumeInfo":{"title":"No Description"}},
			{"id":"v3","volumeInfo":{"title":"Anonymous","description":"Someone wrote it","infoLink":"https://books.example/v3"}}
		]}`))
	}))
	defer server.Close()

	books := NewBooks(testClient(), BooksConfig{BaseURL: server.URL, APIKey: "k"})
	items, err := books.Search(context.Background(), "quantum entanglement")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Search() returned %d items, want 2 (no-description volume skipped)", len(items))
	}
	first := items[0]
	if first.ID != "v1" || first.Published != "2019" || first.Thumbnail != "http://img?zoom=2" {
		t.Errorf("first item = %+v", first)
	}
	if len(items[1].Authors) != 1 || items[1].Authors[0] != "Unknown Author" {
		t.Errorf("missing authors should default, got %v", items[1].Authors)
	}
}

func TestBooks_MissingKey(t *testing.T) {
	_, err := NewBooks(testClient(), BooksConfig{BaseURL: "http://unused"}).Search(context.Background(), "x")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Search() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestVideos_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "brave-key" {
			t.Errorf("missing subscription token header")
		}
		if r.URL.Query().Get("count") != "2" {
			t.Errorf("count = %q", r.URL.Query().Get("count"))
		}
		w.Write([]byte(`{"results":[
			{"title":"V1","url":"https://video.example/1","description":"d1","age":"2 years ago","thumbnail":{"src":"t1"},"video":{"creator":"Creator"}},
			{"title":"V2","url":"https://video.example/2","description":"d2","thumbnail":{"src":"t2"},"video":{"publisher":"Publisher"}},
			{"title":"V3","url":"https://video.example/3"}
		]}`))
	}))
	defer server.Close()

	videos := NewVideos(testClient(), VideosConfig{BaseURL: server.URL, APIKey: "brave-key", MaxResults: 2})
	items, err := videos.Search(context.Background(), "entanglement")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Search() returned %d items, want 2", len(items))
	}
	if items[0].ID != "https://video.example/1" || items[0].Channel != "Creator" || items[0].Published != "2 years ago" {
		t.Errorf("first item = %+v", items[0])
	}
	if items[1].Channel != "Publisher" {
		t.Errorf("channel should fall back to publisher, got %q", items[1].Channel)
	}
}

func TestVideos_MissingKey(t *testing.T) {
	_, err := NewVideos(testClient(), VideosConfig{}).Search(context.Background(), "x")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Search() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestWiki_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("list") == "search":
			w.Write([]byte(`{"query":{"search":[{"pageid":20},{"pageid":10}]}}`))
		case q.Get("pageids") == "20|10":
			w.Write([]byte(`{"query":{"pages":{
				"10":{"pageid":10,"title":"Bell test","extract":"First line.\nSecond line."},
				"20":{"pageid":20,"title":"Quantum entanglement","extract":"Entanglement is...","thumbnail":{"source":"thumb.png"}}
			}}}`))
		default:
			t.Errorf("unexpected request %s", r.URL.RawQuery)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	wiki := NewWiki(testClient(), WikiConfig{BaseURL: server.URL})
	items, err := wiki.Search(context.Background(), "quantum entanglement")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Search() returned %d items, want 2", len(items))
	}
	if items[0].Title != "Quantum entanglement" || items[0].URL != "https://en.wikipedia.org/?curid=20" {
		t.Errorf("items should keep search rank, first = %+v", items[0])
	}
	if items[1].Description != "First line." {
		t.Errorf("description should be the first paragraph, got %q", items[1].Description)
	}
}

func TestWiki_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"search":[]}}`))
	}))
	defer server.Close()

	items, err := NewWiki(testClient(), WikiConfig{BaseURL: server.URL}).Search(context.Background(), "zzzz")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("Search() = %#v, want empty list", items)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"query":{"search":[]}}`))
	}))
	defer server.Close()

	_, err := NewWiki(testClient(), WikiConfig{BaseURL: server.URL}).Search(context.Background(), "x")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server called %d times, want 2", calls.Load())
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("bad key"))
	}))
	defer server.Close()

	_, err := NewBooks(testClient(), BooksConfig{BaseURL: server.URL, APIKey: "k"}).Search(context.Background(), "x")
	if err == nil {
		t.Fatal("Search() should fail on 403")
	}
	if calls.Load() != 1 {
		t.Errorf("4xx should not be retried, calls = %d", calls.Load())
	}
}
