package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mfenderov/knowra/pkg/models"
)

func esAddress() string {
	if addr := os.Getenv("KNOWRA_ELASTICSEARCH_ADDRESS"); addr != "" {
		return addr
	}
	return "http://localhost:9200"
}

func skipIfNoES(t *testing.T) {
	if os.Getenv("SKIP_ES_TESTS") == "1" {
		t.Skip("Skipping ES tests (SKIP_ES_TESTS=1)")
	}

	client, err := New(Config{
		Addresses: []string{esAddress()},
		Index:     "test-skip-check",
	})
	if err != nil {
		t.Skipf("Skipping ES tests: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !client.Ping(ctx) {
		t.Skip("Skipping ES tests: Elasticsearch not available")
	}
}

func TestNew_RequiresIndex(t *testing.T) {
	if _, err := New(Config{Addresses: []string{"http://localhost:9200"}}); err == nil {
		t.Error("New() without index should fail")
	}
}

func TestEscapeWildcard(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"go", "go"},
		{"c*", `c\*`},
		{"what?", `what\?`},
		{`a\b`, `a\\b`},
	}
	for _, tt := range tests {
		if got := escapeWildcard(tt.in); got != tt.want {
			t.Errorf("escapeWildcard(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewTopicDocument(t *testing.T) {
	id := primitive.NewObjectID()
	topic := &models.Topic{
		ID:        id,
		Title:     "Go  Programming",
		Slug:      "go-programming",
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	doc := newTopicDocument(topic, nil)
	if doc.ID != id.Hex() {
		t.Errorf("ID = %q, want %q", doc.ID, id.Hex())
	}
	if doc.TitleKey != "go programming" {
		t.Errorf("TitleKey = %q", doc.TitleKey)
	}
	if doc.CreatedAt != "2025-01-02T03:04:05Z" {
		t.Errorf("CreatedAt = %q", doc.CreatedAt)
	}
}

// fakeES answers search requests with a canned hit list.
func fakeES(t *testing.T, body string, gotQuery *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/_search") && gotQuery != nil {
			data, _ := io.ReadAll(r.Body)
			json.Unmarshal(data, gotQuery)
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSuggest_DecodesHits(t *testing.T) {
	var query map[string]interface{}
	srv := fakeES(t, `{"hits":{"hits":[
		{"_source":{"title":"Go Programming","slug":"go-programming"}},
		{"_source":{"title":"Golang Tools","slug":"golang-tools"}}
	]}}`, &query)

	client, err := New(Config{Addresses: []string{srv.URL}, Index: "topics"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, err := client.Suggest(context.Background(), "go", 10)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(got) != 2 || got[0].Slug != "go-programming" || got[1].Title != "Golang Tools" {
		t.Errorf("Suggest() = %+v", got)
	}
	if query["size"] != float64(10) {
		t.Errorf("size = %v, want 10", query["size"])
	}
}

func TestHybridSuggest_UsesKNN(t *testing.T) {
	var query map[string]interface{}
	srv := fakeES(t, `{"hits":{"hits":[]}}`, &query)

	client, err := New(Config{Addresses: []string{srv.URL}, Index: "topics"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := client.HybridSuggest(context.Background(), "go", []float32{0.1, 0.2}, 5); err != nil {
		t.Fatalf("HybridSuggest() error = %v", err)
	}
	if _, ok := query["retriever"]; !ok {
		t.Errorf("hybrid query should use a retriever, got %v", query)
	}
}

func TestClient_CreateIndex(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{esAddress()},
		Index:     "knowra-test-create",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	client.DeleteIndex(ctx)

	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	// Creating again should not error (idempotent)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() second call error = %v", err)
	}

	client.DeleteIndex(ctx)
}

func TestClient_IndexAndSuggest(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{esAddress()},
		Index:     "knowra-test-suggest",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	client.DeleteIndex(ctx)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	defer client.DeleteIndex(ctx)

	topics := []*models.Topic{
		{ID: primitive.NewObjectID(), Title: "Go Programming", Slug: "go-programming"},
		{ID: primitive.NewObjectID(), Title: "Django Framework", Slug: "django-framework"},
		{ID: primitive.NewObjectID(), Title: "Rust", Slug: "rust"},
	}
	for _, topic := range topics {
		if err := client.IndexTopic(ctx, topic, nil); err != nil {
			t.Fatalf("IndexTopic() error = %v", err)
		}
	}
	client.Refresh(ctx)

	results, err := client.Suggest(ctx, "GO", 10)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}

	slugs := make(map[string]bool)
	for _, r := range results {
		slugs[r.Slug] = true
	}
	if !slugs["go-programming"] || !slugs["django-framework"] {
		t.Errorf("Suggest(GO) = %+v, want go-programming and django-framework", results)
	}
	if slugs["rust"] {
		t.Errorf("Suggest(GO) should not include rust")
	}
}
