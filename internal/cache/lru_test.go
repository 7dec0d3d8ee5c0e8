package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mfenderov/knowra/internal/clock"
)

var start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestLRU_GetSet(t *testing.T) {
	c := NewLRU[string](10, time.Hour, clock.NewFake(start))

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() on empty cache should miss")
	}

	c.Set("a", "alpha")
	got, ok := c.Get("a")
	if !ok || got != "alpha" {
		t.Errorf("Get(a) = %q, %v; want alpha, true", got, ok)
	}

	c.Set("a", "again")
	if got, _ := c.Get("a"); got != "again" {
		t.Errorf("Get(a) after overwrite = %q, want again", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](3, time.Hour, clock.NewFake(start))

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// "a" is the oldest insert but was read most recently.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("Get(a) should hit")
	}

	c.Set("d", 4)

	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if _, ok := c.Get("b"); ok {
		t.Error("b was least recently used and should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
}

func TestLRU_NeverExceedsMaxSize(t *testing.T) {
	c := NewLRU[int](5, time.Hour, clock.NewFake(start))

	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		if i%3 == 0 {
			c.Get(fmt.Sprintf("k%d", i/2))
		}
		if c.Len() > 5 {
			t.Fatalf("Len() = %d after %d inserts, want <= 5", c.Len(), i+1)
		}
	}
}

func TestLRU_ExpiresAfterMaxAge(t *testing.T) {
	fake := clock.NewFake(start)
	c := NewLRU[string](10, time.Minute, fake)

	c.Set("old", "v")
	fake.Advance(30 * time.Second)
	if _, ok := c.Get("old"); !ok {
		t.Fatal("entry should be fresh after 30s")
	}

	// Reading does not refresh the insertion timestamp.
	fake.Advance(31 * time.Second)
	if _, ok := c.Get("old"); ok {
		t.Error("entry older than maxAge should be treated as absent")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be evicted, Len() = %d", c.Len())
	}
}

func TestLRU_ExpiredMostRecentlyUsed(t *testing.T) {
	fake := clock.NewFake(start)
	c := NewLRU[string](10, time.Minute, fake)

	c.Set("hot", "v")
	fake.Advance(2 * time.Minute)
	c.Set("fresh", "w")

	if _, ok := c.Get("hot"); ok {
		t.Error("expired entry must miss even if recently promoted")
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("fresh entry should hit")
	}
}

func TestLRU_SetRefreshesTimestamp(t *testing.T) {
	fake := clock.NewFake(start)
	c := NewLRU[string](10, time.Minute, fake)

	c.Set("k", "v1")
	fake.Advance(50 * time.Second)
	c.Set("k", "v2")
	fake.Advance(50 * time.Second)

	if got, ok := c.Get("k"); !ok || got != "v2" {
		t.Errorf("Get(k) = %q, %v; want v2, true", got, ok)
	}
}

func TestLRU_DeleteAndClear(t *testing.T) {
	c := NewLRU[string](10, time.Hour, nil)
	c.Set("a", "1")
	c.Set("b", "2")

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted key should miss")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[int](100, time.Hour, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (g*31+i)%250)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("Len() = %d, want <= 100", c.Len())
	}
}
