package agent

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/asktennis/asktennis/internal/models"
)

func answer(text string) models.Answer {
	return models.Answer{Text: text, QueryType: "live_data", Confidence: 0.9}
}

func TestQueryCacheGetPut(t *testing.T) {
	c := NewQueryCache(10, time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Fatal("empty cache returned a hit")
	}
	c.Put("k", answer("Jannik Sinner is ranked #1."))
	got, ok := c.Get("k")
	if !ok || got.Text != "Jannik Sinner is ranked #1." {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Entries != 1 || s.HitRate != 0.5 {
		t.Errorf("stats = %+v", s)
	}
}

func TestQueryCacheEvictsOldestInsertion(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	c.Put("a", answer("a"))
	c.Put("b", answer("b"))

	// Reading does not protect an entry.
	c.Get("a")
	c.Put("c", answer("c"))

	if _, ok := c.Get("a"); ok {
		t.Error("a should have been evicted as the oldest insertion")
	}
	for _, k := range []string{"b", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestQueryCacheReinsertRefreshesPosition(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	c.Put("a", answer("a1"))
	c.Put("b", answer("b"))
	c.Put("a", answer("a2"))
	c.Put("c", answer("c"))

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if got, ok := c.Get("a"); !ok || got.Text != "a2" {
		t.Errorf("a = %+v, %v", got, ok)
	}
}

func TestQueryCacheTTL(t *testing.T) {
	c := NewQueryCache(10, 5*time.Minute)
	now := time.Date(2024, 7, 14, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("k", answer("x"))
	now = now.Add(4 * time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired early")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed, len = %d", c.Len())
	}
}

func TestQueryCacheConcurrentBound(t *testing.T) {
	c := NewQueryCache(16, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := fmt.Sprintf("%d-%d", g, i)
				c.Put(k, answer(k))
				c.Get(k)
			}
		}(g)
	}
	wg.Wait()

	if n := c.Len(); n != 16 {
		t.Errorf("len = %d, want capacity 16", n)
	}
	if len(c.entries) != c.order.Len() {
		t.Errorf("index and order out of sync: %d vs %d", len(c.entries), c.order.Len())
	}
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("who is ranked number 1", models.QueryTypeLive, "sportsradar")
	b := CacheKey("who is ranked number 1", models.QueryTypeHistorical, "github")
	if a == b {
		t.Error("keys for different query types must differ")
	}
}
