package fallback

import (
	"path/filepath"
	"testing"
	"time"

	"palisade-hq/bulwark/pkg/providers"
)

func testResult(content string) *providers.ChatResult {
	return &providers.ChatResult{
		UpstreamID:   "u1",
		Model:        "test-model",
		Content:      content,
		FinishReason: providers.FinishReasonStop,
		Usage:        providers.TokenUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
	}
}

func newMemoryCache(t *testing.T, config Config) *Cache {
	t.Helper()
	c, err := NewCache(config)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_SaveAndLookup(t *testing.T) {
	c := newMemoryCache(t, Config{TTL: time.Minute, MaxEntries: 10})

	c.Save("fp-1", testResult("answer"))

	got, ok := c.Lookup("fp-1")
	if !ok {
		t.Fatal("expected a hit")
	}
	if got.Content != "answer" {
		t.Errorf("unexpected content %q", got.Content)
	}
	if got.Usage.TotalTokens != 7 {
		t.Errorf("usage not preserved: %+v", got.Usage)
	}

	if _, ok := c.Lookup("fp-unknown"); ok {
		t.Error("unknown fingerprint should miss")
	}
}

func TestCache_LookupReturnsCopy(t *testing.T) {
	c := newMemoryCache(t, Config{TTL: time.Minute, MaxEntries: 10})
	c.Save("fp", testResult("original"))

	got, _ := c.Lookup("fp")
	got.Content = "mutated"
	got.FallbackUsed = true

	again, _ := c.Lookup("fp")
	if again.Content != "original" || again.FallbackUsed {
		t.Error("callers must not be able to mutate the cached entry")
	}
}

func TestCache_ExpiredEntriesMiss(t *testing.T) {
	c := newMemoryCache(t, Config{TTL: 30 * time.Millisecond, MaxEntries: 10})
	c.Save("fp", testResult("short-lived"))

	if _, ok := c.Lookup("fp"); !ok {
		t.Fatal("fresh entry should hit")
	}

	time.Sleep(50 * time.Millisecond)

	if _, ok := c.Lookup("fp"); ok {
		t.Error("expired entry must not be served")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := newMemoryCache(t, Config{TTL: time.Minute, MaxEntries: 2})

	c.Save("fp-a", testResult("a"))
	time.Sleep(2 * time.Millisecond)
	c.Save("fp-b", testResult("b"))
	time.Sleep(2 * time.Millisecond)

	// Touch a so b becomes the least recently accessed.
	c.Lookup("fp-a")
	time.Sleep(2 * time.Millisecond)

	c.Save("fp-c", testResult("c"))

	if _, ok := c.Lookup("fp-b"); ok {
		t.Error("least recently accessed entry should have been evicted")
	}
	if _, ok := c.Lookup("fp-a"); !ok {
		t.Error("recently accessed entry should survive")
	}
	if _, ok := c.Lookup("fp-c"); !ok {
		t.Error("newest entry should be present")
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c := newMemoryCache(t, Config{TTL: time.Minute, MaxEntries: 2})

	c.Save("fp-a", testResult("a"))
	c.Save("fp-b", testResult("b"))
	c.Save("fp-a", testResult("a2"))

	if c.Size() != 2 {
		t.Errorf("overwriting must not evict, size %d", c.Size())
	}
	got, _ := c.Lookup("fp-a")
	if got.Content != "a2" {
		t.Errorf("expected overwritten content, got %q", got.Content)
	}
}

func TestCache_FallbackResultsAreNotResaved(t *testing.T) {
	c := newMemoryCache(t, Config{TTL: time.Minute, MaxEntries: 10})

	degraded := testResult("stale")
	degraded.FallbackUsed = true
	c.Save("fp", degraded)

	if _, ok := c.Lookup("fp"); ok {
		t.Error("a served fallback must not refresh its own cache entry")
	}
}

func TestCache_PersistenceSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fallback.db")

	c1, err := NewCache(Config{TTL: time.Minute, MaxEntries: 10, DBPath: dbPath})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	c1.Save("fp-persist", testResult("durable"))
	if err := c1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2, err := NewCache(Config{TTL: time.Minute, MaxEntries: 10, DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()

	got, ok := c2.Lookup("fp-persist")
	if !ok {
		t.Fatal("expected warm-loaded entry after restart")
	}
	if got.Content != "durable" {
		t.Errorf("unexpected content %q", got.Content)
	}
}

func TestCache_ExpiredRowsAreNotWarmLoaded(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fallback.db")

	c1, err := NewCache(Config{TTL: 20 * time.Millisecond, MaxEntries: 10, DBPath: dbPath})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	c1.Save("fp-ephemeral", testResult("gone soon"))
	c1.Close()

	time.Sleep(1100 * time.Millisecond) // expiry has second granularity in the store

	c2, err := NewCache(Config{TTL: time.Minute, MaxEntries: 10, DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()

	if _, ok := c2.Lookup("fp-ephemeral"); ok {
		t.Error("expired persisted entry must not be warm-loaded")
	}
}
