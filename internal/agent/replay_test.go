package agent_test

import (
	"fmt"
	"testing"
	"time"

	"drover/internal/agent"
)

func TestReplayCacheStoreAndCheck(t *testing.T) {
	cache := agent.NewReplayCache(10, time.Minute)

	if _, found := cache.Check("missing"); found {
		t.Error("Expected miss for unknown correlation ID")
	}

	cache.Store("corr-1", []byte(`{"ok":true}`))

	payload, found := cache.Check("corr-1")
	if !found {
		t.Fatal("Expected hit after store")
	}
	if string(payload) != `{"ok":true}` {
		t.Errorf("Unexpected payload: %s", payload)
	}
}

func TestReplayCacheIgnoresEmptyID(t *testing.T) {
	cache := agent.NewReplayCache(10, time.Minute)

	cache.Store("", []byte("data"))
	if cache.Len() != 0 {
		t.Error("Empty correlation IDs must not be cached")
	}
	if _, found := cache.Check(""); found {
		t.Error("Empty correlation ID must never hit")
	}
}

func TestReplayCacheExpiry(t *testing.T) {
	cache := agent.NewReplayCache(10, 10*time.Millisecond)

	cache.Store("corr-exp", []byte("data"))
	time.Sleep(30 * time.Millisecond)

	if _, found := cache.Check("corr-exp"); found {
		t.Error("Expected entry to expire")
	}
}

func TestReplayCacheEviction(t *testing.T) {
	cache := agent.NewReplayCache(4, time.Minute)

	for i := 0; i < 10; i++ {
		cache.Store(fmt.Sprintf("corr-%d", i), []byte("x"))
	}

	if cache.Len() > 4 {
		t.Errorf("Expected at most 4 entries, got %d", cache.Len())
	}
	if _, found := cache.Check("corr-9"); !found {
		t.Error("Most recent entry must survive eviction")
	}
}

func TestReplayCachePurge(t *testing.T) {
	cache := agent.NewReplayCache(10, time.Minute)
	cache.Store("a", []byte("1"))
	cache.Store("b", []byte("2"))

	cache.Purge()
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache after purge, got %d", cache.Len())
	}
}
