package agent

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cachedResponse is an already-encoded response kept for replayed commands
type cachedResponse struct {
	CorrelationID string
	Payload       []byte
	Timestamp     time.Time
}

// ReplayCache deduplicates commands by correlation ID. A backend that
// retransmits after a reconnect gets the original response back instead of
// the command running twice.
type ReplayCache struct {
	cache      *lru.Cache[string, *cachedResponse]
	mutex      sync.Mutex
	expiration time.Duration
}

// NewReplayCache creates a replay cache holding up to maxSize responses
func NewReplayCache(maxSize int, expiration time.Duration) *ReplayCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	if expiration <= 0 {
		expiration = 10 * time.Minute
	}

	cache, _ := lru.New[string, *cachedResponse](maxSize)
	return &ReplayCache{
		cache:      cache,
		expiration: expiration,
	}
}

// Check returns the cached response for a correlation ID, if a fresh one
// exists. An empty ID never matches.
func (rc *ReplayCache) Check(correlationID string) ([]byte, bool) {
	if correlationID == "" {
		return nil, false
	}

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	entry, found := rc.cache.Get(correlationID)
	if !found {
		return nil, false
	}
	if time.Since(entry.Timestamp) > rc.expiration {
		rc.cache.Remove(correlationID)
		return nil, false
	}
	return entry.Payload, true
}

// Store records the encoded response sent for a correlation ID
func (rc *ReplayCache) Store(correlationID string, payload []byte) {
	if correlationID == "" {
		return
	}

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	rc.cache.Add(correlationID, &cachedResponse{
		CorrelationID: correlationID,
		Payload:       payload,
		Timestamp:     time.Now(),
	})
}

// Purge drops every cached response
func (rc *ReplayCache) Purge() {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	rc.cache.Purge()
}

// Len returns the number of cached responses
func (rc *ReplayCache) Len() int {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	return rc.cache.Len()
}
