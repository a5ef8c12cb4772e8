package configspace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/snow-ghost/adaptmgr/core"
)

// DefaultCacheSize is the number of distinct catalogues a CachedBuilder remembers.
const DefaultCacheSize = 16

// CacheStats counts catalogue lookups.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// CachedBuilder memoizes Build by catalogue fingerprint. Knob catalogues
// rarely change between cycles while their product can be large.
//
// Returned slices are shared between calls and must not be modified.
type CachedBuilder struct {
	cache *lru.Cache[string, []core.Configuration]
	mu    sync.Mutex
	stats CacheStats
}

// NewCachedBuilder creates a builder remembering up to size catalogues.
func NewCachedBuilder(size int) (*CachedBuilder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []core.Configuration](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create configuration cache: %w", err)
	}
	return &CachedBuilder{cache: cache}, nil
}

// Build returns the configuration space of knobs, reusing a previous result
// for an identical catalogue.
func (b *CachedBuilder) Build(knobs []core.Knob) []core.Configuration {
	key, err := Fingerprint(knobs)
	if err != nil {
		return Build(knobs)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if configs, ok := b.cache.Get(key); ok {
		b.stats.Hits++
		return configs
	}
	b.stats.Misses++
	configs := Build(knobs)
	b.cache.Add(key, configs)
	return configs
}

// Stats returns lookup statistics.
func (b *CachedBuilder) Stats() CacheStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Size = b.cache.Len()
	return s
}

// Purge forgets every cached space.
func (b *CachedBuilder) Purge() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Purge()
}

// Fingerprint hashes a catalogue. Order matters: the same knobs in another
// order produce a different space.
func Fingerprint(knobs []core.Knob) (string, error) {
	data, err := json.Marshal(knobs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal catalogue: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
