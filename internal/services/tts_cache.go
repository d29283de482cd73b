package services

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ErrAudioNotFound is returned for unknown or expired audio ids.
var ErrAudioNotFound = errors.New("audio not found")

// CachedAudio is one synthesised reply held for the client to fetch.
type CachedAudio struct {
	Audio       []byte
	ContentType string
	StoredAt    time.Time
}

// TTSCache holds synthesised audio for a fixed TTL. Expired entries are evicted on
// every Store and Fetch; the janitor only bounds memory between accesses.
type TTSCache struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewTTSCache creates an audio cache with the given TTL.
func NewTTSCache(ttl time.Duration) *TTSCache {
	return &TTSCache{
		// No go-cache janitor; sweeps run on access and from the scheduled janitor.
		cache: cache.New(ttl, 0),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Store evicts expired entries, stores a copy of audio and returns its id.
func (c *TTSCache) Store(audio []byte, contentType string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()
	id := uuid.New().String()
	c.cache.Set(id, &CachedAudio{
		Audio:       append([]byte(nil), audio...),
		ContentType: contentType,
		StoredAt:    c.now(),
	}, c.ttl)

	log.Printf("🔊 [TTS] Cached audio %s (%d bytes, %s)", id, len(audio), contentType)
	return id
}

// Fetch evicts expired entries and returns a copy of the entry.
func (c *TTSCache) Fetch(id string) (*CachedAudio, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()
	value, found := c.cache.Get(id)
	if !found {
		return nil, ErrAudioNotFound
	}
	entry := value.(*CachedAudio)
	return &CachedAudio{
		Audio:       append([]byte(nil), entry.Audio...),
		ContentType: entry.ContentType,
		StoredAt:    entry.StoredAt,
	}, nil
}

// DeleteExpired evicts expired entries and returns how many were removed.
func (c *TTSCache) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

// Len returns the number of cached entries, expired or not.
func (c *TTSCache) Len() int {
	return c.cache.ItemCount()
}

func (c *TTSCache) sweepLocked() int {
	now := c.now()
	removed := 0
	for id, item := range c.cache.Items() {
		entry, ok := item.Object.(*CachedAudio)
		if !ok || now.Sub(entry.StoredAt) > c.ttl {
			c.cache.Delete(id)
			removed++
		}
	}
	return removed
}
