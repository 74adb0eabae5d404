// Package cache implements the decode cache that sits between the frame
// codec and the dispatch pipeline. Identical payloads (by content hash of
// the raw bytes) are decoded once and shared; a periodic reaper decays
// reference counts so entries that stop recurring age out on their own.
package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/protocol"
)

// DecodeFunc decodes a payload for a given type id into a structured body.
type DecodeFunc func(typeID uint8, payload []byte) (map[string]any, error)

// entry is one cached decode result. It is visible in the cache only while
// refCount > 0: every hit increments the count, every reaper sweep
// decrements it, and it is evicted when the count reaches zero. A decay
// cache, not LRU — payloads that keep recurring (identical broadcast frames
// fanned out to many connections) stay hot, everything else drains away.
type entry struct {
	decoded  map[string]any
	refCount int
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Bypassed  uint64 `json:"bypassed"`
	Evictions uint64 `json:"evictions"`
}

// DecodeCache wraps a decode function with fingerprint-keyed sharing.
type DecodeCache struct {
	mu      sync.Mutex
	entries map[uint64]*entry

	minCacheSize int
	reapInterval time.Duration
	decode       DecodeFunc
	logger       zerolog.Logger

	hits      uint64
	misses    uint64
	bypassed  uint64
	evictions uint64
}

// New creates a DecodeCache. Payloads smaller than minCacheSize skip the
// cache entirely: for high-frequency small control frames the hash and
// bookkeeping cost more than the decode.
func New(minCacheSize int, reapInterval time.Duration, decode DecodeFunc) *DecodeCache {
	return &DecodeCache{
		entries:      make(map[uint64]*entry),
		minCacheSize: minCacheSize,
		reapInterval: reapInterval,
		decode:       decode,
		logger:       log.With().Str("component", "decode_cache").Logger(),
	}
}

// Decode populates f.Decoded, reusing a cached body when an identical raw
// payload was decoded recently. Only the decoded structure is shared; the
// raw bytes always belong to the frame being decoded. Decoder failures are
// non-fatal: the frame gets an empty body, a warning is logged, and nothing
// is cached for it.
func (c *DecodeCache) Decode(f *protocol.Frame) {
	if f.Decoded != nil {
		return
	}

	if len(f.Payload) < c.minCacheSize {
		c.mu.Lock()
		c.bypassed++
		c.mu.Unlock()
		f.Decoded = c.decodeDirect(f)
		return
	}

	fp := fingerprint(f.Raw)

	c.mu.Lock()
	if e, ok := c.entries[fp]; ok {
		e.refCount++
		c.hits++
		f.Decoded = e.decoded
		c.mu.Unlock()
		return
	}
	c.misses++
	c.mu.Unlock()

	// Decoding happens outside the lock: it is a pure function of the
	// payload, so two goroutines racing on a brand-new fingerprint just do
	// the same work twice and converge on whichever entry lands first.
	decoded, err := c.decode(f.Type, f.Payload)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Uint8("type", f.Type).
			Str("packet", protocol.PacketName(f.Type)).
			Msg("payload decode failed, forwarding with empty body")
		f.Decoded = map[string]any{}
		return
	}
	f.Decoded = decoded

	c.mu.Lock()
	if _, ok := c.entries[fp]; !ok {
		c.entries[fp] = &entry{decoded: decoded, refCount: 1}
	}
	c.mu.Unlock()
}

// decodeDirect decodes without touching the cache.
func (c *DecodeCache) decodeDirect(f *protocol.Frame) map[string]any {
	decoded, err := c.decode(f.Type, f.Payload)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Uint8("type", f.Type).
			Str("packet", protocol.PacketName(f.Type)).
			Msg("payload decode failed, forwarding with empty body")
		return map[string]any{}
	}
	return decoded
}

// StartReaper runs the decay sweep every reapInterval until the context is
// cancelled. Intended to run as its own goroutine.
func (c *DecodeCache) StartReaper(ctx context.Context) {
	ticker := time.NewTicker(c.reapInterval)
	defer ticker.Stop()

	c.logger.Debug().Dur("interval", c.reapInterval).Msg("cache reaper started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug().Msg("cache reaper stopped")
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep decrements every entry's reference count and evicts those that hit
// zero. The fingerprint set is snapshotted first so inserts racing with the
// sweep are only decremented on the next pass.
func (c *DecodeCache) sweep() {
	c.mu.Lock()
	keys := make([]uint64, 0, len(c.entries))
	for fp := range c.entries {
		keys = append(keys, fp)
	}
	c.mu.Unlock()

	evicted := 0
	for _, fp := range keys {
		c.mu.Lock()
		if e, ok := c.entries[fp]; ok {
			e.refCount--
			if e.refCount <= 0 {
				delete(c.entries, fp)
				c.evictions++
				evicted++
			}
		}
		c.mu.Unlock()
	}

	if evicted > 0 {
		c.logger.Debug().Int("evicted", evicted).Msg("cache sweep completed")
	}
}

// RefCount returns the current reference count for the payload carried by
// raw, or 0 if it is not cached.
func (c *DecodeCache) RefCount(raw []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[fingerprint(raw)]; ok {
		return e.refCount
	}
	return 0
}

// Snapshot returns current cache statistics.
func (c *DecodeCache) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Bypassed:  c.bypassed,
		Evictions: c.evictions,
	}
}

// fingerprint hashes the full raw frame (header included), so the same
// decoded content under a different compression flag is a distinct entry.
func fingerprint(raw []byte) uint64 {
	h := fnv.New64a()
	h.Write(raw)
	return h.Sum64()
}
