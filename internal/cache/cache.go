package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInvalidSnapshot is returned by Restore when the byte stream is
// truncated or carries an unsupported version.
var ErrInvalidSnapshot = errors.New("cache: invalid snapshot")

const snapshotVersion = 1

// Key identifies a shard by the object it belongs to and its index within
// that object's (k, n) split.
type Key struct {
	ObjectRoot [32]byte
	Index      uint16
}

type entry struct {
	key        Key
	bytes      []byte
	priority   int32
	seenCount  uint64
	lastSeenAt int64
}

// Cache is a bounded, content-addressed store of accepted shards (spec
// §4.4). It is safe for concurrent use, though VEIL's runtime drives it
// from a single tick goroutine in practice.
type Cache struct {
	mu         sync.Mutex
	entries    map[Key]*entry
	priorities map[[32]byte]int32
	maxEntries int
}

// New constructs an empty cache bounded at maxEntries. A non-positive
// maxEntries means unbounded (eviction never triggers).
func New(maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[Key]*entry),
		priorities: make(map[[32]byte]int32),
		maxEntries: maxEntries,
	}
}

// Put inserts or refreshes a shard. Idempotent: a repeat put for an
// existing key updates last_seen_at and increments seen_count rather than
// duplicating the entry. now is a caller-supplied monotonic timestamp
// (ticks or unix seconds) so eviction ordering stays deterministic in
// tests.
func (c *Cache) Put(root [32]byte, index uint16, data []byte, now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key{ObjectRoot: root, Index: index}
	if e, ok := c.entries[key]; ok {
		e.bytes = data
		e.seenCount++
		e.lastSeenAt = now
		return
	}
	c.entries[key] = &entry{
		key:        key,
		bytes:      data,
		priority:   c.priorities[root],
		seenCount:  1,
		lastSeenAt: now,
	}
	c.evictIfNeeded()
}

// Get returns the bytes stored for (root, index), if present.
func (c *Cache) Get(root [32]byte, index uint16) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[Key{ObjectRoot: root, Index: index}]
	if !ok {
		return nil, false
	}
	return e.bytes, true
}

// Delete removes a single shard, if present.
func (c *Cache) Delete(root [32]byte, index uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, Key{ObjectRoot: root, Index: index})
}

// DeleteObject removes every shard held for the given object root, used
// when reconstruction fails and held shards for that root must be
// discarded (spec §4.5).
func (c *Cache) DeleteObject(root [32]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.ObjectRoot == root {
			delete(c.entries, k)
		}
	}
}

// SetPriority raises or lowers an object's eviction priority (an
// application hint; spec §4.4, §4.8 integration). It applies to every
// shard currently held for that root and to shards that arrive later.
func (c *Cache) SetPriority(root [32]byte, priority int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priorities[root] = priority
	for k, e := range c.entries {
		if k.ObjectRoot == root {
			e.priority = priority
		}
	}
}

// Keys returns every key currently held, in no particular order.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	return out
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictIfNeeded drops entries, lowest-surviving-priority first, until the
// cache is back within bound (spec §4.4 eviction policy). Caller must
// hold c.mu.
func (c *Cache) evictIfNeeded() {
	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return
	}
	victims := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}
	// Ascending order => evicted first: lower priority, then higher
	// seen_count (rarity bias keeps rare shards), then older last_seen_at.
	sort.Slice(victims, func(i, j int) bool {
		a, b := victims[i], victims[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.seenCount != b.seenCount {
			return a.seenCount > b.seenCount
		}
		return a.lastSeenAt < b.lastSeenAt
	})
	toRemove := len(c.entries) - c.maxEntries
	for i := 0; i < toRemove; i++ {
		delete(c.entries, victims[i].key)
	}
}

// Snapshot emits a self-describing byte stream of every held shard (spec
// §4.9). Counters (seen_count, last_seen_at) are persisted so rarity bias
// survives a restart; priorities persist too.
func (c *Cache) Snapshot() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, 0, 64+len(c.entries)*64)
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], snapshotVersion)
	buf = append(buf, hdr[:]...)

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(c.entries)))
	buf = append(buf, countBuf[:]...)

	for _, e := range c.entries {
		buf = append(buf, e.key.ObjectRoot[:]...)
		buf = appendUint16(buf, e.key.Index)
		buf = appendInt32(buf, e.priority)
		buf = appendUint64(buf, e.seenCount)
		buf = appendInt64(buf, e.lastSeenAt)
		buf = appendUint32(buf, uint32(len(e.bytes)))
		buf = append(buf, e.bytes...)
	}
	return buf
}

// Restore replaces the cache's contents with a previously taken Snapshot.
func (c *Cache) Restore(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: short header", ErrInvalidSnapshot)
	}
	version := binary.BigEndian.Uint32(data[:4])
	if version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, version)
	}
	count := binary.BigEndian.Uint32(data[4:8])
	pos := 8

	entries := make(map[Key]*entry, count)
	for i := uint32(0); i < count; i++ {
		if len(data)-pos < 32+2+4+8+8+4 {
			return fmt.Errorf("%w: truncated entry %d", ErrInvalidSnapshot, i)
		}
		var root [32]byte
		copy(root[:], data[pos:pos+32])
		pos += 32
		index := binary.BigEndian.Uint16(data[pos : pos+2])
		pos += 2
		priority := int32(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		seenCount := binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
		lastSeenAt := int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
		blen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
		if uint32(len(data)-pos) < blen {
			return fmt.Errorf("%w: truncated payload in entry %d", ErrInvalidSnapshot, i)
		}
		payload := append([]byte(nil), data[pos:pos+int(blen)]...)
		pos += int(blen)

		key := Key{ObjectRoot: root, Index: index}
		entries[key] = &entry{
			key:        key,
			bytes:      payload,
			priority:   priority,
			seenCount:  seenCount,
			lastSeenAt: lastSeenAt,
		}
	}

	priorities := make(map[[32]byte]int32, len(entries))
	for _, e := range entries {
		priorities[e.key.ObjectRoot] = e.priority
	}

	c.mu.Lock()
	c.entries = entries
	c.priorities = priorities
	c.mu.Unlock()
	return nil
}

func appendUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendInt32(b []byte, v int32) []byte {
	return appendUint32(b, uint32(v))
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendInt64(b []byte, v int64) []byte {
	return appendUint64(b, uint64(v))
}
