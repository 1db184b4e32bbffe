// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flowtable implements the bounded session table shared between
// the control plane and the packet path. The control plane owns insert,
// remove and reap; the packet path holds lookup and timestamp-refresh
// access only. When an insert would exceed capacity the least recently
// touched entry is evicted, so a lookup racing an eviction resolves as a
// miss, which the engine already treats as deny.
package flowtable

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pushkar-gr/Aegis/internal/errors"
)

// DefaultCapacity matches the kernel session map size.
const DefaultCapacity = 10240

// Table is a bounded, concurrency-safe LRU map of authorized flows.
type Table struct {
	cache    *lru.Cache[Key, *Record]
	capacity int
	onEvict  func(Key)

	// The cache fires its eviction callback for deliberate removals
	// too; suppress tracks how many of those are in flight so the hook
	// only reports capacity pressure.
	suppress atomic.Int64
}

// Option configures a Table.
type Option func(*Table)

// WithEvictionHook installs a callback invoked for each LRU eviction
// (not for explicit removes). Used to feed metrics.
func WithEvictionHook(fn func(Key)) Option {
	return func(t *Table) { t.onEvict = fn }
}

// New creates a table bounded to the given capacity.
func New(capacity int, opts ...Option) (*Table, error) {
	if capacity < 1 {
		return nil, errors.Errorf(errors.KindValidation, "flow table capacity must be positive, got %d", capacity)
	}

	t := &Table{capacity: capacity}
	for _, opt := range opts {
		opt(t)
	}

	cache, err := lru.NewWithEvict(capacity, func(key Key, _ *Record) {
		if t.suppress.Load() > 0 {
			t.suppress.Add(-1)
			return
		}
		if t.onEvict != nil {
			t.onEvict(key)
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to create flow table")
	}
	t.cache = cache
	return t, nil
}

// Capacity returns the maximum entry count.
func (t *Table) Capacity() int { return t.capacity }

// Len returns the current entry count.
func (t *Table) Len() int { return t.cache.Len() }

// Lookup returns the record for key if present. The lookup counts as a
// touch for LRU purposes. A missing record means "not authorized", never
// an error.
func (t *Table) Lookup(key Key) (*Record, bool) {
	return t.cache.Get(key)
}

// Insert authorizes a flow at the given monotonic time, overwriting any
// existing record. Returns the new record.
func (t *Table) Insert(key Key, now uint64) *Record {
	rec := NewRecord(now)
	t.cache.Add(key, rec)
	return rec
}

// Remove revokes a flow. Returns whether it was present.
func (t *Table) Remove(key Key) bool {
	return t.remove(key)
}

func (t *Table) remove(key Key) bool {
	t.suppress.Add(1)
	if !t.cache.Remove(key) {
		t.suppress.Add(-1)
		return false
	}
	return true
}

// Entry pairs a key with its record for listing.
type Entry struct {
	Key    Key
	Record *Record
}

// Entries returns a point-in-time copy of the table contents without
// disturbing LRU order.
func (t *Table) Entries() []Entry {
	keys := t.cache.Keys()
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if rec, ok := t.cache.Peek(k); ok {
			entries = append(entries, Entry{Key: k, Record: rec})
		}
	}
	return entries
}

// ReapStale removes every flow whose LastSeen is older than timeout
// nanoseconds at the given time. Returns the number removed.
func (t *Table) ReapStale(now, timeout uint64) int {
	reaped := 0
	for _, e := range t.Entries() {
		last := e.Record.LastSeen()
		if now > last && now-last > timeout {
			if t.remove(e.Key) {
				reaped++
			}
		}
	}
	return reaped
}

// RewriteDst re-keys every flow whose destination matches old to point at
// new, preserving telemetry. Used when a workload moves address. Returns
// the number of flows rewritten.
func (t *Table) RewriteDst(old, new [4]byte) int {
	rewritten := 0
	for _, e := range t.Entries() {
		if e.Key.DstIP != old {
			continue
		}
		if t.remove(e.Key) {
			moved := e.Key
			moved.DstIP = new
			t.cache.Add(moved, e.Record)
			rewritten++
		}
	}
	return rewritten
}

// Purge empties the table.
func (t *Table) Purge() {
	t.suppress.Add(int64(t.cache.Len()))
	t.cache.Purge()
}
