// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowtable

import (
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"
)

func testKey(lastOctet byte, port uint16) Key {
	return Key{
		SrcIP:   [4]byte{10, 0, 0, lastOctet},
		DstIP:   [4]byte{10, 0, 0, 1},
		DstPort: port,
	}
}

func TestInsertLookup(t *testing.T) {
	tbl, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	key := testKey(5, 443)
	rec := tbl.Insert(key, 100)

	if rec.CreatedAt() != 100 {
		t.Errorf("expected CreatedAt 100, got %d", rec.CreatedAt())
	}
	if rec.LastSeen() != 100 {
		t.Errorf("expected LastSeen 100, got %d", rec.LastSeen())
	}

	got, ok := tbl.Lookup(key)
	if !ok {
		t.Fatal("expected lookup hit")
	}
	if got != rec {
		t.Error("lookup returned a different record")
	}

	// Different port is a different flow
	if _, ok := tbl.Lookup(testKey(5, 8080)); ok {
		t.Error("expected miss for different port")
	}
}

func TestCapacityInvalid(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("expected error for zero capacity")
	}
	if _, err := New(-1); err == nil {
		t.Error("expected error for negative capacity")
	}
}

func TestLRUEviction(t *testing.T) {
	var evicted []Key
	tbl, err := New(4, WithEvictionHook(func(k Key) { evicted = append(evicted, k) }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := byte(1); i <= 4; i++ {
		tbl.Insert(testKey(i, 443), uint64(i))
	}
	if tbl.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", tbl.Len())
	}

	// Touch the oldest so it survives the next eviction
	if _, ok := tbl.Lookup(testKey(1, 443)); !ok {
		t.Fatal("expected hit on key 1")
	}

	tbl.Insert(testKey(5, 443), 5)

	if tbl.Len() != 4 {
		t.Errorf("expected table to stay at capacity, got %d", tbl.Len())
	}
	if len(evicted) != 1 {
		t.Fatalf("expected 1 eviction, got %d", len(evicted))
	}
	// Key 2 is now least recently touched; key 1 was refreshed by Lookup
	if evicted[0] != testKey(2, 443) {
		t.Errorf("expected key 2 evicted, got %s", evicted[0])
	}
	if _, ok := tbl.Lookup(testKey(1, 443)); !ok {
		t.Error("recently touched key should survive eviction")
	}
}

func TestEvictionHookIgnoresDeliberateRemovals(t *testing.T) {
	var evicted []Key
	tbl, err := New(4, WithEvictionHook(func(k Key) { evicted = append(evicted, k) }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tbl.Insert(testKey(1, 443), 100)
	tbl.Insert(testKey(2, 443), 100)
	tbl.Insert(testKey(3, 443), 100)

	tbl.Remove(testKey(1, 443))
	if tbl.ReapStale(5000, 1000) != 2 {
		t.Fatal("expected 2 reaped")
	}
	tbl.Insert(testKey(4, 443), 100)
	tbl.Purge()

	if len(evicted) != 0 {
		t.Errorf("hook fired %d times for deliberate removals", len(evicted))
	}
}

func TestTouchIfStale(t *testing.T) {
	rec := NewRecord(100)
	threshold := uint64(1000)

	// Within the threshold: no write
	if rec.TouchIfStale(100+500, threshold) {
		t.Error("refresh within threshold should not write")
	}
	if rec.LastSeen() != 100 {
		t.Errorf("LastSeen should be unchanged, got %d", rec.LastSeen())
	}

	// Past the threshold: write
	if !rec.TouchIfStale(100+1000+5, threshold) {
		t.Error("refresh past threshold should write")
	}
	if rec.LastSeen() != 1105 {
		t.Errorf("expected LastSeen 1105, got %d", rec.LastSeen())
	}

	// Time going backwards must never move LastSeen backwards
	if rec.TouchIfStale(50, threshold) {
		t.Error("refresh with earlier time should not write")
	}
	if rec.LastSeen() != 1105 {
		t.Errorf("LastSeen moved backwards to %d", rec.LastSeen())
	}
}

func TestReapStale(t *testing.T) {
	tbl, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	timeout := uint64(5 * time.Minute)
	now := uint64(10 * time.Minute)

	tbl.Insert(testKey(1, 443), 0)           // stale
	tbl.Insert(testKey(2, 443), now-1)       // fresh
	tbl.Insert(testKey(3, 443), now-timeout) // exactly at timeout, kept

	reaped := tbl.ReapStale(now, timeout)
	if reaped != 1 {
		t.Errorf("expected 1 reaped, got %d", reaped)
	}
	if _, ok := tbl.Lookup(testKey(1, 443)); ok {
		t.Error("stale flow should be gone")
	}
	if _, ok := tbl.Lookup(testKey(2, 443)); !ok {
		t.Error("fresh flow should remain")
	}
	if _, ok := tbl.Lookup(testKey(3, 443)); !ok {
		t.Error("flow at exactly the timeout should remain")
	}
}

func TestRewriteDst(t *testing.T) {
	tbl, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	old := [4]byte{10, 0, 0, 1}
	moved := [4]byte{10, 0, 0, 9}

	k1 := Key{SrcIP: [4]byte{10, 0, 0, 5}, DstIP: old, DstPort: 443}
	k2 := Key{SrcIP: [4]byte{10, 0, 0, 6}, DstIP: old, DstPort: 80}
	k3 := Key{SrcIP: [4]byte{10, 0, 0, 5}, DstIP: [4]byte{10, 0, 0, 2}, DstPort: 443}

	r1 := tbl.Insert(k1, 100)
	tbl.Insert(k2, 200)
	tbl.Insert(k3, 300)

	n := tbl.RewriteDst(old, moved)
	if n != 2 {
		t.Errorf("expected 2 rewritten, got %d", n)
	}

	if _, ok := tbl.Lookup(k1); ok {
		t.Error("old key should be gone")
	}

	rewritten := k1
	rewritten.DstIP = moved
	got, ok := tbl.Lookup(rewritten)
	if !ok {
		t.Fatal("rewritten key should be present")
	}
	if got != r1 {
		t.Error("rewrite should preserve the record")
	}
	if got.CreatedAt() != 100 {
		t.Errorf("rewrite should preserve telemetry, got CreatedAt %d", got.CreatedAt())
	}

	// Unrelated destination untouched
	if _, ok := tbl.Lookup(k3); !ok {
		t.Error("unrelated flow should remain")
	}
}

func TestEntries(t *testing.T) {
	tbl, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := byte(1); i <= 3; i++ {
		tbl.Insert(testKey(i, 443), uint64(i))
	}

	entries := tbl.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	seen := make(map[Key]bool)
	for _, e := range entries {
		seen[e.Key] = true
	}
	for i := byte(1); i <= 3; i++ {
		if !seen[testKey(i, 443)] {
			t.Errorf("missing entry for key %d", i)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	tbl, err := New(128)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup

	// Writers insert and remove unrelated keys
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := testKey(byte(w), uint16(i%64))
				tbl.Insert(key, uint64(i))
				if i%3 == 0 {
					tbl.Remove(key)
				}
			}
		}(w)
	}

	// Readers look up and refresh concurrently
	stable := testKey(200, 443)
	rec := tbl.Insert(stable, 0)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if got, ok := tbl.Lookup(stable); ok {
					got.TouchIfStale(uint64(i), 1)
				}
			}
		}(r)
	}

	wg.Wait()

	if rec.LastSeen() > 500 {
		t.Errorf("unexpected LastSeen %d", rec.LastSeen())
	}
	if tbl.Len() > tbl.Capacity() {
		t.Errorf("table exceeded capacity: %d > %d", tbl.Len(), tbl.Capacity())
	}
}

func TestKeyString(t *testing.T) {
	key := NewKey(netip.MustParseAddr("10.0.0.5"), netip.MustParseAddr("10.0.0.1"), 443)
	want := "10.0.0.5->10.0.0.1:443"
	if key.String() != want {
		t.Errorf("expected %q, got %q", want, key.String())
	}

	if fmt.Sprintf("%s", key.Src()) != "10.0.0.5" {
		t.Errorf("unexpected Src: %s", key.Src())
	}
}
