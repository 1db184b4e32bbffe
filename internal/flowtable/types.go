// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowtable

import (
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
)

// Key identifies a unidirectional flow by its destination-facing 3-tuple.
// Addresses are kept in network byte order exactly as they appear in the
// IPv4 header; the port is in host order. Keys built by the control plane
// and keys built from packet headers compare equal for the same flow.
type Key struct {
	SrcIP   [4]byte
	DstIP   [4]byte
	DstPort uint16
}

// NewKey builds a Key from parsed addresses.
func NewKey(src, dst netip.Addr, dstPort uint16) Key {
	return Key{
		SrcIP:   src.As4(),
		DstIP:   dst.As4(),
		DstPort: dstPort,
	}
}

// String returns a human-readable form of the key.
func (k Key) String() string {
	return fmt.Sprintf("%s->%s:%d", ip4String(k.SrcIP), ip4String(k.DstIP), k.DstPort)
}

// Src returns the source address.
func (k Key) Src() netip.Addr { return netip.AddrFrom4(k.SrcIP) }

// Dst returns the destination address.
func (k Key) Dst() netip.Addr { return netip.AddrFrom4(k.DstIP) }

func ip4String(b [4]byte) string {
	return net.IPv4(b[0], b[1], b[2], b[3]).String()
}

// Record holds per-flow telemetry. CreatedAt is written once when the
// flow is authorized. LastSeen is the only field the packet path mutates;
// concurrent refreshes are last-writer-wins, which at worst delays the
// next refresh by one threshold interval.
type Record struct {
	lastSeen  atomic.Uint64
	createdAt uint64
}

// NewRecord creates a record authorized at the given monotonic time.
func NewRecord(now uint64) *Record {
	r := &Record{createdAt: now}
	r.lastSeen.Store(now)
	return r
}

// CreatedAt returns the authorization timestamp in nanoseconds.
func (r *Record) CreatedAt() uint64 { return r.createdAt }

// LastSeen returns the most recent refresh timestamp in nanoseconds.
func (r *Record) LastSeen() uint64 { return r.lastSeen.Load() }

// TouchIfStale refreshes LastSeen to now if at least threshold
// nanoseconds have elapsed since the previous refresh. Returns whether a
// write happened. Bounding writes to one per interval keeps sustained
// traffic on a hot flow from hammering a field read by every core.
func (r *Record) TouchIfStale(now, threshold uint64) bool {
	last := r.lastSeen.Load()
	if now < last {
		return false
	}
	if now-last < threshold {
		return false
	}
	r.lastSeen.Store(now)
	return true
}
