// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ebpf

import "github.com/pushkar-gr/Aegis/internal/flowtable"

// SessionKey mirrors the packed session_key struct in the kernel filter:
// addresses in network byte order, port in host order. Field order and
// the absence of padding (10 bytes total) must match the C layout or
// kernel map operations will reject it.
type SessionKey struct {
	SrcIP   [4]byte
	DstIP   [4]byte
	DstPort uint16
}

// SessionVal mirrors session_val: nanosecond timestamps from the
// monotonic clock.
type SessionVal struct {
	LastSeenNS  uint64
	CreatedAtNS uint64
}

// KeyFromFlow converts a flow table key to its kernel map form. The
// encodings are deliberately identical, so this is a plain relabel.
func KeyFromFlow(k flowtable.Key) SessionKey {
	return SessionKey{SrcIP: k.SrcIP, DstIP: k.DstIP, DstPort: k.DstPort}
}

// FlowKey converts back to the flow table form.
func (k SessionKey) FlowKey() flowtable.Key {
	return flowtable.Key{SrcIP: k.SrcIP, DstIP: k.DstIP, DstPort: k.DstPort}
}
