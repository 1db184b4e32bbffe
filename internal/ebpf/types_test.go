// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ebpf

import (
	"testing"
	"unsafe"

	"github.com/pushkar-gr/Aegis/internal/flowtable"
)

func TestSessionKeyLayout(t *testing.T) {
	// The kernel struct is packed to 10 bytes; any padding here would
	// make map operations fail with a size mismatch.
	if size := unsafe.Sizeof(SessionKey{}); size != 10 {
		t.Errorf("SessionKey must be 10 bytes, got %d", size)
	}
	if size := unsafe.Sizeof(SessionVal{}); size != 16 {
		t.Errorf("SessionVal must be 16 bytes, got %d", size)
	}
}

func TestKeyConversionRoundTrip(t *testing.T) {
	fk := flowtable.Key{
		SrcIP:   [4]byte{10, 0, 0, 5},
		DstIP:   [4]byte{10, 0, 0, 1},
		DstPort: 443,
	}

	sk := KeyFromFlow(fk)
	if sk.SrcIP != fk.SrcIP || sk.DstIP != fk.DstIP || sk.DstPort != fk.DstPort {
		t.Errorf("conversion changed fields: %+v", sk)
	}
	if sk.FlowKey() != fk {
		t.Errorf("round trip mismatch: %+v", sk.FlowKey())
	}
}

func TestNilOffloadIsInert(t *testing.T) {
	// The offload is optional; a nil receiver must be safe everywhere
	// so callers need no enable checks.
	var o *Offload

	if err := o.AddSession(SessionKey{}, 1); err != nil {
		t.Errorf("AddSession on nil: %v", err)
	}
	if err := o.RemoveSession(SessionKey{}); err != nil {
		t.Errorf("RemoveSession on nil: %v", err)
	}
	if n, err := o.ReapStale(1, 1); n != 0 || err != nil {
		t.Errorf("ReapStale on nil: %d, %v", n, err)
	}
	if s, err := o.Sessions(); s != nil || err != nil {
		t.Errorf("Sessions on nil: %v, %v", s, err)
	}
	if err := o.Close(); err != nil {
		t.Errorf("Close on nil: %v", err)
	}
}
