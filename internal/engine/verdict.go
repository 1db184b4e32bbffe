// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

// Verdict is the binary admission decision for a packet.
type Verdict int

const (
	// VerdictDrop discards the packet.
	VerdictDrop Verdict = iota
	// VerdictPass admits the packet.
	VerdictPass
)

func (v Verdict) String() string {
	if v == VerdictPass {
		return "pass"
	}
	return "drop"
}

// Reason records which rule produced the verdict. Every failure mode
// collapses to a drop; the reason exists for telemetry, never for a
// recovery path.
type Reason int

const (
	// ReasonTruncated: a header did not fit in the remaining buffer.
	ReasonTruncated Reason = iota
	// ReasonLinkProtocol: ethertype neither ARP nor IPv4.
	ReasonLinkProtocol
	// ReasonTransportProtocol: IPv4 protocol neither TCP nor UDP.
	ReasonTransportProtocol
	// ReasonUnauthorized: flow absent from the table and not the
	// controller endpoint.
	ReasonUnauthorized
	// ReasonARP: link-layer discovery passthrough.
	ReasonARP
	// ReasonController: control-channel passthrough.
	ReasonController
	// ReasonAuthorized: flow present in the table.
	ReasonAuthorized

	reasonCount
)

func (r Reason) String() string {
	switch r {
	case ReasonTruncated:
		return "truncated"
	case ReasonLinkProtocol:
		return "unsupported_link_protocol"
	case ReasonTransportProtocol:
		return "unsupported_transport_protocol"
	case ReasonUnauthorized:
		return "unauthorized"
	case ReasonARP:
		return "arp"
	case ReasonController:
		return "controller"
	case ReasonAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Reasons lists every reason, for metric registration.
func Reasons() []Reason {
	out := make([]Reason, 0, reasonCount)
	for r := Reason(0); r < reasonCount; r++ {
		out = append(out, r)
	}
	return out
}
