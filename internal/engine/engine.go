// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine implements the per-packet admission pipeline: bounded
// header parsing, ARP passthrough, IPv4-only policy, controller-endpoint
// passthrough, authorized-flow lookup with lazy telemetry refresh, and
// default deny. The engine is stateless across packets except for the
// shared flow table; invocations are safe to run concurrently from many
// cores and never block, allocate, or loop over packet data.
package engine

import (
	"net/netip"
	"time"

	"github.com/pushkar-gr/Aegis/internal/clock"
	"github.com/pushkar-gr/Aegis/internal/errors"
	"github.com/pushkar-gr/Aegis/internal/flowtable"
)

// FlowStore is the capability the engine holds on the session table:
// lookup only. Insert, remove and eviction belong to the control plane;
// a miss here means "not authorized", never an error.
type FlowStore interface {
	Lookup(flowtable.Key) (*flowtable.Record, bool)
}

// Recorder receives one observation per decision. Implementations must
// be safe for concurrent use.
type Recorder interface {
	RecordVerdict(Verdict, Reason)
}

// StaticConfig is the immutable attach-time configuration. Changing any
// field means constructing a new engine, not mutating in place.
type StaticConfig struct {
	// ControllerIP in network byte order, as compared against the
	// destination address on the wire.
	ControllerIP [4]byte
	// ControllerPort in host order.
	ControllerPort uint16
	// LazyUpdateThreshold is the minimum interval between LastSeen
	// refreshes on a single flow.
	LazyUpdateThreshold time.Duration
}

// Validate rejects nonsensical controller endpoints and thresholds.
func (c StaticConfig) Validate() error {
	if c.ControllerIP == ([4]byte{}) {
		return errors.New(errors.KindValidation, "controller address is required")
	}
	if c.ControllerPort == 0 {
		return errors.New(errors.KindValidation, "controller port is required")
	}
	if c.LazyUpdateThreshold <= 0 {
		return errors.New(errors.KindValidation, "lazy update threshold must be positive")
	}
	return nil
}

// Controller returns the endpoint as an address/port pair.
func (c StaticConfig) Controller() (netip.Addr, uint16) {
	return netip.AddrFrom4(c.ControllerIP), c.ControllerPort
}

// Engine renders pass/drop verdicts for raw frames.
type Engine struct {
	cfg       StaticConfig
	threshold uint64
	flows     FlowStore
	clock     clock.Clock
	recorder  Recorder
}

// New constructs an engine. The recorder may be nil.
func New(cfg StaticConfig, flows FlowStore, clk clock.Clock, rec Recorder) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if flows == nil {
		return nil, errors.New(errors.KindValidation, "flow store is required")
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	return &Engine{
		cfg:       cfg,
		threshold: uint64(cfg.LazyUpdateThreshold.Nanoseconds()),
		flows:     flows,
		clock:     clk,
		recorder:  rec,
	}, nil
}

// Config returns the engine's immutable configuration.
func (e *Engine) Config() StaticConfig { return e.cfg }

// Decide renders the verdict for one raw Ethernet frame. First matching
// rule wins; anything the pipeline cannot fully classify drops. The only
// side effect is a possible LastSeen refresh on a matched flow.
func (e *Engine) Decide(pkt []byte) (Verdict, Reason) {
	v, r := e.decide(pkt)
	if e.recorder != nil {
		e.recorder.RecordVerdict(v, r)
	}
	return v, r
}

// DecideNetwork renders the verdict for a packet that starts at the
// network layer, as delivered by nfqueue. etherType substitutes for the
// Ethernet header the queue strips off.
func (e *Engine) DecideNetwork(etherType uint16, l3 []byte) (Verdict, Reason) {
	v, r := e.decideNetwork(etherType, l3)
	if e.recorder != nil {
		e.recorder.RecordVerdict(v, r)
	}
	return v, r
}

func (e *Engine) decide(pkt []byte) (Verdict, Reason) {
	var h headers
	if !parseEthernet(pkt, &h) {
		return VerdictDrop, ReasonTruncated
	}
	return e.decideL3(h.etherType, pkt[ethHeaderLen:])
}

func (e *Engine) decideNetwork(etherType uint16, l3 []byte) (Verdict, Reason) {
	return e.decideL3(etherType, l3)
}

func (e *Engine) decideL3(etherType uint16, l3 []byte) (Verdict, Reason) {
	var h headers
	h.etherType = etherType

	// ARP passes unconditionally; without address resolution nothing
	// else on the segment works.
	if h.etherType == etherTypeARP {
		return VerdictPass, ReasonARP
	}
	if h.etherType != etherTypeIPv4 {
		return VerdictDrop, ReasonLinkProtocol
	}

	if !parseIPv4(l3, &h) {
		return VerdictDrop, ReasonTruncated
	}

	// Only TCP and UDP carry admissible flows. ICMP and every other IP
	// protocol drop here regardless of addresses.
	if h.protocol != protoTCP && h.protocol != protoUDP {
		return VerdictDrop, ReasonTransportProtocol
	}
	if !parseTransport(l3, &h) {
		return VerdictDrop, ReasonTruncated
	}

	// The control channel stays reachable even with an empty or fully
	// evicted table, so this check precedes the flow lookup.
	if h.dstPort == e.cfg.ControllerPort && h.dstIP == e.cfg.ControllerIP {
		return VerdictPass, ReasonController
	}

	key := flowtable.Key{SrcIP: h.srcIP, DstIP: h.dstIP, DstPort: h.dstPort}
	rec, ok := e.flows.Lookup(key)
	if !ok {
		return VerdictDrop, ReasonUnauthorized
	}

	rec.TouchIfStale(e.clock.NowNanos(), e.threshold)
	return VerdictPass, ReasonAuthorized
}
