// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import "encoding/binary"

// Wire constants for the one packet shape the engine admits:
// Ethernet -> IPv4 -> {TCP|UDP}. Anything else drops.
const (
	ethHeaderLen  = 14
	ipv4HeaderLen = 20
	tcpHeaderLen  = 20
	udpHeaderLen  = 8

	etherTypeIPv4 = 0x0800
	etherTypeARP  = 0x0806

	protoTCP = 6
	protoUDP = 17
)

// Field offsets relative to the start of their layer. The IPv4 header is
// taken at its 20-byte fixed size; options are not parsed and the
// transport header is read at the fixed offset, the same shape the
// kernel filter enforces.
const (
	ethTypeOff = 12

	ipProtoOff = 9
	ipSrcOff   = 12
	ipDstOff   = 16

	transportDstPortOff = ipv4HeaderLen + 2
)

// headers holds the fields extracted from a fully parsed packet. Filled
// layer by layer; a field is only valid once the corresponding parse
// step succeeded.
type headers struct {
	etherType uint16
	protocol  uint8
	srcIP     [4]byte
	dstIP     [4]byte
	dstPort   uint16
}

// parseEthernet validates the Ethernet header and extracts the
// ethertype. Returns false when the frame is shorter than the header.
func parseEthernet(pkt []byte, h *headers) bool {
	if len(pkt) < ethHeaderLen {
		return false
	}
	h.etherType = binary.BigEndian.Uint16(pkt[ethTypeOff:])
	return true
}

// parseIPv4 validates the fixed IPv4 header at the start of l3 and
// extracts protocol and addresses. Addresses stay in network byte order,
// exactly as on the wire.
func parseIPv4(l3 []byte, h *headers) bool {
	if len(l3) < ipv4HeaderLen {
		return false
	}
	h.protocol = l3[ipProtoOff]
	copy(h.srcIP[:], l3[ipSrcOff:ipSrcOff+4])
	copy(h.dstIP[:], l3[ipDstOff:ipDstOff+4])
	return true
}

// parseTransport validates the TCP or UDP header following the fixed
// IPv4 header and extracts the destination port in host order. The
// caller guarantees protocol is TCP or UDP.
func parseTransport(l3 []byte, h *headers) bool {
	need := ipv4HeaderLen + udpHeaderLen
	if h.protocol == protoTCP {
		need = ipv4HeaderLen + tcpHeaderLen
	}
	if len(l3) < need {
		return false
	}
	h.dstPort = binary.BigEndian.Uint16(l3[transportDstPortOff:])
	return true
}
