// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import (
	"net"
	"net/netip"

	"github.com/pushkar-gr/Aegis/internal/errors"
)

// lookupHost is swapped out in tests.
var lookupHost = net.LookupIP

// ParseIPv4 parses a dotted-quad address into its four network-order
// bytes. Hostnames and IPv6 addresses are rejected; the admission path
// only understands IPv4.
func ParseIPv4(s string) ([4]byte, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return [4]byte{}, errors.Wrapf(err, errors.KindValidation, "invalid address %q", s)
	}
	if !addr.Is4() {
		return [4]byte{}, errors.Errorf(errors.KindValidation, "address %q is not IPv4", s)
	}
	return addr.As4(), nil
}

// ResolveIPv4 resolves a host string to its first IPv4 address. Literal
// addresses short-circuit the lookup.
func ResolveIPv4(host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		if !addr.Is4() {
			return netip.Addr{}, errors.Errorf(errors.KindValidation, "address %q is not IPv4", host)
		}
		return addr, nil
	}
	ips, err := lookupHost(host)
	if err != nil {
		return netip.Addr{}, errors.Wrapf(err, errors.KindUnavailable, "resolving %q", host)
	}
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip.To4()); ok {
			return addr, nil
		}
	}
	return netip.Addr{}, errors.Errorf(errors.KindNotFound, "%q has no IPv4 address", host)
}
