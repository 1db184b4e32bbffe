// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import (
	"net"
	"testing"
)

func TestParseIPv4(t *testing.T) {
	addr, err := ParseIPv4("172.21.0.5")
	if err != nil {
		t.Fatalf("ParseIPv4: %v", err)
	}
	if addr != [4]byte{172, 21, 0, 5} {
		t.Errorf("got %v", addr)
	}

	for _, bad := range []string{"", "controller.local", "fe80::1", "256.1.1.1"} {
		if _, err := ParseIPv4(bad); err == nil {
			t.Errorf("ParseIPv4(%q) accepted", bad)
		}
	}
}

func TestResolveIPv4Literal(t *testing.T) {
	addr, err := ResolveIPv4("10.0.0.1")
	if err != nil {
		t.Fatalf("ResolveIPv4: %v", err)
	}
	if addr.String() != "10.0.0.1" {
		t.Errorf("got %s", addr)
	}
	if _, err := ResolveIPv4("fe80::1"); err == nil {
		t.Error("IPv6 literal accepted")
	}
}

func TestResolveIPv4Hostname(t *testing.T) {
	orig := lookupHost
	defer func() { lookupHost = orig }()

	lookupHost = func(host string) ([]net.IP, error) {
		return []net.IP{
			net.ParseIP("fe80::1"),
			net.ParseIP("172.21.0.5"),
		}, nil
	}
	addr, err := ResolveIPv4("controller.internal")
	if err != nil {
		t.Fatalf("ResolveIPv4: %v", err)
	}
	if addr.String() != "172.21.0.5" {
		t.Errorf("got %s", addr)
	}

	lookupHost = func(host string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("fe80::1")}, nil
	}
	if _, err := ResolveIPv4("v6only.internal"); err == nil {
		t.Error("v6-only host accepted")
	}
}
