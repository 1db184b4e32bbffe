// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

// Package netutil resolves interface and controller addresses at
// startup.
package netutil

import (
	"net"

	"github.com/vishvananda/netlink"

	"github.com/pushkar-gr/Aegis/internal/errors"
)

// InterfaceIndex returns the kernel index for a named interface.
func InterfaceIndex(name string) (int, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return 0, errors.Wrapf(err, errors.KindNotFound, "interface %q not found", name)
	}
	return link.Attrs().Index, nil
}

// InterfaceUp reports whether the named interface is administratively
// up.
func InterfaceUp(name string) (bool, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return false, errors.Wrapf(err, errors.KindNotFound, "interface %q not found", name)
	}
	return link.Attrs().Flags&net.FlagUp != 0, nil
}
