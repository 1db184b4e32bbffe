// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

// Package caps verifies the process privileges needed to attach XDP
// programs before any kernel work starts.
package caps

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/pushkar-gr/Aegis/internal/errors"
)

var required = []struct {
	cap  int
	name string
}{
	{unix.CAP_BPF, "CAP_BPF"},
	{unix.CAP_NET_ADMIN, "CAP_NET_ADMIN"},
}

// Has reports whether the given capability is in the effective set of
// the current process.
func Has(cap int) bool {
	var header unix.CapUserHeader
	var data [2]unix.CapUserData

	header.Version = unix.LINUX_CAPABILITY_VERSION_3
	if err := unix.Capget(&header, &data[0]); err != nil {
		return false
	}
	return data[cap/32].Effective&(1<<uint(cap%32)) != 0
}

// CheckOffload verifies the process can load and attach eBPF programs.
// Root satisfies the check outright; otherwise both CAP_BPF and
// CAP_NET_ADMIN must be in the effective set.
func CheckOffload() error {
	if os.Geteuid() == 0 {
		return nil
	}
	var missing []string
	for _, rc := range required {
		if !Has(rc.cap) {
			missing = append(missing, rc.name)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf(errors.KindPermission,
			"missing capabilities: %s; run as root or grant them to the binary",
			strings.Join(missing, ", "))
	}
	return nil
}
