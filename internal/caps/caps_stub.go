// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

// Package caps verifies the process privileges needed to attach XDP
// programs before any kernel work starts.
package caps

import "github.com/pushkar-gr/Aegis/internal/errors"

// Has reports whether the given capability is in the effective set of
// the current process. Capabilities are a Linux concept.
func Has(cap int) bool { return false }

// CheckOffload verifies the process can load and attach eBPF programs.
func CheckOffload() error {
	return errors.New(errors.KindUnavailable, "kernel offload requires Linux")
}
