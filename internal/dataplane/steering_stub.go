// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package dataplane

import (
	"github.com/pushkar-gr/Aegis/internal/errors"
	"github.com/pushkar-gr/Aegis/internal/logging"
)

// Steering owns the nftables rule that diverts inbound traffic on the
// protected interface into the verdict queue.
type Steering struct{}

// InstallSteering requires Linux nftables support.
func InstallSteering(ifname string, queueNum uint16, logger *logging.Logger) (*Steering, error) {
	return nil, errors.New(errors.KindUnavailable, "queue steering requires Linux")
}

// Remove tears the steering table down.
func (s *Steering) Remove() error { return nil }
