// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package dataplane

import (
	"fmt"

	"github.com/pushkar-gr/Aegis/internal/engine"
	"github.com/pushkar-gr/Aegis/internal/logging"
	"github.com/pushkar-gr/Aegis/internal/metrics"
)

// NFQueueReader is a stub for non-Linux systems.
type NFQueueReader struct{}

// NFQueueStats holds statistics for the queue reader.
type NFQueueStats struct {
	PacketsProcessed uint64 `json:"packets_processed"`
	PacketsAccepted  uint64 `json:"packets_accepted"`
	PacketsDropped   uint64 `json:"packets_dropped"`
	VerdictErrors    uint64 `json:"verdict_errors"`
}

// NewNFQueueReader creates a stub reader.
func NewNFQueueReader(uint16, *engine.Engine, *logging.Logger, *metrics.Metrics) *NFQueueReader {
	return &NFQueueReader{}
}

// Start returns an error on non-Linux systems.
func (r *NFQueueReader) Start() error {
	return fmt.Errorf("nfqueue is only supported on Linux")
}

// Stop is a no-op on non-Linux.
func (r *NFQueueReader) Stop() {}

// IsRunning always returns false on non-Linux.
func (r *NFQueueReader) IsRunning() bool { return false }

// GetStats returns empty stats on non-Linux.
func (r *NFQueueReader) GetStats() NFQueueStats { return NFQueueStats{} }
