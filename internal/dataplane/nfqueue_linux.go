// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

// Package dataplane enforces engine verdicts in userspace through
// nfqueue. It is the portable enforcement path; when the XDP offload is
// attached the kernel renders the same verdicts before packets reach the
// queue.
package dataplane

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	nfqueue "github.com/florianl/go-nfqueue/v2"

	"github.com/pushkar-gr/Aegis/internal/engine"
	"github.com/pushkar-gr/Aegis/internal/errors"
	"github.com/pushkar-gr/Aegis/internal/logging"
	"github.com/pushkar-gr/Aegis/internal/metrics"
)

// NFQueueReader pulls packets from an nfqueue and issues verdicts from
// the decision engine.
type NFQueueReader struct {
	queueNum uint16
	engine   *engine.Engine
	logger   *logging.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	nf      *nfqueue.Nfqueue
	cancel  context.CancelFunc
	running bool

	stats nfqueueStats
}

type nfqueueStats struct {
	processed     atomic.Uint64
	accepted      atomic.Uint64
	dropped       atomic.Uint64
	verdictErrors atomic.Uint64
}

// NFQueueStats holds statistics for the queue reader.
type NFQueueStats struct {
	PacketsProcessed uint64 `json:"packets_processed"`
	PacketsAccepted  uint64 `json:"packets_accepted"`
	PacketsDropped   uint64 `json:"packets_dropped"`
	VerdictErrors    uint64 `json:"verdict_errors"`
}

// NewNFQueueReader creates a reader for the given queue. The metrics
// recorder may be nil.
func NewNFQueueReader(queueNum uint16, eng *engine.Engine, logger *logging.Logger, m *metrics.Metrics) *NFQueueReader {
	return &NFQueueReader{
		queueNum: queueNum,
		engine:   eng,
		logger:   logger,
		metrics:  m,
	}
}

// Start opens the queue and begins issuing verdicts. Packets the kernel
// queues while no verdict function is registered wait in the queue.
func (r *NFQueueReader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New(errors.KindInternal, "nfqueue reader already running")
	}

	nf, err := nfqueue.Open(&nfqueue.Config{
		NfQueue:      r.queueNum,
		MaxPacketLen: 0xFFFF,
		MaxQueueLen:  1024,
		Copymode:     nfqueue.NfQnlCopyPacket,
		WriteTimeout: 15 * time.Millisecond,
	})
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "failed to open nfqueue %d", r.queueNum)
	}

	ctx, cancel := context.WithCancel(context.Background())

	hook := func(a nfqueue.Attribute) int {
		if a.PacketID == nil {
			return 0
		}
		id := *a.PacketID
		r.stats.processed.Add(1)

		verdict := nfqueue.NfDrop
		if a.Payload != nil {
			etherType := uint16(0x0800)
			if a.HwProtocol != nil {
				etherType = *a.HwProtocol
			}
			if v, _ := r.engine.DecideNetwork(etherType, *a.Payload); v == engine.VerdictPass {
				verdict = nfqueue.NfAccept
			}
		}

		if verdict == nfqueue.NfAccept {
			r.stats.accepted.Add(1)
		} else {
			r.stats.dropped.Add(1)
		}

		if err := nf.SetVerdict(id, verdict); err != nil {
			r.stats.verdictErrors.Add(1)
			if r.metrics != nil {
				r.metrics.QueueVerdictErrors.Inc()
			}
			r.logger.Error("Failed to set verdict", "error", err, "packet_id", id)
		}
		return 0
	}

	errFn := func(err error) int {
		// Transient netlink receive errors; keep reading.
		r.logger.Warn("nfqueue receive error", "error", err)
		return 0
	}

	if err := nf.RegisterWithErrorFunc(ctx, hook, errFn); err != nil {
		cancel()
		nf.Close()
		return errors.Wrap(err, errors.KindUnavailable, "failed to register nfqueue hook")
	}

	r.nf = nf
	r.cancel = cancel
	r.running = true

	r.logger.Info("nfqueue reader started", "queue", r.queueNum)
	return nil
}

// Stop stops the reader and closes the queue.
func (r *NFQueueReader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.cancel()
	if err := r.nf.Close(); err != nil {
		r.logger.Warn("Failed to close nfqueue", "error", err)
	}
	r.nf = nil
	r.running = false
	r.logger.Info("nfqueue reader stopped", "queue", r.queueNum)
}

// IsRunning reports whether the reader is active.
func (r *NFQueueReader) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// GetStats returns a snapshot of the reader statistics.
func (r *NFQueueReader) GetStats() NFQueueStats {
	return NFQueueStats{
		PacketsProcessed: r.stats.processed.Load(),
		PacketsAccepted:  r.stats.accepted.Load(),
		PacketsDropped:   r.stats.dropped.Load(),
		VerdictErrors:    r.stats.verdictErrors.Load(),
	}
}
