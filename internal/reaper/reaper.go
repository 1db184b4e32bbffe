// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package reaper expires idle sessions. Sessions are never removed on
// the packet path; a background loop sweeps both the userspace table
// and the kernel map and tells monitor subscribers what survived.
package reaper

import (
	"sync"
	"time"

	"github.com/pushkar-gr/Aegis/internal/clock"
	"github.com/pushkar-gr/Aegis/internal/ebpf"
	"github.com/pushkar-gr/Aegis/internal/flowtable"
	"github.com/pushkar-gr/Aegis/internal/logging"
	"github.com/pushkar-gr/Aegis/internal/metrics"
)

// Session is the monitor view of one authorized flow.
type Session struct {
	SrcIP       string `json:"src_ip"`
	DstIP       string `json:"dst_ip"`
	DstPort     uint16 `json:"dst_port"`
	TimeLeftSec int64  `json:"time_left_sec"`
}

// Config for the reaper loop.
type Config struct {
	// Timeout is how long a session may sit idle before removal.
	Timeout time.Duration
	// Interval is how often the sweep runs.
	Interval time.Duration
}

// Reaper sweeps idle sessions on a timer.
type Reaper struct {
	table   *flowtable.Table
	offload *ebpf.Offload
	clk     clock.Clock
	metrics *metrics.Metrics
	logger  *logging.Logger
	cfg     Config

	mu     sync.Mutex
	subs   map[chan []Session]struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a reaper over the given table. The offload may be nil
// when the XDP program is not loaded.
func New(table *flowtable.Table, offload *ebpf.Offload, clk clock.Clock, m *metrics.Metrics, cfg Config) *Reaper {
	return &Reaper{
		table:   table,
		offload: offload,
		clk:     clk,
		metrics: m,
		logger:  logging.WithComponent("reaper"),
		cfg:     cfg,
		subs:    make(map[chan []Session]struct{}),
	}
}

// Start launches the sweep loop.
func (r *Reaper) Start() {
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.loop(r.stopCh, r.doneCh)
	r.logger.Info("Reaper started",
		"timeout", r.cfg.Timeout,
		"interval", r.cfg.Interval)
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (r *Reaper) Stop() {
	if r.stopCh == nil {
		return
	}
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()
	select {
	case <-r.doneCh:
		r.logger.Info("Reaper stopped")
	case <-timer.C:
		r.logger.Warn("Reaper stop timed out")
	}
}

func (r *Reaper) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-stopCh:
			return
		}
	}
}

// Sweep removes sessions idle longer than the timeout and publishes the
// surviving list to subscribers. It returns how many were removed.
func (r *Reaper) Sweep() int {
	now := r.clk.NowNanos()
	timeout := uint64(r.cfg.Timeout.Nanoseconds())

	reaped := r.table.ReapStale(now, timeout)
	if reaped > 0 {
		r.logger.Info("Reaped idle sessions", "count", reaped)
	}

	if kernelReaped, err := r.offload.ReapStale(now, timeout); err != nil {
		r.logger.Warn("Kernel map sweep failed", "error", err)
		if r.metrics != nil {
			r.metrics.OffloadErrors.Inc()
		}
	} else if kernelReaped > 0 {
		r.logger.Debug("Reaped kernel sessions", "count", kernelReaped)
	}

	if r.metrics != nil {
		r.metrics.SessionsReaped.Add(float64(reaped))
		r.metrics.SessionsActive.Set(float64(r.table.Len()))
	}

	r.publish(r.snapshotAt(now, timeout))
	return reaped
}

// Snapshot lists the current sessions with their remaining idle budget.
func (r *Reaper) Snapshot() []Session {
	return r.snapshotAt(r.clk.NowNanos(), uint64(r.cfg.Timeout.Nanoseconds()))
}

func (r *Reaper) snapshotAt(now, timeout uint64) []Session {
	entries := r.table.Entries()
	sessions := make([]Session, 0, len(entries))
	for _, e := range entries {
		last := e.Record.LastSeen()
		var left int64
		if now >= last {
			left = (int64(timeout) - int64(now-last)) / int64(time.Second)
		} else {
			left = int64(timeout) / int64(time.Second)
		}
		if left < 0 {
			left = 0
		}
		sessions = append(sessions, Session{
			SrcIP:       e.Key.Src().String(),
			DstIP:       e.Key.Dst().String(),
			DstPort:     e.Key.DstPort,
			TimeLeftSec: left,
		})
	}
	return sessions
}

// Subscribe registers a monitor stream. Each sweep delivers the session
// list to the channel; slow consumers miss updates rather than block
// the sweep.
func (r *Reaper) Subscribe() chan []Session {
	ch := make(chan []Session, 4)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes a monitor stream and closes its channel.
func (r *Reaper) Unsubscribe(ch chan []Session) {
	r.mu.Lock()
	if _, ok := r.subs[ch]; ok {
		delete(r.subs, ch)
		close(ch)
	}
	r.mu.Unlock()
}

func (r *Reaper) publish(sessions []Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- sessions:
		default:
		}
	}
}
