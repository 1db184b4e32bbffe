// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command aegis-agent runs the session admission filter on a host. It
// drops every inbound flow on the protected interface except ARP,
// controller traffic and flows the controller has authorized. With an
// XDP object configured it enforces in the kernel; otherwise packets
// are pulled from nfqueue and judged in userspace.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pushkar-gr/Aegis/internal/api"
	"github.com/pushkar-gr/Aegis/internal/caps"
	"github.com/pushkar-gr/Aegis/internal/clock"
	"github.com/pushkar-gr/Aegis/internal/config"
	"github.com/pushkar-gr/Aegis/internal/dataplane"
	"github.com/pushkar-gr/Aegis/internal/ebpf"
	"github.com/pushkar-gr/Aegis/internal/engine"
	"github.com/pushkar-gr/Aegis/internal/flowtable"
	"github.com/pushkar-gr/Aegis/internal/logging"
	"github.com/pushkar-gr/Aegis/internal/metrics"
	"github.com/pushkar-gr/Aegis/internal/netutil"
	"github.com/pushkar-gr/Aegis/internal/reaper"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "aegis-agent: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	var logWriters []io.Writer
	if cfg.Syslog != nil && cfg.Syslog.Enabled {
		sw, err := logging.NewSyslogWriter(*cfg.Syslog)
		if err != nil {
			return err
		}
		defer sw.Close()
		logWriters = append(logWriters, sw)
	}
	logging.Init(cfg.LogLevel, logWriters...)
	logger := logging.WithComponent("agent")
	logger.Info("Starting aegis-agent", "config", cfg.String())

	m := metrics.New()
	m.SessionCapacity.Set(float64(cfg.MaxSessions))

	table, err := flowtable.New(cfg.MaxSessions, flowtable.WithEvictionHook(func(key flowtable.Key) {
		m.SessionsEvicted.Inc()
		logger.Debug("Session evicted under capacity pressure", "flow", key.String())
	}))
	if err != nil {
		return err
	}

	clk := clock.NewReal()
	eng, err := engine.New(cfg.Static(), table, clk, m)
	if err != nil {
		return err
	}

	var offload *ebpf.Offload
	if cfg.XDPObjectPath != "" {
		if err := caps.CheckOffload(); err != nil {
			return err
		}
		ifindex, err := netutil.InterfaceIndex(cfg.Interface)
		if err != nil {
			return err
		}
		offload, err = ebpf.Load(cfg.XDPObjectPath, ifindex, cfg.Static(), clk, logging.WithComponent("ebpf"))
		if err != nil {
			return err
		}
		defer offload.Close()
		m.OffloadAttached.Set(1)
		logger.Info("XDP offload attached", "interface", cfg.Interface, "object", cfg.XDPObjectPath)
	} else {
		logger.Info("No XDP object configured, enforcing in userspace")
	}

	dpLogger := logging.WithComponent("dataplane")
	reader := dataplane.NewNFQueueReader(uint16(cfg.QueueNum), eng, dpLogger, m)
	if err := reader.Start(); err != nil {
		// The kernel offload can carry enforcement alone; without
		// either, refuse to run open.
		if offload == nil {
			return err
		}
		logger.Warn("nfqueue unavailable, kernel offload only", "error", err)
	}
	defer reader.Stop()

	if reader.IsRunning() {
		steering, err := dataplane.InstallSteering(cfg.Interface, uint16(cfg.QueueNum), dpLogger)
		if err != nil {
			if offload == nil {
				return err
			}
			logger.Warn("Queue steering unavailable, kernel offload only", "error", err)
		} else {
			defer steering.Remove()
		}
	}

	rp := reaper.New(table, offload, clk, m, reaper.Config{
		Timeout:  cfg.ReapAfter(),
		Interval: cfg.CleanupEvery(),
	})
	rp.Start()
	defer rp.Stop()

	server, err := api.NewServer(api.ServerOptions{
		Config:  cfg,
		Table:   table,
		Offload: offload,
		Reaper:  rp,
		Clock:   clk,
		Metrics: m,
	})
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Warn("Session API shutdown error", "error", err)
	}
	return nil
}
