// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// SyslogConfig configures forwarding of log lines to a syslog collector.
type SyslogConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled"`
	Host     string `hcl:"host,optional" json:"host"`
	Port     int    `hcl:"port,optional" json:"port"`
	Protocol string `hcl:"protocol,optional" json:"protocol"` // udp or tcp
	Tag      string `hcl:"tag,optional" json:"tag"`
	Facility int    `hcl:"facility,optional" json:"facility"`
}

// DefaultSyslogConfig returns the disabled default configuration.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      "aegis",
		Facility: 1, // user-level
	}
}

// SyslogWriter forwards log lines as RFC 3164 messages. Connection
// failures are absorbed; the writer reconnects on the next write.
type SyslogWriter struct {
	cfg      SyslogConfig
	hostname string

	mu   sync.Mutex
	conn net.Conn
}

// NewSyslogWriter creates a writer for the given config, applying
// defaults for unset fields. Host is required.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = "aegis"
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	return &SyslogWriter{cfg: cfg, hostname: hostname}, nil
}

// Write implements io.Writer. Each call is framed as one syslog message.
func (w *SyslogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		addr := net.JoinHostPort(w.cfg.Host, fmt.Sprintf("%d", w.cfg.Port))
		conn, err := net.DialTimeout(w.cfg.Protocol, addr, 5*time.Second)
		if err != nil {
			// Drop the line rather than blocking the agent on a dead
			// collector.
			return len(p), nil
		}
		w.conn = conn
	}

	pri := w.cfg.Facility*8 + 6 // severity info
	msg := fmt.Sprintf("<%d>%s %s %s: %s",
		pri, time.Now().Format(time.Stamp), w.hostname, w.cfg.Tag, p)

	if _, err := w.conn.Write([]byte(msg)); err != nil {
		w.conn.Close()
		w.conn = nil
	}
	return len(p), nil
}

// Close closes the underlying connection if open.
func (w *SyslogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}
