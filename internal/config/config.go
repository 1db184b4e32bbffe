// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the agent configuration: an optional HCL file
// overlaid by command-line flags, producing an immutable value the rest
// of the agent is constructed from. A configuration change means
// restarting the agent, not mutating in place.
package config

import (
	"flag"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/pushkar-gr/Aegis/internal/engine"
	"github.com/pushkar-gr/Aegis/internal/errors"
	"github.com/pushkar-gr/Aegis/internal/flowtable"
	"github.com/pushkar-gr/Aegis/internal/logging"
)

// Config is the full agent configuration.
type Config struct {
	// Interface is the network interface the filter protects.
	Interface string `hcl:"interface,optional" json:"interface"`

	// ControllerIP and ControllerPort identify the always-reachable
	// control-plane endpoint.
	ControllerIP   string `hcl:"controller_ip,optional" json:"controller_ip"`
	ControllerPort uint   `hcl:"controller_port,optional" json:"controller_port"`

	// LazyUpdateThreshold bounds how often a flow's last-seen timestamp
	// is rewritten under sustained traffic.
	LazyUpdateThreshold string `hcl:"lazy_update_threshold,optional" json:"lazy_update_threshold"`

	// ReapTimeout is how long a session may stay idle before the reaper
	// revokes it; CleanupInterval is how often the reaper runs.
	ReapTimeout     string `hcl:"reap_timeout,optional" json:"reap_timeout"`
	CleanupInterval string `hcl:"cleanup_interval,optional" json:"cleanup_interval"`

	// MaxSessions bounds the flow table.
	MaxSessions int `hcl:"max_sessions,optional" json:"max_sessions"`

	// ListenAddr is the control API listen address.
	ListenAddr string `hcl:"listen_addr,optional" json:"listen_addr"`

	// QueueNum selects the nfqueue the dataplane reads from.
	QueueNum uint `hcl:"queue_num,optional" json:"queue_num"`

	// XDPObjectPath points at the compiled kernel filter; empty disables
	// the offload and the agent enforces in userspace only.
	XDPObjectPath string `hcl:"xdp_object,optional" json:"xdp_object"`

	// mTLS material for the control API.
	CertFile string `hcl:"cert_file,optional" json:"cert_file"`
	KeyFile  string `hcl:"key_file,optional" json:"key_file"`
	CAFile   string `hcl:"ca_file,optional" json:"ca_file"`

	LogLevel string `hcl:"log_level,optional" json:"log_level"`

	Syslog *logging.SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty"`

	// Parsed forms, filled by Validate.
	controllerAddr netip.Addr
	lazyThreshold  time.Duration
	reapTimeout    time.Duration
	cleanupEvery   time.Duration
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Interface:           "eth0",
		ControllerIP:        "172.21.0.5",
		ControllerPort:      443,
		LazyUpdateThreshold: "1s",
		ReapTimeout:         "5m",
		CleanupInterval:     "30s",
		MaxSessions:         flowtable.DefaultCapacity,
		ListenAddr:          ":50051",
		QueueNum:            0,
		CertFile:            "certs/agent.pem",
		KeyFile:             "certs/agent.key",
		CAFile:              "certs/ca.pem",
		LogLevel:            "info",
	}
}

// LoadFile overlays the HCL file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return errors.Wrapf(diags, errors.KindValidation, "failed to parse %s", path)
	}
	if diags := gohcl.DecodeBody(file.Body, nil, cfg); diags.HasErrors() {
		return errors.Wrapf(diags, errors.KindValidation, "failed to decode %s", path)
	}
	return nil
}

// Load builds the configuration from defaults, an optional HCL file and
// command-line flags, in that order of precedence (flags win). args is
// os.Args[1:].
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("aegis-agent", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to HCL configuration file")
	fs.StringVar(&cfg.Interface, "i", cfg.Interface, "network interface to protect")
	fs.StringVar(&cfg.ControllerIP, "c", cfg.ControllerIP, "controller IPv4 address")
	fs.UintVar(&cfg.ControllerPort, "p", cfg.ControllerPort, "controller port")
	fs.StringVar(&cfg.LazyUpdateThreshold, "n", cfg.LazyUpdateThreshold, "minimum interval between last-seen refreshes")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "control API listen address")
	fs.StringVar(&cfg.XDPObjectPath, "xdp-object", cfg.XDPObjectPath, "compiled XDP filter object (empty disables offload)")
	fs.StringVar(&cfg.CertFile, "cert-pem", cfg.CertFile, "agent TLS certificate")
	fs.StringVar(&cfg.KeyFile, "cert-key", cfg.KeyFile, "agent TLS key")
	fs.StringVar(&cfg.CAFile, "cert-ca", cfg.CAFile, "controller CA bundle")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	// Two passes so the file loads before flags override it.
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to parse flags")
	}
	if *configPath != "" {
		if err := LoadFile(*configPath, cfg); err != nil {
			return nil, err
		}
		if err := fs.Parse(args); err != nil {
			return nil, errors.Wrap(err, errors.KindValidation, "failed to parse flags")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills the parsed fields.
// Misconfiguration here is the one fatal condition in the agent.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return errors.New(errors.KindValidation, "interface is required")
	}

	addr, err := netip.ParseAddr(c.ControllerIP)
	if err != nil || !addr.Is4() {
		return errors.Errorf(errors.KindValidation, "controller_ip %q is not a valid IPv4 address", c.ControllerIP)
	}
	if addr.IsUnspecified() {
		return errors.New(errors.KindValidation, "controller_ip must not be unspecified")
	}
	c.controllerAddr = addr

	if c.ControllerPort == 0 || c.ControllerPort > 65535 {
		return errors.Errorf(errors.KindValidation, "controller_port %d out of range", c.ControllerPort)
	}

	if c.lazyThreshold, err = parseDuration("lazy_update_threshold", c.LazyUpdateThreshold); err != nil {
		return err
	}
	if c.reapTimeout, err = parseDuration("reap_timeout", c.ReapTimeout); err != nil {
		return err
	}
	if c.cleanupEvery, err = parseDuration("cleanup_interval", c.CleanupInterval); err != nil {
		return err
	}

	if c.MaxSessions < 1 {
		return errors.Errorf(errors.KindValidation, "max_sessions must be positive, got %d", c.MaxSessions)
	}
	if c.ListenAddr == "" {
		return errors.New(errors.KindValidation, "listen_addr is required")
	}
	if c.Syslog != nil && c.Syslog.Enabled && c.Syslog.Host == "" {
		return errors.New(errors.KindValidation, "syslog.host is required when syslog is enabled")
	}
	return nil
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Errorf(errors.KindValidation, "%s %q is not a duration", name, value)
	}
	if d <= 0 {
		return 0, errors.Errorf(errors.KindValidation, "%s must be positive", name)
	}
	return d, nil
}

// ControllerAddr returns the parsed controller address.
func (c *Config) ControllerAddr() netip.Addr { return c.controllerAddr }

// LazyThreshold returns the parsed refresh threshold.
func (c *Config) LazyThreshold() time.Duration { return c.lazyThreshold }

// ReapAfter returns the parsed idle timeout.
func (c *Config) ReapAfter() time.Duration { return c.reapTimeout }

// CleanupEvery returns the parsed reaper interval.
func (c *Config) CleanupEvery() time.Duration { return c.cleanupEvery }

// Static derives the engine's immutable attach-time configuration.
func (c *Config) Static() engine.StaticConfig {
	return engine.StaticConfig{
		ControllerIP:        c.controllerAddr.As4(),
		ControllerPort:      uint16(c.ControllerPort),
		LazyUpdateThreshold: c.lazyThreshold,
	}
}

// TLSConfigured reports whether certificate material is present on disk.
func (c *Config) TLSConfigured() bool {
	if c.CertFile == "" || c.KeyFile == "" {
		return false
	}
	if _, err := os.Stat(c.CertFile); err != nil {
		return false
	}
	if _, err := os.Stat(c.KeyFile); err != nil {
		return false
	}
	return true
}

// String summarizes the effective configuration for startup logging.
func (c *Config) String() string {
	return fmt.Sprintf("iface=%s controller=%s:%d threshold=%s reap=%s sessions=%d listen=%s",
		c.Interface, c.ControllerIP, c.ControllerPort,
		c.LazyUpdateThreshold, c.ReapTimeout, c.MaxSessions, c.ListenAddr)
}
