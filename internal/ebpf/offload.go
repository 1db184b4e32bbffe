// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ebpf loads the compiled XDP filter and keeps its kernel
// session map mirrored with the userspace flow table. The kernel map is
// an LRU_HASH sized like the userspace table, so both sides evict under
// the same capacity pressure.
package ebpf

import (
	"encoding/binary"
	"os"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"

	"github.com/pushkar-gr/Aegis/internal/clock"
	"github.com/pushkar-gr/Aegis/internal/engine"
	"github.com/pushkar-gr/Aegis/internal/errors"
	"github.com/pushkar-gr/Aegis/internal/logging"
)

const (
	programName = "xdp_drop_prog"
	mapName     = "session"

	bpfFSPath = "/sys/fs/bpf/aegis"
)

// Offload owns the attached XDP program and its session map.
type Offload struct {
	collection *ebpf.Collection
	link       link.Link
	sessions   *ebpf.Map
	logger     *logging.Logger
	clk        clock.Clock
}

// Load reads the compiled filter object, fills its attach-time constants
// from cfg, loads it into the kernel and attaches it to the interface.
func Load(objectPath string, ifindex int, cfg engine.StaticConfig, clk clock.Clock, logger *logging.Logger) (*Offload, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.NewReal()
	}

	spec, err := ebpf.LoadCollectionSpec(objectPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "failed to load filter object %s", objectPath)
	}

	// The filter's rodata constants are fixed before load; the kernel
	// side never sees configuration changes, matching the attach-time
	// immutability of StaticConfig. The address constant is compared
	// against the wire-order daddr, so its in-memory bytes must be the
	// address bytes as-is.
	consts := map[string]interface{}{
		"CONTROLLER_IP":       binary.NativeEndian.Uint32(cfg.ControllerIP[:]),
		"CONTROLLER_PORT":     cfg.ControllerPort,
		"LAZY_UPDATE_TIMEOUT": uint64(cfg.LazyUpdateThreshold.Nanoseconds()),
	}
	if err := spec.RewriteConstants(consts); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to set filter constants")
	}

	if err := os.MkdirAll(bpfFSPath, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to create bpf fs directory")
	}
	if m, ok := spec.Maps[mapName]; ok {
		m.Pinning = ebpf.PinByName
	}

	collection, err := ebpf.NewCollectionWithOptions(spec, ebpf.CollectionOptions{
		Maps: ebpf.MapOptions{PinPath: bpfFSPath},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to load filter into kernel")
	}

	prog, ok := collection.Programs[programName]
	if !ok {
		collection.Close()
		return nil, errors.Errorf(errors.KindInternal, "program %s not found in object", programName)
	}
	sessions, ok := collection.Maps[mapName]
	if !ok {
		collection.Close()
		return nil, errors.Errorf(errors.KindInternal, "map %s not found in object", mapName)
	}

	lnk, err := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: ifindex,
	})
	if err != nil {
		collection.Close()
		return nil, errors.Wrapf(err, errors.KindInternal, "failed to attach XDP to ifindex %d", ifindex)
	}

	logger.Info("XDP filter attached",
		"object", objectPath,
		"ifindex", ifindex,
		"map", mapName)

	return &Offload{
		collection: collection,
		link:       lnk,
		sessions:   sessions,
		logger:     logger,
		clk:        clk,
	}, nil
}

// Close detaches the program and releases kernel resources.
func (o *Offload) Close() error {
	if o == nil {
		return nil
	}
	var first error
	if o.link != nil {
		if err := o.link.Close(); err != nil {
			first = err
		}
	}
	if o.collection != nil {
		o.collection.Close()
	}
	return first
}

// AddSession authorizes a flow in the kernel map with both timestamps
// set to now.
func (o *Offload) AddSession(key SessionKey, now uint64) error {
	if o == nil {
		return nil
	}
	val := SessionVal{LastSeenNS: now, CreatedAtNS: now}
	if err := o.sessions.Update(&key, &val, ebpf.UpdateAny); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "failed to add kernel session %s", key.FlowKey())
	}
	return nil
}

// RemoveSession revokes a flow in the kernel map. A missing key is not
// an error; LRU eviction may have raced us.
func (o *Offload) RemoveSession(key SessionKey) error {
	if o == nil {
		return nil
	}
	if err := o.sessions.Delete(&key); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return nil
		}
		return errors.Wrapf(err, errors.KindInternal, "failed to remove kernel session %s", key.FlowKey())
	}
	return nil
}

// ReapStale removes every kernel session idle longer than timeout
// nanoseconds. Returns the number removed.
func (o *Offload) ReapStale(now, timeout uint64) (int, error) {
	if o == nil {
		return 0, nil
	}

	var (
		key   SessionKey
		val   SessionVal
		stale []SessionKey
	)
	iter := o.sessions.Iterate()
	for iter.Next(&key, &val) {
		if now > val.LastSeenNS && now-val.LastSeenNS > timeout {
			stale = append(stale, key)
		}
	}
	if err := iter.Err(); err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "failed to walk kernel session map")
	}

	reaped := 0
	for _, k := range stale {
		if err := o.sessions.Delete(&k); err != nil {
			if errors.Is(err, ebpf.ErrKeyNotExist) {
				continue
			}
			o.logger.Error("Failed to reap kernel session", "error", err, "flow", k.FlowKey())
			continue
		}
		reaped++
	}
	if reaped > 0 {
		o.logger.Debug("Reaped stale kernel sessions", "count", reaped)
	}
	return reaped, nil
}

// SessionInfo describes one kernel session for listing.
type SessionInfo struct {
	Key         SessionKey
	LastSeenNS  uint64
	CreatedAtNS uint64
}

// Sessions returns a point-in-time copy of the kernel session map.
func (o *Offload) Sessions() ([]SessionInfo, error) {
	if o == nil {
		return nil, nil
	}

	var (
		key SessionKey
		val SessionVal
		out []SessionInfo
	)
	iter := o.sessions.Iterate()
	for iter.Next(&key, &val) {
		out = append(out, SessionInfo{Key: key, LastSeenNS: val.LastSeenNS, CreatedAtNS: val.CreatedAtNS})
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to walk kernel session map")
	}
	return out, nil
}
