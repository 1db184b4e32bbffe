// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package dataplane

import (
	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"github.com/pushkar-gr/Aegis/internal/errors"
	"github.com/pushkar-gr/Aegis/internal/logging"
)

const steeringTable = "aegis"

// Steering owns the nftables rule that diverts inbound traffic on the
// protected interface into the verdict queue. Without it the userspace
// path sees no packets.
type Steering struct {
	conn   *nftables.Conn
	table  *nftables.Table
	logger *logging.Logger
}

// InstallSteering creates an inet table with a single input-hook rule:
// packets arriving on ifname go to queue queueNum. The chain policy
// stays accept so unrelated interfaces are untouched.
func InstallSteering(ifname string, queueNum uint16, logger *logging.Logger) (*Steering, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "opening netlink connection")
	}

	table := conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyINet,
		Name:   steeringTable,
	})
	policy := nftables.ChainPolicyAccept
	chain := conn.AddChain(&nftables.Chain{
		Name:     "input",
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookInput,
		Priority: nftables.ChainPriorityFilter,
		Policy:   &policy,
	})

	// iifname == ifname -> queue queueNum
	conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			&expr.Meta{Key: expr.MetaKeyIIFNAME, Register: 1},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     ifnameBytes(ifname),
			},
			&expr.Queue{Num: queueNum},
		},
	})

	if err := conn.Flush(); err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "installing queue rule for %s", ifname)
	}
	logger.Info("Queue steering installed", "interface", ifname, "queue", queueNum)
	return &Steering{conn: conn, table: table, logger: logger}, nil
}

// Remove tears the steering table down. Traffic on the interface flows
// uninspected afterwards, so this runs only on shutdown.
func (s *Steering) Remove() error {
	if s == nil {
		return nil
	}
	s.conn.DelTable(s.table)
	if err := s.conn.Flush(); err != nil {
		return errors.Wrap(err, errors.KindInternal, "removing queue steering")
	}
	s.logger.Info("Queue steering removed")
	return nil
}

// ifnameBytes encodes an interface name the way the kernel compares it,
// null terminated in a fixed buffer.
func ifnameBytes(name string) []byte {
	b := make([]byte, unix.IFNAMSIZ)
	copy(b, name)
	return b
}
