// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package reaper

import (
	"net/netip"
	"testing"
	"time"

	"github.com/pushkar-gr/Aegis/internal/clock"
	"github.com/pushkar-gr/Aegis/internal/flowtable"
)

func key(src, dst string, port uint16) flowtable.Key {
	return flowtable.NewKey(netip.MustParseAddr(src), netip.MustParseAddr(dst), port)
}

func newReaper(t *testing.T, clk clock.Clock, timeout time.Duration) (*Reaper, *flowtable.Table) {
	t.Helper()
	table, err := flowtable.New(flowtable.DefaultCapacity)
	if err != nil {
		t.Fatalf("flowtable.New: %v", err)
	}
	r := New(table, nil, clk, nil, Config{
		Timeout:  timeout,
		Interval: time.Minute,
	})
	return r, table
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	clk := clock.NewFake(1_000_000_000)
	r, table := newReaper(t, clk, 5*time.Minute)

	table.Insert(key("10.0.0.1", "10.0.0.2", 443), clk.NowNanos())
	clk.Advance(2 * time.Minute)
	table.Insert(key("10.0.0.3", "10.0.0.4", 8080), clk.NowNanos())

	// Three minutes later the first session is over the five minute
	// timeout, the second is not.
	clk.Advance(3*time.Minute + time.Second)
	if got := r.Sweep(); got != 1 {
		t.Fatalf("Sweep removed %d, want 1", got)
	}
	if table.Len() != 1 {
		t.Fatalf("table has %d entries, want 1", table.Len())
	}
	if _, ok := table.Lookup(key("10.0.0.3", "10.0.0.4", 8080)); !ok {
		t.Error("fresh session was removed")
	}
}

func TestSweepKeepsSessionAtExactTimeout(t *testing.T) {
	clk := clock.NewFake(1_000_000_000)
	r, table := newReaper(t, clk, time.Minute)

	table.Insert(key("10.0.0.1", "10.0.0.2", 443), clk.NowNanos())
	clk.Advance(time.Minute)
	if got := r.Sweep(); got != 0 {
		t.Fatalf("Sweep removed %d at exact timeout, want 0", got)
	}
}

func TestSnapshotTimeLeft(t *testing.T) {
	clk := clock.NewFake(1_000_000_000)
	r, table := newReaper(t, clk, 5*time.Minute)

	table.Insert(key("10.0.0.1", "10.0.0.2", 443), clk.NowNanos())
	clk.Advance(2 * time.Minute)

	sessions := r.Snapshot()
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	s := sessions[0]
	if s.SrcIP != "10.0.0.1" || s.DstIP != "10.0.0.2" || s.DstPort != 443 {
		t.Errorf("unexpected session %+v", s)
	}
	if s.TimeLeftSec != 180 {
		t.Errorf("time_left_sec = %d, want 180", s.TimeLeftSec)
	}
}

func TestSubscribersReceiveSweepResults(t *testing.T) {
	clk := clock.NewFake(1_000_000_000)
	r, table := newReaper(t, clk, 5*time.Minute)

	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	table.Insert(key("10.0.0.1", "10.0.0.2", 443), clk.NowNanos())
	r.Sweep()

	select {
	case sessions := <-ch:
		if len(sessions) != 1 {
			t.Fatalf("got %d sessions, want 1", len(sessions))
		}
	default:
		t.Fatal("no session list published")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	clk := clock.NewFake(0)
	r, _ := newReaper(t, clk, time.Minute)

	ch := r.Subscribe()
	r.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel still open after unsubscribe")
	}
	// Double unsubscribe must not panic.
	r.Unsubscribe(ch)
}

func TestStartStop(t *testing.T) {
	clk := clock.NewFake(0)
	r, _ := newReaper(t, clk, time.Minute)

	r.Start()
	r.Stop()
	// Stop on a stopped reaper is a no-op.
	r.Stop()
}
