// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pushkar-gr/Aegis/internal/clock"
	"github.com/pushkar-gr/Aegis/internal/config"
	"github.com/pushkar-gr/Aegis/internal/flowtable"
	"github.com/pushkar-gr/Aegis/internal/reaper"
)

func TestMonitorStream(t *testing.T) {
	// The middleware checks the transport peer, so the test server's
	// loopback address has to be the controller.
	cfg := config.Default()
	cfg.ControllerIP = "127.0.0.1"
	cfg.CertFile = ""
	cfg.KeyFile = ""
	cfg.CAFile = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	table, err := flowtable.New(64)
	if err != nil {
		t.Fatalf("flowtable.New: %v", err)
	}
	clk := clock.NewFake(1_000_000_000)
	rp := reaper.New(table, nil, clk, nil, reaper.Config{
		Timeout:  5 * time.Minute,
		Interval: time.Minute,
	})
	server, err := NewServer(ServerOptions{
		Config: cfg,
		Table:  table,
		Reaper: rp,
		Clock:  clk,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	table.Insert(flowtable.NewKey(
		netip.MustParseAddr("10.0.0.1"),
		netip.MustParseAddr("10.0.0.2"), 443), clk.NowNanos())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/monitor"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp %v)", err, resp)
	}
	defer conn.Close()

	// First frame is the immediate snapshot.
	var list SessionList
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&list); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if len(list.Sessions) != 1 {
		t.Fatalf("snapshot has %d sessions, want 1", len(list.Sessions))
	}
	if list.Sessions[0].DstPort != 443 {
		t.Errorf("unexpected session %+v", list.Sessions[0])
	}

	// A sweep publishes the next frame. The session goes idle past the
	// timeout, so the frame must be empty.
	clk.Advance(6 * time.Minute)
	rp.Sweep()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&list); err != nil {
		t.Fatalf("read sweep frame: %v", err)
	}
	if len(list.Sessions) != 0 {
		t.Errorf("sweep frame has %d sessions, want 0", len(list.Sessions))
	}
}
