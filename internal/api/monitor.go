// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pushkar-gr/Aegis/internal/reaper"
)

// SessionList is one monitor frame.
type SessionList struct {
	Sessions []reaper.Session `json:"sessions"`
}

const monitorWriteTimeout = 10 * time.Second

// handleMonitorSessions upgrades to a websocket and streams the session
// list: one frame immediately, then one after every reaper sweep. The
// stream ends when the client goes away or the server shuts down.
func (s *Server) handleMonitorSessions(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("Monitor upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates := s.reaper.Subscribe()
	defer s.reaper.Unsubscribe(updates)

	// Drain the client so closes and pings are noticed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Info("Monitor stream opened", "peer", r.RemoteAddr)

	if !s.writeSessionList(conn, s.reaper.Snapshot()) {
		return
	}
	for {
		select {
		case sessions, ok := <-updates:
			if !ok {
				return
			}
			if !s.writeSessionList(conn, sessions) {
				return
			}
		case <-clientGone:
			s.logger.Info("Monitor stream closed", "peer", r.RemoteAddr)
			return
		}
	}
}

func (s *Server) writeSessionList(conn *websocket.Conn, sessions []reaper.Session) bool {
	conn.SetWriteDeadline(time.Now().Add(monitorWriteTimeout))
	if err := conn.WriteJSON(SessionList{Sessions: sessions}); err != nil {
		s.logger.Warn("Monitor write failed", "error", err)
		return false
	}
	return true
}
