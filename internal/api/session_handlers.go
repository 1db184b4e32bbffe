// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"net/http"

	"github.com/pushkar-gr/Aegis/internal/ebpf"
	"github.com/pushkar-gr/Aegis/internal/flowtable"
	"github.com/pushkar-gr/Aegis/internal/netutil"
)

// SessionRequest authorizes or revokes one flow. Activate false revokes.
type SessionRequest struct {
	SrcIP    string `json:"src_ip"`
	DstIP    string `json:"dst_ip"`
	DstPort  uint16 `json:"dst_port"`
	Activate bool   `json:"activate"`
}

// IPChange moves every session destined for OldIP over to NewIP.
type IPChange struct {
	OldIP string `json:"old_ip"`
	NewIP string `json:"new_ip"`
}

// IPChangeRequest batches address moves.
type IPChangeRequest struct {
	Changes []IPChange `json:"changes"`
}

func (req *SessionRequest) flowKey() (flowtable.Key, error) {
	src, err := netutil.ParseIPv4(req.SrcIP)
	if err != nil {
		return flowtable.Key{}, err
	}
	dst, err := netutil.ParseIPv4(req.DstIP)
	if err != nil {
		return flowtable.Key{}, err
	}
	return flowtable.Key{SrcIP: src, DstIP: dst, DstPort: req.DstPort}, nil
}

// handleSubmitSession authorizes or revokes a flow, mirroring the
// change into the kernel map when the offload is attached.
func (s *Server) handleSubmitSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key, err := req.flowKey()
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DstPort == 0 {
		respondWithError(w, http.StatusBadRequest, "dst_port must be nonzero")
		return
	}

	if req.Activate {
		now := s.clk.NowNanos()
		s.table.Insert(key, now)
		if err := s.offload.AddSession(ebpf.KeyFromFlow(key), now); err != nil {
			s.logger.Warn("Kernel map insert failed", "flow", key.String(), "error", err)
			s.countOffloadError()
		}
		s.logger.Info("Session authorized", "flow", key.String())
		if s.metrics != nil {
			s.metrics.SessionInserts.Inc()
			s.metrics.SessionsActive.Set(float64(s.table.Len()))
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "session added",
		})
		return
	}

	removed := s.table.Remove(key)
	if err := s.offload.RemoveSession(ebpf.KeyFromFlow(key)); err != nil {
		s.logger.Warn("Kernel map remove failed", "flow", key.String(), "error", err)
		s.countOffloadError()
	}
	if !removed {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": "session not found",
		})
		return
	}
	s.logger.Info("Session revoked", "flow", key.String())
	if s.metrics != nil {
		s.metrics.SessionRemovals.Inc()
		s.metrics.SessionsActive.Set(float64(s.table.Len()))
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "session removed",
	})
}

// handleListSessions returns the current sessions with their remaining
// idle budget.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.reaper.Snapshot()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleIPChange re-keys sessions when a workload moves address. Every
// flow destined for old_ip is preserved under new_ip with its telemetry
// intact.
func (s *Server) handleIPChange(w http.ResponseWriter, r *http.Request) {
	var req IPChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Changes) == 0 {
		respondWithError(w, http.StatusBadRequest, "no changes given")
		return
	}

	total := 0
	for _, change := range req.Changes {
		oldIP, err := netutil.ParseIPv4(change.OldIP)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		newIP, err := netutil.ParseIPv4(change.NewIP)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		// Capture the affected flows before the rewrite so the kernel
		// map can be moved in step.
		var moved []flowtable.Key
		for _, e := range s.table.Entries() {
			if e.Key.DstIP == oldIP {
				moved = append(moved, e.Key)
			}
		}
		total += s.table.RewriteDst(oldIP, newIP)

		now := s.clk.NowNanos()
		for _, key := range moved {
			if err := s.offload.RemoveSession(ebpf.KeyFromFlow(key)); err != nil {
				s.logger.Warn("Kernel map remove failed", "flow", key.String(), "error", err)
				s.countOffloadError()
			}
			rekeyed := key
			rekeyed.DstIP = newIP
			if err := s.offload.AddSession(ebpf.KeyFromFlow(rekeyed), now); err != nil {
				s.logger.Warn("Kernel map insert failed", "flow", rekeyed.String(), "error", err)
				s.countOffloadError()
			}
		}
		s.logger.Info("Sessions re-keyed",
			"old_ip", change.OldIP,
			"new_ip", change.NewIP,
			"count", len(moved))
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"updated": total,
	})
}

func (s *Server) countOffloadError() {
	if s.metrics != nil {
		s.metrics.OffloadErrors.Inc()
	}
}
