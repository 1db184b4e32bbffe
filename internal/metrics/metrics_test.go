// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pushkar-gr/Aegis/internal/engine"
)

func TestRecordVerdict(t *testing.T) {
	m := New()

	m.RecordVerdict(engine.VerdictPass, engine.ReasonARP)
	m.RecordVerdict(engine.VerdictDrop, engine.ReasonUnauthorized)
	m.RecordVerdict(engine.VerdictDrop, engine.ReasonUnauthorized)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `aegis_packets_total{reason="arp",verdict="pass"} 1`) {
		t.Errorf("missing arp pass counter in:\n%s", body)
	}
	if !strings.Contains(body, `aegis_packets_total{reason="unauthorized",verdict="drop"} 2`) {
		t.Errorf("missing unauthorized drop counter in:\n%s", body)
	}
}

func TestSessionGauges(t *testing.T) {
	m := New()
	m.SessionsActive.Set(3)
	m.SessionCapacity.Set(10240)
	m.SessionsReaped.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"aegis_sessions_active 3",
		"aegis_sessions_capacity 10240",
		"aegis_sessions_reaped_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in metrics output", want)
		}
	}
}
