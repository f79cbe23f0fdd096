package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesSnapshot(t *testing.T) {
	m := New()
	m.Inc(EventRoomsCreated)
	m.Add(EventSignalsRelayed, 2)
	m.Inc(`quote"back\slash`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	PrometheusHandler(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "# TYPE screenshare_relay_events_total counter") {
		t.Fatalf("missing TYPE header: %s", body)
	}
	if !strings.Contains(body, `screenshare_relay_events_total{event="signals_relayed"} 2`) {
		t.Fatalf("missing signals_relayed counter: %s", body)
	}
	if !strings.Contains(body, `screenshare_relay_events_total{event="rooms_created"} 1`) {
		t.Fatalf("missing rooms_created counter: %s", body)
	}
	// Ensure label escaping matches Prometheus text format rules.
	if !strings.Contains(body, `screenshare_relay_events_total{event="quote\"back\\slash"} 1`) {
		t.Fatalf("missing escaped counter: %s", body)
	}
}

func TestMetrics_SnapshotIsACopy(t *testing.T) {
	m := New()
	m.Inc(EventJoins)

	snap := m.Snapshot()
	snap[EventJoins] = 100

	if got := m.Get(EventJoins); got != 1 {
		t.Fatalf("Get(joins) = %d, want 1 (snapshot must not alias registry)", got)
	}
}
