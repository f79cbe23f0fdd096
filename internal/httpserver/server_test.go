package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/screenmesh/screenshare-relay/internal/config"
	"github.com/screenmesh/screenshare-relay/internal/metrics"
	"github.com/screenmesh/screenshare-relay/internal/registry"
	"github.com/screenmesh/screenshare-relay/internal/signaling"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(
		config.Config{ListenAddr: "127.0.0.1:0"},
		logger,
		BuildInfo{Commit: "abc123", BuildTime: "2026-01-01T00:00:00Z"},
		registry.New(),
		metrics.New(),
		nil,
	)
	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Fatalf("missing X-Request-ID header")
	}
}

func TestReadyz_ReflectsLifecycle(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status before serving = %d, want 503", resp.StatusCode)
	}

	srv.ready.Store(true)
	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status after serving = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Ready bool `json:"ready"`
		Rooms int  `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Ready || body.Rooms != 0 {
		t.Fatalf("body = %+v, want ready with zero rooms", body)
	}
}

func TestVersion(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/version")
	if err != nil {
		t.Fatalf("GET /version: %v", err)
	}
	defer resp.Body.Close()

	var build BuildInfo
	if err := json.NewDecoder(resp.Body).Decode(&build); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if build.Commit != "abc123" {
		t.Fatalf("commit = %q, want abc123", build.Commit)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "screenshare_relay_events_total") {
		t.Fatalf("metrics body missing counter family: %s", body)
	}
}

// The full middleware chain must stay hijack-capable or /ws cannot
// upgrade; this drives a complete signaling round trip through the
// assembled server rather than a bare handler.
func TestWebSocketUpgradeThroughAssembledServer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New()
	met := metrics.New()
	sig := signaling.NewServer(signaling.Config{
		Logger:   logger,
		Registry: reg,
		Metrics:  met,
	})
	srv := New(
		config.Config{ListenAddr: "127.0.0.1:0"},
		logger,
		BuildInfo{},
		reg,
		met,
		sig,
	)
	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial /ws: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	err = conn.WriteJSON(map[string]any{
		"event": "create-room",
		"data":  map[string]string{"roomName": "Demo", "username": "Alice"},
	})
	if err != nil {
		t.Fatalf("send create-room: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var env signaling.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if env.Event != "room-created" {
		t.Fatalf("event = %q (data %s), want room-created", env.Event, env.Data)
	}
	var created struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(created.RoomID) != registry.RoomIDLength {
		t.Fatalf("room id = %q, want %d chars", created.RoomID, registry.RoomIDLength)
	}
	if reg.RoomCount() != 1 {
		t.Fatalf("rooms = %d, want 1", reg.RoomCount())
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Request-ID", "my-request")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "my-request" {
		t.Fatalf("X-Request-ID = %q, want my-request", got)
	}
}
