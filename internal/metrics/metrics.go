package metrics

import "sync"

// Event counter names used across the relay.
const (
	EventConnectionsOpened = "connections_opened"
	EventConnectionsClosed = "connections_closed"

	EventRoomsCreated = "rooms_created"
	EventRoomsClosed  = "rooms_closed"
	EventRoomsEmptied = "rooms_emptied"
	EventJoins        = "joins"
	EventJoinMisses   = "join_misses"

	EventStreamsStarted   = "streams_started"
	EventStreamsStopped   = "streams_stopped"
	EventUsernamesUpdated = "usernames_updated"

	EventSignalsRelayed = "signals_relayed"
	EventSignalMisses   = "signal_misses"

	EventInvalidMessages = "invalid_messages"
	EventHandlerErrors   = "handler_errors"
	EventSendDrops       = "send_drops"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The relay exposes these via the Prometheus text handler; keeping the
// registry in-process avoids a metrics-library dependency for what is a
// handful of counters.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
