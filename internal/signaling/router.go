package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/screenmesh/screenshare-relay/internal/metrics"
	"github.com/screenmesh/screenshare-relay/internal/registry"
)

// peer is the router's view of one connected client. Enqueue must never
// block; delivery is fire-and-forget.
type peer interface {
	ID() string
	Enqueue(Envelope) bool
}

// Router adapts inbound connection events to registry operations and fans
// the results out. It owns the peer table (connection id -> peer); the room
// state itself lives in the registry.
type Router struct {
	log *slog.Logger
	reg *registry.Registry
	met *metrics.Metrics

	mu    sync.RWMutex
	peers map[string]peer
}

func NewRouter(log *slog.Logger, reg *registry.Registry, met *metrics.Metrics) *Router {
	return &Router{
		log:   log,
		reg:   reg,
		met:   met,
		peers: make(map[string]peer),
	}
}

// Register adds a freshly connected peer. The peer is in no room until it
// sends create-room or join-room.
func (rt *Router) Register(p peer) {
	rt.mu.Lock()
	rt.peers[p.ID()] = p
	rt.mu.Unlock()

	rt.met.Inc(metrics.EventConnectionsOpened)
	rt.log.Debug("peer connected", "conn", p.ID())
}

// Disconnect removes the peer and cascades its departure through the
// registry, notifying whoever shared a room with it.
func (rt *Router) Disconnect(p peer) {
	rt.mu.Lock()
	if rt.peers[p.ID()] != p {
		// Already replaced or removed; nothing to cascade.
		rt.mu.Unlock()
		return
	}
	delete(rt.peers, p.ID())
	rt.mu.Unlock()

	out := rt.reg.Leave(p.ID())
	rt.notifyDeparture(p.ID(), out)

	rt.met.Inc(metrics.EventConnectionsClosed)
	rt.log.Debug("peer disconnected", "conn", p.ID(), "room", out.RoomID)
}

// Handle processes one raw inbound message from p. Handler faults never
// propagate: anything unexpected becomes an error event to the sender only.
func (rt *Router) Handle(p peer, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.met.Inc(metrics.EventHandlerErrors)
			rt.log.Error("handler panic", "conn", p.ID(), "recover", rec)
			rt.sendError(p, "internal error")
		}
	}()

	env, err := parseEnvelope(raw)
	if err != nil {
		rt.met.Inc(metrics.EventInvalidMessages)
		rt.sendError(p, "invalid message")
		return
	}

	switch env.Event {
	case eventCreateRoom:
		rt.handleCreateRoom(p, env.Data)
	case eventJoinRoom:
		rt.handleJoinRoom(p, env.Data)
	case eventStartSharing:
		rt.handleStartSharing(p, env.Data)
	case eventStopSharing:
		rt.handleStopSharing(p, env.Data)
	case eventUpdateUsername:
		rt.handleUpdateUsername(p, env.Data)
	case eventOffer:
		rt.handleOffer(p, env.Data)
	case eventAnswer:
		rt.handleAnswer(p, env.Data)
	case eventICECandidate:
		rt.handleICECandidate(p, env.Data)
	default:
		rt.met.Inc(metrics.EventInvalidMessages)
		rt.sendError(p, "unsupported event")
	}
}

func (rt *Router) handleCreateRoom(p peer, data json.RawMessage) {
	var req createRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		rt.sendError(p, "invalid create-room payload")
		return
	}

	res, err := rt.reg.CreateRoom(req.RoomName, p.ID(), req.Username)
	if err != nil {
		rt.sendError(p, createError(err))
		return
	}
	rt.notifyDeparture(p.ID(), res.Prior)

	rt.met.Inc(metrics.EventRoomsCreated)
	rt.log.Info("room created", "room", res.RoomID, "name", res.RoomName, "host", p.ID())

	rt.sendTo(p.ID(), newEnvelope(eventRoomCreated, roomPayload{
		RoomID:   res.RoomID,
		RoomName: res.RoomName,
	}))
}

func (rt *Router) handleJoinRoom(p peer, data json.RawMessage) {
	var req joinRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		rt.sendError(p, "invalid join-room payload")
		return
	}

	res, err := rt.reg.JoinRoom(req.RoomID, p.ID(), req.Username)
	switch {
	case errors.Is(err, registry.ErrMalformedRoomID), errors.Is(err, registry.ErrRoomNotFound):
		// Distinct from a generic error so the client can prompt re-entry.
		normalized, _ := registry.NormalizeRoomID(req.RoomID)
		rt.met.Inc(metrics.EventJoinMisses)
		rt.sendTo(p.ID(), newEnvelope(eventRoomNotFound, normalized))
		return
	case err != nil:
		rt.sendError(p, "failed to join room")
		return
	}
	rt.notifyDeparture(p.ID(), res.Prior)

	rt.met.Inc(metrics.EventJoins)
	rt.log.Info("user joined", "room", res.RoomID, "conn", p.ID(), "username", res.Username)

	rt.broadcast(res.Others, newEnvelope(eventUserJoined, userPayload{
		UserID:   p.ID(),
		Username: res.Username,
	}))
	rt.sendTo(p.ID(), newEnvelope(eventRoomJoined, roomPayload{
		RoomID:   res.RoomID,
		RoomName: res.RoomName,
	}))
	if len(res.Streams) > 0 {
		rt.sendTo(p.ID(), newEnvelope(eventActiveStreams, streamPayloads(res.Streams)))
	}
}

func (rt *Router) handleStartSharing(p peer, data json.RawMessage) {
	var req startSharingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		rt.sendError(p, "invalid start-sharing payload")
		return
	}

	res := rt.reg.StartStream(req.RoomID, p.ID(), req.Username)
	if !res.OK {
		// The room disappeared under us; tolerated, not an error.
		return
	}

	rt.met.Inc(metrics.EventStreamsStarted)
	rt.log.Info("stream started", "room", req.RoomID, "conn", p.ID(), "username", res.Username)

	rt.broadcast(res.Members, newEnvelope(eventNewStream, streamPayload{
		StreamID: p.ID(),
		Username: res.Username,
	}))
	if len(res.Existing) > 0 {
		rt.sendTo(p.ID(), newEnvelope(eventActiveStreams, streamPayloads(res.Existing)))
	}
}

func (rt *Router) handleStopSharing(p peer, data json.RawMessage) {
	roomID, err := decodeRoomID(data)
	if err != nil {
		rt.sendError(p, "invalid stop-sharing payload")
		return
	}

	res := rt.reg.StopStream(roomID, p.ID())
	if !res.OK {
		return
	}

	rt.met.Inc(metrics.EventStreamsStopped)
	rt.broadcast(res.Members, newEnvelope(eventStreamEnded, p.ID()))
}

func (rt *Router) handleUpdateUsername(p peer, data json.RawMessage) {
	var req updateUsernameRequest
	if err := json.Unmarshal(data, &req); err != nil {
		rt.sendError(p, "invalid update-username payload")
		return
	}

	res := rt.reg.UpdateDisplayName(req.RoomID, p.ID(), req.NewUsername)
	if !res.OK {
		return
	}

	rt.met.Inc(metrics.EventUsernamesUpdated)
	rt.broadcast(res.Members, newEnvelope(eventUsernameUpdated, usernameUpdatedPayload{
		UserID:      p.ID(),
		OldUsername: req.OldUsername,
		NewUsername: res.Username,
	}))
}

func (rt *Router) handleOffer(p peer, data json.RawMessage) {
	var msg offerPayload
	if err := json.Unmarshal(data, &msg); err != nil {
		rt.sendError(p, "invalid offer payload")
		return
	}

	rt.relay(p, msg.StreamID, newEnvelope(eventOffer, offerPayload{
		Offer:    msg.Offer,
		StreamID: p.ID(),
		Username: msg.Username,
	}))
}

func (rt *Router) handleAnswer(p peer, data json.RawMessage) {
	var msg answerPayload
	if err := json.Unmarshal(data, &msg); err != nil {
		rt.sendError(p, "invalid answer payload")
		return
	}

	username, ok := rt.reg.DisplayName(p.ID())
	if !ok {
		username = "Unknown"
	}
	rt.relay(p, msg.StreamID, newEnvelope(eventAnswer, answerPayload{
		Answer:   msg.Answer,
		StreamID: p.ID(),
		Username: username,
	}))
}

func (rt *Router) handleICECandidate(p peer, data json.RawMessage) {
	var msg candidatePayload
	if err := json.Unmarshal(data, &msg); err != nil {
		rt.sendError(p, "invalid ice-candidate payload")
		return
	}

	rt.relay(p, msg.StreamID, newEnvelope(eventICECandidate, candidatePayload{
		Candidate: msg.Candidate,
		StreamID:  p.ID(),
	}))
}

// relay forwards env to the peer identified by target. A missing target is
// dropped silently: signaling races with disconnects by design.
func (rt *Router) relay(from peer, target string, env Envelope) {
	rt.mu.RLock()
	to, ok := rt.peers[target]
	rt.mu.RUnlock()

	if !ok {
		rt.met.Inc(metrics.EventSignalMisses)
		rt.log.Debug("relay target gone", "event", env.Event, "from", from.ID(), "to", target)
		return
	}

	rt.met.Inc(metrics.EventSignalsRelayed)
	if !to.Enqueue(env) {
		rt.met.Inc(metrics.EventSendDrops)
	}
}

// notifyDeparture broadcasts the fallout of a membership removal: user-left
// to the remaining members, then room-closed or stream-ended as the outcome
// dictates. Clients depend on user-left arriving first.
func (rt *Router) notifyDeparture(conn string, out registry.LeaveOutcome) {
	if !out.Left {
		return
	}

	rt.broadcast(out.Recipients, newEnvelope(eventUserLeft, userPayload{
		UserID:   conn,
		Username: out.Username,
	}))

	switch {
	case out.RoomClosed:
		rt.met.Inc(metrics.EventRoomsClosed)
		rt.log.Info("room closed", "room", out.RoomID, "host", conn)
		rt.broadcast(out.Recipients, newEnvelope(eventRoomClosed, nil))
	case out.StreamEnded:
		rt.met.Inc(metrics.EventStreamsStopped)
		rt.broadcast(out.Recipients, newEnvelope(eventStreamEnded, conn))
	}
	if out.RoomEmptied {
		rt.met.Inc(metrics.EventRoomsEmptied)
		rt.log.Info("room emptied", "room", out.RoomID)
	}
}

func (rt *Router) sendTo(conn string, env Envelope) {
	rt.mu.RLock()
	p, ok := rt.peers[conn]
	rt.mu.RUnlock()
	if !ok {
		return
	}
	if !p.Enqueue(env) {
		rt.met.Inc(metrics.EventSendDrops)
	}
}

func (rt *Router) broadcast(conns []string, env Envelope) {
	for _, conn := range conns {
		rt.sendTo(conn, env)
	}
}

func (rt *Router) sendError(p peer, msg string) {
	p.Enqueue(newEnvelope(eventError, msg))
}

// createError maps registry validation failures onto client-facing text.
func createError(err error) string {
	switch {
	case errors.Is(err, registry.ErrEmptyRoomName):
		return "room name is required"
	case errors.Is(err, registry.ErrEmptyUsername):
		return "username is required"
	default:
		return "failed to create room"
	}
}

func streamPayloads(streams []registry.Stream) []streamPayload {
	out := make([]streamPayload, 0, len(streams))
	for _, s := range streams {
		out = append(out, streamPayload{StreamID: s.ID, Username: s.Username})
	}
	return out
}
