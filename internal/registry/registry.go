// Package registry owns the in-memory room state of the signaling relay:
// which rooms exist, who is in them, who hosts them and who is currently
// broadcasting a screen-share.
//
// All state is ephemeral. Every operation is atomic with respect to every
// other operation, and the recipient snapshots returned by mutating
// operations are captured under the same lock as the mutation, so callers
// can fan out notifications without racing a concurrent membership change.
package registry

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrEmptyRoomName   = errors.New("registry: room name is empty")
	ErrEmptyUsername   = errors.New("registry: username is empty")
	ErrMalformedRoomID = errors.New("registry: malformed room id")
	ErrRoomNotFound    = errors.New("registry: room not found")
)

// Stream identifies a member that is currently broadcasting.
type Stream struct {
	ID       string
	Username string
}

// room is the unit of state: a named group of connections. The zero value is
// not usable; rooms are only created through CreateRoom.
//
// Invariants (enforced by Registry, which owns all mutation):
//   - the room exists iff members is non-empty
//   - host is always a key of members
//   - every key of streams is a key of members
type room struct {
	id      string
	name    string
	host    string
	members map[string]string // connection id -> display name
	streams map[string]string // connection id -> display name, subset of members
}

// Registry is the shared room table. It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*room
	roomOf map[string]string // connection id -> room id
}

func New() *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		roomOf: make(map[string]string),
	}
}

// LeaveOutcome describes what removing a connection from its room did.
// The zero value means the connection was not in any room.
type LeaveOutcome struct {
	// Left is true if a membership was actually removed.
	Left bool

	RoomID   string
	Username string

	// RoomClosed is true when the departing connection hosted the room;
	// host departure tears the room down even if other members remain.
	RoomClosed bool

	// StreamEnded is true when the departing connection was broadcasting.
	StreamEnded bool

	// RoomEmptied is true when the room was deleted because its last
	// member left.
	RoomEmptied bool

	// Recipients are the members remaining at the moment of removal,
	// captured under the registry lock. Empty when the room emptied.
	Recipients []string
}

// CreateResult is returned by CreateRoom.
type CreateResult struct {
	RoomID   string
	RoomName string

	// Prior reports the removal from whatever room the creator was in
	// before, if any. Prior.Left is false otherwise.
	Prior LeaveOutcome
}

// JoinResult is returned by JoinRoom.
type JoinResult struct {
	RoomID   string
	RoomName string

	// Username is the resolved display name: the submitted one after
	// trimming, or a generated default when none was supplied.
	Username string

	// Streams are the active streams in the room at join time.
	Streams []Stream

	// Others are the member ids other than the joiner.
	Others []string

	// Prior reports the removal from the joiner's previous room, if any.
	Prior LeaveOutcome
}

// StartResult is returned by StartStream.
type StartResult struct {
	OK bool

	// Username is the display name recorded for the stream.
	Username string

	// Existing are the active streams other than the caller's own, for
	// seeding a new sharer with streams it should connect to.
	Existing []Stream

	// Members is everyone in the room, caller included.
	Members []string
}

// StopResult is returned by StopStream.
type StopResult struct {
	OK      bool
	Members []string
}

// UpdateResult is returned by UpdateDisplayName.
type UpdateResult struct {
	OK bool

	// Username is the stored display name after trimming. Broadcasts must
	// carry this form, not the raw submission.
	Username string

	Members []string
}

// CreateRoom registers a new room hosted by creator. Name and username must
// be non-empty after trimming. The generated identifier is unique among live
// rooms; generation retries on collision.
func (g *Registry) CreateRoom(name, creator, username string) (CreateResult, error) {
	name = strings.TrimSpace(name)
	username = strings.TrimSpace(username)
	if name == "" {
		return CreateResult{}, ErrEmptyRoomName
	}
	if username == "" {
		return CreateResult{}, ErrEmptyUsername
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	prior := g.leaveLocked(creator)

	var id string
	for {
		id = newRoomID()
		if _, taken := g.rooms[id]; !taken {
			break
		}
	}

	g.rooms[id] = &room{
		id:      id,
		name:    name,
		host:    creator,
		members: map[string]string{creator: username},
		streams: make(map[string]string),
	}
	g.roomOf[creator] = id

	return CreateResult{RoomID: id, RoomName: name, Prior: prior}, nil
}

// JoinRoom adds conn to the room identified by rawID (normalized first).
// If conn is currently in a different room that membership is removed first,
// with the same cascade as Leave. An empty username gets a generated default.
func (g *Registry) JoinRoom(rawID, conn, username string) (JoinResult, error) {
	id, err := NormalizeRoomID(rawID)
	if err != nil {
		return JoinResult{}, err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username = defaultUsername()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[id]
	if !ok {
		return JoinResult{}, ErrRoomNotFound
	}

	var prior LeaveOutcome
	if cur := g.roomOf[conn]; cur != id {
		prior = g.leaveLocked(conn)
		// The target room cannot have been the one torn down, but the
		// map entry may be stale if conn hosted a now-deleted room.
		r, ok = g.rooms[id]
		if !ok {
			return JoinResult{}, ErrRoomNotFound
		}
	}

	r.members[conn] = username
	g.roomOf[conn] = id

	return JoinResult{
		RoomID:   id,
		RoomName: r.name,
		Username: username,
		Streams:  r.streamList(""),
		Others:   r.memberList(conn),
		Prior:    prior,
	}, nil
}

// Leave removes conn from whatever room it is in. See LeaveOutcome for the
// cascade semantics. A connection with no current room is a no-op.
func (g *Registry) Leave(conn string) LeaveOutcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.leaveLocked(conn)
}

// leaveLocked is the single membership-removal path; every operation that
// detaches a connection from a room funnels through it so the emptiness and
// host invariants are enforced in one place.
func (g *Registry) leaveLocked(conn string) LeaveOutcome {
	id, ok := g.roomOf[conn]
	if !ok {
		return LeaveOutcome{}
	}
	delete(g.roomOf, conn)

	r, ok := g.rooms[id]
	if !ok {
		// Stale reverse entry; the room was already torn down.
		return LeaveOutcome{}
	}

	name, ok := r.members[conn]
	if !ok {
		return LeaveOutcome{}
	}
	out := LeaveOutcome{
		Left:     true,
		RoomID:   id,
		Username: name,
	}

	delete(r.members, conn)
	if _, streaming := r.streams[conn]; streaming {
		delete(r.streams, conn)
		out.StreamEnded = true
	}
	out.Recipients = r.memberList("")

	switch {
	case r.host == conn:
		out.RoomClosed = true
		g.deleteRoomLocked(r)
	case len(r.members) == 0:
		out.RoomEmptied = true
		g.deleteRoomLocked(r)
	}
	return out
}

// deleteRoomLocked removes a room and every reverse index entry pointing at
// it, so no connection is left attached to a dead room.
func (g *Registry) deleteRoomLocked(r *room) {
	for conn := range r.members {
		delete(g.roomOf, conn)
	}
	delete(g.rooms, r.id)
}

// StartStream records conn as broadcasting in the room. A missing room or a
// connection that is not a member is a silent no-op: stream events racing a
// concurrent teardown are expected, not exceptional. Starting twice
// overwrites the existing entry.
func (g *Registry) StartStream(roomID, conn, username string) StartResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return StartResult{}
	}
	member, ok := r.members[conn]
	if !ok {
		return StartResult{}
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username = member
	}
	r.streams[conn] = username

	return StartResult{
		OK:       true,
		Username: username,
		Existing: r.streamList(conn),
		Members:  r.memberList(""),
	}
}

// StopStream removes conn's stream entry. No-op if the room or the entry is
// absent.
func (g *Registry) StopStream(roomID, conn string) StopResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return StopResult{}
	}
	if _, ok := r.streams[conn]; !ok {
		return StopResult{}
	}
	delete(r.streams, conn)

	return StopResult{OK: true, Members: r.memberList("")}
}

// UpdateDisplayName renames a member, keeping the stream entry's name in
// sync when the member is broadcasting. No-op if the room or membership is
// absent.
func (g *Registry) UpdateDisplayName(roomID, conn, name string) UpdateResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return UpdateResult{}
	}
	if _, ok := r.members[conn]; !ok {
		return UpdateResult{}
	}

	name = strings.TrimSpace(name)
	r.members[conn] = name
	if _, streaming := r.streams[conn]; streaming {
		r.streams[conn] = name
	}

	return UpdateResult{OK: true, Username: name, Members: r.memberList("")}
}

// DisplayName returns conn's display name in its current room, if any.
func (g *Registry) DisplayName(conn string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.roomOf[conn]
	if !ok {
		return "", false
	}
	r, ok := g.rooms[id]
	if !ok {
		return "", false
	}
	name, ok := r.members[conn]
	return name, ok
}

// RoomOf returns the room conn currently belongs to, if any.
func (g *Registry) RoomOf(conn string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.roomOf[conn]
	return id, ok
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// ConnectionCount returns the number of connections currently in a room.
func (g *Registry) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.roomOf)
}

// memberList returns the room's member ids, sorted, excluding exclude when
// non-empty.
func (r *room) memberList(exclude string) []string {
	out := make([]string, 0, len(r.members))
	for conn := range r.members {
		if conn == exclude {
			continue
		}
		out = append(out, conn)
	}
	sort.Strings(out)
	return out
}

// streamList returns the room's active streams, sorted by id, excluding
// exclude when non-empty.
func (r *room) streamList(exclude string) []Stream {
	out := make([]Stream, 0, len(r.streams))
	for conn, name := range r.streams {
		if conn == exclude {
			continue
		}
		out = append(out, Stream{ID: conn, Username: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
