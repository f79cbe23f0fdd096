package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"
)

// Event names are part of the wire protocol shared with the browser client
// and must not change.
const (
	// Client to server.
	eventCreateRoom     = "create-room"
	eventJoinRoom       = "join-room"
	eventStartSharing   = "start-sharing"
	eventStopSharing    = "stop-sharing"
	eventUpdateUsername = "update-username"

	// Relayed peer-to-peer.
	eventOffer        = "offer"
	eventAnswer       = "answer"
	eventICECandidate = "ice-candidate"

	// Server to client.
	eventRoomCreated     = "room-created"
	eventRoomJoined      = "room-joined"
	eventRoomNotFound    = "room-not-found"
	eventRoomClosed      = "room-closed"
	eventActiveStreams   = "active-streams"
	eventUserJoined      = "user-joined"
	eventUserLeft        = "user-left"
	eventNewStream       = "new-stream"
	eventStreamEnded     = "stream-ended"
	eventUsernameUpdated = "username-updated"
	eventError           = "error"
)

// Envelope is the framing for every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// parseEnvelope decodes a single envelope strictly: unknown top-level fields
// and trailing data are rejected. Payloads inside Data are decoded leniently
// by the individual handlers, since browsers evolve their payloads freely.
func parseEnvelope(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("missing event")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Envelope{}, fmt.Errorf("unexpected trailing data")
	}
	return env, nil
}

// newEnvelope marshals payload into an envelope. Marshaling here can only
// fail on programmer error, so it panics; the router's recover path turns
// that into an error event for the offending sender.
func newEnvelope(event string, payload any) Envelope {
	if payload == nil {
		return Envelope{Event: event}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal %s payload: %v", event, err))
	}
	return Envelope{Event: event, Data: data}
}

type createRoomRequest struct {
	RoomName string `json:"roomName"`
	Username string `json:"username"`
}

type joinRoomRequest struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type startSharingRequest struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type updateUsernameRequest struct {
	RoomID      string `json:"roomId"`
	OldUsername string `json:"oldUsername"`
	NewUsername string `json:"newUsername"`
}

// offerPayload carries an SDP offer to a target peer. On relay the server
// rewrites StreamID from the target's id to the sender's id, so the
// receiving peer knows whom to answer.
type offerPayload struct {
	Offer    webrtc.SessionDescription `json:"offer"`
	StreamID string                    `json:"streamId"`
	Username string                    `json:"username,omitempty"`
}

type answerPayload struct {
	Answer   webrtc.SessionDescription `json:"answer"`
	StreamID string                    `json:"streamId"`
	Username string                    `json:"username,omitempty"`
}

type candidatePayload struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	StreamID  string                  `json:"streamId"`
}

type roomPayload struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

type userPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type streamPayload struct {
	StreamID string `json:"streamId"`
	Username string `json:"username"`
}

type usernameUpdatedPayload struct {
	UserID      string `json:"userId"`
	OldUsername string `json:"oldUsername"`
	NewUsername string `json:"newUsername"`
}

// decodeRoomID accepts both the bare-string form the original client emits
// for stop-sharing and the object form used by every other event.
func decodeRoomID(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var obj struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("invalid room id payload")
	}
	return obj.RoomID, nil
}
