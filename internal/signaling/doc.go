// Package signaling is the WebSocket surface of the relay: it accepts
// browser connections, translates their events into room registry
// operations and fans the results out to the right audience, and forwards
// SDP offers/answers and ICE candidates point-to-point between peers.
//
// The relay never touches media; everything here is short-lived JSON
// control traffic.
package signaling
