package signaling

import (
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"event":"join-room","data":{"roomId":"ABC123","username":"Bob"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Event != "join-room" {
		t.Fatalf("event = %q", env.Event)
	}
	if string(env.Data) != `{"roomId":"ABC123","username":"Bob"}` {
		t.Fatalf("data = %s", env.Data)
	}
}

func TestParseEnvelope_NoData(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"event":"room-closed"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Event != "room-closed" || env.Data != nil {
		t.Fatalf("env = %+v", env)
	}
}

func TestParseEnvelope_Rejections(t *testing.T) {
	cases := map[string]string{
		"not json":       `garbage`,
		"array":          `[1,2,3]`,
		"missing event":  `{"data":{}}`,
		"empty event":    `{"event":"","data":{}}`,
		"unknown field":  `{"event":"offer","frame":3}`,
		"trailing data":  `{"event":"offer"}{"event":"answer"}`,
		"trailing bytes": `{"event":"offer"} x`,
	}
	for name, input := range cases {
		if _, err := parseEnvelope([]byte(input)); err == nil {
			t.Errorf("%s: accepted %q", name, input)
		}
	}
}

func TestDecodeRoomID(t *testing.T) {
	got, err := decodeRoomID([]byte(`"ABC123"`))
	if err != nil || got != "ABC123" {
		t.Fatalf("bare string: %q, %v", got, err)
	}

	got, err = decodeRoomID([]byte(`{"roomId":"XYZ789"}`))
	if err != nil || got != "XYZ789" {
		t.Fatalf("object form: %q, %v", got, err)
	}

	if _, err = decodeRoomID([]byte(`42`)); err == nil {
		t.Fatalf("accepted numeric payload")
	}
}

func TestNewEnvelope_NilPayloadOmitsData(t *testing.T) {
	env := newEnvelope(eventRoomClosed, nil)
	if env.Event != eventRoomClosed || env.Data != nil {
		t.Fatalf("env = %+v", env)
	}
}
