package telephony_test

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Nitesh0626/callingAgent-backend/pkg/audio"
	"github.com/Nitesh0626/callingAgent-backend/pkg/telephony"
)

func TestParseMessage_Start(t *testing.T) {
	raw := `{"event":"start","start":{"streamSid":"MZ123","customParameters":{"caller":"+15550100"}}}`
	msg, err := telephony.ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Event != telephony.EventStart {
		t.Errorf("event: got %q, want start", msg.Event)
	}
	if msg.Start.StreamSid != "MZ123" {
		t.Errorf("streamSid: got %q, want MZ123", msg.Start.StreamSid)
	}
	if got := msg.Start.Caller(); got != "+15550100" {
		t.Errorf("caller: got %q, want +15550100", got)
	}
}

func TestStartPayload_CallerDefaultsToUnknown(t *testing.T) {
	msg, err := telephony.ParseMessage([]byte(`{"event":"start","start":{"streamSid":"MZ1"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := msg.Start.Caller(); got != "unknown" {
		t.Errorf("caller: got %q, want unknown", got)
	}
}

func TestParseMessage_Media(t *testing.T) {
	mulaw := []byte{0xFF, 0x7F, 0x80}
	payload := base64.StdEncoding.EncodeToString(mulaw)
	msg, err := telephony.ParseMessage([]byte(`{"event":"media","media":{"payload":"` + payload + `"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame, err := msg.AudioFrame()
	if err != nil {
		t.Fatalf("audio frame: %v", err)
	}
	if len(frame) != len(mulaw) {
		t.Fatalf("frame length: got %d, want %d", len(frame), len(mulaw))
	}
	for i := range mulaw {
		if frame[i] != mulaw[i] {
			t.Errorf("byte %d: got 0x%02X, want 0x%02X", i, frame[i], mulaw[i])
		}
	}
}

func TestParseMessage_Malformed(t *testing.T) {
	cases := []string{
		`{not json`,
		`{}`,
		`{"event":"media"}`,
	}
	for _, raw := range cases {
		_, err := telephony.ParseMessage([]byte(raw))
		if !errors.Is(err, telephony.ErrMalformedFrame) {
			t.Errorf("%s: expected ErrMalformedFrame, got %v", raw, err)
		}
	}
}

func TestAudioFrame_BadBase64(t *testing.T) {
	msg, err := telephony.ParseMessage([]byte(`{"event":"media","media":{"payload":"!!!not-base64!!!"}}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if _, err := msg.AudioFrame(); !errors.Is(err, telephony.ErrMalformedFrame) {
		t.Errorf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestMarshalMedia(t *testing.T) {
	frame := audio.CompressedFrame{0x01, 0x02, 0x03}
	data, err := telephony.MarshalMedia("MZ42", frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out struct {
		Event     string `json:"event"`
		StreamSid string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Event != "media" || out.StreamSid != "MZ42" {
		t.Errorf("envelope: got %q/%q", out.Event, out.StreamSid)
	}
	decoded, err := base64.StdEncoding.DecodeString(out.Media.Payload)
	if err != nil {
		t.Fatalf("payload base64: %v", err)
	}
	if len(decoded) != 3 || decoded[0] != 0x01 {
		t.Errorf("payload round-trip mismatch: %v", decoded)
	}
}

func TestMarshalClear(t *testing.T) {
	data, err := telephony.MarshalClear("MZ42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out struct {
		Event     string `json:"event"`
		StreamSid string `json:"streamSid"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Event != "clear" || out.StreamSid != "MZ42" {
		t.Errorf("got %q/%q, want clear/MZ42", out.Event, out.StreamSid)
	}
}
