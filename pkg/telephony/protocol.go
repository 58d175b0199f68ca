// Package telephony implements the media-stream protocol spoken by the
// telephony provider: JSON frames over a persistent websocket, carrying
// base64 μ-law audio in both directions (Twilio Media Streams).
//
// Inbound events are start (stream metadata and custom parameters), media
// (one audio frame) and stop. Outbound events are media and clear; clear
// tells the client to discard any buffered audio it has not played yet.
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Nitesh0626/callingAgent-backend/pkg/audio"
)

// Inbound event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
)

// ErrMalformedFrame reports a protocol message that could not be parsed.
// Malformed frames are dropped and logged; they never close the session.
var ErrMalformedFrame = errors.New("telephony: malformed frame")

// Message is a decoded inbound protocol frame.
type Message struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
}

// StartPayload carries the stream identity and the side-channel parameters
// the call-setup webhook attached to the connect directive.
type StartPayload struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// MediaPayload carries one base64-encoded μ-law frame.
type MediaPayload struct {
	Payload string `json:"payload"`
}

// Caller returns the caller identifier passed as a custom parameter on the
// start event, or "unknown" when the webhook did not supply one.
func (s *StartPayload) Caller() string {
	if s != nil {
		if caller, ok := s.CustomParameters["caller"]; ok && caller != "" {
			return caller
		}
	}
	return "unknown"
}

// ParseMessage decodes an inbound protocol frame. It returns an error
// wrapping [ErrMalformedFrame] when the JSON is unparseable, the event is
// missing, or a media payload is not valid base64.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg.Event == "" {
		return Message{}, fmt.Errorf("%w: missing event field", ErrMalformedFrame)
	}
	if msg.Event == EventMedia && msg.Media == nil {
		return Message{}, fmt.Errorf("%w: media event without payload", ErrMalformedFrame)
	}
	return msg, nil
}

// AudioFrame decodes the media payload into a μ-law frame. Only valid for
// media events.
func (m Message) AudioFrame() (audio.CompressedFrame, error) {
	if m.Media == nil {
		return nil, fmt.Errorf("%w: no media payload", ErrMalformedFrame)
	}
	raw, err := base64.StdEncoding.DecodeString(m.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload base64: %v", ErrMalformedFrame, err)
	}
	return audio.CompressedFrame(raw), nil
}

// outboundMedia is the wire form of an outbound audio frame.
type outboundMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     MediaPayload `json:"media"`
}

// outboundClear tells the client to flush its audio buffer after a barge-in.
type outboundClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// MarshalMedia encodes a μ-law frame as an outbound media message.
func MarshalMedia(streamSid string, frame audio.CompressedFrame) ([]byte, error) {
	return json.Marshal(outboundMedia{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     MediaPayload{Payload: base64.StdEncoding.EncodeToString(frame)},
	})
}

// MarshalClear encodes an outbound clear message.
func MarshalClear(streamSid string) ([]byte, error) {
	return json.Marshal(outboundClear{Event: "clear", StreamSid: streamSid})
}
