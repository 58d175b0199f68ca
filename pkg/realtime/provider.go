// Package realtime defines the Provider interface for realtime
// speech-to-speech model backends.
//
// A realtime provider wraps a voice model service that accepts raw audio
// input and returns synthesised audio output in a single stateful session.
// The central abstraction is SessionHandle: a bidirectional connection that
// multiplexes audio, barge-in signals, and tool calls. Sessions are
// long-lived (the length of a phone call) and every event the server emits
// is delivered as a discrete value on a single ordered channel, so the
// consumer can drive an explicit state machine instead of nesting callbacks.
//
// All implementations must be safe for concurrent use.
package realtime

import "context"

// ToolDefinition describes a tool offered to the model at session start.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in model prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any
}

// ToolCall is a structured call issued by the model mid-conversation. ID
// correlates the request with its result; it is unique per outstanding call
// within a session.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded argument mapping
}

// EventType enumerates the discrete events a session emits.
type EventType int

const (
	// EventAudio carries one synthesised audio chunk (PCM16, model output rate).
	EventAudio EventType = iota

	// EventInterrupted signals that the user spoke over the model (barge-in).
	// Any outbound audio the consumer has buffered is stale and must be
	// flushed.
	EventInterrupted

	// EventToolCall carries a tool invocation request from the model.
	EventToolCall

	// EventError carries a non-fatal error reported by the provider. Fatal
	// errors close the event channel instead; check [SessionHandle.Err].
	EventError
)

// Event is one discrete occurrence in a session's lifetime. Exactly one
// payload field is set, matching Type.
type Event struct {
	Type  EventType
	Audio []byte
	Tool  ToolCall
	Err   error
}

// SessionConfig is the initial configuration for a new model session.
type SessionConfig struct {
	// Voice selects the model's synthesised voice.
	Voice string

	// Instructions is the system-level prompt defining the agent's persona
	// and conversational constraints.
	Instructions string

	// Greeting, when non-empty, asks the model to open the call with a
	// spoken line before the caller says anything.
	Greeting string

	// Tools is the set of tool definitions offered to the model.
	Tools []ToolDefinition
}

// SessionHandle represents an open model session.
//
// The session is the hot path of the call: SendAudio must return quickly,
// and consumers must drain Events promptly so the provider's receive loop is
// never stalled. All methods are safe for concurrent use. Callers must call
// Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a raw PCM16 chunk at the model input rate.
	// Returns an error if the session is closed.
	SendAudio(chunk []byte) error

	// Events returns the ordered event stream. The channel is closed when
	// the session ends; afterwards call [SessionHandle.Err] to check whether
	// it ended cleanly.
	Events() <-chan Event

	// SendToolResult returns a tool result to the model, correlated by the
	// call identifier from the originating [ToolCall].
	SendToolResult(callID, output string) error

	// Interrupt asks the model to stop generating the current response.
	Interrupt() error

	// Err returns the error that terminated the session, or nil.
	Err() error

	// Close terminates the session and closes the event channel. Idempotent.
	Close() error
}

// Provider is the abstraction over any realtime model backend.
type Provider interface {
	// Connect establishes a new session. The handle is ready to accept
	// audio as soon as Connect returns.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
