// Package mock provides test doubles for the realtime package interfaces.
//
// Use Provider to verify Connect calls and feed controlled sessions. Use
// Session to drive the event stream and inspect which methods the relay
// invoked.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.EventsCh <- realtime.Event{Type: realtime.EventAudio, Audio: chunk}
package mock

import (
	"context"
	"sync"

	"github.com/Nitesh0626/callingAgent-backend/pkg/realtime"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg realtime.SessionConfig
}

// Provider is a mock implementation of realtime.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect
	// returns a new default Session.
	Session realtime.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// ToolResult records a single invocation of Session.SendToolResult.
type ToolResult struct {
	CallID string
	Output string
}

// Session is a mock implementation of realtime.SessionHandle. Tests feed
// events through EventsCh and inspect the recorded calls.
type Session struct {
	// EventsCh is the channel returned by Events. Close it to simulate the
	// model session ending.
	EventsCh chan realtime.Event

	mu sync.Mutex

	// SentAudio records every chunk passed to SendAudio, in order.
	SentAudio [][]byte

	// SendAudioErr, if non-nil, is returned from SendAudio.
	SendAudioErr error

	// ToolResults records every call to SendToolResult, in order.
	ToolResults []ToolResult

	// InterruptCount is the number of Interrupt calls.
	InterruptCount int

	// ErrVal is returned from Err.
	ErrVal error

	closed    bool
	closeOnce sync.Once
}

var _ realtime.SessionHandle = (*Session)(nil)

// NewSession returns a Session with a buffered event channel.
func NewSession() *Session {
	return &Session{EventsCh: make(chan realtime.Event, 64)}
}

// SendAudio records the chunk. The slice is copied so tests can reuse buffers.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SentAudio = append(s.SentAudio, cp)
	return nil
}

// Events returns the test-controlled event channel.
func (s *Session) Events() <-chan realtime.Event { return s.EventsCh }

// SendToolResult records the correlated result.
func (s *Session) SendToolResult(callID, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ToolResults = append(s.ToolResults, ToolResult{CallID: callID, Output: output})
	return nil
}

// Interrupt increments InterruptCount.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InterruptCount++
	return nil
}

// Err returns ErrVal.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// Close marks the session closed and closes the event channel. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.EventsCh) })
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SentAudioCopy returns a snapshot of the recorded audio chunks.
func (s *Session) SentAudioCopy() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.SentAudio))
	copy(out, s.SentAudio)
	return out
}

// ToolResultsCopy returns a snapshot of the recorded tool results.
func (s *Session) ToolResultsCopy() []ToolResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolResult, len(s.ToolResults))
	copy(out, s.ToolResults)
	return out
}
