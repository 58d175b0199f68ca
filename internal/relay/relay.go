// Package relay implements the duplex session relay: the orchestrator that
// owns one telephony connection and one realtime model session, pumps audio
// through the codec and resamplers in both directions, forwards tool calls,
// and implements interruption and termination semantics.
//
// Each call is served by one [Relay]. Two flows run concurrently: the inbound
// pump (telephony frame → decode → upsample → model) and the outbound pump
// (model chunk → downsample → encode → telephony). Each flow is strictly
// ordered internally; neither may stall the other. A slow tool dispatch runs
// off the audio path entirely.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Nitesh0626/callingAgent-backend/internal/observe"
	"github.com/Nitesh0626/callingAgent-backend/internal/tools"
	"github.com/Nitesh0626/callingAgent-backend/pkg/audio"
	"github.com/Nitesh0626/callingAgent-backend/pkg/realtime"
	"github.com/Nitesh0626/callingAgent-backend/pkg/telephony"
)

// State is the relay lifecycle state.
type State int

const (
	// StateConnecting: telephony side established, model session requested
	// but not yet open. Inbound audio arriving now is dropped — real-time
	// audio has no retroactive value.
	StateConnecting State = iota

	// StateStreaming: both sides active, audio flowing in both directions.
	StateStreaming

	// StateInterrupted: the caller spoke over the model. Queued outbound
	// audio has been flushed; returns to StateStreaming on the next
	// outbound chunk.
	StateInterrupted

	// StateClosed is terminal.
	StateClosed
)

// String implements [fmt.Stringer] for log output.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateInterrupted:
		return "interrupted"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TelephonyConn is the telephony leg as the relay sees it. *telephony.Conn
// satisfies it; tests substitute a fake.
type TelephonyConn interface {
	Read(ctx context.Context) (telephony.Message, error)
	SendMedia(ctx context.Context, streamSid string, frame audio.CompressedFrame) error
	SendClear(ctx context.Context, streamSid string) error
	Close() error
}

// Sentinel results for the two clean shutdown paths. Either one cancels the
// sibling goroutines through the errgroup context.
var (
	errTelephonyEnded = errors.New("relay: telephony side ended")
	errModelEnded     = errors.New("relay: model session ended")
)

// outKind discriminates queued outbound items.
type outKind int

const (
	outAudio outKind = iota
	outClear
)

// outMsg is one item on the outbound queue: either a raw model audio chunk
// awaiting transcoding, or a flush directive that must precede any further
// audio.
type outMsg struct {
	kind outKind
	pcm  []byte
}

// defaultQueueDepth bounds the outbound queue. Beyond it the oldest chunk is
// dropped rather than accumulating latency the caller can hear.
const defaultQueueDepth = 32

// Option configures a Relay.
type Option func(*Relay)

// WithQueueDepth overrides the outbound queue bound.
func WithQueueDepth(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.queueDepth = n
		}
	}
}

// WithDownsampler overrides the outbound downsampler (filter weights, gain).
func WithDownsampler(d *audio.Downsampler) Option {
	return func(r *Relay) { r.down = d }
}

// WithLogger sets the relay's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(r *Relay) { r.log = log }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// Relay drives one call from accept to hangup.
type Relay struct {
	conn     TelephonyConn
	provider realtime.Provider
	bridge   *tools.Bridge
	sessCfg  realtime.SessionConfig

	down       *audio.Downsampler
	queueDepth int
	log        *slog.Logger
	metrics    *observe.Metrics

	outq    chan outMsg
	started chan struct{} // closed once the start event arrives

	mu        sync.Mutex
	state     State
	streamSid string
	caller    string
	session   realtime.SessionHandle
}

// New creates a relay for one accepted telephony connection. cfg is the model
// session configuration; the caller identifier from the stream's start event
// is appended to its instructions when known.
func New(conn TelephonyConn, provider realtime.Provider, bridge *tools.Bridge, cfg realtime.SessionConfig, opts ...Option) *Relay {
	r := &Relay{
		conn:       conn,
		provider:   provider,
		bridge:     bridge,
		sessCfg:    cfg,
		down:       audio.NewDownsampler(),
		queueDepth: defaultQueueDepth,
		log:        slog.Default(),
		metrics:    observe.DefaultMetrics(),
		started:    make(chan struct{}),
		state:      StateConnecting,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.outq = make(chan outMsg, r.queueDepth)
	return r
}

// State returns the current lifecycle state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// StreamSid returns the telephony stream identifier, empty until the start
// event arrives.
func (r *Relay) StreamSid() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamSid
}

// Caller returns the caller identifier, "unknown" when the webhook did not
// supply one and empty until the start event arrives.
func (r *Relay) Caller() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.caller
}

// Run serves the call until either side ends it. Closing one side always
// closes the other; Run never leaves a half-open session. Returns nil on a
// clean hangup from either side.
func (r *Relay) Run(ctx context.Context) error {
	start := time.Now()
	r.metrics.SessionStarted(ctx)
	defer func() {
		r.close()
		r.metrics.SessionEnded(context.WithoutCancel(ctx), time.Since(start))
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.inboundPump(ctx) })
	g.Go(func() error { return r.serveModel(ctx) })
	g.Go(func() error { return r.outboundPump(ctx) })

	err := g.Wait()
	if errors.Is(err, errTelephonyEnded) || errors.Is(err, errModelEnded) ||
		errors.Is(err, context.Canceled) {
		r.log.Info("session ended",
			slog.String("stream_sid", r.StreamSid()),
			slog.Duration("duration", time.Since(start)))
		return nil
	}
	r.log.Error("session failed",
		slog.String("stream_sid", r.StreamSid()),
		slog.String("error", err.Error()))
	return err
}

// inboundPump reads telephony frames and forwards them to the model in
// arrival order. Malformed frames are dropped and logged, never fatal.
func (r *Relay) inboundPump(ctx context.Context) error {
	for {
		msg, err := r.conn.Read(ctx)
		if errors.Is(err, telephony.ErrMalformedFrame) {
			r.metrics.MalformedFrames.Add(ctx, 1)
			r.log.Warn("dropping malformed frame", slog.String("error", err.Error()))
			continue
		}
		if err != nil {
			if isHangup(err) || ctx.Err() != nil {
				return errTelephonyEnded
			}
			return fmt.Errorf("relay: telephony read: %w", err)
		}

		switch msg.Event {
		case telephony.EventStart:
			r.onStart(msg.Start)

		case telephony.EventMedia:
			frame, err := msg.AudioFrame()
			if err != nil {
				r.metrics.MalformedFrames.Add(ctx, 1)
				r.log.Warn("dropping malformed media payload", slog.String("error", err.Error()))
				continue
			}
			sess := r.sessionHandle()
			if sess == nil {
				r.metrics.RecordDrop(ctx, "connecting")
				continue
			}
			pcm := audio.Upsample8to16(audio.Decode(frame))
			if err := sess.SendAudio(pcm.PCMBytes()); err != nil {
				return errModelEnded
			}
			r.metrics.FramesInbound.Add(ctx, 1)

		case telephony.EventStop:
			return errTelephonyEnded
		}
	}
}

// onStart records the stream identity from the start event and releases the
// model connector.
func (r *Relay) onStart(start *telephony.StartPayload) {
	r.mu.Lock()
	if r.streamSid != "" {
		r.mu.Unlock()
		return
	}
	r.streamSid = start.StreamSid
	r.caller = start.Caller()
	r.mu.Unlock()

	r.log.Info("stream started",
		slog.String("stream_sid", start.StreamSid),
		slog.String("caller", start.Caller()))
	close(r.started)
}

// serveModel opens the model session once the stream identity is known, then
// consumes its event stream until it closes.
func (r *Relay) serveModel(ctx context.Context) error {
	select {
	case <-r.started:
	case <-ctx.Done():
		return ctx.Err()
	}

	cfg := r.sessCfg
	if caller := r.Caller(); caller != "" && caller != "unknown" {
		cfg.Instructions += "\nThe caller's phone number is " + caller + "."
	}

	sess, err := r.provider.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("relay: model connect: %w", err)
	}
	defer sess.Close()
	r.setSession(sess)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sess.Events():
			if !ok {
				if err := sess.Err(); err != nil {
					return fmt.Errorf("relay: model session: %w", err)
				}
				return errModelEnded
			}
			switch ev.Type {
			case realtime.EventAudio:
				r.enqueueAudio(ctx, ev.Audio)
			case realtime.EventInterrupted:
				r.onInterrupt(ctx)
			case realtime.EventToolCall:
				go r.dispatchTool(ctx, sess, ev.Tool)
			case realtime.EventError:
				r.log.Warn("model event error", slog.String("error", ev.Err.Error()))
			}
		}
	}
}

// enqueueAudio queues one model chunk for the outbound pump, dropping the
// oldest queued chunk when the bound is hit. Re-enters StateStreaming after
// an interruption.
func (r *Relay) enqueueAudio(ctx context.Context, pcm []byte) {
	r.mu.Lock()
	if r.state == StateInterrupted {
		r.state = StateStreaming
	}
	r.mu.Unlock()

	m := outMsg{kind: outAudio, pcm: pcm}
	select {
	case r.outq <- m:
	default:
		select {
		case <-r.outq:
			r.metrics.RecordDrop(ctx, "backpressure")
		default:
		}
		select {
		case r.outq <- m:
		default:
			r.metrics.RecordDrop(ctx, "backpressure")
		}
	}
}

// onInterrupt handles barge-in: flush everything queued, then guarantee the
// very next telephony message is the clear directive.
func (r *Relay) onInterrupt(ctx context.Context) {
	r.mu.Lock()
	if r.state == StateStreaming {
		r.state = StateInterrupted
	}
	r.mu.Unlock()

	r.metrics.Interruptions.Add(ctx, 1)

drain:
	for {
		select {
		case m := <-r.outq:
			if m.kind == outAudio {
				r.metrics.RecordDrop(ctx, "interrupted")
			}
		default:
			break drain
		}
	}

	select {
	case r.outq <- outMsg{kind: outClear}:
	default:
	}
}

// outboundPump transcodes queued model chunks and delivers them to telephony
// in order.
func (r *Relay) outboundPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-r.outq:
			sid := r.StreamSid()
			switch m.kind {
			case outClear:
				if err := r.conn.SendClear(ctx, sid); err != nil {
					return r.sendErr(ctx, err)
				}
			case outAudio:
				frame, err := audio.FrameFromPCM(m.pcm, audio.ModelOutputRate)
				if err != nil {
					r.log.Warn("dropping odd-length model chunk", slog.String("error", err.Error()))
					continue
				}
				encoded := audio.Encode(r.down.Process(frame))
				if err := r.conn.SendMedia(ctx, sid, encoded); err != nil {
					return r.sendErr(ctx, err)
				}
				r.metrics.ChunksOutbound.Add(ctx, 1)
			}
		}
	}
}

// sendErr maps a telephony write failure to the clean-hangup sentinel when
// the peer is simply gone.
func (r *Relay) sendErr(ctx context.Context, err error) error {
	if isHangup(err) || ctx.Err() != nil {
		return errTelephonyEnded
	}
	return fmt.Errorf("relay: telephony write: %w", err)
}

// dispatchTool runs one tool call off the audio path and reports the result
// back to the model, correlated by call ID. Results arriving after the
// session closed are discarded.
func (r *Relay) dispatchTool(ctx context.Context, sess realtime.SessionHandle, call realtime.ToolCall) {
	start := time.Now()
	res, err := r.bridge.Dispatch(ctx, call)
	status := "ok"
	if err != nil {
		status = "error"
		r.log.Warn("tool dispatch failed",
			slog.String("tool", call.Name),
			slog.String("call_id", call.ID),
			slog.String("error", err.Error()))
	}
	r.metrics.RecordToolCall(ctx, call.Name, status, time.Since(start))

	if r.State() == StateClosed {
		r.log.Debug("discarding tool result after close", slog.String("call_id", call.ID))
		return
	}
	if err := sess.SendToolResult(call.ID, res.JSON()); err != nil {
		r.log.Debug("discarding tool result, session gone",
			slog.String("call_id", call.ID),
			slog.String("error", err.Error()))
	}
}

// sessionHandle returns the model session, nil while still connecting.
func (r *Relay) sessionHandle() realtime.SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// setSession installs the connected model session and enters StateStreaming.
func (r *Relay) setSession(sess realtime.SessionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateConnecting {
		r.state = StateStreaming
	}
	r.session = sess
}

// close tears down both legs. Idempotent through the state check.
func (r *Relay) close() {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return
	}
	r.state = StateClosed
	sess := r.session
	r.mu.Unlock()

	_ = r.conn.Close()
	if sess != nil {
		_ = sess.Close()
	}
}

// isHangup reports whether err is an ordinary end-of-connection rather than a
// protocol failure.
func isHangup(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
