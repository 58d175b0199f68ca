package telephony

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/Nitesh0626/callingAgent-backend/pkg/audio"
)

// Conn wraps a websocket carrying the media-stream protocol. Reads must come
// from a single goroutine; writes may come from any.
type Conn struct {
	ws *websocket.Conn

	closeOnce sync.Once
}

// NewConn wraps an accepted websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Read returns the next inbound protocol message. A parse failure returns an
// error wrapping [ErrMalformedFrame]; the connection remains usable and the
// caller should drop the frame and read again. Any other error means the
// telephony side is gone.
func (c *Conn) Read(ctx context.Context) (Message, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("telephony: read: %w", err)
	}
	return ParseMessage(data)
}

// SendMedia delivers one μ-law frame to the telephony client.
func (c *Conn) SendMedia(ctx context.Context, streamSid string, frame audio.CompressedFrame) error {
	data, err := MarshalMedia(streamSid, frame)
	if err != nil {
		return fmt.Errorf("telephony: marshal media: %w", err)
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// SendClear tells the telephony client to discard buffered outbound audio.
// Sent on barge-in, before any further media.
func (c *Conn) SendClear(ctx context.Context, streamSid string) error {
	data, err := MarshalClear(streamSid)
	if err != nil {
		return fmt.Errorf("telephony: marshal clear: %w", err)
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// Close terminates the websocket. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}
