package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/Nitesh0626/callingAgent-backend/internal/relay"
	"github.com/Nitesh0626/callingAgent-backend/pkg/telephony"
)

// handleMediaStream upgrades the connection and serves one call through a
// relay until either side hangs up. The telephony provider is not a browser,
// so origin checking is disabled.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("media stream accept failed", slog.String("error", err.Error()))
		return
	}

	conn := telephony.NewConn(ws)
	rel := relay.New(conn, s.provider, s.bridge, s.sessionConfig(),
		relay.WithQueueDepth(s.cfg.Audio.OutboundQueueDepth),
		relay.WithDownsampler(s.downsampler()),
		relay.WithLogger(s.log),
		relay.WithMetrics(s.metrics),
	)

	// Detach from the request context: the call outlives nothing but itself
	// and the registry's shutdown.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	id := s.registry.Add(rel, cancel)
	defer func() {
		s.registry.Remove(id)
		cancel()
	}()

	if err := rel.Run(ctx); err != nil {
		s.log.Error("media stream session failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()))
	}
}
