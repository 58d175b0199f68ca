// Package server exposes the HTTP surface of the calling agent: the
// call-setup webhook that answers with a stream connect directive, the
// /media-stream websocket endpoint that carries the call audio, and a small
// REST surface over the order store.
package server

import (
	"log/slog"
	"net/http"

	"github.com/Nitesh0626/callingAgent-backend/internal/app"
	"github.com/Nitesh0626/callingAgent-backend/internal/config"
	"github.com/Nitesh0626/callingAgent-backend/internal/observe"
	"github.com/Nitesh0626/callingAgent-backend/internal/order"
	"github.com/Nitesh0626/callingAgent-backend/internal/tools"
	"github.com/Nitesh0626/callingAgent-backend/pkg/audio"
	"github.com/Nitesh0626/callingAgent-backend/pkg/realtime"
)

// Server holds the HTTP handlers and the dependencies they share.
type Server struct {
	cfg      *config.Config
	provider realtime.Provider
	store    order.Store
	bridge   *tools.Bridge
	registry *app.Registry
	metrics  *observe.Metrics
	log      *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New wires a Server from its dependencies.
func New(cfg *config.Config, provider realtime.Provider, store order.Store, registry *app.Registry, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		provider: provider,
		store:    store,
		bridge:   tools.New(store),
		registry: registry,
		metrics:  observe.DefaultMetrics(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds all application routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /voice", s.handleVoiceWebhook)
	mux.HandleFunc("GET /media-stream", s.handleMediaStream)
	mux.HandleFunc("GET /orders", s.handleListOrders)
	mux.HandleFunc("PATCH /orders/{id}/status", s.handleUpdateOrderStatus)
}

// sessionConfig builds the model session configuration from the loaded
// config.
func (s *Server) sessionConfig() realtime.SessionConfig {
	return realtime.SessionConfig{
		Voice:        s.cfg.Model.Voice,
		Instructions: s.cfg.Model.Instructions,
		Greeting:     s.cfg.Model.Greeting,
		Tools:        tools.Definitions(),
	}
}

// downsampler builds the outbound downsampler from the tunable audio config.
func (s *Server) downsampler() *audio.Downsampler {
	d := audio.NewDownsampler()
	if w := s.cfg.Audio.DownsampleWeights; len(w) == 3 {
		d.Weights = [3]float64{w[0], w[1], w[2]}
	}
	if g := s.cfg.Audio.DownsampleGain; g > 0 {
		d.Gain = g
	}
	return d
}
