package server

import (
	"log/slog"
	"net/http"

	"github.com/twilio/twilio-go/twiml"
)

// handleVoiceWebhook answers the telephony provider's call-setup webhook
// with a connect directive pointing at the media-stream endpoint. The caller
// number travels as a custom stream parameter so the relay can greet by
// number without a second lookup.
func (s *Server) handleVoiceWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	caller := r.PostFormValue("From")
	if caller == "" {
		caller = "unknown"
	}

	host := s.cfg.Server.PublicHost
	if host == "" {
		host = r.Host
	}

	stream := &twiml.VoiceStream{
		Url: "wss://" + host + "/media-stream",
		InnerElements: []twiml.Element{
			&twiml.VoiceParameter{Name: "caller", Value: caller},
		},
	}
	connect := &twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}

	body, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		s.log.Error("render connect directive", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.log.Info("incoming call", slog.String("caller", caller))
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(body))
}
