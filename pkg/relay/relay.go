package relay

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vaibhav210603/QRcade/pkg/config"
	"github.com/vaibhav210603/QRcade/pkg/logger"
	"github.com/vaibhav210603/QRcade/pkg/monitoring"
	"github.com/vaibhav210603/QRcade/pkg/network/httpx"
	"github.com/vaibhav210603/QRcade/pkg/service"
	"github.com/vaibhav210603/QRcade/pkg/session"
)

// Relay is the whole broker process: the HTTP/websocket server, the
// expiry sweeper, and the optional monitoring side server.
type Relay struct {
	conf     config.RelayConfig
	log      *logger.Logger
	services service.Group
}

func New(conf config.RelayConfig, log *logger.Logger) (*Relay, error) {
	store := session.NewStore(conf.Relay.Session, log)
	hub := NewHub(conf.Relay, store, prometheus.DefaultRegisterer, log)
	rest := NewRest(conf.Relay, store, hub.metrics, log)

	h, err := httpx.NewServer(
		conf.Relay.Server.GetAddr(),
		func(s *httpx.Server) httpx.Handler {
			mux := s.Mux()
			mux.HandleFunc("/", rest.guard(rest.banner))
			mux.HandleFunc("/createSession", rest.guard(rest.createSession))
			mux.HandleFunc("/health", rest.guard(rest.health))
			mux.HandleFunc("/poll/", rest.guard(rest.poll))
			mux.HandleFunc("/session/", rest.guard(rest.sessionInfo))
			mux.HandleFunc("/admin/sessions", rest.guard(rest.adminSessions))
			mux.HandleFunc("/invalidateSession", rest.guard(rest.invalidateSession))
			mux.HandleFunc("/ws", hub.handleWS)
			return cors(mux)
		},
		httpx.WithServerConfig(conf.Relay.Server),
		httpx.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	r := &Relay{conf: conf, log: log}
	r.services.Add(h, newSweeper(store, hub, conf.Relay.Session.SweepInterval, log))
	r.services.AddIf(conf.Relay.Monitoring.IsEnabled(),
		monitoring.New(conf.Relay.Monitoring, conf.Relay.Tag, log))
	return r, nil
}

func (r *Relay) Start() { r.services.Start() }

func (r *Relay) Shutdown(ctx context.Context) error { return r.services.Shutdown(ctx) }
