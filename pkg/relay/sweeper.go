package relay

import (
	"context"
	"time"

	"github.com/vaibhav210603/QRcade/pkg/logger"
	"github.com/vaibhav210603/QRcade/pkg/session"
)

// sweeper periodically purges expired sessions. It is the only path
// that reclaims memory for sessions nobody queries again.
type sweeper struct {
	store  *session.Store
	hub    *Hub
	period time.Duration
	done   chan struct{}
	log    *logger.Logger
}

func newSweeper(store *session.Store, hub *Hub, period time.Duration, log *logger.Logger) *sweeper {
	return &sweeper{store: store, hub: hub, period: period, done: make(chan struct{}), log: log}
}

func (s *sweeper) Run() {
	go func() {
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		stats := time.NewTicker(time.Minute)
		defer stats.Stop()
		for {
			select {
			case <-s.done:
				return
			case now := <-ticker.C:
				s.store.Sweep(now)
			case <-stats.C:
				if n := s.hub.Conns(); n > 0 {
					s.log.Debug().Msgf("connected sockets: %d, active sessions: %d", n, s.store.Len())
				}
			}
		}
	}()
}

func (s *sweeper) Shutdown(context.Context) error {
	close(s.done)
	return nil
}

func (s *sweeper) String() string { return "sweeper::" + s.period.String() }
