package relay

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/vaibhav210603/QRcade/pkg/api"
	"github.com/vaibhav210603/QRcade/pkg/logger"
	"github.com/vaibhav210603/QRcade/pkg/network"
	"github.com/vaibhav210603/QRcade/pkg/session"
)

type role uint8

const (
	unbound role = iota
	extensionBound
	controllerBound
)

func (r role) String() string {
	switch r {
	case extensionBound:
		return "extension"
	case controllerBound:
		return "controller"
	}
	return "unbound"
}

// socket is the outbound half of a transport connection.
type socket interface {
	Write(data []byte)
}

// conn tracks the bound identity of one live transport connection.
// A role is terminal once bound; only the transport close discards it.
type conn struct {
	id   network.Uid
	sock socket
	log  *logger.Logger

	mu   sync.Mutex
	role role
	sid  session.Id
	slot session.Slot
}

func newConn(id network.Uid, sock socket, log *logger.Logger) *conn {
	return &conn{
		id:   id,
		sock: sock,
		log:  log.Extend(log.With().Str("cid", id.Short())),
	}
}

func (c *conn) state() (role, session.Id, session.Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role, c.sid, c.slot
}

func (c *conn) bindExtension(sid session.Id) {
	c.mu.Lock()
	c.role, c.sid, c.slot = extensionBound, sid, ""
	c.mu.Unlock()
}

func (c *conn) bindController(sid session.Id, slot session.Slot) {
	c.mu.Lock()
	c.role, c.sid, c.slot = controllerBound, sid, slot
	c.mu.Unlock()
}

// send marshals and queues one packet for this connection.
func (c *conn) send(t api.PT, payload any) {
	data, err := json.Marshal(api.Out{T: t, Payload: payload})
	if err != nil {
		c.log.Error().Err(err).Msgf("marshal %v fail", t)
		return
	}
	c.log.Debug().Str(logger.DirectionField, "→").Msgf("%v", t)
	c.sock.Write(data)
}
