package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vaibhav210603/QRcade/pkg/api"
	"github.com/vaibhav210603/QRcade/pkg/com"
	"github.com/vaibhav210603/QRcade/pkg/config"
	"github.com/vaibhav210603/QRcade/pkg/logger"
	"github.com/vaibhav210603/QRcade/pkg/network"
	"github.com/vaibhav210603/QRcade/pkg/network/websocket"
	"github.com/vaibhav210603/QRcade/pkg/session"
)

// Hub is the routing layer: it owns the per-connection state, the
// per-session broadcast groups, and the join/input/disconnect protocol
// on top of the session store.
type Hub struct {
	conf    config.Relay
	store   *session.Store
	conns   *com.Map[network.Uid, *conn]
	metrics *metrics
	log     *logger.Logger

	mu     sync.Mutex
	groups map[session.Id]map[network.Uid]*conn
}

func NewHub(conf config.Relay, store *session.Store, reg prometheus.Registerer, log *logger.Logger) *Hub {
	return &Hub{
		conf:    conf,
		store:   store,
		conns:   com.NewMap[network.Uid, *conn](),
		metrics: newMetrics(store, reg),
		log:     log,
		groups:  make(map[session.Id]map[network.Uid]*conn, 10),
	}
}

// Conns returns the number of open transport connections.
func (h *Hub) Conns() int { return h.conns.Len() }

// handleWS serves one websocket peer until its transport closes.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			h.log.Error().Msgf("recovered from %v", err)
		}
	}()

	ws, err := websocket.NewServer(w, r, h.log)
	if err != nil {
		h.log.Error().Err(err).Msg("socket upgrade failed")
		return
	}
	c := newConn(ws.Id(), ws, h.log)
	c.log.Debug().Str(logger.DirectionField, "←").Msg("connect")

	h.conns.Put(c.id, c)
	h.metrics.connections.Inc()
	defer func() {
		h.disconnect(c)
		h.conns.RemoveByKey(c.id)
		h.metrics.connections.Dec()
	}()

	ws.OnMessage = func(message []byte) { h.onMessage(c, message) }
	ws.Listen()
}

func (h *Hub) onMessage(c *conn, message []byte) {
	defer func() {
		if err := recover(); err != nil {
			c.log.Error().Msgf("recovered from %v", err)
		}
	}()

	var in api.In
	if err := json.Unmarshal(message, &in); err != nil {
		c.log.Debug().Err(err).Msg("malformed packet")
		return
	}
	c.log.Debug().Str(logger.DirectionField, "←").Msgf("%v", in.T)

	switch in.T {
	case api.Join:
		h.handleJoin(c, api.Unwrap[api.JoinRequest](in.Payload))
	case api.Input:
		h.handleInput(c, api.Unwrap[api.InputRequest](in.Payload))
	case api.Ping:
		h.handlePing(c, in.Payload)
	default:
		c.log.Debug().Msgf("unknown packet %v", in.T)
	}
}

func (h *Hub) handleJoin(c *conn, rq *api.JoinRequest) {
	if rq == nil || rq.SessionId == "" || rq.Role == "" {
		c.send(api.JoinError, api.JoinErrorResponse{Error: "sessionId and role are required"})
		return
	}
	if rq.Role != api.RoleExtension && rq.Role != api.RoleController {
		c.send(api.JoinError, api.JoinErrorResponse{Error: "Invalid role. Must be extension or controller"})
		return
	}
	sid := session.Id(rq.SessionId)
	if h.store.Get(sid) == nil {
		c.send(api.JoinError, api.JoinErrorResponse{Error: "Session not found or expired"})
		return
	}

	// a bound connection cannot change its role, session, or slot;
	// only the extension re-join with the same identity is idempotent
	crole, csid, _ := c.state()
	if crole == controllerBound {
		c.send(api.JoinError, api.JoinErrorResponse{Error: "Player slot already taken"})
		return
	}
	if crole == extensionBound && (rq.Role != api.RoleExtension || csid != sid) {
		c.send(api.JoinError, api.JoinErrorResponse{Error: "Extension already connected to this session"})
		return
	}

	if rq.Role == api.RoleExtension {
		h.joinExtension(c, sid)
		return
	}
	h.joinController(c, sid, session.Slot(rq.Player))
}

func (h *Hub) joinExtension(c *conn, sid session.Id) {
	if err := h.store.BindExtension(sid, c.id); err != nil {
		c.send(api.JoinError, api.JoinErrorResponse{Error: joinErrorMessage(err)})
		return
	}
	c.bindExtension(sid)
	h.joinGroup(sid, c)
	c.log.Debug().Msgf("extension joined session %v", sid)

	ready := h.store.IsReady(sid)
	players := h.store.ConnectedPlayers(sid)
	c.send(api.JoinAck, api.JoinAckResponse{
		Role:             api.RoleExtension,
		SessionId:        string(sid),
		ConnectedPlayers: players,
		IsReady:          &ready,
	})
	h.notify(sid, c.id, api.ExtensionConnected, api.ExtensionConnectedNotice{SessionId: string(sid)})
	if ready {
		h.notify(sid, network.EmptyUid, api.SessionReady, api.SessionReadyNotice{
			SessionId:        string(sid),
			ConnectedPlayers: players,
		})
	}
}

func (h *Hub) joinController(c *conn, sid session.Id, slot session.Slot) {
	if !session.ValidSlot(slot) {
		c.send(api.JoinError, api.JoinErrorResponse{Error: "Controller must specify player (p1 or p2)"})
		return
	}
	if err := h.store.AssignSlot(sid, slot, c.id); err != nil {
		c.send(api.JoinError, api.JoinErrorResponse{Error: joinErrorMessage(err)})
		return
	}
	c.bindController(sid, slot)
	h.joinGroup(sid, c)
	c.log.Debug().Msgf("controller %v joined session %v", slot, sid)

	players := h.store.ConnectedPlayers(sid)
	c.send(api.JoinAck, api.JoinAckResponse{
		Role:             api.RoleController,
		SessionId:        string(sid),
		Assigned:         string(slot),
		ConnectedPlayers: players,
	})
	ready := h.store.IsReady(sid)
	h.notify(sid, c.id, api.ControllerJoined, api.ControllerJoinedNotice{
		SessionId:        string(sid),
		Player:           string(slot),
		ConnectedPlayers: players,
		IsReady:          ready,
	})
	if ready {
		h.notify(sid, network.EmptyUid, api.SessionReady, api.SessionReadyNotice{
			SessionId:        string(sid),
			ConnectedPlayers: players,
		})
	}
}

// handleInput forwards one input sample to the session group (push
// path) and mirrors it into the poll queue (pull path). Malformed or
// unauthorized input is dropped silently: the input channel is
// unauthenticated and must never leak state back to the sender.
func (h *Hub) handleInput(c *conn, rq *api.InputRequest) {
	crole, csid, slot := c.state()
	if crole != controllerBound {
		return
	}
	if rq == nil || rq.SessionId == "" || session.Id(rq.SessionId) != csid {
		return
	}
	if rq.Type == "" {
		return
	}
	if h.store.Get(csid) == nil {
		return
	}

	h.store.RecordInput(csid)
	h.metrics.inputs.Inc()

	event := api.InputEvent{
		SessionId: string(csid),
		From:      string(slot),
		Type:      rq.Type,
		Key:       rq.Key,
		Code:      rq.Code,
		X:         rq.X,
		Y:         rq.Y,
		Ts:        time.Now().UnixMilli(),
	}
	h.notify(csid, c.id, api.SessionInput, event)
	h.store.Enqueue(csid, event)
}

// handlePing echoes the payload back with the server time attached.
// Liveness only, no session semantics.
func (h *Hub) handlePing(c *conn, payload json.RawMessage) {
	echo := map[string]any{}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &echo)
	}
	echo["serverTime"] = time.Now().UnixMilli()
	c.send(api.Pong, echo)
}

// disconnect runs the transport-close cleanup for a connection.
func (h *Hub) disconnect(c *conn) {
	crole, sid, _ := c.state()
	c.log.Debug().Str(logger.DirectionField, "x").Msgf("disconnect (%v)", crole)

	switch crole {
	case extensionBound:
		h.store.UnbindExtension(sid)
		h.leaveGroup(sid, c)
		h.notify(sid, c.id, api.ExtensionDisconnected, api.ExtensionDisconnectedNotice{
			SessionId: string(sid),
			Reason:    "Extension disconnected",
		})
	case controllerBound:
		slot, released := h.store.ReleaseSlotByConn(sid, c.id)
		h.leaveGroup(sid, c)
		if released {
			h.notify(sid, c.id, api.ControllerLeft, api.ControllerLeftNotice{
				SessionId:        string(sid),
				Player:           string(slot),
				ConnectedPlayers: h.store.ConnectedPlayers(sid),
				IsReady:          h.store.IsReady(sid),
			})
		}
	}
}

func (h *Hub) joinGroup(sid session.Id, c *conn) {
	h.mu.Lock()
	g, ok := h.groups[sid]
	if !ok {
		g = make(map[network.Uid]*conn, 3)
		h.groups[sid] = g
	}
	g[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) leaveGroup(sid session.Id, c *conn) {
	h.mu.Lock()
	if g, ok := h.groups[sid]; ok {
		delete(g, c.id)
		if len(g) == 0 {
			delete(h.groups, sid)
		}
	}
	h.mu.Unlock()
}

// peers snapshots the session group, excluding one connection.
func (h *Hub) peers(sid session.Id, except network.Uid) []*conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	g := h.groups[sid]
	out := make([]*conn, 0, len(g))
	for id, c := range g {
		if id != except {
			out = append(out, c)
		}
	}
	return out
}

// notify marshals a packet once and delivers it to the session group.
// Delivery is best-effort: writes to closing peers are dropped.
func (h *Hub) notify(sid session.Id, except network.Uid, t api.PT, payload any) {
	data, err := json.Marshal(api.Out{T: t, Payload: payload})
	if err != nil {
		h.log.Error().Err(err).Msgf("marshal %v fail", t)
		return
	}
	for _, p := range h.peers(sid, except) {
		p.log.Debug().Str(logger.DirectionField, "→").Msgf("%v", t)
		p.sock.Write(data)
	}
}

func joinErrorMessage(err error) string {
	switch err {
	case session.ErrNotFound:
		return "Session not found or expired"
	case session.ErrSlotTaken:
		return "Player slot already taken"
	case session.ErrExtensionTaken:
		return "Extension already connected to this session"
	case session.ErrInvalidSlot:
		return "Controller must specify player (p1 or p2)"
	}
	return "Failed to join session"
}
