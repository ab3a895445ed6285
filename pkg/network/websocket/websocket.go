package websocket

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vaibhav210603/QRcade/pkg/logger"
	"github.com/vaibhav210603/QRcade/pkg/network"
)

const (
	maxMessageSize = 10 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
)

// WS wraps a gorilla websocket connection with
// serialized read/write pumps and deadline handling.
type WS struct {
	id   network.Uid
	conn deadlinedConn
	send chan []byte

	// OnMessage is called for every received message.
	// Must be set before Listen.
	OnMessage func(message []byte)

	pingPong bool
	closed   chan struct{}
	once     sync.Once
	log      *logger.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
	// the relay pairs devices across networks, so origin checks
	// are left to the session id knowledge
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewServer upgrades an HTTP request to a websocket peer.
func NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*WS, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, true, log), nil
}

func NewClient(address url.URL, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, log), nil
}

func newSocket(conn *websocket.Conn, pingPong bool, log *logger.Logger) *WS {
	return &WS{
		id:       network.NewUid(),
		conn:     deadlinedConn{sock: conn, wt: writeWait},
		send:     make(chan []byte, 32),
		pingPong: pingPong,
		closed:   make(chan struct{}),
		log:      log,
	}
}

func (ws *WS) Id() network.Uid { return ws.id }

// Listen starts the writer pump and reads messages until
// the connection is closed by either side. Blocking.
func (ws *WS) Listen() {
	go ws.writer()
	ws.reader()
}

// Write queues a message for sending.
// Messages to an already closed connection are dropped silently.
func (ws *WS) Write(data []byte) {
	select {
	case <-ws.closed:
	case ws.send <- data:
	}
}

// Close signals the writer to send a close frame and tear down.
// Safe to call multiple times.
func (ws *WS) Close() { ws.once.Do(func() { close(ws.closed) }) }

// reader pumps messages from the websocket connection to the OnMessage callback.
// Serializes all websocket reads.
func (ws *WS) reader() {
	defer func() {
		ws.Close()
		_ = ws.conn.close()
		ws.log.Debug().Str(logger.DirectionField, "x").Msgf("%v close", ws.id.Short())
	}()
	ws.conn.setup(func(conn *websocket.Conn) {
		conn.SetReadLimit(maxMessageSize)
		if ws.pingPong {
			_ = conn.SetReadDeadline(time.Now().Add(pongTime))
			conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongTime)) })
		}
	})
	for {
		message, err := ws.conn.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Debug().Err(err).Msgf("%v read fail", ws.id.Short())
			}
			return
		}
		if ws.OnMessage != nil {
			ws.OnMessage(message)
		}
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Serializes all websocket writes.
func (ws *WS) writer() {
	var ping <-chan time.Time
	if ws.pingPong {
		ticker := time.NewTicker(pingTime)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer func() { _ = ws.conn.close() }()
	for {
		select {
		case message := <-ws.send:
			if err := ws.conn.write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ping:
			if err := ws.conn.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ws.closed:
			_ = ws.conn.write(websocket.CloseMessage, []byte{})
			return
		}
	}
}
