package wsrpc

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/shared/types"
)

const (
	// writeWait is the maximum time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long the server waits for a pong reply after a ping.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait so the peer has time to reply.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds a single inbound RPC request frame.
	maxMessageSize = 1 << 20 // 1 MiB — scene/project payloads can be sizeable

	// sendBufferSize is the capacity of the outbound queue. If it fills, the
	// peer is considered too slow and is dropped (see Hub.Broadcast).
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origin validation is delegated to a reverse proxy in production,
		// matching the teacher's websocket upgrader.
		return true
	},
}

// Handler processes one decoded inbound RPC request and returns the response
// to send back to the same connection. Implementations run dispatch logic
// (ARServer's RPC table, the Manager's RPC table) and may also push events
// to c or to the owning Hub as a side effect.
type Handler interface {
	HandleRequest(c *Conn, req types.RequestEnvelope) types.ResponseEnvelope
}

// Conn represents one connected websocket peer speaking the RPC envelope.
// Every Conn runs two goroutines: readPump (decodes inbound request frames
// and invokes the Handler) and writePump (serializes outbound frames —
// gorilla/websocket connections are not safe for concurrent writes, so
// writePump is the only goroutine allowed to write).
type Conn struct {
	hub     *Hub
	conn    *websocket.Conn
	handler Handler

	outbound chan any

	// UserData lets the owner attach arbitrary per-connection state (the
	// registered user name, correlation maps for a proxied link, etc.)
	// without wsrpc needing to know its shape.
	UserData any

	logger *zap.Logger
}

// Accept upgrades an HTTP request to a websocket connection, registers it
// with hub, and runs its read/write pumps. It blocks until the connection
// closes, so callers that need to return from the HTTP handler immediately
// should invoke Accept in a goroutine.
func Accept(hub *Hub, w http.ResponseWriter, r *http.Request, handler Handler, logger *zap.Logger) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	c := newConn(hub, ws, handler, logger.With(zap.String("remote_addr", r.RemoteAddr)))
	go c.Run()
	return c, nil
}

func newConn(hub *Hub, ws *websocket.Conn, handler Handler, logger *zap.Logger) *Conn {
	return &Conn{
		hub:      hub,
		conn:     ws,
		handler:  handler,
		outbound: make(chan any, sendBufferSize),
		logger:   logger,
	}
}

// Run registers the connection with the hub and runs its pumps. Blocks
// until the connection closes.
func (c *Conn) Run() {
	c.hub.subscribe(c)
	go c.writePump()
	c.readPump()
}

// Send enqueues an outbound frame (EventEnvelope, ResponseEnvelope, or any
// JSON-marshalable value) for delivery. Non-blocking: if the buffer is full
// the connection is dropped, same policy as Hub.Broadcast.
func (c *Conn) Send(frame any) {
	select {
	case c.outbound <- frame:
	default:
		c.hub.unregister <- c
	}
}

// Close closes the underlying connection, which in turn causes readPump to
// exit and unregister from the hub.
func (c *Conn) Close() { c.conn.Close() }

// DisconnectHandler is implemented by Handlers that need to react to a
// connection closing — ARServer's RPC dispatcher uses it to arm the lock
// auto-release timer for the disconnecting user (spec.md §4.1: "any
// pending auto-release timer is armed for the locks held by that user").
type DisconnectHandler interface {
	HandleDisconnect(c *Conn)
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.unsubscribe(c)
		c.conn.Close()
		if dh, ok := c.handler.(DisconnectHandler); ok {
			dh.HandleDisconnect(c)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warn("wsrpc: unexpected close", zap.Error(err))
			}
			return
		}
		c.dispatch(data)
	}
}

// peekFrame is decoded first to learn which of request/response/event a
// frame carries before committing to one of the three typed shapes.
type peekFrame struct {
	Request  string `json:"request"`
	Response string `json:"response"`
	Event    string `json:"event"`
}

// EventHandler is implemented by connections that also receive pushed
// events rather than just RPC requests — the ARServer side of the
// ARServer⇄Manager link, which relays Manager-originated events to the UI
// hub (spec.md §4.2 "re-emit").
type EventHandler interface {
	HandleEvent(c *Conn, ev types.EventEnvelope)
}

// ResponseHandler is implemented by connections that issue RPC requests of
// their own and must correlate replies by id — again, the ARServer side of
// the proxied link to the Manager.
type ResponseHandler interface {
	HandleResponse(c *Conn, resp types.ResponseEnvelope)
}

// dispatch decodes one inbound frame and routes it by shape. Bad JSON, or a
// frame with none of request/response/event set, is a framing error —
// logged and dropped, per spec.md §4.1 ("only framing errors are silently
// dropped").
func (c *Conn) dispatch(data []byte) {
	var peek peekFrame
	if err := json.Unmarshal(data, &peek); err != nil {
		c.logger.Warn("wsrpc: malformed frame, dropping", zap.Error(err))
		return
	}

	switch {
	case peek.Request != "":
		var req types.RequestEnvelope
		if err := json.Unmarshal(data, &req); err != nil {
			c.logger.Warn("wsrpc: malformed request frame, dropping", zap.Error(err))
			return
		}
		if c.handler == nil {
			return
		}
		// Each inbound request is dispatched as its own task so concurrent
		// requests on one connection may complete out of order (spec.md
		// §5); response framing still carries the original id because
		// HandleRequest receives the full decoded request.
		go func() {
			resp := c.handler.HandleRequest(c, req)
			resp.ID = req.ID
			if resp.Response == "" {
				resp.Response = req.Request
			}
			c.Send(resp)
		}()

	case peek.Event != "":
		if eh, ok := c.handler.(EventHandler); ok {
			var ev types.EventEnvelope
			if err := json.Unmarshal(data, &ev); err != nil {
				c.logger.Warn("wsrpc: malformed event frame, dropping", zap.Error(err))
				return
			}
			go eh.HandleEvent(c, ev)
		}

	case peek.Response != "":
		if rh, ok := c.handler.(ResponseHandler); ok {
			var resp types.ResponseEnvelope
			if err := json.Unmarshal(data, &resp); err != nil {
				c.logger.Warn("wsrpc: malformed response frame, dropping", zap.Error(err))
				return
			}
			go rh.HandleResponse(c, resp)
		}

	default:
		c.logger.Warn("wsrpc: frame has no request/response/event discriminator, dropping")
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbound:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn("wsrpc: write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
