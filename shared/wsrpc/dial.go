package wsrpc

import (
	"context"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Dial opens an outbound websocket connection to url and wires it into a
// Conn that speaks the same RPC envelope as server-accepted connections —
// used by ARServer to connect out to the Manager (spec.md §4.1: "Execution
// RPCs ... are tunnelled ... via a persistent websocket"). The caller owns
// reconnection policy; Dial performs exactly one connection attempt.
func Dial(ctx context.Context, url string, hub *Hub, handler Handler, logger *zap.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := newConn(hub, ws, handler, logger)
	go c.Run()
	return c, nil
}
