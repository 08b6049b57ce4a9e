// Package managerclient is ARServer's outbound websocket link to the
// Execution Manager (spec.md §4.1 "Execution RPCs ... are tunnelled to the
// Manager via a persistent websocket", §6: "ARServer <-> Manager: same
// envelope as UI"). It proxies RunPackage/StopPackage/etc. requests,
// correlating replies by id, and re-emits every Manager-originated event
// (PackageState, ActionStateBefore/After, ProjectException) to the UI hub.
//
// Grounded on the teacher's agent-side gRPC stream client
// (agent/internal/...): a persistent outbound connection with reconnect +
// backoff, replaced here with shared/wsrpc since the Manager link reuses
// the same JSON-RPC envelope as the UI link rather than gRPC.
package managerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/shared/types"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

// pending is one in-flight request awaiting a correlated response.
type pending struct {
	replyCh chan types.ResponseEnvelope
}

// Client maintains the outbound connection to the Manager and exposes
// Forward for proxying one RPC call.
type Client struct {
	url    string
	hub    *wsrpc.Hub // the UI-facing hub events are re-emitted onto
	logger *zap.Logger

	mu      sync.Mutex
	conn    *wsrpc.Conn
	nextID  uint64
	pending map[uint64]*pending
}

// NewClient returns a Client that will dial url (default
// ws://localhost:6790 per spec.md §6) and relay Manager events onto hub.
func NewClient(url string, hub *wsrpc.Hub, logger *zap.Logger) *Client {
	return &Client{
		url:     url,
		hub:     hub,
		logger:  logger.Named("managerclient"),
		pending: make(map[uint64]*pending),
	}
}

// Run maintains the connection, reconnecting with exponential backoff until
// ctx is cancelled. It blocks; callers should run it in its own goroutine.
func (c *Client) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := wsrpc.Dial(ctx, c.url, c.hub, c, c.logger)
		if err != nil {
			c.logger.Warn("managerclient: dial failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = minDuration(backoff*2, maxBackoff)
			continue
		}

		backoff = time.Second
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.logger.Info("managerclient: connected", zap.String("url", c.url))

		<-ctx.Done()
		conn.Close()
		return
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// Connected reports whether the Manager link is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Forward proxies request/args to the Manager and blocks for the correlated
// response, or until ctx is done (spec.md §9: "Execution RPCs are
// proxied end-to-end rather than exposing a separate Manager endpoint").
func (c *Client) Forward(ctx context.Context, request string, args any) (types.ResponseEnvelope, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return types.ResponseEnvelope{}, fmt.Errorf("managerclient: not connected")
	}
	id := atomic.AddUint64(&c.nextID, 1)
	p := &pending{replyCh: make(chan types.ResponseEnvelope, 1)}
	c.pending[id] = p
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	var raw json.RawMessage
	if args != nil {
		var err error
		raw, err = json.Marshal(args)
		if err != nil {
			return types.ResponseEnvelope{}, fmt.Errorf("managerclient: marshal args: %w", err)
		}
	}

	conn.Send(types.RequestEnvelope{Request: request, ID: id, Args: raw})

	select {
	case resp := <-p.replyCh:
		return resp, nil
	case <-ctx.Done():
		return types.ResponseEnvelope{}, ctx.Err()
	}
}

// HandleRequest implements wsrpc.Handler. The Manager never issues requests
// to ARServer over this link, so any inbound request frame is a protocol
// violation logged and rejected.
func (c *Client) HandleRequest(_ *wsrpc.Conn, req types.RequestEnvelope) types.ResponseEnvelope {
	c.logger.Warn("managerclient: unexpected inbound request from Manager", zap.String("request", req.Request))
	return types.ResponseEnvelope{Result: false, Messages: []string{"ARServer does not accept Manager-initiated requests"}}
}

// HandleResponse implements wsrpc.ResponseHandler: correlates a Manager
// reply with its pending Forward call.
func (c *Client) HandleResponse(_ *wsrpc.Conn, resp types.ResponseEnvelope) {
	c.mu.Lock()
	p, ok := c.pending[resp.ID]
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("managerclient: response with no pending request", zap.Uint64("id", resp.ID))
		return
	}
	p.replyCh <- resp
}

// HandleEvent implements wsrpc.EventHandler: every Manager-originated event
// is re-emitted verbatim to every UI connection (spec.md §4.2 "re-emit").
// PackageState and ProjectException must never be dropped under
// backpressure (spec.md §5); Hub.Broadcast already treats only the
// unresponsive peer's own buffer, never drops application-level events,
// so no special-casing is needed here beyond logging loudly if it happens.
func (c *Client) HandleEvent(_ *wsrpc.Conn, ev types.EventEnvelope) {
	c.hub.Broadcast(ev, nil)
}
