// Package wsrpc implements the websocket JSON-RPC transport shared by the
// UI⇄ARServer and ARServer⇄Manager links (spec.md §6: "Same envelope as
// UI."). It is adapted from the teacher's internal/websocket pub/sub hub,
// generalized from server-push-only to full request/response/event duplex:
// each connection can both issue RPC requests and receive broadcast events.
//
// # Design: single-writer event loop
//
// As in the teacher, all mutation of the connection registry is serialized
// through the Hub's Run loop via channels, so no lock is needed for
// register/unregister; Broadcast takes a short read-lock to copy the
// recipient set before sending, exactly as the teacher's Publish does.
package wsrpc

import "sync"

// Hub is the central registry of connections, used for broadcasting events
// to every peer except (optionally) the originator of the RPC that caused
// the event — spec.md §4.1: "Events are broadcast to all registered clients
// except the originator when the event is the direct echo of that
// originator's RPC."
type Hub struct {
	mu      sync.RWMutex
	conns   map[*Conn]struct{}
	register chan *Conn
	unregister chan *Conn
	stopped chan struct{}
}

// NewHub creates an idle Hub. Call Run in a goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[*Conn]struct{}),
		register:   make(chan *Conn, 16),
		unregister: make(chan *Conn, 16),
		stopped:    make(chan struct{}),
	}
}

// Run starts the hub's event loop; it must be called exactly once in its own
// goroutine and exits when ctx is cancelled.
func (h *Hub) Run(ctx interface{ Done() <-chan struct{} }) {
	defer close(h.stopped)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.conns[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.conns[c]; ok {
				delete(h.conns, c)
				close(c.outbound)
			}
			h.mu.Unlock()
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.conns {
				close(c.outbound)
			}
			h.conns = make(map[*Conn]struct{})
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) subscribe(c *Conn)   { h.register <- c }
func (h *Hub) unsubscribe(c *Conn) { h.unregister <- c }

// Broadcast sends an outbound frame (an EventEnvelope, typically) to every
// connected peer except exclude (pass nil to exclude none). A peer whose
// send buffer is full is disconnected rather than allowed to stall the
// others — spec.md §5: "a single slow client must not block others."
func (h *Hub) Broadcast(frame any, exclude *Conn) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.outbound <- frame:
		default:
			h.unregister <- c
		}
	}
}

// Count returns the number of currently registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Conns returns a snapshot slice of currently registered connections.
func (h *Hub) Conns() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}
