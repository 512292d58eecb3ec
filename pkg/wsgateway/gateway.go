// Package wsgateway fans the pipeline's UI event queue out to browser
// websocket connections, filtered by session id. Opening a new connection
// for a session that already has one closes the prior connection, per
// spec.md's "WebSocket channel (external)" rule.
package wsgateway

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/pipeline"
)

// Gateway drains a pipeline.Event channel and writes each event to every
// open connection for that event's session id.
type Gateway struct {
	events <-chan pipeline.Event

	mu          sync.Mutex
	connections map[string]*connection

	ready chan struct{}
}

type connection struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
}

// New builds a Gateway draining events. Call Run to start serving.
func New(events <-chan pipeline.Event) *Gateway {
	return &Gateway{
		events:      events,
		connections: make(map[string]*connection),
		ready:       make(chan struct{}),
	}
}

func (g *Gateway) IsReady() bool {
	select {
	case <-g.ready:
		return true
	default:
		return false
	}
}

// Run drains events onto connected sessions until ctx is canceled.
// Satisfies service.Service.
func (g *Gateway) Run(ctx context.Context) error {
	close(g.ready)
	for {
		select {
		case <-ctx.Done():
			g.closeAll()
			return nil
		case evt, ok := <-g.events:
			if !ok {
				return nil
			}
			g.broadcast(ctx, evt)
		}
	}
}

func (g *Gateway) broadcast(ctx context.Context, evt pipeline.Event) {
	g.mu.Lock()
	c, ok := g.connections[evt.SessionID]
	g.mu.Unlock()
	if !ok {
		return
	}

	if err := wsjson.Write(ctx, c.conn, evt); err != nil {
		log.Printf("wsgateway: write to session %s failed: %v", evt.SessionID, err)
		g.forget(evt.SessionID, c)
	}
}

// ServeHTTP upgrades the request to a websocket connection registered
// under the session id given by the r.PathValue("session_id") the caller's
// mux extracted. Any prior connection for the same session is closed
// first. The handler blocks, reading (and discarding) client frames only
// to detect disconnects, until the client disconnects or ctx is canceled.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("wsgateway: accept failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &connection{conn: conn, cancel: cancel}

	g.mu.Lock()
	if prior, ok := g.connections[sessionID]; ok {
		prior.cancel()
		prior.conn.Close(websocket.StatusNormalClosure, "superseded by new connection")
	}
	g.connections[sessionID] = c
	g.mu.Unlock()

	defer g.forget(sessionID, c)

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (g *Gateway) forget(sessionID string, c *connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.connections[sessionID]; ok && current == c {
		delete(g.connections, sessionID)
	}
	c.cancel()
	c.conn.Close(websocket.StatusNormalClosure, "")
}

func (g *Gateway) closeAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, c := range g.connections {
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "server shutting down")
		delete(g.connections, id)
	}
}

// ConnectionCount reports how many sessions currently hold a live
// connection, for observability endpoints.
func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.connections)
}
