// WebSocket bridge: re-broadcasts notification signals to UI clients so
// they can re-render queue state without polling.
package main

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kimhsiao/inventorylite/internal/logging"
	"github.com/kimhsiao/inventorylite/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     localOrigin,
}

// localOrigin admits the local UI and non-browser clients. Browsers send
// their page's origin; any non-local one is rejected.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

// wsEnvelope wraps all WebSocket messages.
type wsEnvelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

const (
	eventQueueChanged = "queue.changed"
	eventSyncStarted  = "sync.started"
	eventSyncFinished = "sync.finished"
)

// wsClient is one connected observer.
type wsClient struct {
	conn *websocket.Conn
	send chan wsEnvelope
}

// wsHub fans notification signals out to connected WebSocket clients.
type wsHub struct {
	broker *notify.Broker

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newWSHub(broker *notify.Broker) *wsHub {
	return &wsHub{
		broker:  broker,
		clients: make(map[*wsClient]struct{}),
	}
}

// run subscribes to the broker and broadcasts every signal until the
// context ends or the broker closes.
func (h *wsHub) run(ctx context.Context) {
	sub := h.broker.Subscribe(16)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sub.C:
			if !ok {
				return
			}
			h.broadcast(signalEvent(sig))
		}
	}
}

func signalEvent(sig notify.Signal) string {
	switch sig {
	case notify.SignalSyncStarted:
		return eventSyncStarted
	case notify.SignalSyncFinished:
		return eventSyncFinished
	default:
		return eventQueueChanged
	}
}

func (h *wsHub) broadcast(eventType string) {
	env := wsEnvelope{Type: eventType, Timestamp: time.Now().Unix()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- env:
		default:
			// Slow client: drop it rather than block the hub.
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// handleWS upgrades the connection and registers the client.
func (h *wsHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			map[string]interface{}{"error": err.Error()})
		return
	}

	client := &wsClient{conn: conn, send: make(chan wsEnvelope, 16)}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	go h.readPump(client)
}

func (h *wsHub) writePump(c *wsClient) {
	defer c.conn.Close()
	for env := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(env); err != nil {
			h.drop(c)
			return
		}
	}
}

// readPump discards inbound frames; clients are observers only. It
// exists to detect closes.
func (h *wsHub) readPump(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *wsHub) drop(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
	c.conn.Close()
}
