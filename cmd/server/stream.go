package main

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	streamBacklog  = 32
	maxMessageSize = 512
)

// streamEvent tells connected clients which collection changed. Clients
// re-fetch the collection over the JSON API; events carry no payload.
type streamEvent struct {
	Collection string `json:"collection"`
	Revision   uint64 `json:"revision,omitempty"`
}

// streamHub fans state change events out to every WebSocket subscriber.
type streamHub struct {
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*streamConn]struct{}
}

type streamConn struct {
	ws     *websocket.Conn
	events chan streamEvent
	done   chan struct{}
	once   sync.Once
}

func newStreamHub(logger *log.Logger) *streamHub {
	return &streamHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*streamConn]struct{}),
	}
}

// broadcast delivers an event to every connection. Slow connections drop
// events; clients re-fetch the full collection anyway.
func (h *streamHub) broadcast(ev streamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.conns {
		select {
		case c.events <- ev:
		default:
		}
	}
}

// handle upgrades an HTTP request and streams events until the peer leaves.
func (h *streamHub) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("WebSocket upgrade: %v", err)
		return
	}

	conn := &streamConn{
		ws:     ws,
		events: make(chan streamEvent, streamBacklog),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(conn)
	h.readLoop(conn)
}

func (h *streamHub) readLoop(conn *streamConn) {
	defer h.drop(conn)

	conn.ws.SetReadLimit(maxMessageSize)
	for {
		// Inbound messages are ignored; reading drains control frames and
		// detects the close.
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *streamHub) writeLoop(conn *streamConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(conn)
	}()

	for {
		select {
		case ev := <-conn.events:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.done:
			return
		}
	}
}

func (h *streamHub) drop(conn *streamConn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()

	conn.once.Do(func() {
		close(conn.done)
		conn.ws.Close()
	})
}

// closeAll disconnects every subscriber. Used at shutdown.
func (h *streamHub) closeAll() {
	h.mu.Lock()
	conns := make([]*streamConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.drop(c)
	}
}
