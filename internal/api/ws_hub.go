package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/roll-engine/internal/metrics"
	"github.com/atmx/roll-engine/internal/quote"
)

// Message types sent over the WebSocket.
const (
	MsgPriceUpdate     = "price_update"
	MsgStrategyCreated = "strategy_created"
	MsgStrategyUpdated = "strategy_updated"
	MsgStrategyDeleted = "strategy_deleted"
	MsgRollAnalyzed    = "roll_analyzed"
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type       string `json:"type"`
	Symbol     string `json:"symbol,omitempty"`
	StrategyID string `json:"strategy_id,omitempty"`
	Price      string `json:"price,omitempty"`
	At         string `json:"at,omitempty"`
}

// Connection timing. pingPeriod must stay below pongWait.
const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// WSHub fans JSON events out to every connected WebSocket client. A single
// goroutine (Run) owns membership changes and writes.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	events chan []byte
	join   chan *websocket.Conn
	leave  chan *websocket.Conn
	done   chan struct{} // closed when Run returns
}

// NewWSHub creates a hub. Nothing is delivered until Run is started.
func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[*websocket.Conn]struct{}),
		events:  make(chan []byte, 256),
		join:    make(chan *websocket.Conn),
		leave:   make(chan *websocket.Conn),
		done:    make(chan struct{}),
	}
}

// Run delivers events until ctx is done, then closes every client. Run
// must be called at most once.
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case conn := <-h.join:
			n := h.update(func(c map[*websocket.Conn]struct{}) { c[conn] = struct{}{} })
			slog.Info("ws client connected", "total", n)
		case conn := <-h.leave:
			h.update(func(c map[*websocket.Conn]struct{}) { h.drop(c, conn) })
		case msg := <-h.events:
			h.update(func(c map[*websocket.Conn]struct{}) {
				for conn := range c {
					if err := send(conn, msg); err != nil {
						slog.Debug("ws client dropped", "err", err)
						h.drop(c, conn)
					}
				}
			})
		}
	}
}

// update applies fn to the client set under the write lock and publishes
// the resulting count.
func (h *WSHub) update(fn func(map[*websocket.Conn]struct{})) int {
	h.mu.Lock()
	fn(h.clients)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
	return n
}

func (h *WSHub) drop(c map[*websocket.Conn]struct{}, conn *websocket.Conn) {
	if _, ok := c[conn]; ok {
		delete(c, conn)
		conn.Close()
	}
}

func (h *WSHub) closeAll() {
	h.update(func(c map[*websocket.Conn]struct{}) {
		for conn := range c {
			h.drop(c, conn)
		}
	})
}

func (h *WSHub) connected(conn *websocket.Conn) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[conn]
	return ok
}

func send(conn *websocket.Conn, msg []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// Done is closed once Run has returned and every client is closed.
func (h *WSHub) Done() <-chan struct{} {
	return h.done
}

// Clients returns the number of connected clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. It never blocks: when the queue
// is full the message is dropped.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.events <- data:
	default:
		slog.Warn("ws queue full, dropping message", "type", msg.Type)
	}
}

// BroadcastPrice forwards a price observation. It matches the
// quote.Options OnUpdate signature.
func (h *WSHub) BroadcastPrice(u quote.Update) {
	h.Broadcast(WSMessage{
		Type:   MsgPriceUpdate,
		Symbol: u.Symbol,
		Price:  u.Price.String(),
		At:     u.At.Format(time.RFC3339),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // same policy as the CORS middleware
	},
}

// HandleWS upgrades GET /api/v1/ws. Clients only listen; anything they send
// is discarded.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}
	select {
	case h.join <- conn:
	case <-h.done:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go h.readLoop(conn)
	go h.pingLoop(conn)
}

// readLoop consumes pongs and detects disconnects.
func (h *WSHub) readLoop(conn *websocket.Conn) {
	defer func() {
		select {
		case h.leave <- conn:
		case <-h.done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// pingLoop keeps idle connections open through proxies.
func (h *WSHub) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if !h.connected(conn) {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			return
		}
	}
}
