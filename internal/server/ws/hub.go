// Package ws bridges signal bus channels to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters. Origin checks are
// left to the CORS and auth middleware in front of the hub.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Config selects the bus channels forwarded to clients.
type Config struct {
	Channels []string
}

// Hub manages a set of connected WebSocket clients and broadcasts messages
// from the signal bus to the clients subscribed to their channel.
type Hub struct {
	channels   []string
	clients    map[*client]bool
	broadcast  chan envelope
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// envelope is the frame sent to clients. Maker is only used for routing.
type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	maker   string
}

// controlMsg is the JSON message a client sends to manage its
// subscriptions. Makers narrows order changes to the given makers; an empty
// list clears the filter.
type controlMsg struct {
	Action   string   `json:"action"` // "subscribe", "unsubscribe" or "watch"
	Channels []string `json:"channels"`
	Makers   []string `json:"makers"`
}

// NewHub creates a hub forwarding cfg.Channels. Without channels it forwards
// "orders".
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	channels := cfg.Channels
	if len(channels) == 0 {
		channels = []string{"orders"}
	}
	return &Hub{
		channels:   channels,
		clients:    make(map[*client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
	}
}

// Run subscribes to the configured channels and serves client registration
// and broadcasting until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for _, ch := range h.channels {
		go h.subscribeToChannel(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			frame, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(msg) {
					continue
				}
				select {
				case c.send <- frame:
				default:
					h.logger.Warn("ws: dropping message for slow client",
						slog.String("channel", msg.Channel),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribeToChannel forwards one bus channel to the broadcast loop.
func (h *Hub) subscribeToChannel(ctx context.Context, channel string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to channel",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("ws: subscribed to channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: channel subscription closed",
					slog.String("channel", channel),
				)
				return
			}
			if !json.Valid(data) {
				continue
			}
			select {
			case h.broadcast <- envelope{Channel: channel, Data: data, maker: makerOf(data)}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// makerOf extracts the maker of an order change, or "" for other payloads.
func makerOf(data []byte) string {
	var ev struct {
		Order *struct {
			Maker common.Address `json:"maker"`
		} `json:"order"`
	}
	if err := json.Unmarshal(data, &ev); err != nil || ev.Order == nil {
		return ""
	}
	return strings.ToLower(ev.Order.Maker.Hex())
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		subs:   make(map[string]bool),
		makers: make(map[string]bool),
	}
	for _, ch := range h.channels {
		c.subs[ch] = true
	}

	c.sendHello()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// client represents a single WebSocket connection.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	subs   map[string]bool
	makers map[string]bool
}

// readPump reads control messages until the connection fails.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg controlMsg
		if json.Unmarshal(message, &msg) == nil && msg.Action != "" {
			c.handleControl(msg)
		}
	}
}

// handleControl applies a subscription change.
func (c *client) handleControl(msg controlMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	case "watch":
		c.makers = make(map[string]bool, len(msg.Makers))
		for _, m := range msg.Makers {
			if common.IsHexAddress(m) {
				c.makers[strings.ToLower(common.HexToAddress(m).Hex())] = true
			}
		}
	}
}

// wants reports whether msg passes the client's channel and maker filters.
func (c *client) wants(msg envelope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.subs[msg.Channel] {
		return false
	}
	if len(c.makers) == 0 || msg.maker == "" {
		return true
	}
	return c.makers[msg.maker]
}

// sendHello tells the client which channels it receives.
func (c *client) sendHello() {
	msg, err := json.Marshal(map[string]any{
		"channel": "hub",
		"data": map[string]any{
			"channels":       c.hub.channels,
			"uptime_seconds": int64(time.Since(c.hub.startedAt).Seconds()),
		},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writePump pumps messages from the hub to the WebSocket connection as text
// frames and sends periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
