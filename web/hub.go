package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"markestedt/rebind/capture"
	"markestedt/rebind/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Server to client message types.
const (
	MessageTypeStatus  = "status"
	MessageTypeSession = "session"
	MessageTypeError   = "error"
)

// Client to server message types.
const (
	clientRecord       = "record"
	clientKey          = "key"
	clientOutsideClick = "outside_click"
	clientCancel       = "cancel"
	clientUnmount      = "unmount"
)

// Message is sent to websocket clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ErrorMessage is the payload of an error message.
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// clientMessage is received from websocket clients.
type clientMessage struct {
	Type       string `json:"type"`
	ShortcutID string `json:"shortcut_id,omitempty"`
	Key        string `json:"key,omitempty"`
	Down       bool   `json:"down,omitempty"`
	Repeat     bool   `json:"repeat,omitempty"`
}

type directMessage struct {
	client *Client
	data   []byte
}

// Hub tracks connected clients and broadcasts to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		direct:     make(chan directMessage, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case m := <-h.direct:
			if _, ok := h.clients[m.client]; !ok {
				continue
			}
			select {
			case m.client.send <- m.data:
			default:
				slog.Debug("Dropping message for slow client")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client, drop it
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a client. It reports false once the hub is stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// BroadcastMessage sends msg to every connected client.
func (h *Hub) BroadcastMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal message", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// Client is one websocket connection. A client that starts a recording
// owns it: if the connection drops, the recording is torn down.
type Client struct {
	hub    *Hub
	server *Server
	conn   *websocket.Conn
	send   chan []byte

	mu        sync.Mutex
	sessionID string
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		c.teardown()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WebSocket closed unexpectedly", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid message", "bad_request")
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg clientMessage) {
	ctrl := c.server.ctrl

	switch msg.Type {
	case clientRecord:
		st, err := ctrl.Start(context.Background(), msg.ShortcutID)
		if err != nil {
			_, code := errorStatus(err)
			c.sendError(err.Error(), code)
			return
		}
		c.mu.Lock()
		c.sessionID = st.SessionID
		c.mu.Unlock()

	case clientKey:
		ctrl.HandleKey(capture.KeyEvent{
			Identifier: msg.Key,
			Down:       msg.Down,
			Repeat:     msg.Repeat,
			Timestamp:  time.Now(),
		})

	case clientOutsideClick:
		c.cancel(session.TriggerOutsideClick)

	case clientCancel:
		c.cancel(session.TriggerExplicit)

	case clientUnmount:
		c.cancel(session.TriggerTeardown)

	default:
		c.sendError("unknown message type "+msg.Type, "bad_request")
	}
}

func (c *Client) cancel(trigger session.Trigger) {
	if err := c.server.ctrl.Cancel(trigger); err != nil {
		_, code := errorStatus(err)
		c.sendError(err.Error(), code)
	}
}

// teardown cancels the recording this client started, if it is still
// running.
func (c *Client) teardown() {
	c.mu.Lock()
	id := c.sessionID
	c.mu.Unlock()
	if id == "" {
		return
	}
	if c.server.ctrl.Status().SessionID != id {
		return
	}
	slog.Info("Settings page disconnected during recording", "session", id)
	if err := c.server.ctrl.Cancel(session.TriggerTeardown); err != nil {
		slog.Warn("Teardown cancel failed", "session", id, "error", err)
	}
}

func (c *Client) writePump() {
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

// sendMessage queues msg for this client only. The hub owns c.send, so
// the message goes through it.
func (c *Client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal message", "error", err)
		return
	}
	select {
	case c.hub.direct <- directMessage{client: c, data: data}:
	case <-c.hub.done:
	}
}

func (c *Client) sendError(message, code string) {
	c.sendMessage(Message{Type: MessageTypeError, Data: ErrorMessage{Message: message, Code: code}})
}
