// Package companion is the WebSocket channel for remote companion devices
// (watch remotes, pocket monitors). Companions receive the capture state on
// every change and can start or stop recording.
package companion

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smazurov/cinecam/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

// Actions is what a companion is allowed to do.
type Actions interface {
	StartRecording() error
	StopRecording() error
}

// State is the message pushed to companions.
type State struct {
	IsRecording        bool    `json:"isRecording"`
	IsAppActive        bool    `json:"isAppActive"`
	FrameRate          float64 `json:"frameRate"`
	RecordingStartTime string  `json:"recordingStartTime,omitempty"`
}

// command is what companions send.
type command struct {
	Action string `json:"action"`
}

// Hub fans capture state out to connected companions and dispatches their
// commands.
type Hub struct {
	actions Actions
	status  func() State
	logger  *slog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	unsubs     []func()
}

// NewHub creates a hub. status supplies the current state on demand; the
// bus drives pushes on every state or reachability change.
func NewHub(bus *events.Bus, actions Actions, status func() State, logger *slog.Logger) *Hub {
	h := &Hub{
		actions: actions,
		status:  status,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}

	h.unsubs = []func(){
		bus.Subscribe(func(events.SessionStateEvent) { h.pushState() }),
		bus.Subscribe(func(events.RecordingStartedEvent) { h.pushState() }),
		bus.Subscribe(func(events.RecordingStoppedEvent) { h.pushState() }),
		bus.Subscribe(func(events.RecordingFinishedEvent) { h.pushState() }),
	}

	go h.run()
	return h
}

// Close disconnects all companions and stops the hub.
func (h *Hub) Close() {
	for _, unsub := range h.unsubs {
		unsub()
	}
	close(h.done)
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			// Late joiners get the current state immediately.
			if msg, err := json.Marshal(h.status()); err == nil {
				c.trySend(msg)
			}
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				c.trySend(msg)
			}
			h.mu.Unlock()
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// pushState broadcasts the current state to every companion.
func (h *Hub) pushState() {
	msg, err := json.Marshal(h.status())
	if err != nil {
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// ClientCount returns the number of connected companions.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and runs the companion session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Companion upgrade failed", "error", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, 8)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// dispatch runs one companion command.
func (h *Hub) dispatch(cmd command) {
	var err error
	switch cmd.Action {
	case "startRecording":
		err = h.actions.StartRecording()
	case "stopRecording":
		err = h.actions.StopRecording()
	default:
		h.logger.Warn("Unknown companion command", "action", cmd.Action)
		return
	}
	if err != nil {
		h.logger.Warn("Companion command failed", "action", cmd.Action, "error", err)
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// trySend queues a message, dropping it if the companion is not keeping up.
func (c *client) trySend(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

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
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			c.hub.logger.Warn("Malformed companion message", "error", err)
			continue
		}
		c.hub.dispatch(cmd)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
