package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/device"
	"github.com/ayusman/mudra/internal/home"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/security"
	"github.com/ayusman/mudra/internal/store"
)

// Outbound message types.
const (
	MessageDevice   = "device"
	MessageStatus   = "status"
	MessageSpeak    = "speak"
	MessageVibrate  = "vibrate"
	MessageAnnounce = "announce"
	MessageAlert    = "alert"
	MessageError    = "error"
)

// Inbound message types.
const (
	MessageHand  = "hand"
	MessageFaces = "faces"
	MessageVoice = "voice"
)

const (
	writeWait      = 5 * time.Second
	clientQueueLen = 32
	maxMessageSize = 1 << 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local UI only
	},
}

// Message is the envelope for every WebSocket frame in either direction.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func encode(typ string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: typ, Data: raw})
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans application events out to connected browsers. It is the speech,
// vibration, and announcement channel for the web UI; with no clients
// connected every call is a no-op.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

var (
	_ device.Feedback     = (*Hub)(nil)
	_ device.Listener     = (*Hub)(nil)
	_ home.StatusListener = (*Hub)(nil)
	_ security.Alerter    = (*Hub)(nil)
)

// NewHub creates a hub with no clients.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Speak asks clients to say text.
func (h *Hub) Speak(text string) {
	h.broadcast(MessageSpeak, map[string]string{"text": text})
}

// Vibrate asks clients to vibrate with pattern, in milliseconds.
func (h *Hub) Vibrate(pattern []int) {
	h.broadcast(MessageVibrate, map[string][]int{"pattern": pattern})
}

// Announce sends text for screen readers.
func (h *Hub) Announce(text string) {
	h.broadcast(MessageAnnounce, map[string]string{"text": text})
}

// DeviceChanged sends the new state of d.
func (h *Hub) DeviceChanged(d device.Device) {
	h.broadcast(MessageDevice, d)
}

// StatusChanged sends the current controller status.
func (h *Hub) StatusChanged(s home.Status) {
	h.broadcast(MessageStatus, s)
}

// Alert sends a confirmed security event.
func (h *Hub) Alert(ev store.SecurityEvent) {
	h.broadcast(MessageAlert, ev)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) broadcast(typ string, data interface{}) {
	h.mu.RLock()
	if len(h.clients) == 0 {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()

	msg, err := encode(typ, data)
	if err != nil {
		monitoring.Logf("server: failed to encode %s message: %v", typ, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Slow client; drop it rather than block the caller.
			close(c.send)
			delete(h.clients, c)
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, clientQueueLen)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.writeLoop()
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}

// sendTo queues one message for a single client.
func (h *Hub) sendTo(c *client, typ string, data interface{}) {
	msg, err := encode(typ, data)
	if err != nil {
		monitoring.Logf("server: failed to encode %s message: %v", typ, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// handleEvents upgrades to a WebSocket, sends the current status, and then
// dispatches inbound hand, faces, and voice messages to the controller.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("server: websocket upgrade error: %v", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := s.hub.add(conn)
	defer s.hub.remove(c)

	s.hub.sendTo(c, MessageStatus, s.ctrl.Status())

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if err := s.dispatch(r, msg); err != nil {
			s.hub.sendTo(c, MessageError, errorResponse{Error: err.Error()})
		}
	}
}

func (s *Server) dispatch(r *http.Request, msg Message) error {
	ctx := r.Context()
	switch msg.Type {
	case MessageHand:
		var req landmarksRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return err
		}
		if len(req.Points) == 0 {
			return nil
		}
		hand := req.hand()
		_, err := s.ctrl.ProcessHand(&hand)
		return ignoreFrameError(err)
	case MessageFaces:
		var req facesRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return err
		}
		s.ctrl.ProcessFaces(ctx, req.Faces)
		return nil
	case MessageVoice:
		var req voiceRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return err
		}
		_, err := s.ctrl.HandleVoice(ctx, req.Transcript)
		return err
	default:
		return errUnknownMessage(msg.Type)
	}
}
