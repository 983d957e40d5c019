// Package notify broadcasts committed record changes to WebSocket subscribers
// so peer clients can fold remote edits into their local view.
package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/prodboard/prodboard/internal/model"
)

// Event types carried in the envelope.
const (
	EventRecordCreated = "record.created"
	EventRecordUpdated = "record.updated"
	EventRecordDeleted = "record.deleted"
)

// Envelope wraps every broadcast message.
type Envelope struct {
	Type          string         `json:"type"`
	Kind          string         `json:"kind"`
	ID            string         `json:"id"`
	Fields        []string       `json:"fields,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	RecordVersion int64          `json:"recordVersion"`
	Timestamp     int64          `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains active subscriber connections and fans out envelopes. It
// implements service.Notifier.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub constructs a hub ready to accept subscribers.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and registers the subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 64)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("ws client connected", zap.Int("total", n))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// writeLoop drains the client's send queue onto the socket.
func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
}

// readLoop discards inbound frames; subscribers are listen-only. Its real job
// is noticing the peer going away.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("ws client disconnected", zap.Int("total", n))
}

// broadcast queues the envelope for every subscriber; clients that cannot
// keep up are dropped rather than allowed to stall the hub.
func (h *Hub) broadcast(env Envelope) {
	msg, err := json.Marshal(env)
	if err != nil {
		h.log.Error("ws marshal", zap.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.drop(c)
	}
}

// RecordCreated broadcasts a full new record.
func (h *Hub) RecordCreated(rec model.Record) {
	h.broadcast(Envelope{
		Type:          EventRecordCreated,
		Kind:          string(rec.Kind),
		ID:            rec.ID.String(),
		Data:          rec.Data,
		RecordVersion: rec.RecordVersion,
		Timestamp:     time.Now().Unix(),
	})
}

// RecordUpdated broadcasts the committed field set and the record's new state.
func (h *Hub) RecordUpdated(rec model.Record, changedFields []string) {
	h.broadcast(Envelope{
		Type:          EventRecordUpdated,
		Kind:          string(rec.Kind),
		ID:            rec.ID.String(),
		Fields:        changedFields,
		Data:          rec.Data,
		RecordVersion: rec.RecordVersion,
		Timestamp:     time.Now().Unix(),
	})
}

// RecordDeleted broadcasts a tombstone.
func (h *Hub) RecordDeleted(kind model.Kind, id uuid.UUID, recordVersion int64) {
	h.broadcast(Envelope{
		Type:          EventRecordDeleted,
		Kind:          string(kind),
		ID:            id.String(),
		RecordVersion: recordVersion,
		Timestamp:     time.Now().Unix(),
	})
}
