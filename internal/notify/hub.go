// Package notify fans realtime events out to websocket connections. Each
// connection subscribes to its user id topic; admins also join AdminsTopic.
// There is no acknowledgment or replay: a client that is offline misses the
// event and re-fetches on reconnect.
package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"gymflow/gym-api/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	EventAdminNotifications = "admin_notifications"
	EventNewMessage         = "new-message"
	EventWorkoutPlanUpdated = "workout_plan_updated"
	EventWorkoutMissed      = "workout-missed"

	AdminsTopic = "admins"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Event is the frame written to the websocket.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub tracks connections per topic.
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]map[*client]struct{}
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	topics    []string
	closeOnce sync.Once
}

// NewHub creates an empty hub. checkOrigin may be nil to accept any origin.
func NewHub(log *logrus.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		topics: make(map[string]map[*client]struct{}),
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *Hub) register(topics ...string) *client {
	c := &client{send: make(chan []byte, sendBuffer), topics: topics}
	h.mu.Lock()
	for _, t := range topics {
		set, ok := h.topics[t]
		if !ok {
			set = make(map[*client]struct{})
			h.topics[t] = set
		}
		set[c] = struct{}{}
	}
	h.mu.Unlock()
	metrics.ConnectionOpened()
	return c
}

func (h *Hub) unregister(c *client) {
	c.closeOnce.Do(func() {
		h.mu.Lock()
		for _, t := range c.topics {
			if set, ok := h.topics[t]; ok {
				delete(set, c)
				if len(set) == 0 {
					delete(h.topics, t)
				}
			}
		}
		h.mu.Unlock()
		close(c.send)
		metrics.ConnectionClosed()
	})
}

// PublishToUsers delivers evt to every connection of the given user ids.
// A connection appearing under several ids receives the event once.
func (h *Hub) PublishToUsers(evt Event, userIDs ...string) {
	h.publish(evt, userIDs...)
}

// PublishToAdmins delivers evt to every admin connection.
func (h *Hub) PublishToAdmins(evt Event) {
	h.publish(evt, AdminsTopic)
}

func (h *Hub) publish(evt Event, topics ...string) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.WithError(err).WithField("type", evt.Type).Error("failed to encode event")
		return
	}

	var slow []*client
	seen := make(map[*client]struct{})
	h.mu.RLock()
	for _, t := range topics {
		for c := range h.topics[t] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			select {
			case c.send <- data:
				metrics.RecordEvent(evt.Type)
			default:
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		metrics.RecordDroppedEvent()
		h.log.WithField("type", evt.Type).Warn("dropping slow websocket client")
		h.unregister(c)
	}
}

// Connections returns the number of live connections on topic.
func (h *Hub) Connections(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*client
	seen := make(map[*client]struct{})
	for _, set := range h.topics {
		for c := range set {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				all = append(all, c)
			}
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.unregister(c)
	}
}

// ServeWS upgrades the request and blocks until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string, isAdmin bool) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	topics := []string{userID}
	if isAdmin {
		topics = append(topics, AdminsTopic)
	}
	c := h.register(topics...)
	c.conn = conn

	h.log.WithFields(logrus.Fields{"userId": userID, "admin": isAdmin}).Debug("websocket connected")

	go h.writePump(c)
	h.readPump(c)
	return nil
}

// readPump only services control frames; clients never send payloads we use.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("websocket closed unexpectedly")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
