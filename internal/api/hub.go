package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/eventbus"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12
	clientBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Subscriber is the event bus as seen by the hub.
type Subscriber interface {
	Subscribe(eventType eventbus.EventType, handler eventbus.Handler) (unsubscribe func())
}

type client struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans bus events out to websocket clients. Slow clients miss messages
// rather than stall the bus.
type Hub struct {
	mu           sync.Mutex
	clients      map[*client]struct{}
	closed       bool
	unsubscribes []func()
}

// NewHub subscribes to state, failure and gesture events.
func NewHub(bus Subscriber) *Hub {
	h := &Hub{clients: make(map[*client]struct{})}
	for _, t := range []eventbus.EventType{
		eventbus.EventStateChanged,
		eventbus.EventCommandFailed,
		eventbus.EventGesture,
	} {
		h.unsubscribes = append(h.unsubscribes, bus.Subscribe(t, h.Broadcast))
	}
	return h
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(event eventbus.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to encode websocket event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Debug().Msg("Websocket client too slow, dropping message")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close unsubscribes from the bus and disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, unsubscribe := range h.unsubscribes {
		unsubscribe()
	}
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	c.close()
}

// ServeWS upgrades the connection and streams events until either side
// goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &client{
		send: make(chan []byte, clientBufferSize),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		return
	}
	defer h.unregister(c)

	conn.SetReadLimit(maxMsgSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader drains control frames and notices disconnects.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Msg("Websocket read error")
				}
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	log.Debug().Str("remote", r.RemoteAddr).Msg("Websocket client connected")
	defer func() {
		conn.Close()
		<-readerDone
		log.Debug().Str("remote", r.RemoteAddr).Msg("Websocket client disconnected")
	}()

	for {
		select {
		case <-readerDone:
			return
		case <-c.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
