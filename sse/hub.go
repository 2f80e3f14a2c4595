package sse

import (
	"path/filepath"
	"sync"

	"github.com/kbukum/opkit/logger"
)

// Broadcaster receives serialized events for a topic. Hub implements it.
type Broadcaster interface {
	Publish(topic string, data []byte)
}

// Client is a connected subscriber.
type Client struct {
	id      string
	pattern string
	events  chan []byte
}

// NewClient creates a client receiving topics that match the glob pattern.
func NewClient(id, pattern string) *Client {
	return &Client{
		id:      id,
		pattern: pattern,
		events:  make(chan []byte, 256),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Pattern returns the topic pattern the client subscribed with.
func (c *Client) Pattern() string { return c.pattern }

// Events returns the channel for receiving events.
func (c *Client) Events() <-chan []byte { return c.events }

// send delivers data without blocking. It returns false when the client
// is too slow and its buffer is full.
func (c *Client) send(data []byte) bool {
	select {
	case c.events <- data:
		return true
	default:
		return false
	}
}

// Message is a published event with its topic.
type Message struct {
	Topic string
	Data  []byte
}

// Hub fans published events out to subscribed clients. All client
// bookkeeping happens on the goroutine running Run.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	log        *logger.Logger
}

// NewHub creates a hub. Call Run in a goroutine before use.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
		log:        log.WithComponent("sse"),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("Client registered", map[string]interface{}{
				"client_id":     client.id,
				"pattern":       client.pattern,
				"total_clients": total,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.events)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("Client unregistered", map[string]interface{}{
				"client_id":     client.id,
				"total_clients": total,
			})

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Stop shuts the hub down and closes every client. Safe to call multiple times.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.events)
		delete(h.clients, id)
	}
}

// Register adds a client. It returns false once the hub is stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues data for clients whose pattern matches topic. Events are
// dropped rather than blocking the publisher when the queue is full.
func (h *Hub) Publish(topic string, data []byte) {
	select {
	case h.broadcast <- Message{Topic: topic, Data: data}:
	case <-h.done:
	default:
		h.log.Warn("Broadcast queue full, dropping event", map[string]interface{}{
			"topic": topic,
		})
	}
}

func (h *Hub) fanOut(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if matched, _ := filepath.Match(client.pattern, msg.Topic); !matched {
			continue
		}
		if !client.send(msg.Data) {
			h.log.Warn("Client channel full, dropping event", map[string]interface{}{
				"client_id": client.id,
			})
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var _ Broadcaster = (*Hub)(nil)
