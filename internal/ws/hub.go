package ws

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// Client is one websocket connection. UserID is empty for anonymous
// listeners, which only receive broadcasts.
type Client struct {
	Conn   *websocket.Conn
	UserID string
}

// Message is queued for delivery. An empty Recipient means everyone.
type Message struct {
	Recipient string
	Payload   []byte
}

// Envelope is the JSON shape every client receives.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const outboundBuffer = 256

type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	outbound   chan Message
	mutex      sync.Mutex
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		outbound:   make(chan Message, outboundBuffer),
		log:        log,
	}
}

// Publish queues a typed message. It never blocks: when the queue is full
// the message is dropped and logged, since delivery is best effort.
func (h *Hub) Publish(recipient, eventType string, data interface{}) {
	payload, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		h.log.Warn("ws: marshal message", zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case h.outbound <- Message{Recipient: recipient, Payload: payload}:
	default:
		h.log.Warn("ws: outbound queue full, dropping message", zap.String("type", eventType))
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mutex.Lock()
			h.Clients[client] = true
			h.mutex.Unlock()
			h.log.Debug("ws client connected", zap.String("user_id", client.UserID))

		case client := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				client.Conn.Close()
			}
			h.mutex.Unlock()

		case msg := <-h.outbound:
			h.mutex.Lock()
			for client := range h.Clients {
				if msg.Recipient != "" && client.UserID != msg.Recipient {
					continue
				}
				if err := client.Conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
					client.Conn.Close()
					delete(h.Clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.Clients)
}
