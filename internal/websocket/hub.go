package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/svaia/api/internal/model"
)

// Client represents a WebSocket client. Admin clients receive the events
// of every owner.
type Client struct {
	Email string
	Admin bool
	Conn  *websocket.Conn
	Send  chan []byte

	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by owner email
	clients map[string]map[*Client]bool
	admins  map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu  sync.Mutex
	log zerolog.Logger
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	Owner   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		admins:     make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		log:        log.With().Str("component", "ws_hub").Logger(),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			if client.Admin {
				h.admins[client] = true
			} else {
				if h.clients[client.Email] == nil {
					h.clients[client.Email] = make(map[*Client]bool)
				}
				h.clients[client.Email][client] = true
			}
			h.mu.Unlock()
			h.log.Debug().Str("email", client.Email).Bool("admin", client.Admin).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			client.close()
			h.log.Debug().Str("email", client.Email).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.Owner] {
				h.deliver(client, msg.Message)
			}
			for client := range h.admins {
				h.deliver(client, msg.Message)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.admins, client)
	if clients, ok := h.clients[client.Email]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.Email)
		}
	}
}

// deliver drops clients that cannot keep up. Their connection is closed so
// the reader loop unregisters them.
func (h *Hub) deliver(client *Client, msg []byte) {
	select {
	case client.Send <- msg:
	default:
		h.remove(client)
		if client.Conn != nil {
			go client.Conn.Close()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) send(owner string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal message")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{Owner: owner, Message: data}:
	default:
		h.log.Warn().Str("email", owner).Msg("broadcast queue full, dropping message")
	}
}

// BroadcastStarted tells the owner's dashboards that a generation began.
func (h *Hub) BroadcastStarted(email, project string) {
	h.send(email, model.WSGenerationMessage{
		Type:        model.WSMessageTypeStarted,
		Email:       email,
		ProjectName: project,
	})
}

// BroadcastComplete tells the owner's dashboards that a report is ready.
func (h *Hub) BroadcastComplete(email, project, reportName string) {
	h.send(email, model.WSGenerationMessage{
		Type:        model.WSMessageTypeComplete,
		Email:       email,
		ProjectName: project,
		ReportName:  reportName,
	})
}

// BroadcastError tells the owner's dashboards that a generation failed.
func (h *Hub) BroadcastError(email, project, code, message string) {
	h.send(email, model.WSGenerationMessage{
		Type:        model.WSMessageTypeError,
		Email:       email,
		ProjectName: project,
		Error: &model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, email string, admin bool) {
	client := &Client{
		Email: email,
		Admin: admin,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("email", email).Msg("websocket error")
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}
