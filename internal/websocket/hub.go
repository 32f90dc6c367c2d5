package websocket

import (
	"context"
	"sync"

	"github.com/openmusicplayer/mediagrab/internal/download"
)

// allTasks is the filter key for clients following every task.
const allTasks = ""

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	// Registered clients by task filter
	clients map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast channel for progress updates
	broadcast chan *ProgressMessage

	// Messages for a single client, such as the initial snapshot
	direct chan directMessage

	// Closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

type directMessage struct {
	client  *Client
	message *ProgressMessage
}

// ProgressMessage is a task update as sent to clients.
type ProgressMessage struct {
	Type            string                `json:"type"`
	Seq             uint64                `json:"seq"`
	TaskID          string                `json:"task_id"`
	Status          download.Status       `json:"status"`
	Progress        float64               `json:"progress"`
	Title           string                `json:"title,omitempty"`
	Error           string                `json:"error,omitempty"`
	DownloadedBytes int64                 `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64                 `json:"total_bytes,omitempty"`
	Speed           string                `json:"speed,omitempty"`
	Artifact        *download.ArtifactRef `json:"artifact,omitempty"`
}

// Message types
const (
	TypeTaskProgress = "task_progress"
	TypeTaskRemoved  = "task_removed"
)

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *ProgressMessage),
		direct:     make(chan directMessage),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing every
// client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for key, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
				delete(h.clients, key)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.taskID] == nil {
				h.clients[client.taskID] = make(map[*Client]bool)
			}
			h.clients[client.taskID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case d := <-h.direct:
			h.mu.Lock()
			if h.clients[d.client.taskID][d.client] {
				h.deliverLocked(map[*Client]bool{d.client: true}, d.message)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			h.deliverLocked(h.clients[message.TaskID], message)
			if message.TaskID != allTasks {
				h.deliverLocked(h.clients[allTasks], message)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) deliverLocked(clients map[*Client]bool, message *ProgressMessage) {
	for client := range clients {
		select {
		case client.send <- message:
		default:
			// Client's buffer is full, close the connection
			h.removeLocked(client)
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.taskID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.taskID)
	}
}

// Register adds a client. It is a no-op once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a message to the clients following its task and to those
// following every task.
func (h *Hub) Broadcast(msg *ProgressMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Send delivers msg to one registered client only. Unknown clients are
// skipped.
func (h *Hub) Send(client *Client, msg *ProgressMessage) {
	select {
	case h.direct <- directMessage{client: client, message: msg}:
	case <-h.done:
	}
}

// ClientCount returns the number of clients following taskID specifically.
func (h *Hub) ClientCount(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[taskID])
}

// TotalClients returns the total number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
