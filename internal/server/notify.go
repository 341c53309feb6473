package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// EventType identifies a GUI notification event.
type EventType string

const (
	// EventChangesReceived fires after a push applied at least one
	// change; the GUI refreshes its views in response.
	EventChangesReceived EventType = "changes_received"
)

// Event is a GUI notification broadcast over /ws.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ChangesReceivedData carries the applied-change count to the GUI.
type ChangesReceivedData struct {
	Count int `json:"count"`
}

// Notifier broadcasts sync events to GUI clients over WebSocket.
type Notifier struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewNotifier creates a notification hub. Call Start before
// broadcasting.
func NewNotifier(logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Notifier{
		clients: make(map[*websocket.Conn]bool),
		events:  make(chan Event, 100),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Start launches the broadcast loop.
func (n *Notifier) Start() {
	n.wg.Add(1)
	go n.broadcastLoop()
}

// Stop closes all client connections and stops the broadcast loop.
func (n *Notifier) Stop() {
	n.cancel()

	n.clientsMu.Lock()
	for conn := range n.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(n.clients, conn)
	}
	n.clientsMu.Unlock()

	n.wg.Wait()
}

// ChangesReceived notifies connected GUI clients that a push landed.
func (n *Notifier) ChangesReceived(count int) {
	data, err := json.Marshal(ChangesReceivedData{Count: count})
	if err != nil {
		n.logger.Printf("Failed to marshal notification: %v", err)
		return
	}
	n.publish(Event{Type: EventChangesReceived, Data: data})
}

func (n *Notifier) publish(e Event) {
	select {
	case n.events <- e:
	case <-n.ctx.Done():
	default:
		n.logger.Println("Warning: event channel full, dropping notification")
	}
}

func (n *Notifier) broadcastLoop() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return

		case e := <-n.events:
			if e.Timestamp.IsZero() {
				e.Timestamp = time.Now()
			}

			data, err := json.Marshal(e)
			if err != nil {
				n.logger.Printf("Failed to marshal event: %v", err)
				continue
			}

			n.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(n.clients))
			for conn := range n.clients {
				conns = append(conns, conn)
			}
			n.clientsMu.RUnlock()

			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					n.logger.Printf("Failed to notify client: %v", err)
					n.removeClient(conn)
				}
			}
		}
	}
}

// HandleWebSocket upgrades a GUI connection and registers it for
// notifications.
func (n *Notifier) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		n.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	n.clientsMu.Lock()
	n.clients[conn] = true
	count := len(n.clients)
	n.clientsMu.Unlock()

	n.logger.Printf("GUI client connected (total: %d)", count)

	go n.readLoop(conn)
}

// readLoop drains client frames so pings keep the connection alive.
// Client messages carry no meaning.
func (n *Notifier) readLoop(conn *websocket.Conn) {
	defer n.removeClient(conn)

	for {
		if _, _, err := conn.Read(n.ctx); err != nil {
			return
		}
	}
}

func (n *Notifier) removeClient(conn *websocket.Conn) {
	n.clientsMu.Lock()
	_, exists := n.clients[conn]
	if exists {
		delete(n.clients, conn)
	}
	count := len(n.clients)
	n.clientsMu.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		n.logger.Printf("GUI client disconnected (total: %d)", count)
	}
}

// ClientCount returns the number of connected GUI clients.
func (n *Notifier) ClientCount() int {
	n.clientsMu.RLock()
	defer n.clientsMu.RUnlock()
	return len(n.clients)
}
