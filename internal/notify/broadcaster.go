package notify

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Broadcaster fans events out to connected websocket clients (dashboard
// live view). A slow or dead client is dropped, never waited on.
type Broadcaster struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Broadcast sends one typed event to every connected client.
func (b *Broadcaster) Broadcast(eventType string, payload interface{}) {
	msg, err := json.Marshal(event{Type: eventType, Payload: payload})
	if err != nil {
		log.Errorf("broadcast marshal failed: %v", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

// Handle upgrades the request and registers the client.
func (b *Broadcaster) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	// Read loop only to detect disconnects.
	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.clients, conn)
			b.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
