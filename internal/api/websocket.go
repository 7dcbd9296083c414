package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"walletintel/internal/eventbus"

	"github.com/gorilla/websocket"
)

// Hub fans broadcast messages out to the connected websocket clients.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mutex      sync.Mutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.hub.register <- client

	go func() {
		defer func() {
			s.hub.unregister <- client
			conn.Close()
		}()
		for {
			message, ok := <-client.send
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			w.Close()
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// BroadcastMessage is the websocket frame envelope.
type BroadcastMessage struct {
	Type    string      `json:"type"`
	Wallet  string      `json:"wallet,omitempty"`
	Payload interface{} `json:"payload"`
}

// pumpEvents bridges bus events onto the websocket hub.
func (s *Server) pumpEvents() {
	events := make(chan eventbus.Event, 256)
	s.bus.Subscribe(eventbus.TopicConsensusSignal, events)
	s.bus.Subscribe(eventbus.TopicPositionChange, events)
	s.bus.Subscribe(eventbus.TopicWalletElected, events)
	s.bus.Subscribe(eventbus.TopicWalletMigrated, events)

	for evt := range events {
		data, err := json.Marshal(BroadcastMessage{Type: evt.Type, Wallet: evt.Wallet, Payload: evt.Data})
		if err != nil {
			continue
		}
		s.hub.broadcast <- data
	}
}
