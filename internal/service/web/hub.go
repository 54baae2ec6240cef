package web

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"liuproxy_prober/internal/core/engine"
	"liuproxy_prober/internal/shared/logger"
)

// WebSocketMessage 定义了 WebSocket 消息的通用格式
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts batch progress to them.
// It implements engine.Observer.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stop       chan struct{}
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stop:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) Run() {
	l := logger.WithComponent("Prober/Hub")
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			l.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client registered.")
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				l.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client unregistered.")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					// the read pump unregisters the client
					l.Warn().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("Error writing to websocket client.")
				}
			}
			h.mu.Unlock()
		case <-h.stop:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop terminates Run and closes every client.
func (h *Hub) Stop() { close(h.stop) }

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// OnNodeResult 广播单个节点的检测结果
func (h *Hub) OnNodeResult(ev engine.NodeEvent) {
	h.send("node_result", ev)
}

// OnBatchDone 广播批次结束的汇总
func (h *Hub) OnBatchDone(ev engine.BatchEvent) {
	h.send("batch_done", ev)
}

func (h *Hub) send(kind string, data interface{}) {
	jsonMsg, err := json.Marshal(WebSocketMessage{Type: kind, Data: data})
	if err != nil {
		logger.Error().Err(err).Str("type", kind).Msg("Hub: Failed to marshal message")
		return
	}
	select {
	case h.broadcast <- jsonMsg:
	default:
		// Do not log warning for full channel to avoid log spam
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins
}

// ServeWs handles websocket requests from the peer.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade websocket")
		return
	}
	select {
	case hub.register <- conn:
	case <-hub.stop:
		conn.Close()
		return
	}

	// This is a read pump. It's needed to detect when a client closes the connection.
	go func() {
		defer func() {
			select {
			case hub.unregister <- conn:
			case <-hub.stop:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn().Err(err).Msg("Unexpected websocket close error")
				}
				break
			}
		}
	}()
}
