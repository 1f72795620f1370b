package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/annel0/worldmap/internal/eventbus"
	"github.com/annel0/worldmap/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 256
)

// Конфигурация WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // источники ограничивает CORS на REST
	},
}

// wsMessage событие шины в виде для клиента карты
type wsMessage struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// wsClient подключённый клиент карты
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Hub рассылает события шины всем подключённым клиентам
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	sub     eventbus.Subscription
	stopped bool
	log     *logging.Logger
}

// NewHub создаёт пустой хаб
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*wsClient),
		log:     logging.GetAPILogger(),
	}
}

// Start подписывает хаб на все события шины. bus == nil — хаб молчит.
func (h *Hub) Start(ctx context.Context, bus eventbus.EventBus) error {
	if bus == nil {
		return nil
	}
	sub, err := bus.Subscribe(ctx, eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		h.Broadcast(ev)
	})
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.sub = sub
	h.mu.Unlock()
	return nil
}

// Stop отписывается от шины и закрывает все соединения
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	if h.sub != nil {
		h.sub.Unsubscribe()
	}
	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
}

// Broadcast отправляет событие всем клиентам. Клиент с переполненной
// очередью отключается.
func (h *Hub) Broadcast(ev *eventbus.Envelope) {
	msg := wsMessage{ID: ev.ID, Type: ev.EventType, Timestamp: ev.Timestamp}
	if json.Valid(ev.Payload) {
		msg.Payload = ev.Payload
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn("ws: encode %s: %v", ev.EventType, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.log.Warn("ws: client %s is too slow, disconnecting", id)
			close(client.send)
			delete(h.clients, id)
		}
	}
}

// Connected возвращает количество подключенных клиентов
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[client.id] = client
	return true
}

func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.clients[client.id]; exists {
		close(client.send)
		delete(h.clients, client.id)
	}
}

// handleWebSocket переводит соединение в websocket и подключает его к хабу
func (rs *RestServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		rs.log.Warn("ws upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		id:   uuid.NewString(),
	}
	if !rs.hub.register(client) {
		conn.Close()
		return
	}
	rs.log.Debug("ws client connected: %s (%s)", client.id, c.ClientIP())

	go rs.hub.writePump(client)
	go rs.hub.readPump(client)
}

// readPump читает только служебные кадры; входящие сообщения игнорируются
func (h *Hub) readPump(client *wsClient) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(4096)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("ws client %s: %v", client.id, err)
			}
			return
		}
	}
}

// writePump отправляет сообщения клиенту и пингует его
func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, open := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !open {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
