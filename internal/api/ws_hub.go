package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"bistro/server/internal/models"
	"bistro/server/internal/services"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

// GateMessage сообщение push-канала о состоянии приема заказов
type GateMessage struct {
	Type      string           `json:"type"`
	State     models.GateState `json:"state"`
	Version   int64            `json:"version"`
	UpdatedBy string           `json:"updated_by"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func gateMessage(s models.ServiceGateState) GateMessage {
	return GateMessage{
		Type:      "service_gate",
		State:     s.State,
		Version:   s.Version,
		UpdatedBy: s.UpdatedBy,
		UpdatedAt: s.UpdatedAt,
	}
}

// Hub управляет WebSocket соединениями клиентов оформления заказов
type Hub struct {
	clients map[*websocket.Conn]bool
	mutex   sync.RWMutex
	gate    *services.ServiceGate
	log     *zap.Logger
}

// NewHub создает хаб поверх флага приема заказов
func NewHub(gate *services.ServiceGate, log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		gate:    gate,
		log:     log,
	}
}

// Start подписывается на флаг сразу и рассылает изменения в фоне до отмены ctx
func (h *Hub) Start(ctx context.Context) {
	updates, unsubscribe := h.gate.Subscribe()
	go h.run(ctx, updates, unsubscribe)
}

func (h *Hub) run(ctx context.Context, updates <-chan models.ServiceGateState, unsubscribe func()) {
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case state := <-updates:
			msg, err := json.Marshal(gateMessage(state))
			if err != nil {
				h.log.Error("❌ Не удалось сериализовать состояние флага", zap.Error(err))
				continue
			}
			h.broadcast(msg)
		}
	}
}

func (h *Hub) broadcast(msg []byte) {
	var dead []*websocket.Conn
	h.mutex.RLock()
	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
			dead = append(dead, client)
		}
	}
	h.mutex.RUnlock()

	// Удаляем клиентов с ошибкой записи
	for _, client := range dead {
		h.RemoveClient(client)
	}
}

// AddClient добавляет клиента и сразу отправляет текущее состояние.
// Запись под блокировкой: рассылка не может вклиниться до первого сообщения
func (h *Hub) AddClient(conn *websocket.Conn) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(gateMessage(h.gate.Current())); err != nil {
		return err
	}
	h.clients[conn] = true
	return nil
}

// RemoveClient удаляет клиента
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mutex.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mutex.Unlock()
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		_ = client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		client.Close()
		delete(h.clients, client)
	}
}

// GetClientsCount возвращает количество подключенных клиентов
func (h *Hub) GetClientsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
