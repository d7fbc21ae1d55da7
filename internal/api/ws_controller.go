package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	// Origin не проверяем: доступ решает Bearer токен
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeWS подключает клиента к push-каналу флага приема заказов
// GET /api/v1/gate/ws
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("⚠️ Ошибка обновления WebSocket соединения", zap.Error(err))
		return
	}

	if err := h.AddClient(conn); err != nil {
		h.log.Warn("⚠️ Не удалось отправить начальное состояние", zap.Error(err))
		conn.Close()
		return
	}
	who := identityFrom(c)
	h.log.Info("📱 Клиент подключен", zap.String("by", who.Actor()), zap.Int("clients", h.GetClientsCount()))

	defer func() {
		h.RemoveClient(conn)
		h.log.Info("📱 Клиент отключен", zap.Int("clients", h.GetClientsCount()))
	}()

	// Читаем сообщения от клиента (ping/pong для поддержания соединения)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("⚠️ WebSocket ошибка", zap.Error(err))
			}
			break
		}
	}
}
