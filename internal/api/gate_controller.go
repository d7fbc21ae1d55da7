package api

import (
	"context"
	"net/http"
	"strconv"

	"bistro/server/internal/events"
	"bistro/server/internal/models"
	"bistro/server/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GateController флаг приема заказов
type GateController struct {
	gate      *services.ServiceGate
	publisher events.Publisher
	log       *zap.Logger
}

// NewGateController создает новый контроллер флага
func NewGateController(gate *services.ServiceGate, publisher events.Publisher, log *zap.Logger) *GateController {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &GateController{gate: gate, publisher: publisher, log: log}
}

// GetGate текущее состояние
// GET /api/v1/gate
func (gc *GateController) GetGate(c *gin.Context) {
	c.JSON(http.StatusOK, gateMessage(gc.gate.Current()))
}

// SetGateRequest новое состояние
type SetGateRequest struct {
	State models.GateState `json:"state" binding:"required"`
}

// SetGate переключает прием заказов
// PUT /api/v1/gate
func (gc *GateController) SetGate(c *gin.Context) {
	var req SetGateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	row, err := gc.gate.Set(c.Request.Context(), req.State, identityFrom(c))
	if err != nil {
		respondError(c, gc.log, err)
		return
	}

	ev := events.Event{
		Type: events.TypeServiceGateChanged,
		Key:  "service_gate",
		Attributes: map[string]string{
			"state":   string(row.State),
			"version": strconv.FormatInt(row.Version, 10),
		},
		Payload: gateMessage(row),
	}
	if err := gc.publisher.Publish(context.WithoutCancel(c.Request.Context()), ev); err != nil {
		gc.log.Warn("⚠️ Не удалось отправить событие", zap.String("type", ev.Type), zap.Error(err))
	}
	c.JSON(http.StatusOK, gateMessage(row))
}
