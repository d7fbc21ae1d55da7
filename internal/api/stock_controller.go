package api

import (
	"context"
	"net/http"
	"strconv"

	"bistro/server/internal/events"
	"bistro/server/internal/models"
	"bistro/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockController ингредиенты, остатки и накладные
type StockController struct {
	ledger    *services.StockLedger
	publisher events.Publisher
	log       *zap.Logger
}

// NewStockController создает новый контроллер остатков
func NewStockController(ledger *services.StockLedger, publisher events.Publisher, log *zap.Logger) *StockController {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &StockController{ledger: ledger, publisher: publisher, log: log}
}

// ListIngredients возвращает все ингредиенты
// GET /api/v1/inventory/ingredients
func (sc *StockController) ListIngredients(c *gin.Context) {
	items, err := sc.ledger.ListIngredients(c.Request.Context())
	if err != nil {
		respondError(c, sc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// GetIngredient возвращает ингредиент
// GET /api/v1/inventory/ingredients/:id
func (sc *StockController) GetIngredient(c *gin.Context) {
	item, err := sc.ledger.GetIngredient(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, sc.log, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// CreateIngredient создает ингредиент с начальным остатком
// POST /api/v1/inventory/ingredients
func (sc *StockController) CreateIngredient(c *gin.Context) {
	var in services.IngredientInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	item, err := sc.ledger.CreateIngredient(c.Request.Context(), in, identityFrom(c).Actor())
	if err != nil {
		respondError(c, sc.log, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// UpdateIngredient меняет справочные поля. Остаток меняется только через adjust и restock
// PATCH /api/v1/inventory/ingredients/:id
func (sc *StockController) UpdateIngredient(c *gin.Context) {
	var patch services.IngredientPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	item, err := sc.ledger.UpdateIngredient(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, sc.log, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteIngredient удаляет ингредиент без ссылок из рецептур
// DELETE /api/v1/inventory/ingredients/:id
func (sc *StockController) DeleteIngredient(c *gin.Context) {
	if err := sc.ledger.DeleteIngredient(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, sc.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AdjustRequest ручная корректировка (инвентаризация, списание)
type AdjustRequest struct {
	Adjustments []services.Adjustment `json:"adjustments" binding:"required"`
	Notes       string                `json:"notes"`
}

// AdjustStock применяет пакет корректировок атомарно
// POST /api/v1/inventory/adjust
func (sc *StockController) AdjustStock(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	items, err := sc.ledger.AdjustMany(c.Request.Context(), req.Adjustments, services.AdjustMeta{
		Type:  models.MovementAdjustment,
		Actor: identityFrom(c).Actor(),
		Notes: req.Notes,
	})
	if err != nil {
		respondError(c, sc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// GetLowStock ингредиенты ниже порога дозаказа
// GET /api/v1/inventory/low-stock
func (sc *StockController) GetLowStock(c *gin.Context) {
	items, err := sc.ledger.LowStock(c.Request.Context())
	if err != nil {
		respondError(c, sc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// Restock проводит накладную на пополнение
// POST /api/v1/inventory/restock
func (sc *StockController) Restock(c *gin.Context) {
	var in services.StockOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	order, err := sc.ledger.Restock(c.Request.Context(), in, identityFrom(c).Actor())
	if err != nil {
		respondError(c, sc.log, err)
		return
	}

	ev := events.Event{
		Type:       events.TypeStockRestocked,
		Key:        order.ID,
		Attributes: map[string]string{"total": order.Total.StringFixed(2)},
		Payload:    order,
	}
	if err := sc.publisher.Publish(context.WithoutCancel(c.Request.Context()), ev); err != nil {
		sc.log.Warn("⚠️ Не удалось отправить событие", zap.String("type", ev.Type), zap.Error(err))
	}
	c.JSON(http.StatusCreated, order)
}

// ListStockOrders последние накладные
// GET /api/v1/inventory/stock-orders?limit=50
func (sc *StockController) ListStockOrders(c *gin.Context) {
	orders, err := sc.ledger.ListStockOrders(c.Request.Context(), queryLimit(c))
	if err != nil {
		respondError(c, sc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

// GetMovements журнал движений ингредиента
// GET /api/v1/inventory/ingredients/:id/movements?limit=50
func (sc *StockController) GetMovements(c *gin.Context) {
	movements, err := sc.ledger.Movements(c.Request.Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		respondError(c, sc.log, err)
		return
	}
	total := decimal.Zero
	for _, m := range movements {
		total = total.Add(m.Delta)
	}
	c.JSON(http.StatusOK, gin.H{
		"movements": movements,
		"count":     len(movements),
		"net_delta": total,
	})
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
