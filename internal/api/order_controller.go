package api

import (
	"errors"
	"net/http"
	"strconv"

	"bistro/server/internal/models"
	"bistro/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderController оформление и просмотр заказов
type OrderController struct {
	orders *services.OrderService
	log    *zap.Logger
}

// NewOrderController создает новый контроллер заказов
func NewOrderController(orders *services.OrderService, log *zap.Logger) *OrderController {
	return &OrderController{orders: orders, log: log}
}

// CreateOrderRequest корзина и оплата
type CreateOrderRequest struct {
	Lines          []models.CartLine    `json:"lines"`
	PaymentMethod  models.PaymentMethod `json:"payment_method" binding:"required"`
	AmountTendered decimal.Decimal      `json:"amount_tendered"`
	Card           services.CardDetails `json:"card"`
	IdempotencyKey string               `json:"idempotency_key"`
}

// CreateOrder оформляет заказ
// POST /api/v1/orders  (Idempotency-Key: <ключ попытки>)
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	result, err := oc.orders.PlaceOrder(c.Request.Context(), services.PlaceOrderRequest{
		Identity:       identityFrom(c),
		Lines:          req.Lines,
		Method:         req.PaymentMethod,
		Tendered:       req.AmountTendered,
		Card:           req.Card,
		IdempotencyKey: key,
	})

	var rej *services.RejectionError
	switch {
	case err == nil && result.Replayed:
		c.JSON(http.StatusOK, result)
	case err == nil:
		c.JSON(http.StatusCreated, result)
	case errors.As(err, &rej) && result != nil:
		c.JSON(statusFor(err), result)
	default:
		respondError(c, oc.log, err)
	}
}

// GetOrder возвращает заказ
// GET /api/v1/orders/:id
func (oc *OrderController) GetOrder(c *gin.Context) {
	order, err := oc.orders.GetOrderFor(c.Request.Context(), c.Param("id"), identityFrom(c))
	if err != nil {
		respondError(c, oc.log, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListOrders последние заказы
// GET /api/v1/orders?limit=50
func (oc *OrderController) ListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	orders, err := oc.orders.ListOrders(c.Request.Context(), identityFrom(c), limit)
	if err != nil {
		respondError(c, oc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}
