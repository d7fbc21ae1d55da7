package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bistro/server/internal/events"
	"bistro/server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Order  *struct {
		ID     string          `json:"id"`
		Change decimal.Decimal `json:"change"`
	} `json:"order"`
	Trail    []string `json:"trail"`
	Replayed bool     `json:"replayed"`
}

func cashOrder(itemID string, qty int, tendered string) gin.H {
	return gin.H{
		"lines":           []gin.H{{"menu_item_id": itemID, "quantity": qty}},
		"payment_method":  "Cash",
		"amount_tendered": tendered,
	}
}

func TestHealthNeedsNoToken(t *testing.T) {
	s := newTestServer(t)

	var body map[string]interface{}
	code := s.do(t, nil, http.MethodGet, "/api/v1/health", nil, nil, &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Accepting", body["service_gate"])
}

func TestIdentityRequired(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, nil, http.MethodGet, "/api/v1/menu", nil, nil, nil))

	code := s.do(t, nil, http.MethodGet, "/api/v1/menu", nil,
		map[string]string{"Authorization": "Bearer not-a-token"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	forged, err := SignIdentity("other-secret", staff, 0)
	require.NoError(t, err)
	code = s.do(t, nil, http.MethodGet, "/api/v1/menu", nil,
		map[string]string{"Authorization": "Bearer " + forged}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestParseIdentity(t *testing.T) {
	token, err := SignIdentity(testSecret, models.Identity{ID: 42, Role: models.RoleAdmin}, 60e9)
	require.NoError(t, err)

	who, err := ParseIdentity(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, models.Identity{ID: 42, Role: models.RoleAdmin}, who)

	bad, err := SignIdentity(testSecret, models.Identity{ID: 1, Role: "Chef"}, 60e9)
	require.NoError(t, err)
	_, err = ParseIdentity(testSecret, bad)
	assert.Error(t, err)
}

func TestCustomerCannotManageInventory(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusForbidden,
		s.do(t, &customer, http.MethodGet, "/api/v1/inventory/ingredients", nil, nil, nil))
	assert.Equal(t, http.StatusForbidden,
		s.do(t, &customer, http.MethodPost, "/api/v1/inventory/adjust", gin.H{"adjustments": []gin.H{}}, nil, nil))
	assert.Equal(t, http.StatusForbidden,
		s.do(t, &customer, http.MethodPost, "/api/v1/menu/items", gin.H{"name": "x"}, nil, nil))
}

func TestMenuFollowsStock(t *testing.T) {
	s := newTestServer(t)
	itemID := s.seedPizza(t, "2", "1")

	var menu struct {
		Items []struct {
			ID        string `json:"id"`
			Orderable bool   `json:"orderable"`
		} `json:"items"`
	}
	require.Equal(t, http.StatusOK, s.do(t, &customer, http.MethodGet, "/api/v1/menu", nil, nil, &menu))
	require.Len(t, menu.Items, 1)
	assert.Equal(t, itemID, menu.Items[0].ID)
	assert.True(t, menu.Items[0].Orderable)

	require.Equal(t, http.StatusOK, s.do(t, &customer, http.MethodGet, "/api/v1/menu?quantity=3", nil, nil, &menu))
	assert.False(t, menu.Items[0].Orderable)

	assert.Equal(t, http.StatusBadRequest, s.do(t, &customer, http.MethodGet, "/api/v1/menu?quantity=0", nil, nil, nil))

	var one struct {
		Orderable bool `json:"orderable"`
	}
	require.Equal(t, http.StatusOK,
		s.do(t, &customer, http.MethodGet, "/api/v1/menu/availability/"+itemID+"?quantity=2", nil, nil, &one))
	assert.True(t, one.Orderable)
	assert.Equal(t, http.StatusNotFound,
		s.do(t, &customer, http.MethodGet, "/api/v1/menu/availability/missing", nil, nil, nil))
}

func TestCreateOrderCash(t *testing.T) {
	s := newTestServer(t)
	itemID := s.seedPizza(t, "5", "5")
	headers := map[string]string{"Idempotency-Key": "cart-1"}

	var res orderResponse
	code := s.do(t, &customer, http.MethodPost, "/api/v1/orders", cashOrder(itemID, 1, "20"), headers, &res)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Paid", res.Status)
	require.NotNil(t, res.Order)
	assert.True(t, decimal.RequireFromString("7.50").Equal(res.Order.Change))
	assert.Equal(t, []string{"Validating", "Reserving", "AwaitingPayment", "Committed"}, res.Trail)
	assert.Len(t, s.publisher.OfType(events.TypeOrderCommitted), 1)

	var replay orderResponse
	code = s.do(t, &customer, http.MethodPost, "/api/v1/orders", cashOrder(itemID, 1, "20"), headers, &replay)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, replay.Replayed)
	assert.Equal(t, res.Order.ID, replay.Order.ID)

	var order struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusOK, s.do(t, &customer, http.MethodGet, "/api/v1/orders/"+res.Order.ID, nil, nil, &order))
	assert.Equal(t, res.Order.ID, order.ID)

	other := models.Identity{ID: 99, Role: models.RoleCustomer}
	assert.Equal(t, http.StatusNotFound, s.do(t, &other, http.MethodGet, "/api/v1/orders/"+res.Order.ID, nil, nil, nil))
	assert.Equal(t, http.StatusOK, s.do(t, &staff, http.MethodGet, "/api/v1/orders/"+res.Order.ID, nil, nil, nil))
}

func TestCreateOrderRejections(t *testing.T) {
	s := newTestServer(t)
	itemID := s.seedPizza(t, "1", "1")

	var res orderResponse
	code := s.do(t, &customer, http.MethodPost, "/api/v1/orders", cashOrder(itemID, 1, "10"), nil, &res)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "Rejected", res.Status)
	assert.Equal(t, "InsufficientCash", res.Reason)

	code = s.do(t, &customer, http.MethodPost, "/api/v1/orders", cashOrder(itemID, 2, "50"), nil, &res)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "InsufficientStock", res.Reason)

	code = s.do(t, &customer, http.MethodPost, "/api/v1/orders", cashOrder(itemID, 0, "50"), nil, &res)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidCart", res.Reason)

	code = s.do(t, &customer, http.MethodPost, "/api/v1/orders", gin.H{"lines": []gin.H{}}, nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGateControl(t *testing.T) {
	s := newTestServer(t)
	itemID := s.seedPizza(t, "5", "5")

	assert.Equal(t, http.StatusForbidden,
		s.do(t, &customer, http.MethodPut, "/api/v1/gate", gin.H{"state": "Busy"}, nil, nil))
	assert.Equal(t, http.StatusBadRequest,
		s.do(t, &staff, http.MethodPut, "/api/v1/gate", gin.H{"state": "Closed"}, nil, nil))

	var msg GateMessage
	require.Equal(t, http.StatusOK, s.do(t, &staff, http.MethodPut, "/api/v1/gate", gin.H{"state": "Busy"}, nil, &msg))
	assert.Equal(t, models.GateBusy, msg.State)
	assert.Equal(t, "Staff:2", msg.UpdatedBy)
	assert.Len(t, s.publisher.OfType(events.TypeServiceGateChanged), 1)

	var res orderResponse
	code := s.do(t, &customer, http.MethodPost, "/api/v1/orders", cashOrder(itemID, 1, "20"), nil, &res)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "ServiceBusy", res.Reason)

	require.Equal(t, http.StatusOK, s.do(t, &customer, http.MethodGet, "/api/v1/gate", nil, nil, &msg))
	assert.Equal(t, models.GateBusy, msg.State)
}

func TestInventoryEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.seedPizza(t, "0.5", "5")

	var list struct {
		Items []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"items"`
	}
	require.Equal(t, http.StatusOK, s.do(t, &staff, http.MethodGet, "/api/v1/inventory/low-stock", nil, nil, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Dough", list.Items[0].Name)
	doughID := list.Items[0].ID

	code := s.do(t, &staff, http.MethodPost, "/api/v1/inventory/adjust",
		gin.H{"adjustments": []gin.H{{"ingredient_id": doughID, "delta": "-1"}}}, nil, nil)
	assert.Equal(t, http.StatusConflict, code)

	code = s.do(t, &staff, http.MethodPost, "/api/v1/inventory/restock", gin.H{
		"notes": "weekly delivery",
		"lines": []gin.H{{"ingredient_id": doughID, "quantity": "10", "unit_price": "0.80"}},
	}, nil, nil)
	assert.Equal(t, http.StatusCreated, code)
	assert.Len(t, s.publisher.OfType(events.TypeStockRestocked), 1)

	assert.Equal(t, http.StatusConflict,
		s.do(t, &staff, http.MethodDelete, "/api/v1/inventory/ingredients/"+doughID, nil, nil, nil))

	var movements struct {
		Count int `json:"count"`
	}
	require.Equal(t, http.StatusOK,
		s.do(t, &staff, http.MethodGet, "/api/v1/inventory/ingredients/"+doughID+"/movements", nil, nil, &movements))
	assert.Equal(t, 2, movements.Count)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.deps.Metrics.SetGateBusy(true)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "service_gate_busy 1"))
}
