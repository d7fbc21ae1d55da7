package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bistro/server/internal/database"
	"bistro/server/internal/events"
	"bistro/server/internal/models"
	"bistro/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

var (
	customer = models.Identity{ID: 7, Role: models.RoleCustomer}
	staff    = models.Identity{ID: 2, Role: models.RoleStaff}
)

type testServer struct {
	router    *gin.Engine
	deps      Deps
	publisher *events.MemoryPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.New().String(), "-", ""))
	db, err := database.ConnectSQLite(dsn, log)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db, log))
	t.Cleanup(func() { database.Close(db) })

	metrics := services.NewMetrics()
	ledger := services.NewStockLedger(db, log)
	recipes := services.NewRecipeIndex(db, log)
	gate := services.NewServiceGate(db, nil, time.Minute, log, metrics)
	require.NoError(t, gate.Load(context.Background()))
	publisher := &events.MemoryPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(gate, log)
	hub.Start(ctx)

	deps := Deps{
		JWTSecret:    testSecret,
		Ledger:       ledger,
		Recipes:      recipes,
		Menu:         services.NewMenuService(db, log),
		Availability: services.NewAvailabilityService(db, ledger, recipes),
		Orders: services.NewOrderService(services.OrderServiceConfig{
			DB:             db,
			Gate:           gate,
			Recipes:        recipes,
			Ledger:         ledger,
			Reconciler:     services.NewPaymentReconciler(nil, "usd", log, metrics),
			Publisher:      publisher,
			Metrics:        metrics,
			Log:            log,
			PaymentTimeout: time.Second,
			ReservationTTL: time.Minute,
		}),
		Gate:      gate,
		Hub:       hub,
		Publisher: publisher,
		Metrics:   metrics,
		Log:       log,
	}
	return &testServer{router: NewRouter(deps), deps: deps, publisher: publisher}
}

func tokenFor(t *testing.T, who models.Identity) string {
	t.Helper()
	token, err := SignIdentity(testSecret, who, time.Hour)
	require.NoError(t, err)
	return token
}

// do выполняет запрос от имени who и разбирает JSON ответа в out, если он задан
func (s *testServer) do(t *testing.T, who *models.Identity, method, path string, body interface{}, headers map[string]string, out interface{}) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, *who))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

// seedPizza заводит тесто, сыр и пиццу через HTTP от имени сотрудника
func (s *testServer) seedPizza(t *testing.T, dough, cheese string) (itemID string) {
	t.Helper()
	var ing struct {
		ID string `json:"id"`
	}
	code := s.do(t, &staff, http.MethodPost, "/api/v1/inventory/ingredients",
		gin.H{"name": "Dough", "quantity": dough, "unit": "kg", "unit_price": "1.00", "reorder_threshold": "1"}, nil, &ing)
	require.Equal(t, http.StatusCreated, code)
	doughID := ing.ID

	code = s.do(t, &staff, http.MethodPost, "/api/v1/inventory/ingredients",
		gin.H{"name": "Cheese", "quantity": cheese, "unit": "kg", "unit_price": "4.00", "reorder_threshold": "0.5"}, nil, &ing)
	require.Equal(t, http.StatusCreated, code)
	cheeseID := ing.ID

	var item struct {
		ID string `json:"id"`
	}
	code = s.do(t, &staff, http.MethodPost, "/api/v1/menu/items",
		gin.H{"name": "Margherita", "category": "pizza", "price": "12.50"}, nil, &item)
	require.Equal(t, http.StatusCreated, code)

	for id, qty := range map[string]string{doughID: "1", cheeseID: "0.25"} {
		code = s.do(t, &staff, http.MethodPut, "/api/v1/menu/items/"+item.ID+"/recipe/"+id,
			gin.H{"quantity_required": qty}, nil, nil)
		require.Equal(t, http.StatusOK, code)
	}
	return item.ID
}
