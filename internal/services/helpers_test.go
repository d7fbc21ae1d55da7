package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"bistro/server/internal/database"
	"bistro/server/internal/events"
	"bistro/server/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	log := zaptest.NewLogger(t)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.New().String(), "-", ""))
	db, err := database.ConnectSQLite(dsn, log)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db, log))
	t.Cleanup(func() { database.Close(db) })
	return db
}

// newContendedDB для тестов конкурентности: Postgres из TEST_DATABASE_URL
// (своя схема на тест), иначе SQLite. На SQLite с одним соединением
// блокировки строк FOR UPDATE не конкурируют
func newContendedDB(t *testing.T) *gorm.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		return newTestDB(t)
	}
	log := zaptest.NewLogger(t)
	admin, err := database.ConnectPostgres(url, log)
	require.NoError(t, err)
	schema := "test_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	require.NoError(t, admin.Exec("CREATE SCHEMA "+schema).Error)
	t.Cleanup(func() {
		admin.Exec("DROP SCHEMA " + schema + " CASCADE")
		database.Close(admin)
	})

	db, err := database.ConnectPostgres(withSearchPath(url, schema), log)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	require.NoError(t, models.AutoMigrate(db, log))
	return db
}

func withSearchPath(url, schema string) string {
	if !strings.Contains(url, "://") {
		return url + " search_path=" + schema
	}
	if strings.Contains(url, "?") {
		return url + "&search_path=" + schema
	}
	return url + "?search_path=" + schema
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedIngredient(t *testing.T, ledger *StockLedger, name, qty, threshold string) *models.Ingredient {
	t.Helper()
	ing, err := ledger.CreateIngredient(context.Background(), IngredientInput{
		Name:             name,
		Quantity:         dec(qty),
		Unit:             models.UnitKilogram,
		UnitPrice:        dec("1.00"),
		ReorderThreshold: dec(threshold),
	}, "test")
	require.NoError(t, err)
	return ing
}

func seedMenuItem(t *testing.T, db *gorm.DB, name, price string, recipe map[string]string) *models.MenuItem {
	t.Helper()
	ctx := context.Background()
	item, err := NewMenuService(db, zap.NewNop()).Create(ctx, MenuItemInput{Name: name, Category: "main", Price: dec(price)})
	require.NoError(t, err)
	recipes := NewRecipeIndex(db, zap.NewNop())
	for ingredientID, qty := range recipe {
		_, err := recipes.Upsert(ctx, models.RecipeEntry{MenuItemID: item.ID, IngredientID: ingredientID, QuantityRequired: dec(qty)})
		require.NoError(t, err)
	}
	return item
}

func quantityOf(t *testing.T, ledger *StockLedger, id string) decimal.Decimal {
	t.Helper()
	ing, err := ledger.GetIngredient(context.Background(), id)
	require.NoError(t, err)
	return ing.Quantity
}

// fakeGateway программируемый платежный шлюз
type fakeGateway struct {
	mu            sync.Mutex
	createErr     error
	confirmErr    error
	confirmStatus string
	block         bool
	onConfirm     func()
	created       int
	lastAmount    int64
	lastKey       string
	cancelled     []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{confirmStatus: IntentStatusSucceeded}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amount int64, currency, key string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created++
	g.lastAmount = amount
	g.lastKey = key
	return &PaymentIntent{ID: fmt.Sprintf("pi_%d", g.created), Status: "requires_confirmation", Amount: amount, Currency: currency}, nil
}

func (g *fakeGateway) Confirm(ctx context.Context, intentID string, details CardDetails) (*PaymentIntent, error) {
	g.mu.Lock()
	block, confirmErr, status, hook := g.block, g.confirmErr, g.confirmStatus, g.onConfirm
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if confirmErr != nil {
		return nil, confirmErr
	}
	return &PaymentIntent{ID: intentID, Status: status}, nil
}

func (g *fakeGateway) Cancel(ctx context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, intentID)
	return nil
}

func (g *fakeGateway) Cancelled() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.cancelled...)
}

// testEngine собранное ядро поверх одной БД
type testEngine struct {
	db        *gorm.DB
	ledger    *StockLedger
	recipes   *RecipeIndex
	gate      *ServiceGate
	gateway   *fakeGateway
	publisher *events.MemoryPublisher
	metrics   *Metrics
	orders    *OrderService
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	return newTestEngineOn(t, newTestDB(t))
}

func newTestEngineOn(t *testing.T, db *gorm.DB) *testEngine {
	t.Helper()
	log := zaptest.NewLogger(t)
	metrics := NewMetrics()
	e := &testEngine{
		db:        db,
		ledger:    NewStockLedger(db, log),
		recipes:   NewRecipeIndex(db, log),
		gate:      NewServiceGate(db, nil, time.Minute, log, metrics),
		gateway:   newFakeGateway(),
		publisher: &events.MemoryPublisher{},
		metrics:   metrics,
	}
	require.NoError(t, e.gate.Load(context.Background()))
	e.orders = NewOrderService(OrderServiceConfig{
		DB:             db,
		Gate:           e.gate,
		Recipes:        e.recipes,
		Ledger:         e.ledger,
		Reconciler:     NewPaymentReconciler(e.gateway, "usd", log, metrics),
		Publisher:      e.publisher,
		Metrics:        metrics,
		Log:            log,
		PaymentTimeout: 200 * time.Millisecond,
		ReservationTTL: time.Minute,
	})
	return e
}

var (
	customer = models.Identity{ID: 7, Role: models.RoleCustomer}
	staff    = models.Identity{ID: 2, Role: models.RoleStaff}
)
