package api

import (
	"net/http"
	"time"

	"bistro/server/internal/events"
	"bistro/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps все, что нужно HTTP слою
type Deps struct {
	JWTSecret    string
	Ledger       *services.StockLedger
	Recipes      *services.RecipeIndex
	Menu         *services.MenuService
	Availability *services.AvailabilityService
	Orders       *services.OrderService
	Gate         *services.ServiceGate
	Hub          *Hub
	Publisher    events.Publisher
	Metrics      *services.Metrics
	Log          *zap.Logger
}

// AccessLog логирует каждый запрос: метод, путь, статус, задержка
func AccessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("🌐 request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// CORS для фронтенда
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// NewRouter собирает gin движок со всеми маршрутами
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Health check endpoint (до CORS и авторизации)
	r.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"service":      "bistro",
			"service_gate": d.Gate.Get(),
		})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	r.Use(AccessLog(d.Log))
	r.Use(CORS())

	apiGroup := r.Group("/api/v1")
	apiGroup.Use(IdentityMiddleware(d.JWTSecret))

	menuController := NewMenuController(d.Menu, d.Recipes, d.Availability, d.Log)
	stockController := NewStockController(d.Ledger, d.Publisher, d.Log)
	orderController := NewOrderController(d.Orders, d.Log)
	gateController := NewGateController(d.Gate, d.Publisher, d.Log)

	// Меню и доступность видят все
	apiGroup.GET("/menu", menuController.GetMenu)
	apiGroup.GET("/menu/availability/:id", menuController.GetAvailability)

	menuGroup := apiGroup.Group("/menu/items", RequireStaff())
	{
		menuGroup.GET("", menuController.ListItems)
		menuGroup.POST("", menuController.CreateItem)
		menuGroup.PUT("/:id", menuController.UpdateItem)
		menuGroup.DELETE("/:id", menuController.DeleteItem)
		menuGroup.GET("/:id/recipe", menuController.GetRecipe)
		menuGroup.PUT("/:id/recipe/:ingredient_id", menuController.PutRecipeEntry)
		menuGroup.DELETE("/:id/recipe/:ingredient_id", menuController.DeleteRecipeEntry)
	}

	inventoryGroup := apiGroup.Group("/inventory", RequireStaff())
	{
		inventoryGroup.GET("/ingredients", stockController.ListIngredients)
		inventoryGroup.POST("/ingredients", stockController.CreateIngredient)
		inventoryGroup.GET("/ingredients/:id", stockController.GetIngredient)
		inventoryGroup.PATCH("/ingredients/:id", stockController.UpdateIngredient)
		inventoryGroup.DELETE("/ingredients/:id", stockController.DeleteIngredient)
		inventoryGroup.GET("/ingredients/:id/movements", stockController.GetMovements)
		inventoryGroup.POST("/adjust", stockController.AdjustStock)
		inventoryGroup.GET("/low-stock", stockController.GetLowStock)
		inventoryGroup.POST("/restock", stockController.Restock)
		inventoryGroup.GET("/stock-orders", stockController.ListStockOrders)
	}

	ordersGroup := apiGroup.Group("/orders")
	{
		ordersGroup.POST("", orderController.CreateOrder)
		ordersGroup.GET("", orderController.ListOrders)
		ordersGroup.GET("/:id", orderController.GetOrder)
	}

	gateGroup := apiGroup.Group("/gate")
	{
		gateGroup.GET("", gateController.GetGate)
		gateGroup.PUT("", gateController.SetGate)
		if d.Hub != nil {
			gateGroup.GET("/ws", d.Hub.ServeWS)
		}
	}

	return r
}
