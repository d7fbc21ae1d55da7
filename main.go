package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"bistro/server/internal/api"
	"bistro/server/internal/config"
	"bistro/server/internal/database"
	"bistro/server/internal/events"
	"bistro/server/internal/logging"
	"bistro/server/internal/models"
	"bistro/server/internal/seed"
	"bistro/server/internal/services"
	"bistro/server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app общие зависимости всех команд
type app struct {
	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "bistro",
		Short:        "Inventory consumption and order settlement engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env необязателен: в production переменные задает окружение
			envLoaded := godotenv.Load() == nil

			a.cfg = config.Load()
			log, err := logging.New(a.cfg.Environment, a.cfg.LogLevel)
			if err != nil {
				return err
			}
			a.log = log
			if envLoaded {
				a.log.Info("✅ Переменные окружения загружены из .env файла")
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.AddCommand(a.serveCmd(), a.migrateCmd(), a.seedCmd(), a.tokenCmd())
	return root
}

// safeURL скрывает пароль в строке подключения
func safeURL(raw string) string {
	if idx := strings.Index(raw, "@"); idx > 0 {
		if schemeIdx := strings.Index(raw, "://"); schemeIdx > 0 {
			return raw[:schemeIdx+3] + "***@" + raw[idx+1:]
		}
	}
	return raw
}

func (a *app) openDB() (*gorm.DB, error) {
	a.log.Info("📋 База данных", zap.String("driver", a.cfg.DatabaseDriver), zap.String("url", safeURL(a.cfg.DatabaseURL)))
	db, err := database.Connect(a.cfg.DatabaseDriver, a.cfg.DatabaseURL, a.log)
	if err != nil {
		return nil, err
	}
	if err := models.AutoMigrate(db, a.log); err != nil {
		database.Close(db)
		return nil, err
	}
	return db, nil
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer database.Close(db)
			a.log.Info("✅ Database migrations completed")
			return nil
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load ingredients, menu items and recipes from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = a.cfg.SeedFile
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer database.Close(db)

			loader := seed.NewLoader(
				services.NewStockLedger(db, a.log),
				services.NewMenuService(db, a.log),
				services.NewRecipeIndex(db, a.log),
				a.log,
			)
			summary, err := loader.LoadFile(cmd.Context(), file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingredients: %d, menu items: %d, recipe entries: %d\n",
				summary.IngredientsCreated, summary.MenuItemsCreated, summary.RecipeEntries)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (default $SEED_FILE)")
	return cmd
}

// tokenCmd выпускает токен для локальной разработки. В production токены выдает провайдер идентификации
func (a *app) tokenCmd() *cobra.Command {
	var (
		id   int64
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development identity token",
		RunE: func(cmd *cobra.Command, args []string) error {
			who := models.Identity{ID: id, Role: models.Role(role)}
			if !who.Role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := api.SignIdentity(a.cfg.JWTSecret, who, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 1, "identity ID")
	cmd.Flags().StringVar(&role, "role", string(models.RoleStaff), "Customer | Staff | Admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) connectRedis() *utils.RedisClient {
	needRedis := a.cfg.GateNotifier == "redis"
	if !needRedis && len(a.cfg.RedisSentinelAddrs) == 0 && os.Getenv("REDIS_URL") == "" {
		return nil
	}
	client, err := database.ConnectRedis(a.cfg.RedisURL, a.cfg.RedisSentinelAddrs, a.cfg.RedisMasterName, a.log)
	if err != nil {
		a.log.Warn("⚠️ Redis недоступен, продолжаем без него", zap.Error(err))
		return nil
	}
	return utils.NewRedisClient(client)
}

func (a *app) gateNotifier(db *gorm.DB, redisUtil *utils.RedisClient) services.GateNotifier {
	switch a.cfg.GateNotifier {
	case "redis":
		if redisUtil != nil {
			return services.NewRedisGateNotifier(redisUtil, a.log)
		}
		a.log.Warn("⚠️ GATE_NOTIFIER=redis, но Redis недоступен: флаг обновляется только по таймеру")
	case "postgres":
		if a.cfg.DatabaseDriver != "sqlite" {
			return services.NewPostgresGateNotifier(db, a.cfg.DatabaseURL, a.log)
		}
		a.log.Warn("⚠️ LISTEN/NOTIFY недоступен для sqlite")
	}
	return services.NoopGateNotifier{}
}

func (a *app) publisher(ctx context.Context) events.Publisher {
	brokers := events.ParseKafkaBrokers(a.cfg.KafkaBrokers)
	if len(brokers) == 0 {
		a.log.Info("ℹ️ KAFKA_BROKERS не задан, события не публикуются")
		return events.NoopPublisher{}
	}
	auth := events.KafkaAuth{
		Username: a.cfg.KafkaUsername,
		Password: a.cfg.KafkaPassword,
		CACert:   a.cfg.KafkaCACert,
	}
	topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := events.EnsureTopic(topicCtx, events.CreateKafkaDialer(auth, a.log), brokers[0], a.cfg.KafkaTopic, 3); err != nil {
		a.log.Warn("⚠️ Не удалось проверить топик Kafka", zap.String("topic", a.cfg.KafkaTopic), zap.Error(err))
	}
	a.log.Info("📡 События публикуются в Kafka", zap.Strings("brokers", brokers), zap.String("topic", a.cfg.KafkaTopic))
	return events.NewKafkaPublisher(brokers, a.cfg.KafkaTopic, auth, a.log)
}

func (a *app) serve(ctx context.Context) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close(db)

	redisUtil := a.connectRedis()
	if redisUtil != nil {
		defer database.CloseRedis(redisUtil.GetClient())
	}

	publisher := a.publisher(ctx)
	defer publisher.Close()

	metrics := services.NewMetrics()
	ledger := services.NewStockLedger(db, a.log)
	recipes := services.NewRecipeIndex(db, a.log)

	gate := services.NewServiceGate(db, a.gateNotifier(db, redisUtil), a.cfg.GateRefreshInterval, a.log, metrics)
	if err := gate.Load(ctx); err != nil {
		return fmt.Errorf("failed to load service gate: %w", err)
	}
	go gate.Run(ctx)

	var gateway services.PaymentGateway
	if a.cfg.PaymentGatewayURL != "" {
		gateway = services.NewHTTPGateway(a.cfg.PaymentGatewayURL, a.cfg.PaymentGatewaySecret, a.cfg.PaymentTimeout)
	} else {
		a.log.Warn("⚠️ PAYMENT_GATEWAY_URL не задан: оплата картой будет отклоняться")
	}

	orders := services.NewOrderService(services.OrderServiceConfig{
		DB:             db,
		Gate:           gate,
		Recipes:        recipes,
		Ledger:         ledger,
		Reconciler:     services.NewPaymentReconciler(gateway, a.cfg.Currency, a.log, metrics),
		Publisher:      publisher,
		Metrics:        metrics,
		Log:            a.log,
		PaymentTimeout: a.cfg.PaymentTimeout,
		ReservationTTL: a.cfg.ReservationTTL(),
	})

	services.NewReservationSweeper(ledger, a.cfg.SweepInterval, redisUtil, a.log, metrics).
		WithPublisher(publisher).
		WithAttempts(orders).
		Start(ctx)

	hub := api.NewHub(gate, a.log)
	hub.Start(ctx)

	if a.cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		JWTSecret:    a.cfg.JWTSecret,
		Ledger:       ledger,
		Recipes:      recipes,
		Menu:         services.NewMenuService(db, a.log),
		Availability: services.NewAvailabilityService(db, ledger, recipes),
		Orders:       orders,
		Gate:         gate,
		Hub:          hub,
		Publisher:    publisher,
		Metrics:      metrics,
		Log:          a.log,
	})
	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + a.cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	orderGRPC := api.NewOrderGRPCServer(orders, gate, a.cfg.JWTSecret, a.log)
	grpcServer := orderGRPC.NewGRPCServer()
	lis, err := net.Listen("tcp", ":"+a.cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		a.log.Info("📡 gRPC Server starting", zap.String("port", a.cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		a.log.Info("🚀 Server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	go a.logMemoryStats(ctx)

	select {
	case <-ctx.Done():
		a.log.Info("🛑 Получен сигнал остановки")
	case err := <-errCh:
		a.log.Error("❌ Сервер остановился с ошибкой", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("⚠️ HTTP shutdown", zap.Error(err))
	}
	orderGRPC.Shutdown(shutdownCtx, grpcServer)
	a.log.Info("👋 Server stopped")
	return nil
}

// logMemoryStats периодически логирует статистику памяти и горутин
func (a *app) logMemoryStats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		heapAllocMB := float64(m.HeapAlloc) / 1024 / 1024
		numGoroutines := runtime.NumGoroutine()

		a.log.Debug("💾 Memory Stats",
			zap.Float64("heap_alloc_mb", heapAllocMB),
			zap.Float64("sys_mb", float64(m.Sys)/1024/1024),
			zap.Uint32("gc", m.NumGC),
			zap.Int("goroutines", numGoroutines))

		if numGoroutines > 1000 {
			a.log.Warn("⚠️ High number of goroutines detected", zap.Int("goroutines", numGoroutines))
		}
		if heapAllocMB > 500 {
			a.log.Warn("⚠️ High memory usage detected", zap.Float64("heap_alloc_mb", heapAllocMB))
		}
	}
}
