package database

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Отключаем логи для скорости
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Connect открывает БД по драйверу из конфигурации
func Connect(driver, databaseURL string, log *zap.Logger) (*gorm.DB, error) {
	switch driver {
	case "", "postgres":
		return ConnectPostgres(databaseURL, log)
	case "sqlite":
		return ConnectSQLite(databaseURL, log)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", driver)
	}
}

// ConnectPostgres подключается к PostgreSQL и возвращает *gorm.DB
func ConnectPostgres(databaseURL string, log *zap.Logger) (*gorm.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := gorm.Open(postgres.Open(databaseURL), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Каждый заказ держит блокировки строк ингредиентов, пул не должен быть узким местом
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("✅ PostgreSQL подключен успешно")
	return db, nil
}

// ConnectSQLite открывает SQLite для локальной разработки и тестов.
// Одно соединение: SQLite не умеет FOR UPDATE, запись сериализуется пулом
func ConnectSQLite(dsn string, log *zap.Logger) (*gorm.DB, error) {
	// В SQLite внешние ключи по умолчанию выключены
	if !strings.Contains(dsn, "_foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=1"
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	log.Info("✅ SQLite открыт", zap.String("dsn", dsn))
	return db, nil
}

// Close закрывает соединение с БД
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
