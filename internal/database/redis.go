package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConnectRedis подключается к Redis (с поддержкой Sentinel)
// Если указаны sentinelAddrs и masterName, используется Sentinel
// Иначе используется прямое подключение через redisURL
func ConnectRedis(redisURL string, sentinelAddrs []string, masterName string, log *zap.Logger) (*redis.Client, error) {
	if len(sentinelAddrs) > 0 && masterName != "" {
		return ConnectRedisWithSentinel(sentinelAddrs, masterName, "", log)
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	// Redis нужен для Pub/Sub флага и блокировки очистки резервов, большой пул не требуется
	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.MaxRetries = 3

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("✅ Redis connected successfully (direct connection)")
	return client, nil
}

// ConnectRedisWithSentinel подключается к Redis через Sentinel
func ConnectRedisWithSentinel(sentinelAddrs []string, masterName, password string, log *zap.Logger) (*redis.Client, error) {
	if len(sentinelAddrs) == 0 {
		return nil, fmt.Errorf("no Sentinel addresses provided")
	}

	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    masterName,
		SentinelAddrs: sentinelAddrs,
		Password:      password,
		PoolSize:      20,
		MinIdleConns:  2,
		MaxRetries:    3,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
	})

	// Для Sentinel таймаут больше
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis Sentinel: %w", err)
	}

	log.Info("✅ Redis Sentinel connected successfully",
		zap.String("master", masterName), zap.Strings("sentinels", sentinelAddrs))
	return client, nil
}

// CloseRedis закрывает подключение к Redis
func CloseRedis(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
