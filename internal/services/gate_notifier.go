package services

import (
	"context"
	"fmt"
	"time"

	"bistro/server/internal/models"
	"bistro/server/internal/utils"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GateUpdateChannel канал Pub/Sub и LISTEN/NOTIFY для изменений флага
const GateUpdateChannel = "service_gate_update"

// GateNotifier рассылает факт изменения флага другим инстансам.
// Полезная нагрузка только подсказка: получатель перечитывает строку из БД
type GateNotifier interface {
	Notify(ctx context.Context, state models.GateState) error
	// Listen возвращает канал сигналов "перечитай флаг". Закрывается по ctx
	Listen(ctx context.Context) (<-chan struct{}, error)
}

// signal неблокирующая отправка, сигналы схлопываются
func signal(out chan struct{}) {
	select {
	case out <- struct{}{}:
	default:
	}
}

// NoopGateNotifier один инстанс, рассылка не нужна
type NoopGateNotifier struct{}

func (NoopGateNotifier) Notify(context.Context, models.GateState) error { return nil }

func (NoopGateNotifier) Listen(ctx context.Context) (<-chan struct{}, error) {
	out := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

// RedisGateNotifier рассылка через Redis Pub/Sub
type RedisGateNotifier struct {
	redis *utils.RedisClient
	log   *zap.Logger
}

// NewRedisGateNotifier создает notifier поверх Redis
func NewRedisGateNotifier(redisUtil *utils.RedisClient, log *zap.Logger) *RedisGateNotifier {
	return &RedisGateNotifier{redis: redisUtil, log: log}
}

func (n *RedisGateNotifier) Notify(ctx context.Context, state models.GateState) error {
	return n.redis.Publish(ctx, GateUpdateChannel, string(state))
}

func (n *RedisGateNotifier) Listen(ctx context.Context) (<-chan struct{}, error) {
	msgs, closeFn, err := n.redis.Subscribe(ctx, GateUpdateChannel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", GateUpdateChannel, err)
	}
	n.log.Info("👂 Слушаем канал Redis", zap.String("channel", GateUpdateChannel))

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() {
			if err := closeFn(); err != nil {
				n.log.Warn("⚠️ Ошибка закрытия Pub/Sub", zap.Error(err))
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if ok {
					n.log.Debug("🔔 Получено событие флага из Redis", zap.String("payload", msg.Payload))
					signal(out)
					continue
				}
				// Канал закрыт, переподписываемся
				n.log.Warn("⚠️ Pub/Sub канал закрыт, переподписываемся...")
				for {
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Second):
					}
					msgs, closeFn, err = n.redis.Subscribe(ctx, GateUpdateChannel)
					if err == nil {
						break
					}
					n.log.Warn("⚠️ Переподписка не удалась", zap.Error(err))
				}
				// Пока не были подписаны, могли пропустить изменение
				signal(out)
			}
		}
	}()
	return out, nil
}

// PostgresGateNotifier рассылка через LISTEN/NOTIFY той же БД, что хранит флаг
type PostgresGateNotifier struct {
	db  *gorm.DB
	dsn string
	log *zap.Logger
}

// NewPostgresGateNotifier создает notifier поверх Postgres
func NewPostgresGateNotifier(db *gorm.DB, dsn string, log *zap.Logger) *PostgresGateNotifier {
	return &PostgresGateNotifier{db: db, dsn: dsn, log: log}
}

func (n *PostgresGateNotifier) Notify(ctx context.Context, state models.GateState) error {
	return n.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", GateUpdateChannel, string(state)).Error
}

func (n *PostgresGateNotifier) Listen(ctx context.Context) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)
	listener := pq.NewListener(n.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			n.log.Warn("⚠️ LISTEN соединение потеряно", zap.Error(err))
		case pq.ListenerEventReconnected:
			n.log.Info("✅ LISTEN соединение восстановлено")
			signal(out)
		}
	})
	if err := listener.Listen(GateUpdateChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to LISTEN %s: %w", GateUpdateChannel, err)
	}
	n.log.Info("👂 Слушаем канал Postgres", zap.String("channel", GateUpdateChannel))

	go func() {
		defer close(out)
		defer listener.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case notification := <-listener.Notify:
				// nil приходит после переподключения
				if notification != nil {
					n.log.Debug("🔔 Получено событие флага из Postgres", zap.String("payload", notification.Extra))
				}
				signal(out)
			case <-time.After(90 * time.Second):
				go listener.Ping()
			}
		}
	}()
	return out, nil
}
