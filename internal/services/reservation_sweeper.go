package services

import (
	"context"
	"strconv"
	"time"

	"bistro/server/internal/events"
	"bistro/server/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sweepLockKey   = "bistro:reservation_sweeper"
	sweepBatchSize = 100
)

// AttemptExpirer закрывает брошенные попытки оплаты (OrderService)
type AttemptExpirer interface {
	ExpireAttempts(ctx context.Context, now time.Time, limit int) (int, error)
}

// ReservationSweeper возвращает на склад резервы, брошенные после падения
// процесса или обрыва клиента, и освобождает их ключи идемпотентности
type ReservationSweeper struct {
	ledger    *StockLedger
	attempts  AttemptExpirer
	interval  time.Duration
	redis     *utils.RedisClient // опционально: один инстанс чистит за раз
	owner     string
	log       *zap.Logger
	metrics   *Metrics
	publisher events.Publisher
	now       func() time.Time
}

// NewReservationSweeper создает новый экземпляр ReservationSweeper
func NewReservationSweeper(ledger *StockLedger, interval time.Duration, redisUtil *utils.RedisClient, log *zap.Logger, metrics *Metrics) *ReservationSweeper {
	return &ReservationSweeper{
		ledger:    ledger,
		interval:  interval,
		redis:     redisUtil,
		owner:     uuid.New().String(),
		log:       log,
		metrics:   metrics,
		publisher: events.NoopPublisher{},
		now:       time.Now,
	}
}

// WithPublisher отправлять событие о каждом проходе, освободившем резервы
func (s *ReservationSweeper) WithPublisher(p events.Publisher) *ReservationSweeper {
	if p != nil {
		s.publisher = p
	}
	return s
}

// WithAttempts закрывать просроченные попытки оплаты вместе с резервами
func (s *ReservationSweeper) WithAttempts(a AttemptExpirer) *ReservationSweeper {
	s.attempts = a
	return s
}

// Start запускает фоновую очистку до отмены ctx
func (s *ReservationSweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("🧹 Очистка просроченных резервов запущена", zap.Duration("interval", s.interval))
		for {
			select {
			case <-ticker.C:
				s.SweepOnce(ctx)
			case <-ctx.Done():
				s.log.Info("🛑 Очистка резервов остановлена")
				return
			}
		}
	}()
}

// SweepOnce один проход очистки, возвращает число освобожденных резервов
func (s *ReservationSweeper) SweepOnce(ctx context.Context) int {
	if s.redis != nil {
		ok, err := s.redis.TryLock(ctx, sweepLockKey, s.owner, s.interval)
		if err != nil {
			// Redis недоступен: чистим без блокировки
			s.log.Warn("⚠️ Блокировка очистки недоступна", zap.Error(err))
		} else if !ok {
			return 0
		} else {
			defer func() {
				if err := s.redis.Unlock(context.WithoutCancel(ctx), sweepLockKey, s.owner); err != nil {
					s.log.Warn("⚠️ Не удалось снять блокировку очистки", zap.Error(err))
				}
			}()
		}
	}

	now := s.now()
	released, err := s.ledger.ReleaseExpired(ctx, now, sweepBatchSize)
	if err != nil {
		s.log.Error("❌ Ошибка очистки резервов", zap.Error(err))
		return 0
	}
	if s.attempts != nil {
		if closed, err := s.attempts.ExpireAttempts(ctx, now, sweepBatchSize); err != nil {
			s.log.Error("❌ Ошибка закрытия брошенных попыток оплаты", zap.Error(err))
		} else if closed > 0 {
			s.log.Info("🧹 Закрыты брошенные попытки оплаты", zap.Int("count", closed))
		}
	}
	if released > 0 {
		s.metrics.ObserveRelease("expired", released)
		s.log.Info("🧹 Освобождены просроченные резервы", zap.Int("count", released))
		ev := events.Event{
			Type:       events.TypeReservationReleased,
			Key:        sweepLockKey,
			Attributes: map[string]string{"cause": "expired", "count": strconv.Itoa(released)},
		}
		if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
			s.log.Warn("⚠️ Не удалось отправить событие", zap.String("type", ev.Type), zap.Error(err))
		}
	}
	return released
}
