package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bistro/server/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceGate флаг Accepting/Busy. Авторитетное значение - строка в БД,
// локально держим атомарное зеркало для дешевого чтения
type ServiceGate struct {
	db              *gorm.DB
	notifier        GateNotifier
	log             *zap.Logger
	metrics         *Metrics
	refreshInterval time.Duration

	current atomic.Pointer[models.ServiceGateState]

	mu     sync.Mutex
	subs   map[int]chan models.ServiceGateState
	nextID int
}

// NewServiceGate создает флаг. До Load считается Accepting
func NewServiceGate(db *gorm.DB, notifier GateNotifier, refreshInterval time.Duration, log *zap.Logger, metrics *Metrics) *ServiceGate {
	if notifier == nil {
		notifier = NoopGateNotifier{}
	}
	if refreshInterval <= 0 {
		refreshInterval = 5 * time.Minute
	}
	g := &ServiceGate{
		db:              db,
		notifier:        notifier,
		log:             log,
		metrics:         metrics,
		refreshInterval: refreshInterval,
		subs:            make(map[int]chan models.ServiceGateState),
	}
	g.current.Store(&models.ServiceGateState{ID: models.ServiceGateID, State: models.GateAccepting})
	return g
}

// Get дешевое чтение текущего значения
func (g *ServiceGate) Get() models.GateState {
	return g.current.Load().State
}

// Current текущее значение с автором и временем изменения
func (g *ServiceGate) Current() models.ServiceGateState {
	return *g.current.Load()
}

// CheckAccepting отказ ServiceBusy, если прием закрыт
func (g *ServiceGate) CheckAccepting() error {
	if g.Get() == models.GateBusy {
		return Reject(ReasonServiceBusy, nil, "orders are not being accepted right now")
	}
	return nil
}

// Load читает строку из БД и обновляет зеркало
func (g *ServiceGate) Load(ctx context.Context) error {
	var row models.ServiceGateState
	err := g.db.WithContext(ctx).
		Where(models.ServiceGateState{ID: models.ServiceGateID}).
		Attrs(models.ServiceGateState{State: models.GateAccepting, UpdatedBy: "system", UpdatedAt: time.Now().UTC()}).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("failed to load service gate: %w", err)
	}
	g.apply(row)
	return nil
}

// Set меняет флаг. Только сотрудник или администратор
func (g *ServiceGate) Set(ctx context.Context, state models.GateState, who models.Identity) (models.ServiceGateState, error) {
	if !who.Role.IsStaff() {
		return models.ServiceGateState{}, fmt.Errorf("%w: only staff can change the service gate", ErrForbidden)
	}
	if !state.Valid() {
		return models.ServiceGateState{}, fmt.Errorf("%w: unknown gate state %q", ErrInvalidInput, state)
	}

	var row models.ServiceGateState
	err := runInTx(ctx, g.db, func(tx *gorm.DB) error {
		res := tx.Model(&models.ServiceGateState{}).
			Where("id = ?", models.ServiceGateID).
			Updates(map[string]interface{}{
				"state":      state,
				"updated_by": who.Actor(),
				"updated_at": time.Now().UTC(),
				"version":    gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Create(&models.ServiceGateState{
				ID:        models.ServiceGateID,
				State:     state,
				Version:   1,
				UpdatedBy: who.Actor(),
				UpdatedAt: time.Now().UTC(),
			}).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", models.ServiceGateID).First(&row).Error
	})
	if err != nil {
		return models.ServiceGateState{}, fmt.Errorf("failed to save service gate: %w", err)
	}

	g.apply(row)
	g.log.Info("🚦 Флаг приема заказов изменен", zap.String("state", string(state)), zap.String("by", row.UpdatedBy))

	// Другие инстансы подхватят изменение по таймеру, если рассылка не прошла
	if err := g.notifier.Notify(ctx, state); err != nil {
		g.log.Warn("⚠️ Не удалось разослать изменение флага", zap.Error(err))
	}
	return row, nil
}

// Run слушает уведомления других инстансов и периодически перечитывает строку
func (g *ServiceGate) Run(ctx context.Context) {
	signals, err := g.notifier.Listen(ctx)
	if err != nil {
		g.log.Warn("⚠️ Рассылка флага недоступна, работаем только по таймеру", zap.Error(err))
		signals = nil
	}

	ticker := time.NewTicker(g.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			g.refresh(ctx)
		case <-ticker.C:
			g.refresh(ctx)
		}
	}
}

func (g *ServiceGate) refresh(ctx context.Context) {
	if err := g.Load(ctx); err != nil && ctx.Err() == nil {
		g.log.Warn("⚠️ Не удалось перечитать флаг", zap.Error(err))
	}
}

// apply обновляет зеркало и уведомляет подписчиков. Более старая версия игнорируется
func (g *ServiceGate) apply(row models.ServiceGateState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.current.Load()
	if row.Version < prev.Version {
		return
	}
	g.current.Store(&row)
	g.metrics.SetGateBusy(row.State == models.GateBusy)
	if row.Version == prev.Version && row.State == prev.State {
		return
	}

	for _, ch := range g.subs {
		// Нужен только последний флаг: вытесняем устаревшее значение
		select {
		case ch <- row:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- row:
			default:
			}
		}
	}
}

// Subscribe канал изменений флага для push-клиентов. Вызывающий обязан вызвать unsubscribe
func (g *ServiceGate) Subscribe() (<-chan models.ServiceGateState, func()) {
	ch := make(chan models.ServiceGateState, 1)
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.subs[id] = ch
	g.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
		})
	}
}
