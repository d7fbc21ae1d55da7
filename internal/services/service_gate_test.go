package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"bistro/server/internal/models"
	"bistro/server/internal/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// busNotifier рассылка внутри процесса для нескольких флагов над одной БД
type busNotifier struct {
	mu        sync.Mutex
	listeners []chan struct{}
}

func (b *busNotifier) Notify(ctx context.Context, state models.GateState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.listeners {
		signal(ch)
	}
	return nil
}

func (b *busNotifier) Listen(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.listeners = append(b.listeners, ch)
	b.mu.Unlock()
	return ch, nil
}

func TestGateSetRequiresStaff(t *testing.T) {
	ctx := context.Background()
	gate := NewServiceGate(newTestDB(t), nil, time.Minute, zaptest.NewLogger(t), nil)
	require.NoError(t, gate.Load(ctx))

	_, err := gate.Set(ctx, models.GateBusy, customer)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, models.GateAccepting, gate.Get())

	_, err = gate.Set(ctx, models.GateState("Closed"), staff)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGateSetPersistsAndNotifiesSubscribers(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	metrics := NewMetrics()
	gate := NewServiceGate(db, nil, time.Minute, zaptest.NewLogger(t), metrics)
	require.NoError(t, gate.Load(ctx))

	updates, unsubscribe := gate.Subscribe()
	defer unsubscribe()

	row, err := gate.Set(ctx, models.GateBusy, staff)
	require.NoError(t, err)
	assert.Equal(t, "Staff:2", row.UpdatedBy)
	assert.Equal(t, int64(1), row.Version)

	select {
	case got := <-updates:
		assert.Equal(t, models.GateBusy, got.State)
	case <-time.After(time.Second):
		t.Fatal("subscriber was not notified")
	}
	assert.ErrorIs(t, gate.CheckAccepting(), ErrServiceBusy)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GateBusy))

	// Новый инстанс читает то же значение из БД
	other := NewServiceGate(db, nil, time.Minute, zaptest.NewLogger(t), nil)
	require.NoError(t, other.Load(ctx))
	assert.Equal(t, models.GateBusy, other.Get())
}

func TestGateSubscriberKeepsOnlyLatest(t *testing.T) {
	ctx := context.Background()
	gate := NewServiceGate(newTestDB(t), nil, time.Minute, zaptest.NewLogger(t), nil)
	require.NoError(t, gate.Load(ctx))

	updates, unsubscribe := gate.Subscribe()
	defer unsubscribe()

	_, err := gate.Set(ctx, models.GateBusy, staff)
	require.NoError(t, err)
	_, err = gate.Set(ctx, models.GateAccepting, staff)
	require.NoError(t, err)

	got := <-updates
	assert.Equal(t, models.GateAccepting, got.State)
	assert.Equal(t, int64(2), got.Version)
	select {
	case extra := <-updates:
		t.Fatalf("unexpected stale update %+v", extra)
	default:
	}
}

func TestGateIgnoresStaleVersion(t *testing.T) {
	gate := NewServiceGate(nil, nil, time.Minute, zaptest.NewLogger(t), nil)
	gate.apply(models.ServiceGateState{ID: models.ServiceGateID, State: models.GateBusy, Version: 5})
	gate.apply(models.ServiceGateState{ID: models.ServiceGateID, State: models.GateAccepting, Version: 4})
	assert.Equal(t, models.GateBusy, gate.Get())
	assert.Equal(t, int64(5), gate.Current().Version)
}

func TestGateInstancesConvergeThroughNotifier(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	db := newTestDB(t)
	bus := &busNotifier{}

	a := NewServiceGate(db, bus, time.Hour, zaptest.NewLogger(t), nil)
	b := NewServiceGate(db, bus, time.Hour, zaptest.NewLogger(t), nil)
	require.NoError(t, a.Load(ctx))
	require.NoError(t, b.Load(ctx))
	go b.Run(ctx)

	// Run подписывается асинхронно
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.listeners) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := a.Set(ctx, models.GateBusy, models.Identity{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return b.Get() == models.GateBusy }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Admin:1", b.Current().UpdatedBy)
}

func TestRedisGateNotifierSignalsListeners(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	notifier := NewRedisGateNotifier(utils.NewRedisClient(client), zaptest.NewLogger(t))

	signals, err := notifier.Listen(ctx)
	require.NoError(t, err)

	require.NoError(t, notifier.Notify(ctx, models.GateBusy))
	select {
	case <-signals:
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh signal received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-signals:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
