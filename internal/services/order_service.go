package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"bistro/server/internal/events"
	"bistro/server/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderPhase шаг оформления заказа на сервере
type OrderPhase string

const (
	PhaseValidating      OrderPhase = "Validating"
	PhaseReserving       OrderPhase = "Reserving"
	PhaseAwaitingPayment OrderPhase = "AwaitingPayment"
	PhaseCommitted       OrderPhase = "Committed"
	PhaseRejected        OrderPhase = "Rejected"
)

var phaseTransitions = map[OrderPhase][]OrderPhase{
	PhaseValidating:      {PhaseReserving, PhaseRejected},
	PhaseReserving:       {PhaseAwaitingPayment, PhaseRejected},
	PhaseAwaitingPayment: {PhaseCommitted, PhaseRejected},
}

// CanTransitionTo проверяет, разрешен ли переход (State Machine)
func (p OrderPhase) CanTransitionTo(next OrderPhase) bool {
	for _, allowed := range phaseTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PlaceOrderRequest корзина и способ оплаты от клиента
type PlaceOrderRequest struct {
	Identity       models.Identity
	Lines          []models.CartLine
	Method         models.PaymentMethod
	Tendered       decimal.Decimal
	Card           CardDetails
	IdempotencyKey string
}

// OrderResult итог оформления
type OrderResult struct {
	Status   models.OrderStatus `json:"status"`
	Order    *models.Order      `json:"order,omitempty"`
	Reason   RejectReason       `json:"reason,omitempty"`
	Details  []string           `json:"details,omitempty"`
	Trail    []OrderPhase       `json:"trail"`
	Replayed bool               `json:"replayed,omitempty"`
}

// placement текущее оформление: фаза и пройденный путь
type placement struct {
	phase OrderPhase
	trail []OrderPhase
}

func newPlacement() *placement {
	return &placement{phase: PhaseValidating, trail: []OrderPhase{PhaseValidating}}
}

func (p *placement) advance(next OrderPhase) error {
	if !p.phase.CanTransitionTo(next) {
		return fmt.Errorf("%w: order phase %s -> %s", ErrConsistencyViolation, p.phase, next)
	}
	p.phase = next
	p.trail = append(p.trail, next)
	return nil
}

// OrderService автомат оформления заказа:
// Validating -> Reserving -> AwaitingPayment -> Committed | Rejected
type OrderService struct {
	db             *gorm.DB
	gate           *ServiceGate
	recipes        *RecipeIndex
	ledger         *StockLedger
	reconciler     *PaymentReconciler
	publisher      events.Publisher
	metrics        *Metrics
	log            *zap.Logger
	paymentTimeout time.Duration
	reservationTTL time.Duration
	now            func() time.Time
}

// OrderServiceConfig зависимости OrderService
type OrderServiceConfig struct {
	DB             *gorm.DB
	Gate           *ServiceGate
	Recipes        *RecipeIndex
	Ledger         *StockLedger
	Reconciler     *PaymentReconciler
	Publisher      events.Publisher
	Metrics        *Metrics
	Log            *zap.Logger
	PaymentTimeout time.Duration
	ReservationTTL time.Duration
}

// NewOrderService создает новый экземпляр OrderService
func NewOrderService(cfg OrderServiceConfig) *OrderService {
	if cfg.Publisher == nil {
		cfg.Publisher = events.NoopPublisher{}
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 30 * time.Second
	}
	if cfg.ReservationTTL < cfg.PaymentTimeout {
		cfg.ReservationTTL = cfg.PaymentTimeout
	}
	return &OrderService{
		db:             cfg.DB,
		gate:           cfg.Gate,
		recipes:        cfg.Recipes,
		ledger:         cfg.Ledger,
		reconciler:     cfg.Reconciler,
		publisher:      cfg.Publisher,
		metrics:        cfg.Metrics,
		log:            cfg.Log,
		paymentTimeout: cfg.PaymentTimeout,
		reservationTTL: cfg.ReservationTTL,
		now:            time.Now,
	}
}

// PlaceOrder оформляет корзину. Отказ возвращается и в результате, и как *RejectionError.
// Прочие ошибки (БД недоступна) возвращаются без результата
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	p := newPlacement()
	fingerprint := cartHash(req)

	// 1. Validating. Закрытый ключ отвечает сохраненным итогом даже при Busy
	if req.IdempotencyKey != "" {
		replay, err := s.replayAttempt(ctx, p, req, fingerprint)
		if replay != nil || err != nil {
			return replay, err
		}
	}
	if err := s.gate.CheckAccepting(); err != nil {
		return s.rejected(ctx, p, req, false, err)
	}
	order, err := s.buildOrder(ctx, req)
	var rej *RejectionError
	switch {
	case errors.As(err, &rej):
		return s.rejected(ctx, p, req, false, rej)
	case err != nil:
		return s.aborted(err)
	}

	if req.IdempotencyKey != "" {
		replay, err := s.beginAttempt(ctx, p, req, fingerprint)
		if replay != nil || err != nil {
			return replay, err
		}
	}

	// 2. Reserving
	if err := p.advance(PhaseReserving); err != nil {
		return s.failed(ctx, req, err)
	}
	requirements, err := s.recipes.RequirementsFor(ctx, req.Lines)
	if err != nil {
		return s.failed(ctx, req, err)
	}
	var reservation *models.StockReservation
	if len(requirements) > 0 {
		reservation, err = s.ledger.Reserve(ctx, requirements, s.reservationTTL, req.Identity.Actor())
		var shortage *InsufficientStockError
		switch {
		case errors.As(err, &shortage):
			return s.rejected(ctx, p, req, true, Reject(ReasonInsufficientStock, err, shortage.Details()...))
		case err != nil:
			return s.failed(ctx, req, err)
		}
		order.ReservationID = reservation.ID
		if err := s.attachReservation(ctx, req.IdempotencyKey, reservation.ID); err != nil {
			s.releaseReservation(ctx, reservation, "attempt update failed")
			return s.failed(ctx, req, err)
		}
	}

	// 3. AwaitingPayment
	if err := p.advance(PhaseAwaitingPayment); err != nil {
		s.releaseReservation(ctx, reservation, "phase error")
		return s.failed(ctx, req, err)
	}
	payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	settlement, err := s.reconciler.Settle(payCtx, PaymentRequest{
		Method:         req.Method,
		Total:          order.TotalAmount,
		Tendered:       req.Tendered,
		Card:           req.Card,
		IdempotencyKey: req.IdempotencyKey,
	})
	cancel()
	if err != nil {
		s.releaseReservation(ctx, reservation, "payment failed")
		return s.rejected(ctx, p, req, true, asRejection(err, ReasonPaymentGatewayFailure))
	}

	// 4. Committed. Деньги уже приняты: фиксируем даже если клиент отключился
	order.AmountTendered = settlement.Tendered
	order.Change = settlement.Change
	order.PaymentIntentID = settlement.IntentID
	commitCtx := context.WithoutCancel(ctx)
	if err := s.commit(commitCtx, order, req.IdempotencyKey); err != nil {
		s.log.Error("❌ Не удалось зафиксировать оплаченный заказ, отменяем оплату",
			zap.String("order_id", order.ID), zap.Error(err))
		s.reconciler.Void(commitCtx, settlement.IntentID)
		s.releaseReservation(commitCtx, reservation, "commit failed")
		if errors.Is(err, ErrReservationNotHeld) {
			return s.rejected(ctx, p, req, true,
				Reject(ReasonPaymentGatewayFailure, err, "payment took longer than the stock reservation window"))
		}
		return s.failed(ctx, req, err)
	}
	if err := p.advance(PhaseCommitted); err != nil {
		return s.failed(ctx, req, err)
	}

	s.metrics.ObserveOrder("committed", "")
	s.log.Info("✅ Заказ оплачен",
		zap.String("order_id", order.ID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.String("method", string(order.PaymentMethod)),
		zap.String("by", req.Identity.Actor()))
	s.publish(ctx, events.Event{
		Type: events.TypeOrderCommitted,
		Key:  order.ID,
		Attributes: map[string]string{
			"total":          order.TotalAmount.StringFixed(2),
			"payment_method": string(order.PaymentMethod),
			"reservation_id": order.ReservationID,
		},
		Payload: order,
	})

	return &OrderResult{Status: models.OrderStatusPaid, Order: order, Trail: p.trail}, nil
}

// buildOrder проверяет корзину и считает сумму по текущим ценам меню
// Отказ возвращается как *RejectionError, ошибка БД - как есть
func (s *OrderService) buildOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error) {
	var details []string
	if len(req.Lines) == 0 {
		details = append(details, "cart is empty")
	}
	ids := make([]string, 0, len(req.Lines))
	for i, line := range req.Lines {
		if strings.TrimSpace(line.MenuItemID) == "" {
			details = append(details, fmt.Sprintf("line %d: menu item id is required", i+1))
		}
		if line.Quantity < 1 {
			details = append(details, fmt.Sprintf("line %d: quantity must be at least 1", i+1))
		}
		ids = append(ids, line.MenuItemID)
	}
	switch req.Method {
	case models.PaymentCash:
		if req.Tendered.IsNegative() {
			details = append(details, "tendered amount must be non-negative")
		}
	case models.PaymentCard:
		if req.IdempotencyKey == "" {
			details = append(details, "card payment requires an idempotency key")
		}
		if req.Card.PaymentMethod == "" {
			details = append(details, "card payment requires a payment method token")
		}
	default:
		details = append(details, fmt.Sprintf("unknown payment method %q", req.Method))
	}
	if len(details) > 0 {
		return nil, Reject(ReasonInvalidCart, nil, details...)
	}

	var items []models.MenuItem
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load menu items: %w", err)
	}
	byID := make(map[string]models.MenuItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	order := &models.Order{
		ID:             uuid.New().String(),
		Status:         models.OrderStatusPaid,
		PaymentMethod:  req.Method,
		IdempotencyKey: req.IdempotencyKey,
		PlacedBy:       req.Identity.ID,
		PlacedByRole:   req.Identity.Role,
		TotalAmount:    decimal.Zero,
	}
	for i, line := range req.Lines {
		item, ok := byID[line.MenuItemID]
		if !ok {
			details = append(details, fmt.Sprintf("line %d: unknown menu item %s", i+1, line.MenuItemID))
			continue
		}
		if !item.IsActive {
			details = append(details, fmt.Sprintf("line %d: %s is not on the menu", i+1, item.Name))
			continue
		}
		lineTotal := item.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		order.Lines = append(order.Lines, models.OrderLine{
			OrderID:    order.ID,
			Position:   i + 1,
			MenuItemID: item.ID,
			Name:       item.Name,
			Quantity:   line.Quantity,
			UnitPrice:  item.Price,
			LineTotal:  lineTotal,
		})
		order.TotalAmount = order.TotalAmount.Add(lineTotal)
	}
	if len(details) == 0 && req.Method == models.PaymentCard && !order.TotalAmount.IsPositive() {
		details = append(details, "card payment requires a positive total")
	}
	if len(details) > 0 {
		return nil, Reject(ReasonInvalidCart, nil, details...)
	}
	return order, nil
}

// cartHash отпечаток отправителя, корзины и способа оплаты
func cartHash(req PlaceOrderRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", req.Identity.Actor(), req.Method, req.Tendered.StringFixed(2), req.Card.PaymentMethod)
	for _, line := range req.Lines {
		fmt.Fprintf(h, "|%s*%d", line.MenuItemID, line.Quantity)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// beginAttempt занимает ключ идемпотентности. Возвращает результат, если ключ уже использован
func (s *OrderService) beginAttempt(ctx context.Context, p *placement, req PlaceOrderRequest, fingerprint string) (*OrderResult, error) {
	attempt := models.SettlementAttempt{
		IdempotencyKey: req.IdempotencyKey,
		Status:         models.SettlementInFlight,
		CartHash:       fingerprint,
		ExpiresAt:      s.now().UTC().Add(s.reservationTTL),
	}
	err := s.db.WithContext(ctx).Create(&attempt).Error
	if err == nil {
		return nil, nil
	}
	if !isUniqueViolation(err) {
		return s.aborted(fmt.Errorf("failed to register settlement attempt: %w", err))
	}
	// Ключ заняли между проверкой и вставкой
	replay, err := s.replayAttempt(ctx, p, req, fingerprint)
	if replay == nil && err == nil {
		return s.aborted(fmt.Errorf("%w: settlement attempt %s vanished", ErrConsistencyViolation, req.IdempotencyKey))
	}
	return replay, err
}

// replayAttempt отвечает по уже существующей попытке с этим ключом. nil, nil - ключ свободен
func (s *OrderService) replayAttempt(ctx context.Context, p *placement, req PlaceOrderRequest, fingerprint string) (*OrderResult, error) {
	var existing models.SettlementAttempt
	if err := s.db.WithContext(ctx).Where("idempotency_key = ?", req.IdempotencyKey).First(&existing).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return s.aborted(fmt.Errorf("failed to load settlement attempt: %w", err))
	}

	duplicate := func(detail string) (*OrderResult, error) {
		rej := Reject(ReasonDuplicateSubmission, nil, detail)
		s.metrics.ObserveOrder("rejected", rej.Reason)
		return &OrderResult{
			Status:  models.OrderStatusRejected,
			Reason:  rej.Reason,
			Details: rej.Details,
			Trail:   append(p.trail, PhaseRejected),
		}, rej
	}
	if existing.CartHash != "" && existing.CartHash != fingerprint {
		return duplicate("idempotency key belongs to another submission")
	}

	switch existing.Status {
	case models.SettlementCommitted:
		order, err := s.GetOrder(ctx, existing.OrderID)
		if err != nil {
			return s.aborted(err)
		}
		if order.PlacedBy != req.Identity.ID || order.PlacedByRole != req.Identity.Role {
			return duplicate("idempotency key belongs to another submission")
		}
		s.log.Info("🔁 Повтор оплаченной корзины", zap.String("order_id", order.ID))
		return &OrderResult{Status: models.OrderStatusPaid, Order: order, Trail: p.trail, Replayed: true}, nil
	case models.SettlementRejected:
		var details []string
		if existing.RejectDetails != "" {
			details = strings.Split(existing.RejectDetails, "\n")
		}
		rej := Reject(RejectReason(existing.RejectReason), nil, details...)
		return &OrderResult{
			Status:   models.OrderStatusRejected,
			Reason:   rej.Reason,
			Details:  rej.Details,
			Trail:    append(p.trail, PhaseRejected),
			Replayed: true,
		}, rej
	default:
		return duplicate("a submission with this idempotency key is still in progress")
	}
}

// attachReservation запоминает резерв попытки, чтобы ReservationSweeper мог ее закрыть
func (s *OrderService) attachReservation(ctx context.Context, key, reservationID string) error {
	if key == "" {
		return nil
	}
	if err := s.db.WithContext(context.WithoutCancel(ctx)).
		Model(&models.SettlementAttempt{}).
		Where("idempotency_key = ? AND status = ?", key, models.SettlementInFlight).
		Update("reservation_id", reservationID).Error; err != nil {
		return fmt.Errorf("failed to attach reservation to settlement attempt: %w", err)
	}
	return nil
}

// ExpireAttempts закрывает попытки, брошенные в in_flight после падения процесса:
// резерв возвращается, попытка становится rejected с PaymentGatewayFailure.
// Повтор с тем же ключом после этого получает сохраненный отказ
func (s *OrderService) ExpireAttempts(ctx context.Context, now time.Time, limit int) (int, error) {
	var stale []models.SettlementAttempt
	if err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.SettlementInFlight, now.UTC()).
		Order("expires_at").
		Limit(limit).
		Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("failed to find stale settlement attempts: %w", err)
	}

	closed := 0
	for _, attempt := range stale {
		// Сначала резерв: после release CommitReservation живого запроса уже не пройдет
		if attempt.ReservationID != "" {
			released, err := s.ledger.ReleaseReservation(ctx, attempt.ReservationID, "settlement attempt expired")
			if err != nil && !errors.Is(err, ErrNotFound) {
				s.log.Error("❌ Не удалось вернуть резерв брошенной попытки",
					zap.String("key", attempt.IdempotencyKey), zap.Error(err))
				continue
			}
			if released {
				s.metrics.ObserveRelease("expired", 1)
			}
		}
		res := s.db.WithContext(ctx).
			Model(&models.SettlementAttempt{}).
			Where("idempotency_key = ? AND status = ?", attempt.IdempotencyKey, models.SettlementInFlight).
			Updates(map[string]interface{}{
				"status":         models.SettlementRejected,
				"reject_reason":  string(ReasonPaymentGatewayFailure),
				"reject_details": "settlement attempt expired before completion",
			})
		if res.Error != nil {
			s.log.Error("❌ Не удалось закрыть брошенную попытку", zap.String("key", attempt.IdempotencyKey), zap.Error(res.Error))
			continue
		}
		if res.RowsAffected > 0 {
			closed++
			s.log.Warn("⌛ Брошенная попытка оплаты закрыта",
				zap.String("key", attempt.IdempotencyKey), zap.String("reservation_id", attempt.ReservationID))
		}
	}
	return closed, nil
}

// commit одна транзакция: резерв закреплен, заказ записан, попытка закрыта
func (s *OrderService) commit(ctx context.Context, order *models.Order, key string) error {
	return runInTx(ctx, s.db, func(tx *gorm.DB) error {
		if order.ReservationID != "" {
			if err := s.ledger.CommitReservation(tx, order.ReservationID, order.ID); err != nil {
				return err
			}
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if key == "" {
			return nil
		}
		res := tx.Model(&models.SettlementAttempt{}).
			Where("idempotency_key = ? AND status = ?", key, models.SettlementInFlight).
			Updates(map[string]interface{}{
				"status":   models.SettlementCommitted,
				"order_id": order.ID,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to close settlement attempt: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: settlement attempt %s is not in flight", ErrConsistencyViolation, key)
		}
		return nil
	})
}

// rejected переводит в Rejected, закрывает попытку и сообщает об отказе
func (s *OrderService) rejected(ctx context.Context, p *placement, req PlaceOrderRequest, attemptOpen bool, err error) (*OrderResult, error) {
	rej := asRejection(err, ReasonInvalidCart)
	if advErr := p.advance(PhaseRejected); advErr != nil {
		return s.failed(ctx, req, advErr)
	}

	if attemptOpen && req.IdempotencyKey != "" {
		if dbErr := s.db.WithContext(context.WithoutCancel(ctx)).
			Model(&models.SettlementAttempt{}).
			Where("idempotency_key = ? AND status = ?", req.IdempotencyKey, models.SettlementInFlight).
			Updates(map[string]interface{}{
				"status":         models.SettlementRejected,
				"reject_reason":  string(rej.Reason),
				"reject_details": strings.Join(rej.Details, "\n"),
			}).Error; dbErr != nil {
			s.log.Error("❌ Не удалось закрыть попытку оплаты", zap.String("key", req.IdempotencyKey), zap.Error(dbErr))
		}
	}

	s.metrics.ObserveOrder("rejected", rej.Reason)
	s.log.Info("🚫 Заказ отклонен",
		zap.String("reason", string(rej.Reason)),
		zap.Strings("details", rej.Details),
		zap.String("by", req.Identity.Actor()))
	s.publish(ctx, events.Event{
		Type:       events.TypeOrderRejected,
		Key:        req.IdempotencyKey,
		Attributes: map[string]string{"reason": string(rej.Reason)},
		Payload:    rej.Details,
	})

	return &OrderResult{
		Status:  models.OrderStatusRejected,
		Reason:  rej.Reason,
		Details: rej.Details,
		Trail:   p.trail,
	}, rej
}

// failed внутренняя ошибка: ключ освобождается, чтобы клиент мог повторить
func (s *OrderService) failed(ctx context.Context, req PlaceOrderRequest, err error) (*OrderResult, error) {
	if req.IdempotencyKey != "" {
		if dbErr := s.db.WithContext(context.WithoutCancel(ctx)).
			Where("idempotency_key = ? AND status = ?", req.IdempotencyKey, models.SettlementInFlight).
			Delete(&models.SettlementAttempt{}).Error; dbErr != nil {
			s.log.Error("❌ Не удалось освободить ключ идемпотентности", zap.Error(dbErr))
		}
	}
	return s.aborted(err)
}

// aborted внутренняя ошибка до того, как ключ занят этим запросом
func (s *OrderService) aborted(err error) (*OrderResult, error) {
	s.metrics.ObserveOrder("error", "")
	s.log.Error("❌ Ошибка оформления заказа", zap.Error(err))
	return nil, err
}

// releaseReservation возвращает остатки, даже если ctx запроса уже отменен
func (s *OrderService) releaseReservation(ctx context.Context, reservation *models.StockReservation, note string) {
	if reservation == nil {
		return
	}
	released, err := s.ledger.ReleaseReservation(context.WithoutCancel(ctx), reservation.ID, note)
	if err != nil {
		// Резерв остался held, его вернет ReservationSweeper по ExpiresAt
		s.log.Error("❌ Не удалось вернуть резерв", zap.String("reservation_id", reservation.ID), zap.Error(err))
		return
	}
	if released {
		s.metrics.ObserveRelease("rollback", 1)
	}
}

func (s *OrderService) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("⚠️ Не удалось отправить событие", zap.String("type", ev.Type), zap.Error(err))
	}
}

// asRejection приводит ошибку к *RejectionError
func asRejection(err error, fallback RejectReason) *RejectionError {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej
	}
	if reason, ok := ReasonOf(err); ok {
		return Reject(reason, err)
	}
	return Reject(fallback, err)
}

// GetOrder возвращает заказ со строками
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("id = ?", id).
		First(&order).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &order, nil
}

// GetOrderFor заказ с проверкой доступа: покупатель видит только свои
func (s *OrderService) GetOrderFor(ctx context.Context, id string, who models.Identity) (*models.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !who.Role.IsStaff() && order.PlacedBy != who.ID {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return order, nil
}

// ListOrders последние заказы. Покупатель видит только свои
func (s *OrderService) ListOrders(ctx context.Context, who models.Identity, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var orders []models.Order
	query := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Order("created_at DESC").
		Limit(limit)
	if !who.Role.IsStaff() {
		query = query.Where("placed_by = ?", who.ID)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
