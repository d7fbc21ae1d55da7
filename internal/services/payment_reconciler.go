package services

import (
	"context"
	"fmt"
	"time"

	"bistro/server/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// cancelTimeout время на отмену намерения после неудачи
const cancelTimeout = 5 * time.Second

// PaymentRequest данные для расчета по заказу
type PaymentRequest struct {
	Method         models.PaymentMethod
	Total          decimal.Decimal
	Tendered       decimal.Decimal
	Card           CardDetails
	IdempotencyKey string
}

// Settlement результат успешного расчета
type Settlement struct {
	Method   models.PaymentMethod
	Tendered decimal.Decimal
	Change   decimal.Decimal
	IntentID string
}

// PaymentReconciler проводит оплату наличными или картой.
// Результат либо полностью успешен, либо полностью неуспешен, повторов нет
type PaymentReconciler struct {
	gateway  PaymentGateway
	currency string
	log      *zap.Logger
	metrics  *Metrics
}

// NewPaymentReconciler создает новый экземпляр PaymentReconciler. gateway может быть nil,
// тогда оплата картой всегда отклоняется
func NewPaymentReconciler(gateway PaymentGateway, currency string, log *zap.Logger, metrics *Metrics) *PaymentReconciler {
	return &PaymentReconciler{gateway: gateway, currency: currency, log: log, metrics: metrics}
}

// Settle проводит оплату
func (p *PaymentReconciler) Settle(ctx context.Context, req PaymentRequest) (*Settlement, error) {
	started := time.Now()
	defer p.metrics.ObservePayment(string(req.Method), started)

	switch req.Method {
	case models.PaymentCash:
		return p.settleCash(req)
	case models.PaymentCard:
		return p.settleCard(ctx, req)
	default:
		return nil, Reject(ReasonInvalidCart, nil, fmt.Sprintf("unknown payment method %q", req.Method))
	}
}

func (p *PaymentReconciler) settleCash(req PaymentRequest) (*Settlement, error) {
	change := req.Tendered.Sub(req.Total)
	if change.IsNegative() {
		return nil, Reject(ReasonInsufficientCash, nil,
			fmt.Sprintf("tendered %s, total %s", req.Tendered.StringFixed(2), req.Total.StringFixed(2)))
	}
	return &Settlement{Method: models.PaymentCash, Tendered: req.Tendered, Change: change}, nil
}

func (p *PaymentReconciler) settleCard(ctx context.Context, req PaymentRequest) (*Settlement, error) {
	if p.gateway == nil {
		return nil, Reject(ReasonPaymentGatewayFailure, nil, "card payments are not configured")
	}

	intent, err := p.gateway.CreateIntent(ctx, ToMinorUnits(req.Total), p.currency, req.IdempotencyKey)
	if err != nil {
		p.log.Warn("⚠️ Не удалось создать намерение оплаты", zap.Error(err))
		return nil, Reject(ReasonPaymentGatewayFailure, err, "create intent failed")
	}

	confirmed, err := p.gateway.Confirm(ctx, intent.ID, req.Card)
	if err != nil {
		p.log.Warn("⚠️ Подтверждение оплаты не прошло", zap.String("intent_id", intent.ID), zap.Error(err))
		p.Void(ctx, intent.ID)
		return nil, Reject(ReasonPaymentGatewayFailure, err, "confirm failed")
	}
	if confirmed.Status != IntentStatusSucceeded {
		p.log.Warn("⚠️ Оплата не успешна", zap.String("intent_id", intent.ID), zap.String("status", confirmed.Status))
		p.Void(ctx, intent.ID)
		return nil, Reject(ReasonPaymentGatewayFailure, nil, "payment status "+confirmed.Status)
	}

	return &Settlement{Method: models.PaymentCard, Tendered: req.Total, Change: decimal.Zero, IntentID: intent.ID}, nil
}

// Void отменяет намерение оплаты. Выполняется даже если ctx запроса уже отменен.
// Ошибка только логируется: отмена best-effort, решение об отказе уже принято
func (p *PaymentReconciler) Void(ctx context.Context, intentID string) {
	if p.gateway == nil || intentID == "" {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := p.gateway.Cancel(cctx, intentID); err != nil {
		p.log.Error("❌ Не удалось отменить намерение оплаты", zap.String("intent_id", intentID), zap.Error(err))
		return
	}
	p.log.Info("↩️ Намерение оплаты отменено", zap.String("intent_id", intentID))
}

// ToMinorUnits переводит сумму в минимальные единицы валюты (центы)
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
