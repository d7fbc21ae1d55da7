package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bistro/server/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Adjustment изменение остатка одного ингредиента
type Adjustment struct {
	IngredientID string          `json:"ingredient_id"`
	Delta        decimal.Decimal `json:"delta"`
}

// AdjustMeta описание операции для журнала движений
type AdjustMeta struct {
	Type        models.MovementType
	ReferenceID string
	Actor       string
	Notes       string
}

// Shortage нехватка одного ингредиента
type Shortage struct {
	IngredientID string          `json:"ingredient_id"`
	Name         string          `json:"name"`
	Required     decimal.Decimal `json:"required"`
	OnHand       decimal.Decimal `json:"on_hand"`
}

// InsufficientStockError отказ пакета целиком с перечнем нехваток
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	return "insufficient stock: " + strings.Join(e.Details(), "; ")
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Details человекочитаемые строки нехваток
func (e *InsufficientStockError) Details() []string {
	out := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		out = append(out, fmt.Sprintf("%s: required %s, on hand %s", s.Name, s.Required.String(), s.OnHand.String()))
	}
	return out
}

// StockLedger единственный владелец остатков ингредиентов.
// Все изменения идут через AdjustMany: блокировка строк по возрастанию id,
// повторная проверка внутри транзакции, запись журнала, все или ничего
type StockLedger struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

// NewStockLedger создает новый экземпляр StockLedger
func NewStockLedger(db *gorm.DB, log *zap.Logger) *StockLedger {
	return &StockLedger{db: db, log: log, now: time.Now}
}

// Adjust применяет одно изменение
func (l *StockLedger) Adjust(ctx context.Context, ingredientID string, delta decimal.Decimal, meta AdjustMeta) (*models.Ingredient, error) {
	var updated []models.Ingredient
	err := runInTx(ctx, l.db, func(tx *gorm.DB) error {
		var err error
		updated, err = l.adjustTx(tx, []Adjustment{{IngredientID: ingredientID, Delta: delta}}, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return l.GetIngredient(ctx, ingredientID)
	}
	return &updated[0], nil
}

// AdjustMany применяет пакет изменений атомарно
func (l *StockLedger) AdjustMany(ctx context.Context, adjustments []Adjustment, meta AdjustMeta) ([]models.Ingredient, error) {
	var updated []models.Ingredient
	err := runInTx(ctx, l.db, func(tx *gorm.DB) error {
		var err error
		updated, err = l.adjustTx(tx, adjustments, meta)
		return err
	})
	return updated, err
}

// mergeAdjustments складывает дельты одного ингредиента и сортирует по id
func mergeAdjustments(adjustments []Adjustment) ([]string, map[string]decimal.Decimal) {
	merged := make(map[string]decimal.Decimal, len(adjustments))
	for _, a := range adjustments {
		merged[a.IngredientID] = merged[a.IngredientID].Add(a.Delta)
	}
	ids := make([]string, 0, len(merged))
	for id, d := range merged {
		if d.IsZero() {
			delete(merged, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, merged
}

// adjustTx ядро AdjustMany внутри уже открытой транзакции
func (l *StockLedger) adjustTx(tx *gorm.DB, adjustments []Adjustment, meta AdjustMeta) ([]models.Ingredient, error) {
	ids, deltas := mergeAdjustments(adjustments)
	if len(ids) == 0 {
		return nil, nil
	}

	// Один SELECT ... FOR UPDATE в порядке id: конкурирующие пакеты не дедлочат
	var rows []models.Ingredient
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to lock ingredients: %w", err)
	}
	if len(rows) != len(ids) {
		found := make(map[string]bool, len(rows))
		for _, r := range rows {
			found[r.ID] = true
		}
		var missing []string
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownIngredient, strings.Join(missing, ", "))
	}

	// Проверяем все строки до первой записи
	var shortages []Shortage
	for _, row := range rows {
		after := row.Quantity.Add(deltas[row.ID])
		if after.IsNegative() {
			shortages = append(shortages, Shortage{
				IngredientID: row.ID,
				Name:         row.Name,
				Required:     deltas[row.ID].Neg(),
				OnHand:       row.Quantity,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &InsufficientStockError{Shortages: shortages}
	}

	movements := make([]models.StockMovement, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		after := row.Quantity.Add(deltas[row.ID])
		if after.IsNegative() {
			return nil, fmt.Errorf("%w: %s would become %s", ErrConsistencyViolation, row.ID, after.String())
		}
		if err := tx.Model(&models.Ingredient{}).
			Where("id = ?", row.ID).
			Update("quantity", after).Error; err != nil {
			return nil, classifyDBError(fmt.Errorf("failed to update ingredient %s: %w", row.ID, err))
		}
		row.Quantity = after
		movements = append(movements, models.StockMovement{
			IngredientID:  row.ID,
			Delta:         deltas[row.ID],
			QuantityAfter: after,
			MovementType:  meta.Type,
			ReferenceID:   meta.ReferenceID,
			PerformedBy:   meta.Actor,
			Notes:         meta.Notes,
		})
	}
	if err := tx.Create(&movements).Error; err != nil {
		return nil, fmt.Errorf("failed to write stock movements: %w", err)
	}
	return rows, nil
}

// Snapshot согласованный срез остатков. Пустой ids - все ингредиенты.
// Только для чтения, AdjustMany его не использует
func (l *StockLedger) Snapshot(ctx context.Context, ids []string) (map[string]models.Ingredient, error) {
	var rows []models.Ingredient
	query := l.db.WithContext(ctx).Model(&models.Ingredient{})
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load stock snapshot: %w", err)
	}
	snap := make(map[string]models.Ingredient, len(rows))
	for _, r := range rows {
		snap[r.ID] = r
	}
	return snap, nil
}

// Reserve списывает требуемые количества и записывает резерв в той же транзакции.
// requirements - положительные количества
func (l *StockLedger) Reserve(ctx context.Context, requirements []Adjustment, ttl time.Duration, actor string) (*models.StockReservation, error) {
	ids, merged := mergeAdjustments(requirements)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty reservation", ErrInvalidCart)
	}

	reservation := &models.StockReservation{
		ID:        uuid.New().String(),
		Status:    models.ReservationHeld,
		ExpiresAt: l.now().UTC().Add(ttl),
		CreatedBy: actor,
	}
	lines := make([]models.ReservationLine, 0, len(ids))
	deltas := make([]Adjustment, 0, len(ids))
	for _, id := range ids {
		if merged[id].IsNegative() {
			return nil, fmt.Errorf("%w: negative requirement for %s", ErrInvalidCart, id)
		}
		lines = append(lines, models.ReservationLine{IngredientID: id, Quantity: merged[id]})
		deltas = append(deltas, Adjustment{IngredientID: id, Delta: merged[id].Neg()})
	}
	if err := reservation.SetLines(lines); err != nil {
		return nil, err
	}

	err := runInTx(ctx, l.db, func(tx *gorm.DB) error {
		if _, err := l.adjustTx(tx, deltas, AdjustMeta{
			Type:        models.MovementReservation,
			ReferenceID: reservation.ID,
			Actor:       actor,
		}); err != nil {
			return err
		}
		return tx.Create(reservation).Error
	})
	if err != nil {
		return nil, err
	}

	l.log.Debug("📦 Остатки зарезервированы",
		zap.String("reservation_id", reservation.ID), zap.Int("ingredients", len(lines)))
	return reservation, nil
}

// ReleaseReservation возвращает остатки резерва. Повторный вызов ничего не делает.
// Возвращает true, если остатки действительно вернулись
func (l *StockLedger) ReleaseReservation(ctx context.Context, reservationID, note string) (bool, error) {
	released := false
	err := runInTx(ctx, l.db, func(tx *gorm.DB) error {
		var reservation models.StockReservation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", reservationID).
			First(&reservation).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: reservation %s", ErrNotFound, reservationID)
			}
			return err
		}
		if reservation.Status != models.ReservationHeld {
			return nil
		}

		res := tx.Model(&models.StockReservation{}).
			Where("id = ? AND status = ?", reservationID, models.ReservationHeld).
			Updates(map[string]interface{}{
				"status":       models.ReservationReleased,
				"release_note": note,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		lines, err := reservation.GetLines()
		if err != nil {
			return fmt.Errorf("failed to decode reservation lines: %w", err)
		}
		deltas := make([]Adjustment, 0, len(lines))
		for _, line := range lines {
			deltas = append(deltas, Adjustment{IngredientID: line.IngredientID, Delta: line.Quantity})
		}
		if _, err := l.adjustTx(tx, deltas, AdjustMeta{
			Type:        models.MovementRelease,
			ReferenceID: reservationID,
			Actor:       "system",
			Notes:       note,
		}); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if released {
		l.log.Info("↩️ Резерв освобожден", zap.String("reservation_id", reservationID), zap.String("note", note))
	}
	return released, nil
}

// CommitReservation закрепляет резерв за заказом внутри транзакции вызывающего
func (l *StockLedger) CommitReservation(tx *gorm.DB, reservationID, orderID string) error {
	res := tx.Model(&models.StockReservation{}).
		Where("id = ? AND status = ?", reservationID, models.ReservationHeld).
		Updates(map[string]interface{}{
			"status":   models.ReservationCommitted,
			"order_id": orderID,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to commit reservation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrReservationNotHeld, reservationID)
	}
	return nil
}

// ReleaseExpired освобождает зависшие резервы с истекшим сроком
func (l *StockLedger) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	var ids []string
	if err := l.db.WithContext(ctx).Model(&models.StockReservation{}).
		Where("status = ? AND expires_at < ?", models.ReservationHeld, now.UTC()).
		Order("expires_at").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to find expired reservations: %w", err)
	}

	count := 0
	for _, id := range ids {
		released, err := l.ReleaseReservation(ctx, id, "expired")
		if err != nil {
			l.log.Error("❌ Не удалось освободить резерв", zap.String("reservation_id", id), zap.Error(err))
			continue
		}
		if released {
			count++
		}
	}
	return count, nil
}

// GetReservation возвращает резерв по ID
func (l *StockLedger) GetReservation(ctx context.Context, id string) (*models.StockReservation, error) {
	var r models.StockReservation
	if err := l.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reservation %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &r, nil
}
