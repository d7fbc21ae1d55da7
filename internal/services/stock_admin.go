package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bistro/server/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IngredientInput данные для создания ингредиента
type IngredientInput struct {
	Name             string          `json:"name" binding:"required"`
	Quantity         decimal.Decimal `json:"quantity"`
	Unit             models.Unit     `json:"unit" binding:"required"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
}

// IngredientPatch изменяемые поля ингредиента. Количество здесь не меняется никогда
type IngredientPatch struct {
	Name             *string          `json:"name"`
	Unit             *models.Unit     `json:"unit"`
	UnitPrice        *decimal.Decimal `json:"unit_price"`
	ReorderThreshold *decimal.Decimal `json:"reorder_threshold"`
}

// StockOrderLineInput позиция накладной на пополнение
type StockOrderLineInput struct {
	IngredientID string          `json:"ingredient_id" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

// StockOrderInput накладная на пополнение
type StockOrderInput struct {
	Lines []StockOrderLineInput `json:"lines" binding:"required"`
	Notes string                `json:"notes"`
}

// CreateIngredient создает ингредиент. Начальный остаток проходит через журнал
func (l *StockLedger) CreateIngredient(ctx context.Context, in IngredientInput, actor string) (*models.Ingredient, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !in.Unit.Valid() {
		return nil, fmt.Errorf("%w: unknown unit %q", ErrInvalidInput, in.Unit)
	}
	if in.Quantity.IsNegative() || in.UnitPrice.IsNegative() || in.ReorderThreshold.IsNegative() {
		return nil, fmt.Errorf("%w: quantity, price and threshold must be non-negative", ErrInvalidInput)
	}

	ingredient := &models.Ingredient{
		Name:             in.Name,
		Quantity:         decimal.Zero,
		Unit:             in.Unit,
		UnitPrice:        in.UnitPrice,
		ReorderThreshold: in.ReorderThreshold,
	}
	err := runInTx(ctx, l.db, func(tx *gorm.DB) error {
		if err := tx.Create(ingredient).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: ingredient %q already exists", ErrInvalidInput, in.Name)
			}
			return err
		}
		if in.Quantity.IsPositive() {
			rows, err := l.adjustTx(tx, []Adjustment{{IngredientID: ingredient.ID, Delta: in.Quantity}}, AdjustMeta{
				Type:  models.MovementAdjustment,
				Actor: actor,
				Notes: "initial stock",
			})
			if err != nil {
				return err
			}
			ingredient.Quantity = rows[0].Quantity
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("✅ Ингредиент создан", zap.String("id", ingredient.ID), zap.String("name", ingredient.Name))
	return ingredient, nil
}

// UpdateIngredient меняет справочные поля ингредиента
func (l *StockLedger) UpdateIngredient(ctx context.Context, id string, patch IngredientPatch) (*models.Ingredient, error) {
	updates := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		updates["name"] = name
	}
	if patch.Unit != nil {
		if !patch.Unit.Valid() {
			return nil, fmt.Errorf("%w: unknown unit %q", ErrInvalidInput, *patch.Unit)
		}
		updates["unit"] = *patch.Unit
	}
	if patch.UnitPrice != nil {
		if patch.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: unit price must be non-negative", ErrInvalidInput)
		}
		updates["unit_price"] = *patch.UnitPrice
	}
	if patch.ReorderThreshold != nil {
		if patch.ReorderThreshold.IsNegative() {
			return nil, fmt.Errorf("%w: reorder threshold must be non-negative", ErrInvalidInput)
		}
		updates["reorder_threshold"] = *patch.ReorderThreshold
	}

	if _, err := l.GetIngredient(ctx, id); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := l.db.WithContext(ctx).Model(&models.Ingredient{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: ingredient name already exists", ErrInvalidInput)
			}
			return nil, fmt.Errorf("failed to update ingredient: %w", err)
		}
	}
	return l.GetIngredient(ctx, id)
}

// DeleteIngredient удаляет ингредиент, если на него не ссылается ни один рецепт.
// Строка блокируется до подсчета ссылок, RecipeIndex.Upsert держит ее FOR SHARE
func (l *StockLedger) DeleteIngredient(ctx context.Context, id string) error {
	return runInTx(ctx, l.db, func(tx *gorm.DB) error {
		var locked models.Ingredient
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", id).
			First(&locked).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: ingredient %s", ErrNotFound, id)
			}
			return err
		}

		var refs int64
		if err := tx.Model(&models.RecipeEntry{}).
			Where("ingredient_id = ? AND quantity_required > 0", id).
			Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: %d recipe entries", ErrIngredientInUse, refs)
		}
		res := tx.Where("id = ?", id).Delete(&models.Ingredient{})
		if isForeignKeyViolation(res.Error) {
			return fmt.Errorf("%w: %v", ErrIngredientInUse, res.Error)
		}
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: ingredient %s", ErrNotFound, id)
		}
		return nil
	})
}

// GetIngredient возвращает ингредиент по ID
func (l *StockLedger) GetIngredient(ctx context.Context, id string) (*models.Ingredient, error) {
	var ingredient models.Ingredient
	if err := l.db.WithContext(ctx).Where("id = ?", id).First(&ingredient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: ingredient %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &ingredient, nil
}

// ListIngredients возвращает все ингредиенты по имени
func (l *StockLedger) ListIngredients(ctx context.Context) ([]models.Ingredient, error) {
	var rows []models.Ingredient
	if err := l.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LowStock ингредиенты ниже порога дозаказа
func (l *StockLedger) LowStock(ctx context.Context) ([]models.Ingredient, error) {
	var rows []models.Ingredient
	if err := l.db.WithContext(ctx).
		Where("quantity < reorder_threshold").
		Order("name").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Restock проводит накладную: запись накладной и приход остатков в одной транзакции.
// Цена из накладной становится текущей ценой ингредиента
func (l *StockLedger) Restock(ctx context.Context, in StockOrderInput, actor string) (*models.StockOrder, error) {
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("%w: stock order has no lines", ErrInvalidInput)
	}

	order := &models.StockOrder{CreatedBy: actor, Notes: in.Notes, Total: decimal.Zero}
	deltas := make([]Adjustment, 0, len(in.Lines))
	for i, line := range in.Lines {
		if !line.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: line %d: quantity must be positive", ErrInvalidInput, i+1)
		}
		if line.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: line %d: unit price must be non-negative", ErrInvalidInput, i+1)
		}
		order.Lines = append(order.Lines, models.StockOrderLine{
			IngredientID: line.IngredientID,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
		})
		order.Total = order.Total.Add(line.Quantity.Mul(line.UnitPrice))
		deltas = append(deltas, Adjustment{IngredientID: line.IngredientID, Delta: line.Quantity})
	}

	order.ID = uuid.New().String()
	err := runInTx(ctx, l.db, func(tx *gorm.DB) error {
		// Сначала приход: неизвестный ингредиент отклоняет накладную до записи строк
		if _, err := l.adjustTx(tx, deltas, AdjustMeta{
			Type:        models.MovementRestock,
			ReferenceID: order.ID,
			Actor:       actor,
		}); err != nil {
			return err
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create stock order: %w", err)
		}
		for _, line := range in.Lines {
			if line.UnitPrice.IsZero() {
				continue
			}
			if err := tx.Model(&models.Ingredient{}).
				Where("id = ?", line.IngredientID).
				Update("unit_price", line.UnitPrice).Error; err != nil {
				return fmt.Errorf("failed to update unit price: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("✅ Накладная проведена",
		zap.String("stock_order_id", order.ID),
		zap.Int("lines", len(order.Lines)),
		zap.String("total", order.Total.StringFixed(2)))
	return order, nil
}

// ListStockOrders последние накладные
func (l *StockLedger) ListStockOrders(ctx context.Context, limit int) ([]models.StockOrder, error) {
	var rows []models.StockOrder
	if err := l.db.WithContext(ctx).
		Preload("Lines").
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Movements журнал движений ингредиента, новые сверху
func (l *StockLedger) Movements(ctx context.Context, ingredientID string, limit int) ([]models.StockMovement, error) {
	var rows []models.StockMovement
	if err := l.db.WithContext(ctx).
		Where("ingredient_id = ?", ingredientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
