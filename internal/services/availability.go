package services

import (
	"context"
	"fmt"

	"bistro/server/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Availability вычисленная доступность позиции меню для количества q
type Availability struct {
	Orderable bool       `json:"orderable"`
	LowStock  bool       `json:"low_stock"`
	Shortages []Shortage `json:"shortages,omitempty"`
}

// EvaluateAvailability чистая функция от рецептуры и среза остатков.
// Orderable: для каждого ингредиента onHand >= required * q.
// LowStock: хотя бы один ингредиент ниже порога, заказ не блокирует.
// Ингредиент, отсутствующий в срезе, считается нулевым
func EvaluateAvailability(recipe []models.RecipeEntry, snapshot map[string]models.Ingredient, q int) Availability {
	result := Availability{Orderable: true}
	qty := decimal.NewFromInt(int64(q))
	for _, entry := range recipe {
		ingredient, ok := snapshot[entry.IngredientID]
		onHand := decimal.Zero
		if ok {
			onHand = ingredient.Quantity
			if ingredient.BelowThreshold() {
				result.LowStock = true
			}
		}
		required := entry.QuantityRequired.Mul(qty)
		if onHand.LessThan(required) {
			result.Orderable = false
			result.Shortages = append(result.Shortages, Shortage{
				IngredientID: entry.IngredientID,
				Name:         ingredient.Name,
				Required:     required,
				OnHand:       onHand,
			})
		}
	}
	return result
}

// MenuAvailability позиция меню с вычисленной доступностью
type MenuAvailability struct {
	models.MenuItem
	Availability
}

// AvailabilityService пересчитывает доступность меню на каждый запрос.
// Результат нигде не хранится
type AvailabilityService struct {
	db      *gorm.DB
	ledger  *StockLedger
	recipes *RecipeIndex
}

// NewAvailabilityService создает новый экземпляр AvailabilityService
func NewAvailabilityService(db *gorm.DB, ledger *StockLedger, recipes *RecipeIndex) *AvailabilityService {
	return &AvailabilityService{db: db, ledger: ledger, recipes: recipes}
}

// Menu активное меню с доступностью для количества q, один срез остатков на все позиции
func (s *AvailabilityService) Menu(ctx context.Context, q int) ([]MenuAvailability, error) {
	if q < 1 {
		q = 1
	}
	var items []models.MenuItem
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("category, name").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load menu: %w", err)
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	recipes, err := s.recipes.IngredientsForMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.ledger.Snapshot(ctx, ingredientIDs(recipes))
	if err != nil {
		return nil, err
	}

	out := make([]MenuAvailability, 0, len(items))
	for _, item := range items {
		out = append(out, MenuAvailability{
			MenuItem:     item,
			Availability: EvaluateAvailability(recipes[item.ID], snapshot, q),
		})
	}
	return out, nil
}

// ForItem доступность одной позиции
func (s *AvailabilityService) ForItem(ctx context.Context, menuItemID string, q int) (*MenuAvailability, error) {
	if q < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	var item models.MenuItem
	if err := s.db.WithContext(ctx).Where("id = ?", menuItemID).First(&item).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: menu item %s", ErrNotFound, menuItemID)
		}
		return nil, err
	}
	recipe, err := s.recipes.IngredientsFor(ctx, menuItemID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.ledger.Snapshot(ctx, ingredientIDs(map[string][]models.RecipeEntry{menuItemID: recipe}))
	if err != nil {
		return nil, err
	}
	return &MenuAvailability{MenuItem: item, Availability: EvaluateAvailability(recipe, snapshot, q)}, nil
}

func ingredientIDs(recipes map[string][]models.RecipeEntry) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, entries := range recipes {
		for _, e := range entries {
			if !seen[e.IngredientID] {
				seen[e.IngredientID] = true
				ids = append(ids, e.IngredientID)
			}
		}
	}
	return ids
}
