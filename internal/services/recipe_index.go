package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bistro/server/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecipeIndex связь позиция меню -> ингредиенты с количеством на единицу
type RecipeIndex struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewRecipeIndex создает новый экземпляр RecipeIndex
func NewRecipeIndex(db *gorm.DB, log *zap.Logger) *RecipeIndex {
	return &RecipeIndex{db: db, log: log}
}

// IngredientsFor рецептура одной позиции меню
func (r *RecipeIndex) IngredientsFor(ctx context.Context, menuItemID string) ([]models.RecipeEntry, error) {
	var entries []models.RecipeEntry
	if err := r.db.WithContext(ctx).
		Where("menu_item_id = ?", menuItemID).
		Order("ingredient_id").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load recipe: %w", err)
	}
	return entries, nil
}

// IngredientsForMany рецептуры нескольких позиций одним запросом
func (r *RecipeIndex) IngredientsForMany(ctx context.Context, menuItemIDs []string) (map[string][]models.RecipeEntry, error) {
	out := make(map[string][]models.RecipeEntry, len(menuItemIDs))
	if len(menuItemIDs) == 0 {
		return out, nil
	}
	var entries []models.RecipeEntry
	if err := r.db.WithContext(ctx).
		Where("menu_item_id IN ?", menuItemIDs).
		Order("menu_item_id, ingredient_id").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load recipes: %w", err)
	}
	for _, e := range entries {
		out[e.MenuItemID] = append(out[e.MenuItemID], e)
	}
	return out, nil
}

// Upsert создает или обновляет строку рецептуры. Ингредиент держится FOR SHARE
// до конца транзакции, поэтому DeleteIngredient увидит новую ссылку
func (r *RecipeIndex) Upsert(ctx context.Context, entry models.RecipeEntry) (*models.RecipeEntry, error) {
	if !entry.QuantityRequired.IsPositive() {
		return nil, fmt.Errorf("%w: quantity required must be positive", ErrInvalidRecipe)
	}

	var saved models.RecipeEntry
	err := runInTx(ctx, r.db, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.MenuItem{}).Where("id = ?", entry.MenuItemID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: menu item %s", ErrNotFound, entry.MenuItemID)
		}
		var ingredient models.Ingredient
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("id").
			Where("id = ?", entry.IngredientID).
			First(&ingredient).Error; err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: %s", ErrUnknownIngredient, entry.IngredientID)
			}
			return err
		}

		entry.ID = ""
		entry.Ingredient = nil
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "menu_item_id"}, {Name: "ingredient_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity_required": entry.QuantityRequired,
				"updated_at":        time.Now().UTC(),
			}),
		}).Create(&entry).Error; err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: %s", ErrUnknownIngredient, entry.IngredientID)
			}
			return fmt.Errorf("failed to upsert recipe entry: %w", err)
		}

		return tx.Where("menu_item_id = ? AND ingredient_id = ?", entry.MenuItemID, entry.IngredientID).
			First(&saved).Error
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Remove удаляет ингредиент из рецептуры позиции
func (r *RecipeIndex) Remove(ctx context.Context, menuItemID, ingredientID string) error {
	res := r.db.WithContext(ctx).
		Where("menu_item_id = ? AND ingredient_id = ?", menuItemID, ingredientID).
		Delete(&models.RecipeEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: recipe entry %s/%s", ErrNotFound, menuItemID, ingredientID)
	}
	return nil
}

// RequirementsFor суммарная потребность корзины в ингредиентах (положительные количества)
func (r *RecipeIndex) RequirementsFor(ctx context.Context, cart []models.CartLine) ([]Adjustment, error) {
	ids := make([]string, 0, len(cart))
	for _, line := range cart {
		ids = append(ids, line.MenuItemID)
	}
	recipes, err := r.IngredientsForMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return requirementsFromRecipes(cart, recipes), nil
}

// requirementsFromRecipes складывает required * quantity по ингредиентам
func requirementsFromRecipes(cart []models.CartLine, recipes map[string][]models.RecipeEntry) []Adjustment {
	var out []Adjustment
	for _, line := range cart {
		q := decimal.NewFromInt(int64(line.Quantity))
		for _, entry := range recipes[line.MenuItemID] {
			out = append(out, Adjustment{
				IngredientID: entry.IngredientID,
				Delta:        entry.QuantityRequired.Mul(q),
			})
		}
	}
	ids, merged := mergeAdjustments(out)
	result := make([]Adjustment, 0, len(ids))
	for _, id := range ids {
		result = append(result, Adjustment{IngredientID: id, Delta: merged[id]})
	}
	return result
}

// isNotFound - запись не найдена в БД
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
