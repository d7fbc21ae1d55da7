// Package seed заполняет справочники из YAML файла: ингредиенты,
// позиции меню и их рецептуры. Повторный запуск не создает дублей.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"bistro/server/internal/models"
	"bistro/server/internal/services"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// File содержимое seed файла
type File struct {
	Ingredients []Ingredient `yaml:"ingredients"`
	Menu        []MenuItem   `yaml:"menu"`
}

// Ingredient строка справочника. Числа можно писать как 10, 0.25 или "12.50"
type Ingredient struct {
	Name             string      `yaml:"name"`
	Unit             models.Unit `yaml:"unit"`
	Quantity         interface{} `yaml:"quantity"`
	UnitPrice        interface{} `yaml:"unit_price"`
	ReorderThreshold interface{} `yaml:"reorder_threshold"`
}

// MenuItem позиция меню с рецептурой: имя ингредиента -> количество на порцию
type MenuItem struct {
	Name        string                 `yaml:"name"`
	Category    string                 `yaml:"category"`
	Price       interface{}            `yaml:"price"`
	Description string                 `yaml:"description"`
	Recipe      map[string]interface{} `yaml:"recipe"`
}

// Summary что было создано за запуск
type Summary struct {
	IngredientsCreated int
	MenuItemsCreated   int
	RecipeEntries      int
}

// Parse читает YAML. Неизвестные поля считаются ошибкой
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

// amount приводит скаляр YAML к decimal
func amount(field string, v interface{}) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Zero, fmt.Errorf("неверный формат %s: %q", field, x)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("неверный тип %s: %T", field, v)
	}
}

// Loader применяет seed файл через сервисы ядра
type Loader struct {
	ledger  *services.StockLedger
	menu    *services.MenuService
	recipes *services.RecipeIndex
	log     *zap.Logger
}

// NewLoader создает загрузчик
func NewLoader(ledger *services.StockLedger, menu *services.MenuService, recipes *services.RecipeIndex, log *zap.Logger) *Loader {
	return &Loader{ledger: ledger, menu: menu, recipes: recipes, log: log}
}

// LoadFile читает и применяет файл
func (l *Loader) LoadFile(ctx context.Context, path string) (*Summary, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	f, err := Parse(fh)
	if err != nil {
		return nil, err
	}
	return l.Apply(ctx, f)
}

// Apply создает недостающие ингредиенты и позиции, затем выставляет рецептуры.
// Существующие записи ищутся по имени и не меняются, остатки не трогаются
func (l *Loader) Apply(ctx context.Context, f *File) (*Summary, error) {
	summary := &Summary{}

	existing, err := l.ledger.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}
	ingredientIDs := make(map[string]string, len(existing))
	for _, ing := range existing {
		ingredientIDs[ing.Name] = ing.ID
	}

	for _, in := range f.Ingredients {
		if _, ok := ingredientIDs[in.Name]; ok {
			continue
		}
		qty, err := amount("quantity", in.Quantity)
		if err != nil {
			return nil, fmt.Errorf("ingredient %q: %w", in.Name, err)
		}
		price, err := amount("unit_price", in.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("ingredient %q: %w", in.Name, err)
		}
		threshold, err := amount("reorder_threshold", in.ReorderThreshold)
		if err != nil {
			return nil, fmt.Errorf("ingredient %q: %w", in.Name, err)
		}

		created, err := l.ledger.CreateIngredient(ctx, services.IngredientInput{
			Name:             in.Name,
			Quantity:         qty,
			Unit:             in.Unit,
			UnitPrice:        price,
			ReorderThreshold: threshold,
		}, "seed")
		if err != nil {
			return nil, fmt.Errorf("ingredient %q: %w", in.Name, err)
		}
		ingredientIDs[created.Name] = created.ID
		summary.IngredientsCreated++
	}

	items, err := l.menu.List(ctx, true)
	if err != nil {
		return nil, err
	}
	itemIDs := make(map[string]string, len(items))
	for _, item := range items {
		itemIDs[item.Name] = item.ID
	}

	for _, in := range f.Menu {
		itemID, ok := itemIDs[in.Name]
		if !ok {
			price, err := amount("price", in.Price)
			if err != nil {
				return nil, fmt.Errorf("menu item %q: %w", in.Name, err)
			}
			created, err := l.menu.Create(ctx, services.MenuItemInput{
				Name:        in.Name,
				Category:    in.Category,
				Price:       price,
				Description: in.Description,
			})
			if err != nil {
				return nil, fmt.Errorf("menu item %q: %w", in.Name, err)
			}
			itemID = created.ID
			itemIDs[in.Name] = itemID
			summary.MenuItemsCreated++
		}

		for ingredientName, raw := range in.Recipe {
			ingredientID, ok := ingredientIDs[ingredientName]
			if !ok {
				return nil, fmt.Errorf("menu item %q: %w: %s", in.Name, services.ErrUnknownIngredient, ingredientName)
			}
			qty, err := amount("recipe."+ingredientName, raw)
			if err != nil {
				return nil, fmt.Errorf("menu item %q: %w", in.Name, err)
			}
			if _, err := l.recipes.Upsert(ctx, models.RecipeEntry{
				MenuItemID:       itemID,
				IngredientID:     ingredientID,
				QuantityRequired: qty,
			}); err != nil {
				return nil, fmt.Errorf("menu item %q: %w", in.Name, err)
			}
			summary.RecipeEntries++
		}
	}

	l.log.Info("🌱 Seed применен",
		zap.Int("ingredients_created", summary.IngredientsCreated),
		zap.Int("menu_items_created", summary.MenuItemsCreated),
		zap.Int("recipe_entries", summary.RecipeEntries))
	return summary, nil
}
