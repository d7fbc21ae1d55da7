package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bistro/server/internal/database"
	"bistro/server/internal/models"
	"bistro/server/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sample = `
ingredients:
  - name: Dough
    unit: kg
    quantity: 10
    unit_price: "0.80"
    reorder_threshold: 2
  - name: Cheese
    unit: kg
    quantity: 4.5
    unit_price: 6
menu:
  - name: Margherita
    category: pizza
    price: "12.50"
    recipe:
      Dough: 1
      Cheese: 0.25
  - name: Water
    category: drinks
    price: 2
`

func newLoader(t *testing.T) (*Loader, *services.StockLedger, *services.RecipeIndex, *services.MenuService) {
	t.Helper()
	log := zaptest.NewLogger(t)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.New().String(), "-", ""))
	db, err := database.ConnectSQLite(dsn, log)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db, log))
	t.Cleanup(func() { database.Close(db) })

	ledger := services.NewStockLedger(db, log)
	recipes := services.NewRecipeIndex(db, log)
	menu := services.NewMenuService(db, log)
	return NewLoader(ledger, menu, recipes, log), ledger, recipes, menu
}

func TestLoadFileIsRepeatable(t *testing.T) {
	loader, ledger, recipes, menu := newLoader(t)
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	ctx := context.Background()

	summary, err := loader.LoadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, &Summary{IngredientsCreated: 2, MenuItemsCreated: 2, RecipeEntries: 2}, summary)

	ingredients, err := ledger.ListIngredients(ctx)
	require.NoError(t, err)
	require.Len(t, ingredients, 2)
	for _, ing := range ingredients {
		if ing.Name == "Cheese" {
			assert.True(t, decimal.RequireFromString("4.5").Equal(ing.Quantity))
		}
	}

	items, err := menu.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, items, 2)
	var margherita models.MenuItem
	for _, item := range items {
		if item.Name == "Margherita" {
			margherita = item
		}
	}
	assert.True(t, decimal.RequireFromString("12.50").Equal(margherita.Price))

	entries, err := recipes.IngredientsFor(ctx, margherita.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	again, err := loader.LoadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, again.IngredientsCreated)
	assert.Equal(t, 0, again.MenuItemsCreated)

	ingredients, err = ledger.ListIngredients(ctx)
	require.NoError(t, err)
	assert.Len(t, ingredients, 2)
}

func TestApplyRejectsUnknownIngredient(t *testing.T) {
	loader, _, _, _ := newLoader(t)

	f, err := Parse(strings.NewReader(`
menu:
  - name: Soup
    price: 5
    recipe:
      Stock: 0.3
`))
	require.NoError(t, err)

	_, err = loader.Apply(context.Background(), f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrUnknownIngredient))
}

func TestParse(t *testing.T) {
	_, err := Parse(strings.NewReader("ingredients:\n  - name: Salt\n    colour: white\n"))
	assert.Error(t, err, "unknown fields are rejected")

	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Ingredients)
}

func TestAmount(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
		err  bool
	}{
		{nil, "0", false},
		{3, "3", false},
		{0.25, "0.25", false},
		{" 12.50 ", "12.5", false},
		{"abc", "", true},
		{true, "", true},
	}
	for _, c := range cases {
		got, err := amount("field", c.in)
		if c.err {
			assert.Error(t, err, "%v", c.in)
			continue
		}
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString(c.want).Equal(got), "%v -> %s", c.in, got)
	}
}
