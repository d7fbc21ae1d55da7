package api

import (
	"net/http"
	"strconv"

	"bistro/server/internal/models"
	"bistro/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MenuController позиции меню, рецептуры и доступность
type MenuController struct {
	menu         *services.MenuService
	recipes      *services.RecipeIndex
	availability *services.AvailabilityService
	log          *zap.Logger
}

// NewMenuController создает новый контроллер меню
func NewMenuController(menu *services.MenuService, recipes *services.RecipeIndex, availability *services.AvailabilityService, log *zap.Logger) *MenuController {
	return &MenuController{menu: menu, recipes: recipes, availability: availability, log: log}
}

func quantityParam(c *gin.Context) (int, bool) {
	q, err := strconv.Atoi(c.DefaultQuery("quantity", "1"))
	if err != nil || q < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be a positive integer"})
		return 0, false
	}
	return q, true
}

// GetMenu активное меню с доступностью, вычисленной на этот запрос
// GET /api/v1/menu?quantity=1
func (mc *MenuController) GetMenu(c *gin.Context) {
	q, ok := quantityParam(c)
	if !ok {
		return
	}
	items, err := mc.availability.Menu(c.Request.Context(), q)
	if err != nil {
		respondError(c, mc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":    items,
		"count":    len(items),
		"quantity": q,
	})
}

// GetAvailability доступность одной позиции
// GET /api/v1/menu/availability/:id?quantity=3
func (mc *MenuController) GetAvailability(c *gin.Context) {
	q, ok := quantityParam(c)
	if !ok {
		return
	}
	item, err := mc.availability.ForItem(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		respondError(c, mc.log, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// ListItems справочник позиций для персонала
// GET /api/v1/menu/items?include_inactive=true
func (mc *MenuController) ListItems(c *gin.Context) {
	includeInactive := c.DefaultQuery("include_inactive", "false") == "true"
	items, err := mc.menu.List(c.Request.Context(), includeInactive)
	if err != nil {
		respondError(c, mc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// CreateItem создает позицию меню
// POST /api/v1/menu/items
func (mc *MenuController) CreateItem(c *gin.Context) {
	var in services.MenuItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	item, err := mc.menu.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, mc.log, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// UpdateItem заменяет поля позиции меню
// PUT /api/v1/menu/items/:id
func (mc *MenuController) UpdateItem(c *gin.Context) {
	var in services.MenuItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	item, err := mc.menu.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, mc.log, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteItem снимает позицию с продажи
// DELETE /api/v1/menu/items/:id
func (mc *MenuController) DeleteItem(c *gin.Context) {
	if err := mc.menu.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, mc.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetRecipe рецептура позиции
// GET /api/v1/menu/items/:id/recipe
func (mc *MenuController) GetRecipe(c *gin.Context) {
	entries, err := mc.recipes.IngredientsFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, mc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// RecipeEntryRequest количество ингредиента на единицу позиции
type RecipeEntryRequest struct {
	QuantityRequired decimal.Decimal `json:"quantity_required"`
}

// PutRecipeEntry создает или заменяет строку рецептуры
// PUT /api/v1/menu/items/:id/recipe/:ingredient_id
func (mc *MenuController) PutRecipeEntry(c *gin.Context) {
	var req RecipeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	entry, err := mc.recipes.Upsert(c.Request.Context(), models.RecipeEntry{
		MenuItemID:       c.Param("id"),
		IngredientID:     c.Param("ingredient_id"),
		QuantityRequired: req.QuantityRequired,
	})
	if err != nil {
		respondError(c, mc.log, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// DeleteRecipeEntry убирает ингредиент из рецептуры
// DELETE /api/v1/menu/items/:id/recipe/:ingredient_id
func (mc *MenuController) DeleteRecipeEntry(c *gin.Context) {
	if err := mc.recipes.Remove(c.Request.Context(), c.Param("id"), c.Param("ingredient_id")); err != nil {
		respondError(c, mc.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
