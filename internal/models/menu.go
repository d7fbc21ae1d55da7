package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MenuItem позиция меню. Доступность не хранится - она всегда вычисляется
// из остатков и рецептуры
type MenuItem struct {
	ID          string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name        string          `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Category    string          `json:"category" gorm:"type:varchar(100);index"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	Description string          `json:"description" gorm:"type:text"`
	ImageURL    string          `json:"image_url" gorm:"type:text"` // Ссылка на внешний хостинг, ядро ее не интерпретирует
	IsActive    bool            `json:"is_active" gorm:"default:true;index"`
	CreatedAt   time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (MenuItem) TableName() string {
	return "menu_items"
}

// BeforeCreate генерирует UUID
func (m *MenuItem) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// RecipeEntry количество ингредиента на одну единицу позиции меню.
// Пара (MenuItemID, IngredientID) уникальна
type RecipeEntry struct {
	ID               string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	MenuItemID       string          `json:"menu_item_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_recipe_item_ingredient"`
	IngredientID     string          `json:"ingredient_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_recipe_item_ingredient;index"`
	QuantityRequired decimal.Decimal `json:"quantity_required" gorm:"type:numeric(14,3);not null"`
	CreatedAt        time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"autoUpdateTime"`

	// Внешний ключ: ингредиент, на который ссылается рецепт, БД удалить не даст
	Ingredient *Ingredient `json:"-" gorm:"foreignKey:IngredientID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName указывает имя таблицы
func (RecipeEntry) TableName() string {
	return "recipe_entries"
}

// BeforeCreate генерирует UUID
func (r *RecipeEntry) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
