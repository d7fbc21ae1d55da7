package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Unit единица измерения ингредиента
type Unit string

const (
	UnitGram       Unit = "g"
	UnitKilogram   Unit = "kg"
	UnitMilliliter Unit = "ml"
	UnitLiter      Unit = "l"
	UnitPiece      Unit = "pcs"
)

// Valid проверяет, что единица входит в фиксированный набор
func (u Unit) Valid() bool {
	switch u {
	case UnitGram, UnitKilogram, UnitMilliliter, UnitLiter, UnitPiece:
		return true
	}
	return false
}

// Ingredient представляет складскую позицию (сырье)
// Quantity меняется только через StockLedger
type Ingredient struct {
	ID               string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name             string          `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Quantity         decimal.Decimal `json:"quantity" gorm:"type:numeric(14,3);not null;default:0;check:chk_ingredients_quantity_non_negative,quantity >= 0"`
	Unit             Unit            `json:"unit" gorm:"type:varchar(10);not null"`
	UnitPrice        decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2);not null;default:0"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold" gorm:"type:numeric(14,3);not null;default:0"`
	CreatedAt        time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Ingredient) TableName() string {
	return "ingredients"
}

// BeforeCreate генерирует UUID
func (i *Ingredient) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// BelowThreshold - остаток ниже порога дозаказа
func (i Ingredient) BelowThreshold() bool {
	return i.Quantity.LessThan(i.ReorderThreshold)
}
