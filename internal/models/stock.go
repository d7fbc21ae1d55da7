package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MovementType тип движения остатков
type MovementType string

const (
	MovementRestock     MovementType = "restock"
	MovementReservation MovementType = "reservation"
	MovementRelease     MovementType = "release"
	MovementAdjustment  MovementType = "adjustment"
)

// StockMovement представляет движение остатков (журнал аудита)
type StockMovement struct {
	ID            string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	IngredientID  string          `json:"ingredient_id" gorm:"type:varchar(36);not null;index"`
	Delta         decimal.Decimal `json:"delta" gorm:"type:numeric(14,3);not null"` // Положительное = приход, отрицательное = расход
	QuantityAfter decimal.Decimal `json:"quantity_after" gorm:"type:numeric(14,3);not null"`
	MovementType  MovementType    `json:"movement_type" gorm:"type:varchar(20);not null;index"`
	ReferenceID   string          `json:"reference_id" gorm:"type:varchar(36);index"` // ID резерва или накладной
	PerformedBy   string          `json:"performed_by" gorm:"type:varchar(100)"`
	Notes         string          `json:"notes" gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName указывает имя таблицы
func (StockMovement) TableName() string {
	return "stock_movements"
}

// BeforeCreate генерирует UUID
func (sm *StockMovement) BeforeCreate(tx *gorm.DB) error {
	if sm.ID == "" {
		sm.ID = uuid.New().String()
	}
	return nil
}

// ReservationStatus статус резерва остатков
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// ReservationLine списанное под резерв количество одного ингредиента
type ReservationLine struct {
	IngredientID string          `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// StockReservation резерв остатков под еще не оплаченный заказ.
// Пишется в той же транзакции, что и списание, чтобы его можно было откатить
// после падения процесса
type StockReservation struct {
	ID          string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	Status      ReservationStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	LinesJSON   string            `json:"-" gorm:"column:lines;type:text;not null"`
	OrderID     string            `json:"order_id,omitempty" gorm:"type:varchar(36)"`
	ExpiresAt   time.Time         `json:"expires_at" gorm:"index"`
	CreatedBy   string            `json:"created_by" gorm:"type:varchar(100)"`
	CreatedAt   time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
	ReleaseNote string            `json:"release_note,omitempty" gorm:"type:text"`
}

// TableName указывает имя таблицы
func (StockReservation) TableName() string {
	return "stock_reservations"
}

// BeforeCreate генерирует UUID
func (r *StockReservation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// GetLines возвращает строки резерва из JSON
func (r *StockReservation) GetLines() ([]ReservationLine, error) {
	if r.LinesJSON == "" {
		return []ReservationLine{}, nil
	}
	var lines []ReservationLine
	if err := json.Unmarshal([]byte(r.LinesJSON), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// SetLines сохраняет строки резерва в JSON
func (r *StockReservation) SetLines(lines []ReservationLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	r.LinesJSON = string(data)
	return nil
}

// StockOrder накладная на пополнение склада (админ)
type StockOrder struct {
	ID        string           `json:"id" gorm:"type:varchar(36);primaryKey"`
	Lines     []StockOrderLine `json:"lines" gorm:"foreignKey:StockOrderID"`
	Total     decimal.Decimal  `json:"total" gorm:"type:numeric(12,2);not null"`
	CreatedBy string           `json:"created_by" gorm:"type:varchar(100)"`
	Notes     string           `json:"notes" gorm:"type:text"`
	CreatedAt time.Time        `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName указывает имя таблицы
func (StockOrder) TableName() string {
	return "stock_orders"
}

// BeforeCreate генерирует UUID
func (so *StockOrder) BeforeCreate(tx *gorm.DB) error {
	if so.ID == "" {
		so.ID = uuid.New().String()
	}
	return nil
}

// StockOrderLine позиция накладной
type StockOrderLine struct {
	ID           string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	StockOrderID string          `json:"stock_order_id" gorm:"type:varchar(36);not null;index"`
	IngredientID string          `json:"ingredient_id" gorm:"type:varchar(36);not null;index"`
	Quantity     decimal.Decimal `json:"quantity" gorm:"type:numeric(14,3);not null"`
	UnitPrice    decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2);not null"`
}

// TableName указывает имя таблицы
func (StockOrderLine) TableName() string {
	return "stock_order_lines"
}

// BeforeCreate генерирует UUID
func (l *StockOrderLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}
