package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrOrderImmutable - оплаченный заказ нельзя изменять или удалять
var ErrOrderImmutable = errors.New("paid order is immutable")

// OrderStatus статус заказа
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "Pending"
	OrderStatusPaid     OrderStatus = "Paid"
	OrderStatusRejected OrderStatus = "Rejected"
)

// PaymentMethod способ оплаты
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "Cash"
	PaymentCard PaymentMethod = "Card"
)

// Valid проверяет способ оплаты
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard
}

// CartLine строка корзины. Корзина живет только в запросе клиента
type CartLine struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

// Order зафиксированный заказ. Строка в БД появляется только после
// успешного резервирования и оплаты, сразу со статусом Paid
type Order struct {
	ID              string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	Lines           []OrderLine     `json:"lines" gorm:"foreignKey:OrderID"`
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"type:numeric(12,2);not null"`
	Status          OrderStatus     `json:"status" gorm:"type:varchar(20);not null;index"`
	PaymentMethod   PaymentMethod   `json:"payment_method" gorm:"type:varchar(10);not null"`
	AmountTendered  decimal.Decimal `json:"amount_tendered" gorm:"type:numeric(12,2);default:0"`
	Change          decimal.Decimal `json:"change" gorm:"type:numeric(12,2);default:0"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty" gorm:"type:varchar(255)"`
	ReservationID   string          `json:"reservation_id" gorm:"type:varchar(36);index"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty" gorm:"type:varchar(255);index"`
	PlacedBy        int64           `json:"placed_by" gorm:"index"`
	PlacedByRole    Role            `json:"placed_by_role" gorm:"type:varchar(20)"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName указывает имя таблицы
func (Order) TableName() string {
	return "orders"
}

// BeforeCreate генерирует UUID
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}

// BeforeUpdate запрещает менять заказ. В БД попадают только оплаченные заказы,
// поэтому запрет безусловный, в том числе для Model(&Order{}) без загруженной строки
func (o *Order) BeforeUpdate(tx *gorm.DB) error {
	return ErrOrderImmutable
}

// BeforeDelete запрещает удалять заказ
func (o *Order) BeforeDelete(tx *gorm.DB) error {
	return ErrOrderImmutable
}

// OrderLine позиция заказа. Цена копируется из меню на момент заказа
type OrderLine struct {
	ID         string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrderID    string          `json:"order_id" gorm:"type:varchar(36);not null;index"`
	Position   int             `json:"position" gorm:"not null"`
	MenuItemID string          `json:"menu_item_id" gorm:"type:varchar(36);not null;index"`
	Name       string          `json:"name" gorm:"type:varchar(255)"`
	Quantity   int             `json:"quantity" gorm:"not null"`
	UnitPrice  decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2);not null"`
	LineTotal  decimal.Decimal `json:"line_total" gorm:"type:numeric(12,2);not null"`
}

// TableName указывает имя таблицы
func (OrderLine) TableName() string {
	return "order_lines"
}

// BeforeCreate генерирует UUID
func (l *OrderLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}
