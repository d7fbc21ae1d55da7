package models

import "time"

// GateState состояние приема заказов
type GateState string

const (
	GateAccepting GateState = "Accepting"
	GateBusy      GateState = "Busy"
)

// Valid проверяет значение
func (s GateState) Valid() bool {
	return s == GateAccepting || s == GateBusy
}

// ServiceGateID единственная строка таблицы service_gate
const ServiceGateID = 1

// ServiceGateState авторитетное значение флага для всех инстансов.
// Version растет на каждое изменение, по нему отбрасываем устаревшие чтения
type ServiceGateState struct {
	ID        int       `json:"-" gorm:"primaryKey;autoIncrement:false"`
	State     GateState `json:"state" gorm:"type:varchar(20);not null"`
	Version   int64     `json:"version" gorm:"not null;default:0"`
	UpdatedBy string    `json:"updated_by" gorm:"type:varchar(100)"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName указывает имя таблицы
func (ServiceGateState) TableName() string {
	return "service_gate"
}

// SettlementStatus статус попытки оплаты корзины
type SettlementStatus string

const (
	SettlementInFlight  SettlementStatus = "in_flight"
	SettlementCommitted SettlementStatus = "committed"
	SettlementRejected  SettlementStatus = "rejected"
)

// SettlementAttempt попытка оформления корзины с ключом идемпотентности.
// Повторная отправка с тем же ключом не приводит к повторному списанию денег.
// CartHash отпечаток корзины и отправителя: тот же ключ с другой корзиной - дубликат.
// in_flight старше ExpiresAt закрывает ReservationSweeper
type SettlementAttempt struct {
	IdempotencyKey string           `json:"idempotency_key" gorm:"type:varchar(255);primaryKey"`
	Status         SettlementStatus `json:"status" gorm:"type:varchar(20);not null;index:idx_attempt_status_expires"`
	CartHash       string           `json:"-" gorm:"type:varchar(64)"`
	ReservationID  string           `json:"reservation_id,omitempty" gorm:"type:varchar(36)"`
	ExpiresAt      time.Time        `json:"expires_at" gorm:"index:idx_attempt_status_expires"`
	OrderID        string           `json:"order_id,omitempty" gorm:"type:varchar(36)"`
	RejectReason   string           `json:"reject_reason,omitempty" gorm:"type:varchar(50)"`
	RejectDetails  string           `json:"reject_details,omitempty" gorm:"type:text"`
	CreatedAt      time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (SettlementAttempt) TableName() string {
	return "settlement_attempts"
}
