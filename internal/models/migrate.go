package models

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoMigrate создает таблицы в БД и строку флага приема заказов
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	tables := []interface{}{
		&Ingredient{},
		&MenuItem{},
		&RecipeEntry{},
		&StockMovement{},
		&StockReservation{},
		&StockOrder{},
		&StockOrderLine{},
		&Order{},
		&OrderLine{},
		&SettlementAttempt{},
		&ServiceGateState{},
	}

	// Мигрируем по одной таблице, чтобы видеть, на какой упали
	for _, t := range tables {
		if err := db.AutoMigrate(t); err != nil {
			log.Error("❌ AutoMigrate failed", zap.String("model", fmt.Sprintf("%T", t)), zap.Error(err))
			return err
		}
	}
	log.Info("✅ Tables migrated successfully", zap.Int("count", len(tables)))

	// Строка флага должна существовать всегда, по умолчанию прием открыт
	gate := ServiceGateState{ID: ServiceGateID, State: GateAccepting, UpdatedBy: "system", UpdatedAt: time.Now()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&gate).Error; err != nil {
		log.Error("❌ Не удалось создать строку service_gate", zap.Error(err))
		return err
	}

	return nil
}
