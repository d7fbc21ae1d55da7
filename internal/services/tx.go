package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// runInTx выполняет fn в транзакции. Внутри fn работаем только через tx
func runInTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return classifyDBError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return classifyDBError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// classifyDBError превращает нарушение CHECK остатков в ErrConsistencyViolation
func classifyDBError(err error) error {
	if err == nil || errors.Is(err, ErrConsistencyViolation) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		return fmt.Errorf("%w: %s: %v", ErrConsistencyViolation, pgErr.ConstraintName, err)
	}
	if strings.Contains(err.Error(), "CHECK constraint failed") {
		return fmt.Errorf("%w: %v", ErrConsistencyViolation, err)
	}
	return err
}

// isUniqueViolation - повтор уникального ключа (Postgres 23505 или SQLite)
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation - нарушение внешнего ключа (Postgres 23503 или SQLite)
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
