package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bistro/server/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MenuItemInput данные позиции меню
type MenuItemInput struct {
	Name        string          `json:"name" binding:"required"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	IsActive    *bool           `json:"is_active"`
}

// MenuService управляет справочником позиций меню.
// Доступность здесь не хранится, ее считает AvailabilityService
type MenuService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewMenuService создает новый сервис меню
func NewMenuService(db *gorm.DB, log *zap.Logger) *MenuService {
	return &MenuService{db: db, log: log}
}

func (in MenuItemInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("%w: price must be non-negative", ErrInvalidInput)
	}
	return nil
}

// Create создает позицию меню
func (ms *MenuService) Create(ctx context.Context, in MenuItemInput) (*models.MenuItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	item := &models.MenuItem{
		Name:        strings.TrimSpace(in.Name),
		Category:    in.Category,
		Price:       in.Price,
		Description: in.Description,
		ImageURL:    in.ImageURL,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if err := ms.db.WithContext(ctx).Create(item).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: menu item %q already exists", ErrInvalidInput, item.Name)
		}
		return nil, fmt.Errorf("failed to create menu item: %w", err)
	}
	// gorm пропускает false при создании из-за default:true
	if !item.IsActive {
		if err := ms.db.WithContext(ctx).Model(item).Update("is_active", false).Error; err != nil {
			return nil, err
		}
	}
	ms.log.Info("✅ Позиция меню создана", zap.String("id", item.ID), zap.String("name", item.Name))
	return item, nil
}

// Update полностью заменяет поля позиции меню
func (ms *MenuService) Update(ctx context.Context, id string, in MenuItemInput) (*models.MenuItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	item, err := ms.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"name":        strings.TrimSpace(in.Name),
		"category":    in.Category,
		"price":       in.Price,
		"description": in.Description,
		"image_url":   in.ImageURL,
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if err := ms.db.WithContext(ctx).Model(item).Updates(updates).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: menu item name already exists", ErrInvalidInput)
		}
		return nil, fmt.Errorf("failed to update menu item: %w", err)
	}
	return ms.Get(ctx, id)
}

// Delete снимает позицию с продажи. Оплаченные заказы хранят копию цены и имени
func (ms *MenuService) Delete(ctx context.Context, id string) error {
	res := ms.db.WithContext(ctx).Model(&models.MenuItem{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: menu item %s", ErrNotFound, id)
	}
	return nil
}

// Get возвращает позицию меню
func (ms *MenuService) Get(ctx context.Context, id string) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := ms.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: menu item %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &item, nil
}

// List возвращает позиции меню, includeInactive - вместе со снятыми
func (ms *MenuService) List(ctx context.Context, includeInactive bool) ([]models.MenuItem, error) {
	var items []models.MenuItem
	query := ms.db.WithContext(ctx).Order("category, name")
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
