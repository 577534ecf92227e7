package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"gorm.io/gorm"
)

// DeliveryRepository handles deliveries and their items.
type DeliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) FindByID(ctx context.Context, id string) (*entity.Delivery, error) {
	var delivery entity.Delivery
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Material").
		Preload("Request").
		Where("id = ?", id).
		First(&delivery).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &delivery, nil
}

// FindByRequestID loads the latest delivery created for a request, if
// any. Earlier canceled attempts are skipped over.
func (r *DeliveryRepository) FindByRequestID(ctx context.Context, requestID string) (*entity.Delivery, error) {
	var delivery entity.Delivery
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("request_id = ?", requestID).
		Order("created_at DESC").
		First(&delivery).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &delivery, nil
}

func (r *DeliveryRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Delivery, int64, error) {
	var deliveries []entity.Delivery
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Delivery{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Items").
		Preload("Items.Material").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&deliveries).Error

	return deliveries, total, err
}

func (r *DeliveryRepository) Create(ctx context.Context, delivery *entity.Delivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *DeliveryRepository) Update(ctx context.Context, delivery *entity.Delivery) error {
	return r.db.WithContext(ctx).Save(delivery).Error
}

// GenerateCode produces the next delivery code LIV-{year}-{4 digits}.
func (r *DeliveryRepository) GenerateCode(ctx context.Context) (string, error) {
	year := time.Now().Format("2006")
	prefix := fmt.Sprintf("LIV-%s-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.Delivery{}).
		Select("COALESCE(MAX(code), '')").
		Where("code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "LIV-"+year+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("LIV-%s-%04d", year, seq), nil
}
