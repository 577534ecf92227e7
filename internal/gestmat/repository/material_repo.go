package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"gorm.io/gorm"
)

// MaterialRepository handles material persistence.
type MaterialRepository struct {
	db *gorm.DB
}

func NewMaterialRepository(db *gorm.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// FindAll lists materials with optional filters.
func (r *MaterialRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Material, int64, error) {
	var materials []entity.Material
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Material{})

	if category := filters["category"]; category != "" {
		query = query.Where("category = ?", category)
	}
	if condition := filters["condition"]; condition != "" {
		query = query.Where("condition = ?", condition)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("name ILIKE ? OR code ILIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if filters["low_stock"] == "true" {
		query = query.Where("available_qty < ?", lowStockThreshold)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("name ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&materials).Error

	return materials, total, err
}

// lowStockThreshold is the dashboard/low-stock filter cutoff.
const lowStockThreshold = 5

func (r *MaterialRepository) FindByID(ctx context.Context, id string) (*entity.Material, error) {
	var material entity.Material
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&material).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &material, nil
}

// FindByNameFold looks up a material by case-insensitive name, for the
// duplicate check on creation.
func (r *MaterialRepository) FindByNameFold(ctx context.Context, name string) (*entity.Material, error) {
	var material entity.Material
	err := r.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", name).
		First(&material).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &material, nil
}

func (r *MaterialRepository) Create(ctx context.Context, material *entity.Material) error {
	return r.db.WithContext(ctx).Create(material).Error
}

func (r *MaterialRepository) Update(ctx context.Context, material *entity.Material) error {
	return r.db.WithContext(ctx).Save(material).Error
}

func (r *MaterialRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&entity.Material{}, "id = ?", id).Error
}

// CountOpenLineRefs counts request lines referencing the material on
// requests that are still in flight. Deletion is refused while > 0.
func (r *MaterialRepository) CountOpenLineRefs(ctx context.Context, materialID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.RequestLine{}).
		Joins("JOIN requests ON requests.id = request_lines.request_id").
		Where("request_lines.material_id = ?", materialID).
		Where("requests.status NOT IN ?", []string{
			entity.RequestStatusDelivered,
			entity.RequestStatusRejected,
		}).
		Count(&count).Error
	return count, err
}

// GenerateCode produces the next material code MAT-{year}-{4 digits}.
func (r *MaterialRepository) GenerateCode(ctx context.Context) (string, error) {
	year := time.Now().Format("2006")
	prefix := fmt.Sprintf("MAT-%s-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.Material{}).
		Select("COALESCE(MAX(code), '')").
		Where("code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "MAT-"+year+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("MAT-%s-%04d", year, seq), nil
}

// MovementRepository handles the append-only stock ledger. There is no
// update or delete on purpose.
type MovementRepository struct {
	db *gorm.DB
}

func NewMovementRepository(db *gorm.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

func (r *MovementRepository) Create(ctx context.Context, movement *entity.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

// FindAll lists movements, newest first.
func (r *MovementRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.StockMovement, int64, error) {
	var movements []entity.StockMovement
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.StockMovement{})

	if materialID := filters["material_id"]; materialID != "" {
		query = query.Where("material_id = ?", materialID)
	}
	if direction := filters["direction"]; direction != "" {
		query = query.Where("direction = ?", direction)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Material").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&movements).Error

	return movements, total, err
}

// FindAllForExport returns the full filtered ledger without pagination.
func (r *MovementRepository) FindAllForExport(ctx context.Context, filters map[string]string) ([]entity.StockMovement, error) {
	var movements []entity.StockMovement

	query := r.db.WithContext(ctx).Model(&entity.StockMovement{})
	if materialID := filters["material_id"]; materialID != "" {
		query = query.Where("material_id = ?", materialID)
	}
	if direction := filters["direction"]; direction != "" {
		query = query.Where("direction = ?", direction)
	}

	err := query.
		Preload("Material").
		Order("created_at ASC").
		Find(&movements).Error
	return movements, err
}
