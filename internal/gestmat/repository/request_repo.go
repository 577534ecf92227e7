package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"gorm.io/gorm"
)

// RequestRepository handles requests and their lines.
type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// FindByID loads a request with its lines and material details.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*entity.Request, error) {
	var req entity.Request
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Lines.Material").
		Preload("Requester").
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// FindAll lists requests with optional filters.
func (r *RequestRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Request, int64, error) {
	var requests []entity.Request
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Request{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if requesterID := filters["requester_id"]; requesterID != "" {
		query = query.Where("requester_id = ?", requesterID)
	}
	if deptID := filters["department_id"]; deptID != "" {
		query = query.Where("department_id = ?", deptID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Lines").
		Preload("Lines.Material").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&requests).Error

	return requests, total, err
}

// FindPendingForApprover lists requests sitting in a status and assigned
// to the given approver.
func (r *RequestRepository) FindPendingForApprover(ctx context.Context, status, approverColumn, approverID string) ([]entity.Request, error) {
	var requests []entity.Request
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Lines.Material").
		Preload("Requester").
		Where("status = ?", status).
		Where(approverColumn+" = ?", approverID).
		Order("created_at ASC").
		Find(&requests).Error
	return requests, err
}

// CountByStatus counts requests per status, for the dashboard.
func (r *RequestRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Request{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// Create persists a request together with its lines.
func (r *RequestRepository) Create(ctx context.Context, req *entity.Request) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *RequestRepository) Update(ctx context.Context, req *entity.Request) error {
	return r.db.WithContext(ctx).Save(req).Error
}

// Delete removes a request; lines go with it (cascade).
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Select("Lines").Delete(&entity.Request{ID: id}).Error
}

// GenerateCode produces the next request code REQ-{year}-{4 digits}.
func (r *RequestRepository) GenerateCode(ctx context.Context) (string, error) {
	year := time.Now().Format("2006")
	prefix := fmt.Sprintf("REQ-%s-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.Request{}).
		Select("COALESCE(MAX(code), '')").
		Where("code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "REQ-"+year+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("REQ-%s-%04d", year, seq), nil
}
