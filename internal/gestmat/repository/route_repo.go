package repository

import (
	"context"
	"errors"

	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"gorm.io/gorm"
)

// RouteRepository persists approval routing assignments.
type RouteRepository struct {
	db *gorm.DB
}

func NewRouteRepository(db *gorm.DB) *RouteRepository {
	return &RouteRepository{db: db}
}

// Resolve returns the approver assigned for a role. Director routes are
// looked up by department; the other stages use the global route
// (department_id IS NULL). A department-scoped route wins over a global
// one when both exist.
func (r *RouteRepository) Resolve(ctx context.Context, departmentID, role string) (*entity.ApprovalRoute, error) {
	var route entity.ApprovalRoute

	if departmentID != "" {
		err := r.db.WithContext(ctx).
			Where("department_id = ? AND role = ?", departmentID, role).
			First(&route).Error
		if err == nil {
			return &route, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	err := r.db.WithContext(ctx).
		Where("department_id IS NULL AND role = ?", role).
		First(&route).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &route, nil
}

func (r *RouteRepository) FindAll(ctx context.Context) ([]entity.ApprovalRoute, error) {
	var routes []entity.ApprovalRoute
	err := r.db.WithContext(ctx).
		Preload("User").
		Order("role ASC, department_id ASC NULLS FIRST").
		Find(&routes).Error
	return routes, err
}

func (r *RouteRepository) FindByID(ctx context.Context, id string) (*entity.ApprovalRoute, error) {
	var route entity.ApprovalRoute
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&route).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &route, nil
}

func (r *RouteRepository) Create(ctx context.Context, route *entity.ApprovalRoute) error {
	return r.db.WithContext(ctx).Create(route).Error
}

func (r *RouteRepository) Update(ctx context.Context, route *entity.ApprovalRoute) error {
	return r.db.WithContext(ctx).Save(route).Error
}

func (r *RouteRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&entity.ApprovalRoute{}, "id = ?", id).Error
}
