package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// DashboardService aggregates counters for the stat tiles. Results are
// cached in redis for a short TTL; with no redis client it reads
// straight from the database.
type DashboardService struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewDashboardService(db *gorm.DB, rdb *redis.Client) *DashboardService {
	return &DashboardService{db: db, rdb: rdb}
}

const statsCacheTTL = 30 * time.Second

// Stats is the dashboard payload.
type Stats struct {
	RequestsTotal        int64 `json:"requests_total"`
	RequestsPending      int64 `json:"requests_pending"`
	RequestsRejected     int64 `json:"requests_rejected"`
	MaterialsTotal       int64 `json:"materials_total"`
	MaterialsLowStock    int64 `json:"materials_low_stock"`
	PendingValidations   int64 `json:"pending_validations"`
	DeliveriesInProgress int64 `json:"deliveries_in_progress"`
	MovementsTotal       int64 `json:"movements_total"`
}

// GetStats computes the tiles for an actor. PendingValidations is the
// actor's own queue, so the cache key includes the user.
func (s *DashboardService) GetStats(ctx context.Context, actorID, role string) (*Stats, error) {
	cacheKey := fmt.Sprintf("gestmat:stats:%s:%s", role, actorID)

	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var stats Stats
			if json.Unmarshal([]byte(cached), &stats) == nil {
				return &stats, nil
			}
		}
	}

	stats := &Stats{}

	if err := s.db.WithContext(ctx).Model(&entity.Request{}).Count(&stats.RequestsTotal).Error; err != nil {
		return nil, err
	}
	pendingStatuses := []string{
		entity.RequestStatusPendingDirector,
		entity.RequestStatusPendingStockManager,
		entity.RequestStatusPendingFinance,
		entity.RequestStatusPendingSecretary,
	}
	if err := s.db.WithContext(ctx).Model(&entity.Request{}).
		Where("status IN ?", pendingStatuses).
		Count(&stats.RequestsPending).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&entity.Request{}).
		Where("status = ?", entity.RequestStatusRejected).
		Count(&stats.RequestsRejected).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&entity.Material{}).Count(&stats.MaterialsTotal).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&entity.Material{}).
		Where("available_qty < ?", 5).
		Count(&stats.MaterialsLowStock).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&entity.Delivery{}).
		Where("status = ?", entity.DeliveryStatusInProgress).
		Count(&stats.DeliveriesInProgress).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&entity.StockMovement{}).Count(&stats.MovementsTotal).Error; err != nil {
		return nil, err
	}

	if pending := pendingValidationQuery(role); pending != nil {
		status, column := pending[0], pending[1]
		if err := s.db.WithContext(ctx).Model(&entity.Request{}).
			Where("status = ?", status).
			Where(column+" = ?", actorID).
			Count(&stats.PendingValidations).Error; err != nil {
			return nil, err
		}
	}

	if s.rdb != nil {
		if payload, err := json.Marshal(stats); err == nil {
			s.rdb.Set(ctx, cacheKey, payload, statsCacheTTL)
		}
	}

	return stats, nil
}

// pendingValidationQuery maps an approval role to its queue filter.
func pendingValidationQuery(role string) []string {
	switch role {
	case entity.RoleDirector:
		return []string{entity.RequestStatusPendingDirector, "director_id"}
	case entity.RoleStockManager:
		return []string{entity.RequestStatusPendingStockManager, "stock_manager_id"}
	case entity.RoleFinance:
		return []string{entity.RequestStatusPendingFinance, "finance_id"}
	case entity.RoleSecretary:
		return []string{entity.RequestStatusPendingSecretary, "secretary_id"}
	}
	return nil
}

// InvalidateStats drops all cached stat entries. Called after workflow
// or stock mutations; failures are ignored, the TTL catches up.
func (s *DashboardService) InvalidateStats(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	iter := s.rdb.Scan(ctx, 0, "gestmat:stats:*", 100).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
}
