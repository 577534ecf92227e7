package service

import (
	"github.com/mairie-adjarra/gestmat/internal/config"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services bundles the service layer.
type Services struct {
	Auth        *AuthService
	User        *UserService
	Inventory   *InventoryService
	Workflow    *WorkflowService
	Fulfillment *FulfillmentService
	Dashboard   *DashboardService
}

// NewServices wires the service set. rdb may be nil; the dashboard then
// skips its cache.
func NewServices(repos *repository.Repositories, db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Services {
	fulfillment := NewFulfillmentService(repos.Delivery, db)

	return &Services{
		Auth:        NewAuthService(repos.User, cfg),
		User:        NewUserService(repos.User, repos.Route),
		Inventory:   NewInventoryService(repos.Material, repos.Movement, db),
		Workflow: NewWorkflowService(
			repos.Request, repos.Material, repos.Route, repos.User,
			fulfillment, db, cfg.Workflow.PartialApprovalAdvances),
		Fulfillment: fulfillment,
		Dashboard:   NewDashboardService(db, rdb),
	}
}
