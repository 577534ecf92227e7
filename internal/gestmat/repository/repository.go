package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories bundles all data access objects.
type Repositories struct {
	User     *UserRepository
	Material *MaterialRepository
	Movement *MovementRepository
	Request  *RequestRepository
	Delivery *DeliveryRepository
	Route    *RouteRepository
}

// NewRepositories creates the repository set on a shared gorm handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:     NewUserRepository(db),
		Material: NewMaterialRepository(db),
		Movement: NewMovementRepository(db),
		Request:  NewRequestRepository(db),
		Delivery: NewDeliveryRepository(db),
		Route:    NewRouteRepository(db),
	}
}
