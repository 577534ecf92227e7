package entity

import "time"

// Material is a stock item. AvailableQty only moves through stock
// movements and fulfillment; it is never set directly after creation.
// Invariant: 0 <= AvailableQty <= TotalQty.
type Material struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	Code         string    `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name         string    `json:"name" gorm:"size:150;not null"`
	Category     string    `json:"category" gorm:"size:100"`
	TotalQty     int       `json:"total_qty" gorm:"not null"`
	AvailableQty int       `json:"available_qty" gorm:"not null"`
	Condition    string    `json:"condition" gorm:"size:20;default:neuf"` // neuf/bon/usage/hors_service
	CreatedBy    string    `json:"created_by" gorm:"size:32"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Material) TableName() string {
	return "materials"
}

// Material condition tags
const (
	ConditionNew    = "neuf"
	ConditionGood   = "bon"
	ConditionUsed   = "usage"
	ConditionBroken = "hors_service"
)

// StockMovement is one append-only ledger entry. Rows are never updated
// or deleted; the material's available quantity is the running balance.
type StockMovement struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	MaterialID string    `json:"material_id" gorm:"size:32;not null;index"`
	Direction  string    `json:"direction" gorm:"size:10;not null"` // in/out
	Quantity   int       `json:"quantity" gorm:"not null"`          // always > 0
	ActorID    string    `json:"actor_id" gorm:"size:32;not null"`
	Reference  string    `json:"reference" gorm:"size:100"` // request/delivery code or free text
	CreatedAt  time.Time `json:"created_at" gorm:"index"`

	Material *Material `json:"material,omitempty" gorm:"foreignKey:MaterialID"`
}

func (StockMovement) TableName() string {
	return "stock_movements"
}

// Movement directions
const (
	MovementIn  = "in"
	MovementOut = "out"
)
