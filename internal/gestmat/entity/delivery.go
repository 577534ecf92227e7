package entity

import "time"

// Delivery is created when a fully approved request is fulfilled. Stock
// has already been deducted by then; confirming only flips the status
// and stamps the date. A request holds at most one non-canceled
// delivery (partial unique index); canceled attempts stay for the
// audit trail.
type Delivery struct {
	ID          string     `json:"id" gorm:"primaryKey;size:32"`
	Code        string     `json:"code" gorm:"size:32;uniqueIndex;not null"`
	RequestID   string     `json:"request_id" gorm:"size:32;not null;index"`
	HandlerID   string     `json:"handler_id" gorm:"size:32;not null"`
	Status      string     `json:"status" gorm:"size:20;not null;default:in_progress"`
	DeliveredAt *time.Time `json:"delivered_at"`
	Comment     string     `json:"comment" gorm:"type:text"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Items   []DeliveryItem `json:"items,omitempty" gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE"`
	Request *Request       `json:"request,omitempty" gorm:"foreignKey:RequestID"`
}

func (Delivery) TableName() string {
	return "deliveries"
}

// Delivery statuses
const (
	DeliveryStatusInProgress = "in_progress"
	DeliveryStatusDelivered  = "delivered"
	DeliveryStatusCanceled   = "canceled"
)

// DeliveryItem pairs a delivery with one material, keeping both the
// originally requested and the actually delivered quantity.
type DeliveryItem struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	DeliveryID   string    `json:"delivery_id" gorm:"size:32;not null;index"`
	MaterialID   string    `json:"material_id" gorm:"size:32;not null"`
	RequestedQty int       `json:"requested_qty" gorm:"not null"`
	DeliveredQty int       `json:"delivered_qty" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`

	Material *Material `json:"material,omitempty" gorm:"foreignKey:MaterialID"`
}

func (DeliveryItem) TableName() string {
	return "delivery_items"
}
