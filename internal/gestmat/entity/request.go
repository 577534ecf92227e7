package entity

import "time"

// Request is a bundle of material lines moving through the approval
// chain. Stage approvers are resolved from the routing table when the
// request enters the stage and recorded here.
type Request struct {
	ID           string `json:"id" gorm:"primaryKey;size:32"`
	Code         string `json:"code" gorm:"size:32;uniqueIndex;not null"`
	RequesterID  string `json:"requester_id" gorm:"size:32;not null;index"`
	DepartmentID string `json:"department_id" gorm:"size:32;not null;index"`
	Status       string `json:"status" gorm:"size:30;not null;index"`

	// Stage approvers, filled in as the request advances
	DirectorID     *string `json:"director_id" gorm:"size:32"`
	StockManagerID *string `json:"stock_manager_id" gorm:"size:32"`
	FinanceID      *string `json:"finance_id" gorm:"size:32"`
	SecretaryID    *string `json:"secretary_id" gorm:"size:32"`

	// Stage decision timestamps
	DirectorValidatedAt     *time.Time `json:"director_validated_at"`
	StockManagerValidatedAt *time.Time `json:"stock_manager_validated_at"`
	FinanceValidatedAt      *time.Time `json:"finance_validated_at"`
	SecretaryValidatedAt    *time.Time `json:"secretary_validated_at"`

	// Stage comments
	DirectorComment     string `json:"director_comment" gorm:"type:text"`
	StockManagerComment string `json:"stock_manager_comment" gorm:"type:text"`
	FinanceComment      string `json:"finance_comment" gorm:"type:text"`
	SecretaryComment    string `json:"secretary_comment" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines     []RequestLine `json:"lines,omitempty" gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE"`
	Requester *User         `json:"requester,omitempty" gorm:"foreignKey:RequesterID"`
}

func (Request) TableName() string {
	return "requests"
}

// Request statuses
const (
	RequestStatusPendingDirector     = "pending_director"
	RequestStatusPendingStockManager = "pending_stock_manager"
	RequestStatusPendingFinance      = "pending_finance"
	RequestStatusPendingSecretary    = "pending_secretary"
	RequestStatusApprovedFinal       = "approved_final"
	RequestStatusFulfillment         = "fulfillment_in_progress"
	RequestStatusDelivered           = "delivered"
	RequestStatusRejected            = "rejected"
)

// IsTerminal reports whether no further approval action is possible.
func (r *Request) IsTerminal() bool {
	switch r.Status {
	case RequestStatusApprovedFinal, RequestStatusFulfillment,
		RequestStatusDelivered, RequestStatusRejected:
		return true
	}
	return false
}

// RequestLine is one material + quantity entry within a request.
// Status is explicit; it is never inferred from which quantity fields
// happen to be set. Once rejected a line stays rejected.
type RequestLine struct {
	ID            string `json:"id" gorm:"primaryKey;size:32"`
	RequestID     string `json:"request_id" gorm:"size:32;not null;index"`
	MaterialID    string `json:"material_id" gorm:"size:32;not null;index"`
	RequestedQty  int    `json:"requested_qty" gorm:"not null"`
	Justification string `json:"justification" gorm:"type:text"`
	Status        string `json:"status" gorm:"size:20;not null;default:pending"`

	// Stage quantity revisions. ApprovedQty is the quantity currently
	// carried forward; it starts at RequestedQty when the director
	// approves and may be lowered by later stages.
	ProposedQtyStockManager *int `json:"proposed_qty_stock_manager"`
	ConfirmedQtyFinance     *int `json:"confirmed_qty_finance"`
	ApprovedQty             int  `json:"approved_qty" gorm:"default:0"`

	// Per-stage validation timestamps
	DirectorValidatedAt     *time.Time `json:"director_validated_at"`
	StockManagerValidatedAt *time.Time `json:"stock_manager_validated_at"`
	FinanceValidatedAt      *time.Time `json:"finance_validated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Material *Material `json:"material,omitempty" gorm:"foreignKey:MaterialID"`
}

func (RequestLine) TableName() string {
	return "request_lines"
}

// Line statuses
const (
	LineStatusPending  = "pending"
	LineStatusApproved = "approved"
	LineStatusRejected = "rejected"
)
