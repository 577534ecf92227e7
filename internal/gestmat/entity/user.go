package entity

import "time"

// User is a town hall staff account. The role decides which approval
// stage (if any) the user can act on.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	Name         string    `json:"name" gorm:"size:100;not null"`
	Email        string    `json:"email" gorm:"size:150;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:100;not null"`
	Role         string    `json:"role" gorm:"size:30;not null;index"`
	DepartmentID *string   `json:"department_id" gorm:"size:32;index"`
	Active       bool      `json:"active" gorm:"default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Department *Department `json:"department,omitempty" gorm:"foreignKey:DepartmentID"`
}

func (User) TableName() string {
	return "users"
}

// Roles. The four middle roles are the approval chain, in order.
const (
	RoleAgent        = "agent"
	RoleDirector     = "directeur"
	RoleStockManager = "gestionnaire_stock"
	RoleFinance      = "daaf"
	RoleSecretary    = "secretaire_executif"
	RoleAdmin        = "admin"
)

// Department is an organizational unit ("service" on the org chart).
// Director approval is routed per department.
type Department struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Name      string    `json:"name" gorm:"size:150;uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Department) TableName() string {
	return "departments"
}

// ApprovalRoute assigns the approver for a role. Director routes are
// department-scoped (DepartmentID set); stock manager, finance and
// secretary routes are town-hall-wide (DepartmentID nil). Requests
// resolve their approver through this table at transition time instead
// of picking whichever user happens to carry the role.
type ApprovalRoute struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	DepartmentID *string   `json:"department_id" gorm:"size:32;index:idx_route_dept_role"`
	Role         string    `json:"role" gorm:"size:30;not null;index:idx_route_dept_role"`
	UserID       string    `json:"user_id" gorm:"size:32;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (ApprovalRoute) TableName() string {
	return "approval_routes"
}
