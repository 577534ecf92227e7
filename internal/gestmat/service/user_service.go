package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/repository"
	"golang.org/x/crypto/bcrypt"
)

// UserService manages accounts, departments and approval routes.
type UserService struct {
	userRepo  *repository.UserRepository
	routeRepo *repository.RouteRepository
}

func NewUserService(userRepo *repository.UserRepository, routeRepo *repository.RouteRepository) *UserService {
	return &UserService{userRepo: userRepo, routeRepo: routeRepo}
}

var validRoles = map[string]bool{
	entity.RoleAgent:        true,
	entity.RoleDirector:     true,
	entity.RoleStockManager: true,
	entity.RoleFinance:      true,
	entity.RoleSecretary:    true,
	entity.RoleAdmin:        true,
}

// CreateUserInput is the account creation payload.
type CreateUserInput struct {
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Password     string  `json:"password"`
	Role         string  `json:"role"`
	DepartmentID *string `json:"department_id"`
}

func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*entity.User, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, newValidationError("name", "name is required")
	}
	if strings.TrimSpace(input.Email) == "" {
		return nil, newValidationError("email", "email is required")
	}
	if len(input.Password) < 8 {
		return nil, newValidationError("password", "password must be at least 8 characters")
	}
	if !validRoles[input.Role] {
		return nil, newValidationError("role", "unknown role: "+input.Role)
	}
	if input.DepartmentID != nil {
		if _, err := s.userRepo.FindDepartmentByID(ctx, *input.DepartmentID); err != nil {
			if err == repository.ErrNotFound {
				return nil, &NotFoundError{Resource: "department", ID: *input.DepartmentID}
			}
			return nil, err
		}
	}

	if existing, err := s.userRepo.FindByEmail(ctx, input.Email); err == nil && existing != nil {
		return nil, newValidationError("email", "email already in use")
	} else if err != nil && err != repository.ErrNotFound {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entity.User{
		ID:           uuid.New().String()[:32],
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: string(hash),
		Role:         input.Role,
		DepartmentID: input.DepartmentID,
		Active:       true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user.PasswordHash = ""
	return user, nil
}

// UpdateUserInput carries the editable account fields.
type UpdateUserInput struct {
	Name         *string `json:"name"`
	Role         *string `json:"role"`
	DepartmentID *string `json:"department_id"`
	Active       *bool   `json:"active"`
	Password     *string `json:"password"`
}

func (s *UserService) UpdateUser(ctx context.Context, id string, input UpdateUserInput) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, &NotFoundError{Resource: "user", ID: id}
		}
		return nil, err
	}

	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Role != nil {
		if !validRoles[*input.Role] {
			return nil, newValidationError("role", "unknown role: "+*input.Role)
		}
		user.Role = *input.Role
	}
	if input.DepartmentID != nil {
		if _, err := s.userRepo.FindDepartmentByID(ctx, *input.DepartmentID); err != nil {
			if err == repository.ErrNotFound {
				return nil, &NotFoundError{Resource: "department", ID: *input.DepartmentID}
			}
			return nil, err
		}
		user.DepartmentID = input.DepartmentID
	}
	if input.Active != nil {
		user.Active = *input.Active
	}
	if input.Password != nil {
		if len(*input.Password) < 8 {
			return nil, newValidationError("password", "password must be at least 8 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}
	user.UpdatedAt = time.Now()

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.userRepo.FindByID(ctx, id); err != nil {
		if err == repository.ErrNotFound {
			return &NotFoundError{Resource: "user", ID: id}
		}
		return err
	}
	return s.userRepo.Delete(ctx, id)
}

func (s *UserService) GetUser(ctx context.Context, id string) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, &NotFoundError{Resource: "user", ID: id}
		}
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.User, int64, error) {
	users, total, err := s.userRepo.FindAll(ctx, page, pageSize, filters)
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, total, err
}

// === Departments ===

func (s *UserService) CreateDepartment(ctx context.Context, name string) (*entity.Department, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newValidationError("name", "name is required")
	}
	dept := &entity.Department{
		ID:        uuid.New().String()[:32],
		Name:      name,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.userRepo.CreateDepartment(ctx, dept); err != nil {
		return nil, fmt.Errorf("failed to create department: %w", err)
	}
	return dept, nil
}

func (s *UserService) ListDepartments(ctx context.Context) ([]entity.Department, error) {
	return s.userRepo.FindAllDepartments(ctx)
}

func (s *UserService) DeleteDepartment(ctx context.Context, id string) error {
	if _, err := s.userRepo.FindDepartmentByID(ctx, id); err != nil {
		if err == repository.ErrNotFound {
			return &NotFoundError{Resource: "department", ID: id}
		}
		return err
	}
	return s.userRepo.DeleteDepartment(ctx, id)
}

// === Approval routes ===

// SetRouteInput assigns an approver. DepartmentID is required for the
// director role and must be empty for the town-hall-wide stages.
type SetRouteInput struct {
	DepartmentID *string `json:"department_id"`
	Role         string  `json:"role"`
	UserID       string  `json:"user_id"`
}

func (s *UserService) SetRoute(ctx context.Context, input SetRouteInput) (*entity.ApprovalRoute, error) {
	switch input.Role {
	case entity.RoleDirector:
		if input.DepartmentID == nil {
			return nil, newValidationError("department_id", "director routes are department-scoped")
		}
	case entity.RoleStockManager, entity.RoleFinance, entity.RoleSecretary:
		if input.DepartmentID != nil {
			return nil, newValidationError("department_id", "this stage is town-hall-wide")
		}
	default:
		return nil, newValidationError("role", "role has no approval stage: "+input.Role)
	}

	user, err := s.userRepo.FindByID(ctx, input.UserID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, &NotFoundError{Resource: "user", ID: input.UserID}
		}
		return nil, err
	}
	if user.Role != input.Role {
		return nil, newValidationError("user_id",
			fmt.Sprintf("user has role %s, route requires %s", user.Role, input.Role))
	}

	// One route per (department, role): replace any existing one.
	deptID := ""
	if input.DepartmentID != nil {
		deptID = *input.DepartmentID
	}
	if existing, err := s.routeRepo.Resolve(ctx, deptID, input.Role); err == nil {
		sameScope := (existing.DepartmentID == nil) == (input.DepartmentID == nil)
		if sameScope {
			existing.UserID = input.UserID
			existing.UpdatedAt = time.Now()
			if err := s.routeRepo.Update(ctx, existing); err != nil {
				return nil, err
			}
			return existing, nil
		}
	} else if err != repository.ErrNotFound {
		return nil, err
	}

	route := &entity.ApprovalRoute{
		ID:           uuid.New().String()[:32],
		DepartmentID: input.DepartmentID,
		Role:         input.Role,
		UserID:       input.UserID,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.routeRepo.Create(ctx, route); err != nil {
		return nil, fmt.Errorf("failed to create approval route: %w", err)
	}
	return route, nil
}

func (s *UserService) ListRoutes(ctx context.Context) ([]entity.ApprovalRoute, error) {
	return s.routeRepo.FindAll(ctx)
}

func (s *UserService) DeleteRoute(ctx context.Context, id string) error {
	if _, err := s.routeRepo.FindByID(ctx, id); err != nil {
		if err == repository.ErrNotFound {
			return &NotFoundError{Resource: "approval route", ID: id}
		}
		return err
	}
	return s.routeRepo.Delete(ctx, id)
}
