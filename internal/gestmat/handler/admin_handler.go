package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/service"
)

// AdminHandler serves user, department and routing administration.
type AdminHandler struct {
	userSvc *service.UserService
}

func NewAdminHandler(userSvc *service.UserService) *AdminHandler {
	return &AdminHandler{userSvc: userSvc}
}

// === Users ===

// ListUsers GET /api/v1/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"role":          c.Query("role"),
		"department_id": c.Query("department_id"),
		"search":        c.Query("search"),
	}

	users, total, err := h.userSvc.ListUsers(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "failed to list users")
		return
	}
	Success(c, NewListResponse(users, page, pageSize, total))
}

// GetUser GET /api/v1/users/:id
func (h *AdminHandler) GetUser(c *gin.Context) {
	user, err := h.userSvc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, user)
}

// CreateUser POST /api/v1/users
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var input service.CreateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	user, err := h.userSvc.CreateUser(c.Request.Context(), input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, user)
}

// UpdateUser PUT /api/v1/users/:id
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var input service.UpdateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	user, err := h.userSvc.UpdateUser(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, user)
}

// DeleteUser DELETE /api/v1/users/:id
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	if err := h.userSvc.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}

// === Departments ===

// ListDepartments GET /api/v1/departments
func (h *AdminHandler) ListDepartments(c *gin.Context) {
	depts, err := h.userSvc.ListDepartments(c.Request.Context())
	if err != nil {
		InternalError(c, "failed to list departments")
		return
	}
	Success(c, gin.H{"items": depts})
}

// CreateDepartment POST /api/v1/departments
func (h *AdminHandler) CreateDepartment(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "name is required")
		return
	}

	dept, err := h.userSvc.CreateDepartment(c.Request.Context(), req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, dept)
}

// DeleteDepartment DELETE /api/v1/departments/:id
func (h *AdminHandler) DeleteDepartment(c *gin.Context) {
	if err := h.userSvc.DeleteDepartment(c.Request.Context(), c.Param("id")); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}

// === Approval routes ===

// ListRoutes GET /api/v1/approval-routes
func (h *AdminHandler) ListRoutes(c *gin.Context) {
	routes, err := h.userSvc.ListRoutes(c.Request.Context())
	if err != nil {
		InternalError(c, "failed to list approval routes")
		return
	}
	Success(c, gin.H{"items": routes})
}

// SetRoute POST /api/v1/approval-routes
func (h *AdminHandler) SetRoute(c *gin.Context) {
	var input service.SetRouteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	route, err := h.userSvc.SetRoute(c.Request.Context(), input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, route)
}

// DeleteRoute DELETE /api/v1/approval-routes/:id
func (h *AdminHandler) DeleteRoute(c *gin.Context) {
	if err := h.userSvc.DeleteRoute(c.Request.Context(), c.Param("id")); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}
