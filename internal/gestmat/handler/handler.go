package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/service"
)

// Handlers bundles the HTTP layer.
type Handlers struct {
	Auth      *AuthHandler
	Material  *MaterialHandler
	Request   *RequestHandler
	Delivery  *DeliveryHandler
	Dashboard *DashboardHandler
	Admin     *AdminHandler
}

// NewHandlers creates the handler set.
func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Auth:      NewAuthHandler(services.Auth),
		Material:  NewMaterialHandler(services.Inventory, services.Dashboard),
		Request:   NewRequestHandler(services.Workflow, services.Dashboard),
		Delivery:  NewDeliveryHandler(services.Fulfillment, services.Dashboard),
		Dashboard: NewDashboardHandler(services.Dashboard),
		Admin:     NewAdminHandler(services.User),
	}
}

// === Response helpers ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewListResponse(items interface{}, page, pageSize int, total int64) *ListResponse {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return &ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	}
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// HandleServiceError maps the service error taxonomy onto HTTP codes.
// Anything unrecognized is reported as a generic failure without
// leaking internals.
func HandleServiceError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		notFoundErr   *service.NotFoundError
		forbiddenErr  *service.ForbiddenTransitionError
		stateErr      *service.InvalidStateError
		stockErr      *service.InsufficientStockError
		duplicateErr  *service.DuplicateNameError
	)

	switch {
	case errors.As(err, &validationErr):
		BadRequest(c, validationErr.Error())
	case errors.As(err, &notFoundErr):
		NotFound(c, notFoundErr.Error())
	case errors.As(err, &forbiddenErr):
		Forbidden(c, forbiddenErr.Error())
	case errors.As(err, &stateErr):
		BadRequest(c, stateErr.Error())
	case errors.As(err, &stockErr):
		BadRequest(c, stockErr.Error())
	case errors.As(err, &duplicateErr):
		Conflict(c, duplicateErr.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		Unauthorized(c, "invalid email or password")
	default:
		InternalError(c, "internal error")
	}
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetRole(c *gin.Context) string {
	return c.GetString("role")
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
