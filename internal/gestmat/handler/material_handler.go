package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/service"
)

// MaterialHandler serves the inventory endpoints.
type MaterialHandler struct {
	inventorySvc *service.InventoryService
	dashboardSvc *service.DashboardService
}

func NewMaterialHandler(inventorySvc *service.InventoryService, dashboardSvc *service.DashboardService) *MaterialHandler {
	return &MaterialHandler{inventorySvc: inventorySvc, dashboardSvc: dashboardSvc}
}

// List GET /api/v1/materials
func (h *MaterialHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"category":  c.Query("category"),
		"condition": c.Query("condition"),
		"search":    c.Query("search"),
		"low_stock": c.Query("low_stock"),
	}

	materials, total, err := h.inventorySvc.ListMaterials(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "failed to list materials")
		return
	}
	Success(c, NewListResponse(materials, page, pageSize, total))
}

// Get GET /api/v1/materials/:id
func (h *MaterialHandler) Get(c *gin.Context) {
	material, err := h.inventorySvc.GetMaterial(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, material)
}

// Create POST /api/v1/materials
func (h *MaterialHandler) Create(c *gin.Context) {
	var input service.CreateMaterialInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	material, err := h.inventorySvc.CreateMaterial(c.Request.Context(), input, GetUserID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.dashboardSvc.InvalidateStats(c.Request.Context())
	Created(c, material)
}

// Update PUT /api/v1/materials/:id
func (h *MaterialHandler) Update(c *gin.Context) {
	var input service.UpdateMaterialInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	material, err := h.inventorySvc.UpdateMaterial(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, material)
}

// Delete DELETE /api/v1/materials/:id
func (h *MaterialHandler) Delete(c *gin.Context) {
	if err := h.inventorySvc.DeleteMaterial(c.Request.Context(), c.Param("id")); err != nil {
		HandleServiceError(c, err)
		return
	}
	h.dashboardSvc.InvalidateStats(c.Request.Context())
	Success(c, nil)
}

// AdjustStock POST /api/v1/materials/:id/adjust
func (h *MaterialHandler) AdjustStock(c *gin.Context) {
	var req struct {
		Quantity  int    `json:"quantity"`
		Direction string `json:"direction"`
		Reference string `json:"reference"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	movement, err := h.inventorySvc.AdjustStock(c.Request.Context(),
		c.Param("id"), req.Quantity, req.Direction, GetUserID(c), req.Reference)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.dashboardSvc.InvalidateStats(c.Request.Context())
	Created(c, movement)
}

// Resync POST /api/v1/materials/:id/resync
// Destructive: sets available back to total. Requires confirm=true.
func (h *MaterialHandler) Resync(c *gin.Context) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	material, err := h.inventorySvc.ResyncStock(c.Request.Context(), c.Param("id"), req.Confirm, GetUserID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.dashboardSvc.InvalidateStats(c.Request.Context())
	Success(c, material)
}

// ListMovements GET /api/v1/movements
func (h *MaterialHandler) ListMovements(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"material_id": c.Query("material_id"),
		"direction":   c.Query("direction"),
	}

	movements, total, err := h.inventorySvc.ListMovements(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "failed to list movements")
		return
	}
	Success(c, NewListResponse(movements, page, pageSize, total))
}

// ExportMovements GET /api/v1/movements/export
func (h *MaterialHandler) ExportMovements(c *gin.Context) {
	filters := map[string]string{
		"material_id": c.Query("material_id"),
		"direction":   c.Query("direction"),
	}

	buf, err := h.inventorySvc.ExportMovements(c.Request.Context(), filters)
	if err != nil {
		InternalError(c, "failed to export movements")
		return
	}

	filename := fmt.Sprintf("mouvements-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		buf.Bytes())
}
