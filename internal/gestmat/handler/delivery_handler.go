package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/service"
)

// DeliveryHandler serves the delivery endpoints.
type DeliveryHandler struct {
	fulfillmentSvc *service.FulfillmentService
	dashboardSvc   *service.DashboardService
}

func NewDeliveryHandler(fulfillmentSvc *service.FulfillmentService, dashboardSvc *service.DashboardService) *DeliveryHandler {
	return &DeliveryHandler{fulfillmentSvc: fulfillmentSvc, dashboardSvc: dashboardSvc}
}

// List GET /api/v1/deliveries
func (h *DeliveryHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status": c.Query("status"),
	}

	deliveries, total, err := h.fulfillmentSvc.ListDeliveries(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "failed to list deliveries")
		return
	}
	Success(c, NewListResponse(deliveries, page, pageSize, total))
}

// Get GET /api/v1/deliveries/:id
func (h *DeliveryHandler) Get(c *gin.Context) {
	delivery, err := h.fulfillmentSvc.GetDelivery(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, delivery)
}

// Confirm POST /api/v1/deliveries/:id/confirm
// Idempotent: re-confirming a delivered delivery returns it unchanged.
func (h *DeliveryHandler) Confirm(c *gin.Context) {
	delivery, err := h.fulfillmentSvc.ConfirmDelivery(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.dashboardSvc.InvalidateStats(c.Request.Context())
	Success(c, delivery)
}

// Cancel POST /api/v1/deliveries/:id/cancel
func (h *DeliveryHandler) Cancel(c *gin.Context) {
	var req struct {
		Comment string `json:"comment"`
	}
	_ = c.ShouldBindJSON(&req)

	delivery, err := h.fulfillmentSvc.CancelDelivery(c.Request.Context(), c.Param("id"), GetUserID(c), req.Comment)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.dashboardSvc.InvalidateStats(c.Request.Context())
	Success(c, delivery)
}
