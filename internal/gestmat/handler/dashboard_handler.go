package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/service"
)

// DashboardHandler serves the stat tiles.
type DashboardHandler struct {
	dashboardSvc *service.DashboardService
}

func NewDashboardHandler(dashboardSvc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardSvc: dashboardSvc}
}

// Stats GET /api/v1/dashboard/stats
func (h *DashboardHandler) Stats(c *gin.Context) {
	stats, err := h.dashboardSvc.GetStats(c.Request.Context(), GetUserID(c), GetRole(c))
	if err != nil {
		InternalError(c, "failed to compute stats")
		return
	}
	Success(c, stats)
}
