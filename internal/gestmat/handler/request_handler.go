package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/service"
)

// RequestHandler serves the request workflow endpoints.
type RequestHandler struct {
	workflowSvc  *service.WorkflowService
	dashboardSvc *service.DashboardService
}

func NewRequestHandler(workflowSvc *service.WorkflowService, dashboardSvc *service.DashboardService) *RequestHandler {
	return &RequestHandler{workflowSvc: workflowSvc, dashboardSvc: dashboardSvc}
}

// Create POST /api/v1/requests
func (h *RequestHandler) Create(c *gin.Context) {
	var req struct {
		Lines []service.CreateRequestLineInput `json:"lines"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	request, err := h.workflowSvc.CreateRequest(c.Request.Context(), GetUserID(c), req.Lines)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.dashboardSvc.InvalidateStats(c.Request.Context())
	Created(c, request)
}

// List GET /api/v1/requests
func (h *RequestHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":        c.Query("status"),
		"requester_id":  c.Query("requester_id"),
		"department_id": c.Query("department_id"),
	}
	// Agents only see their own requests.
	if GetRole(c) == entity.RoleAgent {
		filters["requester_id"] = GetUserID(c)
	}

	requests, total, err := h.workflowSvc.ListRequests(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "failed to list requests")
		return
	}
	Success(c, NewListResponse(requests, page, pageSize, total))
}

// Get GET /api/v1/requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	request, err := h.workflowSvc.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, request)
}

// Pending GET /api/v1/requests/pending
// Returns the approval queue for the caller's role.
func (h *RequestHandler) Pending(c *gin.Context) {
	requests, err := h.workflowSvc.ListForStage(c.Request.Context(), GetRole(c), GetUserID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if requests == nil {
		requests = []entity.Request{}
	}
	Success(c, gin.H{"items": requests})
}

// Resolve POST /api/v1/requests/:id/resolve
// Batch line decision for the current stage.
func (h *RequestHandler) Resolve(c *gin.Context) {
	var input service.BatchResolveInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	request, err := h.workflowSvc.BatchResolveLines(c.Request.Context(), c.Param("id"), GetUserID(c), input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.dashboardSvc.InvalidateStats(c.Request.Context())
	Success(c, request)
}

// Finalize POST /api/v1/requests/:id/finalize
// Secretary single-action final approval; triggers fulfillment.
func (h *RequestHandler) Finalize(c *gin.Context) {
	var req struct {
		Comment string `json:"comment"`
	}
	// Body is optional.
	_ = c.ShouldBindJSON(&req)

	request, err := h.workflowSvc.FinalizeBySecretary(c.Request.Context(), c.Param("id"), GetUserID(c), req.Comment)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.dashboardSvc.InvalidateStats(c.Request.Context())
	Success(c, request)
}

// Fulfill POST /api/v1/requests/:id/fulfill
// Retries fulfillment for a request stuck in approved_final after a
// stock shortage or a canceled delivery.
func (h *RequestHandler) Fulfill(c *gin.Context) {
	request, err := h.workflowSvc.Fulfill(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.dashboardSvc.InvalidateStats(c.Request.Context())
	Success(c, request)
}
