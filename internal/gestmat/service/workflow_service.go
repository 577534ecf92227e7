package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// stageSpec describes one approval stage: which status it owns, which
// role may act, where approval leads, and how the stage writes its
// approver, timestamps and quantity revisions. The ordered table below
// is the only place the chain is defined.
type stageSpec struct {
	Status         string
	Role           string
	Next           string
	AllowOverride  bool   // stage may revise line quantities
	ApproverColumn string // column used for pending-list queries

	setApprover  func(*entity.Request, string)
	getApprover  func(*entity.Request) *string
	stampRequest func(*entity.Request, time.Time, string)
	stampLine    func(*entity.RequestLine, time.Time)
	setStageQty  func(*entity.RequestLine, *int)
}

// approvalStages covers the three per-line batch stages. The secretary
// stage is a single-action finalize and is handled separately.
var approvalStages = []stageSpec{
	{
		Status:         entity.RequestStatusPendingDirector,
		Role:           entity.RoleDirector,
		Next:           entity.RequestStatusPendingStockManager,
		AllowOverride:  false,
		ApproverColumn: "director_id",
		setApprover:    func(r *entity.Request, id string) { r.DirectorID = &id },
		getApprover:    func(r *entity.Request) *string { return r.DirectorID },
		stampRequest: func(r *entity.Request, t time.Time, comment string) {
			r.DirectorValidatedAt = &t
			r.DirectorComment = comment
		},
		stampLine:   func(l *entity.RequestLine, t time.Time) { l.DirectorValidatedAt = &t },
		setStageQty: nil,
	},
	{
		Status:         entity.RequestStatusPendingStockManager,
		Role:           entity.RoleStockManager,
		Next:           entity.RequestStatusPendingFinance,
		AllowOverride:  true,
		ApproverColumn: "stock_manager_id",
		setApprover:    func(r *entity.Request, id string) { r.StockManagerID = &id },
		getApprover:    func(r *entity.Request) *string { return r.StockManagerID },
		stampRequest: func(r *entity.Request, t time.Time, comment string) {
			r.StockManagerValidatedAt = &t
			r.StockManagerComment = comment
		},
		stampLine:   func(l *entity.RequestLine, t time.Time) { l.StockManagerValidatedAt = &t },
		setStageQty: func(l *entity.RequestLine, qty *int) { l.ProposedQtyStockManager = qty },
	},
	{
		Status:         entity.RequestStatusPendingFinance,
		Role:           entity.RoleFinance,
		Next:           entity.RequestStatusPendingSecretary,
		AllowOverride:  true,
		ApproverColumn: "finance_id",
		setApprover:    func(r *entity.Request, id string) { r.FinanceID = &id },
		getApprover:    func(r *entity.Request) *string { return r.FinanceID },
		stampRequest: func(r *entity.Request, t time.Time, comment string) {
			r.FinanceValidatedAt = &t
			r.FinanceComment = comment
		},
		stampLine:   func(l *entity.RequestLine, t time.Time) { l.FinanceValidatedAt = &t },
		setStageQty: func(l *entity.RequestLine, qty *int) { l.ConfirmedQtyFinance = qty },
	},
}

// stageByStatus returns the batch stage owning a status, or nil.
func stageByStatus(status string) *stageSpec {
	for i := range approvalStages {
		if approvalStages[i].Status == status {
			return &approvalStages[i]
		}
	}
	return nil
}

// nextStageRole maps the status a request is entering to the role whose
// approver must be resolved for it.
var nextStageRole = map[string]string{
	entity.RequestStatusPendingStockManager: entity.RoleStockManager,
	entity.RequestStatusPendingFinance:      entity.RoleFinance,
	entity.RequestStatusPendingSecretary:    entity.RoleSecretary,
}

// WorkflowService drives requests through the approval chain.
type WorkflowService struct {
	requestRepo  *repository.RequestRepository
	materialRepo *repository.MaterialRepository
	routeRepo    *repository.RouteRepository
	userRepo     *repository.UserRepository
	fulfillment  *FulfillmentService
	db           *gorm.DB

	// When false, a batch with mixed approvals rejects the whole
	// request instead of advancing the approved lines.
	partialApprovalAdvances bool
}

func NewWorkflowService(
	requestRepo *repository.RequestRepository,
	materialRepo *repository.MaterialRepository,
	routeRepo *repository.RouteRepository,
	userRepo *repository.UserRepository,
	fulfillment *FulfillmentService,
	db *gorm.DB,
	partialApprovalAdvances bool,
) *WorkflowService {
	return &WorkflowService{
		requestRepo:             requestRepo,
		materialRepo:            materialRepo,
		routeRepo:               routeRepo,
		userRepo:                userRepo,
		fulfillment:             fulfillment,
		db:                      db,
		partialApprovalAdvances: partialApprovalAdvances,
	}
}

// CreateRequestLineInput is one requested material.
type CreateRequestLineInput struct {
	MaterialID    string `json:"material_id"`
	Quantity      int    `json:"quantity"`
	Justification string `json:"justification"`
}

// CreateRequest opens a request in pending_director, resolving the
// requester's director through the routing table.
func (s *WorkflowService) CreateRequest(ctx context.Context, requesterID string, lines []CreateRequestLineInput) (*entity.Request, error) {
	if len(lines) == 0 {
		return nil, newValidationError("lines", "at least one line is required")
	}

	requester, err := s.userRepo.FindByID(ctx, requesterID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, &NotFoundError{Resource: "user", ID: requesterID}
		}
		return nil, err
	}
	if requester.DepartmentID == nil {
		return nil, newValidationError("requester", "requester has no department")
	}

	seen := make(map[string]bool, len(lines))
	for i, line := range lines {
		if line.Quantity < 1 {
			return nil, newValidationError(
				fmt.Sprintf("lines[%d].quantity", i), "quantity must be at least 1")
		}
		if seen[line.MaterialID] {
			return nil, newValidationError(
				fmt.Sprintf("lines[%d].material_id", i), "duplicate material in request")
		}
		seen[line.MaterialID] = true
		if _, err := s.materialRepo.FindByID(ctx, line.MaterialID); err != nil {
			if err == repository.ErrNotFound {
				return nil, &NotFoundError{Resource: "material", ID: line.MaterialID}
			}
			return nil, err
		}
	}

	route, err := s.routeRepo.Resolve(ctx, *requester.DepartmentID, entity.RoleDirector)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, &NotFoundError{Resource: "director route", ID: *requester.DepartmentID}
		}
		return nil, err
	}

	// Codes come from MAX(code), so two concurrent creations can pick
	// the same one and collide on the unique index; retry with a fresh
	// code instead of surfacing the conflict.
	for attempt := 0; attempt < 3; attempt++ {
		code, err := s.requestRepo.GenerateCode(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to generate request code: %w", err)
		}

		now := time.Now()
		req := &entity.Request{
			ID:           uuid.New().String()[:32],
			Code:         code,
			RequesterID:  requesterID,
			DepartmentID: *requester.DepartmentID,
			Status:       entity.RequestStatusPendingDirector,
			DirectorID:   &route.UserID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		for _, line := range lines {
			req.Lines = append(req.Lines, entity.RequestLine{
				ID:            uuid.New().String()[:32],
				RequestID:     req.ID,
				MaterialID:    line.MaterialID,
				RequestedQty:  line.Quantity,
				Justification: line.Justification,
				Status:        entity.LineStatusPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}

		err = s.requestRepo.Create(ctx, req)
		if err == nil {
			return req, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to create request: code conflicts persisted")
}

// ListForStage lists requests awaiting the given actor at the stage
// owned by their role. The secretary's queue is pending_secretary.
func (s *WorkflowService) ListForStage(ctx context.Context, role, actorID string) ([]entity.Request, error) {
	if role == entity.RoleSecretary {
		return s.requestRepo.FindPendingForApprover(ctx,
			entity.RequestStatusPendingSecretary, "secretary_id", actorID)
	}
	for _, stage := range approvalStages {
		if stage.Role == role {
			return s.requestRepo.FindPendingForApprover(ctx,
				stage.Status, stage.ApproverColumn, actorID)
		}
	}
	return nil, newValidationError("role", "role has no approval stage")
}

// BatchResolveInput resolves all pending lines of a request at the
// current stage. Lines listed in MaterialIDs follow Disposition;
// every other pending line is rejected.
type BatchResolveInput struct {
	MaterialIDs   []string       `json:"material_ids"`
	Disposition   string         `json:"disposition"` // approve/reject
	OverrideQtys  map[string]int `json:"override_qtys,omitempty"`
	Comment       string         `json:"comment"`
}

// BatchResolveLines applies one stage's decision and advances the
// workflow. The whole batch runs in a single transaction with the
// request row locked: it either fully commits or leaves no trace.
func (s *WorkflowService) BatchResolveLines(ctx context.Context, requestID, actorID string, input BatchResolveInput) (*entity.Request, error) {
	if input.Disposition != "approve" && input.Disposition != "reject" {
		return nil, newValidationError("disposition", "disposition must be approve or reject")
	}

	actor, err := s.userRepo.FindByID(ctx, actorID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, &NotFoundError{Resource: "user", ID: actorID}
		}
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req entity.Request
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", requestID).
			First(&req).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return &NotFoundError{Resource: "request", ID: requestID}
			}
			return err
		}

		if req.IsTerminal() {
			return &InvalidStateError{Status: req.Status, Action: "resolve lines"}
		}
		if req.Status == entity.RequestStatusPendingSecretary {
			return &InvalidStateError{Status: req.Status, Action: "batch resolve lines"}
		}

		stage := stageByStatus(req.Status)
		if stage == nil {
			return &InvalidStateError{Status: req.Status, Action: "resolve lines"}
		}
		if actor.Role != stage.Role {
			return &ForbiddenTransitionError{
				RequiredRole: stage.Role,
				ActorRole:    actor.Role,
				Status:       req.Status,
			}
		}
		if assigned := stage.getApprover(&req); assigned != nil && *assigned != actorID {
			return &ForbiddenTransitionError{
				RequiredRole: stage.Role,
				ActorRole:    actor.Role,
				Status:       req.Status,
			}
		}

		// Rejected lines are frozen out; everything else is up for
		// decision at the current stage.
		var active []entity.RequestLine
		if err := tx.Where("request_id = ? AND status <> ?", requestID, entity.LineStatusRejected).
			Order("created_at ASC").
			Find(&active).Error; err != nil {
			return err
		}
		if len(active) == 0 {
			return &InvalidStateError{Status: req.Status, Action: "resolve lines (none open)"}
		}

		byMaterial := make(map[string]*entity.RequestLine, len(active))
		for i := range active {
			byMaterial[active[i].MaterialID] = &active[i]
		}

		// Validate the whole batch before touching anything.
		approveSet := make(map[string]bool, len(input.MaterialIDs))
		for _, materialID := range input.MaterialIDs {
			line, ok := byMaterial[materialID]
			if !ok {
				return newValidationError("material_ids",
					fmt.Sprintf("material %s has no pending line on this request", materialID))
			}
			if input.Disposition == "approve" {
				approveSet[line.MaterialID] = true
			}
		}
		for materialID, qty := range input.OverrideQtys {
			if !stage.AllowOverride {
				return newValidationError("override_qtys",
					"quantity overrides are not allowed at this stage")
			}
			if !approveSet[materialID] {
				return newValidationError("override_qtys",
					fmt.Sprintf("override for material %s which is not being approved", materialID))
			}
			if qty <= 0 {
				return newValidationError("override_qtys",
					fmt.Sprintf("override quantity for material %s must be positive", materialID))
			}
		}

		now := time.Now()
		approved, rejected := 0, 0
		for i := range active {
			line := &active[i]
			if approveSet[line.MaterialID] {
				qty := line.ApprovedQty
				if qty == 0 {
					qty = line.RequestedQty
				}
				if override, ok := input.OverrideQtys[line.MaterialID]; ok {
					qty = override
					v := override
					stage.setStageQty(line, &v)
				}
				line.Status = entity.LineStatusApproved
				line.ApprovedQty = qty
				approved++
			} else {
				line.Status = entity.LineStatusRejected
				line.ApprovedQty = 0
				line.ProposedQtyStockManager = nil
				line.ConfirmedQtyFinance = nil
				rejected++
			}
			stage.stampLine(line, now)
			line.UpdatedAt = now
			if err := tx.Save(line).Error; err != nil {
				return err
			}
		}

		stage.stampRequest(&req, now, input.Comment)

		switch {
		case rejected == 0, approved > 0 && s.partialApprovalAdvances:
			req.Status = stage.Next
			if err := s.resolveNextApprover(tx, &req); err != nil {
				return err
			}
		default:
			req.Status = entity.RequestStatusRejected
		}

		req.UpdatedAt = now
		return tx.Save(&req).Error
	})
	if err != nil {
		return nil, err
	}

	return s.requestRepo.FindByID(ctx, requestID)
}

// resolveNextApprover looks up and records the approver for the status
// the request just entered. approved_final needs none.
func (s *WorkflowService) resolveNextApprover(tx *gorm.DB, req *entity.Request) error {
	role, ok := nextStageRole[req.Status]
	if !ok {
		return nil
	}

	var route entity.ApprovalRoute
	err := tx.Where("department_id IS NULL AND role = ?", role).First(&route).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &NotFoundError{Resource: "approval route", ID: role}
		}
		return err
	}

	switch req.Status {
	case entity.RequestStatusPendingStockManager:
		req.StockManagerID = &route.UserID
	case entity.RequestStatusPendingFinance:
		req.FinanceID = &route.UserID
	case entity.RequestStatusPendingSecretary:
		req.SecretaryID = &route.UserID
	}
	return nil
}

// FinalizeBySecretary is the secretary's single-action final approval:
// it locks in the finance-confirmed quantities, moves the request to
// approved_final and immediately attempts fulfillment. If stock is
// short the request stays in approved_final and the error is returned
// for manual reconciliation.
func (s *WorkflowService) FinalizeBySecretary(ctx context.Context, requestID, actorID, comment string) (*entity.Request, error) {
	actor, err := s.userRepo.FindByID(ctx, actorID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, &NotFoundError{Resource: "user", ID: actorID}
		}
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req entity.Request
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", requestID).
			First(&req).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return &NotFoundError{Resource: "request", ID: requestID}
			}
			return err
		}

		if req.IsTerminal() {
			return &InvalidStateError{Status: req.Status, Action: "finalize"}
		}
		if req.Status != entity.RequestStatusPendingSecretary {
			return &InvalidStateError{Status: req.Status, Action: "finalize"}
		}
		if actor.Role != entity.RoleSecretary {
			return &ForbiddenTransitionError{
				RequiredRole: entity.RoleSecretary,
				ActorRole:    actor.Role,
				Status:       req.Status,
			}
		}
		if req.SecretaryID != nil && *req.SecretaryID != actorID {
			return &ForbiddenTransitionError{
				RequiredRole: entity.RoleSecretary,
				ActorRole:    actor.Role,
				Status:       req.Status,
			}
		}

		var lines []entity.RequestLine
		if err := tx.Where("request_id = ? AND status = ?", requestID, entity.LineStatusApproved).
			Find(&lines).Error; err != nil {
			return err
		}

		now := time.Now()
		for i := range lines {
			line := &lines[i]
			if line.ConfirmedQtyFinance != nil {
				line.ApprovedQty = *line.ConfirmedQtyFinance
			}
			line.UpdatedAt = now
			if err := tx.Save(line).Error; err != nil {
				return err
			}
		}

		req.Status = entity.RequestStatusApprovedFinal
		req.SecretaryValidatedAt = &now
		req.SecretaryComment = comment
		req.UpdatedAt = now
		return tx.Save(&req).Error
	})
	if err != nil {
		return nil, err
	}

	// Fulfillment runs after the final approval is committed, so a
	// stock shortage leaves the request in approved_final.
	if _, err := s.fulfillment.Fulfill(ctx, requestID, actorID); err != nil {
		return nil, err
	}

	return s.requestRepo.FindByID(ctx, requestID)
}

// Fulfill retries stock deduction for a request sitting in
// approved_final, either because finalize hit a shortage that has since
// been restocked or because its delivery was canceled.
func (s *WorkflowService) Fulfill(ctx context.Context, requestID, actorID string) (*entity.Request, error) {
	if _, err := s.fulfillment.Fulfill(ctx, requestID, actorID); err != nil {
		return nil, err
	}
	return s.requestRepo.FindByID(ctx, requestID)
}

// GetRequest loads a request with its lines.
func (s *WorkflowService) GetRequest(ctx context.Context, id string) (*entity.Request, error) {
	req, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, &NotFoundError{Resource: "request", ID: id}
		}
		return nil, err
	}
	return req, nil
}

// ListRequests lists requests with filters.
func (s *WorkflowService) ListRequests(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Request, int64, error) {
	return s.requestRepo.FindAll(ctx, page, pageSize, filters)
}
