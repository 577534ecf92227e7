package handler

import (
	"net/http"
	"testing"

	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/repository"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/service"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/testutil"
)

// workflowFixture wires the full chain: one agent, one approver per
// stage, routes for all four stages, two materials in stock.
type workflowFixture struct {
	env   *testutil.TestEnv
	mat1  *entity.Material
	mat2  *entity.Material
	agent string

	agentToken     string
	directorToken  string
	stockToken     string
	financeToken   string
	secretaryToken string
}

func setupWorkflowTest(t *testing.T, partialAdvances bool) *workflowFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	fulfillment := service.NewFulfillmentService(repos.Delivery, db)
	workflow := service.NewWorkflowService(
		repos.Request, repos.Material, repos.Route, repos.User,
		fulfillment, db, partialAdvances)
	dashboard := service.NewDashboardService(db, nil)

	reqHandler := NewRequestHandler(workflow, dashboard)
	delHandler := NewDeliveryHandler(fulfillment, dashboard)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	api.POST("/requests", reqHandler.Create)
	api.GET("/requests/pending", reqHandler.Pending)
	api.GET("/requests/:id", reqHandler.Get)
	api.POST("/requests/:id/resolve", reqHandler.Resolve)
	api.POST("/requests/:id/finalize", reqHandler.Finalize)
	api.POST("/requests/:id/fulfill", reqHandler.Fulfill)
	api.GET("/deliveries", delHandler.List)
	api.POST("/deliveries/:id/confirm", delHandler.Confirm)
	api.POST("/deliveries/:id/cancel", delHandler.Cancel)

	env := &testutil.TestEnv{DB: db, Router: router, T: t}

	dept := testutil.SeedTestDepartment(t, db, "dept-tech", "Service Technique")
	agent := testutil.SeedTestUser(t, db, "user-agent", "Agent A", entity.RoleAgent, &dept.ID)
	director := testutil.SeedTestUser(t, db, "user-director", "Directeur", entity.RoleDirector, &dept.ID)
	stock := testutil.SeedTestUser(t, db, "user-stock", "Gestionnaire", entity.RoleStockManager, nil)
	finance := testutil.SeedTestUser(t, db, "user-daaf", "DAAF", entity.RoleFinance, nil)
	secretary := testutil.SeedTestUser(t, db, "user-se", "Secretaire", entity.RoleSecretary, nil)

	testutil.SeedTestRoute(t, db, "route-dir", &dept.ID, entity.RoleDirector, director.ID)
	testutil.SeedTestRoute(t, db, "route-stock", nil, entity.RoleStockManager, stock.ID)
	testutil.SeedTestRoute(t, db, "route-daaf", nil, entity.RoleFinance, finance.ID)
	testutil.SeedTestRoute(t, db, "route-se", nil, entity.RoleSecretary, secretary.ID)

	return &workflowFixture{
		env:            env,
		mat1:           testutil.SeedTestMaterial(t, db, "mat-001", "Ramette papier A4", 20),
		mat2:           testutil.SeedTestMaterial(t, db, "mat-002", "Cartouche encre", 10),
		agent:          agent.ID,
		agentToken:     testutil.GenerateTestToken(agent.ID, agent.Name, agent.Email, agent.Role),
		directorToken:  testutil.GenerateTestToken(director.ID, director.Name, director.Email, director.Role),
		stockToken:     testutil.GenerateTestToken(stock.ID, stock.Name, stock.Email, stock.Role),
		financeToken:   testutil.GenerateTestToken(finance.ID, finance.Name, finance.Email, finance.Role),
		secretaryToken: testutil.GenerateTestToken(secretary.ID, secretary.Name, secretary.Email, secretary.Role),
	}
}

func (f *workflowFixture) createRequest(t *testing.T, lines []map[string]interface{}) string {
	t.Helper()
	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests",
		map[string]interface{}{"lines": lines}, f.agentToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating request, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	return resp["data"].(map[string]interface{})["id"].(string)
}

func (f *workflowFixture) resolve(t *testing.T, requestID, token string, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+requestID+"/resolve", body, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 resolving, got %d: %s", w.Code, w.Body.String())
	}
	return testutil.ParseResponse(w)["data"].(map[string]interface{})
}

func (f *workflowFixture) lineByMaterial(t *testing.T, requestID, materialID string) *entity.RequestLine {
	t.Helper()
	var line entity.RequestLine
	if err := f.env.DB.Where("request_id = ? AND material_id = ?", requestID, materialID).First(&line).Error; err != nil {
		t.Fatalf("failed to load line for material %s: %v", materialID, err)
	}
	return &line
}

// TestFullApprovalChain walks a two-line request through all four
// stages with unchanged quantities and checks the resulting delivery
// and stock levels.
func TestFullApprovalChain(t *testing.T) {
	f := setupWorkflowTest(t, true)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": f.mat1.ID, "quantity": 3, "justification": "rapports"},
		{"material_id": f.mat2.ID, "quantity": 5, "justification": "imprimante"},
	})

	approveAll := map[string]interface{}{
		"material_ids": []string{f.mat1.ID, f.mat2.ID},
		"disposition":  "approve",
	}

	data := f.resolve(t, reqID, f.directorToken, approveAll)
	if data["status"] != entity.RequestStatusPendingStockManager {
		t.Fatalf("expected pending_stock_manager after director, got %v", data["status"])
	}

	data = f.resolve(t, reqID, f.stockToken, approveAll)
	if data["status"] != entity.RequestStatusPendingFinance {
		t.Fatalf("expected pending_finance after stock manager, got %v", data["status"])
	}

	data = f.resolve(t, reqID, f.financeToken, approveAll)
	if data["status"] != entity.RequestStatusPendingSecretary {
		t.Fatalf("expected pending_secretary after finance, got %v", data["status"])
	}

	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/finalize", nil, f.secretaryToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 finalizing, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["data"].(map[string]interface{})["status"] != entity.RequestStatusFulfillment {
		t.Fatalf("expected fulfillment_in_progress after finalize, got %v",
			resp["data"].(map[string]interface{})["status"])
	}

	// Stock deducted by exactly the approved quantities
	var mat1, mat2 entity.Material
	f.env.DB.First(&mat1, "id = ?", f.mat1.ID)
	f.env.DB.First(&mat2, "id = ?", f.mat2.ID)
	if mat1.AvailableQty != 17 {
		t.Fatalf("expected mat1 available 17, got %d", mat1.AvailableQty)
	}
	if mat2.AvailableQty != 5 {
		t.Fatalf("expected mat2 available 5, got %d", mat2.AvailableQty)
	}

	// Delivery carries the (requested, delivered) pairs
	var delivery entity.Delivery
	if err := f.env.DB.Preload("Items").First(&delivery, "request_id = ?", reqID).Error; err != nil {
		t.Fatalf("expected a delivery for the request: %v", err)
	}
	if delivery.Status != entity.DeliveryStatusInProgress {
		t.Fatalf("expected delivery in_progress, got %s", delivery.Status)
	}
	if len(delivery.Items) != 2 {
		t.Fatalf("expected 2 delivery items, got %d", len(delivery.Items))
	}
	for _, item := range delivery.Items {
		switch item.MaterialID {
		case f.mat1.ID:
			if item.DeliveredQty != 3 {
				t.Fatalf("expected delivered 3 for mat1, got %d", item.DeliveredQty)
			}
		case f.mat2.ID:
			if item.DeliveredQty != 5 {
				t.Fatalf("expected delivered 5 for mat2, got %d", item.DeliveredQty)
			}
		}
	}

	// Confirm flips delivery and request to delivered
	w2 := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/deliveries/"+delivery.ID+"/confirm", nil, f.stockToken)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 confirming, got %d: %s", w2.Code, w2.Body.String())
	}
	var req entity.Request
	f.env.DB.First(&req, "id = ?", reqID)
	if req.Status != entity.RequestStatusDelivered {
		t.Fatalf("expected request delivered, got %s", req.Status)
	}
}

// TestPartialApprovalAdvances rejects one line at the director stage;
// the request advances with the surviving line and the rejected line
// stays frozen.
func TestPartialApprovalAdvances(t *testing.T) {
	f := setupWorkflowTest(t, true)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": f.mat1.ID, "quantity": 3},
		{"material_id": f.mat2.ID, "quantity": 5},
	})

	data := f.resolve(t, reqID, f.directorToken, map[string]interface{}{
		"material_ids": []string{f.mat1.ID},
		"disposition":  "approve",
	})
	if data["status"] != entity.RequestStatusPendingStockManager {
		t.Fatalf("expected pending_stock_manager, got %v", data["status"])
	}

	line1 := f.lineByMaterial(t, reqID, f.mat1.ID)
	if line1.Status != entity.LineStatusApproved || line1.ApprovedQty != 3 {
		t.Fatalf("expected line1 approved qty 3, got %s qty %d", line1.Status, line1.ApprovedQty)
	}
	line2 := f.lineByMaterial(t, reqID, f.mat2.ID)
	if line2.Status != entity.LineStatusRejected || line2.ApprovedQty != 0 {
		t.Fatalf("expected line2 rejected qty 0, got %s qty %d", line2.Status, line2.ApprovedQty)
	}

	// The rejected line cannot be resurrected at the next stage
	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/resolve",
		map[string]interface{}{
			"material_ids": []string{f.mat1.ID, f.mat2.ID},
			"disposition":  "approve",
		}, f.stockToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 resurrecting a rejected line, got %d: %s", w.Code, w.Body.String())
	}
	line2 = f.lineByMaterial(t, reqID, f.mat2.ID)
	if line2.Status != entity.LineStatusRejected {
		t.Fatalf("expected line2 still rejected, got %s", line2.Status)
	}
}

// TestPartialApprovalRejectsWhenPolicyOff flips the policy: a mixed
// outcome rejects the whole request.
func TestPartialApprovalRejectsWhenPolicyOff(t *testing.T) {
	f := setupWorkflowTest(t, false)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": f.mat1.ID, "quantity": 3},
		{"material_id": f.mat2.ID, "quantity": 5},
	})

	data := f.resolve(t, reqID, f.directorToken, map[string]interface{}{
		"material_ids": []string{f.mat1.ID},
		"disposition":  "approve",
	})
	if data["status"] != entity.RequestStatusRejected {
		t.Fatalf("expected rejected under strict policy, got %v", data["status"])
	}
}

// TestStockManagerOverride lowers a quantity at the stock manager
// stage and checks it carries into the finance stage.
func TestStockManagerOverride(t *testing.T) {
	f := setupWorkflowTest(t, true)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": f.mat2.ID, "quantity": 5},
	})

	f.resolve(t, reqID, f.directorToken, map[string]interface{}{
		"material_ids": []string{f.mat2.ID},
		"disposition":  "approve",
	})

	f.resolve(t, reqID, f.stockToken, map[string]interface{}{
		"material_ids":  []string{f.mat2.ID},
		"disposition":   "approve",
		"override_qtys": map[string]int{f.mat2.ID: 2},
	})

	line := f.lineByMaterial(t, reqID, f.mat2.ID)
	if line.ProposedQtyStockManager == nil || *line.ProposedQtyStockManager != 2 {
		t.Fatalf("expected proposed qty 2, got %v", line.ProposedQtyStockManager)
	}
	if line.ApprovedQty != 2 {
		t.Fatalf("expected approved qty 2 carried forward, got %d", line.ApprovedQty)
	}

	// Finance approves unchanged; the revised quantity sticks
	f.resolve(t, reqID, f.financeToken, map[string]interface{}{
		"material_ids": []string{f.mat2.ID},
		"disposition":  "approve",
	})
	line = f.lineByMaterial(t, reqID, f.mat2.ID)
	if line.ApprovedQty != 2 {
		t.Fatalf("expected approved qty 2 after finance, got %d", line.ApprovedQty)
	}
}

// TestRoleMismatchForbidden checks the stage gate: the finance officer
// cannot act while the request waits for the director.
func TestRoleMismatchForbidden(t *testing.T) {
	f := setupWorkflowTest(t, true)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": f.mat1.ID, "quantity": 1},
	})

	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/resolve",
		map[string]interface{}{
			"material_ids": []string{f.mat1.ID},
			"disposition":  "approve",
		}, f.financeToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong role, got %d: %s", w.Code, w.Body.String())
	}
}

// TestTerminalStateRejectsAction rejects every line, then checks that
// further approvals fail cleanly.
func TestTerminalStateRejectsAction(t *testing.T) {
	f := setupWorkflowTest(t, true)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": f.mat1.ID, "quantity": 1},
	})

	data := f.resolve(t, reqID, f.directorToken, map[string]interface{}{
		"material_ids": []string{},
		"disposition":  "approve",
	})
	if data["status"] != entity.RequestStatusRejected {
		t.Fatalf("expected rejected when no line approved, got %v", data["status"])
	}

	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/resolve",
		map[string]interface{}{
			"material_ids": []string{f.mat1.ID},
			"disposition":  "approve",
		}, f.directorToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 acting on a terminal request, got %d: %s", w.Code, w.Body.String())
	}
}

// TestZeroOverrideRejected checks that a non-positive override is a
// validation error and nothing is mutated.
func TestZeroOverrideRejected(t *testing.T) {
	f := setupWorkflowTest(t, true)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": f.mat1.ID, "quantity": 3},
	})
	f.resolve(t, reqID, f.directorToken, map[string]interface{}{
		"material_ids": []string{f.mat1.ID},
		"disposition":  "approve",
	})

	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/resolve",
		map[string]interface{}{
			"material_ids":  []string{f.mat1.ID},
			"disposition":   "approve",
			"override_qtys": map[string]int{f.mat1.ID: 0},
		}, f.stockToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero override, got %d: %s", w.Code, w.Body.String())
	}

	line := f.lineByMaterial(t, reqID, f.mat1.ID)
	if line.Status != entity.LineStatusApproved || line.ApprovedQty != 3 {
		t.Fatalf("expected line untouched (approved qty 3), got %s qty %d", line.Status, line.ApprovedQty)
	}
	var req entity.Request
	f.env.DB.First(&req, "id = ?", reqID)
	if req.Status != entity.RequestStatusPendingStockManager {
		t.Fatalf("expected request still pending_stock_manager, got %s", req.Status)
	}
}

// TestCreateRequestWithoutRoute fails with 404 when the requester's
// department has no director route.
func TestCreateRequestWithoutRoute(t *testing.T) {
	f := setupWorkflowTest(t, true)

	dept := testutil.SeedTestDepartment(t, f.env.DB, "dept-orphan", "Service Orphelin")
	orphan := testutil.SeedTestUser(t, f.env.DB, "user-orphan", "Orphan", entity.RoleAgent, &dept.ID)
	token := testutil.GenerateTestToken(orphan.ID, orphan.Name, orphan.Email, orphan.Role)

	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests",
		map[string]interface{}{"lines": []map[string]interface{}{
			{"material_id": f.mat1.ID, "quantity": 1},
		}}, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a director route, got %d: %s", w.Code, w.Body.String())
	}
}

// TestPendingQueue lists the director's queue after creation.
func TestPendingQueue(t *testing.T) {
	f := setupWorkflowTest(t, true)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": f.mat1.ID, "quantity": 2},
	})

	w := testutil.DoRequest(f.env.Router, http.MethodGet, "/api/v1/requests/pending", nil, f.directorToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	items := resp["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(items))
	}
	if items[0].(map[string]interface{})["id"] != reqID {
		t.Fatalf("expected request %s in the queue", reqID)
	}

	// Nothing waits for the finance officer yet
	w2 := testutil.DoRequest(f.env.Router, http.MethodGet, "/api/v1/requests/pending", nil, f.financeToken)
	resp2 := testutil.ParseResponse(w2)
	items2 := resp2["data"].(map[string]interface{})["items"].([]interface{})
	if len(items2) != 0 {
		t.Fatalf("expected empty finance queue, got %d", len(items2))
	}
}
