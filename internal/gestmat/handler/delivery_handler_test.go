package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/testutil"
)

// approveThrough walks a request through director, stock manager and
// finance with every line approved unchanged.
func (f *workflowFixture) approveThrough(t *testing.T, reqID string, materialIDs []string) {
	t.Helper()
	body := map[string]interface{}{
		"material_ids": materialIDs,
		"disposition":  "approve",
	}
	f.resolve(t, reqID, f.directorToken, body)
	f.resolve(t, reqID, f.stockToken, body)
	f.resolve(t, reqID, f.financeToken, body)
}

// TestFulfillmentInsufficientStock requests more than is in stock. The
// finalize commits the approval but fulfillment fails atomically: the
// request stays approved_final, stock and ledger untouched, and the
// error names the shortfall.
func TestFulfillmentInsufficientStock(t *testing.T) {
	f := setupWorkflowTest(t, true)
	scarce := testutil.SeedTestMaterial(t, f.env.DB, "mat-scarce", "Videoprojecteur", 2)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": scarce.ID, "quantity": 5},
	})
	f.approveThrough(t, reqID, []string{scarce.ID})

	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/finalize", nil, f.secretaryToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on stock shortage, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	msg := resp["message"].(string)
	if !strings.Contains(msg, "Videoprojecteur") || !strings.Contains(msg, "available 2") {
		t.Fatalf("expected error naming material and shortfall, got %q", msg)
	}

	var req entity.Request
	f.env.DB.First(&req, "id = ?", reqID)
	if req.Status != entity.RequestStatusApprovedFinal {
		t.Fatalf("expected request to stay approved_final, got %s", req.Status)
	}

	var mat entity.Material
	f.env.DB.First(&mat, "id = ?", scarce.ID)
	if mat.AvailableQty != 2 {
		t.Fatalf("expected stock unchanged at 2, got %d", mat.AvailableQty)
	}

	var count int64
	f.env.DB.Model(&entity.Delivery{}).Where("request_id = ?", reqID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no delivery, got %d", count)
	}
}

// TestPartialFulfillmentRollsBack uses two lines where only the second
// is short: the first line's deduction must be rolled back too.
func TestPartialFulfillmentRollsBack(t *testing.T) {
	f := setupWorkflowTest(t, true)
	scarce := testutil.SeedTestMaterial(t, f.env.DB, "mat-short", "Onduleur", 1)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": f.mat1.ID, "quantity": 3},
		{"material_id": scarce.ID, "quantity": 4},
	})
	f.approveThrough(t, reqID, []string{f.mat1.ID, scarce.ID})

	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/finalize", nil, f.secretaryToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	var mat1 entity.Material
	f.env.DB.First(&mat1, "id = ?", f.mat1.ID)
	if mat1.AvailableQty != 20 {
		t.Fatalf("expected mat1 rolled back to 20, got %d", mat1.AvailableQty)
	}
}

// TestFulfillRetryAfterShortage restocks after a failed finalize and
// retries fulfillment on the approved_final request.
func TestFulfillRetryAfterShortage(t *testing.T) {
	f := setupWorkflowTest(t, true)
	scarce := testutil.SeedTestMaterial(t, f.env.DB, "mat-retry", "Groupe electrogene", 2)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": scarce.ID, "quantity": 5},
	})
	f.approveThrough(t, reqID, []string{scarce.ID})

	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/finalize", nil, f.secretaryToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on stock shortage, got %d: %s", w.Code, w.Body.String())
	}

	// Retrying before the restock fails the same way
	w2 := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/fulfill", nil, f.secretaryToken)
	if w2.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 retrying without stock, got %d: %s", w2.Code, w2.Body.String())
	}

	f.env.DB.Model(&entity.Material{}).
		Where("id = ?", scarce.ID).
		Updates(map[string]interface{}{"total_qty": 10, "available_qty": 10})

	w3 := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/fulfill", nil, f.secretaryToken)
	if w3.Code != http.StatusOK {
		t.Fatalf("expected 200 retrying after restock, got %d: %s", w3.Code, w3.Body.String())
	}
	resp := testutil.ParseResponse(w3)
	if resp["data"].(map[string]interface{})["status"] != entity.RequestStatusFulfillment {
		t.Fatalf("expected fulfillment_in_progress, got %v", resp["data"].(map[string]interface{})["status"])
	}

	var mat entity.Material
	f.env.DB.First(&mat, "id = ?", scarce.ID)
	if mat.AvailableQty != 5 {
		t.Fatalf("expected available 5 after retry, got %d", mat.AvailableQty)
	}

	var delivery entity.Delivery
	if err := f.env.DB.First(&delivery, "request_id = ?", reqID).Error; err != nil {
		t.Fatalf("expected a delivery after retry: %v", err)
	}
	if delivery.Status != entity.DeliveryStatusInProgress {
		t.Fatalf("expected delivery in_progress, got %s", delivery.Status)
	}
}

// TestConfirmDeliveryIdempotent confirms twice; the second confirm is a
// no-op and stock is not deducted again.
func TestConfirmDeliveryIdempotent(t *testing.T) {
	f := setupWorkflowTest(t, true)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": f.mat1.ID, "quantity": 4},
	})
	f.approveThrough(t, reqID, []string{f.mat1.ID})

	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/finalize", nil, f.secretaryToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 finalizing, got %d: %s", w.Code, w.Body.String())
	}

	var delivery entity.Delivery
	if err := f.env.DB.First(&delivery, "request_id = ?", reqID).Error; err != nil {
		t.Fatalf("expected a delivery: %v", err)
	}

	w1 := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/deliveries/"+delivery.ID+"/confirm", nil, f.stockToken)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200 on first confirm, got %d: %s", w1.Code, w1.Body.String())
	}
	resp1 := testutil.ParseResponse(w1)
	firstDate := resp1["data"].(map[string]interface{})["delivered_at"]
	if firstDate == nil {
		t.Fatal("expected delivered_at set")
	}

	var availAfterFirst entity.Material
	f.env.DB.First(&availAfterFirst, "id = ?", f.mat1.ID)

	w2 := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/deliveries/"+delivery.ID+"/confirm", nil, f.stockToken)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 on second confirm, got %d: %s", w2.Code, w2.Body.String())
	}
	resp2 := testutil.ParseResponse(w2)
	if resp2["data"].(map[string]interface{})["delivered_at"] != firstDate {
		t.Fatal("expected delivered_at unchanged on re-confirm")
	}

	var availAfterSecond entity.Material
	f.env.DB.First(&availAfterSecond, "id = ?", f.mat1.ID)
	if availAfterSecond.AvailableQty != availAfterFirst.AvailableQty {
		t.Fatalf("expected stock untouched by re-confirm: %d != %d",
			availAfterSecond.AvailableQty, availAfterFirst.AvailableQty)
	}
}

// TestCancelDeliveryRestoresStock cancels an in-progress delivery and
// expects the stock back and the request in approved_final again.
func TestCancelDeliveryRestoresStock(t *testing.T) {
	f := setupWorkflowTest(t, true)

	reqID := f.createRequest(t, []map[string]interface{}{
		{"material_id": f.mat2.ID, "quantity": 6},
	})
	f.approveThrough(t, reqID, []string{f.mat2.ID})

	w := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/finalize", nil, f.secretaryToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 finalizing, got %d: %s", w.Code, w.Body.String())
	}

	var mat entity.Material
	f.env.DB.First(&mat, "id = ?", f.mat2.ID)
	if mat.AvailableQty != 4 {
		t.Fatalf("expected available 4 after fulfillment, got %d", mat.AvailableQty)
	}

	var delivery entity.Delivery
	f.env.DB.First(&delivery, "request_id = ?", reqID)

	w2 := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/deliveries/"+delivery.ID+"/cancel",
		map[string]interface{}{"comment": "rupture transport"}, f.stockToken)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 canceling, got %d: %s", w2.Code, w2.Body.String())
	}

	f.env.DB.First(&mat, "id = ?", f.mat2.ID)
	if mat.AvailableQty != 10 {
		t.Fatalf("expected stock restored to 10, got %d", mat.AvailableQty)
	}

	var req entity.Request
	f.env.DB.First(&req, "id = ?", reqID)
	if req.Status != entity.RequestStatusApprovedFinal {
		t.Fatalf("expected request back in approved_final, got %s", req.Status)
	}

	// A canceled delivery cannot be confirmed afterwards
	w3 := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/deliveries/"+delivery.ID+"/confirm", nil, f.stockToken)
	if w3.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 confirming a canceled delivery, got %d: %s", w3.Code, w3.Body.String())
	}

	// The canceled row does not block fulfilling the request again
	w4 := testutil.DoRequest(f.env.Router, http.MethodPost, "/api/v1/requests/"+reqID+"/fulfill", nil, f.secretaryToken)
	if w4.Code != http.StatusOK {
		t.Fatalf("expected 200 fulfilling after cancel, got %d: %s", w4.Code, w4.Body.String())
	}
	f.env.DB.First(&mat, "id = ?", f.mat2.ID)
	if mat.AvailableQty != 4 {
		t.Fatalf("expected available 4 after refulfillment, got %d", mat.AvailableQty)
	}

	var count int64
	f.env.DB.Model(&entity.Delivery{}).Where("request_id = ?", reqID).Count(&count)
	if count != 2 {
		t.Fatalf("expected the canceled and the new delivery, got %d rows", count)
	}
}
