// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"copilot/platform/shared/identity"
)

func setupTestRouter(t *testing.T) (*mux.Router, *Service) {
	t.Helper()
	svc, _, _ := newTestService(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	r := mux.NewRouter()
	NewHandler(svc).RegisterRoutes(r)
	return r, svc
}

func doRequest(r http.Handler, method, path, tenant string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req = req.WithContext(identity.WithIdentity(req.Context(), identity.Identity{TenantID: tenant, UserID: "alice"}))
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestRegisterRoutes(t *testing.T) {
	r, _ := setupTestRouter(t)

	routes := []struct {
		path   string
		method string
	}{
		{"/api/v1/budgets", "POST"},
		{"/api/v1/budgets", "GET"},
		{"/api/v1/budgets/check", "POST"},
		{"/api/v1/budgets/b1", "GET"},
		{"/api/v1/budgets/b1", "PUT"},
		{"/api/v1/budgets/b1", "DELETE"},
		{"/api/v1/budgets/b1/status", "GET"},
		{"/api/v1/budgets/b1/alerts", "GET"},
		{"/api/v1/budgets/b1/forecast", "GET"},
		{"/api/v1/alerts/1/acknowledge", "POST"},
		{"/api/v1/costs", "GET"},
		{"/api/v1/costs/breakdown", "GET"},
		{"/api/v1/costs/records", "GET"},
		{"/api/v1/costs/records", "POST"},
		{"/api/v1/costs/ingest", "POST"},
		{"/api/v1/costs/aggregates", "GET"},
		{"/api/v1/costs/forecast", "GET"},
		{"/api/v1/costs/anomalies", "GET"},
		{"/api/v1/pricing", "GET"},
	}

	for _, route := range routes {
		req := httptest.NewRequest(route.method, route.path, nil)
		match := &mux.RouteMatch{}
		if !r.Match(req, match) {
			t.Errorf("route %s %s not registered", route.method, route.path)
		}
	}
}

func TestCreateBudgetHandler(t *testing.T) {
	r, svc := setupTestRouter(t)

	body := CreateBudgetRequest{
		ID:       "test-budget-1",
		Name:     "Test Budget",
		Scope:    ScopeSubscription,
		ScopeID:  "sub-1",
		LimitUSD: 100.0,
		Period:   PeriodMonthly,
	}
	rr := doRequest(r, "POST", "/api/v1/budgets", "tenant-a", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %v, want %v, body = %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var result Budget
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.ID != "test-budget-1" || result.TenantID != "tenant-a" || result.CreatedBy != "alice" {
		t.Errorf("budget = %+v", result)
	}

	rr = doRequest(r, "POST", "/api/v1/budgets", "tenant-a", body)
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate status = %v, want %v", rr.Code, http.StatusConflict)
	}

	if _, err := svc.GetBudget(t.Context(), "tenant-b", "test-budget-1"); err == nil {
		t.Error("budget visible to another tenant")
	}
}

func TestCreateBudgetHandlerErrors(t *testing.T) {
	r, _ := setupTestRouter(t)

	rr := doRequest(r, "POST", "/api/v1/budgets", "", "invalid json")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %v, want %v", rr.Code, http.StatusBadRequest)
	}

	rr = doRequest(r, "POST", "/api/v1/budgets", "", CreateBudgetRequest{ID: "x", Name: "x", Period: PeriodMonthly})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid budget status = %v, want %v", rr.Code, http.StatusBadRequest)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["error"] != "Bad Request" || resp["message"] == "" {
		t.Errorf("error body = %v", resp)
	}
}

func TestBudgetLifecycleHandlers(t *testing.T) {
	r, _ := setupTestRouter(t)
	create := CreateBudgetRequest{ID: "b1", Name: "RG", Scope: ScopeResourceGroup, ScopeID: "rg-app", LimitUSD: 50, Period: PeriodMonthly}
	if rr := doRequest(r, "POST", "/api/v1/budgets", "tenant-a", create); rr.Code != http.StatusCreated {
		t.Fatalf("create status = %v", rr.Code)
	}

	rr := doRequest(r, "GET", "/api/v1/budgets/b1", "tenant-b", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("cross tenant get status = %v, want 404", rr.Code)
	}

	rr = doRequest(r, "PUT", "/api/v1/budgets/b1", "tenant-a", map[string]interface{}{"limit_usd": 75, "enabled": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %v, body = %s", rr.Code, rr.Body.String())
	}
	var updated Budget
	_ = json.Unmarshal(rr.Body.Bytes(), &updated)
	if updated.LimitUSD != 75 || updated.Enabled || updated.Name != "RG" || updated.UpdatedBy != "alice" {
		t.Errorf("updated = %+v", updated)
	}

	rr = doRequest(r, "GET", "/api/v1/budgets/b1/status", "tenant-a", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status status = %v", rr.Code)
	}

	rr = doRequest(r, "GET", "/api/v1/budgets?scope=resource_group", "tenant-a", nil)
	var list struct {
		Budgets []Budget `json:"budgets"`
		Total   int      `json:"total"`
		Limit   int      `json:"limit"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if rr.Code != http.StatusOK || list.Total != 1 || list.Limit != 50 {
		t.Errorf("list = %d %+v", rr.Code, list)
	}

	rr = doRequest(r, "DELETE", "/api/v1/budgets/b1", "tenant-a", nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("delete status = %v", rr.Code)
	}
	rr = doRequest(r, "DELETE", "/api/v1/budgets/b1", "tenant-a", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %v", rr.Code)
	}
}

func TestListBudgetsHandlerValidation(t *testing.T) {
	r, _ := setupTestRouter(t)
	for _, path := range []string{
		"/api/v1/budgets?limit=0",
		"/api/v1/budgets?limit=501",
		"/api/v1/budgets?limit=abc",
		"/api/v1/budgets?offset=-1",
		"/api/v1/budgets?scope=organization",
	} {
		if rr := doRequest(r, "GET", path, "", nil); rr.Code != http.StatusBadRequest {
			t.Errorf("%s status = %v, want 400", path, rr.Code)
		}
	}
	if rr := doRequest(r, "GET", "/api/v1/budgets?limit=500", "", nil); rr.Code != http.StatusOK {
		t.Errorf("limit=500 status = %v, want 200", rr.Code)
	}
}

func TestCheckBudgetHandler(t *testing.T) {
	r, svc := setupTestRouter(t)
	ctx := t.Context()
	if err := svc.CreateBudget(ctx, subscriptionBudget("b1", 10, OnExceedBlock)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordCosts(ctx, "tenant-a", []CostRecord{{SubscriptionID: "sub-1", Date: day(10), CostUSD: 20}}); err != nil {
		t.Fatal(err)
	}

	rr := doRequest(r, "POST", "/api/v1/budgets/check", "tenant-a", BudgetCheckRequest{SubscriptionID: "sub-1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %v", rr.Code)
	}
	var decision BudgetDecision
	_ = json.Unmarshal(rr.Body.Bytes(), &decision)
	if decision.Allowed || decision.BudgetID != "b1" {
		t.Errorf("decision = %+v", decision)
	}

	rr = doRequest(r, "POST", "/api/v1/budgets/check", "tenant-a", BudgetCheckRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty check status = %v, want 400", rr.Code)
	}

	rr = doRequest(r, "GET", "/api/v1/budgets/b1/alerts", "tenant-a", nil)
	var alerts struct {
		Alerts []BudgetAlert `json:"alerts"`
		Count  int           `json:"count"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &alerts)
	if rr.Code != http.StatusOK || alerts.Count != 3 {
		t.Errorf("alerts = %d %+v", rr.Code, alerts)
	}

	path := "/api/v1/alerts/" + strconv.FormatInt(alerts.Alerts[0].ID, 10) + "/acknowledge"
	if rr := doRequest(r, "POST", path, "tenant-a", nil); rr.Code != http.StatusNoContent {
		t.Errorf("acknowledge status = %v", rr.Code)
	}
	if rr := doRequest(r, "POST", "/api/v1/alerts/abc/acknowledge", "tenant-a", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad alert id status = %v", rr.Code)
	}
	if rr := doRequest(r, "POST", "/api/v1/alerts/999/acknowledge", "tenant-a", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing alert status = %v", rr.Code)
	}
}

func TestCostHandlers(t *testing.T) {
	r, _ := setupTestRouter(t)
	records := map[string]interface{}{
		"records": []CostRecord{
			{SubscriptionID: "sub-1", ResourceGroup: "rg-app", Service: "Storage", Date: day(2), CostUSD: 10},
			{SubscriptionID: "sub-1", ResourceGroup: "rg-app", Service: "Compute", Date: day(3), CostUSD: 30},
		},
	}
	rr := doRequest(r, "POST", "/api/v1/costs/records", "tenant-a", records)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("record status = %v, body = %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(r, "GET", "/api/v1/costs", "tenant-a", nil)
	var summary CostSummary
	_ = json.Unmarshal(rr.Body.Bytes(), &summary)
	if rr.Code != http.StatusOK || summary.TotalCostUSD != 40 || summary.Period != "monthly" {
		t.Errorf("summary = %d %+v", rr.Code, summary)
	}

	// Another tenant sees nothing
	rr = doRequest(r, "GET", "/api/v1/costs", "tenant-b", nil)
	_ = json.Unmarshal(rr.Body.Bytes(), &summary)
	if summary.TotalCostUSD != 0 {
		t.Errorf("tenant-b summary = %+v", summary)
	}

	rr = doRequest(r, "GET", "/api/v1/costs/breakdown?group_by=service", "tenant-a", nil)
	var bd Breakdown
	_ = json.Unmarshal(rr.Body.Bytes(), &bd)
	if rr.Code != http.StatusOK || len(bd.Items) != 2 || bd.Items[0].GroupValue != "Compute" {
		t.Errorf("breakdown = %d %+v", rr.Code, bd)
	}

	rr = doRequest(r, "GET", "/api/v1/costs/records?start_time=2025-03-03&limit=10", "tenant-a", nil)
	var list struct {
		Records []CostRecord `json:"records"`
		Total   int          `json:"total"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if rr.Code != http.StatusOK || list.Total != 1 || list.Records[0].Service != "Compute" {
		t.Errorf("records = %d %+v", rr.Code, list)
	}

	rr = doRequest(r, "GET", "/api/v1/costs/aggregates?scope=service&start_time=2025-03-01", "tenant-a", nil)
	var aggs struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &aggs)
	if rr.Code != http.StatusOK || aggs.Count != 2 {
		t.Errorf("aggregates = %d %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(r, "GET", "/api/v1/costs/forecast", "tenant-a", nil)
	var f Forecast
	_ = json.Unmarshal(rr.Body.Bytes(), &f)
	if rr.Code != http.StatusOK || f.ActualToDateUSD != 40 || f.DaysElapsed != 14 {
		t.Errorf("forecast = %d %+v", rr.Code, f)
	}

	rr = doRequest(r, "GET", "/api/v1/costs/anomalies?days=3", "tenant-a", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("anomalies status = %v", rr.Code)
	}
}

func TestCostHandlersValidation(t *testing.T) {
	r, _ := setupTestRouter(t)
	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/api/v1/costs/breakdown?group_by=agent", http.StatusBadRequest},
		{"GET", "/api/v1/costs?start_time=yesterday", http.StatusBadRequest},
		{"GET", "/api/v1/costs?start_time=2025-03-10&end_time=2025-03-01", http.StatusBadRequest},
		{"GET", "/api/v1/costs?period=hourly", http.StatusBadRequest},
		{"GET", "/api/v1/costs?tag=env", http.StatusBadRequest},
		{"GET", "/api/v1/costs/records?limit=1000", http.StatusBadRequest},
		{"GET", "/api/v1/costs/anomalies?days=0", http.StatusBadRequest},
		{"GET", "/api/v1/costs/anomalies?threshold=-1", http.StatusBadRequest},
		{"GET", "/api/v1/costs/aggregates?period=hourly", http.StatusBadRequest},
		{"POST", "/api/v1/costs/ingest", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		body := interface{}(nil)
		if tt.method == "POST" {
			body = IngestRequest{SubscriptionID: "sub-1"}
		}
		if rr := doRequest(r, tt.method, tt.path, "tenant-a", body); rr.Code != tt.want {
			t.Errorf("%s %s status = %v, want %v", tt.method, tt.path, rr.Code, tt.want)
		}
	}
}

func TestPricingHandler(t *testing.T) {
	r, _ := setupTestRouter(t)

	rr := doRequest(r, "GET", "/api/v1/pricing", "", nil)
	var all struct {
		Resources map[string]map[string]SKUPrice `json:"resources"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &all)
	if rr.Code != http.StatusOK || len(all.Resources) == 0 {
		t.Errorf("pricing = %d", rr.Code)
	}

	rr = doRequest(r, "GET", "/api/v1/pricing?resource_type=key_vault&sku=premium", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("sku pricing status = %v", rr.Code)
	}

	rr = doRequest(r, "GET", "/api/v1/pricing?resource_type=key_vault", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("type pricing status = %v", rr.Code)
	}

	rr = doRequest(r, "GET", "/api/v1/pricing?resource_type=bastion", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown type status = %v", rr.Code)
	}

	rr = doRequest(r, "GET", "/api/v1/pricing?resource_type=app_service_plan&sku=Z9", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown sku status = %v", rr.Code)
	}
}
