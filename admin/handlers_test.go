// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package admin

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot/platform/agents"
	"copilot/platform/audit"
	"copilot/platform/compliance"
	"copilot/platform/documents"
	"copilot/platform/infra"
	"copilot/platform/shared/config"
)

func generateShop(t *testing.T, env *testEnv) infra.GenerationResult {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/v1/infrastructure/generate", map[string]interface{}{
		"name":     "shop",
		"patterns": []string{"three-tier-web"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res infra.GenerationResult
	decodeBody(t, rec, &res)
	return res
}

func TestInfrastructure_Patterns(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/infrastructure/patterns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, len(infra.Patterns()), body.Count)

	rec = env.do(t, http.MethodGet, "/api/v1/infrastructure/resource-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	assert.Greater(t, body.Count, 0)
}

func TestInfrastructure_GenerateLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	res := generateShop(t, env)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, infra.FormatBicep, res.Format)
	assert.Equal(t, "dev", res.Environment)
	assert.NotEmpty(t, res.Files)

	var list struct {
		Generations []infra.Summary `json:"generations"`
		Count       int             `json:"count"`
	}
	rec := env.do(t, http.MethodGet, "/api/v1/infrastructure/generations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, res.ID, list.Generations[0].ID)

	rec = env.doAs(t, "tenant-b", http.MethodGet, "/api/v1/infrastructure/generations", nil)
	decodeBody(t, rec, &list)
	assert.Equal(t, 0, list.Count)

	rec = env.doAs(t, "tenant-b", http.MethodGet, "/api/v1/infrastructure/generations/"+res.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/infrastructure/generations/"+res.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var files struct {
		Files []FileInfo `json:"files"`
		Count int        `json:"count"`
	}
	rec = env.do(t, http.MethodGet, "/api/v1/infrastructure/generations/"+res.ID+"/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &files)
	require.Equal(t, len(res.Files), files.Count)
	first := files.Files[0]

	rec = env.do(t, http.MethodGet, "/api/v1/infrastructure/generations/"+res.ID+"/files?path="+first.Path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, res.Files[first.Path], rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/infrastructure/generations/"+res.ID+"/files?path=missing.bicep", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/infrastructure/generations/"+res.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "shop-bicep.zip")
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	assert.NotEmpty(t, zr.File)

	rec = env.do(t, http.MethodDelete, "/api/v1/infrastructure/generations/"+res.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/infrastructure/generations/"+res.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInfrastructure_GenerateValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing name", map[string]interface{}{"patterns": []string{"three-tier-web"}}},
		{"bad format", map[string]interface{}{"name": "x", "format": "pulumi", "patterns": []string{"three-tier-web"}}},
		{"unknown pattern", map[string]interface{}{"name": "x", "patterns": []string{"mainframe"}}},
		{"nothing requested", map[string]interface{}{"name": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/infrastructure/generate", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/infrastructure/generate", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInfrastructure_Estimate(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/infrastructure/estimate", map[string]interface{}{
		"name":        "shop",
		"environment": "prod",
		"patterns":    []string{"three-tier-web"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Estimate struct {
			Currency    string `json:"currency"`
			Environment string `json:"environment"`
		} `json:"estimate"`
		Resources []infra.ResourceSpec `json:"resources"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "prod", body.Estimate.Environment)
	assert.NotEmpty(t, body.Resources)

	// estimates are not stored
	env2 := env.do(t, http.MethodGet, "/api/v1/infrastructure/generations", nil)
	assert.Contains(t, env2.Body.String(), `"count":0`)

	rec = env.do(t, http.MethodPost, "/api/v1/infrastructure/estimate", map[string]interface{}{"name": "shop"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInfrastructure_EstimateWithoutCost(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, svc *Services) { svc.Cost = nil })
	rec := env.do(t, http.MethodPost, "/api/v1/infrastructure/estimate", map[string]interface{}{
		"name": "shop", "patterns": []string{"three-tier-web"},
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCompliance_Catalog(t *testing.T) {
	env := newTestEnv(t, nil)

	var families struct {
		Count int `json:"count"`
	}
	rec := env.do(t, http.MethodGet, "/api/v1/compliance/families", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &families)
	assert.Equal(t, 20, families.Count)

	var controls struct {
		Controls []compliance.Control `json:"controls"`
		Total    int                  `json:"total"`
		Limit    int                  `json:"limit"`
	}
	rec = env.do(t, http.MethodGet, "/api/v1/compliance/controls?family=ac&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &controls)
	assert.Len(t, controls.Controls, 2)
	assert.GreaterOrEqual(t, controls.Total, 2)
	for _, c := range controls.Controls {
		assert.Equal(t, "AC", c.Family)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/compliance/controls/ac-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ctl compliance.Control
	decodeBody(t, rec, &ctl)
	assert.Equal(t, "AC-2", ctl.ID)

	rec = env.do(t, http.MethodGet, "/api/v1/compliance/controls/ZZ-99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, q := range []string{"family=zz", "baseline=extreme", "automated=maybe", "limit=0", "limit=501", "offset=-1"} {
		rec = env.do(t, http.MethodGet, "/api/v1/compliance/controls?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func runAssessment(t *testing.T, env *testEnv) compliance.Assessment {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/v1/compliance/assessments", map[string]interface{}{})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var a compliance.Assessment
	decodeBody(t, rec, &a)
	return a
}

func TestCompliance_Assessments(t *testing.T) {
	env := newTestEnv(t, nil)
	a := runAssessment(t, env)

	assert.Equal(t, testSubscription, a.SubscriptionID)
	assert.Equal(t, compliance.BaselineModerate, a.Baseline)
	assert.Equal(t, "tenant-a", a.TenantID)
	assert.NotEmpty(t, a.Findings)

	var list struct {
		Assessments []compliance.AssessmentSummary `json:"assessments"`
		Total       int                            `json:"total"`
	}
	rec := env.do(t, http.MethodGet, "/api/v1/compliance/assessments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, a.ID, list.Assessments[0].ID)

	rec = env.do(t, http.MethodGet, "/api/v1/compliance/assessments/latest?subscription_id="+testSubscription, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var latest compliance.Assessment
	decodeBody(t, rec, &latest)
	assert.Equal(t, a.ID, latest.ID)

	rec = env.do(t, http.MethodGet, "/api/v1/compliance/assessments/"+a.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.doAs(t, "tenant-b", http.MethodGet, "/api/v1/compliance/assessments/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var findings struct {
		Count int `json:"count"`
	}
	rec = env.do(t, http.MethodGet, "/api/v1/compliance/assessments/"+a.ID+"/findings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &findings)
	assert.Equal(t, len(a.Findings), findings.Count)

	rec = env.do(t, http.MethodGet, "/api/v1/compliance/assessments/"+a.ID+"/findings?severity=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var plan struct {
		Items []compliance.RemediationItem `json:"items"`
		Count int                          `json:"count"`
	}
	rec = env.do(t, http.MethodGet, "/api/v1/compliance/assessments/"+a.ID+"/remediation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &plan)
	assert.Equal(t, len(plan.Items), plan.Count)
	assert.NotZero(t, plan.Count)
}

func TestCompliance_AssessmentValidation(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, _ *Services) { cfg.Azure.SubscriptionID = "" })

	rec := env.do(t, http.MethodPost, "/api/v1/compliance/assessments", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/compliance/assessments", map[string]interface{}{
		"subscription_id": testSubscription, "baseline": "extreme",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/compliance/assessments/latest", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/compliance/assessments/latest?subscription_id="+testSubscription, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocuments_Lifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	a := runAssessment(t, env)

	rec := env.do(t, http.MethodPost, "/api/v1/documents", map[string]interface{}{
		"type":          "ssp",
		"assessment_id": a.ID,
		"system":        map[string]interface{}{"name": "Shop Portal"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var doc documents.Document
	decodeBody(t, rec, &doc)
	assert.Equal(t, documents.TypeSSP, doc.Type)
	assert.Equal(t, documents.FormatMarkdown, doc.Format)
	assert.Equal(t, "alice", doc.CreatedBy)

	var list struct {
		Documents []documents.Document `json:"documents"`
		Total     int                  `json:"total"`
	}
	rec = env.do(t, http.MethodGet, "/api/v1/documents?type=ssp&assessment_id="+a.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &list)
	assert.Equal(t, 1, list.Total)

	rec = env.do(t, http.MethodGet, "/api/v1/documents?type=memo", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.doAs(t, "tenant-b", http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID+"/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, doc.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), doc.Filename())
	assert.Equal(t, doc.SHA256, rec.Header().Get("X-Content-SHA256"))
	assert.Equal(t, int(doc.Size), rec.Body.Len())
	assert.Contains(t, rec.Body.String(), "Shop Portal")

	rec = env.do(t, http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocuments_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/documents", map[string]interface{}{"type": "memo", "assessment_id": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/documents", map[string]interface{}{"type": "sar"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/documents", map[string]interface{}{"type": "sar", "assessment_id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	disabled := newTestEnv(t, func(_ *config.Config, svc *Services) { svc.Documents = nil })
	rec = disabled.do(t, http.MethodGet, "/api/v1/documents", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAgents_ListAndDispatch(t *testing.T) {
	env := newTestEnv(t, nil)

	var list struct {
		Agents []agents.Info `json:"agents"`
		Count  int           `json:"count"`
	}
	rec := env.do(t, http.MethodGet, "/api/v1/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &list)
	assert.Equal(t, 4, list.Count)

	rec = env.do(t, http.MethodPost, "/api/v1/agents/dispatch", agents.DispatchRequest{Query: "explain AC-2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp agents.DispatchResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, []string{"compliance"}, resp.Routed)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, agents.StatusOK, resp.Results[0].Status)
	assert.Contains(t, resp.Results[0].Summary, "AC-2")

	rec = env.do(t, http.MethodPost, "/api/v1/agents/dispatch", agents.DispatchRequest{
		Query: "generate serverless-api in terraform",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.Equal(t, []string{"infrastructure"}, resp.Routed)
	assert.Equal(t, agents.StatusOK, resp.Results[0].Status, resp.Results[0].Error)

	// the generation is visible through the infrastructure API
	rec = env.do(t, http.MethodGet, "/api/v1/infrastructure/generations", nil)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestAgents_DispatchErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/agents/dispatch", agents.DispatchRequest{Query: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/agents/dispatch", agents.DispatchRequest{Query: "hello there"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/agents/dispatch", agents.DispatchRequest{Query: "hi", Agent: "poet"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	disabled := newTestEnv(t, func(_ *config.Config, svc *Services) { svc.Agents = nil })
	rec = disabled.do(t, http.MethodGet, "/api/v1/agents", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAudit_RecordsMutations(t *testing.T) {
	env := newTestEnv(t, nil)
	generateShop(t, env)
	env.do(t, http.MethodGet, "/api/v1/infrastructure/generations", nil)

	require.Eventually(t, func() bool { return env.audit.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	var body struct {
		Events []audit.Event `json:"events"`
		Count  int           `json:"count"`
	}
	rec := env.do(t, http.MethodGet, "/api/v1/audit/events?action=POST+/api/v1/infrastructure/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	require.Equal(t, 1, body.Count)
	ev := body.Events[0]
	assert.Equal(t, "tenant-a", ev.TenantID)
	assert.Equal(t, "alice", ev.UserID)
	assert.Equal(t, "/api/v1/infrastructure/generate", ev.Resource)
	assert.Equal(t, http.StatusCreated, ev.Status)
	assert.NotEmpty(t, ev.RequestID)

	rec = env.doAs(t, "tenant-b", http.MethodGet, "/api/v1/audit/events", nil)
	decodeBody(t, rec, &body)
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Events)

	// auth off grants admin, so another tenant can be named
	rec = env.doAs(t, "tenant-b", http.MethodGet, "/api/v1/audit/events?tenant_id=tenant-a", nil)
	decodeBody(t, rec, &body)
	assert.Equal(t, 1, body.Count)
}

func TestAudit_SearchValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, q := range []string{"since=yesterday", "until=soon", "since=2025-01-02&until=2025-01-01", "limit=1000"} {
		rec := env.do(t, http.MethodGet, "/api/v1/audit/events?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestAudit_CrossTenantRequiresAdmin(t *testing.T) {
	env := jwtEnv(t)
	token, err := IssueToken(testSecret, "platform-copilot", "tenant-b", "bob", nil, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events?tenant_id=tenant-a", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/audit/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCostRoutesMounted(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/v1/budgets", nil)
	assert.NotEqual(t, http.StatusNotFound, rec.Code)

	disabled := newTestEnv(t, func(_ *config.Config, svc *Services) { svc.Cost = nil })
	rec = disabled.do(t, http.MethodGet, "/api/v1/budgets", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
