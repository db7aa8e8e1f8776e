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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot/platform/agents"
	"copilot/platform/audit"
	"copilot/platform/azure"
	"copilot/platform/compliance"
	"copilot/platform/cost"
	"copilot/platform/documents"
	"copilot/platform/infra"
	"copilot/platform/shared/config"
	"copilot/platform/shared/logger"
)

const testSubscription = "00000000-0000-0000-0000-000000000001"

type fakeResources []azure.Resource

func (f fakeResources) QueryResources(context.Context, azure.Scope) ([]azure.Resource, error) {
	return f, nil
}

type fakeDefender []azure.SecurityAssessment

func (f fakeDefender) ListSecurityAssessments(context.Context, string) ([]azure.SecurityAssessment, error) {
	return f, nil
}

func sampleResources() []azure.Resource {
	return []azure.Resource{
		{
			ID:   "/subscriptions/" + testSubscription + "/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/st",
			Name: "st", Type: "Microsoft.Storage/storageAccounts", ResourceGroup: "rg",
			Properties: map[string]interface{}{
				"supportsHttpsTrafficOnly": false,
				"minimumTlsVersion":        "TLS1_0",
				"allowBlobPublicAccess":    true,
			},
		},
	}
}

type testEnv struct {
	server *Server
	cfg    *config.Config
	audit  *audit.MemoryStore
}

func quietLogger() *logger.Logger {
	l := logger.New("admin-test")
	l.SetOutput(io.Discard)
	return l
}

func newTestEnv(t *testing.T, mutate func(*config.Config, *Services)) *testEnv {
	t.Helper()
	log := quietLogger()
	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", CORSOrigins: []string{"*"}},
		Azure:  config.AzureConfig{SubscriptionID: testSubscription},
		Auth:   config.AuthConfig{Mode: AuthOff, Issuer: "platform-copilot"},
	}

	store := infra.NewResultStore(time.Hour, time.Hour, log)
	t.Cleanup(store.Stop)
	gen := infra.NewCompositeGenerator(nil, store, log)

	assessor := compliance.NewAssessor(nil, []compliance.Collector{
		compliance.NewInventoryCollector(fakeResources(sampleResources())),
		compliance.NewDefenderCollector(fakeDefender(nil)),
	}, &compliance.AssessorOptions{Logger: log})
	comp := compliance.NewService(assessor, compliance.NewMemoryRepository(), nil, log)

	storage, err := documents.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	docs := documents.NewService(comp, comp.Catalog(), storage, nil, log)

	costs := cost.NewServiceWithOptions(cost.NewMemoryRepository(), cost.NewPricingConfig(), nil, newStdLogger())

	router, err := agents.NewRouter(nil, log,
		agents.NewInfrastructureAgent(gen, costs),
		agents.NewComplianceAgent(comp, testSubscription),
		agents.NewCostAgent(costs),
		agents.NewDocumentsAgent(docs),
	)
	require.NoError(t, err)

	auditStore := audit.NewMemoryStore(100)
	auditLog := audit.NewLogger(auditStore, audit.Options{BatchSize: 1, FlushInterval: 10 * time.Millisecond, Logger: log})
	t.Cleanup(func() { _ = auditLog.Close(context.Background()) })

	svc := Services{
		Generator:  gen,
		Compliance: comp,
		Documents:  docs,
		Cost:       costs,
		Agents:     router,
		Audit:      auditLog,
	}
	if mutate != nil {
		mutate(cfg, &svc)
	}
	return &testEnv{server: NewServer(cfg, svc, log), cfg: cfg, audit: auditStore}
}

func newStdLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// do sends a request as tenant-a / alice and returns the recorder
func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.doAs(t, "tenant-a", method, path, body)
}

func (e *testEnv) doAs(t *testing.T, tenant, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTenantID, tenant)
	req.Header.Set(HeaderUserID, "alice")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, svc *Services) {
		svc.Checks = map[string]HealthCheck{
			"database": func(context.Context) bool { return false },
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status     string          `json:"status"`
		Service    string          `json:"service"`
		Version    string          `json:"version"`
		Components map[string]bool `json:"components"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "platform-copilot-admin", body.Service)
	assert.Equal(t, Version, body.Version)
	assert.False(t, body.Components["database"])
	assert.True(t, body.Components["cost"])
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/infrastructure/patterns", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))

	rec = env.do(t, http.MethodGet, "/api/v1/infrastructure/patterns", nil)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestPrometheusEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/v1/infrastructure/patterns", nil)

	req := httptest.NewRequest(http.MethodGet, "/prometheus", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "copilot_http_requests_total")
}
