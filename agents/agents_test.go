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

package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot/platform/compliance"
	"copilot/platform/cost"
	"copilot/platform/documents"
	"copilot/platform/infra"
)

type fakeGenerator struct {
	planned   []infra.GenerationRequest
	generated []infra.GenerationRequest
}

func (f *fakeGenerator) Plan(req infra.GenerationRequest) ([]infra.ResourceSpec, string, []string, error) {
	f.planned = append(f.planned, req)
	return []infra.ResourceSpec{{Name: "app-kv", Type: infra.TypeKeyVault}}, "app-log", nil, nil
}

func (f *fakeGenerator) Generate(_ context.Context, req infra.GenerationRequest) (*infra.GenerationResult, error) {
	f.generated = append(f.generated, req)
	return &infra.GenerationResult{
		ID:      "gen-1",
		Format:  req.Format,
		Modules: []infra.Module{{Name: "app-kv"}},
		Files:   map[string]string{"main.tf": "", "modules/app-kv/main.tf": ""},
	}, nil
}

type fixedEstimator struct{ total float64 }

func (e fixedEstimator) EstimateResources(specs []infra.ResourceSpec, production bool) *cost.Estimate {
	return &cost.Estimate{Currency: "USD", TotalMonthlyUSD: e.total}
}

func TestInfrastructureAgent_Generate(t *testing.T) {
	gen := &fakeGenerator{}
	a := NewInfrastructureAgent(gen, nil)

	out, err := a.Handle(context.Background(), Task{
		Query:    "Generate an AKS Microservices stack in Terraform for production",
		Params:   map[string]string{"name": "shop"},
		TenantID: "tenant-a",
	})
	require.NoError(t, err)
	require.Len(t, gen.generated, 1)

	req := gen.generated[0]
	assert.Equal(t, "shop", req.Name)
	assert.Equal(t, infra.FormatTerraform, req.Format)
	assert.Equal(t, "prod", req.Environment)
	assert.Equal(t, []string{"aks-microservices"}, req.Patterns)
	assert.Equal(t, "tenant-a", req.TenantID)

	assert.Contains(t, out.Summary, "gen-1")
	data := out.Data.(map[string]interface{})
	assert.Equal(t, []string{"main.tf", "modules/app-kv/main.tf"}, data["files"])
}

func TestInfrastructureAgent_PlanWithEstimate(t *testing.T) {
	gen := &fakeGenerator{}
	a := NewInfrastructureAgent(gen, fixedEstimator{total: 42.5})

	out, err := a.Handle(context.Background(), Task{
		Query:  "estimate a serverless api",
		Params: map[string]string{"environment": "staging"},
	})
	require.NoError(t, err)
	assert.Empty(t, gen.generated)
	require.Len(t, gen.planned, 1)
	assert.Equal(t, "staging", gen.planned[0].Environment)
	assert.Equal(t, infra.FormatBicep, gen.planned[0].Format)
	assert.Contains(t, out.Summary, "$42.50/month")

	est := out.Data.(map[string]interface{})["estimate"].(*cost.Estimate)
	assert.Equal(t, "staging", est.Environment)
}

func TestInfrastructureAgent_NoPattern(t *testing.T) {
	gen := &fakeGenerator{}
	out, err := NewInfrastructureAgent(gen, nil).Handle(context.Background(), Task{Query: "deploy something"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Summary, "No architecture pattern named"))
	assert.Contains(t, out.Summary, "three-tier-web")
	assert.Empty(t, gen.generated)
}

func TestPatternsIn_Params(t *testing.T) {
	got := patternsIn(Task{Query: "three tier web", Params: map[string]string{"patterns": "data-platform, hub-spoke-network"}})
	assert.Equal(t, []string{"data-platform", "hub-spoke-network"}, got)
	assert.Equal(t, []string{"three-tier-web"}, patternsIn(Task{Query: "a three tier web app"}))
}

type fakeCompliance struct {
	runs   []compliance.AssessmentRequest
	latest int
}

func (f *fakeCompliance) Catalog() *compliance.Catalog { return compliance.DefaultCatalog() }

func (f *fakeCompliance) RunAssessment(_ context.Context, req compliance.AssessmentRequest) (*compliance.Assessment, error) {
	f.runs = append(f.runs, req)
	return &compliance.Assessment{
		ID: "as-1", SubscriptionID: req.SubscriptionID, Baseline: req.Baseline, Score: 75,
		Controls: []compliance.ControlResult{{Status: compliance.StatusPassed}, {Status: compliance.StatusFailed}},
	}, nil
}

func (f *fakeCompliance) LatestAssessment(_ context.Context, tenantID, sub string) (*compliance.Assessment, error) {
	f.latest++
	return &compliance.Assessment{ID: "as-0", SubscriptionID: sub, Baseline: compliance.BaselineModerate}, nil
}

func TestComplianceAgent_ExplainsControl(t *testing.T) {
	fc := &fakeCompliance{}
	out, err := NewComplianceAgent(fc, "").Handle(context.Background(), Task{Query: "explain ac-2 please"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Summary, "AC-2 "))
	assert.Empty(t, fc.runs)
}

func TestComplianceAgent_RunsAssessment(t *testing.T) {
	fc := &fakeCompliance{}
	a := NewComplianceAgent(fc, "sub-default")

	out, err := a.Handle(context.Background(), Task{Query: "run a FedRAMP High assessment", TenantID: "t1", UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, fc.runs, 1)
	assert.Equal(t, "sub-default", fc.runs[0].SubscriptionID)
	assert.Equal(t, compliance.BaselineHigh, fc.runs[0].Baseline)
	assert.Equal(t, "alice", fc.runs[0].RequestedBy)
	assert.Contains(t, out.Summary, "score 75.0%, 1 passed, 1 failed")

	_, err = a.Handle(context.Background(), Task{Query: "show the latest compliance results", Params: map[string]string{"subscription_id": "sub-2"}})
	require.NoError(t, err)
	assert.Equal(t, 1, fc.latest)
}

func TestComplianceAgent_Errors(t *testing.T) {
	_, err := NewComplianceAgent(&fakeCompliance{}, "").Handle(context.Background(), Task{Query: "are we compliant"})
	assert.True(t, errors.Is(err, ErrMissingParameter))

	_, err = NewComplianceAgent(&fakeCompliance{}, "sub").Handle(context.Background(), Task{
		Query: "assess", Params: map[string]string{"baseline": "extreme"},
	})
	assert.True(t, errors.Is(err, compliance.ErrInvalidBaseline))
}

type fakeCost struct {
	called  string
	groupBy string
	opts    cost.CostQueryOptions
}

func (f *fakeCost) GetCostSummary(_ context.Context, opts cost.CostQueryOptions) (*cost.CostSummary, error) {
	f.called, f.opts = "summary", opts
	return &cost.CostSummary{TotalCostUSD: 123.456, RecordCount: 9}, nil
}

func (f *fakeCost) GetCostBreakdown(_ context.Context, groupBy string, opts cost.CostQueryOptions) (*cost.Breakdown, error) {
	f.called, f.groupBy, f.opts = "breakdown", groupBy, opts
	return &cost.Breakdown{TotalCostUSD: 10, Items: []cost.BreakdownItem{{GroupValue: "rg-app", CostUSD: 7}}}, nil
}

func (f *fakeCost) Forecast(_ context.Context, opts cost.CostQueryOptions) (*cost.Forecast, error) {
	f.called, f.opts = "forecast", opts
	return &cost.Forecast{ProjectedUSD: 310, ActualToDateUSD: 100, DaysElapsed: 10}, nil
}

func (f *fakeCost) DetectAnomalies(_ context.Context, opts cost.CostQueryOptions, _ cost.AnomalyOptions) ([]cost.Anomaly, error) {
	f.called, f.opts = "anomalies", opts
	return []cost.Anomaly{{Date: time.Date(2025, 3, 28, 0, 0, 0, 0, time.UTC), ZScore: 89}}, nil
}

func TestCostAgent(t *testing.T) {
	tests := []struct {
		query   string
		called  string
		groupBy string
		summary string
	}{
		{"what will we spend by month end", "forecast", "", "Projected month-end spend $310.00"},
		{"any cost anomalies?", "anomalies", "", "1 cost anomalies, largest z-score 89.0 on 2025-03-28"},
		{"show cost by resource group", "breakdown", "resource_group", "top rg-app at $7.00"},
		{"cost by region", "breakdown", "location", "across 1 location values"},
		{"how much have we spent", "summary", "", "Month-to-date spend $123.46 over 9 records"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			fc := &fakeCost{}
			out, err := NewCostAgent(fc).Handle(context.Background(), Task{Query: tt.query, TenantID: "t1"})
			require.NoError(t, err)
			assert.Equal(t, tt.called, fc.called)
			assert.Equal(t, tt.groupBy, fc.groupBy)
			assert.Equal(t, "t1", fc.opts.TenantID)
			assert.Contains(t, out.Summary, tt.summary)
		})
	}
}

type fakeDocuments struct {
	reqs []documents.GenerateRequest
}

func (f *fakeDocuments) Generate(_ context.Context, req documents.GenerateRequest) (*documents.Document, error) {
	f.reqs = append(f.reqs, req)
	return &documents.Document{ID: "doc-1", Type: req.Type, Title: req.Type.Title(), Size: 12}, nil
}

func TestDocumentsAgent(t *testing.T) {
	fd := &fakeDocuments{}
	a := NewDocumentsAgent(fd)

	out, err := a.Handle(context.Background(), Task{
		Query:  "create the POA&M",
		Params: map[string]string{"assessment_id": "as-1", "format": "csv"},
		UserID: "alice",
	})
	require.NoError(t, err)
	require.Len(t, fd.reqs, 1)
	assert.Equal(t, documents.TypePOAM, fd.reqs[0].Type)
	assert.Equal(t, documents.FormatCSV, fd.reqs[0].Format)
	assert.Equal(t, "alice", fd.reqs[0].RequestedBy)
	assert.Equal(t, "Generated Plan of Action and Milestones doc-1 (12 bytes)", out.Summary)

	_, err = a.Handle(context.Background(), Task{Query: "build the authorization package", Params: map[string]string{"assessment_id": "as-1"}})
	require.NoError(t, err)
	assert.Equal(t, documents.TypeATO, fd.reqs[1].Type)
}

func TestDocumentsAgent_Errors(t *testing.T) {
	a := NewDocumentsAgent(&fakeDocuments{})

	_, err := a.Handle(context.Background(), Task{Query: "make a document", Params: map[string]string{"assessment_id": "as-1"}})
	assert.True(t, errors.Is(err, ErrMissingParameter))

	_, err = a.Handle(context.Background(), Task{Query: "write the SSP"})
	assert.True(t, errors.Is(err, ErrMissingParameter))

	_, err = a.Handle(context.Background(), Task{Params: map[string]string{"type": "memo", "assessment_id": "x"}})
	assert.True(t, errors.Is(err, documents.ErrInvalidType))
}
