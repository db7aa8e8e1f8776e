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

package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"copilot/platform/agents"
	"copilot/platform/compliance"
	"copilot/platform/cost"
	"copilot/platform/documents"
	"copilot/platform/infra"
)

// maxInlineDocument bounds the document bytes returned inline by generate_document
const maxInlineDocument = 256 << 10

// addTool registers h with per-call timeout and logging
func addTool[In, Out any](s *Server, tool *mcp.Tool, h func(ctx context.Context, in In) (Out, error)) {
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()

		start := time.Now()
		out, err := h(ctx, in)
		if err != nil {
			s.log.Warn(s.opts.TenantID, "", "MCP tool failed", map[string]interface{}{
				"tool":  tool.Name,
				"error": err.Error(),
			})
			var zero Out
			return nil, zero, err
		}
		s.log.InfoWithDuration(s.opts.TenantID, "", "MCP tool called", float64(time.Since(start).Milliseconds()), map[string]interface{}{
			"tool": tool.Name,
		})
		return nil, out, nil
	})
	s.tools = append(s.tools, tool.Name)
}

func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name:        "list_patterns",
		Description: "List the architecture patterns available for infrastructure generation",
	}, s.listPatterns)
	addTool(s, &mcp.Tool{
		Name:        "generate_infrastructure",
		Description: "Generate Bicep or Terraform modules for architecture patterns and extra resources",
	}, s.generateInfrastructure)
	if s.svc.Cost != nil {
		addTool(s, &mcp.Tool{
			Name:        "estimate_infrastructure_cost",
			Description: "Estimate the monthly list price of the resources a generation request would create",
		}, s.estimateInfrastructure)
	}
	addTool(s, &mcp.Tool{
		Name:        "list_controls",
		Description: "List NIST 800-53 Rev. 5 controls, optionally filtered by family and FedRAMP baseline",
	}, s.listControls)
	addTool(s, &mcp.Tool{
		Name:        "get_control",
		Description: "Get one NIST 800-53 control with its description and implementation guidance",
	}, s.getControl)
	addTool(s, &mcp.Tool{
		Name:        "run_compliance_assessment",
		Description: "Assess an Azure subscription or resource group against a FedRAMP baseline",
	}, s.runAssessment)
	addTool(s, &mcp.Tool{
		Name:        "get_assessment",
		Description: "Get a stored compliance assessment with its findings",
	}, s.getAssessment)
	if s.svc.Documents != nil {
		addTool(s, &mcp.Tool{
			Name:        "generate_document",
			Description: "Generate an SSP, POA&M, SAR or ATO package from a compliance assessment",
		}, s.generateDocument)
	}
	if s.svc.Cost != nil {
		addTool(s, &mcp.Tool{
			Name:        "cost_summary",
			Description: "Summarize spend for the current period, optionally broken down by a dimension",
		}, s.costSummary)
		addTool(s, &mcp.Tool{
			Name:        "check_budget",
			Description: "Check whether the budgets covering a scope allow further spend",
		}, s.checkBudget)
	}
	if s.svc.Agents != nil {
		addTool(s, &mcp.Tool{
			Name:        "ask_copilot",
			Description: "Route a natural language request to the infrastructure, compliance, cost and documents agents",
		}, s.askCopilot)
	}
}

// ListPatternsInput takes no arguments
type ListPatternsInput struct{}

// PatternInfo describes one architecture pattern
type PatternInfo struct {
	Name        string `json:"name" jsonschema:"pattern name to pass to generate_infrastructure"`
	Description string `json:"description"`
	Resources   int    `json:"resources" jsonschema:"number of resources the pattern declares"`
}

// PatternsOutput lists patterns
type PatternsOutput struct {
	Patterns []PatternInfo `json:"patterns"`
}

func (s *Server) listPatterns(_ context.Context, _ ListPatternsInput) (PatternsOutput, error) {
	all := infra.Patterns()
	out := PatternsOutput{Patterns: make([]PatternInfo, 0, len(all))}
	for _, p := range all {
		out.Patterns = append(out.Patterns, PatternInfo{Name: p.Name, Description: p.Description, Resources: len(p.Resources)})
	}
	return out, nil
}

// GenerateInput is a generation request
type GenerateInput struct {
	Name         string               `json:"name" jsonschema:"deployment name: lowercase letters, digits and hyphens"`
	Format       string               `json:"format,omitempty" jsonschema:"bicep (default) or terraform"`
	Location     string               `json:"location,omitempty" jsonschema:"Azure region, default eastus"`
	Environment  string               `json:"environment,omitempty" jsonschema:"dev (default), test, staging or prod"`
	Patterns     []string             `json:"patterns,omitempty" jsonschema:"architecture patterns from list_patterns"`
	Resources    []infra.ResourceSpec `json:"resources,omitempty" jsonschema:"additional resources"`
	Tags         map[string]string    `json:"tags,omitempty"`
	IncludeFiles bool                 `json:"include_files,omitempty" jsonschema:"return file contents, not only paths"`
}

func (in GenerateInput) request(tenantID string) infra.GenerationRequest {
	return infra.GenerationRequest{
		Name:        in.Name,
		Format:      infra.Format(strings.ToLower(in.Format)),
		Location:    in.Location,
		Environment: in.Environment,
		Patterns:    in.Patterns,
		Resources:   in.Resources,
		Tags:        in.Tags,
		TenantID:    tenantID,
	}
}

// GeneratedFile is one generated file
type GeneratedFile struct {
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Content string `json:"content,omitempty"`
}

// GenerationOutput summarizes a stored generation
type GenerationOutput struct {
	ID          string          `json:"id" jsonschema:"generation id for the Admin API archive endpoint"`
	Name        string          `json:"name"`
	Format      string          `json:"format"`
	Environment string          `json:"environment"`
	Order       []string        `json:"order" jsonschema:"module deployment order"`
	Files       []GeneratedFile `json:"files"`
	Warnings    []string        `json:"warnings"`
	ExpiresAt   string          `json:"expires_at"`
}

func (s *Server) generateInfrastructure(ctx context.Context, in GenerateInput) (GenerationOutput, error) {
	res, err := s.svc.Generator.Generate(ctx, in.request(s.opts.TenantID))
	if err != nil {
		return GenerationOutput{}, err
	}
	out := GenerationOutput{
		ID:          res.ID,
		Name:        res.Name,
		Format:      string(res.Format),
		Environment: res.Environment,
		Order:       nonNil(res.Order),
		Warnings:    nonNil(res.Warnings),
		ExpiresAt:   res.ExpiresAt.UTC().Format(time.RFC3339),
	}
	paths := make([]string, 0, len(res.Files))
	for p := range res.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		f := GeneratedFile{Path: p, Size: len(res.Files[p])}
		if in.IncludeFiles {
			f.Content = res.Files[p]
		}
		out.Files = append(out.Files, f)
	}
	return out, nil
}

// EstimateOutput is the priced plan of a request
type EstimateOutput struct {
	Estimate  cost.Estimate `json:"estimate"`
	Resources int           `json:"resources"`
	Warnings  []string      `json:"warnings"`
}

func (s *Server) estimateInfrastructure(_ context.Context, in GenerateInput) (EstimateOutput, error) {
	req := in.request(s.opts.TenantID)
	req.Normalize()
	specs, _, warnings, err := s.svc.Generator.Plan(req)
	if err != nil {
		return EstimateOutput{}, err
	}
	est := s.svc.Cost.EstimateResources(specs, req.IsProduction())
	est.Environment = req.Environment
	return EstimateOutput{Estimate: *est, Resources: len(specs), Warnings: nonNil(warnings)}, nil
}

// ListControlsInput filters the catalog
type ListControlsInput struct {
	Family        string `json:"family,omitempty" jsonschema:"two-letter family id such as AC"`
	Baseline      string `json:"baseline,omitempty" jsonschema:"low, moderate or high"`
	AutomatedOnly bool   `json:"automated_only,omitempty" jsonschema:"only controls with automated checks"`
	Limit         int    `json:"limit,omitempty" jsonschema:"maximum controls returned, default 100"`
}

// ControlsOutput is a page of controls
type ControlsOutput struct {
	Controls []compliance.Control `json:"controls"`
	Total    int                  `json:"total"`
}

func (s *Server) listControls(_ context.Context, in ListControlsInput) (ControlsOutput, error) {
	catalog := s.svc.Compliance.Catalog()
	filter := compliance.ControlFilter{Automated: in.AutomatedOnly}
	if in.Family != "" {
		if _, ok := catalog.Family(in.Family); !ok {
			return ControlsOutput{}, fmt.Errorf("unknown control family %q", in.Family)
		}
		filter.Family = in.Family
	}
	if in.Baseline != "" {
		b, err := compliance.ParseBaseline(in.Baseline)
		if err != nil {
			return ControlsOutput{}, err
		}
		filter.Baseline = b
	}
	limit := in.Limit
	if limit <= 0 || limit > cost.MaxPageLimit {
		limit = 100
	}
	controls := catalog.Controls(filter)
	out := ControlsOutput{Total: len(controls), Controls: []compliance.Control{}}
	if len(controls) > limit {
		controls = controls[:limit]
	}
	out.Controls = append(out.Controls, controls...)
	return out, nil
}

// GetControlInput names a control
type GetControlInput struct {
	ID string `json:"id" jsonschema:"control id such as AC-2 or SC-8(1)"`
}

func (s *Server) getControl(_ context.Context, in GetControlInput) (compliance.Control, error) {
	return s.svc.Compliance.Catalog().Control(in.ID)
}

// AssessmentInput selects the scope of an assessment
type AssessmentInput struct {
	SubscriptionID string `json:"subscription_id,omitempty" jsonschema:"Azure subscription id, defaults to the configured subscription"`
	ResourceGroup  string `json:"resource_group,omitempty"`
	Baseline       string `json:"baseline,omitempty" jsonschema:"low, moderate (default) or high"`
}

// AssessmentOutput summarizes an assessment
type AssessmentOutput struct {
	ID             string               `json:"id"`
	SubscriptionID string               `json:"subscription_id"`
	ResourceGroup  string               `json:"resource_group,omitempty"`
	Baseline       string               `json:"baseline"`
	Status         string               `json:"status"`
	Score          float64              `json:"score" jsonschema:"percentage of assessed controls that passed"`
	Passed         int                  `json:"passed"`
	Failed         int                  `json:"failed"`
	NotAssessed    int                  `json:"not_assessed"`
	CompletedAt    string               `json:"completed_at"`
	Findings       []compliance.Finding `json:"findings"`
}

func assessmentOutput(a *compliance.Assessment, findings []compliance.Finding) AssessmentOutput {
	passed, failed, notAssessed := a.Counts()
	if findings == nil {
		findings = []compliance.Finding{}
	}
	return AssessmentOutput{
		ID:             a.ID,
		SubscriptionID: a.SubscriptionID,
		ResourceGroup:  a.ResourceGroup,
		Baseline:       string(a.Baseline),
		Status:         string(a.Status),
		Score:          a.Score,
		Passed:         passed,
		Failed:         failed,
		NotAssessed:    notAssessed,
		CompletedAt:    a.CompletedAt.UTC().Format(time.RFC3339),
		Findings:       findings,
	}
}

func (s *Server) runAssessment(ctx context.Context, in AssessmentInput) (AssessmentOutput, error) {
	sub := in.SubscriptionID
	if sub == "" {
		sub = s.opts.DefaultSubscription
	}
	if sub == "" {
		return AssessmentOutput{}, fmt.Errorf("%w: subscription_id is required", compliance.ErrInvalidRequest)
	}
	baseline, err := compliance.ParseBaseline(in.Baseline)
	if err != nil {
		return AssessmentOutput{}, err
	}
	a, err := s.svc.Compliance.RunAssessment(ctx, compliance.AssessmentRequest{
		SubscriptionID: sub,
		ResourceGroup:  in.ResourceGroup,
		Baseline:       baseline,
		TenantID:       s.opts.TenantID,
		RequestedBy:    s.opts.UserID,
	})
	if err != nil {
		return AssessmentOutput{}, err
	}
	return assessmentOutput(a, a.Findings), nil
}

// GetAssessmentInput names an assessment
type GetAssessmentInput struct {
	ID       string `json:"id" jsonschema:"assessment id"`
	Severity string `json:"severity,omitempty" jsonschema:"only findings of this severity: critical, high, medium or low"`
}

func (s *Server) getAssessment(ctx context.Context, in GetAssessmentInput) (AssessmentOutput, error) {
	var severity compliance.Severity
	if in.Severity != "" {
		sev, err := compliance.ParseSeverity(in.Severity)
		if err != nil {
			return AssessmentOutput{}, err
		}
		severity = sev
	}
	a, err := s.svc.Compliance.GetAssessment(ctx, s.opts.TenantID, in.ID)
	if err != nil {
		return AssessmentOutput{}, err
	}
	findings, err := s.svc.Compliance.Findings(ctx, s.opts.TenantID, in.ID, severity)
	if err != nil {
		return AssessmentOutput{}, err
	}
	return assessmentOutput(a, findings), nil
}

// DocumentInput asks for a document
type DocumentInput struct {
	Type         string `json:"type" jsonschema:"ssp, poam, sar or ato"`
	AssessmentID string `json:"assessment_id"`
	Format       string `json:"format,omitempty" jsonschema:"markdown or csv for poam; others use their fixed format"`
	SystemName   string `json:"system_name,omitempty"`
}

// DocumentOutput describes a stored document. Text documents are inlined.
type DocumentOutput struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Format      string `json:"format"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
	Content     string `json:"content,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	ContentType string `json:"content_type"`
}

func (s *Server) generateDocument(ctx context.Context, in DocumentInput) (DocumentOutput, error) {
	doc, err := s.svc.Documents.Generate(ctx, documents.GenerateRequest{
		Type:         documents.Type(in.Type),
		AssessmentID: in.AssessmentID,
		Format:       documents.Format(strings.ToLower(in.Format)),
		System:       documents.SystemInfo{Name: in.SystemName},
		TenantID:     s.opts.TenantID,
		RequestedBy:  s.opts.UserID,
	})
	if err != nil {
		return DocumentOutput{}, err
	}
	out := DocumentOutput{
		ID:          doc.ID,
		Type:        string(doc.Type),
		Title:       doc.Title,
		Format:      string(doc.Format),
		Filename:    doc.Filename(),
		Size:        doc.Size,
		SHA256:      doc.SHA256,
		ContentType: doc.ContentType,
	}
	if doc.Format == documents.FormatZip {
		return out, nil
	}
	_, data, err := s.svc.Documents.Download(ctx, s.opts.TenantID, doc.ID)
	if err != nil {
		return DocumentOutput{}, err
	}
	if len(data) > maxInlineDocument {
		data = data[:maxInlineDocument]
		out.Truncated = true
	}
	out.Content = string(data)
	return out, nil
}

// CostSummaryInput scopes a spend summary
type CostSummaryInput struct {
	SubscriptionID string `json:"subscription_id,omitempty"`
	ResourceGroup  string `json:"resource_group,omitempty"`
	Period         string `json:"period,omitempty" jsonschema:"daily, weekly or monthly (default)"`
	GroupBy        string `json:"group_by,omitempty" jsonschema:"service, resource_group, location or subscription"`
}

// CostSummaryOutput is spend for one period
type CostSummaryOutput struct {
	TotalCostUSD    float64              `json:"total_cost_usd"`
	RecordCount     int                  `json:"record_count"`
	AverageDailyUSD float64              `json:"average_daily_usd"`
	Currency        string               `json:"currency"`
	Period          string               `json:"period"`
	PeriodStart     string               `json:"period_start"`
	PeriodEnd       string               `json:"period_end"`
	GroupBy         string               `json:"group_by,omitempty"`
	Breakdown       []cost.BreakdownItem `json:"breakdown,omitempty"`
}

func (s *Server) costSummary(ctx context.Context, in CostSummaryInput) (CostSummaryOutput, error) {
	period := in.Period
	if period == "" {
		period = "monthly"
	}
	opts := cost.CostQueryOptions{
		TenantID:       s.opts.TenantID,
		SubscriptionID: in.SubscriptionID,
		ResourceGroup:  in.ResourceGroup,
		Period:         period,
	}
	sum, err := s.svc.Cost.GetCostSummary(ctx, opts)
	if err != nil {
		return CostSummaryOutput{}, err
	}
	out := CostSummaryOutput{
		TotalCostUSD:    sum.TotalCostUSD,
		RecordCount:     sum.RecordCount,
		AverageDailyUSD: sum.AverageDailyUSD,
		Currency:        sum.Currency,
		Period:          period,
		PeriodStart:     sum.PeriodStart.UTC().Format(time.RFC3339),
		PeriodEnd:       sum.PeriodEnd.UTC().Format(time.RFC3339),
	}
	if in.GroupBy != "" {
		b, err := s.svc.Cost.GetCostBreakdown(ctx, in.GroupBy, opts)
		if err != nil {
			return CostSummaryOutput{}, err
		}
		out.GroupBy = in.GroupBy
		out.Breakdown = b.Items
	}
	return out, nil
}

func (s *Server) checkBudget(ctx context.Context, in cost.BudgetCheckRequest) (cost.BudgetDecision, error) {
	in.TenantID = s.opts.TenantID
	if in.SubscriptionID == "" {
		in.SubscriptionID = s.opts.DefaultSubscription
	}
	d, err := s.svc.Cost.CheckBudget(ctx, in)
	if err != nil {
		return cost.BudgetDecision{}, err
	}
	return *d, nil
}

func (s *Server) askCopilot(ctx context.Context, in agents.DispatchRequest) (agents.DispatchResponse, error) {
	resp, err := s.svc.Agents.Dispatch(ctx, in, agents.Task{
		TenantID: s.opts.TenantID,
		UserID:   s.opts.UserID,
	})
	if err != nil {
		return agents.DispatchResponse{}, err
	}
	return *resp, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
