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

package compliance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"copilot/platform/azure"
	"copilot/platform/shared/logger"
	"copilot/platform/shared/metrics"
)

// AssessorOptions tunes an Assessor. Nil rule slices use the defaults.
type AssessorOptions struct {
	Rules      []Rule
	ScopeRules []ScopeRule
	// DropEvidence omits evidence content from results
	DropEvidence bool
	Logger       *logger.Logger
}

// Assessor evaluates collected evidence against a control catalog
type Assessor struct {
	catalog      *Catalog
	collectors   []Collector
	rules        []Rule
	scopeRules   []ScopeRule
	dropEvidence bool
	log          *logger.Logger
	now          func() time.Time
}

// NewAssessor creates an assessor
func NewAssessor(catalog *Catalog, collectors []Collector, opts *AssessorOptions) *Assessor {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if opts == nil {
		opts = &AssessorOptions{}
	}
	a := &Assessor{
		catalog:      catalog,
		collectors:   collectors,
		rules:        opts.Rules,
		scopeRules:   opts.ScopeRules,
		dropEvidence: opts.DropEvidence,
		log:          opts.Logger,
		now:          time.Now,
	}
	if a.rules == nil {
		a.rules = DefaultRules(nil)
	}
	if a.scopeRules == nil {
		a.scopeRules = DefaultScopeRules()
	}
	if a.log == nil {
		a.log = logger.New("compliance")
	}
	return a
}

// Catalog returns the catalog controls are evaluated against
func (a *Assessor) Catalog() *Catalog {
	return a.catalog
}

// controlState accumulates checks for one control during an assessment
type controlState struct {
	checks   int
	findings []string
}

// pending is a finding before ids are assigned
type pending struct {
	Finding
	controls []string
}

// Assess collects evidence for the request scope and evaluates every
// control in the requested baseline
func (a *Assessor) Assess(ctx context.Context, req AssessmentRequest) (*Assessment, error) {
	baseline, err := ParseBaseline(string(req.Baseline))
	if err != nil {
		return nil, err
	}
	scope := azure.Scope{SubscriptionID: req.SubscriptionID, ResourceGroup: req.ResourceGroup}
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	started := a.now().UTC()
	collected, warnings, err := a.collect(ctx, scope)
	if err != nil {
		metrics.ComplianceAssessmentsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	controls := a.catalog.Controls(ControlFilter{Baseline: baseline})
	state := make(map[string]*controlState, len(controls))
	for _, c := range controls {
		state[c.ID] = &controlState{}
	}
	inBaseline := func(ids []string) []string {
		var out []string
		for _, id := range ids {
			if _, ok := state[id]; ok {
				out = append(out, id)
			}
		}
		return out
	}

	evidenceFor := make(map[string]string)
	for _, ev := range collected.Evidence {
		if ev.ResourceID != "" {
			evidenceFor[ev.ResourceID] = ev.ID
		}
	}

	var found []pending
	resources := append([]azure.Resource(nil), collected.Resources...)
	sort.Slice(resources, func(i, j int) bool { return resources[i].ID < resources[j].ID })
	for _, r := range resources {
		for _, rule := range a.rules {
			if !rule.Applies(r) {
				continue
			}
			ids := inBaseline(rule.Controls)
			if len(ids) == 0 {
				continue
			}
			for _, id := range ids {
				state[id].checks++
			}
			if detail := rule.Check(r); detail != "" {
				found = append(found, pending{
					Finding: Finding{
						RuleID:      rule.ID,
						Severity:    rule.Severity,
						Title:       rule.Title,
						Description: fmt.Sprintf("%s: %s", r.Name, detail),
						ResourceID:  r.ID,
						Remediation: rule.Remediation,
						Source:      "rule",
						EvidenceID:  evidenceFor[r.ID],
					},
					controls: ids,
				})
			}
		}
	}

	if collected.Inventory {
		target := scope.ARMScope()
		for _, rule := range a.scopeRules {
			ids := inBaseline(rule.Controls)
			if len(ids) == 0 {
				continue
			}
			for _, id := range ids {
				state[id].checks++
			}
			if detail := rule.Check(collected.Resources); detail != "" {
				found = append(found, pending{
					Finding: Finding{
						RuleID:      rule.ID,
						Severity:    rule.Severity,
						Title:       rule.Title,
						Description: detail,
						ResourceID:  target,
						Remediation: rule.Remediation,
						Source:      "rule",
					},
					controls: ids,
				})
			}
		}
	}

	for _, da := range collected.Assessments {
		if da.Status != azure.AssessmentHealthy && da.Status != azure.AssessmentUnhealthy {
			continue
		}
		control := MapDefenderControl(da.DisplayName)
		if _, ok := state[control]; !ok {
			control = defenderFallbackControl
		}
		if _, ok := state[control]; !ok {
			continue
		}
		state[control].checks++
		if da.Status == azure.AssessmentUnhealthy {
			found = append(found, pending{
				Finding: Finding{
					RuleID:      "defender:" + da.Name,
					Severity:    defenderSeverity(da.Severity),
					Title:       da.DisplayName,
					Description: da.Description,
					ResourceID:  da.ResourceID,
					Remediation: da.Remediation,
					Source:      "defender",
				},
				controls: []string{control},
			})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Severity.Rank() != found[j].Severity.Rank() {
			return found[i].Severity.Rank() < found[j].Severity.Rank()
		}
		if found[i].ResourceID != found[j].ResourceID {
			return found[i].ResourceID < found[j].ResourceID
		}
		return found[i].RuleID < found[j].RuleID
	})

	counts := make(map[Severity]int, len(Severities))
	for _, s := range Severities {
		counts[s] = 0
	}
	findings := make([]Finding, 0, len(found))
	for i, p := range found {
		f := p.Finding
		f.ID = fmt.Sprintf("F-%03d", i+1)
		f.ControlIDs = p.controls
		for _, id := range p.controls {
			state[id].findings = append(state[id].findings, f.ID)
		}
		counts[f.Severity]++
		findings = append(findings, f)
	}

	results := make([]ControlResult, 0, len(controls))
	for _, c := range controls {
		st := state[c.ID]
		status := StatusNotAssessed
		switch {
		case len(st.findings) > 0:
			status = StatusFailed
		case st.checks > 0:
			status = StatusPassed
		}
		results = append(results, ControlResult{
			ControlID:  c.ID,
			Family:     c.Family,
			Title:      c.Title,
			Status:     status,
			Checks:     st.checks,
			FindingIDs: st.findings,
		})
	}

	status := AssessmentCompleted
	if len(warnings) > 0 {
		status = AssessmentPartial
	}
	evidence := collected.Evidence
	if a.dropEvidence {
		evidence = nil
	}

	result := &Assessment{
		ID:             uuid.New().String(),
		TenantID:       req.TenantID,
		SubscriptionID: req.SubscriptionID,
		ResourceGroup:  req.ResourceGroup,
		Baseline:       baseline,
		Status:         status,
		ResourceCount:  len(collected.Resources),
		Controls:       results,
		Findings:       findings,
		FindingCounts:  counts,
		Families:       a.familySummaries(results),
		Evidence:       evidence,
		Warnings:       append([]string{}, warnings...),
		RequestedBy:    req.RequestedBy,
		StartedAt:      started,
		CompletedAt:    a.now().UTC(),
	}
	result.Score = Score(result.Counts())

	metrics.ComplianceAssessmentsTotal.WithLabelValues(string(status)).Inc()
	metrics.ComplianceScore.WithLabelValues(req.SubscriptionID, string(baseline)).Set(result.Score)
	a.log.InfoWithDuration(req.TenantID, "", "Compliance assessment completed",
		float64(result.CompletedAt.Sub(started).Milliseconds()), map[string]interface{}{
			"assessment_id":   result.ID,
			"subscription_id": req.SubscriptionID,
			"baseline":        string(baseline),
			"score":           result.Score,
			"findings":        len(findings),
			"warnings":        len(warnings),
		})
	return result, nil
}

// collect runs every collector concurrently. A failing collector becomes a
// warning and the others still contribute.
func (a *Assessor) collect(ctx context.Context, scope azure.Scope) (Collection, []string, error) {
	results := make([]Collection, len(a.collectors))
	errs := make([]error, len(a.collectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range a.collectors {
		i, c := i, c
		g.Go(func() error {
			col, err := c.Collect(gctx, scope)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = col
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Collection{}, nil, err
	}

	var merged Collection
	var warnings []string
	for i, c := range a.collectors {
		if errs[i] != nil {
			warnings = append(warnings, fmt.Sprintf("collector %s failed: %v", c.Name(), errs[i]))
			a.log.Warn("", "", "Evidence collector failed", map[string]interface{}{
				"collector":       c.Name(),
				"subscription_id": scope.SubscriptionID,
				"error":           errs[i].Error(),
			})
			continue
		}
		merged.merge(results[i])
	}
	if !merged.Inventory && len(a.collectors) > 0 {
		warnings = append(warnings, "no resource inventory was collected; scope checks were skipped")
	}
	return merged, warnings, nil
}

func (a *Assessor) familySummaries(results []ControlResult) []FamilySummary {
	byFamily := make(map[string]*FamilySummary)
	var order []string
	for _, r := range results {
		fs, ok := byFamily[r.Family]
		if !ok {
			name := r.Family
			if f, ok := a.catalog.Family(r.Family); ok {
				name = f.Name
			}
			fs = &FamilySummary{Family: r.Family, Name: name}
			byFamily[r.Family] = fs
			order = append(order, r.Family)
		}
		switch r.Status {
		case StatusPassed:
			fs.Passed++
		case StatusFailed:
			fs.Failed++
		default:
			fs.NotAssessed++
		}
	}
	sort.Strings(order)
	out := make([]FamilySummary, 0, len(order))
	for _, f := range order {
		fs := byFamily[f]
		fs.Score = Score(fs.Passed, fs.Failed, fs.NotAssessed)
		out = append(out, *fs)
	}
	return out
}

// Score is passed / (passed + failed) * 100 rounded to two decimals.
// Controls that were not assessed do not count; nothing evaluated scores 0.
func Score(passed, failed, _ int) float64 {
	if passed+failed == 0 {
		return 0
	}
	return math.Round(float64(passed)/float64(passed+failed)*10000) / 100
}
