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
	"fmt"
	"regexp"
	"sort"
	"strings"

	"copilot/platform/cost"
	"copilot/platform/infra"
)

// InfraGenerator plans and generates infrastructure
type InfraGenerator interface {
	Plan(req infra.GenerationRequest) ([]infra.ResourceSpec, string, []string, error)
	Generate(ctx context.Context, req infra.GenerationRequest) (*infra.GenerationResult, error)
}

// Estimator prices planned resources
type Estimator interface {
	EstimateResources(specs []infra.ResourceSpec, production bool) *cost.Estimate
}

var planWord = regexp.MustCompile(`(?i)\b(plan|preview|estimate|dry[- ]run)\b`)

// InfrastructureAgent turns pattern names in a query into a generation
type InfrastructureAgent struct {
	generator InfraGenerator
	estimator Estimator
}

// NewInfrastructureAgent creates the agent. estimator may be nil.
func NewInfrastructureAgent(g InfraGenerator, e Estimator) *InfrastructureAgent {
	return &InfrastructureAgent{generator: g, estimator: e}
}

func (a *InfrastructureAgent) Name() string { return "infrastructure" }

func (a *InfrastructureAgent) Description() string {
	return "Generates Bicep or Terraform for Azure reference architectures"
}

// patternsIn returns the patterns named in params or query, in catalog order
func patternsIn(task Task) []string {
	if p := task.Param("patterns", ""); p != "" {
		var out []string
		for _, name := range strings.Split(p, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
		return out
	}
	q := strings.ToLower(task.Query)
	var out []string
	for _, p := range infra.Patterns() {
		if strings.Contains(q, p.Name) || strings.Contains(q, strings.ReplaceAll(p.Name, "-", " ")) {
			out = append(out, p.Name)
		}
	}
	return out
}

func (a *InfrastructureAgent) request(task Task, patterns []string) infra.GenerationRequest {
	format := infra.FormatBicep
	if terraformWord.MatchString(task.Query) {
		format = infra.FormatTerraform
	}
	if f := task.Param("format", ""); f != "" {
		format = infra.Format(strings.ToLower(f))
	}
	return infra.GenerationRequest{
		Name:        task.Param("name", "app"),
		Format:      format,
		Location:    task.Param("location", ""),
		Environment: task.Param("environment", environmentFrom(task.Query)),
		Patterns:    patterns,
		TenantID:    task.TenantID,
	}
}

func (a *InfrastructureAgent) Handle(ctx context.Context, task Task) (*Output, error) {
	patterns := patternsIn(task)
	if len(patterns) == 0 {
		all := infra.Patterns()
		names := make([]string, 0, len(all))
		for _, p := range all {
			names = append(names, p.Name)
		}
		return &Output{
			Summary: "No architecture pattern named. Available patterns: " + strings.Join(names, ", "),
			Data:    map[string]interface{}{"patterns": names},
		}, nil
	}

	req := a.request(task, patterns)
	if planWord.MatchString(task.Query) {
		specs, workspace, warnings, err := a.generator.Plan(req)
		if err != nil {
			return nil, err
		}
		data := map[string]interface{}{
			"resources": specs,
			"workspace": workspace,
			"warnings":  warnings,
		}
		summary := fmt.Sprintf("Planned %d resources for %s", len(specs), strings.Join(patterns, ", "))
		if a.estimator != nil {
			est := a.estimator.EstimateResources(specs, req.Environment == "prod")
			est.Environment = req.Environment
			data["estimate"] = est
			summary += fmt.Sprintf(", estimated at $%.2f/month", est.TotalMonthlyUSD)
		}
		return &Output{Summary: summary, Data: data}, nil
	}

	result, err := a.generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(result.Files))
	for name := range result.Files {
		files = append(files, name)
	}
	sort.Strings(files)
	return &Output{
		Summary: fmt.Sprintf("Generated %d %s modules for %s (generation %s)",
			len(result.Modules), result.Format, strings.Join(patterns, ", "), result.ID),
		Data: map[string]interface{}{
			"generation_id": result.ID,
			"format":        result.Format,
			"order":         result.Order,
			"files":         files,
			"warnings":      result.Warnings,
			"expires_at":    result.ExpiresAt,
		},
	}, nil
}
