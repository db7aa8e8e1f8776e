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

package infra

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"copilot/platform/shared/logger"
	"copilot/platform/shared/metrics"
)

// CompositeGenerator expands patterns, orders resources by dependency and
// emits one module per resource plus a root template wiring them together.
type CompositeGenerator struct {
	registry *Registry
	store    *ResultStore
	log      *logger.Logger
	now      func() time.Time
}

// NewCompositeGenerator creates a generator. store may be nil when results
// do not need to be retrievable later.
func NewCompositeGenerator(registry *Registry, store *ResultStore, log *logger.Logger) *CompositeGenerator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if log == nil {
		log = logger.New("infra")
	}
	return &CompositeGenerator{registry: registry, store: store, log: log, now: time.Now}
}

// Registry returns the generator lookup used by this generator
func (g *CompositeGenerator) Registry() *Registry {
	return g.registry
}

// Store returns the result store, which may be nil
func (g *CompositeGenerator) Store() *ResultStore {
	return g.store
}

// Plan resolves patterns, explicit resources and the monitoring convention
// into the final resource list without emitting anything. It returns the
// resources, the shared workspace name (empty when none) and warnings.
func (g *CompositeGenerator) Plan(req GenerationRequest) ([]ResourceSpec, string, []string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, "", nil, err
	}
	return g.plan(&req)
}

func (g *CompositeGenerator) plan(req *GenerationRequest) ([]ResourceSpec, string, []string, error) {
	var warnings []string

	specs, err := ExpandPatterns(req.Name, req.Patterns)
	if err != nil {
		return nil, "", nil, err
	}

	index := make(map[string]int, len(specs))
	for i, s := range specs {
		index[s.Name] = i
	}
	for _, res := range req.Resources {
		if i, ok := index[res.Name]; ok {
			warnings = append(warnings, fmt.Sprintf("resource %s overrides the %s from pattern expansion", res.Name, specs[i].Type))
			specs[i] = res.clone()
			continue
		}
		index[res.Name] = len(specs)
		specs = append(specs, res.clone())
	}

	if req.DisableMonitoring {
		return specs, "", warnings, nil
	}

	workspace := ""
	for _, s := range specs {
		if s.Type != TypeLogAnalytics {
			continue
		}
		if workspace == "" {
			workspace = s.Name
			continue
		}
		warnings = append(warnings, fmt.Sprintf("multiple log_analytics workspaces; %s is shared for diagnostics and %s is not wired", workspace, s.Name))
	}

	needsWorkspace := func(s ResourceSpec) bool {
		gen, ok := g.registry.Lookup(s.Type)
		return ok && gen.UsesWorkspace()
	}

	if workspace == "" {
		needed := false
		for _, s := range specs {
			if needsWorkspace(s) {
				needed = true
				break
			}
		}
		if !needed {
			return specs, "", warnings, nil
		}
		workspace = req.Name + "-log"
		if _, taken := index[workspace]; taken {
			return nil, "", nil, fmt.Errorf("%w: resource %s is not a log_analytics workspace but uses the reserved name", ErrInvalidRequest, workspace)
		}
		specs = append([]ResourceSpec{{Name: workspace, Type: TypeLogAnalytics}}, specs...)
	}

	for i, s := range specs {
		if s.Name == workspace || !needsWorkspace(s) {
			continue
		}
		if !contains(s.DependsOn, workspace) {
			specs[i].DependsOn = append(specs[i].DependsOn, workspace)
		}
	}
	return specs, workspace, warnings, nil
}

// Generate runs a full composite generation and stores the result
func (g *CompositeGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	start := g.now()
	req.Normalize()
	if err := req.Validate(); err != nil {
		metrics.InfraGenerationsTotal.WithLabelValues(string(req.Format), "invalid").Inc()
		return nil, err
	}

	result, err := g.generate(ctx, &req)
	if err != nil {
		metrics.InfraGenerationsTotal.WithLabelValues(string(req.Format), "error").Inc()
		g.log.Warn(req.TenantID, "", "Infrastructure generation failed", map[string]interface{}{
			"name":  req.Name,
			"error": err.Error(),
		})
		return nil, err
	}

	if g.store != nil {
		g.store.Put(result)
	}
	metrics.InfraGenerationsTotal.WithLabelValues(string(req.Format), "success").Inc()
	g.log.InfoWithDuration(req.TenantID, "", "Infrastructure generated", float64(g.now().Sub(start).Milliseconds()), map[string]interface{}{
		"generation_id": result.ID,
		"format":        string(result.Format),
		"modules":       len(result.Modules),
		"warnings":      len(result.Warnings),
	})
	return result, nil
}

func (g *CompositeGenerator) generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	specs, workspace, warnings, err := g.plan(req)
	if err != nil {
		return nil, err
	}

	ordered, sortWarnings, err := SortResources(specs)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, sortWarnings...)

	gctx := newGenerationContext(req, ordered, workspace)
	var planned []plannedModule
	var order []string

	for _, spec := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		order = append(order, spec.Name)

		gen, ok := g.registry.Lookup(spec.Type)
		if !ok {
			gctx.Warnf("no generator registered for resource type %q; skipping %s", spec.Type, spec.Name)
			continue
		}
		if err := gctx.bind(spec, gen); err != nil {
			return nil, err
		}

		var content, modPath string
		switch req.Format {
		case FormatTerraform:
			content, err = gen.Terraform(spec, gctx)
			modPath = path.Join(terraformModuleDir(spec.Name), "main.tf")
		default:
			content, err = gen.Bicep(spec, gctx)
			modPath = bicepModulePath(spec.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("generate %s (%s): %w", spec.Name, spec.Type, err)
		}

		gctx.generated[spec.Name] = gen
		deps := gctx.generatedDeps(spec)
		var explicit []string
		for _, d := range spec.DependsOn {
			if gctx.Generated(d) && d != spec.Name && !contains(explicit, d) {
				explicit = append(explicit, d)
			}
		}

		planned = append(planned, plannedModule{
			spec: spec,
			gen:  gen,
			module: Module{
				Name:         spec.Name,
				ResourceType: spec.Type,
				Path:         modPath,
				Content:      content,
				Outputs:      gen.Outputs(),
				DependsOn:    deps,
			},
			explicit: explicit,
		})
		metrics.InfraModulesGenerated.WithLabelValues(string(spec.Type)).Inc()
	}

	files := make(map[string]string, len(planned)+3)
	modules := make([]Module, 0, len(planned))
	for _, p := range planned {
		files[p.module.Path] = p.module.Content
		modules = append(modules, p.module)
	}
	switch req.Format {
	case FormatTerraform:
		mainTF, variablesTF, outputsTF := terraformRoot(gctx, planned)
		files["main.tf"] = mainTF
		files["variables.tf"] = variablesTF
		files["outputs.tf"] = outputsTF
	default:
		files["main.bicep"] = bicepMain(gctx, planned)
	}

	now := g.now().UTC()
	return &GenerationResult{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Format:      req.Format,
		Environment: req.Environment,
		TenantID:    req.TenantID,
		Order:       order,
		Modules:     modules,
		Files:       files,
		Resources:   ordered,
		Warnings:    append(append([]string{}, warnings...), gctx.Warnings()...),
		GeneratedAt: now,
	}, nil
}
