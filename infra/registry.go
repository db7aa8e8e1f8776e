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
	"sort"
	"sync"
)

// Input wires an output of a related resource into a module parameter
type Input struct {
	// Role is "parent" or the References key naming the related resource
	Role string `json:"role"`
	// Param is the Bicep module parameter
	Param string `json:"param"`
	// Variable is the Terraform module variable
	Variable string `json:"variable"`
	// Output names the related module output feeding Param
	Output string `json:"output"`
	// TerraformOutput overrides Output for Variable when they differ
	TerraformOutput string `json:"terraform_output,omitempty"`
	// Required inputs must be declared on the spec
	Required bool `json:"required,omitempty"`
}

func (in Input) outputFor(f Format) string {
	if f == FormatTerraform {
		if in.TerraformOutput != "" {
			return in.TerraformOutput
		}
		return snake(in.Output)
	}
	return in.Output
}

// ModuleGenerator emits one resource type as a Bicep or Terraform module
type ModuleGenerator interface {
	Type() ResourceType
	// DiagnosticsSupported reports whether the module sends diagnostics to
	// the shared Log Analytics workspace
	DiagnosticsSupported() bool
	// UsesWorkspace reports whether the module takes the workspace id
	UsesWorkspace() bool
	Inputs() []Input
	// Outputs lists output names in Bicep form; Terraform uses snake_case
	Outputs() []string
	Bicep(spec ResourceSpec, ctx *GenerationContext) (string, error)
	Terraform(spec ResourceSpec, ctx *GenerationContext) (string, error)
}

// Registry maps resource types to their generators
type Registry struct {
	mu         sync.RWMutex
	generators map[ResourceType]ModuleGenerator
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{generators: make(map[ResourceType]ModuleGenerator)}
}

// DefaultRegistry returns a registry with every built-in generator
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, def := range builtinDefinitions() {
		r.Register(def)
	}
	return r
}

// Register adds or replaces the generator for its type
func (r *Registry) Register(g ModuleGenerator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[g.Type()] = g
}

// Unregister removes the generator for t
func (r *Registry) Unregister(t ResourceType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.generators, t)
}

// Lookup returns the generator for t
func (r *Registry) Lookup(t ResourceType) (ModuleGenerator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[t]
	return g, ok
}

// Types returns the registered resource types sorted by name
func (r *Registry) Types() []ResourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResourceType, 0, len(r.generators))
	for t := range r.generators {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TypeInfo describes a registered generator for API listings
type TypeInfo struct {
	Type        ResourceType `json:"type"`
	Diagnostics bool         `json:"diagnostics"`
	Inputs      []Input      `json:"inputs"`
	Outputs     []string     `json:"outputs"`
}

// Describe returns TypeInfo for every registered generator
func (r *Registry) Describe() []TypeInfo {
	var out []TypeInfo
	for _, t := range r.Types() {
		g, _ := r.Lookup(t)
		out = append(out, TypeInfo{
			Type:        t,
			Diagnostics: g.DiagnosticsSupported(),
			Inputs:      g.Inputs(),
			Outputs:     g.Outputs(),
		})
	}
	return out
}

// ModuleStandard says which of the standard inputs a module declares
type ModuleStandard struct {
	ResourceGroup bool
	Location      bool
	Tags          bool
}

// StandardInputs is implemented by generators whose modules omit some of
// the standard inputs. Generators that do not implement it take all of them.
type StandardInputs interface {
	Standard(f Format) ModuleStandard
}

func standardFor(g ModuleGenerator, f Format) ModuleStandard {
	if s, ok := g.(StandardInputs); ok {
		return s.Standard(f)
	}
	return ModuleStandard{ResourceGroup: f == FormatTerraform, Location: true, Tags: true}
}
