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
	"fmt"
	"sort"
)

// Binding is an Input resolved against a concrete resource. When the
// related resource was not generated but the input only needs its name,
// Literal carries that name instead.
type Binding struct {
	Input
	Target  string
	Literal string
}

// GenerationContext carries request-wide state through one generation
type GenerationContext struct {
	Request *GenerationRequest
	// Workspace is the shared Log Analytics resource, empty when monitoring is off
	Workspace string

	specs          map[string]ResourceSpec
	generated      map[string]ModuleGenerator
	bindings       map[string][]Binding
	workspaceBound map[string]bool
	subnetOrdinal  map[string]int
	warnings       []string
}

func newGenerationContext(req *GenerationRequest, specs []ResourceSpec, workspace string) *GenerationContext {
	ctx := &GenerationContext{
		Request:        req,
		Workspace:      workspace,
		specs:          make(map[string]ResourceSpec, len(specs)),
		generated:      make(map[string]ModuleGenerator),
		bindings:       make(map[string][]Binding),
		workspaceBound: make(map[string]bool),
		subnetOrdinal:  make(map[string]int),
	}
	perParent := make(map[string]int)
	for _, s := range specs {
		ctx.specs[s.Name] = s
		if s.Type == TypeSubnet {
			perParent[s.Parent]++
			ctx.subnetOrdinal[s.Name] = perParent[s.Parent]
		}
	}
	return ctx
}

// Warnf records a generation warning
func (c *GenerationContext) Warnf(format string, args ...interface{}) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// Warnings returns the warnings recorded so far
func (c *GenerationContext) Warnings() []string {
	return append([]string(nil), c.warnings...)
}

// Production reports whether hardened production defaults apply
func (c *GenerationContext) Production() bool {
	return c.Request.IsProduction()
}

// Spec returns a resource of the request by name
func (c *GenerationContext) Spec(name string) (ResourceSpec, bool) {
	s, ok := c.specs[name]
	return s, ok
}

// Generated reports whether a module was produced for name
func (c *GenerationContext) Generated(name string) bool {
	_, ok := c.generated[name]
	return ok
}

// Bindings returns the resolved inputs of a resource
func (c *GenerationContext) Bindings(name string) []Binding {
	return c.bindings[name]
}

// Bound returns the binding for role on resource name
func (c *GenerationContext) Bound(name, role string) (Binding, bool) {
	for _, b := range c.bindings[name] {
		if b.Role == role {
			return b, true
		}
	}
	return Binding{}, false
}

// WorkspaceBound reports whether name receives the workspace id
func (c *GenerationContext) WorkspaceBound(name string) bool {
	return c.workspaceBound[name]
}

// SubnetOrdinal is the 1-based position of a subnet among the subnets of
// its virtual network, used to derive default address prefixes.
func (c *GenerationContext) SubnetOrdinal(name string) int {
	if n, ok := c.subnetOrdinal[name]; ok {
		return n
	}
	return 1
}

// bind resolves the inputs of spec against resources generated so far.
// It must run after every dependency of spec has been visited.
func (c *GenerationContext) bind(spec ResourceSpec, gen ModuleGenerator) error {
	format := c.Request.Format
	used := map[string]bool{}

	for _, in := range gen.Inputs() {
		used[in.Role] = true

		target := spec.References[in.Role]
		if in.Role == "parent" {
			target = spec.Parent
		}
		if target == "" {
			if in.Required {
				return fmt.Errorf("%w: %s (%s) requires %s", ErrMissingDependency, spec.Name, spec.Type, in.Role)
			}
			continue
		}

		output := in.outputFor(format)
		targetGen, ok := c.generated[target]
		if !ok {
			if output == "name" {
				c.Warnf("%s: %s %s was not generated; passing its name directly", spec.Name, in.Role, target)
				c.bindings[spec.Name] = append(c.bindings[spec.Name], Binding{Input: in, Target: target, Literal: AzureName(c.specs[target].Type, target)})
				continue
			}
			c.Warnf("%s: %s %s was not generated; %s output is unavailable and %s is left unset", spec.Name, in.Role, target, output, paramFor(in, format))
			continue
		}
		if !hasOutput(targetGen, output, format) {
			c.Warnf("%s: %s %s has no %s output; %s is left unset", spec.Name, in.Role, target, output, paramFor(in, format))
			continue
		}
		c.bindings[spec.Name] = append(c.bindings[spec.Name], Binding{Input: in, Target: target})
	}

	roles := sortedKeys(spec.References)
	for _, role := range roles {
		if !used[role] {
			c.Warnf("%s: reference %q is not used by %s; kept as an ordering dependency", spec.Name, role, spec.Type)
		}
	}

	if gen.UsesWorkspace() && c.Workspace != "" && spec.Name != c.Workspace {
		if c.Generated(c.Workspace) {
			c.workspaceBound[spec.Name] = true
		} else {
			c.Warnf("%s: workspace %s was not generated; diagnostics are not configured", spec.Name, c.Workspace)
		}
	}
	return nil
}

func paramFor(in Input, f Format) string {
	if f == FormatTerraform {
		return in.Variable
	}
	return in.Param
}

func hasOutput(g ModuleGenerator, output string, f Format) bool {
	for _, o := range g.Outputs() {
		name := o
		if f == FormatTerraform {
			name = snake(o)
		}
		if name == output {
			return true
		}
	}
	return false
}

// generatedDeps lists the direct dependencies of spec that produced modules
func (c *GenerationContext) generatedDeps(spec ResourceSpec) []string {
	index := make(map[string]int, len(c.specs))
	i := 0
	for name := range c.specs {
		index[name] = i
		i++
	}
	deps, _, _ := dependencies(spec, index)
	out := deps[:0]
	for _, d := range deps {
		if c.Generated(d) {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}
