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

// dependencies returns the names a spec depends on: parent, every
// reference target (ordered by role) and explicit DependsOn entries.
// Explicit entries that name no resource are returned as unknown.
// Self edges and duplicates are removed.
func dependencies(spec ResourceSpec, index map[string]int) (deps []string, unknown []string, err error) {
	seen := map[string]bool{spec.Name: true}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}

	if spec.Parent != "" {
		if _, ok := index[spec.Parent]; !ok {
			return nil, nil, fmt.Errorf("%w: %s has parent %q which is not defined", ErrMissingDependency, spec.Name, spec.Parent)
		}
		add(spec.Parent)
	}

	roles := make([]string, 0, len(spec.References))
	for role := range spec.References {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		target := spec.References[role]
		if target == "" {
			continue
		}
		if _, ok := index[target]; !ok {
			return nil, nil, fmt.Errorf("%w: %s references %s %q which is not defined", ErrMissingDependency, spec.Name, role, target)
		}
		add(target)
	}

	for _, d := range spec.DependsOn {
		if d == "" {
			continue
		}
		if _, ok := index[d]; !ok {
			unknown = append(unknown, d)
			continue
		}
		add(d)
	}
	return deps, unknown, nil
}

// SortResources orders specs so every resource follows its dependencies,
// using Kahn's algorithm. Among resources that are ready at the same time
// the one declared first goes first, so the order is deterministic.
// Unknown DependsOn names are dropped and reported as warnings.
func SortResources(specs []ResourceSpec) ([]ResourceSpec, []string, error) {
	index := make(map[string]int, len(specs))
	for i, s := range specs {
		if _, dup := index[s.Name]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate resource name %q", ErrInvalidRequest, s.Name)
		}
		index[s.Name] = i
	}

	var warnings []string
	indegree := make([]int, len(specs))
	dependents := make([][]int, len(specs))

	for i, s := range specs {
		deps, unknown, err := dependencies(s, index)
		if err != nil {
			return nil, nil, err
		}
		for _, u := range unknown {
			warnings = append(warnings, fmt.Sprintf("%s depends on %q which is not defined; ignoring", s.Name, u))
		}
		for _, d := range deps {
			j := index[d]
			dependents[j] = append(dependents[j], i)
			indegree[i]++
		}
	}

	var ready []int
	for i, n := range indegree {
		if n == 0 {
			ready = append(ready, i)
		}
	}

	sorted := make([]ResourceSpec, 0, len(specs))
	for len(ready) > 0 {
		// ready stays sorted by declaration index
		next := ready[0]
		ready = ready[1:]
		sorted = append(sorted, specs[next])

		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				pos := sort.SearchInts(ready, dep)
				ready = append(ready, 0)
				copy(ready[pos+1:], ready[pos:])
				ready[pos] = dep
			}
		}
	}

	if len(sorted) != len(specs) {
		var cyclic []string
		for i, n := range indegree {
			if n > 0 {
				cyclic = append(cyclic, specs[i].Name)
			}
		}
		sort.Strings(cyclic)
		return nil, nil, &CycleError{Nodes: cyclic}
	}
	return sorted, warnings, nil
}
