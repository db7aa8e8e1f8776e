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
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog/nist-800-53-rev5.yaml
var embeddedCatalog []byte

// Family is a NIST 800-53 control family
type Family struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Control is one catalog entry. Baseline is the lowest baseline that
// selects the control; empty means no security baseline selects it.
type Control struct {
	ID          string   `json:"id" yaml:"id"`
	Family      string   `json:"family" yaml:"-"`
	Title       string   `json:"title" yaml:"title"`
	Baseline    Baseline `json:"baseline,omitempty" yaml:"baseline"`
	Description string   `json:"description" yaml:"description"`
	Guidance    string   `json:"guidance" yaml:"guidance"`
	Automated   bool     `json:"automated" yaml:"automated"`
}

// InBaseline reports whether the control is selected by b
func (c Control) InBaseline(b Baseline) bool {
	return b.Includes(c.Baseline)
}

type catalogFile struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Metadata   struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		Source  string `yaml:"source"`
	} `yaml:"metadata"`
	Spec struct {
		Families []Family  `yaml:"families"`
		Controls []Control `yaml:"controls"`
	} `yaml:"spec"`
}

// Catalog is an immutable, indexed control catalog
type Catalog struct {
	Name     string
	Version  string
	families []Family
	controls []Control
	byID     map[string]int
}

// ControlFilter narrows Controls. Zero values match everything.
type ControlFilter struct {
	Family    string
	Baseline  Baseline
	Automated bool
}

// ParseCatalog decodes a ControlCatalog YAML document
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if f.Kind != "ControlCatalog" {
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidCatalog, f.Kind)
	}

	c := &Catalog{
		Name:    f.Metadata.Name,
		Version: f.Metadata.Version,
		byID:    make(map[string]int, len(f.Spec.Controls)),
	}
	known := make(map[string]bool, len(f.Spec.Families))
	for _, fam := range f.Spec.Families {
		fam.ID = strings.ToUpper(fam.ID)
		known[fam.ID] = true
		c.families = append(c.families, fam)
	}
	sort.Slice(c.families, func(i, j int) bool { return c.families[i].ID < c.families[j].ID })

	for _, ctl := range f.Spec.Controls {
		ctl.ID = strings.ToUpper(strings.TrimSpace(ctl.ID))
		fam, _, ok := strings.Cut(ctl.ID, "-")
		if !ok || !known[fam] {
			return nil, fmt.Errorf("%w: control %q has no known family", ErrInvalidCatalog, ctl.ID)
		}
		if ctl.Baseline != "" && !ctl.Baseline.IsValid() {
			return nil, fmt.Errorf("%w: control %s baseline %q", ErrInvalidCatalog, ctl.ID, ctl.Baseline)
		}
		if _, dup := c.byID[ctl.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate control %s", ErrInvalidCatalog, ctl.ID)
		}
		ctl.Family = fam
		c.controls = append(c.controls, ctl)
		c.byID[ctl.ID] = -1
	}
	sort.Slice(c.controls, func(i, j int) bool { return controlLess(c.controls[i].ID, c.controls[j].ID) })
	for i, ctl := range c.controls {
		c.byID[ctl.ID] = i
	}
	return c, nil
}

// controlLess orders AC-2 before AC-17
func controlLess(a, b string) bool {
	fa, na := splitControlID(a)
	fb, nb := splitControlID(b)
	if fa != fb {
		return fa < fb
	}
	return na < nb
}

func splitControlID(id string) (string, int) {
	fam, num, _ := strings.Cut(id, "-")
	n := 0
	for _, r := range num {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return fam, n
}

// DefaultCatalog returns the embedded NIST 800-53 Rev. 5 catalog
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(embeddedCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file, or returns the embedded catalog when
// path is empty
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// Families returns every family sorted by id
func (c *Catalog) Families() []Family {
	return append([]Family(nil), c.families...)
}

// Family returns one family by id
func (c *Catalog) Family(id string) (Family, bool) {
	id = strings.ToUpper(id)
	for _, f := range c.families {
		if f.ID == id {
			return f, true
		}
	}
	return Family{}, false
}

// Control returns one control by id, case-insensitively
func (c *Catalog) Control(id string) (Control, error) {
	i, ok := c.byID[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return Control{}, fmt.Errorf("%w: %s", ErrControlNotFound, id)
	}
	return c.controls[i], nil
}

// Controls returns controls matching filter in catalog order
func (c *Catalog) Controls(filter ControlFilter) []Control {
	fam := strings.ToUpper(filter.Family)
	var out []Control
	for _, ctl := range c.controls {
		if fam != "" && ctl.Family != fam {
			continue
		}
		if filter.Baseline != "" && !ctl.InBaseline(filter.Baseline) {
			continue
		}
		if filter.Automated && !ctl.Automated {
			continue
		}
		out = append(out, ctl)
	}
	return out
}

// Len returns the number of controls
func (c *Catalog) Len() int {
	return len(c.controls)
}
