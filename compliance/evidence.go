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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"copilot/platform/azure"
)

// Evidence is a hashed snapshot of data a collector observed
type Evidence struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	Kind        string          `json:"kind"`
	ResourceID  string          `json:"resource_id,omitempty"`
	CollectedAt time.Time       `json:"collected_at"`
	SHA256      string          `json:"sha256"`
	Content     json.RawMessage `json:"content"`
}

// NewEvidence hashes the canonical JSON encoding of content.
// encoding/json sorts map keys, so equal content always hashes equally.
func NewEvidence(source, kind, resourceID string, content interface{}, at time.Time) (Evidence, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return Evidence{}, fmt.Errorf("encode evidence %s/%s: %w", source, kind, err)
	}
	sum := sha256.Sum256(raw)
	return Evidence{
		ID:          uuid.New().String(),
		Source:      source,
		Kind:        kind,
		ResourceID:  resourceID,
		CollectedAt: at.UTC(),
		SHA256:      hex.EncodeToString(sum[:]),
		Content:     raw,
	}, nil
}

// Verify recomputes the digest of the stored content
func (e Evidence) Verify() bool {
	sum := sha256.Sum256(e.Content)
	return hex.EncodeToString(sum[:]) == e.SHA256
}

// Collection is what one collector gathered. Inventory marks Resources
// as the complete inventory of the scope, which scope rules require.
type Collection struct {
	Inventory   bool
	Resources   []azure.Resource
	Assessments []azure.SecurityAssessment
	Evidence    []Evidence
}

func (c *Collection) merge(o Collection) {
	c.Inventory = c.Inventory || o.Inventory
	c.Resources = append(c.Resources, o.Resources...)
	c.Assessments = append(c.Assessments, o.Assessments...)
	c.Evidence = append(c.Evidence, o.Evidence...)
}

// Collector gathers evidence for a scope
type Collector interface {
	Name() string
	Collect(ctx context.Context, scope azure.Scope) (Collection, error)
}

// ResourceSource lists resources in a scope
type ResourceSource interface {
	QueryResources(ctx context.Context, scope azure.Scope) ([]azure.Resource, error)
}

// DefenderSource lists Defender for Cloud assessments of a subscription
type DefenderSource interface {
	ListSecurityAssessments(ctx context.Context, subscriptionID string) ([]azure.SecurityAssessment, error)
}

// InventoryCollector records the Resource Graph inventory of a scope
type InventoryCollector struct {
	Source ResourceSource
	now    func() time.Time
}

// NewInventoryCollector creates an inventory collector
func NewInventoryCollector(src ResourceSource) *InventoryCollector {
	return &InventoryCollector{Source: src, now: time.Now}
}

func (c *InventoryCollector) Name() string { return "resource-inventory" }

func (c *InventoryCollector) Collect(ctx context.Context, scope azure.Scope) (Collection, error) {
	resources, err := c.Source.QueryResources(ctx, scope)
	if err != nil {
		return Collection{}, err
	}
	at := c.now()
	out := Collection{Inventory: true, Resources: resources}
	for _, r := range resources {
		ev, err := NewEvidence(c.Name(), "resource-configuration", r.ID, r, at)
		if err != nil {
			return Collection{}, err
		}
		out.Evidence = append(out.Evidence, ev)
	}
	return out, nil
}

// DefenderCollector records Defender for Cloud assessments
type DefenderCollector struct {
	Source DefenderSource
	now    func() time.Time
}

// NewDefenderCollector creates a Defender collector
func NewDefenderCollector(src DefenderSource) *DefenderCollector {
	return &DefenderCollector{Source: src, now: time.Now}
}

func (c *DefenderCollector) Name() string { return "defender-for-cloud" }

func (c *DefenderCollector) Collect(ctx context.Context, scope azure.Scope) (Collection, error) {
	assessments, err := c.Source.ListSecurityAssessments(ctx, scope.SubscriptionID)
	if err != nil {
		return Collection{}, err
	}
	if scope.ResourceGroup != "" {
		assessments = filterByResourceGroup(assessments, scope.ResourceGroup)
	}
	ev, err := NewEvidence(c.Name(), "security-assessments", "", assessments, c.now())
	if err != nil {
		return Collection{}, err
	}
	return Collection{Assessments: assessments, Evidence: []Evidence{ev}}, nil
}

func filterByResourceGroup(in []azure.SecurityAssessment, rg string) []azure.SecurityAssessment {
	marker := "/resourcegroups/" + strings.ToLower(rg) + "/"
	var out []azure.SecurityAssessment
	for _, a := range in {
		if strings.Contains(strings.ToLower(a.ResourceID), marker) {
			out = append(out, a)
		}
	}
	return out
}
