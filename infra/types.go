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
	"strings"
	"time"
)

// Format is the infrastructure-as-code language emitted
type Format string

const (
	FormatBicep     Format = "bicep"
	FormatTerraform Format = "terraform"
)

// IsValid returns true if the Format is a known value
func (f Format) IsValid() bool {
	return f == FormatBicep || f == FormatTerraform
}

// ResourceType identifies an Azure resource kind the generator understands
type ResourceType string

const (
	TypeLogAnalytics      ResourceType = "log_analytics"
	TypeVirtualNetwork    ResourceType = "vnet"
	TypeSubnet            ResourceType = "subnet"
	TypeNSG               ResourceType = "nsg"
	TypeStorageAccount    ResourceType = "storage_account"
	TypeKeyVault          ResourceType = "key_vault"
	TypeAppServicePlan    ResourceType = "app_service_plan"
	TypeWebApp            ResourceType = "web_app"
	TypeFunctionApp       ResourceType = "function_app"
	TypeSQLServer         ResourceType = "sql_server"
	TypeSQLDatabase       ResourceType = "sql_database"
	TypeAKS               ResourceType = "aks"
	TypeContainerRegistry ResourceType = "container_registry"
	TypeCosmosDB          ResourceType = "cosmos_db"
	TypeRedisCache        ResourceType = "redis_cache"
	TypeAppInsights       ResourceType = "app_insights"
)

// Environments accepted in a request
var Environments = []string{"dev", "test", "staging", "prod"}

// ResourceSpec describes one resource to generate
type ResourceSpec struct {
	Name       string            `json:"name" yaml:"name"`
	Type       ResourceType      `json:"type" yaml:"type"`
	Parent     string            `json:"parent,omitempty" yaml:"parent,omitempty"`
	DependsOn  []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	References map[string]string `json:"references,omitempty" yaml:"references,omitempty"`
	Location   string            `json:"location,omitempty" yaml:"location,omitempty"`
	SKU        string            `json:"sku,omitempty" yaml:"sku,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
	Tags       map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Property returns a property value or def when unset
func (s ResourceSpec) Property(key, def string) string {
	if v, ok := s.Properties[key]; ok && v != "" {
		return v
	}
	return def
}

// SKUOr returns the SKU or def when unset
func (s ResourceSpec) SKUOr(def string) string {
	if s.SKU != "" {
		return s.SKU
	}
	return def
}

func (s ResourceSpec) clone() ResourceSpec {
	c := s
	c.DependsOn = append([]string(nil), s.DependsOn...)
	c.References = copyMap(s.References)
	c.Properties = copyMap(s.Properties)
	c.Tags = copyMap(s.Tags)
	return c
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// GenerationRequest asks for a set of modules in one format
type GenerationRequest struct {
	Name              string            `json:"name" yaml:"name"`
	Format            Format            `json:"format" yaml:"format"`
	Location          string            `json:"location" yaml:"location"`
	Environment       string            `json:"environment" yaml:"environment"`
	Patterns          []string          `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Resources         []ResourceSpec    `json:"resources,omitempty" yaml:"resources,omitempty"`
	Tags              map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	DisableMonitoring bool              `json:"disable_monitoring,omitempty" yaml:"disable_monitoring,omitempty"`
	TenantID          string            `json:"-" yaml:"-"`
}

// Normalize fills defaults for optional fields
func (r *GenerationRequest) Normalize() {
	r.Name = strings.ToLower(strings.TrimSpace(r.Name))
	if r.Format == "" {
		r.Format = FormatBicep
	}
	if r.Location == "" {
		r.Location = "eastus"
	}
	if r.Environment == "" {
		r.Environment = "dev"
	}
}

// Validate checks the request is well formed
func (r *GenerationRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if !validName.MatchString(r.Name) {
		return fmt.Errorf("%w: name %q must be lowercase letters, digits and hyphens", ErrInvalidRequest, r.Name)
	}
	if !r.Format.IsValid() {
		return fmt.Errorf("%w: format must be bicep or terraform, got %q", ErrInvalidRequest, r.Format)
	}
	if !contains(Environments, r.Environment) {
		return fmt.Errorf("%w: environment must be one of %s, got %q", ErrInvalidRequest, strings.Join(Environments, ", "), r.Environment)
	}
	if len(r.Patterns) == 0 && len(r.Resources) == 0 {
		return fmt.Errorf("%w: at least one pattern or resource is required", ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(r.Resources))
	for i, res := range r.Resources {
		if res.Name == "" {
			return fmt.Errorf("%w: resources[%d].name is required", ErrInvalidRequest, i)
		}
		if res.Type == "" {
			return fmt.Errorf("%w: resources[%d].type is required", ErrInvalidRequest, i)
		}
		if seen[res.Name] {
			return fmt.Errorf("%w: duplicate resource name %q", ErrInvalidRequest, res.Name)
		}
		seen[res.Name] = true
	}
	return nil
}

// IsProduction reports whether hardened production defaults apply
func (r *GenerationRequest) IsProduction() bool {
	return r.Environment == "prod"
}

// Module is one generated resource module
type Module struct {
	Name         string       `json:"name"`
	ResourceType ResourceType `json:"resource_type"`
	Path         string       `json:"path"`
	Content      string       `json:"content"`
	Outputs      []string     `json:"outputs"`
	DependsOn    []string     `json:"depends_on,omitempty"`
}

// GenerationResult is the output of one composite generation
type GenerationResult struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Format      Format            `json:"format"`
	Environment string            `json:"environment"`
	TenantID    string            `json:"tenant_id,omitempty"`
	Order       []string          `json:"order"`
	Modules     []Module          `json:"modules"`
	Files       map[string]string `json:"files"`
	Resources   []ResourceSpec    `json:"resources"`
	Warnings    []string          `json:"warnings"`
	GeneratedAt time.Time         `json:"generated_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// Summary is the listing form of a GenerationResult
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Format      Format    `json:"format"`
	Modules     int       `json:"modules"`
	Warnings    int       `json:"warnings"`
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Summary returns the listing form of the result
func (r *GenerationResult) Summary() Summary {
	return Summary{
		ID:          r.ID,
		Name:        r.Name,
		Format:      r.Format,
		Modules:     len(r.Modules),
		Warnings:    len(r.Warnings),
		GeneratedAt: r.GeneratedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
