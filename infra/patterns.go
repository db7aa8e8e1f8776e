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

// Pattern is a named reference architecture. Resource names, parents,
// references and dependencies are suffixes joined to the request prefix.
type Pattern struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Resources   []ResourceSpec `json:"resources"`
}

var patterns = map[string]Pattern{
	"three-tier-web": {
		Name:        "three-tier-web",
		Description: "App Service web tier with VNet integration, Azure SQL data tier, Key Vault and Application Insights",
		Resources: []ResourceSpec{
			{Name: "vnet", Type: TypeVirtualNetwork},
			{Name: "web-nsg", Type: TypeNSG},
			{Name: "web-snet", Type: TypeSubnet, Parent: "vnet", References: map[string]string{"network_security_group": "web-nsg"}, Properties: map[string]string{"delegation": "Microsoft.Web/serverFarms"}},
			{Name: "data-snet", Type: TypeSubnet, Parent: "vnet"},
			{Name: "plan", Type: TypeAppServicePlan},
			{Name: "appi", Type: TypeAppInsights},
			{Name: "web", Type: TypeWebApp, Parent: "plan", References: map[string]string{"subnet": "web-snet", "app_insights": "appi"}},
			{Name: "sql", Type: TypeSQLServer},
			{Name: "db", Type: TypeSQLDatabase, Parent: "sql"},
			{Name: "kv", Type: TypeKeyVault},
			{Name: "st", Type: TypeStorageAccount},
		},
	},
	"aks-microservices": {
		Name:        "aks-microservices",
		Description: "Private AKS cluster on a dedicated subnet with Container Registry, Key Vault and Redis",
		Resources: []ResourceSpec{
			{Name: "vnet", Type: TypeVirtualNetwork},
			{Name: "aks-nsg", Type: TypeNSG},
			{Name: "aks-snet", Type: TypeSubnet, Parent: "vnet", References: map[string]string{"network_security_group": "aks-nsg"}, Properties: map[string]string{"address_prefix": "10.0.16.0/20"}},
			{Name: "acr", Type: TypeContainerRegistry},
			{Name: "aks", Type: TypeAKS, References: map[string]string{"subnet": "aks-snet"}, DependsOn: []string{"acr"}},
			{Name: "kv", Type: TypeKeyVault},
			{Name: "redis", Type: TypeRedisCache},
		},
	},
	"serverless-api": {
		Name:        "serverless-api",
		Description: "Function App on a consumption plan with Cosmos DB, Key Vault and Application Insights",
		Resources: []ResourceSpec{
			{Name: "st", Type: TypeStorageAccount},
			{Name: "func-plan", Type: TypeAppServicePlan, SKU: "Y1"},
			{Name: "appi", Type: TypeAppInsights},
			{Name: "func", Type: TypeFunctionApp, Parent: "func-plan", References: map[string]string{"storage_account": "st", "app_insights": "appi"}},
			{Name: "cosmos", Type: TypeCosmosDB},
			{Name: "kv", Type: TypeKeyVault},
		},
	},
	"data-platform": {
		Name:        "data-platform",
		Description: "Data lake storage, Cosmos DB and Azure SQL behind a private data subnet",
		Resources: []ResourceSpec{
			{Name: "vnet", Type: TypeVirtualNetwork},
			{Name: "data-snet", Type: TypeSubnet, Parent: "vnet"},
			{Name: "lake", Type: TypeStorageAccount, Properties: map[string]string{"is_hns_enabled": "true"}},
			{Name: "cosmos", Type: TypeCosmosDB},
			{Name: "sql", Type: TypeSQLServer},
			{Name: "db", Type: TypeSQLDatabase, Parent: "sql"},
			{Name: "kv", Type: TypeKeyVault},
		},
	},
	"hub-spoke-network": {
		Name:        "hub-spoke-network",
		Description: "Hub and spoke virtual networks with network security groups on every subnet",
		Resources: []ResourceSpec{
			{Name: "hub-vnet", Type: TypeVirtualNetwork, Properties: map[string]string{"address_space": "10.0.0.0/16"}},
			{Name: "hub-nsg", Type: TypeNSG},
			{Name: "hub-snet", Type: TypeSubnet, Parent: "hub-vnet", References: map[string]string{"network_security_group": "hub-nsg"}},
			{Name: "spoke-vnet", Type: TypeVirtualNetwork, Properties: map[string]string{"address_space": "10.1.0.0/16"}},
			{Name: "spoke-nsg", Type: TypeNSG},
			{Name: "spoke-snet", Type: TypeSubnet, Parent: "spoke-vnet", References: map[string]string{"network_security_group": "spoke-nsg"}, Properties: map[string]string{"address_prefix": "10.1.1.0/24"}},
		},
	},
}

// Patterns returns every defined pattern sorted by name
func Patterns() []Pattern {
	out := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupPattern returns a pattern by name
func LookupPattern(name string) (Pattern, bool) {
	p, ok := patterns[name]
	return p, ok
}

// ExpandPatterns turns pattern names into resource specs named
// <prefix>-<suffix>. A resource produced by more than one pattern is
// emitted once, from the first pattern that declares it.
func ExpandPatterns(prefix string, names []string) ([]ResourceSpec, error) {
	var specs []ResourceSpec
	seen := make(map[string]bool)

	for _, name := range names {
		p, ok := patterns[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPattern, name)
		}
		for _, res := range p.Resources {
			spec := prefixSpec(prefix, res)
			if seen[spec.Name] {
				continue
			}
			seen[spec.Name] = true
			specs = append(specs, spec)
		}
	}
	return specs, nil
}

func prefixSpec(prefix string, res ResourceSpec) ResourceSpec {
	spec := res.clone()
	join := func(s string) string {
		if s == "" {
			return ""
		}
		return prefix + "-" + s
	}
	spec.Name = join(res.Name)
	spec.Parent = join(res.Parent)
	for i, d := range spec.DependsOn {
		spec.DependsOn[i] = join(d)
	}
	for role, target := range spec.References {
		spec.References[role] = join(target)
	}
	return spec
}
