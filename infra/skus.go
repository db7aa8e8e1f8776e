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

// defaultSKUs holds the SKU used when a spec sets none, as
// {non-production, production}.
var defaultSKUs = map[ResourceType][2]string{
	TypeLogAnalytics:      {"PerGB2018", "PerGB2018"},
	TypeStorageAccount:    {"Standard_LRS", "Standard_GRS"},
	TypeKeyVault:          {"standard", "premium"},
	TypeAppServicePlan:    {"B1", "P1v3"},
	TypeSQLDatabase:       {"Basic", "GP_Gen5_2"},
	TypeContainerRegistry: {"Standard", "Premium"},
	TypeRedisCache:        {"Standard", "Premium"},
}

// DefaultSKU returns the SKU generated for t when the spec sets none. Types
// without a SKU return "".
func DefaultSKU(t ResourceType, production bool) string {
	skus, ok := defaultSKUs[t]
	if !ok {
		return ""
	}
	if production {
		return skus[1]
	}
	return skus[0]
}

// EffectiveSKU returns the SKU a generated module uses for spec
func EffectiveSKU(spec ResourceSpec, production bool) string {
	return spec.SKUOr(DefaultSKU(spec.Type, production))
}

func skuFor(spec ResourceSpec, ctx *GenerationContext) string {
	return EffectiveSKU(spec, ctx.Production())
}
