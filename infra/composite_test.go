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
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot/platform/shared/logger"
)

func quietLogger() *logger.Logger {
	l := logger.New("infra-test")
	l.SetOutput(io.Discard)
	return l
}

func newTestGenerator(reg *Registry) *CompositeGenerator {
	return NewCompositeGenerator(reg, nil, quietLogger())
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestGenerate_ThreeTierWebBicep(t *testing.T) {
	g := newTestGenerator(nil)
	res, err := g.Generate(context.Background(), GenerationRequest{
		Name:     "App",
		Patterns: []string{"three-tier-web"},
	})
	require.NoError(t, err)

	assert.Equal(t, "app", res.Name)
	assert.Equal(t, FormatBicep, res.Format)
	assert.Equal(t, "dev", res.Environment)
	assert.NotEmpty(t, res.ID)

	require.NotEmpty(t, res.Order)
	assert.Equal(t, "app-log", res.Order[0], "shared workspace is injected first")
	assert.Less(t, indexOf(res.Order, "app-vnet"), indexOf(res.Order, "app-web-snet"))
	assert.Less(t, indexOf(res.Order, "app-plan"), indexOf(res.Order, "app-web"))
	assert.Less(t, indexOf(res.Order, "app-sql"), indexOf(res.Order, "app-db"))
	assert.Len(t, res.Modules, 12)

	main := res.Files["main.bicep"]
	require.NotEmpty(t, main)
	assert.Contains(t, main, "targetScope = 'resourceGroup'")
	assert.Contains(t, main, "module app_web 'modules/app-web.bicep' = {")
	assert.Contains(t, main, "serverFarmId: app_plan.outputs.id")
	assert.Contains(t, main, "subnetId: app_web_snet.outputs.id")
	assert.Contains(t, main, "appInsightsConnectionString: app_appi.outputs.connectionString")
	assert.Contains(t, main, "vnetName: app_vnet.outputs.name")
	assert.Contains(t, main, "logAnalyticsWorkspaceId: app_log.outputs.id")
	assert.Contains(t, main, "name: 'appst'")
	assert.Contains(t, main, "'managed-by': 'platform-copilot'")
	assert.Contains(t, main, "output app_web_id string = app_web.outputs.id")

	st := res.Files["modules/app-st.bicep"]
	assert.Contains(t, st, "resource storage 'Microsoft.Storage/storageAccounts@2023-01-01' = {")
	assert.Contains(t, st, "minimumTlsVersion: 'TLS1_2'")
	assert.Contains(t, st, "allowBlobPublicAccess: false")
	assert.Contains(t, st, "resource diagnostics 'Microsoft.Insights/diagnosticSettings@2021-05-01-preview' = {")
	assert.NotContains(t, st, "allLogs", "storage accounts only export metrics")

	snet := res.Files["modules/app-web-snet.bicep"]
	assert.Contains(t, snet, "resource vnet 'Microsoft.Network/virtualNetworks@2023-05-01' existing = {")
	assert.Contains(t, snet, "parent: vnet")
	assert.Contains(t, snet, "addressPrefix: '10.0.1.0/24'")
	assert.Contains(t, snet, "serviceName: 'Microsoft.Web/serverFarms'")
	assert.Contains(t, res.Files["modules/app-data-snet.bicep"], "addressPrefix: '10.0.2.0/24'")

	nsg := res.Files["modules/app-web-nsg.bicep"]
	assert.Contains(t, nsg, "categoryGroup: 'allLogs'")

	assert.True(t, hasWarning(res.Warnings, "admin_object_id not set"))
}

func TestGenerate_ThreeTierWebTerraform(t *testing.T) {
	g := newTestGenerator(nil)
	res, err := g.Generate(context.Background(), GenerationRequest{
		Name:        "app",
		Format:      FormatTerraform,
		Environment: "prod",
		Patterns:    []string{"three-tier-web"},
	})
	require.NoError(t, err)

	for _, f := range []string{"main.tf", "variables.tf", "outputs.tf", "modules/app-web/main.tf", "modules/app-log/main.tf"} {
		assert.Contains(t, res.Files, f)
	}

	main := res.Files["main.tf"]
	assert.Regexp(t, regexp.MustCompile(`module "app_web" \{`), main)
	assert.Regexp(t, regexp.MustCompile(`source\s+=\s+"\./modules/app-web"`), main)
	assert.Regexp(t, regexp.MustCompile(`service_plan_id\s+=\s+module\.app_plan\.id`), main)
	assert.Regexp(t, regexp.MustCompile(`log_analytics_workspace_id\s+=\s+module\.app_log\.id`), main)
	assert.Regexp(t, regexp.MustCompile(`depends_on\s+=\s+\[\s*module\.`), main)
	assert.Regexp(t, regexp.MustCompile(`resource "azurerm_resource_group" "this"`), main)
	assert.Regexp(t, regexp.MustCompile(`storage_use_azuread\s+=\s+true`), main)

	vars := res.Files["variables.tf"]
	assert.Contains(t, vars, `variable "location"`)
	assert.Contains(t, vars, `"rg-app-prod"`)

	st := res.Files["modules/app-st/main.tf"]
	assert.Contains(t, st, `resource "azurerm_storage_account" "this"`)
	assert.Regexp(t, regexp.MustCompile(`min_tls_version\s+=\s+"TLS1_2"`), st)
	assert.Regexp(t, regexp.MustCompile(`account_replication_type\s+=\s+"GRS"`), st, "production storage is geo-redundant")
	assert.Regexp(t, regexp.MustCompile(`public_network_access_enabled\s+=\s+false`), st)
	assert.Contains(t, st, `resource "azurerm_monitor_diagnostic_setting" "this"`)

	snet := res.Files["modules/app-web-snet/main.tf"]
	assert.Contains(t, snet, `resource "azurerm_subnet_network_security_group_association" "this"`)

	appi := res.Files["modules/app-appi/main.tf"]
	assert.Regexp(t, regexp.MustCompile(`(?s)output "connection_string" \{.*sensitive\s+=\s+true`), appi)
}

func TestGenerate_MissingGeneratorSkipsAndWarns(t *testing.T) {
	reg := DefaultRegistry()
	reg.Unregister(TypeAppServicePlan)
	g := newTestGenerator(reg)

	res, err := g.Generate(context.Background(), GenerationRequest{
		Name:     "app",
		Patterns: []string{"three-tier-web"},
		Resources: []ResourceSpec{
			{Name: "app-bus", Type: ResourceType("event_hub")},
		},
	})
	require.NoError(t, err)

	assert.True(t, hasWarning(res.Warnings, `no generator registered for resource type "app_service_plan"; skipping app-plan`))
	assert.True(t, hasWarning(res.Warnings, `no generator registered for resource type "event_hub"; skipping app-bus`))
	assert.Contains(t, res.Order, "app-plan")
	assert.NotContains(t, res.Files, "modules/app-plan.bicep")

	web, ok := res.Files["modules/app-web.bicep"]
	require.True(t, ok, "dependents of a skipped resource are still generated")
	assert.NotContains(t, web, "serverFarmId")
	assert.True(t, hasWarning(res.Warnings, "app-web: parent app-plan was not generated"))
}

func TestGenerate_DisableMonitoring(t *testing.T) {
	g := newTestGenerator(nil)
	res, err := g.Generate(context.Background(), GenerationRequest{
		Name:              "app",
		Patterns:          []string{"aks-microservices"},
		DisableMonitoring: true,
	})
	require.NoError(t, err)
	assert.NotContains(t, res.Order, "app-log")
	for path, content := range res.Files {
		assert.NotContains(t, content, "logAnalyticsWorkspaceId", path)
	}
}

func TestGenerate_ExplicitWorkspaceIsShared(t *testing.T) {
	g := newTestGenerator(nil)
	res, err := g.Generate(context.Background(), GenerationRequest{
		Name: "ops",
		Resources: []ResourceSpec{
			{Name: "ops-kv", Type: TypeKeyVault},
			{Name: "central-logs", Type: TypeLogAnalytics},
			{Name: "extra-logs", Type: TypeLogAnalytics},
		},
	})
	require.NoError(t, err)
	assert.NotContains(t, res.Order, "ops-log")
	assert.Contains(t, res.Files["main.bicep"], "logAnalyticsWorkspaceId: central_logs.outputs.id")
	assert.True(t, hasWarning(res.Warnings, "extra-logs is not wired"))
}

func TestGenerate_ExplicitResourceOverridesPattern(t *testing.T) {
	g := newTestGenerator(nil)
	res, err := g.Generate(context.Background(), GenerationRequest{
		Name:      "app",
		Patterns:  []string{"serverless-api"},
		Resources: []ResourceSpec{{Name: "app-st", Type: TypeStorageAccount, SKU: "Premium_LRS"}},
	})
	require.NoError(t, err)
	assert.True(t, hasWarning(res.Warnings, "resource app-st overrides"))
	assert.Contains(t, res.Files["modules/app-st.bicep"], "name: 'Premium_LRS'")
}

func TestGenerate_Errors(t *testing.T) {
	g := newTestGenerator(nil)
	ctx := context.Background()

	_, err := g.Generate(ctx, GenerationRequest{Patterns: []string{"three-tier-web"}})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = g.Generate(ctx, GenerationRequest{Name: "app", Patterns: []string{"mainframe"}})
	assert.True(t, errors.Is(err, ErrUnknownPattern))

	_, err = g.Generate(ctx, GenerationRequest{Name: "app", Resources: []ResourceSpec{
		{Name: "a", Type: TypeKeyVault, DependsOn: []string{"b"}},
		{Name: "b", Type: TypeKeyVault, DependsOn: []string{"a"}},
	}})
	var cycle *CycleError
	assert.True(t, errors.As(err, &cycle))

	_, err = g.Generate(ctx, GenerationRequest{Name: "app", Resources: []ResourceSpec{
		{Name: "db", Type: TypeSQLDatabase},
	}})
	assert.True(t, errors.Is(err, ErrMissingDependency))

	_, err = g.Generate(ctx, GenerationRequest{Name: "app", Resources: []ResourceSpec{
		{Name: "app-log", Type: TypeKeyVault},
	}})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = g.Generate(cancelled, GenerationRequest{Name: "app", Patterns: []string{"three-tier-web"}})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGenerate_StoresResult(t *testing.T) {
	store := NewResultStore(0, 0, quietLogger())
	defer store.Stop()
	g := NewCompositeGenerator(nil, store, quietLogger())

	res, err := g.Generate(context.Background(), GenerationRequest{Name: "app", Patterns: []string{"hub-spoke-network"}, TenantID: "t1"})
	require.NoError(t, err)

	got, err := store.Get(res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, got.ID)
	assert.Len(t, store.List("t1"), 1)
	assert.Empty(t, store.List("other"))
}

func TestPlan_InjectsWorkspaceDependency(t *testing.T) {
	g := newTestGenerator(nil)
	specs, ws, _, err := g.Plan(GenerationRequest{Name: "app", Resources: []ResourceSpec{{Name: "app-kv", Type: TypeKeyVault}}})
	require.NoError(t, err)
	assert.Equal(t, "app-log", ws)
	require.Len(t, specs, 2)
	assert.Equal(t, "app-log", specs[0].Name)
	assert.Equal(t, []string{"app-log"}, specs[1].DependsOn)
}
