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
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/hclwrite"
)

// placeholderObjectID is emitted when no Entra ID administrator is supplied
const placeholderObjectID = "00000000-0000-0000-0000-000000000000"

var (
	inputSubnet = Input{
		Role: "subnet", Param: "subnetId", Variable: "subnet_id", Output: "id",
	}
	inputAppInsights = Input{
		Role: "app_insights", Param: "appInsightsConnectionString", Variable: "app_insights_connection_string", Output: "connectionString",
	}
	inputPlan = Input{
		Role: "parent", Param: "serverFarmId", Variable: "service_plan_id", Output: "id", Required: true,
	}
)

func builtinDefinitions() []*resourceDef {
	return []*resourceDef{
		logAnalyticsDef(),
		vnetDef(),
		subnetDef(),
		nsgDef(),
		storageAccountDef(),
		keyVaultDef(),
		appServicePlanDef(),
		webAppDef(),
		functionAppDef(),
		sqlServerDef(),
		sqlDatabaseDef(),
		aksDef(),
		containerRegistryDef(),
		cosmosDBDef(),
		redisCacheDef(),
		appInsightsDef(),
	}
}

func intProperty(spec ResourceSpec, ctx *GenerationContext, key string, def int) int {
	raw, ok := spec.Properties[key]
	if !ok || raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		ctx.Warnf("%s: property %s=%q is not a non-negative integer; using %d", spec.Name, key, raw, def)
		return def
	}
	return n
}

func boolProperty(spec ResourceSpec, key string, def bool) bool {
	raw, ok := spec.Properties[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func listProperty(spec ResourceSpec, key, def string) []string {
	var out []string
	for _, p := range strings.Split(spec.Property(key, def), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func strArr(vs []string) bArr {
	out := make(bArr, len(vs))
	for i, v := range vs {
		out[i] = bStr(v)
	}
	return out
}

func logAnalyticsDef() *resourceDef {
	retention := func(spec ResourceSpec, ctx *GenerationContext) int {
		def := 90
		if ctx.Production() {
			def = 365
		}
		return intProperty(spec, ctx, "retention_days", def)
	}
	return &resourceDef{
		rtype:       TypeLogAnalytics,
		outputs:     []outputDef{{name: "customerId", bicep: "properties.customerId", terraform: "workspace_id"}},
		bicepType:   "Microsoft.OperationalInsights/workspaces@2022-10-01",
		bicepSymbol: "workspace",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			props := res.obj("properties")
			props.obj("sku").set("name", bStr(skuFor(spec, ctx)))
			props.set("retentionInDays", bInt(retention(spec, ctx)))
			props.set("publicNetworkAccessForIngestion", bStr("Enabled"))
			props.set("publicNetworkAccessForQuery", publicAccess(ctx))
		},
		tfType: "azurerm_log_analytics_workspace",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			setStr(res, "sku", skuFor(spec, ctx))
			setInt(res, "retention_in_days", retention(spec, ctx))
			setBool(res, "internet_query_enabled", !ctx.Production())
		},
	}
}

func vnetDef() *resourceDef {
	return &resourceDef{
		rtype:       TypeVirtualNetwork,
		diagnostics: true,
		bicepType:   "Microsoft.Network/virtualNetworks@2023-05-01",
		bicepSymbol: "vnet",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			res.obj("properties").obj("addressSpace").set("addressPrefixes", strArr(listProperty(spec, "address_space", "10.0.0.0/16")))
		},
		tfType: "azurerm_virtual_network",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			setStrList(res, "address_space", listProperty(spec, "address_space", "10.0.0.0/16")...)
		},
	}
}

// subnetPrefix derives a /24 inside the parent's first address space
func subnetPrefix(spec ResourceSpec, ctx *GenerationContext) string {
	if p := spec.Property("address_prefix", ""); p != "" {
		return p
	}
	base := "10.0.0.0/16"
	if parent, ok := ctx.Spec(spec.Parent); ok {
		if spaces := listProperty(parent, "address_space", base); len(spaces) > 0 {
			base = spaces[0]
		}
	}
	octets := strings.SplitN(strings.SplitN(base, "/", 2)[0], ".", 4)
	if len(octets) != 4 {
		octets = []string{"10", "0", "0", "0"}
	}
	return octets[0] + "." + octets[1] + "." + strconv.Itoa(ctx.SubnetOrdinal(spec.Name)) + ".0/24"
}

func subnetDef() *resourceDef {
	return &resourceDef{
		rtype: TypeSubnet,
		inputs: []Input{
			{Role: "parent", Param: "vnetName", Variable: "virtual_network_name", Output: "name", Required: true},
			{Role: "network_security_group", Param: "networkSecurityGroupId", Variable: "network_security_group_id", Output: "id"},
		},
		bicepType:         "Microsoft.Network/virtualNetworks/subnets@2023-05-01",
		bicepSymbol:       "subnet",
		bicepParentType:   "Microsoft.Network/virtualNetworks@2023-05-01",
		bicepParentSymbol: "vnet",
		bicepParentRole:   "parent",
		bicepNoLocation:   true,
		bicepNoTags:       true,
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			props := res.obj("properties")
			props.set("addressPrefix", bStr(subnetPrefix(spec, ctx)))
			props.set("privateEndpointNetworkPolicies", bStr("Disabled"))
			if _, ok := ctx.Bound(spec.Name, "network_security_group"); ok {
				props.obj("networkSecurityGroup").set("id", bExpr("networkSecurityGroupId"))
			}
			if svc := spec.Property("delegation", ""); svc != "" {
				props.set("delegations", bArr{newObj().
					set("name", bStr("delegation")).
					set("properties", newObj().set("serviceName", bStr(svc)))})
			}
		},
		tfType:       "azurerm_subnet",
		tfNoLocation: true,
		tfNoTags:     true,
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			setVar(res, "virtual_network_name", "virtual_network_name")
			setStrList(res, "address_prefixes", subnetPrefix(spec, ctx))
			if svc := spec.Property("delegation", ""); svc != "" {
				del := res.AppendNewBlock("delegation", nil).Body()
				setStr(del, "name", "delegation")
				setStr(del.AppendNewBlock("service_delegation", nil).Body(), "name", svc)
			}
		},
		tfExtra: func(spec ResourceSpec, ctx *GenerationContext, file *hclwrite.Body) {
			if _, ok := ctx.Bound(spec.Name, "network_security_group"); !ok {
				return
			}
			file.AppendNewline()
			assoc := file.AppendNewBlock("resource", []string{"azurerm_subnet_network_security_group_association", "this"}).Body()
			assoc.SetAttributeTraversal("subnet_id", traversal("azurerm_subnet", "this", "id"))
			setVar(assoc, "network_security_group_id", "network_security_group_id")
		},
	}
}

func nsgDef() *resourceDef {
	return &resourceDef{
		rtype:       TypeNSG,
		diagnostics: true,
		bicepType:   "Microsoft.Network/networkSecurityGroups@2023-05-01",
		bicepSymbol: "nsg",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			rule := newObj().
				set("name", bStr("DenyInternetManagementInbound")).
				set("properties", newObj().
					set("priority", bInt(4000)).
					set("direction", bStr("Inbound")).
					set("access", bStr("Deny")).
					set("protocol", bStr("Tcp")).
					set("sourceAddressPrefix", bStr("Internet")).
					set("sourcePortRange", bStr("*")).
					set("destinationAddressPrefix", bStr("*")).
					set("destinationPortRanges", strArr([]string{"22", "3389"})))
			res.obj("properties").set("securityRules", bArr{rule})
		},
		tfType: "azurerm_network_security_group",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			rule := res.AppendNewBlock("security_rule", nil).Body()
			setStr(rule, "name", "DenyInternetManagementInbound")
			setInt(rule, "priority", 4000)
			setStr(rule, "direction", "Inbound")
			setStr(rule, "access", "Deny")
			setStr(rule, "protocol", "Tcp")
			setStr(rule, "source_port_range", "*")
			setStrList(rule, "destination_port_ranges", "22", "3389")
			setStr(rule, "source_address_prefix", "Internet")
			setStr(rule, "destination_address_prefix", "*")
		},
	}
}

func storageAccountDef() *resourceDef {
	return &resourceDef{
		rtype:       TypeStorageAccount,
		diagnostics: true,
		metricsOnly: true,
		outputs:     []outputDef{{name: "primaryBlobEndpoint", bicep: "properties.primaryEndpoints.blob", terraform: "primary_blob_endpoint"}},
		bicepType:   "Microsoft.Storage/storageAccounts@2023-01-01",
		bicepSymbol: "storage",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			res.set("kind", bStr("StorageV2"))
			res.obj("sku").set("name", bStr(skuFor(spec, ctx)))
			props := res.obj("properties")
			props.set("supportsHttpsTrafficOnly", bBool(true))
			props.set("minimumTlsVersion", bStr("TLS1_2"))
			props.set("allowBlobPublicAccess", bBool(false))
			props.set("allowSharedKeyAccess", bBool(false))
			props.set("defaultToOAuthAuthentication", bBool(true))
			props.set("publicNetworkAccess", publicAccess(ctx))
			if boolProperty(spec, "is_hns_enabled", false) {
				props.set("isHnsEnabled", bBool(true))
			}
			props.set("networkAcls", networkACLs(ctx))
			props.obj("encryption").
				set("keySource", bStr("Microsoft.Storage")).
				set("requireInfrastructureEncryption", bBool(ctx.Production())).
				set("services", newObj().
					set("blob", newObj().set("enabled", bBool(true))).
					set("file", newObj().set("enabled", bBool(true))))
		},
		tfType: "azurerm_storage_account",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			tier, replication := "Standard", "LRS"
			if parts := strings.SplitN(skuFor(spec, ctx), "_", 2); len(parts) == 2 {
				tier, replication = parts[0], parts[1]
			}
			setStr(res, "account_tier", tier)
			setStr(res, "account_replication_type", replication)
			setStr(res, "account_kind", "StorageV2")
			setBool(res, "enable_https_traffic_only", true)
			setStr(res, "min_tls_version", "TLS1_2")
			setBool(res, "allow_nested_items_to_be_public", false)
			setBool(res, "shared_access_key_enabled", false)
			setBool(res, "public_network_access_enabled", !ctx.Production())
			setBool(res, "infrastructure_encryption_enabled", ctx.Production())
			if boolProperty(spec, "is_hns_enabled", false) {
				setBool(res, "is_hns_enabled", true)
			}
			rules := res.AppendNewBlock("network_rules", nil).Body()
			setStr(rules, "default_action", prodOr(ctx, "Deny", "Allow"))
			setStrList(rules, "bypass", "AzureServices")
		},
	}
}

func keyVaultDef() *resourceDef {
	return &resourceDef{
		rtype:       TypeKeyVault,
		diagnostics: true,
		outputs:     []outputDef{{name: "vaultUri", bicep: "properties.vaultUri", terraform: "vault_uri"}},
		bicepType:   "Microsoft.KeyVault/vaults@2023-02-01",
		bicepSymbol: "vault",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			props := res.obj("properties")
			props.set("tenantId", bExpr("subscription().tenantId"))
			props.obj("sku").set("family", bStr("A")).set("name", bStr(skuFor(spec, ctx)))
			props.set("enableRbacAuthorization", bBool(true))
			props.set("enableSoftDelete", bBool(true))
			props.set("softDeleteRetentionInDays", bInt(90))
			props.set("enablePurgeProtection", bBool(true))
			props.set("publicNetworkAccess", publicAccess(ctx))
			props.set("networkAcls", networkACLs(ctx))
		},
		tfType: "azurerm_key_vault",
		tfData: func(file *hclwrite.Body) {
			file.AppendNewBlock("data", []string{"azurerm_client_config", "current"})
			file.AppendNewline()
		},
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			res.SetAttributeTraversal("tenant_id", traversal("data", "azurerm_client_config", "current", "tenant_id"))
			setStr(res, "sku_name", skuFor(spec, ctx))
			setBool(res, "enable_rbac_authorization", true)
			setInt(res, "soft_delete_retention_days", 90)
			setBool(res, "purge_protection_enabled", true)
			setBool(res, "public_network_access_enabled", !ctx.Production())
			acls := res.AppendNewBlock("network_acls", nil).Body()
			setStr(acls, "default_action", prodOr(ctx, "Deny", "Allow"))
			setStr(acls, "bypass", "AzureServices")
		},
	}
}

func appServicePlanDef() *resourceDef {
	zoneRedundant := func(spec ResourceSpec, ctx *GenerationContext) bool {
		return ctx.Production() && strings.HasPrefix(skuFor(spec, ctx), "P")
	}
	return &resourceDef{
		rtype:       TypeAppServicePlan,
		diagnostics: true,
		metricsOnly: true,
		bicepType:   "Microsoft.Web/serverfarms@2022-09-01",
		bicepSymbol: "plan",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			res.set("kind", bStr("linux"))
			res.obj("sku").set("name", bStr(skuFor(spec, ctx)))
			res.obj("properties").
				set("reserved", bBool(true)).
				set("zoneRedundant", bBool(zoneRedundant(spec, ctx)))
		},
		tfType: "azurerm_service_plan",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			setStr(res, "os_type", "Linux")
			setStr(res, "sku_name", skuFor(spec, ctx))
			setBool(res, "zone_balancing_enabled", zoneRedundant(spec, ctx))
		},
	}
}

// siteBicep fills the properties shared by web and function apps
func siteBicep(spec ResourceSpec, ctx *GenerationContext, res *bObj, kind, fxVersion string, settings bArr) {
	res.set("kind", bStr(kind))
	res.obj("identity").set("type", bStr("SystemAssigned"))
	props := res.obj("properties")
	if _, ok := ctx.Bound(spec.Name, "parent"); ok {
		props.set("serverFarmId", bExpr("serverFarmId"))
	}
	props.set("httpsOnly", bBool(true))
	props.set("publicNetworkAccess", publicAccess(ctx))
	_, hasSubnet := ctx.Bound(spec.Name, "subnet")
	if hasSubnet {
		props.set("virtualNetworkSubnetId", bExpr("subnetId"))
		props.set("vnetRouteAllEnabled", bBool(true))
	}
	site := props.obj("siteConfig")
	site.set("linuxFxVersion", bStr(fxVersion))
	site.set("minTlsVersion", bStr("1.2"))
	site.set("ftpsState", bStr("Disabled"))
	site.set("http20Enabled", bBool(true))
	if _, ok := ctx.Bound(spec.Name, "app_insights"); ok {
		settings = append(settings, newObj().
			set("name", bStr("APPLICATIONINSIGHTS_CONNECTION_STRING")).
			set("value", bExpr("appInsightsConnectionString")))
	}
	if len(settings) > 0 {
		site.set("appSettings", settings)
	}
}

// siteTerraform fills the arguments shared by web and function apps and
// returns the site_config body
func siteTerraform(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) *hclwrite.Body {
	if _, ok := ctx.Bound(spec.Name, "parent"); ok {
		setVar(res, "service_plan_id", "service_plan_id")
	}
	setBool(res, "https_only", true)
	setBool(res, "public_network_access_enabled", !ctx.Production())
	_, hasSubnet := ctx.Bound(spec.Name, "subnet")
	if hasSubnet {
		setVar(res, "virtual_network_subnet_id", "subnet_id")
	}
	setStr(res.AppendNewBlock("identity", nil).Body(), "type", "SystemAssigned")
	site := res.AppendNewBlock("site_config", nil).Body()
	setStr(site, "minimum_tls_version", "1.2")
	setStr(site, "ftps_state", "Disabled")
	setBool(site, "http2_enabled", true)
	if hasSubnet {
		setBool(site, "vnet_route_all_enabled", true)
	}
	return site
}

func webAppDef() *resourceDef {
	return &resourceDef{
		rtype:       TypeWebApp,
		diagnostics: true,
		inputs:      []Input{inputPlan, inputSubnet, inputAppInsights},
		outputs:     []outputDef{{name: "defaultHostName", bicep: "properties.defaultHostName", terraform: "default_hostname"}},
		bicepType:   "Microsoft.Web/sites@2022-09-01",
		bicepSymbol: "site",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			siteBicep(spec, ctx, res, "app,linux", spec.Property("runtime", "DOTNETCORE|8.0"), nil)
			res.obj("properties").obj("siteConfig").set("alwaysOn", bBool(true))
		},
		tfType: "azurerm_linux_web_app",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			site := siteTerraform(spec, ctx, res)
			setBool(site, "always_on", true)
			if _, ok := ctx.Bound(spec.Name, "app_insights"); ok {
				res.SetAttributeRaw("app_settings", hclwrite.TokensForObject([]hclwrite.ObjectAttrTokens{{
					Name:  hclwrite.TokensForIdentifier("APPLICATIONINSIGHTS_CONNECTION_STRING"),
					Value: hclwrite.TokensForTraversal(traversal("var", "app_insights_connection_string")),
				}}))
			}
		},
	}
}

func functionAppDef() *resourceDef {
	return &resourceDef{
		rtype:       TypeFunctionApp,
		diagnostics: true,
		inputs: []Input{
			inputPlan,
			{Role: "storage_account", Param: "storageAccountName", Variable: "storage_account_name", Output: "name"},
			inputSubnet,
			inputAppInsights,
		},
		outputs:     []outputDef{{name: "defaultHostName", bicep: "properties.defaultHostName", terraform: "default_hostname"}},
		bicepType:   "Microsoft.Web/sites@2022-09-01",
		bicepSymbol: "site",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			settings := bArr{
				newObj().set("name", bStr("FUNCTIONS_EXTENSION_VERSION")).set("value", bStr("~4")),
				newObj().set("name", bStr("FUNCTIONS_WORKER_RUNTIME")).set("value", bStr(spec.Property("worker_runtime", "dotnet-isolated"))),
			}
			if _, ok := ctx.Bound(spec.Name, "storage_account"); ok {
				settings = append(settings, newObj().
					set("name", bStr("AzureWebJobsStorage__accountName")).
					set("value", bExpr("storageAccountName")))
			} else {
				ctx.Warnf("%s: function app has no storage_account reference; AzureWebJobsStorage must be configured manually", spec.Name)
			}
			siteBicep(spec, ctx, res, "functionapp,linux", spec.Property("runtime", "DOTNET-ISOLATED|8.0"), settings)
		},
		tfType: "azurerm_linux_function_app",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			if _, ok := ctx.Bound(spec.Name, "storage_account"); ok {
				setVar(res, "storage_account_name", "storage_account_name")
				setBool(res, "storage_uses_managed_identity", true)
			} else {
				ctx.Warnf("%s: function app has no storage_account reference; AzureWebJobsStorage must be configured manually", spec.Name)
			}
			site := siteTerraform(spec, ctx, res)
			if _, ok := ctx.Bound(spec.Name, "app_insights"); ok {
				setVar(site, "application_insights_connection_string", "app_insights_connection_string")
			}
			res.SetAttributeValue("app_settings", stringMapValue(map[string]string{
				"FUNCTIONS_WORKER_RUNTIME": spec.Property("worker_runtime", "dotnet-isolated"),
			}))
		},
	}
}

func sqlAdmin(spec ResourceSpec, ctx *GenerationContext) (login, objectID string) {
	login = spec.Property("admin_login", "sql-administrators")
	objectID = spec.Property("admin_object_id", "")
	if objectID == "" {
		ctx.Warnf("%s: admin_object_id not set; emitting a placeholder Entra ID administrator that must be replaced before deployment", spec.Name)
		objectID = placeholderObjectID
	}
	return login, objectID
}

func sqlServerDef() *resourceDef {
	return &resourceDef{
		rtype:       TypeSQLServer,
		outputs:     []outputDef{{name: "fullyQualifiedDomainName", bicep: "properties.fullyQualifiedDomainName", terraform: "fully_qualified_domain_name"}},
		bicepType:   "Microsoft.Sql/servers@2023-05-01-preview",
		bicepSymbol: "server",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			login, objectID := sqlAdmin(spec, ctx)
			res.obj("identity").set("type", bStr("SystemAssigned"))
			props := res.obj("properties")
			props.set("version", bStr("12.0"))
			props.set("minimalTlsVersion", bStr("1.2"))
			props.set("publicNetworkAccess", publicAccess(ctx))
			props.obj("administrators").
				set("administratorType", bStr("ActiveDirectory")).
				set("azureADOnlyAuthentication", bBool(true)).
				set("login", bStr(login)).
				set("sid", bStr(objectID)).
				set("tenantId", bExpr("subscription().tenantId")).
				set("principalType", bStr("Group"))
		},
		tfType: "azurerm_mssql_server",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			login, objectID := sqlAdmin(spec, ctx)
			setStr(res, "version", "12.0")
			setStr(res, "minimum_tls_version", "1.2")
			setBool(res, "public_network_access_enabled", !ctx.Production())
			admin := res.AppendNewBlock("azuread_administrator", nil).Body()
			setStr(admin, "login_username", login)
			setStr(admin, "object_id", objectID)
			setBool(admin, "azuread_authentication_only", true)
			setStr(res.AppendNewBlock("identity", nil).Body(), "type", "SystemAssigned")
		},
	}
}

func sqlDatabaseDef() *resourceDef {
	return &resourceDef{
		rtype:       TypeSQLDatabase,
		diagnostics: true,
		inputs: []Input{
			{Role: "parent", Param: "serverName", Variable: "server_id", Output: "name", TerraformOutput: "id", Required: true},
		},
		bicepType:         "Microsoft.Sql/servers/databases@2023-05-01-preview",
		bicepSymbol:       "database",
		bicepParentType:   "Microsoft.Sql/servers@2023-05-01-preview",
		bicepParentSymbol: "server",
		bicepParentRole:   "parent",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			res.obj("sku").set("name", bStr(skuFor(spec, ctx)))
			res.obj("properties").
				set("zoneRedundant", bBool(ctx.Production())).
				set("requestedBackupStorageRedundancy", bStr(prodOr(ctx, "Geo", "Local")))
		},
		tfType:            "azurerm_mssql_database",
		tfNoLocation:      true,
		tfNoResourceGroup: true,
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			setVar(res, "server_id", "server_id")
			setStr(res, "sku_name", skuFor(spec, ctx))
			setBool(res, "zone_redundant", ctx.Production())
			setStr(res, "storage_account_type", prodOr(ctx, "Geo", "Local"))
		},
	}
}

func aksDef() *resourceDef {
	nodeCount := func(spec ResourceSpec, ctx *GenerationContext) int {
		def := 1
		if ctx.Production() {
			def = 3
		}
		return intProperty(spec, ctx, "node_count", def)
	}
	return &resourceDef{
		rtype:       TypeAKS,
		diagnostics: true,
		inputs:      []Input{inputSubnet},
		outputs:     []outputDef{{name: "nodeResourceGroup", bicep: "properties.nodeResourceGroup", terraform: "node_resource_group"}},
		bicepType:   "Microsoft.ContainerService/managedClusters@2023-08-01",
		bicepSymbol: "cluster",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			res.obj("identity").set("type", bStr("SystemAssigned"))
			res.obj("sku").set("name", bStr("Base")).set("tier", bStr(prodOr(ctx, "Standard", "Free")))
			props := res.obj("properties")
			props.set("dnsPrefix", bExpr("name"))
			if v := spec.Property("kubernetes_version", ""); v != "" {
				props.set("kubernetesVersion", bStr(v))
			}
			props.set("enableRBAC", bBool(true))
			props.set("disableLocalAccounts", bBool(true))
			props.obj("aadProfile").set("managed", bBool(true)).set("enableAzureRBAC", bBool(true))
			props.obj("apiServerAccessProfile").set("enablePrivateCluster", bBool(ctx.Production()))
			pool := newObj().
				set("name", bStr("system")).
				set("mode", bStr("System")).
				set("count", bInt(nodeCount(spec, ctx))).
				set("vmSize", bStr(spec.Property("vm_size", "Standard_D4s_v5"))).
				set("osType", bStr("Linux"))
			if _, ok := ctx.Bound(spec.Name, "subnet"); ok {
				pool.set("vnetSubnetID", bExpr("subnetId"))
			}
			if ctx.Production() {
				pool.set("availabilityZones", strArr([]string{"1", "2", "3"}))
			}
			props.set("agentPoolProfiles", bArr{pool})
			props.obj("networkProfile").set("networkPlugin", bStr("azure")).set("networkPolicy", bStr("azure"))
			if ctx.WorkspaceBound(spec.Name) {
				props.obj("addonProfiles").obj("omsagent").
					set("enabled", bBool(true)).
					set("config", newObj().set("logAnalyticsWorkspaceResourceID", bExpr("logAnalyticsWorkspaceId")))
			}
		},
		tfType: "azurerm_kubernetes_cluster",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			setVar(res, "dns_prefix", "name")
			if v := spec.Property("kubernetes_version", ""); v != "" {
				setStr(res, "kubernetes_version", v)
			}
			setStr(res, "sku_tier", prodOr(ctx, "Standard", "Free"))
			setBool(res, "local_account_disabled", true)
			setBool(res, "role_based_access_control_enabled", true)
			setBool(res, "private_cluster_enabled", ctx.Production())

			pool := res.AppendNewBlock("default_node_pool", nil).Body()
			setStr(pool, "name", "system")
			setInt(pool, "node_count", nodeCount(spec, ctx))
			setStr(pool, "vm_size", spec.Property("vm_size", "Standard_D4s_v5"))
			if _, ok := ctx.Bound(spec.Name, "subnet"); ok {
				setVar(pool, "vnet_subnet_id", "subnet_id")
			}
			if ctx.Production() {
				setStrList(pool, "zones", "1", "2", "3")
			}

			setStr(res.AppendNewBlock("identity", nil).Body(), "type", "SystemAssigned")
			aad := res.AppendNewBlock("azure_active_directory_role_based_access_control", nil).Body()
			setBool(aad, "managed", true)
			setBool(aad, "azure_rbac_enabled", true)
			net := res.AppendNewBlock("network_profile", nil).Body()
			setStr(net, "network_plugin", "azure")
			setStr(net, "network_policy", "azure")
			if ctx.WorkspaceBound(spec.Name) {
				setVar(res.AppendNewBlock("oms_agent", nil).Body(), "log_analytics_workspace_id", "log_analytics_workspace_id")
			}
		},
	}
}

func containerRegistryDef() *resourceDef {
	premium := func(spec ResourceSpec, ctx *GenerationContext) bool {
		return strings.EqualFold(skuFor(spec, ctx), "Premium")
	}
	return &resourceDef{
		rtype:       TypeContainerRegistry,
		diagnostics: true,
		outputs:     []outputDef{{name: "loginServer", bicep: "properties.loginServer", terraform: "login_server"}},
		bicepType:   "Microsoft.ContainerRegistry/registries@2023-07-01",
		bicepSymbol: "registry",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			res.obj("sku").set("name", bStr(skuFor(spec, ctx)))
			props := res.obj("properties")
			props.set("adminUserEnabled", bBool(false))
			props.set("anonymousPullEnabled", bBool(false))
			if premium(spec, ctx) {
				props.set("publicNetworkAccess", publicAccess(ctx))
				props.set("zoneRedundancy", bStr(prodOr(ctx, "Enabled", "Disabled")))
			} else if ctx.Production() {
				ctx.Warnf("%s: public network access can only be disabled on Premium registries", spec.Name)
			}
		},
		tfType: "azurerm_container_registry",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			setStr(res, "sku", skuFor(spec, ctx))
			setBool(res, "admin_enabled", false)
			setBool(res, "anonymous_pull_enabled", false)
			if premium(spec, ctx) {
				setBool(res, "public_network_access_enabled", !ctx.Production())
				setBool(res, "zone_redundancy_enabled", ctx.Production())
			} else if ctx.Production() {
				ctx.Warnf("%s: public network access can only be disabled on Premium registries", spec.Name)
			}
		},
	}
}

func cosmosDBDef() *resourceDef {
	return &resourceDef{
		rtype:       TypeCosmosDB,
		diagnostics: true,
		outputs:     []outputDef{{name: "documentEndpoint", bicep: "properties.documentEndpoint", terraform: "endpoint"}},
		bicepType:   "Microsoft.DocumentDB/databaseAccounts@2023-04-15",
		bicepSymbol: "account",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			res.set("kind", bStr("GlobalDocumentDB"))
			props := res.obj("properties")
			props.set("databaseAccountOfferType", bStr("Standard"))
			props.set("locations", bArr{newObj().
				set("locationName", bExpr("location")).
				set("failoverPriority", bInt(0)).
				set("isZoneRedundant", bBool(ctx.Production()))})
			props.obj("consistencyPolicy").set("defaultConsistencyLevel", bStr(spec.Property("consistency_level", "Session")))
			props.set("disableLocalAuth", bBool(true))
			props.set("disableKeyBasedMetadataWriteAccess", bBool(true))
			props.set("publicNetworkAccess", publicAccess(ctx))
			props.set("minimalTlsVersion", bStr("Tls12"))
			props.set("enableAutomaticFailover", bBool(ctx.Production()))
		},
		tfType: "azurerm_cosmosdb_account",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			setStr(res, "offer_type", "Standard")
			setStr(res, "kind", "GlobalDocumentDB")
			setBool(res, "local_authentication_disabled", true)
			setBool(res, "public_network_access_enabled", !ctx.Production())
			setStr(res, "minimal_tls_version", "Tls12")
			setBool(res, "enable_automatic_failover", ctx.Production())
			setStr(res.AppendNewBlock("consistency_policy", nil).Body(), "consistency_level", spec.Property("consistency_level", "Session"))
			geo := res.AppendNewBlock("geo_location", nil).Body()
			setVar(geo, "location", "location")
			setInt(geo, "failover_priority", 0)
			setBool(geo, "zone_redundant", ctx.Production())
		},
	}
}

func redisSKU(spec ResourceSpec, ctx *GenerationContext) (name, family string) {
	name = skuFor(spec, ctx)
	family = "C"
	if strings.EqualFold(name, "Premium") {
		family = "P"
	}
	return name, family
}

func redisCacheDef() *resourceDef {
	return &resourceDef{
		rtype:       TypeRedisCache,
		diagnostics: true,
		outputs:     []outputDef{{name: "hostName", bicep: "properties.hostName", terraform: "hostname"}},
		bicepType:   "Microsoft.Cache/redis@2023-08-01",
		bicepSymbol: "cache",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			name, family := redisSKU(spec, ctx)
			props := res.obj("properties")
			props.obj("sku").set("name", bStr(name)).set("family", bStr(family)).set("capacity", bInt(intProperty(spec, ctx, "capacity", 1)))
			props.set("enableNonSslPort", bBool(false))
			props.set("minimumTlsVersion", bStr("1.2"))
			props.set("publicNetworkAccess", publicAccess(ctx))
			props.obj("redisConfiguration").set("aad-enabled", bStr("True"))
		},
		tfType: "azurerm_redis_cache",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			name, family := redisSKU(spec, ctx)
			setInt(res, "capacity", intProperty(spec, ctx, "capacity", 1))
			setStr(res, "family", family)
			setStr(res, "sku_name", name)
			setBool(res, "enable_non_ssl_port", false)
			setStr(res, "minimum_tls_version", "1.2")
			setBool(res, "public_network_access_enabled", !ctx.Production())
			setBool(res.AppendNewBlock("redis_configuration", nil).Body(), "active_directory_authentication_enabled", true)
		},
	}
}

func appInsightsDef() *resourceDef {
	return &resourceDef{
		rtype:       TypeAppInsights,
		workspace:   true,
		outputs:     []outputDef{{name: "connectionString", bicep: "properties.ConnectionString", terraform: "connection_string", sensitive: true}},
		bicepType:   "Microsoft.Insights/components@2020-02-02",
		bicepSymbol: "insights",
		bicepBody: func(spec ResourceSpec, ctx *GenerationContext, res *bObj) {
			res.set("kind", bStr("web"))
			props := res.obj("properties")
			props.set("Application_Type", bStr("web"))
			if ctx.WorkspaceBound(spec.Name) {
				props.set("WorkspaceResourceId", bExpr("logAnalyticsWorkspaceId"))
				props.set("IngestionMode", bStr("LogAnalytics"))
			} else {
				ctx.Warnf("%s: application insights is not workspace-based", spec.Name)
			}
			props.set("DisableLocalAuth", bBool(true))
		},
		tfType: "azurerm_application_insights",
		tfBody: func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body) {
			setStr(res, "application_type", "web")
			if ctx.WorkspaceBound(spec.Name) {
				setVar(res, "workspace_id", "log_analytics_workspace_id")
			} else {
				ctx.Warnf("%s: application insights is not workspace-based", spec.Name)
			}
			setBool(res, "local_authentication_disabled", true)
		},
	}
}
