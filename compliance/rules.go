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
	"fmt"
	"sort"
	"strconv"
	"strings"

	"copilot/platform/azure"
)

// ARM resource types the built-in rules inspect
const (
	typeStorage     = "Microsoft.Storage/storageAccounts"
	typeKeyVault    = "Microsoft.KeyVault/vaults"
	typeSQLServer   = "Microsoft.Sql/servers"
	typeWebSite     = "Microsoft.Web/sites"
	typeAKS         = "Microsoft.ContainerService/managedClusters"
	typeNSG         = "Microsoft.Network/networkSecurityGroups"
	typeCosmos      = "Microsoft.DocumentDB/databaseAccounts"
	typeRedis       = "Microsoft.Cache/redis"
	typeRegistry    = "Microsoft.ContainerRegistry/registries"
	typeLogAnalytic = "Microsoft.OperationalInsights/workspaces"
)

// DefaultRequiredTags are the tags the inventory rule expects on every resource
var DefaultRequiredTags = []string{"environment", "owner"}

// Rule checks one resource. Check returns "" when the resource complies
// and a description of the deviation otherwise.
type Rule struct {
	ID           string
	Title        string
	Controls     []string
	Severity     Severity
	ResourceType string // empty applies to every resource
	Remediation  string
	Check        func(r azure.Resource) string
}

// Applies reports whether the rule evaluates r
func (rule Rule) Applies(r azure.Resource) bool {
	return rule.ResourceType == "" || r.IsType(rule.ResourceType)
}

// ScopeRule checks the inventory of a scope as a whole
type ScopeRule struct {
	ID          string
	Title       string
	Controls    []string
	Severity    Severity
	Remediation string
	Check       func(resources []azure.Resource) string
}

// DefaultRules returns the built-in resource rules
func DefaultRules(requiredTags []string) []Rule {
	if requiredTags == nil {
		requiredTags = DefaultRequiredTags
	}
	rules := []Rule{
		{
			ID: "storage-https-only", Title: "Storage account allows unencrypted HTTP",
			Controls: []string{"SC-8"}, Severity: SeverityHigh, ResourceType: typeStorage,
			Remediation: "Set supportsHttpsTrafficOnly to true.",
			Check: func(r azure.Resource) string {
				if v, ok := r.BoolProperty("supportsHttpsTrafficOnly"); ok && !v {
					return "supportsHttpsTrafficOnly is false"
				}
				return ""
			},
		},
		{
			ID: "storage-min-tls", Title: "Storage account accepts TLS below 1.2",
			Controls: []string{"SC-8", "SC-13"}, Severity: SeverityMedium, ResourceType: typeStorage,
			Remediation: "Set minimumTlsVersion to TLS1_2.",
			Check: func(r azure.Resource) string {
				if v := r.StringProperty("minimumTlsVersion"); v != "TLS1_2" && v != "TLS1_3" {
					return fmt.Sprintf("minimumTlsVersion is %q", v)
				}
				return ""
			},
		},
		{
			ID: "storage-public-blob", Title: "Storage account allows anonymous blob access",
			Controls: []string{"AC-3", "SC-7"}, Severity: SeverityHigh, ResourceType: typeStorage,
			Remediation: "Set allowBlobPublicAccess to false.",
			Check: func(r azure.Resource) string {
				if v, ok := r.BoolProperty("allowBlobPublicAccess"); ok && v {
					return "allowBlobPublicAccess is true"
				}
				return ""
			},
		},
		{
			ID: "keyvault-soft-delete", Title: "Key Vault soft delete is disabled",
			Controls: []string{"CP-9"}, Severity: SeverityMedium, ResourceType: typeKeyVault,
			Remediation: "Enable soft delete with at least 90 days retention.",
			Check: func(r azure.Resource) string {
				if v, ok := r.BoolProperty("enableSoftDelete"); ok && !v {
					return "enableSoftDelete is false"
				}
				return ""
			},
		},
		{
			ID: "keyvault-purge-protection", Title: "Key Vault purge protection is disabled",
			Controls: []string{"CP-9", "SC-12"}, Severity: SeverityMedium, ResourceType: typeKeyVault,
			Remediation: "Enable purge protection on the vault.",
			Check: func(r azure.Resource) string {
				if v, _ := r.BoolProperty("enablePurgeProtection"); !v {
					return "enablePurgeProtection is not enabled"
				}
				return ""
			},
		},
		{
			ID: "sql-public-access", Title: "SQL server is reachable from public networks",
			Controls: []string{"SC-7"}, Severity: SeverityHigh, ResourceType: typeSQLServer,
			Remediation: "Set publicNetworkAccess to Disabled and connect through a private endpoint.",
			Check: func(r azure.Resource) string {
				if strings.EqualFold(r.StringProperty("publicNetworkAccess"), "Enabled") {
					return "publicNetworkAccess is Enabled"
				}
				return ""
			},
		},
		{
			ID: "sql-min-tls", Title: "SQL server accepts TLS below 1.2",
			Controls: []string{"SC-8"}, Severity: SeverityMedium, ResourceType: typeSQLServer,
			Remediation: "Set minimalTlsVersion to 1.2.",
			Check: func(r azure.Resource) string {
				if v := r.StringProperty("minimalTlsVersion"); v != "1.2" && v != "1.3" {
					return fmt.Sprintf("minimalTlsVersion is %q", v)
				}
				return ""
			},
		},
		{
			ID: "webapp-https-only", Title: "App Service allows HTTP",
			Controls: []string{"SC-8"}, Severity: SeverityHigh, ResourceType: typeWebSite,
			Remediation: "Set httpsOnly to true.",
			Check: func(r azure.Resource) string {
				if v, _ := r.BoolProperty("httpsOnly"); !v {
					return "httpsOnly is not enabled"
				}
				return ""
			},
		},
		{
			ID: "aks-rbac", Title: "AKS cluster does not enforce Kubernetes RBAC",
			Controls: []string{"AC-2", "AC-6"}, Severity: SeverityHigh, ResourceType: typeAKS,
			Remediation: "Recreate the cluster with enableRBAC and Entra ID integration.",
			Check: func(r azure.Resource) string {
				if v, ok := r.BoolProperty("enableRBAC"); ok && !v {
					return "enableRBAC is false"
				}
				return ""
			},
		},
		{
			ID: "aks-private-cluster", Title: "AKS API server is publicly reachable",
			Controls: []string{"SC-7"}, Severity: SeverityMedium, ResourceType: typeAKS,
			Remediation: "Enable a private cluster or restrict authorized IP ranges.",
			Check: func(r azure.Resource) string {
				if v, _ := r.BoolProperty("apiServerAccessProfile.enablePrivateCluster"); !v {
					return "apiServerAccessProfile.enablePrivateCluster is not enabled"
				}
				return ""
			},
		},
		{
			ID: "nsg-open-management-ports", Title: "Network security group allows SSH or RDP from the internet",
			Controls: []string{"SC-7", "AC-17"}, Severity: SeverityCritical, ResourceType: typeNSG,
			Remediation: "Remove inbound allow rules for ports 22 and 3389 from any source; use Azure Bastion.",
			Check:       checkOpenManagementPorts,
		},
		{
			ID: "cosmos-local-auth", Title: "Cosmos DB allows key-based authentication",
			Controls: []string{"IA-2"}, Severity: SeverityMedium, ResourceType: typeCosmos,
			Remediation: "Set disableLocalAuth to true and use Entra ID RBAC.",
			Check: func(r azure.Resource) string {
				if v, _ := r.BoolProperty("disableLocalAuth"); !v {
					return "disableLocalAuth is not enabled"
				}
				return ""
			},
		},
		{
			ID: "redis-non-ssl-port", Title: "Redis cache exposes the non-TLS port",
			Controls: []string{"SC-8"}, Severity: SeverityHigh, ResourceType: typeRedis,
			Remediation: "Set enableNonSslPort to false.",
			Check: func(r azure.Resource) string {
				if v, _ := r.BoolProperty("enableNonSslPort"); v {
					return "enableNonSslPort is true"
				}
				return ""
			},
		},
		{
			ID: "acr-admin-user", Title: "Container registry admin user is enabled",
			Controls: []string{"AC-2", "IA-5"}, Severity: SeverityMedium, ResourceType: typeRegistry,
			Remediation: "Disable the admin user and grant AcrPull through managed identities.",
			Check: func(r azure.Resource) string {
				if v, _ := r.BoolProperty("adminUserEnabled"); v {
					return "adminUserEnabled is true"
				}
				return ""
			},
		},
	}

	if len(requiredTags) > 0 {
		tags := append([]string(nil), requiredTags...)
		rules = append(rules, Rule{
			ID: "required-tags", Title: "Resource is missing required inventory tags",
			Controls: []string{"CM-8"}, Severity: SeverityLow,
			Remediation: "Add the tags " + strings.Join(tags, ", ") + ".",
			Check: func(r azure.Resource) string {
				var missing []string
				for _, t := range tags {
					if !hasTag(r.Tags, t) {
						missing = append(missing, t)
					}
				}
				if len(missing) > 0 {
					return "missing tags: " + strings.Join(missing, ", ")
				}
				return ""
			},
		})
	}
	return rules
}

// DefaultScopeRules returns the built-in scope rules
func DefaultScopeRules() []ScopeRule {
	return []ScopeRule{{
		ID: "log-analytics-present", Title: "No Log Analytics workspace in scope",
		Controls: []string{"AU-6", "AU-12"}, Severity: SeverityMedium,
		Remediation: "Deploy a Log Analytics workspace and route diagnostic settings to it.",
		Check: func(resources []azure.Resource) string {
			for _, r := range resources {
				if r.IsType(typeLogAnalytic) {
					return ""
				}
			}
			return "no Microsoft.OperationalInsights/workspaces resource found"
		},
	}}
}

func hasTag(tags map[string]string, key string) bool {
	for k, v := range tags {
		if strings.EqualFold(k, key) && v != "" {
			return true
		}
	}
	return false
}

var internetSources = map[string]bool{"*": true, "internet": true, "0.0.0.0/0": true, "any": true}

var managementPorts = []int{22, 3389}

func checkOpenManagementPorts(r azure.Resource) string {
	raw, _ := r.Property("securityRules")
	list, _ := raw.([]interface{})
	var open []string
	for _, item := range list {
		rule, _ := item.(map[string]interface{})
		props, _ := rule["properties"].(map[string]interface{})
		if props == nil {
			continue
		}
		if !strings.EqualFold(str(props["access"]), "Allow") || !strings.EqualFold(str(props["direction"]), "Inbound") {
			continue
		}
		sources := append([]string{str(props["sourceAddressPrefix"])}, strList(props["sourceAddressPrefixes"])...)
		fromInternet := false
		for _, s := range sources {
			if internetSources[strings.ToLower(s)] {
				fromInternet = true
			}
		}
		if !fromInternet {
			continue
		}
		ranges := append([]string{str(props["destinationPortRange"])}, strList(props["destinationPortRanges"])...)
		for _, port := range managementPorts {
			for _, pr := range ranges {
				if portInRange(pr, port) {
					open = append(open, fmt.Sprintf("%s allows %d", str(rule["name"]), port))
					break
				}
			}
		}
	}
	if len(open) == 0 {
		return ""
	}
	sort.Strings(open)
	return "inbound from internet: " + strings.Join(open, "; ")
}

func portInRange(pr string, port int) bool {
	pr = strings.TrimSpace(pr)
	if pr == "" {
		return false
	}
	if pr == "*" {
		return true
	}
	lo, hi, isRange := strings.Cut(pr, "-")
	a, err := strconv.Atoi(lo)
	if err != nil {
		return false
	}
	if !isRange {
		return a == port
	}
	b, err := strconv.Atoi(hi)
	if err != nil {
		return false
	}
	return a <= port && port <= b
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func strList(v interface{}) []string {
	list, _ := v.([]interface{})
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// defenderKeywords maps Defender recommendation titles to controls; the
// first matching entry wins
var defenderKeywords = []struct {
	keywords []string
	control  string
}{
	{[]string{"vulnerabilit"}, "RA-5"},
	{[]string{"endpoint protection", "antimalware", "malware"}, "SI-3"},
	{[]string{"system update", "patch", "updates should be"}, "SI-2"},
	{[]string{"encrypt", "customer-managed key", "customer managed key"}, "SC-28"},
	{[]string{"tls", "https", "secure transfer", "in transit"}, "SC-8"},
	{[]string{"mfa", "multi-factor", "multifactor"}, "IA-2"},
	{[]string{"owner permissions", "least privilege", "rbac", "role-based", "deprecated accounts", "external accounts"}, "AC-6"},
	{[]string{"diagnostic", "audit", "log"}, "AU-2"},
	{[]string{"backup", "soft delete", "purge protection"}, "CP-9"},
	{[]string{"management ports", "just-in-time", "network", "firewall", "public access", "private link", "private endpoint"}, "SC-7"},
}

// defenderFallbackControl covers Defender findings no keyword matches
const defenderFallbackControl = "CA-7"

// MapDefenderControl returns the control a Defender recommendation maps to
func MapDefenderControl(displayName string) string {
	name := strings.ToLower(displayName)
	for _, m := range defenderKeywords {
		for _, k := range m.keywords {
			if strings.Contains(name, k) {
				return m.control
			}
		}
	}
	return defenderFallbackControl
}

// defenderSeverity maps Defender severities to finding severities
func defenderSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "low":
		return SeverityLow
	default:
		return SeverityMedium
	}
}
