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

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

const diagnosticSettingsType = "Microsoft.Insights/diagnosticSettings@2021-05-01-preview"

// outputDef is one module output. bicep is an expression relative to the
// resource symbol; terraform is an attribute of the resource.
type outputDef struct {
	name      string
	bicep     string
	terraform string
	sensitive bool
}

// resourceDef is a table-driven ModuleGenerator. Shared concerns (naming,
// location, tags, inputs, diagnostics, standard outputs) are handled here and
// the per-type hooks only fill in resource properties.
type resourceDef struct {
	rtype       ResourceType
	diagnostics bool
	// metricsOnly resources do not expose log categories
	metricsOnly bool
	// workspace marks resources that take the workspace id without
	// emitting a diagnostic setting
	workspace bool
	inputs    []Input
	outputs   []outputDef

	bicepType         string
	bicepSymbol       string
	bicepParentType   string
	bicepParentSymbol string
	bicepParentRole   string
	bicepNoLocation   bool
	bicepNoTags       bool
	bicepBody         func(spec ResourceSpec, ctx *GenerationContext, res *bObj)

	tfType            string
	tfNoLocation      bool
	tfNoTags          bool
	tfNoResourceGroup bool
	tfBody            func(spec ResourceSpec, ctx *GenerationContext, res *hclwrite.Body)
	// tfExtra appends blocks after the main resource
	tfExtra func(spec ResourceSpec, ctx *GenerationContext, file *hclwrite.Body)
	// tfData declares data sources the resource reads
	tfData func(file *hclwrite.Body)
}

func (d *resourceDef) Type() ResourceType         { return d.rtype }
func (d *resourceDef) DiagnosticsSupported() bool { return d.diagnostics }
func (d *resourceDef) UsesWorkspace() bool        { return d.diagnostics || d.workspace }
func (d *resourceDef) Inputs() []Input            { return append([]Input(nil), d.inputs...) }

// Standard implements StandardInputs
func (d *resourceDef) Standard(f Format) ModuleStandard {
	if f == FormatTerraform {
		return ModuleStandard{ResourceGroup: !d.tfNoResourceGroup, Location: !d.tfNoLocation, Tags: !d.tfNoTags}
	}
	return ModuleStandard{Location: !d.bicepNoLocation, Tags: !d.bicepNoTags}
}

func (d *resourceDef) Outputs() []string {
	out := []string{"id", "name"}
	for _, o := range d.outputs {
		out = append(out, o.name)
	}
	return out
}

// Bicep renders modules/<name>.bicep
func (d *resourceDef) Bicep(spec ResourceSpec, ctx *GenerationContext) (string, error) {
	f := &bicepFile{}
	f.params = append(f.params, bicepParam{name: "name", typ: "string", description: fmt.Sprintf("Name of the %s", d.rtype)})
	if !d.bicepNoLocation {
		f.param("location", "string", nil)
	}
	if !d.bicepNoTags {
		f.param("tags", "object", newObj())
	}
	for _, b := range ctx.Bindings(spec.Name) {
		f.param(b.Param, "string", nil)
	}
	wsBound := ctx.WorkspaceBound(spec.Name)
	if wsBound {
		f.param("logAnalyticsWorkspaceId", "string", nil)
	}

	res := newObj()
	if d.bicepParentType != "" {
		b, ok := ctx.Bound(spec.Name, d.bicepParentRole)
		if !ok {
			return "", fmt.Errorf("%w: %s (%s) requires a %s", ErrMissingDependency, spec.Name, d.rtype, d.bicepParentRole)
		}
		f.existing(d.bicepParentSymbol, d.bicepParentType, newObj().set("name", bExpr(b.Param)))
		res.set("parent", bExpr(d.bicepParentSymbol))
	}
	res.set("name", bExpr("name"))
	if !d.bicepNoLocation {
		res.set("location", bExpr("location"))
	}
	if !d.bicepNoTags {
		res.set("tags", bExpr("tags"))
	}
	if d.bicepBody != nil {
		d.bicepBody(spec, ctx, res)
	}
	f.resource(d.bicepSymbol, d.bicepType, res)

	if d.diagnostics && wsBound {
		props := newObj().set("workspaceId", bExpr("logAnalyticsWorkspaceId"))
		if !d.metricsOnly {
			props.set("logs", bArr{newObj().set("categoryGroup", bStr("allLogs")).set("enabled", bBool(true))})
		}
		props.set("metrics", bArr{newObj().set("category", bStr("AllMetrics")).set("enabled", bBool(true))})
		f.resource("diagnostics", diagnosticSettingsType, newObj().
			set("name", bExpr("'${name}-diag'")).
			set("scope", bExpr(d.bicepSymbol)).
			set("properties", props))
	}

	f.output("id", "string", bExpr(d.bicepSymbol+".id"))
	f.output("name", "string", bExpr(d.bicepSymbol+".name"))
	for _, o := range d.outputs {
		f.output(o.name, "string", bExpr(d.bicepSymbol+"."+o.bicep))
	}
	return f.String(), nil
}

// Terraform renders modules/<name>/main.tf
func (d *resourceDef) Terraform(spec ResourceSpec, ctx *GenerationContext) (string, error) {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	declareVariable(root, "name", stringType(), nil, fmt.Sprintf("Name of the %s", d.rtype))
	if !d.tfNoResourceGroup {
		declareVariable(root, "resource_group_name", stringType(), nil, "")
	}
	if !d.tfNoLocation {
		declareVariable(root, "location", stringType(), nil, "")
	}
	if !d.tfNoTags {
		empty := cty.MapValEmpty(cty.String)
		declareVariable(root, "tags", mapOfStringType(), &empty, "")
	}
	for _, b := range ctx.Bindings(spec.Name) {
		declareVariable(root, b.Variable, stringType(), nil, "")
	}
	wsBound := ctx.WorkspaceBound(spec.Name)
	if wsBound {
		declareVariable(root, "log_analytics_workspace_id", stringType(), nil, "")
	}
	root.AppendNewline()

	if d.tfData != nil {
		d.tfData(root)
	}

	res := root.AppendNewBlock("resource", []string{d.tfType, "this"}).Body()
	setVar(res, "name", "name")
	if !d.tfNoResourceGroup {
		setVar(res, "resource_group_name", "resource_group_name")
	}
	if !d.tfNoLocation {
		setVar(res, "location", "location")
	}
	if !d.tfNoTags {
		setVar(res, "tags", "tags")
	}
	if d.tfBody != nil {
		d.tfBody(spec, ctx, res)
	}

	if d.tfExtra != nil {
		d.tfExtra(spec, ctx, root)
	}

	if d.diagnostics && wsBound {
		root.AppendNewline()
		diag := root.AppendNewBlock("resource", []string{"azurerm_monitor_diagnostic_setting", "this"}).Body()
		diag.SetAttributeRaw("name", hclwrite.TokensForFunctionCall("format",
			hclwrite.TokensForValue(cty.StringVal("%s-diag")),
			hclwrite.TokensForTraversal(traversal("var", "name")),
		))
		diag.SetAttributeTraversal("target_resource_id", traversal(d.tfType, "this", "id"))
		setVar(diag, "log_analytics_workspace_id", "log_analytics_workspace_id")
		if !d.metricsOnly {
			setStr(diag.AppendNewBlock("enabled_log", nil).Body(), "category_group", "allLogs")
		}
		setStr(diag.AppendNewBlock("metric", nil).Body(), "category", "AllMetrics")
	}

	root.AppendNewline()
	declareOutput(root, "id", traversal(d.tfType, "this", "id"), false)
	declareOutput(root, "name", traversal(d.tfType, "this", "name"), false)
	for _, o := range d.outputs {
		declareOutput(root, snake(o.name), traversal(d.tfType, "this", o.terraform), o.sensitive)
	}
	return formatHCL(f), nil
}

// prodOr returns prod in production and other otherwise
func prodOr(ctx *GenerationContext, prod, other string) string {
	if ctx.Production() {
		return prod
	}
	return other
}

func publicAccess(ctx *GenerationContext) bStr {
	return bStr(prodOr(ctx, "Disabled", "Enabled"))
}

func networkACLs(ctx *GenerationContext) *bObj {
	return newObj().
		set("defaultAction", bStr(prodOr(ctx, "Deny", "Allow"))).
		set("bypass", bStr("AzureServices"))
}
