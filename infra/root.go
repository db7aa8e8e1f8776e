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
	"path"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// plannedModule is a generated module with what the root file needs to wire it
type plannedModule struct {
	spec     ResourceSpec
	gen      ModuleGenerator
	module   Module
	explicit []string // DependsOn entries that produced modules
}

func defaultTags(req *GenerationRequest) map[string]string {
	tags := map[string]string{
		"environment": req.Environment,
		"managed-by":  "platform-copilot",
		"workload":    req.Name,
	}
	for k, v := range req.Tags {
		tags[k] = v
	}
	return tags
}

func bicepModulePath(name string) string {
	return path.Join("modules", name+".bicep")
}

func terraformModuleDir(name string) string {
	return path.Join("modules", name)
}

// bicepMain renders main.bicep wiring every module in order
func bicepMain(ctx *GenerationContext, planned []plannedModule) string {
	req := ctx.Request
	f := &bicepFile{targetScope: "resourceGroup"}
	f.params = append(f.params,
		bicepParam{name: "location", typ: "string", def: bStr(req.Location), description: "Azure region for all resources"},
		bicepParam{name: "environment", typ: "string", def: bStr(req.Environment)},
		bicepParam{name: "tags", typ: "object", def: strMap(defaultTags(req))},
	)

	for _, p := range planned {
		std := standardFor(p.gen, FormatBicep)
		params := newObj().set("name", bStr(AzureName(p.spec.Type, p.spec.Name)))
		if std.Location {
			if p.spec.Location != "" {
				params.set("location", bStr(p.spec.Location))
			} else {
				params.set("location", bExpr("location"))
			}
		}
		if std.Tags {
			if len(p.spec.Tags) > 0 {
				params.set("tags", bCall{fn: "union", args: []bicepValue{bExpr("tags"), strMap(p.spec.Tags)}})
			} else {
				params.set("tags", bExpr("tags"))
			}
		}

		wired := map[string]bool{}
		for _, b := range ctx.Bindings(p.spec.Name) {
			if b.Literal != "" {
				params.set(b.Param, bStr(b.Literal))
				continue
			}
			wired[b.Target] = true
			params.set(b.Param, bExpr(fmt.Sprintf("%s.outputs.%s", ident(b.Target), b.Output)))
		}
		if ctx.WorkspaceBound(p.spec.Name) {
			wired[ctx.Workspace] = true
			params.set("logAnalyticsWorkspaceId", bExpr(ident(ctx.Workspace)+".outputs.id"))
		}

		body := newObj().
			set("name", bStr(truncate(p.spec.Name+"-deployment", 64))).
			set("params", params)

		var depends bArr
		for _, d := range p.explicit {
			if !wired[d] {
				depends = append(depends, bExpr(ident(d)))
			}
		}
		if len(depends) > 0 {
			body.set("dependsOn", depends)
		}
		f.module(ident(p.spec.Name), p.module.Path, body)
	}

	for _, p := range planned {
		f.output(ident(p.spec.Name)+"_id", "string", bExpr(ident(p.spec.Name)+".outputs.id"))
	}
	return f.String()
}

// terraformRoot renders main.tf, variables.tf and outputs.tf
func terraformRoot(ctx *GenerationContext, planned []plannedModule) (mainTF, variablesTF, outputsTF string) {
	req := ctx.Request

	mf := hclwrite.NewEmptyFile()
	root := mf.Body()

	tf := root.AppendNewBlock("terraform", nil).Body()
	setStr(tf, "required_version", ">= 1.5.0")
	tf.AppendNewBlock("required_providers", nil).Body().SetAttributeValue("azurerm", cty.ObjectVal(map[string]cty.Value{
		"source":  cty.StringVal("hashicorp/azurerm"),
		"version": cty.StringVal(azurermVersion),
	}))
	root.AppendNewline()

	provider := root.AppendNewBlock("provider", []string{"azurerm"}).Body()
	provider.AppendNewBlock("features", nil)
	setBool(provider, "storage_use_azuread", true)
	root.AppendNewline()

	rg := root.AppendNewBlock("resource", []string{"azurerm_resource_group", "this"}).Body()
	setVar(rg, "name", "resource_group_name")
	setVar(rg, "location", "location")
	setVar(rg, "tags", "tags")

	for _, p := range planned {
		root.AppendNewline()
		std := standardFor(p.gen, FormatTerraform)
		m := root.AppendNewBlock("module", []string{ident(p.spec.Name)}).Body()
		setStr(m, "source", "./"+path.Dir(p.module.Path))
		setStr(m, "name", AzureName(p.spec.Type, p.spec.Name))
		if std.ResourceGroup {
			m.SetAttributeTraversal("resource_group_name", traversal("azurerm_resource_group", "this", "name"))
		}
		if std.Location {
			if p.spec.Location != "" {
				setStr(m, "location", p.spec.Location)
			} else {
				setVar(m, "location", "location")
			}
		}
		if std.Tags {
			if len(p.spec.Tags) > 0 {
				m.SetAttributeRaw("tags", mergeTags(p.spec.Tags))
			} else {
				setVar(m, "tags", "tags")
			}
		}
		for _, b := range ctx.Bindings(p.spec.Name) {
			if b.Literal != "" {
				setStr(m, b.Variable, b.Literal)
				continue
			}
			m.SetAttributeTraversal(b.Variable, traversal("module", ident(b.Target), b.outputFor(FormatTerraform)))
		}
		if ctx.WorkspaceBound(p.spec.Name) {
			m.SetAttributeTraversal("log_analytics_workspace_id", traversal("module", ident(ctx.Workspace), "id"))
		}
		if len(p.module.DependsOn) > 0 {
			refs := make([]hcl.Traversal, len(p.module.DependsOn))
			for i, d := range p.module.DependsOn {
				refs[i] = traversal("module", ident(d))
			}
			m.SetAttributeRaw("depends_on", traversalList(refs))
		}
	}

	vf := hclwrite.NewEmptyFile()
	vars := vf.Body()
	loc := cty.StringVal(req.Location)
	declareVariable(vars, "location", stringType(), &loc, "Azure region for all resources")
	env := cty.StringVal(req.Environment)
	declareVariable(vars, "environment", stringType(), &env, "Deployment environment")
	rgName := cty.StringVal(fmt.Sprintf("rg-%s-%s", req.Name, req.Environment))
	declareVariable(vars, "resource_group_name", stringType(), &rgName, "Resource group that holds every module")
	tags := stringMapValue(defaultTags(req))
	declareVariable(vars, "tags", mapOfStringType(), &tags, "Tags applied to every resource")

	of := hclwrite.NewEmptyFile()
	outs := of.Body()
	declareOutput(outs, "resource_group_name", traversal("azurerm_resource_group", "this", "name"), false)
	for _, p := range planned {
		declareOutput(outs, ident(p.spec.Name)+"_id", traversal("module", ident(p.spec.Name), "id"), false)
	}

	return formatHCL(mf), formatHCL(vf), formatHCL(of)
}
