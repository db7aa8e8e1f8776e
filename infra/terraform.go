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
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

const azurermVersion = "~> 3.100"

func traversal(root string, attrs ...string) hcl.Traversal {
	t := hcl.Traversal{hcl.TraverseRoot{Name: root}}
	for _, a := range attrs {
		t = append(t, hcl.TraverseAttr{Name: a})
	}
	return t
}

// setVar sets attr = var.<name>
func setVar(body *hclwrite.Body, attr, name string) {
	body.SetAttributeTraversal(attr, traversal("var", name))
}

func setStr(body *hclwrite.Body, attr, v string) {
	body.SetAttributeValue(attr, cty.StringVal(v))
}

func setBool(body *hclwrite.Body, attr string, v bool) {
	body.SetAttributeValue(attr, cty.BoolVal(v))
}

func setInt(body *hclwrite.Body, attr string, v int) {
	body.SetAttributeValue(attr, cty.NumberIntVal(int64(v)))
}

func setStrList(body *hclwrite.Body, attr string, vs ...string) {
	vals := make([]cty.Value, len(vs))
	for i, v := range vs {
		vals[i] = cty.StringVal(v)
	}
	body.SetAttributeValue(attr, cty.ListVal(vals))
}

func stringMapValue(m map[string]string) cty.Value {
	if len(m) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	vals := make(map[string]cty.Value, len(m))
	for k, v := range m {
		vals[k] = cty.StringVal(v)
	}
	return cty.MapVal(vals)
}

// declareVariable appends variable "<name>" { type = <typ> [default = def] }
func declareVariable(body *hclwrite.Body, name string, typ hclwrite.Tokens, def *cty.Value, description string) {
	v := body.AppendNewBlock("variable", []string{name}).Body()
	if description != "" {
		setStr(v, "description", description)
	}
	v.SetAttributeRaw("type", typ)
	if def != nil {
		v.SetAttributeValue("default", *def)
	}
}

func stringType() hclwrite.Tokens {
	return hclwrite.TokensForIdentifier("string")
}

func mapOfStringType() hclwrite.Tokens {
	return hclwrite.TokensForFunctionCall("map", hclwrite.TokensForIdentifier("string"))
}

// declareOutput appends output "<name>" { value = <ref> }
func declareOutput(body *hclwrite.Body, name string, ref hcl.Traversal, sensitive bool) {
	o := body.AppendNewBlock("output", []string{name}).Body()
	o.SetAttributeTraversal("value", ref)
	if sensitive {
		setBool(o, "sensitive", true)
	}
}

// mergeTags renders merge(var.tags, {k = v})
func mergeTags(extra map[string]string) hclwrite.Tokens {
	return hclwrite.TokensForFunctionCall("merge",
		hclwrite.TokensForTraversal(traversal("var", "tags")),
		hclwrite.TokensForValue(stringMapValue(extra)),
	)
}

// traversalList renders [a.b, c.d]
func traversalList(refs []hcl.Traversal) hclwrite.Tokens {
	items := make([]hclwrite.Tokens, len(refs))
	for i, r := range refs {
		items[i] = hclwrite.TokensForTraversal(r)
	}
	return hclwrite.TokensForTuple(items)
}

func formatHCL(f *hclwrite.File) string {
	return string(hclwrite.Format(f.Bytes()))
}
