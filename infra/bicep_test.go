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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func render(v bicepValue) string {
	var b strings.Builder
	v.writeBicep(&b, 0)
	return b.String()
}

func TestBicepValues(t *testing.T) {
	assert.Equal(t, `'it\'s \${x}'`, render(bStr("it's ${x}")))
	assert.Equal(t, "true", render(bBool(true)))
	assert.Equal(t, "42", render(bInt(42)))
	assert.Equal(t, "[]", render(bArr{}))
	assert.Equal(t, "{}", render(newObj()))
	assert.Equal(t, "union(tags, {})", render(bCall{fn: "union", args: []bicepValue{bExpr("tags"), newObj()}}))

	obj := newObj().
		set("name", bExpr("name")).
		set("aad-enabled", bStr("True")).
		set("ports", strArr([]string{"22"}))
	obj.obj("sku").set("name", bStr("Standard"))

	want := "{\n" +
		"  name: name\n" +
		"  'aad-enabled': 'True'\n" +
		"  ports: [\n" +
		"    '22'\n" +
		"  ]\n" +
		"  sku: {\n" +
		"    name: 'Standard'\n" +
		"  }\n" +
		"}"
	assert.Equal(t, want, render(obj))
}

func TestBicepObj_SetReplacesInPlace(t *testing.T) {
	o := newObj().set("a", bInt(1)).set("b", bInt(2)).set("a", bInt(3))
	assert.Equal(t, []string{"a", "b"}, o.keys)
	v, ok := o.get("a")
	assert.True(t, ok)
	assert.Equal(t, bInt(3), v)
}

func TestBicepFile_String(t *testing.T) {
	f := &bicepFile{targetScope: "resourceGroup"}
	f.params = append(f.params, bicepParam{name: "location", typ: "string", def: bStr("eastus"), description: "Region"})
	f.resource("vnet", "Microsoft.Network/virtualNetworks@2023-05-01", newObj().set("name", bStr("v")))
	f.output("id", "string", bExpr("vnet.id"))

	out := f.String()
	assert.True(t, strings.HasPrefix(out, "targetScope = 'resourceGroup'\n\n"))
	assert.Contains(t, out, "@description('Region')\nparam location string = 'eastus'\n")
	assert.Contains(t, out, "resource vnet 'Microsoft.Network/virtualNetworks@2023-05-01' = {\n  name: 'v'\n}\n")
	assert.Contains(t, out, "output id string = vnet.id\n")
	assert.True(t, f.hasParam("location"))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "app_web_snet", ident("app-web-snet"))
	assert.Equal(t, "_1st", ident("1st"))
	assert.Equal(t, "connection_string", snake("connectionString"))
	assert.Equal(t, "appst", AzureName(TypeStorageAccount, "app-st"))
	assert.Equal(t, "averyveryverylongstorage", AzureName(TypeStorageAccount, "a-very-very-very-long-storage-name"))
	assert.Equal(t, "app-kv", AzureName(TypeKeyVault, "app-kv"))
	assert.Equal(t, "app-vnet", AzureName(TypeVirtualNetwork, "app-vnet"))
}
