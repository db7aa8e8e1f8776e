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
	"regexp"
	"strconv"
	"strings"
)

// bicepValue is a node in the Bicep expression tree written by bicepFile
type bicepValue interface {
	writeBicep(b *strings.Builder, indent int)
}

// bStr is a quoted string literal
type bStr string

// bExpr is emitted verbatim
type bExpr string

type bBool bool

type bInt int

type bArr []bicepValue

// bCall is a function call such as union(tags, {...})
type bCall struct {
	fn   string
	args []bicepValue
}

// bObj is an object with keys kept in insertion order
type bObj struct {
	keys []string
	vals map[string]bicepValue
}

func newObj() *bObj {
	return &bObj{vals: make(map[string]bicepValue)}
}

// set adds or replaces a key and returns the object for chaining
func (o *bObj) set(key string, v bicepValue) *bObj {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
	return o
}

// obj returns the nested object under key, creating it when absent
func (o *bObj) obj(key string) *bObj {
	if existing, ok := o.vals[key].(*bObj); ok {
		return existing
	}
	child := newObj()
	o.set(key, child)
	return child
}

func (o *bObj) get(key string) (bicepValue, bool) {
	v, ok := o.vals[key]
	return v, ok
}

func pad(b *strings.Builder, indent int) {
	b.WriteString(strings.Repeat("  ", indent))
}

var bicepEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "${", `\${`, "\n", `\n`)

func (s bStr) writeBicep(b *strings.Builder, _ int) {
	b.WriteByte('\'')
	b.WriteString(bicepEscaper.Replace(string(s)))
	b.WriteByte('\'')
}

func (e bExpr) writeBicep(b *strings.Builder, _ int) { b.WriteString(string(e)) }

func (v bBool) writeBicep(b *strings.Builder, _ int) { b.WriteString(strconv.FormatBool(bool(v))) }

func (v bInt) writeBicep(b *strings.Builder, _ int) { b.WriteString(strconv.Itoa(int(v))) }

func (a bArr) writeBicep(b *strings.Builder, indent int) {
	if len(a) == 0 {
		b.WriteString("[]")
		return
	}
	b.WriteString("[\n")
	for _, item := range a {
		pad(b, indent+1)
		item.writeBicep(b, indent+1)
		b.WriteByte('\n')
	}
	pad(b, indent)
	b.WriteByte(']')
}

func (c bCall) writeBicep(b *strings.Builder, indent int) {
	b.WriteString(c.fn)
	b.WriteByte('(')
	for i, a := range c.args {
		if i > 0 {
			b.WriteString(", ")
		}
		a.writeBicep(b, indent)
	}
	b.WriteByte(')')
}

var bicepIdentKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (o *bObj) writeBicep(b *strings.Builder, indent int) {
	if len(o.keys) == 0 {
		b.WriteString("{}")
		return
	}
	b.WriteString("{\n")
	for _, k := range o.keys {
		pad(b, indent+1)
		if bicepIdentKey.MatchString(k) {
			b.WriteString(k)
		} else {
			bStr(k).writeBicep(b, 0)
		}
		b.WriteString(": ")
		o.vals[k].writeBicep(b, indent+1)
		b.WriteByte('\n')
	}
	pad(b, indent)
	b.WriteByte('}')
}

// strMap renders a string map as an object with sorted keys
func strMap(m map[string]string) *bObj {
	o := newObj()
	for _, k := range sortedKeys(m) {
		o.set(k, bStr(m[k]))
	}
	return o
}

type bicepParam struct {
	name        string
	typ         string
	def         bicepValue
	description string
	secure      bool
}

type bicepDecl struct {
	keyword  string // resource or module
	symbol   string
	target   string // resource type@api or module path
	existing bool
	body     *bObj
}

type bicepOutput struct {
	name  string
	typ   string
	value bicepValue
}

// bicepFile is a whole .bicep document
type bicepFile struct {
	targetScope string
	params      []bicepParam
	decls       []bicepDecl
	outputs     []bicepOutput
}

func (f *bicepFile) param(name, typ string, def bicepValue) {
	f.params = append(f.params, bicepParam{name: name, typ: typ, def: def})
}

func (f *bicepFile) hasParam(name string) bool {
	for _, p := range f.params {
		if p.name == name {
			return true
		}
	}
	return false
}

func (f *bicepFile) resource(symbol, target string, body *bObj) {
	f.decls = append(f.decls, bicepDecl{keyword: "resource", symbol: symbol, target: target, body: body})
}

func (f *bicepFile) existing(symbol, target string, body *bObj) {
	f.decls = append(f.decls, bicepDecl{keyword: "resource", symbol: symbol, target: target, existing: true, body: body})
}

func (f *bicepFile) module(symbol, path string, body *bObj) {
	f.decls = append(f.decls, bicepDecl{keyword: "module", symbol: symbol, target: path, body: body})
}

func (f *bicepFile) output(name, typ string, value bicepValue) {
	f.outputs = append(f.outputs, bicepOutput{name: name, typ: typ, value: value})
}

func (f *bicepFile) String() string {
	var b strings.Builder

	if f.targetScope != "" {
		b.WriteString("targetScope = ")
		bStr(f.targetScope).writeBicep(&b, 0)
		b.WriteString("\n\n")
	}

	for _, p := range f.params {
		if p.description != "" {
			b.WriteString("@description(")
			bStr(p.description).writeBicep(&b, 0)
			b.WriteString(")\n")
		}
		if p.secure {
			b.WriteString("@secure()\n")
		}
		b.WriteString("param ")
		b.WriteString(p.name)
		b.WriteByte(' ')
		b.WriteString(p.typ)
		if p.def != nil {
			b.WriteString(" = ")
			p.def.writeBicep(&b, 0)
		}
		b.WriteByte('\n')
	}

	for _, d := range f.decls {
		b.WriteByte('\n')
		b.WriteString(d.keyword)
		b.WriteByte(' ')
		b.WriteString(d.symbol)
		b.WriteByte(' ')
		bStr(d.target).writeBicep(&b, 0)
		if d.existing {
			b.WriteString(" existing")
		}
		b.WriteString(" = ")
		d.body.writeBicep(&b, 0)
		b.WriteByte('\n')
	}

	if len(f.outputs) > 0 {
		b.WriteByte('\n')
	}
	for _, o := range f.outputs {
		b.WriteString("output ")
		b.WriteString(o.name)
		b.WriteByte(' ')
		b.WriteString(o.typ)
		b.WriteString(" = ")
		o.value.writeBicep(&b, 0)
		b.WriteByte('\n')
	}
	return b.String()
}
