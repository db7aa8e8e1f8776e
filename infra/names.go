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
	"strings"
	"unicode"
)

var validName = regexp.MustCompile(`^[a-z][a-z0-9-]{0,38}[a-z0-9]$|^[a-z]$`)

// ident converts a resource name into a Bicep/Terraform identifier
func ident(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// snake converts a camelCase output name to snake_case
func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AzureName returns the deployable resource name, applying the naming
// rules of resource types that are stricter than the request name.
func AzureName(t ResourceType, name string) string {
	switch t {
	case TypeStorageAccount:
		return truncate(alnum(strings.ToLower(name)), 24)
	case TypeContainerRegistry:
		return truncate(alnum(name), 50)
	case TypeKeyVault:
		return strings.TrimRight(truncate(name, 24), "-")
	case TypeCosmosDB:
		return strings.TrimRight(truncate(strings.ToLower(name), 44), "-")
	case TypeSQLServer:
		return strings.TrimRight(truncate(strings.ToLower(name), 63), "-")
	}
	return name
}

func alnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
