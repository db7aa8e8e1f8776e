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

package documents

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"copilot/platform/compliance"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("documents").Funcs(template.FuncMap{
	"upper":    func(v interface{}) string { return strings.ToUpper(fmt.Sprint(v)) },
	"join":     strings.Join,
	"cell":     cell,
	"pct":      func(f float64) string { return fmt.Sprintf("%.2f%%", f) },
	"date":     func(t time.Time) string { return t.UTC().Format("2006-01-02") },
	"datetime": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}).ParseFS(templateFS, "templates/*.tmpl"))

// cell makes a value safe inside a Markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

// view is the data shared by every template
type view struct {
	System      SystemInfo
	Overall     Impact
	Baseline    compliance.Baseline
	Scope       string
	Assessment  *compliance.Assessment
	Generated   time.Time
	Passed      int
	Failed      int
	NotAssessed int
}

func newView(sys SystemInfo, a *compliance.Assessment, now time.Time) view {
	passed, failed, notAssessed := a.Counts()
	scope := a.SubscriptionID
	if a.ResourceGroup != "" {
		scope += "/" + a.ResourceGroup
	}
	return view{
		System:      sys,
		Overall:     sys.Categorization.Overall(),
		Baseline:    a.Baseline,
		Scope:       scope,
		Assessment:  a,
		Generated:   now.UTC(),
		Passed:      passed,
		Failed:      failed,
		NotAssessed: notAssessed,
	}
}

func execute(name string, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

type sspControl struct {
	ID             string
	Title          string
	Status         string
	Implementation string
}

// RenderSSP renders the system security plan. Every control in the
// assessment baseline gets a row; narratives come from the assessment
// result or, when not assessed, from the catalog guidance.
func RenderSSP(sys SystemInfo, catalog *compliance.Catalog, a *compliance.Assessment, now time.Time) ([]byte, error) {
	data := struct {
		view
		Controls []sspControl
	}{view: newView(sys, a, now)}

	for _, r := range a.Controls {
		row := sspControl{ID: r.ControlID, Title: r.Title}
		switch r.Status {
		case compliance.StatusPassed:
			row.Status = "Implemented"
			row.Implementation = fmt.Sprintf("Verified by %d automated check(s).", r.Checks)
		case compliance.StatusFailed:
			row.Status = "Partially implemented"
			row.Implementation = fmt.Sprintf("%d open finding(s): %s. Tracked in the POA&M.",
				len(r.FindingIDs), strings.Join(r.FindingIDs, ", "))
		default:
			row.Status = "Not assessed"
			row.Implementation = "Requires manual review."
			if catalog != nil {
				if c, err := catalog.Control(r.ControlID); err == nil && c.Guidance != "" {
					row.Implementation = "Requires manual review. " + c.Guidance
				}
			}
		}
		data.Controls = append(data.Controls, row)
	}
	return execute("ssp.md.tmpl", data)
}

type severityCount struct {
	Severity compliance.Severity
	Count    int
}

// RenderSAR renders the security assessment report
func RenderSAR(sys SystemInfo, a *compliance.Assessment, now time.Time) ([]byte, error) {
	data := struct {
		view
		Severities []severityCount
	}{view: newView(sys, a, now)}
	for _, s := range compliance.Severities {
		data.Severities = append(data.Severities, severityCount{Severity: s, Count: a.FindingCounts[s]})
	}
	return execute("sar.md.tmpl", data)
}

// RenderPOAMMarkdown renders POA&M items as Markdown
func RenderPOAMMarkdown(sys SystemInfo, a *compliance.Assessment, items []POAMItem, now time.Time) ([]byte, error) {
	data := struct {
		view
		Items []POAMItem
	}{view: newView(sys, a, now), Items: items}
	return execute("poam.md.tmpl", data)
}
