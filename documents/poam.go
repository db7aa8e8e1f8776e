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
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"copilot/platform/compliance"
)

// POAMStatusOpen is the status of every generated POA&M item
const POAMStatusOpen = "open"

// POAMItem is one tracked weakness
type POAMItem struct {
	ID          string              `json:"id"`
	FindingID   string              `json:"finding_id"`
	ControlIDs  []string            `json:"control_ids"`
	Weakness    string              `json:"weakness"`
	Description string              `json:"description,omitempty"`
	Severity    compliance.Severity `json:"severity"`
	ResourceID  string              `json:"resource_id"`
	Source      string              `json:"source"`
	Remediation string              `json:"remediation,omitempty"`
	DetectedAt  time.Time           `json:"detected_at"`
	DueAt       time.Time           `json:"due_at"`
	Status      string              `json:"status"`
}

// BuildPOAM creates one item per open finding in remediation order. Due
// dates follow the FedRAMP windows counted from the assessment date.
func BuildPOAM(a *compliance.Assessment) []POAMItem {
	byID := make(map[string]compliance.Finding, len(a.Findings))
	for _, f := range a.Findings {
		byID[f.ID] = f
	}
	detected := a.CompletedAt.UTC()

	plan := compliance.BuildRemediationPlan(a.Findings)
	items := make([]POAMItem, 0, len(plan))
	for _, step := range plan {
		f := byID[step.FindingID]
		items = append(items, POAMItem{
			ID:          fmt.Sprintf("POAM-%03d", step.Priority),
			FindingID:   f.ID,
			ControlIDs:  f.ControlIDs,
			Weakness:    f.Title,
			Description: f.Description,
			Severity:    f.Severity,
			ResourceID:  f.ResourceID,
			Source:      f.Source,
			Remediation: f.Remediation,
			DetectedAt:  detected,
			DueAt:       detected.AddDate(0, 0, step.DueInDays),
			Status:      POAMStatusOpen,
		})
	}
	return items
}

var poamColumns = []string{
	"POA&M ID", "Controls", "Weakness Name", "Weakness Description", "Asset Identifier",
	"Severity", "Detection Source", "Original Detection Date", "Scheduled Completion Date",
	"Remediation Plan", "Status", "Finding ID",
}

// RenderPOAMCSV renders POA&M items as CSV with a header row
func RenderPOAMCSV(items []POAMItem) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(poamColumns); err != nil {
		return nil, err
	}
	for _, it := range items {
		rec := []string{
			it.ID,
			strings.Join(it.ControlIDs, "; "),
			it.Weakness,
			it.Description,
			it.ResourceID,
			string(it.Severity),
			it.Source,
			it.DetectedAt.Format("2006-01-02"),
			it.DueAt.Format("2006-01-02"),
			it.Remediation,
			it.Status,
			it.FindingID,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("render poam csv: %w", err)
	}
	return buf.Bytes(), nil
}
