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
	"strings"
	"time"
)

// Baseline is a FedRAMP / NIST 800-53B control baseline
type Baseline string

const (
	BaselineLow      Baseline = "low"
	BaselineModerate Baseline = "moderate"
	BaselineHigh     Baseline = "high"
)

// Baselines lists the baselines from least to most demanding
var Baselines = []Baseline{BaselineLow, BaselineModerate, BaselineHigh}

func (b Baseline) rank() int {
	switch b {
	case BaselineLow:
		return 1
	case BaselineModerate:
		return 2
	case BaselineHigh:
		return 3
	}
	return 0
}

// IsValid returns true for low, moderate and high
func (b Baseline) IsValid() bool {
	return b.rank() > 0
}

// Includes reports whether a control first selected at control is part of b.
// Baselines are cumulative: high contains every moderate and low control.
func (b Baseline) Includes(control Baseline) bool {
	return control.IsValid() && control.rank() <= b.rank()
}

// ParseBaseline parses a baseline name, defaulting to moderate when empty
func ParseBaseline(s string) (Baseline, error) {
	if s == "" {
		return BaselineModerate, nil
	}
	b := Baseline(strings.ToLower(strings.TrimSpace(s)))
	if !b.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidBaseline, s)
	}
	return b, nil
}

// Severity ranks a finding
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists severities from most to least severe
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank orders severities; lower is more severe
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

// IsValid returns true for the four known severities
func (s Severity) IsValid() bool {
	return s.Rank() < 4
}

// RemediationDays is the FedRAMP window for correcting a finding
func (s Severity) RemediationDays() int {
	switch s {
	case SeverityCritical:
		return 15
	case SeverityHigh:
		return 30
	case SeverityMedium:
		return 90
	default:
		return 180
	}
}

// ParseSeverity parses a severity name
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
	return sev, nil
}

// ControlStatus is the outcome of evaluating one control
type ControlStatus string

const (
	StatusPassed      ControlStatus = "passed"
	StatusFailed      ControlStatus = "failed"
	StatusNotAssessed ControlStatus = "not_assessed"
)

// AssessmentStatus is the overall outcome of an assessment run
type AssessmentStatus string

const (
	// AssessmentCompleted means every collector succeeded
	AssessmentCompleted AssessmentStatus = "completed"
	// AssessmentPartial means at least one collector failed
	AssessmentPartial AssessmentStatus = "partial"
)

// AssessmentRequest selects what to assess
type AssessmentRequest struct {
	SubscriptionID string   `json:"subscription_id"`
	ResourceGroup  string   `json:"resource_group,omitempty"`
	Baseline       Baseline `json:"baseline,omitempty"`
	TenantID       string   `json:"-"`
	RequestedBy    string   `json:"-"`
}

// Finding is a failed check against a resource
type Finding struct {
	ID          string   `json:"id"`
	RuleID      string   `json:"rule_id"`
	ControlIDs  []string `json:"control_ids"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ResourceID  string   `json:"resource_id"`
	Remediation string   `json:"remediation"`
	Source      string   `json:"source"`
	EvidenceID  string   `json:"evidence_id,omitempty"`
}

// ControlResult is the status of one control in an assessment
type ControlResult struct {
	ControlID  string        `json:"control_id"`
	Family     string        `json:"family"`
	Title      string        `json:"title"`
	Status     ControlStatus `json:"status"`
	Checks     int           `json:"checks"`
	FindingIDs []string      `json:"finding_ids,omitempty"`
}

// FamilySummary rolls control results up to a family
type FamilySummary struct {
	Family      string  `json:"family"`
	Name        string  `json:"name"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	NotAssessed int     `json:"not_assessed"`
	Score       float64 `json:"score"`
}

// Assessment is the result of one assessment run
type Assessment struct {
	ID             string           `json:"id"`
	TenantID       string           `json:"tenant_id,omitempty"`
	SubscriptionID string           `json:"subscription_id"`
	ResourceGroup  string           `json:"resource_group,omitempty"`
	Baseline       Baseline         `json:"baseline"`
	Status         AssessmentStatus `json:"status"`
	Score          float64          `json:"score"`
	ResourceCount  int              `json:"resource_count"`
	Controls       []ControlResult  `json:"controls"`
	Findings       []Finding        `json:"findings"`
	FindingCounts  map[Severity]int `json:"finding_counts"`
	Families       []FamilySummary  `json:"families"`
	Evidence       []Evidence       `json:"evidence,omitempty"`
	Warnings       []string         `json:"warnings"`
	RequestedBy    string           `json:"requested_by,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    time.Time        `json:"completed_at"`
}

// Counts returns passed, failed and not assessed control totals
func (a *Assessment) Counts() (passed, failed, notAssessed int) {
	for _, c := range a.Controls {
		switch c.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		default:
			notAssessed++
		}
	}
	return passed, failed, notAssessed
}

// Control returns the result for one control
func (a *Assessment) Control(id string) (ControlResult, bool) {
	for _, c := range a.Controls {
		if c.ControlID == id {
			return c, true
		}
	}
	return ControlResult{}, false
}

// AssessmentSummary is the listing form of an Assessment
type AssessmentSummary struct {
	ID             string           `json:"id"`
	SubscriptionID string           `json:"subscription_id"`
	ResourceGroup  string           `json:"resource_group,omitempty"`
	Baseline       Baseline         `json:"baseline"`
	Status         AssessmentStatus `json:"status"`
	Score          float64          `json:"score"`
	Findings       int              `json:"findings"`
	CompletedAt    time.Time        `json:"completed_at"`
}

// Summary returns the listing form of the assessment
func (a *Assessment) Summary() AssessmentSummary {
	return AssessmentSummary{
		ID:             a.ID,
		SubscriptionID: a.SubscriptionID,
		ResourceGroup:  a.ResourceGroup,
		Baseline:       a.Baseline,
		Status:         a.Status,
		Score:          a.Score,
		Findings:       len(a.Findings),
		CompletedAt:    a.CompletedAt,
	}
}

// RemediationItem is one step of a remediation plan
type RemediationItem struct {
	Priority    int      `json:"priority"`
	FindingID   string   `json:"finding_id"`
	ControlIDs  []string `json:"control_ids"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	ResourceID  string   `json:"resource_id"`
	Remediation string   `json:"remediation"`
	DueInDays   int      `json:"due_in_days"`
}
