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

package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"copilot/platform/compliance"
)

// ComplianceRunner runs and reads assessments
type ComplianceRunner interface {
	Catalog() *compliance.Catalog
	RunAssessment(ctx context.Context, req compliance.AssessmentRequest) (*compliance.Assessment, error)
	LatestAssessment(ctx context.Context, tenantID, subscriptionID string) (*compliance.Assessment, error)
}

var (
	controlID    = regexp.MustCompile(`(?i)\b([a-z]{2}-\d{1,2})\b`)
	baselineWord = regexp.MustCompile(`(?i)\b(low|moderate|high)\b`)
	latestWord   = regexp.MustCompile(`(?i)\b(latest|last|previous|recent)\b`)
)

// ComplianceAgent explains controls and runs assessments
type ComplianceAgent struct {
	svc                 ComplianceRunner
	defaultSubscription string
}

// NewComplianceAgent creates the agent. defaultSubscription is assessed
// when a task names none.
func NewComplianceAgent(svc ComplianceRunner, defaultSubscription string) *ComplianceAgent {
	return &ComplianceAgent{svc: svc, defaultSubscription: defaultSubscription}
}

func (a *ComplianceAgent) Name() string { return "compliance" }

func (a *ComplianceAgent) Description() string {
	return "Assesses Azure resources against NIST 800-53 and FedRAMP baselines"
}

func (a *ComplianceAgent) Handle(ctx context.Context, task Task) (*Output, error) {
	if m := controlID.FindString(task.Query); m != "" && task.Param("subscription_id", "") == "" {
		if c, err := a.svc.Catalog().Control(m); err == nil {
			return &Output{
				Summary: fmt.Sprintf("%s %s: %s", c.ID, c.Title, c.Description),
				Data:    c,
			}, nil
		}
	}

	sub := task.Param("subscription_id", a.defaultSubscription)
	if sub == "" {
		return nil, fmt.Errorf("%w: subscription_id", ErrMissingParameter)
	}

	if latestWord.MatchString(task.Query) {
		latest, err := a.svc.LatestAssessment(ctx, task.TenantID, sub)
		if err != nil {
			return nil, err
		}
		return assessmentOutput("Latest assessment", latest), nil
	}

	baseline := task.Param("baseline", strings.ToLower(baselineWord.FindString(task.Query)))
	b, err := compliance.ParseBaseline(baseline)
	if err != nil {
		return nil, err
	}
	assessment, err := a.svc.RunAssessment(ctx, compliance.AssessmentRequest{
		SubscriptionID: sub,
		ResourceGroup:  task.Param("resource_group", ""),
		Baseline:       b,
		TenantID:       task.TenantID,
		RequestedBy:    task.UserID,
	})
	if err != nil {
		return nil, err
	}
	return assessmentOutput("Assessment", assessment), nil
}

func assessmentOutput(label string, a *compliance.Assessment) *Output {
	passed, failed, notAssessed := a.Counts()
	return &Output{
		Summary: fmt.Sprintf("%s %s (%s baseline): score %.1f%%, %d passed, %d failed, %d not assessed, %d findings",
			label, a.ID, a.Baseline, a.Score, passed, failed, notAssessed, len(a.Findings)),
		Data: a.Summary(),
	}
}
