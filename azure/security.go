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

package azure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const securityAPIVersion = "2020-01-01"

// Assessment status codes reported by Defender for Cloud
const (
	AssessmentHealthy       = "Healthy"
	AssessmentUnhealthy     = "Unhealthy"
	AssessmentNotApplicable = "NotApplicable"
)

// SecurityAssessment is one Defender for Cloud recommendation evaluated
// against a resource
type SecurityAssessment struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Status      string   `json:"status"`
	Cause       string   `json:"cause,omitempty"`
	Severity    string   `json:"severity"`
	ResourceID  string   `json:"resource_id"`
	Description string   `json:"description,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

type assessmentList struct {
	Value []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Properties struct {
			DisplayName string `json:"displayName"`
			Status      struct {
				Code        string `json:"code"`
				Cause       string `json:"cause"`
				Description string `json:"description"`
			} `json:"status"`
			ResourceDetails struct {
				ID       string `json:"id"`
				LegacyID string `json:"Id"`
			} `json:"resourceDetails"`
			Metadata struct {
				DisplayName            string   `json:"displayName"`
				Severity               string   `json:"severity"`
				Description            string   `json:"description"`
				RemediationDescription string   `json:"remediationDescription"`
				Categories             []string `json:"categories"`
			} `json:"metadata"`
		} `json:"properties"`
	} `json:"value"`
	NextLink string `json:"nextLink"`
}

// ListSecurityAssessments returns every Defender assessment of a
// subscription with its metadata expanded
func (c *Client) ListSecurityAssessments(ctx context.Context, subscriptionID string) ([]SecurityAssessment, error) {
	if err := (Scope{SubscriptionID: subscriptionID}).Validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("api-version", securityAPIVersion)
	q.Set("$expand", "metadata")
	next := c.url(fmt.Sprintf("/subscriptions/%s/providers/Microsoft.Security/assessments?%s", subscriptionID, q.Encode()))

	var out []SecurityAssessment
	for page := 0; next != ""; page++ {
		if page == maxPages {
			return nil, ErrTooManyPages
		}
		var resp assessmentList
		if err := c.do(ctx, http.MethodGet, next, nil, &resp); err != nil {
			return nil, err
		}
		for _, v := range resp.Value {
			p := v.Properties
			resourceID := p.ResourceDetails.ID
			if resourceID == "" {
				resourceID = p.ResourceDetails.LegacyID
			}
			name := p.DisplayName
			if name == "" {
				name = p.Metadata.DisplayName
			}
			out = append(out, SecurityAssessment{
				ID:          v.ID,
				Name:        v.Name,
				DisplayName: name,
				Status:      p.Status.Code,
				Cause:       p.Status.Cause,
				Severity:    p.Metadata.Severity,
				ResourceID:  resourceID,
				Description: p.Metadata.Description,
				Remediation: p.Metadata.RemediationDescription,
				Categories:  p.Metadata.Categories,
			})
		}
		next = resp.NextLink
	}
	return out, nil
}
