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
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"copilot/platform/shared/cache"
	"copilot/platform/shared/logger"
)

// latestTTL bounds how long a cached latest assessment is served
const latestTTL = time.Hour

// Service runs assessments and serves their results
type Service struct {
	assessor *Assessor
	repo     Repository
	cache    cache.Cache
	log      *logger.Logger
}

// NewService creates a compliance service. c may be nil.
func NewService(assessor *Assessor, repo Repository, c cache.Cache, log *logger.Logger) *Service {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if log == nil {
		log = logger.New("compliance")
	}
	return &Service{assessor: assessor, repo: repo, cache: c, log: log}
}

// Catalog returns the control catalog
func (s *Service) Catalog() *Catalog {
	return s.assessor.Catalog()
}

func latestKey(tenantID, subscriptionID string) string {
	return fmt.Sprintf("compliance:latest:%s:%s", tenantID, subscriptionID)
}

// RunAssessment assesses a scope and stores the result
func (s *Service) RunAssessment(ctx context.Context, req AssessmentRequest) (*Assessment, error) {
	a, err := s.assessor.Assess(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveAssessment(ctx, a); err != nil {
		return nil, fmt.Errorf("store assessment: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, latestKey(a.TenantID, a.SubscriptionID), a, latestTTL); err != nil {
			s.log.Warn(a.TenantID, "", "Failed to cache latest assessment", map[string]interface{}{"error": err.Error()})
		}
	}
	return a, nil
}

// GetAssessment returns an assessment visible to tenantID. An empty tenant
// sees every assessment.
func (s *Service) GetAssessment(ctx context.Context, tenantID, id string) (*Assessment, error) {
	a, err := s.repo.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenantID != "" && a.TenantID != tenantID {
		return nil, ErrAssessmentNotFound
	}
	return a, nil
}

// ListAssessments lists assessment summaries
func (s *Service) ListAssessments(ctx context.Context, opts ListOptions) ([]AssessmentSummary, int, error) {
	return s.repo.ListAssessments(ctx, opts)
}

// LatestAssessment returns the newest assessment of a subscription,
// served from cache when possible
func (s *Service) LatestAssessment(ctx context.Context, tenantID, subscriptionID string) (*Assessment, error) {
	key := latestKey(tenantID, subscriptionID)
	if s.cache != nil {
		var cached Assessment
		ok, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn(tenantID, "", "Failed to read cached latest assessment", map[string]interface{}{"error": err.Error()})
		} else if ok {
			return &cached, nil
		}
	}
	a, err := s.repo.LatestAssessment(ctx, tenantID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, a, latestTTL); err != nil {
			s.log.Warn(tenantID, "", "Failed to cache latest assessment", map[string]interface{}{"error": err.Error()})
		}
	}
	return a, nil
}

// Findings returns the findings of an assessment, optionally only those of
// one severity
func (s *Service) Findings(ctx context.Context, tenantID, id string, severity Severity) ([]Finding, error) {
	a, err := s.GetAssessment(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if severity == "" {
		return a.Findings, nil
	}
	if !severity.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeverity, severity)
	}
	var out []Finding
	for _, f := range a.Findings {
		if f.Severity == severity {
			out = append(out, f)
		}
	}
	return out, nil
}

// RemediationPlan orders the findings of an assessment by severity, then
// control, then resource
func (s *Service) RemediationPlan(ctx context.Context, tenantID, id string) ([]RemediationItem, error) {
	a, err := s.GetAssessment(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return BuildRemediationPlan(a.Findings), nil
}

// BuildRemediationPlan turns findings into prioritized remediation steps
func BuildRemediationPlan(findings []Finding) []RemediationItem {
	sorted := append([]Finding(nil), findings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		ca, cb := firstControl(a), firstControl(b)
		if ca != cb {
			return controlLess(ca, cb)
		}
		return a.ResourceID < b.ResourceID
	})

	out := make([]RemediationItem, 0, len(sorted))
	for i, f := range sorted {
		out = append(out, RemediationItem{
			Priority:    i + 1,
			FindingID:   f.ID,
			ControlIDs:  f.ControlIDs,
			Severity:    f.Severity,
			Title:       f.Title,
			ResourceID:  f.ResourceID,
			Remediation: f.Remediation,
			DueInDays:   f.Severity.RemediationDays(),
		})
	}
	return out
}

func firstControl(f Finding) string {
	if len(f.ControlIDs) == 0 {
		return ""
	}
	return f.ControlIDs[0]
}

// IsNotFound reports whether err means a missing control or assessment
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAssessmentNotFound) || errors.Is(err, ErrControlNotFound)
}
