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
	"sort"
	"sync"
)

// ListOptions filters assessment listings
type ListOptions struct {
	TenantID       string
	SubscriptionID string
	Limit          int
	Offset         int
}

// Repository persists assessments
type Repository interface {
	SaveAssessment(ctx context.Context, a *Assessment) error
	GetAssessment(ctx context.Context, id string) (*Assessment, error)
	ListAssessments(ctx context.Context, opts ListOptions) ([]AssessmentSummary, int, error)
	LatestAssessment(ctx context.Context, tenantID, subscriptionID string) (*Assessment, error)
}

// MemoryRepository is an in-process Repository
type MemoryRepository struct {
	mu          sync.RWMutex
	assessments map[string]*Assessment
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{assessments: make(map[string]*Assessment)}
}

func (r *MemoryRepository) SaveAssessment(_ context.Context, a *Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assessments[a.ID] = a
	return nil
}

func (r *MemoryRepository) GetAssessment(_ context.Context, id string) (*Assessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assessments[id]
	if !ok {
		return nil, ErrAssessmentNotFound
	}
	return a, nil
}

// matching returns assessments for opts, newest first
func (r *MemoryRepository) matching(tenantID, subscriptionID string) []*Assessment {
	var out []*Assessment
	for _, a := range r.assessments {
		if tenantID != "" && a.TenantID != tenantID {
			continue
		}
		if subscriptionID != "" && a.SubscriptionID != subscriptionID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	return out
}

func (r *MemoryRepository) ListAssessments(_ context.Context, opts ListOptions) ([]AssessmentSummary, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.matching(opts.TenantID, opts.SubscriptionID)
	total := len(all)

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := make([]AssessmentSummary, 0, end-start)
	for _, a := range all[start:end] {
		out = append(out, a.Summary())
	}
	return out, total, nil
}

func (r *MemoryRepository) LatestAssessment(_ context.Context, tenantID, subscriptionID string) (*Assessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.matching(tenantID, subscriptionID)
	if len(all) == 0 {
		return nil, ErrAssessmentNotFound
	}
	return all[0], nil
}
