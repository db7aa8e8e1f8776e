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
	"context"
	"sort"
	"sync"
)

// ListOptions filters document listings
type ListOptions struct {
	TenantID     string
	Type         Type
	AssessmentID string
	Limit        int
	Offset       int
}

// Repository persists document metadata
type Repository interface {
	Save(ctx context.Context, d *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, opts ListOptions) ([]Document, int, error)
	Delete(ctx context.Context, id string) error
}

// MemoryRepository is an in-process Repository
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]Document)}
}

func (r *MemoryRepository) Save(_ context.Context, d *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[d.ID] = *d
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) List(_ context.Context, opts ListOptions) ([]Document, int, error) {
	r.mu.RLock()
	var all []Document
	for _, d := range r.docs {
		if opts.TenantID != "" && d.TenantID != opts.TenantID {
			continue
		}
		if opts.Type != "" && d.Type != opts.Type {
			continue
		}
		if opts.AssessmentID != "" && d.AssessmentID != opts.AssessmentID {
			continue
		}
		all = append(all, d)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
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
	return all[start:end], total, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(r.docs, id)
	return nil
}
