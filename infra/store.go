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
	"sort"
	"sync"
	"time"

	"copilot/platform/shared/logger"
)

// ResultStore keeps generation results in memory for a retention period.
// A background janitor purges expired results every cleanup interval.
type ResultStore struct {
	mu        sync.RWMutex
	results   map[string]*GenerationResult
	retention time.Duration
	now       func() time.Time
	log       *logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewResultStore starts a store. A cleanup interval <= 0 disables the
// janitor; expired results are still never returned.
func NewResultStore(retention, cleanupInterval time.Duration, log *logger.Logger) *ResultStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if log == nil {
		log = logger.New("infra")
	}
	s := &ResultStore{
		results:   make(map[string]*GenerationResult),
		retention: retention,
		now:       time.Now,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.janitor(cleanupInterval)
	} else {
		close(s.done)
	}
	return s
}

func (s *ResultStore) janitor(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.Purge(); n > 0 {
				s.log.Info("", "", "Purged expired generation results", map[string]interface{}{"purged": n})
			}
		case <-s.stop:
			return
		}
	}
}

// Stop ends the janitor and waits for it to exit
func (s *ResultStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Put stores a result and stamps its expiry
func (s *ResultStore) Put(r *GenerationResult) {
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = s.now().UTC()
	}
	r.ExpiresAt = r.GeneratedAt.Add(s.retention)
	s.mu.Lock()
	s.results[r.ID] = r
	s.mu.Unlock()
}

// Get returns a live result or ErrGenerationNotFound
func (s *ResultStore) Get(id string) (*GenerationResult, error) {
	s.mu.RLock()
	r, ok := s.results[id]
	s.mu.RUnlock()
	if !ok || !s.now().Before(r.ExpiresAt) {
		return nil, ErrGenerationNotFound
	}
	return r, nil
}

// List returns summaries of live results, newest first. An empty tenant
// lists every result.
func (s *ResultStore) List(tenantID string) []Summary {
	now := s.now()
	s.mu.RLock()
	out := make([]Summary, 0, len(s.results))
	for _, r := range s.results {
		if !now.Before(r.ExpiresAt) {
			continue
		}
		if tenantID != "" && r.TenantID != tenantID {
			continue
		}
		out = append(out, r.Summary())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].GeneratedAt.Equal(out[j].GeneratedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})
	return out
}

// Delete removes a result
func (s *ResultStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; !ok {
		return ErrGenerationNotFound
	}
	delete(s.results, id)
	return nil
}

// Purge drops expired results and returns how many were removed
func (s *ResultStore) Purge() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.results {
		if !now.Before(r.ExpiresAt) {
			delete(s.results, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored results including expired ones
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
