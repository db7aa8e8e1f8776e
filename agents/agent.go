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

// Package agents routes copilot requests to domain agents. Each agent wraps
// one service; the Router picks agents by regex rules and runs them
// concurrently.
package agents

import (
	"context"
	"regexp"
	"strings"
)

// Task is the work handed to an agent
type Task struct {
	Query     string            `json:"query"`
	Params    map[string]string `json:"params,omitempty"`
	TenantID  string            `json:"-"`
	UserID    string            `json:"-"`
	RequestID string            `json:"-"`
}

// Param returns a parameter or def when unset
func (t Task) Param(key, def string) string {
	if v := strings.TrimSpace(t.Params[key]); v != "" {
		return v
	}
	return def
}

// Output is what an agent produced
type Output struct {
	Summary string      `json:"summary"`
	Data    interface{} `json:"data,omitempty"`
}

// Agent handles tasks for one domain
type Agent interface {
	Name() string
	Description() string
	Handle(ctx context.Context, task Task) (*Output, error)
}

var (
	prodWord      = regexp.MustCompile(`(?i)\b(prod|production)\b`)
	stagingWord   = regexp.MustCompile(`(?i)\bstaging\b`)
	testWord      = regexp.MustCompile(`(?i)\btest\b`)
	terraformWord = regexp.MustCompile(`(?i)\bterraform\b`)
)

// environmentFrom picks the target environment mentioned in a query
func environmentFrom(query string) string {
	switch {
	case prodWord.MatchString(query):
		return "prod"
	case stagingWord.MatchString(query):
		return "staging"
	case testWord.MatchString(query):
		return "test"
	}
	return "dev"
}
