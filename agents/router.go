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
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"copilot/platform/shared/logger"
	"copilot/platform/shared/metrics"
)

// Dispatch statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// DispatchRequest asks the copilot a question. A named Agent bypasses routing.
type DispatchRequest struct {
	Query  string            `json:"query"`
	Agent  string            `json:"agent,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// Result is the outcome of one agent in a dispatch
type Result struct {
	Agent      string      `json:"agent"`
	Status     string      `json:"status"`
	Summary    string      `json:"summary,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMS float64     `json:"duration_ms"`
}

// DispatchResponse holds the results in routing order
type DispatchResponse struct {
	Query   string   `json:"query"`
	Routed  []string `json:"routed"`
	Results []Result `json:"results"`
}

// Info describes a registered agent
type Info struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Patterns    []string `json:"patterns,omitempty"`
}

// Router matches queries to agents and runs them
type Router struct {
	agents      map[string]Agent
	order       []string
	rules       []compiledRule
	maxParallel int
	timeout     time.Duration
	log         *logger.Logger
}

// NewRouter builds a router over agents. Rules for agents that are not
// registered are dropped with a warning. A nil cfg uses the defaults.
func NewRouter(cfg *Config, log *logger.Logger, agents ...Agent) (*Router, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.New("agents")
	}
	compiled, err := cfg.compile()
	if err != nil {
		return nil, err
	}

	r := &Router{
		agents:      make(map[string]Agent, len(agents)),
		maxParallel: cfg.Spec.Execution.MaxParallel(),
		timeout:     cfg.Spec.Execution.Timeout(),
		log:         log,
	}
	for _, a := range agents {
		if _, dup := r.agents[a.Name()]; dup {
			return nil, fmt.Errorf("%w: agent %q registered twice", ErrInvalidConfig, a.Name())
		}
		r.agents[a.Name()] = a
		r.order = append(r.order, a.Name())
	}
	for _, rule := range compiled {
		if _, ok := r.agents[rule.Agent]; !ok {
			log.Warn("", "", "Dropping routing rule for unregistered agent", map[string]interface{}{
				"agent":   rule.Agent,
				"pattern": rule.Pattern,
			})
			continue
		}
		r.rules = append(r.rules, rule)
	}
	return r, nil
}

// Route returns the agents whose rules match query, highest priority first
func (r *Router) Route(query string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, rule := range r.rules {
		if seen[rule.Agent] || !rule.re.MatchString(query) {
			continue
		}
		seen[rule.Agent] = true
		out = append(out, rule.Agent)
	}
	return out
}

// Agents describes the registered agents in registration order
func (r *Router) Agents() []Info {
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		a := r.agents[name]
		info := Info{Name: name, Description: a.Description()}
		for _, rule := range r.rules {
			if rule.Agent == name {
				info.Patterns = append(info.Patterns, rule.Pattern)
			}
		}
		out = append(out, info)
	}
	return out
}

// Dispatch runs the named agent, or every agent routed from the query.
// Agent failures are reported per result and do not fail the dispatch.
func (r *Router) Dispatch(ctx context.Context, req DispatchRequest, task Task) (*DispatchResponse, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" && req.Agent == "" {
		return nil, ErrEmptyQuery
	}

	var targets []string
	if req.Agent != "" {
		if _, ok := r.agents[req.Agent]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, req.Agent)
		}
		targets = []string{req.Agent}
	} else {
		targets = r.Route(req.Query)
		if len(targets) == 0 {
			return nil, ErrNoMatchingAgent
		}
	}

	task.Query = req.Query
	task.Params = req.Params

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results := make([]Result, len(targets))
	var g errgroup.Group
	g.SetLimit(r.maxParallel)
	for i, name := range targets {
		i, agent := i, r.agents[name]
		g.Go(func() error {
			results[i] = r.run(ctx, agent, task)
			return nil
		})
	}
	_ = g.Wait()

	return &DispatchResponse{Query: req.Query, Routed: targets, Results: results}, nil
}

func (r *Router) run(ctx context.Context, agent Agent, task Task) Result {
	start := time.Now()
	out, err := agent.Handle(ctx, task)
	res := Result{Agent: agent.Name(), DurationMS: float64(time.Since(start).Microseconds()) / 1000}

	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		r.log.Warn(task.TenantID, task.RequestID, "Agent failed", map[string]interface{}{
			"agent": agent.Name(),
			"error": err.Error(),
		})
	} else {
		res.Status = StatusOK
		if out != nil {
			res.Summary = out.Summary
			res.Data = out.Data
		}
		r.log.InfoWithDuration(task.TenantID, task.RequestID, "Agent completed", res.DurationMS, map[string]interface{}{
			"agent": agent.Name(),
		})
	}
	metrics.AgentDispatchTotal.WithLabelValues(agent.Name(), res.Status).Inc()
	return res
}
