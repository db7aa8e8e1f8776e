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

	"copilot/platform/cost"
)

// CostReporter reads spend
type CostReporter interface {
	GetCostSummary(ctx context.Context, opts cost.CostQueryOptions) (*cost.CostSummary, error)
	GetCostBreakdown(ctx context.Context, groupBy string, opts cost.CostQueryOptions) (*cost.Breakdown, error)
	Forecast(ctx context.Context, opts cost.CostQueryOptions) (*cost.Forecast, error)
	DetectAnomalies(ctx context.Context, opts cost.CostQueryOptions, ao cost.AnomalyOptions) ([]cost.Anomaly, error)
}

var (
	forecastWord = regexp.MustCompile(`(?i)\b(forecast\w*|project\w*|month[- ]end|end of (the )?month)\b`)
	anomalyWord  = regexp.MustCompile(`(?i)\b(anomal\w*|spikes?|unusual|unexpected)\b`)
	groupByWord  = regexp.MustCompile(`(?i)\bby (resource[ _]group|service|location|region|subscription)\b`)
)

// CostAgent answers spend questions
type CostAgent struct {
	svc CostReporter
}

// NewCostAgent creates the agent
func NewCostAgent(svc CostReporter) *CostAgent {
	return &CostAgent{svc: svc}
}

func (a *CostAgent) Name() string { return "cost" }

func (a *CostAgent) Description() string {
	return "Reports spend, month-end forecasts and anomalies"
}

func groupByFrom(task Task) string {
	if g := task.Param("group_by", ""); g != "" {
		return g
	}
	m := groupByWord.FindStringSubmatch(task.Query)
	if m == nil {
		return ""
	}
	switch g := strings.ToLower(strings.ReplaceAll(m[1], " ", "_")); g {
	case "region":
		return "location"
	default:
		return g
	}
}

func (a *CostAgent) Handle(ctx context.Context, task Task) (*Output, error) {
	opts := cost.CostQueryOptions{
		TenantID:       task.TenantID,
		SubscriptionID: task.Param("subscription_id", ""),
		ResourceGroup:  task.Param("resource_group", ""),
	}

	switch {
	case forecastWord.MatchString(task.Query):
		f, err := a.svc.Forecast(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &Output{
			Summary: fmt.Sprintf("Projected month-end spend $%.2f (actual to date $%.2f over %d days)",
				f.ProjectedUSD, f.ActualToDateUSD, f.DaysElapsed),
			Data: f,
		}, nil

	case anomalyWord.MatchString(task.Query):
		anomalies, err := a.svc.DetectAnomalies(ctx, opts, cost.AnomalyOptions{})
		if err != nil {
			return nil, err
		}
		summary := "No cost anomalies in the last 7 days"
		if len(anomalies) > 0 {
			summary = fmt.Sprintf("%d cost anomalies, largest z-score %.1f on %s",
				len(anomalies), anomalies[0].ZScore, anomalies[0].Date.Format("2006-01-02"))
		}
		return &Output{Summary: summary, Data: map[string]interface{}{"anomalies": anomalies}}, nil
	}

	opts.Period = "monthly"
	if groupBy := groupByFrom(task); groupBy != "" {
		b, err := a.svc.GetCostBreakdown(ctx, groupBy, opts)
		if err != nil {
			return nil, err
		}
		summary := fmt.Sprintf("Month-to-date spend $%.2f across %d %s values", b.TotalCostUSD, len(b.Items), groupBy)
		if len(b.Items) > 0 {
			summary += fmt.Sprintf(", top %s at $%.2f", b.Items[0].GroupValue, b.Items[0].CostUSD)
		}
		return &Output{Summary: summary, Data: b}, nil
	}

	s, err := a.svc.GetCostSummary(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Output{
		Summary: fmt.Sprintf("Month-to-date spend $%.2f over %d records", s.TotalCostUSD, s.RecordCount),
		Data:    s,
	}, nil
}
