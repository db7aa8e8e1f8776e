// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"errors"
	"testing"
	"time"
)

func TestBudgetValidate(t *testing.T) {
	tests := []struct {
		name    string
		budget  Budget
		wantErr error
	}{
		{
			name:   "valid subscription budget",
			budget: Budget{ID: "b1", Name: "Sub", LimitUSD: 100, Scope: ScopeSubscription, ScopeID: "sub-1", Period: PeriodMonthly},
		},
		{
			name:    "missing id",
			budget:  Budget{Name: "Sub", LimitUSD: 100, Scope: ScopeSubscription, ScopeID: "sub-1", Period: PeriodMonthly},
			wantErr: ErrInvalidBudgetID,
		},
		{
			name:    "missing name",
			budget:  Budget{ID: "b1", LimitUSD: 100, Scope: ScopeSubscription, ScopeID: "sub-1", Period: PeriodMonthly},
			wantErr: ErrInvalidBudgetName,
		},
		{
			name:    "zero limit",
			budget:  Budget{ID: "b1", Name: "Sub", Scope: ScopeSubscription, ScopeID: "sub-1", Period: PeriodMonthly},
			wantErr: ErrInvalidBudgetLimit,
		},
		{
			name:    "unknown scope",
			budget:  Budget{ID: "b1", Name: "Sub", LimitUSD: 100, Scope: "organization", ScopeID: "x", Period: PeriodMonthly},
			wantErr: ErrInvalidBudgetScope,
		},
		{
			name:    "resource group without scope id",
			budget:  Budget{ID: "b1", Name: "RG", LimitUSD: 100, Scope: ScopeResourceGroup, Period: PeriodMonthly},
			wantErr: ErrInvalidBudgetScope,
		},
		{
			name:    "subscription without any subscription",
			budget:  Budget{ID: "b1", Name: "Sub", LimitUSD: 100, Scope: ScopeSubscription, Period: PeriodMonthly},
			wantErr: ErrInvalidBudgetScope,
		},
		{
			name:    "tag scope without value separator",
			budget:  Budget{ID: "b1", Name: "Tag", LimitUSD: 100, Scope: ScopeTag, ScopeID: "costcenter", Period: PeriodMonthly},
			wantErr: ErrInvalidBudgetScope,
		},
		{
			name:   "tag scope",
			budget: Budget{ID: "b1", Name: "Tag", LimitUSD: 100, Scope: ScopeTag, ScopeID: "costcenter=1234", Period: PeriodMonthly},
		},
		{
			name:    "unknown period",
			budget:  Budget{ID: "b1", Name: "Sub", LimitUSD: 100, Scope: ScopeSubscription, ScopeID: "sub-1", Period: "hourly"},
			wantErr: ErrInvalidBudgetPeriod,
		},
		{
			name:    "unknown on exceed",
			budget:  Budget{ID: "b1", Name: "Sub", LimitUSD: 100, Scope: ScopeSubscription, ScopeID: "sub-1", Period: PeriodMonthly, OnExceed: "pause"},
			wantErr: ErrInvalidOnExceed,
		},
		{
			name:    "threshold out of range",
			budget:  Budget{ID: "b1", Name: "Sub", LimitUSD: 100, Scope: ScopeSubscription, ScopeID: "sub-1", Period: PeriodMonthly, AlertThresholds: []int{0}},
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.budget.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBudgetNormalize(t *testing.T) {
	b := Budget{ID: "b1", Name: "Sub", LimitUSD: 100, SubscriptionID: "sub-1", Period: PeriodMonthly, AlertThresholds: []int{100, 50}}
	b.Normalize()

	if b.Scope != ScopeSubscription {
		t.Errorf("Scope = %s, want subscription", b.Scope)
	}
	if b.ScopeID != "sub-1" {
		t.Errorf("ScopeID = %s, want sub-1", b.ScopeID)
	}
	if b.OnExceed != OnExceedWarn {
		t.Errorf("OnExceed = %s, want warn", b.OnExceed)
	}
	if b.AlertThresholds[0] != 50 || b.AlertThresholds[1] != 100 {
		t.Errorf("AlertThresholds = %v, want sorted", b.AlertThresholds)
	}

	rg := Budget{Scope: ScopeResourceGroup, ScopeID: "RG-App"}
	rg.Normalize()
	if rg.ScopeID != "rg-app" {
		t.Errorf("ScopeID = %s, want rg-app", rg.ScopeID)
	}
	if len(rg.AlertThresholds) != len(DefaultAlertThresholds) {
		t.Errorf("AlertThresholds = %v, want defaults", rg.AlertThresholds)
	}
}

func TestNewBudgetDefaults(t *testing.T) {
	b := NewBudget("b1", "Monthly", 500, PeriodMonthly)
	if !b.Enabled || b.OnExceed != OnExceedWarn || b.Scope != ScopeSubscription {
		t.Errorf("unexpected defaults: %+v", b)
	}
	b.AlertThresholds[0] = 1
	if DefaultAlertThresholds[0] != 50 {
		t.Error("NewBudget shares the default thresholds slice")
	}
}

func TestBudgetQueryOptions(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	b := Budget{Scope: ScopeTag, ScopeID: "env=prod", SubscriptionID: "sub-1", TenantID: "t1"}
	opts := b.QueryOptions(start, end)
	if opts.Tag != "env=prod" || opts.SubscriptionID != "sub-1" || opts.TenantID != "t1" {
		t.Errorf("unexpected options: %+v", opts)
	}
	if !opts.StartTime.Equal(start) || !opts.EndTime.Equal(end) {
		t.Errorf("unexpected range: %v..%v", opts.StartTime, opts.EndTime)
	}

	rg := Budget{Scope: ScopeResourceGroup, ScopeID: "rg-app"}
	if got := rg.QueryOptions(start, end).ResourceGroup; got != "rg-app" {
		t.Errorf("ResourceGroup = %s, want rg-app", got)
	}
}

func TestCostQueryOptionsMatches(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	rec := &CostRecord{
		TenantID:       "t1",
		SubscriptionID: "SUB-1",
		ResourceGroup:  "rg-app",
		Service:        "Storage",
		Location:       "eastus",
		Tags:           map[string]string{"env": "prod"},
		Date:           day,
	}

	tests := []struct {
		name string
		opts CostQueryOptions
		want bool
	}{
		{"empty filter", CostQueryOptions{}, true},
		{"subscription case insensitive", CostQueryOptions{SubscriptionID: "sub-1"}, true},
		{"other tenant", CostQueryOptions{TenantID: "t2"}, false},
		{"service case insensitive", CostQueryOptions{Service: "storage"}, true},
		{"tag match", CostQueryOptions{Tag: "env=prod"}, true},
		{"tag mismatch", CostQueryOptions{Tag: "env=dev"}, false},
		{"start inclusive", CostQueryOptions{StartTime: day}, true},
		{"end exclusive", CostQueryOptions{EndTime: day}, false},
		{"inside range", CostQueryOptions{StartTime: day.AddDate(0, 0, -1), EndTime: day.AddDate(0, 0, 1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Matches(rec); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGroupValue(t *testing.T) {
	rec := &CostRecord{SubscriptionID: "sub-1", ResourceGroup: "rg", Service: "svc", Location: "eastus"}
	want := map[string]string{
		GroupBySubscription:  "sub-1",
		GroupByResourceGroup: "rg",
		GroupByService:       "svc",
		GroupByLocation:      "eastus",
		"agent":              "",
	}
	for groupBy, v := range want {
		if got := rec.GroupValue(groupBy); got != v {
			t.Errorf("GroupValue(%s) = %q, want %q", groupBy, got, v)
		}
	}
	if IsValidGroupBy("agent") {
		t.Error("agent should not be a valid group by")
	}
}

func TestAlertThresholdsRoundTrip(t *testing.T) {
	b := Budget{AlertThresholds: []int{50, 90}}
	data, err := b.MarshalAlertThresholds()
	if err != nil {
		t.Fatal(err)
	}
	var out Budget
	if err := out.UnmarshalAlertThresholds(data); err != nil {
		t.Fatal(err)
	}
	if len(out.AlertThresholds) != 2 || out.AlertThresholds[1] != 90 {
		t.Errorf("AlertThresholds = %v", out.AlertThresholds)
	}
}
