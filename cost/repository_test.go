// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepositoryBudgets(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		b := subscriptionBudget(id, 100, OnExceedWarn)
		b.SubscriptionID = "sub-1"
		b.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if id == "c" {
			b.TenantID = "tenant-b"
		}
		if err := repo.CreateBudget(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	budgets, total, err := repo.ListBudgets(ctx, ListBudgetsOptions{TenantID: "tenant-a"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || budgets[0].ID != "b" || budgets[1].ID != "a" {
		t.Errorf("ListBudgets = %d %v", total, budgets)
	}

	budgets, total, err = repo.ListBudgets(ctx, ListBudgetsOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(budgets) != 1 || budgets[0].ID != "b" {
		t.Errorf("paged ListBudgets = %d %v", total, budgets)
	}

	// Stored budgets are copies
	got, _ := repo.GetBudget(ctx, "a")
	got.Name = "changed"
	again, _ := repo.GetBudget(ctx, "a")
	if again.Name == "changed" {
		t.Error("GetBudget returned shared state")
	}

	scoped, err := repo.GetBudgetsForScope(ctx, ScopeSubscription, "SUB-1", "tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 2 {
		t.Errorf("GetBudgetsForScope = %v", scoped)
	}

	if err := repo.DeleteBudget(ctx, "missing"); !errors.Is(err, ErrBudgetNotFound) {
		t.Errorf("DeleteBudget(missing) = %v", err)
	}
	if err := repo.UpdateBudget(ctx, &Budget{ID: "missing"}); !errors.Is(err, ErrBudgetNotFound) {
		t.Errorf("UpdateBudget(missing) = %v", err)
	}
}

func TestMemoryRepositoryDisabledBudgetsAreNotScoped(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	b := subscriptionBudget("off", 100, OnExceedWarn)
	b.Enabled = false
	if err := repo.CreateBudget(ctx, b); err != nil {
		t.Fatal(err)
	}
	scoped, _ := repo.GetBudgetsForScope(ctx, ScopeSubscription, "sub-1", "")
	if len(scoped) != 0 {
		t.Errorf("disabled budget returned: %v", scoped)
	}
}

func TestMemoryRepositoryCostQueries(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	records := []CostRecord{
		{ID: "1", SubscriptionID: "sub-1", ResourceGroup: "rg-a", Service: "Storage", Date: day(1), CostUSD: 10},
		{ID: "2", SubscriptionID: "sub-1", ResourceGroup: "rg-b", Service: "Storage", Date: day(1), CostUSD: 30},
		{ID: "3", SubscriptionID: "sub-1", ResourceGroup: "rg-a", Service: "Compute", Date: day(2), CostUSD: 60, Tags: map[string]string{"env": "prod"}},
	}
	if err := repo.SaveCostRecords(ctx, records); err != nil {
		t.Fatal(err)
	}

	total, _ := repo.GetCostForPeriod(ctx, CostQueryOptions{ResourceGroup: "rg-a"})
	if total != 70 {
		t.Errorf("GetCostForPeriod = %v, want 70", total)
	}
	total, _ = repo.GetCostForPeriod(ctx, CostQueryOptions{Tag: "env=prod"})
	if total != 60 {
		t.Errorf("tag cost = %v, want 60", total)
	}

	bd, err := repo.GetCostBreakdown(ctx, GroupByResourceGroup, CostQueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if bd.TotalCostUSD != 100 || bd.Items[0].GroupValue != "rg-a" || bd.Items[0].Percentage != 70 || bd.Items[1].Percentage != 30 {
		t.Errorf("breakdown = %+v", bd)
	}

	daily, _ := repo.GetDailyCosts(ctx, CostQueryOptions{})
	if len(daily) != 2 || daily[0].CostUSD != 40 || daily[1].CostUSD != 60 {
		t.Errorf("daily = %+v", daily)
	}

	list, n, _ := repo.ListCostRecords(ctx, CostQueryOptions{Limit: 2})
	if n != 3 || len(list) != 2 || list[0].ID != "3" {
		t.Errorf("ListCostRecords = %d %+v", n, list)
	}

	// Upsert replaces the cost and keeps the original creation time
	created := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	if err := repo.SaveCostRecords(ctx, []CostRecord{{ID: "9", SubscriptionID: "sub-1", Date: day(3), CostUSD: 1, CreatedAt: created}}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveCostRecords(ctx, []CostRecord{{ID: "9", SubscriptionID: "sub-1", Date: day(3), CostUSD: 2, CreatedAt: created.Add(time.Hour)}}); err != nil {
		t.Fatal(err)
	}
	list, _, _ = repo.ListCostRecords(ctx, CostQueryOptions{StartTime: day(3)})
	if len(list) != 1 || list[0].CostUSD != 2 || !list[0].CreatedAt.Equal(created) {
		t.Errorf("upserted record = %+v", list)
	}
}

func TestMemoryRepositoryAggregates(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	agg := &CostAggregate{Scope: GroupByService, ScopeID: "Storage", Period: AggregateDaily, PeriodStart: day(1), TotalCostUSD: 5, RecordCount: 1, TenantID: "t"}
	if err := repo.UpdateAggregate(ctx, agg); err != nil {
		t.Fatal(err)
	}
	agg.TotalCostUSD = 8
	if err := repo.UpdateAggregate(ctx, agg); err != nil {
		t.Fatal(err)
	}

	aggs, _ := repo.ListAggregates(ctx, GroupByService, "", AggregateDaily, day(1), day(2), "t")
	if len(aggs) != 1 || aggs[0].TotalCostUSD != 8 {
		t.Errorf("aggregates = %+v", aggs)
	}
	aggs, _ = repo.ListAggregates(ctx, GroupByService, "", AggregateDaily, day(1), day(2), "other")
	if len(aggs) != 0 {
		t.Errorf("aggregates for other tenant = %+v", aggs)
	}
}

func TestMemoryRepositoryAlerts(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	for _, threshold := range []int{50, 80} {
		if err := repo.SaveAlert(ctx, &BudgetAlert{BudgetID: "b1", Threshold: threshold}); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.SaveAlert(ctx, &BudgetAlert{BudgetID: "b2", Threshold: 50}); err != nil {
		t.Fatal(err)
	}

	alerts, _ := repo.GetRecentAlerts(ctx, "b1", 0)
	if len(alerts) != 2 || alerts[0].Threshold != 80 || alerts[0].ID != 2 {
		t.Errorf("alerts = %+v", alerts)
	}

	if err := repo.AcknowledgeAlert(ctx, 1, "ops"); err != nil {
		t.Fatal(err)
	}
	alerts, _ = repo.GetRecentAlerts(ctx, "b1", 1)
	if len(alerts) != 1 || alerts[0].Acknowledged {
		t.Errorf("limited alerts = %+v", alerts)
	}
	alerts, _ = repo.GetRecentAlerts(ctx, "b1", 2)
	if !alerts[1].Acknowledged || alerts[1].AcknowledgedBy != "ops" || alerts[1].AcknowledgedAt == nil {
		t.Errorf("acknowledged alert = %+v", alerts[1])
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := page(items, 2, 1); len(got) != 2 || got[0] != 2 {
		t.Errorf("page(2,1) = %v", got)
	}
	if got := page(items, 0, 0); len(got) != 5 {
		t.Errorf("page(0,0) = %v", got)
	}
	if got := page(items, 10, 9); got == nil || len(got) != 0 {
		t.Errorf("page past end = %v", got)
	}
}
