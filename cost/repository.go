// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Repository defines the interface for cost data persistence
type Repository interface {
	// Budget operations
	CreateBudget(ctx context.Context, budget *Budget) error
	GetBudget(ctx context.Context, id string) (*Budget, error)
	UpdateBudget(ctx context.Context, budget *Budget) error
	DeleteBudget(ctx context.Context, id string) error
	ListBudgets(ctx context.Context, opts ListBudgetsOptions) ([]Budget, int, error)
	GetBudgetsForScope(ctx context.Context, scope BudgetScope, scopeID, tenantID string) ([]Budget, error)

	// Cost record operations. SaveCostRecords upserts by record ID.
	SaveCostRecords(ctx context.Context, records []CostRecord) error
	GetCostForPeriod(ctx context.Context, opts CostQueryOptions) (float64, error)
	GetCostSummary(ctx context.Context, opts CostQueryOptions) (*CostSummary, error)
	GetCostBreakdown(ctx context.Context, groupBy string, opts CostQueryOptions) (*Breakdown, error)
	ListCostRecords(ctx context.Context, opts CostQueryOptions) ([]CostRecord, int, error)
	GetDailyCosts(ctx context.Context, opts CostQueryOptions) ([]DailyCost, error)

	// Aggregate operations. UpdateAggregate replaces the stored total.
	UpdateAggregate(ctx context.Context, aggregate *CostAggregate) error
	ListAggregates(ctx context.Context, scope, scopeID string, period AggregatePeriod, startTime, endTime time.Time, tenantID string) ([]CostAggregate, error)

	// Alert operations
	SaveAlert(ctx context.Context, alert *BudgetAlert) error
	AcknowledgeAlert(ctx context.Context, alertID int64, acknowledgedBy string) error
	GetRecentAlerts(ctx context.Context, budgetID string, limit int) ([]BudgetAlert, error)

	// Utility
	Ping(ctx context.Context) error
}

// AlertType constants
const (
	AlertTypeThresholdReached = "threshold_reached"
	AlertTypeBudgetExceeded   = "budget_exceeded"
	AlertTypeBudgetBlocked    = "budget_blocked"
)

// MemoryRepository keeps cost data in process. It serves deployments
// without a database and tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	budgets     map[string]*Budget
	records     map[string]CostRecord
	aggregates  map[string]CostAggregate
	alerts      []BudgetAlert
	nextAlertID int64
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		budgets:    make(map[string]*Budget),
		records:    make(map[string]CostRecord),
		aggregates: make(map[string]CostAggregate),
	}
}

func (m *MemoryRepository) CreateBudget(ctx context.Context, budget *Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.budgets[budget.ID]; exists {
		return ErrBudgetExists
	}
	b := *budget
	m.budgets[budget.ID] = &b
	return nil
}

func (m *MemoryRepository) GetBudget(ctx context.Context, id string) (*Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.budgets[id]
	if !ok {
		return nil, ErrBudgetNotFound
	}
	out := *b
	return &out, nil
}

func (m *MemoryRepository) UpdateBudget(ctx context.Context, budget *Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.budgets[budget.ID]
	if !ok {
		return ErrBudgetNotFound
	}
	b := *budget
	b.TenantID = current.TenantID
	b.CreatedAt = current.CreatedAt
	b.CreatedBy = current.CreatedBy
	m.budgets[budget.ID] = &b
	return nil
}

func (m *MemoryRepository) DeleteBudget(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.budgets[id]; !ok {
		return ErrBudgetNotFound
	}
	delete(m.budgets, id)
	return nil
}

func (m *MemoryRepository) ListBudgets(ctx context.Context, opts ListBudgetsOptions) ([]Budget, int, error) {
	m.mu.RLock()
	var matched []Budget
	for _, b := range m.budgets {
		if opts.TenantID != "" && b.TenantID != opts.TenantID {
			continue
		}
		if opts.SubscriptionID != "" && b.SubscriptionID != opts.SubscriptionID {
			continue
		}
		if opts.Scope != "" && b.Scope != opts.Scope {
			continue
		}
		if opts.ScopeID != "" && b.ScopeID != opts.ScopeID {
			continue
		}
		if opts.Enabled != nil && b.Enabled != *opts.Enabled {
			continue
		}
		matched = append(matched, *b)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	return page(matched, opts.Limit, opts.Offset), total, nil
}

func (m *MemoryRepository) GetBudgetsForScope(ctx context.Context, scope BudgetScope, scopeID, tenantID string) ([]Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Budget
	for _, b := range m.budgets {
		if b.Scope != scope || !b.Enabled || !strings.EqualFold(b.ScopeID, scopeID) {
			continue
		}
		if tenantID != "" && b.TenantID != tenantID {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) SaveCostRecords(ctx context.Context, records []CostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if existing, ok := m.records[r.ID]; ok {
			r.CreatedAt = existing.CreatedAt
		}
		m.records[r.ID] = r
	}
	return nil
}

// matching returns the records inside opts ordered by date, then id
func (m *MemoryRepository) matching(opts CostQueryOptions) []CostRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []CostRecord
	for _, r := range m.records {
		r := r
		if opts.Matches(&r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryRepository) GetCostForPeriod(ctx context.Context, opts CostQueryOptions) (float64, error) {
	var total float64
	for _, r := range m.matching(opts) {
		total += r.CostUSD
	}
	return total, nil
}

func (m *MemoryRepository) GetCostSummary(ctx context.Context, opts CostQueryOptions) (*CostSummary, error) {
	records := m.matching(opts)
	summary := &CostSummary{Currency: "USD", Period: opts.Period, PeriodStart: opts.StartTime, PeriodEnd: opts.EndTime}
	days := make(map[time.Time]bool)
	for _, r := range records {
		summary.TotalCostUSD += r.CostUSD
		days[r.Date] = true
	}
	summary.RecordCount = len(records)
	summary.Days = len(days)
	if summary.Days > 0 {
		summary.AverageDailyUSD = summary.TotalCostUSD / float64(summary.Days)
	}
	return summary, nil
}

func (m *MemoryRepository) GetCostBreakdown(ctx context.Context, groupBy string, opts CostQueryOptions) (*Breakdown, error) {
	if !IsValidGroupBy(groupBy) {
		return nil, ErrInvalidGroupBy
	}
	byValue := make(map[string]*BreakdownItem)
	bd := &Breakdown{GroupBy: groupBy, Period: opts.Period, StartTime: opts.StartTime, EndTime: opts.EndTime}
	for _, r := range m.matching(opts) {
		v := r.GroupValue(groupBy)
		item, ok := byValue[v]
		if !ok {
			item = &BreakdownItem{GroupValue: v}
			byValue[v] = item
		}
		item.CostUSD += r.CostUSD
		item.RecordCount++
		bd.TotalCostUSD += r.CostUSD
	}
	for _, item := range byValue {
		bd.Items = append(bd.Items, *item)
	}
	finishBreakdown(bd)
	return bd, nil
}

// finishBreakdown orders items most expensive first and fills percentages
func finishBreakdown(bd *Breakdown) {
	sort.Slice(bd.Items, func(i, j int) bool {
		if bd.Items[i].CostUSD != bd.Items[j].CostUSD {
			return bd.Items[i].CostUSD > bd.Items[j].CostUSD
		}
		return bd.Items[i].GroupValue < bd.Items[j].GroupValue
	})
	for i := range bd.Items {
		if bd.TotalCostUSD > 0 {
			bd.Items[i].Percentage = bd.Items[i].CostUSD / bd.TotalCostUSD * 100
		}
	}
}

func (m *MemoryRepository) ListCostRecords(ctx context.Context, opts CostQueryOptions) ([]CostRecord, int, error) {
	records := m.matching(opts)
	// Newest first, like the Postgres listing
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return page(records, opts.Limit, opts.Offset), len(records), nil
}

func (m *MemoryRepository) GetDailyCosts(ctx context.Context, opts CostQueryOptions) ([]DailyCost, error) {
	var out []DailyCost
	for _, r := range m.matching(opts) {
		day := truncateDay(r.Date)
		if n := len(out); n > 0 && out[n-1].Date.Equal(day) {
			out[n-1].CostUSD += r.CostUSD
			continue
		}
		out = append(out, DailyCost{Date: day, CostUSD: r.CostUSD})
	}
	return out, nil
}

func aggregateKey(tenantID, scope, scopeID string, period AggregatePeriod, start time.Time) string {
	return strings.Join([]string{tenantID, scope, scopeID, string(period), start.UTC().Format(time.RFC3339)}, "|")
}

func (m *MemoryRepository) UpdateAggregate(ctx context.Context, agg *CostAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := *agg
	a.UpdatedAt = time.Now().UTC()
	m.aggregates[aggregateKey(a.TenantID, a.Scope, a.ScopeID, a.Period, a.PeriodStart)] = a
	return nil
}

func (m *MemoryRepository) ListAggregates(ctx context.Context, scope, scopeID string, period AggregatePeriod, startTime, endTime time.Time, tenantID string) ([]CostAggregate, error) {
	m.mu.RLock()
	var out []CostAggregate
	for _, a := range m.aggregates {
		if a.Scope != scope || a.Period != period || a.TenantID != tenantID {
			continue
		}
		if scopeID != "" && a.ScopeID != scopeID {
			continue
		}
		if a.PeriodStart.Before(startTime) || (!endTime.IsZero() && !a.PeriodStart.Before(endTime)) {
			continue
		}
		out = append(out, a)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.Before(out[j].PeriodStart)
		}
		return out[i].ScopeID < out[j].ScopeID
	})
	return out, nil
}

func (m *MemoryRepository) SaveAlert(ctx context.Context, alert *BudgetAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAlertID++
	alert.ID = m.nextAlertID
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	m.alerts = append(m.alerts, *alert)
	return nil
}

func (m *MemoryRepository) AcknowledgeAlert(ctx context.Context, alertID int64, acknowledgedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == alertID {
			now := time.Now().UTC()
			m.alerts[i].Acknowledged = true
			m.alerts[i].AcknowledgedBy = acknowledgedBy
			m.alerts[i].AcknowledgedAt = &now
			return nil
		}
	}
	return ErrAlertNotFound
}

func (m *MemoryRepository) GetRecentAlerts(ctx context.Context, budgetID string, limit int) ([]BudgetAlert, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []BudgetAlert
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if m.alerts[i].BudgetID == budgetID {
			out = append(out, m.alerts[i])
		}
	}
	return out, nil
}

func (m *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
