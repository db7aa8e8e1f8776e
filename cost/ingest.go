// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"copilot/platform/azure"
	"copilot/platform/shared/metrics"
)

// Record sources
const (
	SourceCostManagement = "azure-cost-management"
	SourceManual         = "manual"
)

// recordNamespace seeds deterministic cost record IDs so re-ingesting a day
// replaces its rows
var recordNamespace = uuid.MustParse("6f1c2a4e-8d3b-4c59-9a7e-2b5d0e4f1a63")

// maxIngestDays bounds one Cost Management query window
const maxIngestDays = 92

// CostSource reads daily actual cost from Azure Cost Management
type CostSource interface {
	QueryCosts(ctx context.Context, q azure.CostQuery) ([]azure.CostRow, error)
}

// IngestRequest selects the scope and days to pull from Cost Management.
// A zero From starts at the first day of the current month; a zero To is today.
type IngestRequest struct {
	TenantID       string    `json:"-"`
	SubscriptionID string    `json:"subscription_id"`
	ResourceGroup  string    `json:"resource_group,omitempty"`
	From           time.Time `json:"from,omitempty"`
	To             time.Time `json:"to,omitempty"`
}

// IngestResult reports one ingestion
type IngestResult struct {
	Records        int       `json:"records"`
	TotalCostUSD   float64   `json:"total_cost_usd"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	BudgetsChecked int       `json:"budgets_checked"`
}

// Ingest pulls daily cost rows from Cost Management and stores them
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if s.source == nil {
		return nil, ErrIngestionUnavailable
	}
	now := s.now()
	if req.To.IsZero() {
		req.To = now
	}
	if req.From.IsZero() {
		req.From = time.Date(req.To.Year(), req.To.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	req.From, req.To = truncateDay(req.From), truncateDay(req.To)
	if req.To.Before(req.From) {
		return nil, fmt.Errorf("%w: to is before from", ErrInvalidInput)
	}
	if req.To.Sub(req.From) > maxIngestDays*24*time.Hour {
		return nil, fmt.Errorf("%w: ingestion window exceeds %d days", ErrInvalidInput, maxIngestDays)
	}

	scope := azure.Scope{SubscriptionID: req.SubscriptionID, ResourceGroup: req.ResourceGroup}
	rows, err := s.source.QueryCosts(ctx, azure.CostQuery{Scope: scope, From: req.From, To: req.To})
	if err != nil {
		s.logger.Printf("[Cost] Cost Management query failed for %s: %v", scope.ARMScope(), err)
		return nil, fmt.Errorf("query costs: %w", err)
	}

	records := make([]CostRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, CostRecord{
			SubscriptionID: row.SubscriptionID,
			ResourceGroup:  row.ResourceGroup,
			Service:        row.Service,
			Location:       row.Location,
			Date:           row.Date,
			CostUSD:        row.Cost,
			Currency:       row.Currency,
			Source:         SourceCostManagement,
		})
	}
	result, err := s.store(ctx, req.TenantID, records)
	if err != nil {
		return nil, err
	}
	result.From, result.To = req.From, req.To
	return result, nil
}

// RecordCosts stores externally supplied cost records, such as tag-level
// exports that Cost Management queries do not group by
func (s *Service) RecordCosts(ctx context.Context, tenantID string, records []CostRecord) (*IngestResult, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrInvalidInput)
	}
	for i := range records {
		if records[i].Source == "" {
			records[i].Source = SourceManual
		}
	}
	return s.store(ctx, tenantID, records)
}

func (s *Service) store(ctx context.Context, tenantID string, records []CostRecord) (*IngestResult, error) {
	result := &IngestResult{}
	if len(records) == 0 {
		return result, nil
	}
	now := s.now()
	for i := range records {
		r := &records[i]
		if r.SubscriptionID == "" {
			return nil, fmt.Errorf("%w: records[%d].subscription_id is required", ErrInvalidInput, i)
		}
		if r.Date.IsZero() {
			return nil, fmt.Errorf("%w: records[%d].date is required", ErrInvalidInput, i)
		}
		if math.IsNaN(r.CostUSD) || math.IsInf(r.CostUSD, 0) {
			return nil, fmt.Errorf("%w: records[%d].cost_usd is not a number", ErrInvalidInput, i)
		}
		r.TenantID = tenantID
		r.Date = truncateDay(r.Date)
		r.ResourceGroup = strings.ToLower(r.ResourceGroup)
		r.Location = strings.ToLower(r.Location)
		if r.Currency == "" {
			r.Currency = "USD"
		}
		r.CreatedAt = now
		r.ID = recordID(r)

		result.TotalCostUSD += r.CostUSD
		if result.From.IsZero() || r.Date.Before(result.From) {
			result.From = r.Date
		}
		if r.Date.After(result.To) {
			result.To = r.Date
		}
	}

	if err := s.repo.SaveCostRecords(ctx, records); err != nil {
		s.logger.Printf("[Cost] Failed to save cost records: %v", err)
		return nil, fmt.Errorf("failed to save cost records: %w", err)
	}
	result.Records = len(records)
	result.TotalCostUSD = roundCents(result.TotalCostUSD)
	metrics.CostRecordsIngested.Add(float64(len(records)))

	s.refreshAggregates(ctx, tenantID, result.From, result.To)
	result.BudgetsChecked = s.checkBudgetsForRecords(ctx, tenantID, records)

	s.logger.Printf("[Cost] Ingested %d cost records: tenant=%s days=%s..%s cost=$%.2f",
		result.Records, tenantID, result.From.Format("2006-01-02"), result.To.Format("2006-01-02"), result.TotalCostUSD)
	return result, nil
}

// recordID derives the record ID from its natural key
func recordID(r *CostRecord) string {
	parts := []string{r.TenantID, strings.ToLower(r.SubscriptionID), r.Date.Format("2006-01-02"),
		r.ResourceGroup, strings.ToLower(r.Service), r.Location}
	for _, k := range sortedTagKeys(r.Tags) {
		parts = append(parts, k+"="+r.Tags[k])
	}
	return uuid.NewSHA1(recordNamespace, []byte(strings.Join(parts, "|"))).String()
}

// aggregateDimensions are the scopes aggregates are kept for
var aggregateDimensions = []string{GroupBySubscription, GroupByResourceGroup, GroupByService}

// refreshAggregates recomputes daily and monthly aggregates for the days in
// [from, to] from the stored records
func (s *Service) refreshAggregates(ctx context.Context, tenantID string, from, to time.Time) {
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		s.updateAggregates(ctx, tenantID, AggregateDaily, day, day.AddDate(0, 0, 1))
	}
	for month := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC); !month.After(to); month = month.AddDate(0, 1, 0) {
		s.updateAggregates(ctx, tenantID, AggregateMonthly, month, month.AddDate(0, 1, 0))
	}
}

func (s *Service) updateAggregates(ctx context.Context, tenantID string, period AggregatePeriod, start, end time.Time) {
	for _, dim := range aggregateDimensions {
		bd, err := s.repo.GetCostBreakdown(ctx, dim, CostQueryOptions{TenantID: tenantID, StartTime: start, EndTime: end})
		if err != nil {
			s.logger.Printf("[Cost] Failed to compute %s %s aggregate: %v", period, dim, err)
			continue
		}
		for _, item := range bd.Items {
			agg := &CostAggregate{
				Scope:        dim,
				ScopeID:      item.GroupValue,
				Period:       period,
				PeriodStart:  start,
				TotalCostUSD: item.CostUSD,
				RecordCount:  item.RecordCount,
				TenantID:     tenantID,
			}
			if err := s.repo.UpdateAggregate(ctx, agg); err != nil {
				s.logger.Printf("[Cost] Failed to update %s aggregate: %v", dim, err)
			}
		}
	}
}

// checkBudgetsForRecords evaluates every budget whose scope the records
// touch and returns how many were checked
func (s *Service) checkBudgetsForRecords(ctx context.Context, tenantID string, records []CostRecord) int {
	refs := make(map[scopeRef]bool)
	for _, r := range records {
		refs[scopeRef{ScopeSubscription, r.SubscriptionID}] = true
		if r.ResourceGroup != "" {
			refs[scopeRef{ScopeResourceGroup, r.ResourceGroup}] = true
		}
		if r.Service != "" {
			refs[scopeRef{ScopeService, r.Service}] = true
		}
		for k, v := range r.Tags {
			refs[scopeRef{ScopeTag, k + "=" + v}] = true
		}
	}
	seen := make(map[string]bool)
	for ref := range refs {
		s.checkBudgetForScope(ctx, ref.scope, ref.scopeID, tenantID, seen)
	}
	return len(seen)
}

func sortedTagKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
