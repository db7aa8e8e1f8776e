// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package cost provides budget management and cost tracking for Azure spend.
// It ingests Cost Management data, tracks budgets with alerts, forecasts
// month-end spend, detects anomalies and estimates generated infrastructure.
package cost

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// BudgetScope represents the scope level of a budget
type BudgetScope string

const (
	ScopeSubscription  BudgetScope = "subscription"
	ScopeResourceGroup BudgetScope = "resource_group"
	ScopeService       BudgetScope = "service"
	// ScopeTag budgets use "key=value" as the scope id
	ScopeTag BudgetScope = "tag"
)

// BudgetPeriod represents the time period for a budget
type BudgetPeriod string

const (
	PeriodDaily     BudgetPeriod = "daily"
	PeriodWeekly    BudgetPeriod = "weekly"
	PeriodMonthly   BudgetPeriod = "monthly"
	PeriodQuarterly BudgetPeriod = "quarterly"
	PeriodYearly    BudgetPeriod = "yearly"
)

// OnExceedAction defines what happens when a budget is exceeded
type OnExceedAction string

const (
	OnExceedWarn  OnExceedAction = "warn"
	OnExceedBlock OnExceedAction = "block"
)

// AggregatePeriod represents the aggregation time period
type AggregatePeriod string

const (
	AggregateDaily   AggregatePeriod = "daily"
	AggregateMonthly AggregatePeriod = "monthly"
)

// Group-by dimensions for breakdowns and aggregates
const (
	GroupByResourceGroup = "resource_group"
	GroupBySubscription  = "subscription"
	GroupByService       = "service"
	GroupByLocation      = "location"
)

// GroupByDimensions lists the accepted breakdown dimensions
var GroupByDimensions = []string{GroupByResourceGroup, GroupByService, GroupByLocation, GroupBySubscription}

// DefaultAlertThresholds are applied when a budget sets none
var DefaultAlertThresholds = []int{50, 80, 100}

// Budget represents a cost budget configuration
type Budget struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Scope           BudgetScope    `json:"scope"`
	ScopeID         string         `json:"scope_id,omitempty"`
	SubscriptionID  string         `json:"subscription_id,omitempty"`
	LimitUSD        float64        `json:"limit_usd"`
	Period          BudgetPeriod   `json:"period"`
	OnExceed        OnExceedAction `json:"on_exceed"`
	AlertThresholds []int          `json:"alert_thresholds"` // e.g., [50, 80, 100]
	Enabled         bool           `json:"enabled"`
	TenantID        string         `json:"tenant_id,omitempty"`
	CreatedBy       string         `json:"created_by,omitempty"`
	UpdatedBy       string         `json:"updated_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// CostRecord is one day of spend for a resource group, service and location
type CostRecord struct {
	ID             string            `json:"id,omitempty"`
	TenantID       string            `json:"tenant_id,omitempty"`
	SubscriptionID string            `json:"subscription_id"`
	ResourceGroup  string            `json:"resource_group,omitempty"`
	Service        string            `json:"service,omitempty"`
	Location       string            `json:"location,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	Date           time.Time         `json:"date"`
	CostUSD        float64           `json:"cost_usd"`
	Currency       string            `json:"currency,omitempty"`
	Source         string            `json:"source,omitempty"`
	CreatedAt      time.Time         `json:"created_at,omitempty"`
}

// CostAggregate represents aggregated cost for a time period
type CostAggregate struct {
	Scope        string          `json:"scope"`
	ScopeID      string          `json:"scope_id"`
	Period       AggregatePeriod `json:"period"`
	PeriodStart  time.Time       `json:"period_start"`
	TotalCostUSD float64         `json:"total_cost_usd"`
	RecordCount  int             `json:"record_count"`
	TenantID     string          `json:"tenant_id,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at,omitempty"`
}

// BudgetStatus represents the current status of a budget
type BudgetStatus struct {
	Budget       *Budget   `json:"budget"`
	UsedUSD      float64   `json:"used_usd"`
	RemainingUSD float64   `json:"remaining_usd"`
	Percentage   float64   `json:"percentage"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	IsExceeded   bool      `json:"is_exceeded"`
	IsBlocked    bool      `json:"is_blocked"`
}

// BudgetDecision represents the result of a budget check
type BudgetDecision struct {
	Allowed    bool           `json:"allowed"`
	Action     OnExceedAction `json:"action,omitempty"`
	BudgetID   string         `json:"budget_id,omitempty"`
	BudgetName string         `json:"budget_name,omitempty"`
	UsedUSD    float64        `json:"used_usd,omitempty"`
	LimitUSD   float64        `json:"limit_usd,omitempty"`
	Percentage float64        `json:"percentage,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// BudgetAlert represents an alert for budget threshold
type BudgetAlert struct {
	ID                int64      `json:"id,omitempty"`
	BudgetID          string     `json:"budget_id"`
	Threshold         int        `json:"threshold"`
	PercentageReached float64    `json:"percentage_reached"`
	AmountUSD         float64    `json:"amount_usd"`
	AlertType         string     `json:"alert_type"`
	Message           string     `json:"message,omitempty"`
	PeriodStart       time.Time  `json:"period_start"`
	Acknowledged      bool       `json:"acknowledged"`
	AcknowledgedBy    string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt    *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at,omitempty"`
}

// CostSummary provides a summary of spend for a period
type CostSummary struct {
	TotalCostUSD    float64   `json:"total_cost_usd"`
	RecordCount     int       `json:"record_count"`
	Days            int       `json:"days"`
	AverageDailyUSD float64   `json:"average_daily_usd"`
	Currency        string    `json:"currency"`
	Period          string    `json:"period,omitempty"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
}

// BreakdownItem represents a single item in a cost breakdown
type BreakdownItem struct {
	GroupValue  string  `json:"group_value"`
	CostUSD     float64 `json:"cost_usd"`
	RecordCount int     `json:"record_count"`
	Percentage  float64 `json:"percentage"`
}

// Breakdown contains spend broken down by one dimension, most expensive first
type Breakdown struct {
	GroupBy      string          `json:"group_by"`
	TotalCostUSD float64         `json:"total_cost_usd"`
	Items        []BreakdownItem `json:"items"`
	Period       string          `json:"period,omitempty"`
	StartTime    time.Time       `json:"start_time,omitempty"`
	EndTime      time.Time       `json:"end_time,omitempty"`
}

// DailyCost is the total spend of one UTC day
type DailyCost struct {
	Date    time.Time `json:"date"`
	CostUSD float64   `json:"cost_usd"`
}

// Forecast projects month-end spend from the completed days of the month
type Forecast struct {
	MonthStart      time.Time `json:"month_start"`
	MonthEnd        time.Time `json:"month_end"`
	ActualToDateUSD float64   `json:"actual_to_date_usd"`
	DaysElapsed     int       `json:"days_elapsed"`
	DaysInMonth     int       `json:"days_in_month"`
	DailyAverageUSD float64   `json:"daily_average_usd"`
	ProjectedUSD    float64   `json:"projected_usd"`
	BudgetUSD       float64   `json:"budget_usd,omitempty"`
	ProjectedOver   bool      `json:"projected_over_budget,omitempty"`
}

// Anomaly is a day whose spend deviates from the trailing window
type Anomaly struct {
	Date      time.Time `json:"date"`
	CostUSD   float64   `json:"cost_usd"`
	MeanUSD   float64   `json:"mean_usd"`
	StdDevUSD float64   `json:"stddev_usd"`
	ZScore    float64   `json:"z_score"`
	Direction string    `json:"direction"` // spike or drop
}

// AnomalyOptions tunes anomaly detection
type AnomalyOptions struct {
	Days         int     `json:"days"`          // days evaluated, default 7
	TrailingDays int     `json:"trailing_days"` // window each day is compared to, default 14
	Threshold    float64 `json:"threshold"`     // absolute z-score, default 3
}

// ListBudgetsOptions for filtering budget queries
type ListBudgetsOptions struct {
	TenantID       string      `json:"tenant_id,omitempty"`
	SubscriptionID string      `json:"subscription_id,omitempty"`
	Scope          BudgetScope `json:"scope,omitempty"`
	ScopeID        string      `json:"scope_id,omitempty"`
	Enabled        *bool       `json:"enabled,omitempty"`
	Limit          int         `json:"limit,omitempty"`
	Offset         int         `json:"offset,omitempty"`
}

// CostQueryOptions for filtering cost queries. Tag is "key=value".
type CostQueryOptions struct {
	TenantID       string    `json:"tenant_id,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	ResourceGroup  string    `json:"resource_group,omitempty"`
	Service        string    `json:"service,omitempty"`
	Location       string    `json:"location,omitempty"`
	Tag            string    `json:"tag,omitempty"`
	StartTime      time.Time `json:"start_time,omitempty"`
	EndTime        time.Time `json:"end_time,omitempty"`
	Period         string    `json:"period,omitempty"` // daily, weekly, monthly
	Limit          int       `json:"limit,omitempty"`
	Offset         int       `json:"offset,omitempty"`
}

// NewBudget creates a new budget with default values
func NewBudget(id, name string, limitUSD float64, period BudgetPeriod) *Budget {
	return &Budget{
		ID:              id,
		Name:            name,
		LimitUSD:        limitUSD,
		Period:          period,
		Scope:           ScopeSubscription,
		OnExceed:        OnExceedWarn,
		AlertThresholds: append([]int(nil), DefaultAlertThresholds...),
		Enabled:         true,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
}

// MarshalAlertThresholds marshals alert thresholds to JSON
func (b *Budget) MarshalAlertThresholds() ([]byte, error) {
	return json.Marshal(b.AlertThresholds)
}

// UnmarshalAlertThresholds unmarshals alert thresholds from JSON
func (b *Budget) UnmarshalAlertThresholds(data []byte) error {
	return json.Unmarshal(data, &b.AlertThresholds)
}

// Validate validates the budget configuration
func (b *Budget) Validate() error {
	if b.ID == "" {
		return ErrInvalidBudgetID
	}
	if b.Name == "" {
		return ErrInvalidBudgetName
	}
	if b.LimitUSD <= 0 {
		return ErrInvalidBudgetLimit
	}
	if !isValidScope(b.Scope) {
		return ErrInvalidBudgetScope
	}
	if b.Scope != ScopeSubscription && b.ScopeID == "" {
		return fmt.Errorf("%w: %s budgets need a scope_id", ErrInvalidBudgetScope, b.Scope)
	}
	if b.Scope == ScopeSubscription && b.ScopeID == "" && b.SubscriptionID == "" {
		return fmt.Errorf("%w: subscription budgets need a subscription", ErrInvalidBudgetScope)
	}
	if b.Scope == ScopeTag {
		if _, _, ok := splitTag(b.ScopeID); !ok {
			return fmt.Errorf("%w: tag scope_id must be key=value", ErrInvalidBudgetScope)
		}
	}
	if !isValidPeriod(b.Period) {
		return ErrInvalidBudgetPeriod
	}
	if !isValidOnExceed(b.OnExceed) {
		return ErrInvalidOnExceed
	}
	for _, t := range b.AlertThresholds {
		if t <= 0 || t > 1000 {
			return fmt.Errorf("%w: alert threshold %d", ErrInvalidInput, t)
		}
	}
	return nil
}

// Normalize fills defaults and lowercases scope ids that Azure reports lowercased
func (b *Budget) Normalize() {
	if b.OnExceed == "" {
		b.OnExceed = OnExceedWarn
	}
	if b.Scope == "" {
		b.Scope = ScopeSubscription
	}
	if b.Scope == ScopeSubscription {
		if b.ScopeID == "" {
			b.ScopeID = b.SubscriptionID
		}
		if b.SubscriptionID == "" {
			b.SubscriptionID = b.ScopeID
		}
	}
	if b.Scope == ScopeResourceGroup {
		b.ScopeID = strings.ToLower(b.ScopeID)
	}
	if len(b.AlertThresholds) == 0 {
		b.AlertThresholds = append([]int(nil), DefaultAlertThresholds...)
	}
	sort.Ints(b.AlertThresholds)
}

// QueryOptions returns the cost filter that selects the budget's spend
func (b *Budget) QueryOptions(start, end time.Time) CostQueryOptions {
	opts := CostQueryOptions{
		TenantID:       b.TenantID,
		SubscriptionID: b.SubscriptionID,
		StartTime:      start,
		EndTime:        end,
	}
	switch b.Scope {
	case ScopeSubscription:
		opts.SubscriptionID = b.ScopeID
	case ScopeResourceGroup:
		opts.ResourceGroup = b.ScopeID
	case ScopeService:
		opts.Service = b.ScopeID
	case ScopeTag:
		opts.Tag = b.ScopeID
	}
	return opts
}

// Matches reports whether the record falls inside the filter
func (o CostQueryOptions) Matches(r *CostRecord) bool {
	if o.TenantID != "" && r.TenantID != o.TenantID {
		return false
	}
	if o.SubscriptionID != "" && !strings.EqualFold(r.SubscriptionID, o.SubscriptionID) {
		return false
	}
	if o.ResourceGroup != "" && !strings.EqualFold(r.ResourceGroup, o.ResourceGroup) {
		return false
	}
	if o.Service != "" && !strings.EqualFold(r.Service, o.Service) {
		return false
	}
	if o.Location != "" && !strings.EqualFold(r.Location, o.Location) {
		return false
	}
	if o.Tag != "" {
		k, v, ok := splitTag(o.Tag)
		if !ok || r.Tags[k] != v {
			return false
		}
	}
	if !o.StartTime.IsZero() && r.Date.Before(o.StartTime) {
		return false
	}
	if !o.EndTime.IsZero() && !r.Date.Before(o.EndTime) {
		return false
	}
	return true
}

// GroupValue returns the record's value for a breakdown dimension
func (r *CostRecord) GroupValue(groupBy string) string {
	switch groupBy {
	case GroupByResourceGroup:
		return r.ResourceGroup
	case GroupByService:
		return r.Service
	case GroupByLocation:
		return r.Location
	case GroupBySubscription:
		return r.SubscriptionID
	}
	return ""
}

// IsValidGroupBy reports whether groupBy is a breakdown dimension
func IsValidGroupBy(groupBy string) bool {
	for _, g := range GroupByDimensions {
		if g == groupBy {
			return true
		}
	}
	return false
}

func splitTag(s string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}

func isValidScope(s BudgetScope) bool {
	switch s {
	case ScopeSubscription, ScopeResourceGroup, ScopeService, ScopeTag:
		return true
	}
	return false
}

func isValidPeriod(p BudgetPeriod) bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	}
	return false
}

func isValidOnExceed(a OnExceedAction) bool {
	switch a {
	case "", OnExceedWarn, OnExceedBlock:
		// Empty string defaults to warn
		return true
	}
	return false
}
