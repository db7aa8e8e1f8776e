// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"copilot/platform/infra"
)

// Alerter defines the interface for sending budget alerts
type Alerter interface {
	Alert(ctx context.Context, event AlertEvent) error
}

// AlertEvent represents a budget alert event
type AlertEvent struct {
	BudgetID   string    `json:"budget_id"`
	BudgetName string    `json:"budget_name"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Threshold  int       `json:"threshold"`
	Current    float64   `json:"current_percentage"`
	UsedUSD    float64   `json:"used_usd"`
	LimitUSD   float64   `json:"limit_usd"`
	Message    string    `json:"message"`
	AlertType  string    `json:"alert_type"`
	Timestamp  time.Time `json:"timestamp"`
}

// LogAlerter is a simple alerter that writes alerts to the log
type LogAlerter struct {
	logger *log.Logger
}

// NewLogAlerter creates a new log-based alerter
func NewLogAlerter(logger *log.Logger) *LogAlerter {
	if logger == nil {
		logger = log.Default()
	}
	return &LogAlerter{logger: logger}
}

// Alert logs the alert event
func (a *LogAlerter) Alert(ctx context.Context, event AlertEvent) error {
	a.logger.Printf("[COST ALERT] %s: %s (%.1f%% - $%.2f / $%.2f)",
		event.AlertType, event.Message, event.Current, event.UsedUSD, event.LimitUSD)
	return nil
}

// Service provides cost tracking and budget management
type Service struct {
	repo    Repository
	pricing *PricingConfig
	alerter Alerter
	source  CostSource
	logger  *log.Logger
	now     func() time.Time
	mu      sync.RWMutex

	// Thresholds already alerted, keyed by budget and period start
	alertedThresholds map[string]map[int]bool
}

// NewService creates a new cost service
func NewService(repo Repository, pricing *PricingConfig) *Service {
	return NewServiceWithOptions(repo, pricing, nil, nil)
}

// NewServiceWithOptions creates a service with custom options
func NewServiceWithOptions(repo Repository, pricing *PricingConfig, alerter Alerter, logger *log.Logger) *Service {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if pricing == nil {
		pricing = NewPricingConfig()
	}
	if logger == nil {
		logger = log.Default()
	}
	if alerter == nil {
		alerter = NewLogAlerter(logger)
	}
	return &Service{
		repo:              repo,
		pricing:           pricing,
		alerter:           alerter,
		logger:            logger,
		now:               func() time.Time { return time.Now().UTC() },
		alertedThresholds: make(map[string]map[int]bool),
	}
}

// SetCostSource configures where Ingest pulls Cost Management data from
func (s *Service) SetCostSource(src CostSource) {
	s.source = src
}

func (s *Service) checkBudgetForScope(ctx context.Context, scope BudgetScope, scopeID, tenantID string, seen map[string]bool) {
	budgets, err := s.repo.GetBudgetsForScope(ctx, scope, scopeID, tenantID)
	if err != nil {
		s.logger.Printf("[Cost] Failed to get budgets for scope %s/%s: %v", scope, scopeID, err)
		return
	}

	for _, budget := range budgets {
		if seen[budget.ID] {
			continue
		}
		seen[budget.ID] = true
		budget := budget
		s.checkSingleBudget(ctx, &budget)
	}
}

func (s *Service) checkSingleBudget(ctx context.Context, budget *Budget) {
	periodStart := s.getPeriodStart(budget.Period)
	periodEnd := s.getPeriodEnd(budget.Period, periodStart)
	used, err := s.repo.GetCostForPeriod(ctx, budget.QueryOptions(periodStart, periodEnd))
	if err != nil {
		s.logger.Printf("[Cost] Failed to get cost for budget %s: %v", budget.ID, err)
		return
	}

	percentage := 0.0
	if budget.LimitUSD > 0 {
		percentage = (used / budget.LimitUSD) * 100
	}

	for _, threshold := range budget.AlertThresholds {
		if percentage >= float64(threshold) && !s.hasAlertedThreshold(budget.ID, periodStart, threshold) {
			s.sendAlert(ctx, budget, periodStart, threshold, percentage, used)
		}
	}
}

func alertKey(budgetID string, periodStart time.Time) string {
	return budgetID + "@" + periodStart.Format("2006-01-02")
}

func (s *Service) hasAlertedThreshold(budgetID string, periodStart time.Time, threshold int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if thresholds, ok := s.alertedThresholds[alertKey(budgetID, periodStart)]; ok {
		return thresholds[threshold]
	}
	return false
}

func (s *Service) markAlertedThreshold(budgetID string, periodStart time.Time, threshold int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertKey(budgetID, periodStart)
	if s.alertedThresholds[key] == nil {
		s.alertedThresholds[key] = make(map[int]bool)
	}
	s.alertedThresholds[key][threshold] = true
}

func (s *Service) sendAlert(ctx context.Context, budget *Budget, periodStart time.Time, threshold int, percentage, used float64) {
	alertType := AlertTypeThresholdReached
	if percentage >= 100 {
		if budget.OnExceed == OnExceedBlock {
			alertType = AlertTypeBudgetBlocked
		} else {
			alertType = AlertTypeBudgetExceeded
		}
	}

	message := fmt.Sprintf("Budget '%s' at %.1f%% ($%.2f / $%.2f)", budget.Name, percentage, used, budget.LimitUSD)

	event := AlertEvent{
		BudgetID:   budget.ID,
		BudgetName: budget.Name,
		TenantID:   budget.TenantID,
		Threshold:  threshold,
		Current:    percentage,
		UsedUSD:    used,
		LimitUSD:   budget.LimitUSD,
		Message:    message,
		AlertType:  alertType,
		Timestamp:  s.now(),
	}

	if err := s.alerter.Alert(ctx, event); err != nil {
		s.logger.Printf("[Cost] Failed to send alert: %v", err)
	}

	alert := &BudgetAlert{
		BudgetID:          budget.ID,
		Threshold:         threshold,
		PercentageReached: percentage,
		AmountUSD:         used,
		AlertType:         alertType,
		Message:           message,
		PeriodStart:       periodStart,
		CreatedAt:         s.now(),
	}
	if err := s.repo.SaveAlert(ctx, alert); err != nil {
		s.logger.Printf("[Cost] Failed to save alert: %v", err)
	}

	s.markAlertedThreshold(budget.ID, periodStart, threshold)
}

// CreateBudget creates a new budget
func (s *Service) CreateBudget(ctx context.Context, budget *Budget) error {
	budget.Normalize()
	if err := budget.Validate(); err != nil {
		return err
	}

	budget.CreatedAt = s.now()
	budget.UpdatedAt = budget.CreatedAt

	if err := s.repo.CreateBudget(ctx, budget); err != nil {
		return err
	}
	s.logger.Printf("[Cost] Created budget %s: scope=%s/%s limit=$%.2f period=%s",
		budget.ID, budget.Scope, budget.ScopeID, budget.LimitUSD, budget.Period)
	return nil
}

// GetBudget retrieves a budget visible to tenantID. An empty tenant sees
// every budget.
func (s *Service) GetBudget(ctx context.Context, tenantID, id string) (*Budget, error) {
	budget, err := s.repo.GetBudget(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenantID != "" && budget.TenantID != tenantID {
		return nil, ErrBudgetNotFound
	}
	return budget, nil
}

// UpdateBudget updates an existing budget owned by budget.TenantID
func (s *Service) UpdateBudget(ctx context.Context, budget *Budget) error {
	current, err := s.GetBudget(ctx, budget.TenantID, budget.ID)
	if err != nil {
		return err
	}
	budget.Normalize()
	if err := budget.Validate(); err != nil {
		return err
	}

	budget.TenantID = current.TenantID
	budget.CreatedAt = current.CreatedAt
	budget.CreatedBy = current.CreatedBy
	budget.UpdatedAt = s.now()
	if err := s.repo.UpdateBudget(ctx, budget); err != nil {
		return err
	}
	s.resetAlerts(budget.ID)
	return nil
}

// DeleteBudget deletes a budget
func (s *Service) DeleteBudget(ctx context.Context, tenantID, id string) error {
	if _, err := s.GetBudget(ctx, tenantID, id); err != nil {
		return err
	}
	s.resetAlerts(id)
	return s.repo.DeleteBudget(ctx, id)
}

// ListBudgets lists budgets with filtering
func (s *Service) ListBudgets(ctx context.Context, opts ListBudgetsOptions) ([]Budget, int, error) {
	return s.repo.ListBudgets(ctx, opts)
}

// GetBudgetStatus returns the current status of a budget
func (s *Service) GetBudgetStatus(ctx context.Context, tenantID, budgetID string) (*BudgetStatus, error) {
	budget, err := s.GetBudget(ctx, tenantID, budgetID)
	if err != nil {
		return nil, err
	}
	return s.statusFor(ctx, budget)
}

func (s *Service) statusFor(ctx context.Context, budget *Budget) (*BudgetStatus, error) {
	periodStart := s.getPeriodStart(budget.Period)
	periodEnd := s.getPeriodEnd(budget.Period, periodStart)

	used, err := s.repo.GetCostForPeriod(ctx, budget.QueryOptions(periodStart, periodEnd))
	if err != nil {
		return nil, fmt.Errorf("failed to get cost: %w", err)
	}

	percentage := 0.0
	if budget.LimitUSD > 0 {
		percentage = (used / budget.LimitUSD) * 100
	}

	return &BudgetStatus{
		Budget:       budget,
		UsedUSD:      used,
		RemainingUSD: budget.LimitUSD - used,
		Percentage:   percentage,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		IsExceeded:   used >= budget.LimitUSD,
		IsBlocked:    used >= budget.LimitUSD && budget.OnExceed == OnExceedBlock,
	}, nil
}

// BudgetCheckRequest names the scopes a planned change will spend in
type BudgetCheckRequest struct {
	TenantID       string            `json:"-"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	ResourceGroup  string            `json:"resource_group,omitempty"`
	Service        string            `json:"service,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

type scopeRef struct {
	scope   BudgetScope
	scopeID string
}

// scopes returns the budget scopes of the request, narrowest first
func (r BudgetCheckRequest) scopes() []scopeRef {
	var out []scopeRef
	keys := make([]string, 0, len(r.Tags))
	for k := range r.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, scopeRef{ScopeTag, k + "=" + r.Tags[k]})
	}
	if r.Service != "" {
		out = append(out, scopeRef{ScopeService, r.Service})
	}
	if r.ResourceGroup != "" {
		out = append(out, scopeRef{ScopeResourceGroup, r.ResourceGroup})
	}
	if r.SubscriptionID != "" {
		out = append(out, scopeRef{ScopeSubscription, r.SubscriptionID})
	}
	return out
}

// CheckBudget checks if a change should be allowed based on budgets. Budgets
// pinned to another subscription are ignored.
func (s *Service) CheckBudget(ctx context.Context, req BudgetCheckRequest) (*BudgetDecision, error) {
	if req.SubscriptionID == "" && req.ResourceGroup == "" && req.Service == "" && len(req.Tags) == 0 {
		return nil, fmt.Errorf("%w: at least one scope is required", ErrInvalidInput)
	}
	decision := &BudgetDecision{Allowed: true}

	for _, ref := range req.scopes() {
		budgets, err := s.repo.GetBudgetsForScope(ctx, ref.scope, ref.scopeID, req.TenantID)
		if err != nil {
			s.logger.Printf("[Cost] Failed to get budgets for scope %s/%s: %v", ref.scope, ref.scopeID, err)
			continue
		}

		for _, budget := range budgets {
			budget := budget
			if budget.SubscriptionID != "" && req.SubscriptionID != "" && budget.SubscriptionID != req.SubscriptionID {
				continue
			}
			status, err := s.statusFor(ctx, &budget)
			if err != nil {
				continue
			}

			if status.IsBlocked {
				return &BudgetDecision{
					Allowed:    false,
					Action:     OnExceedBlock,
					BudgetID:   budget.ID,
					BudgetName: budget.Name,
					UsedUSD:    status.UsedUSD,
					LimitUSD:   budget.LimitUSD,
					Percentage: status.Percentage,
					Message:    fmt.Sprintf("Budget '%s' exceeded - changes blocked", budget.Name),
				}, nil
			}

			if status.IsExceeded && decision.BudgetID == "" {
				decision.Action = budget.OnExceed
				decision.BudgetID = budget.ID
				decision.BudgetName = budget.Name
				decision.UsedUSD = status.UsedUSD
				decision.LimitUSD = budget.LimitUSD
				decision.Percentage = status.Percentage
				decision.Message = fmt.Sprintf("Budget '%s' exceeded - %.1f%%", budget.Name, status.Percentage)
			}
		}
	}

	return decision, nil
}

// withPeriod sets a default time range based on opts.Period
func (s *Service) withPeriod(opts CostQueryOptions) CostQueryOptions {
	if opts.StartTime.IsZero() && opts.Period != "" {
		opts.StartTime = s.getPeriodStart(BudgetPeriod(opts.Period))
		opts.EndTime = s.getPeriodEnd(BudgetPeriod(opts.Period), opts.StartTime)
	}
	return opts
}

// GetCostSummary returns a cost summary for a period
func (s *Service) GetCostSummary(ctx context.Context, opts CostQueryOptions) (*CostSummary, error) {
	return s.repo.GetCostSummary(ctx, s.withPeriod(opts))
}

// GetCostBreakdown returns spend broken down by one dimension
func (s *Service) GetCostBreakdown(ctx context.Context, groupBy string, opts CostQueryOptions) (*Breakdown, error) {
	if !IsValidGroupBy(groupBy) {
		return nil, ErrInvalidGroupBy
	}
	return s.repo.GetCostBreakdown(ctx, groupBy, s.withPeriod(opts))
}

// ListCostRecords lists cost records
func (s *Service) ListCostRecords(ctx context.Context, opts CostQueryOptions) ([]CostRecord, int, error) {
	return s.repo.ListCostRecords(ctx, s.withPeriod(opts))
}

// ListAggregates returns stored aggregates of one dimension
func (s *Service) ListAggregates(ctx context.Context, tenantID, scope, scopeID string, period AggregatePeriod, start, end time.Time) ([]CostAggregate, error) {
	if !IsValidGroupBy(scope) {
		return nil, ErrInvalidGroupBy
	}
	if period != AggregateDaily && period != AggregateMonthly {
		return nil, fmt.Errorf("%w: aggregate period must be daily or monthly", ErrInvalidInput)
	}
	return s.repo.ListAggregates(ctx, scope, scopeID, period, start, end, tenantID)
}

// Forecast projects month-end spend for the filter from the completed days
// of the current month
func (s *Service) Forecast(ctx context.Context, opts CostQueryOptions) (*Forecast, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	today := truncateDay(now)

	opts.StartTime = monthStart
	opts.EndTime = monthEnd
	daily, err := s.repo.GetDailyCosts(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily costs: %w", err)
	}

	f := &Forecast{
		MonthStart:  monthStart,
		MonthEnd:    monthEnd,
		DaysInMonth: int(monthEnd.Sub(monthStart).Hours() / 24),
		DaysElapsed: int(today.Sub(monthStart).Hours() / 24),
	}
	var completed float64
	for _, d := range daily {
		f.ActualToDateUSD += d.CostUSD
		if d.Date.Before(today) {
			completed += d.CostUSD
		}
	}

	if f.DaysElapsed > 0 {
		f.DailyAverageUSD = completed / float64(f.DaysElapsed)
		f.ProjectedUSD = completed + f.DailyAverageUSD*float64(f.DaysInMonth-f.DaysElapsed)
	} else {
		f.ProjectedUSD = f.ActualToDateUSD
	}
	f.ActualToDateUSD = roundCents(f.ActualToDateUSD)
	f.DailyAverageUSD = roundCents(f.DailyAverageUSD)
	f.ProjectedUSD = roundCents(f.ProjectedUSD)
	return f, nil
}

// ForecastBudget forecasts the spend of a budget's scope and compares it to
// the limit. Only monthly budgets carry the comparison.
func (s *Service) ForecastBudget(ctx context.Context, tenantID, budgetID string) (*Forecast, error) {
	budget, err := s.GetBudget(ctx, tenantID, budgetID)
	if err != nil {
		return nil, err
	}
	f, err := s.Forecast(ctx, budget.QueryOptions(time.Time{}, time.Time{}))
	if err != nil {
		return nil, err
	}
	if budget.Period == PeriodMonthly {
		f.BudgetUSD = budget.LimitUSD
		f.ProjectedOver = f.ProjectedUSD > budget.LimitUSD
	}
	return f, nil
}

// minAnomalyStdDev is the smallest deviation scale used for z-scores
const minAnomalyStdDev = 0.01

// DetectAnomalies flags completed days whose spend deviates from the
// trailing window by at least the z-score threshold. Days without records
// count as zero spend.
func (s *Service) DetectAnomalies(ctx context.Context, opts CostQueryOptions, ao AnomalyOptions) ([]Anomaly, error) {
	if ao.Days <= 0 {
		ao.Days = 7
	}
	if ao.TrailingDays <= 0 {
		ao.TrailingDays = 14
	}
	if ao.TrailingDays < 2 {
		return nil, fmt.Errorf("%w: trailing_days must be at least 2", ErrInvalidInput)
	}
	if ao.Threshold <= 0 {
		ao.Threshold = 3
	}

	today := truncateDay(s.now())
	evalStart := today.AddDate(0, 0, -ao.Days)
	opts.StartTime = evalStart.AddDate(0, 0, -ao.TrailingDays)
	opts.EndTime = today
	daily, err := s.repo.GetDailyCosts(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily costs: %w", err)
	}
	byDay := make(map[time.Time]float64, len(daily))
	for _, d := range daily {
		byDay[truncateDay(d.Date)] += d.CostUSD
	}

	anomalies := []Anomaly{}
	for day := evalStart; day.Before(today); day = day.AddDate(0, 0, 1) {
		window := make([]float64, 0, ao.TrailingDays)
		for i := ao.TrailingDays; i >= 1; i-- {
			window = append(window, byDay[day.AddDate(0, 0, -i)])
		}
		mean, stddev := meanStdDev(window)
		// a flat window still has a scale: one cent or 1% of the mean
		sigma := math.Max(stddev, math.Max(minAnomalyStdDev, math.Abs(mean)*0.01))
		cost := byDay[day]
		z := (cost - mean) / sigma
		if math.Abs(z) < ao.Threshold {
			continue
		}
		direction := "spike"
		if z < 0 {
			direction = "drop"
		}
		anomalies = append(anomalies, Anomaly{
			Date:      day,
			CostUSD:   roundCents(cost),
			MeanUSD:   roundCents(mean),
			StdDevUSD: roundCents(stddev),
			ZScore:    roundCents(z),
			Direction: direction,
		})
	}
	return anomalies, nil
}

func meanStdDev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// GetPricing returns the pricing configuration
func (s *Service) GetPricing() *PricingConfig {
	return s.pricing
}

// EstimateResources prices resource specs at the SKUs the generator emits
func (s *Service) EstimateResources(specs []infra.ResourceSpec, production bool) *Estimate {
	return s.pricing.Estimate(specs, production)
}

// GetRecentAlerts gets recent alerts for a budget
func (s *Service) GetRecentAlerts(ctx context.Context, tenantID, budgetID string, limit int) ([]BudgetAlert, error) {
	if _, err := s.GetBudget(ctx, tenantID, budgetID); err != nil {
		return nil, err
	}
	return s.repo.GetRecentAlerts(ctx, budgetID, limit)
}

// AcknowledgeAlert acknowledges an alert
func (s *Service) AcknowledgeAlert(ctx context.Context, alertID int64, acknowledgedBy string) error {
	return s.repo.AcknowledgeAlert(ctx, alertID, acknowledgedBy)
}

// IsHealthy checks if the service is healthy
func (s *Service) IsHealthy(ctx context.Context) bool {
	return s.repo.Ping(ctx) == nil
}

// getPeriodStart returns the start of the current period
func (s *Service) getPeriodStart(period BudgetPeriod) time.Time {
	now := s.now()

	switch period {
	case PeriodDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodWeekly:
		// Start from Monday
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return time.Date(now.Year(), now.Month(), now.Day()-weekday+1, 0, 0, 0, 0, time.UTC)
	case PeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	case PeriodQuarterly:
		quarter := (int(now.Month()) - 1) / 3
		return time.Date(now.Year(), time.Month(quarter*3+1), 1, 0, 0, 0, 0, time.UTC)
	case PeriodYearly:
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

// getPeriodEnd returns the end of the period
func (s *Service) getPeriodEnd(period BudgetPeriod, start time.Time) time.Time {
	switch period {
	case PeriodDaily:
		return start.AddDate(0, 0, 1)
	case PeriodWeekly:
		return start.AddDate(0, 0, 7)
	case PeriodMonthly:
		return start.AddDate(0, 1, 0)
	case PeriodQuarterly:
		return start.AddDate(0, 3, 0)
	case PeriodYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// resetAlerts forgets alerted thresholds of a budget in every period
func (s *Service) resetAlerts(budgetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := budgetID + "@"
	for key := range s.alertedThresholds {
		if strings.HasPrefix(key, prefix) {
			delete(s.alertedThresholds, key)
		}
	}
}
