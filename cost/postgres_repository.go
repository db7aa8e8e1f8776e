// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const costSchema = `
CREATE TABLE IF NOT EXISTS cost_budgets (
	id VARCHAR(128) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	description TEXT,
	scope VARCHAR(32) NOT NULL,
	scope_id VARCHAR(255),
	subscription_id VARCHAR(64),
	limit_usd NUMERIC(14, 2) NOT NULL,
	period VARCHAR(16) NOT NULL,
	on_exceed VARCHAR(16) NOT NULL,
	alert_thresholds JSONB NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT true,
	tenant_id VARCHAR(255),
	created_by VARCHAR(255),
	updated_by VARCHAR(255),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_budgets_scope ON cost_budgets (scope, scope_id) WHERE enabled;
CREATE TABLE IF NOT EXISTS cost_records (
	id UUID PRIMARY KEY,
	tenant_id VARCHAR(255) NOT NULL DEFAULT '',
	subscription_id VARCHAR(64) NOT NULL,
	resource_group VARCHAR(128) NOT NULL DEFAULT '',
	service VARCHAR(255) NOT NULL DEFAULT '',
	location VARCHAR(64) NOT NULL DEFAULT '',
	tags JSONB NOT NULL DEFAULT '{}',
	usage_date DATE NOT NULL,
	cost_usd NUMERIC(18, 6) NOT NULL,
	currency VARCHAR(8) NOT NULL,
	source VARCHAR(64) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_records_tenant_date ON cost_records (tenant_id, usage_date);
CREATE TABLE IF NOT EXISTS cost_aggregates (
	tenant_id VARCHAR(255) NOT NULL DEFAULT '',
	scope VARCHAR(32) NOT NULL,
	scope_id VARCHAR(255) NOT NULL,
	period VARCHAR(16) NOT NULL,
	period_start TIMESTAMPTZ NOT NULL,
	total_cost_usd NUMERIC(18, 6) NOT NULL,
	record_count INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, scope, scope_id, period, period_start)
);
CREATE TABLE IF NOT EXISTS cost_budget_alerts (
	id BIGSERIAL PRIMARY KEY,
	budget_id VARCHAR(128) NOT NULL,
	threshold INTEGER NOT NULL,
	percentage_reached NUMERIC(8, 2) NOT NULL,
	amount_usd NUMERIC(14, 2) NOT NULL,
	alert_type VARCHAR(32) NOT NULL,
	message TEXT,
	period_start TIMESTAMPTZ NOT NULL,
	acknowledged BOOLEAN NOT NULL DEFAULT false,
	acknowledged_by VARCHAR(255),
	acknowledged_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_budget_alerts_budget ON cost_budget_alerts (budget_id, created_at DESC);
`

const budgetColumns = `id, name, description, scope, scope_id, subscription_id, limit_usd, period,
	on_exceed, alert_thresholds, enabled, tenant_id, created_by, updated_by, created_at, updated_at`

const recordColumns = `id, tenant_id, subscription_id, resource_group, service, location, tags,
	usage_date, cost_usd, currency, source, created_at`

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the cost tables if they do not exist
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, costSchema); err != nil {
		return fmt.Errorf("failed to create cost schema: %w", err)
	}
	return nil
}

// CreateBudget creates a new budget
func (r *PostgresRepository) CreateBudget(ctx context.Context, budget *Budget) error {
	thresholds, err := budget.MarshalAlertThresholds()
	if err != nil {
		return fmt.Errorf("failed to marshal alert thresholds: %w", err)
	}

	query := `
		INSERT INTO cost_budgets (` + budgetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		budget.ID, budget.Name, budget.Description, budget.Scope, budget.ScopeID,
		nullString(budget.SubscriptionID), budget.LimitUSD, budget.Period, budget.OnExceed,
		thresholds, budget.Enabled, nullString(budget.TenantID),
		nullString(budget.CreatedBy), nullString(budget.UpdatedBy),
		budget.CreatedAt, budget.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrBudgetExists
		}
		return fmt.Errorf("failed to create budget: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBudget(row scanner) (*Budget, error) {
	var budget Budget
	var thresholds []byte
	var description, scopeID, subscriptionID, tenantID, createdBy, updatedBy sql.NullString

	if err := row.Scan(
		&budget.ID, &budget.Name, &description, &budget.Scope, &scopeID, &subscriptionID,
		&budget.LimitUSD, &budget.Period, &budget.OnExceed, &thresholds,
		&budget.Enabled, &tenantID, &createdBy, &updatedBy,
		&budget.CreatedAt, &budget.UpdatedAt,
	); err != nil {
		return nil, err
	}

	budget.Description = description.String
	budget.ScopeID = scopeID.String
	budget.SubscriptionID = subscriptionID.String
	budget.TenantID = tenantID.String
	budget.CreatedBy = createdBy.String
	budget.UpdatedBy = updatedBy.String

	if err := budget.UnmarshalAlertThresholds(thresholds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert thresholds: %w", err)
	}
	return &budget, nil
}

// GetBudget retrieves a budget by ID
func (r *PostgresRepository) GetBudget(ctx context.Context, id string) (*Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM cost_budgets WHERE id = $1`

	budget, err := scanBudget(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrBudgetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return budget, nil
}

// UpdateBudget updates an existing budget
func (r *PostgresRepository) UpdateBudget(ctx context.Context, budget *Budget) error {
	thresholds, err := budget.MarshalAlertThresholds()
	if err != nil {
		return fmt.Errorf("failed to marshal alert thresholds: %w", err)
	}

	query := `
		UPDATE cost_budgets SET
			name = $2, description = $3, scope = $4, scope_id = $5, subscription_id = $6,
			limit_usd = $7, period = $8, on_exceed = $9, alert_thresholds = $10,
			enabled = $11, updated_by = $12, updated_at = $13
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		budget.ID, budget.Name, budget.Description, budget.Scope, budget.ScopeID,
		nullString(budget.SubscriptionID), budget.LimitUSD, budget.Period, budget.OnExceed,
		thresholds, budget.Enabled, nullString(budget.UpdatedBy), budget.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update budget: %w", err)
	}
	return requireRow(result, ErrBudgetNotFound)
}

// DeleteBudget deletes a budget
func (r *PostgresRepository) DeleteBudget(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cost_budgets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete budget: %w", err)
	}
	return requireRow(result, ErrBudgetNotFound)
}

func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// ListBudgets lists budgets with filtering and pagination
func (r *PostgresRepository) ListBudgets(ctx context.Context, opts ListBudgetsOptions) ([]Budget, int, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if opts.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, opts.TenantID)
		argIndex++
	}
	if opts.SubscriptionID != "" {
		conditions = append(conditions, fmt.Sprintf("subscription_id = $%d", argIndex))
		args = append(args, opts.SubscriptionID)
		argIndex++
	}
	if opts.Scope != "" {
		conditions = append(conditions, fmt.Sprintf("scope = $%d", argIndex))
		args = append(args, opts.Scope)
		argIndex++
	}
	if opts.ScopeID != "" {
		conditions = append(conditions, fmt.Sprintf("scope_id = $%d", argIndex))
		args = append(args, opts.ScopeID)
		argIndex++
	}
	if opts.Enabled != nil {
		conditions = append(conditions, fmt.Sprintf("enabled = $%d", argIndex))
		args = append(args, *opts.Enabled)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM cost_budgets %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count budgets: %w", err)
	}

	limit, offset := pageBounds(opts.Limit, opts.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM cost_budgets
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, budgetColumns, whereClause, argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	budgets := []Budget{}
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan budget: %w", err)
		}
		budgets = append(budgets, *budget)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate budgets: %w", err)
	}
	return budgets, total, nil
}

// GetBudgetsForScope gets the enabled budgets of a scope
func (r *PostgresRepository) GetBudgetsForScope(ctx context.Context, scope BudgetScope, scopeID, tenantID string) ([]Budget, error) {
	query := `
		SELECT ` + budgetColumns + `
		FROM cost_budgets
		WHERE enabled = true
		  AND scope = $1
		  AND LOWER(scope_id) = LOWER($2)
		  AND ($3 = '' OR tenant_id = $3)
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, scope, scopeID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get budgets for scope: %w", err)
	}
	defer rows.Close()

	var budgets []Budget
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			continue // Skip malformed entries
		}
		budgets = append(budgets, *budget)
	}
	return budgets, rows.Err()
}

// SaveCostRecords upserts records by ID in one transaction
func (r *PostgresRepository) SaveCostRecords(ctx context.Context, records []CostRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cost_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			cost_usd = EXCLUDED.cost_usd,
			currency = EXCLUDED.currency,
			source = EXCLUDED.source
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cost record insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		tags, err := json.Marshal(nonNilTags(rec.Tags))
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.TenantID, rec.SubscriptionID, rec.ResourceGroup, rec.Service, rec.Location,
			string(tags), rec.Date, rec.CostUSD, rec.Currency, rec.Source, rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to save cost record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cost records: %w", err)
	}
	return nil
}

// costConditions builds the WHERE conditions of a cost query starting at
// placeholder argIndex
func costConditions(opts CostQueryOptions, argIndex int) ([]string, []interface{}, int, error) {
	var conditions []string
	var args []interface{}

	add := func(cond string, v interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, argIndex))
		args = append(args, v)
		argIndex++
	}
	if opts.TenantID != "" {
		add("tenant_id = $%d", opts.TenantID)
	}
	if opts.SubscriptionID != "" {
		add("LOWER(subscription_id) = LOWER($%d)", opts.SubscriptionID)
	}
	if opts.ResourceGroup != "" {
		add("resource_group = LOWER($%d)", opts.ResourceGroup)
	}
	if opts.Service != "" {
		add("LOWER(service) = LOWER($%d)", opts.Service)
	}
	if opts.Location != "" {
		add("location = LOWER($%d)", opts.Location)
	}
	if opts.Tag != "" {
		k, v, ok := splitTag(opts.Tag)
		if !ok {
			return nil, nil, 0, fmt.Errorf("%w: tag must be key=value", ErrInvalidInput)
		}
		filter, err := json.Marshal(map[string]string{k: v})
		if err != nil {
			return nil, nil, 0, err
		}
		add("tags @> $%d::jsonb", string(filter))
	}
	if !opts.StartTime.IsZero() {
		add("usage_date >= $%d", truncateDay(opts.StartTime))
	}
	if !opts.EndTime.IsZero() {
		add("usage_date < $%d", opts.EndTime)
	}
	return conditions, args, argIndex, nil
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conditions, " AND ")
}

// GetCostForPeriod gets total cost matching opts
func (r *PostgresRepository) GetCostForPeriod(ctx context.Context, opts CostQueryOptions) (float64, error) {
	conditions, args, _, err := costConditions(opts, 1)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`SELECT COALESCE(SUM(cost_usd), 0) FROM cost_records %s`, whereClause(conditions))

	var total float64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to get cost for period: %w", err)
	}
	return total, nil
}

// GetCostSummary returns a cost summary for a time period
func (r *PostgresRepository) GetCostSummary(ctx context.Context, opts CostQueryOptions) (*CostSummary, error) {
	conditions, args, _, err := costConditions(opts, 1)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(cost_usd), 0) as total_cost,
			COUNT(*) as record_count,
			COUNT(DISTINCT usage_date) as days
		FROM cost_records
		%s
	`, whereClause(conditions))

	summary := &CostSummary{Currency: "USD", Period: opts.Period, PeriodStart: opts.StartTime, PeriodEnd: opts.EndTime}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.TotalCostUSD, &summary.RecordCount, &summary.Days,
	); err != nil {
		return nil, fmt.Errorf("failed to get cost summary: %w", err)
	}
	if summary.Days > 0 {
		summary.AverageDailyUSD = summary.TotalCostUSD / float64(summary.Days)
	}
	return summary, nil
}

var groupByColumns = map[string]string{
	GroupByResourceGroup: "resource_group",
	GroupByService:       "service",
	GroupByLocation:      "location",
	GroupBySubscription:  "subscription_id",
}

// GetCostBreakdown returns spend grouped by one dimension
func (r *PostgresRepository) GetCostBreakdown(ctx context.Context, groupBy string, opts CostQueryOptions) (*Breakdown, error) {
	column, ok := groupByColumns[groupBy]
	if !ok {
		return nil, ErrInvalidGroupBy
	}
	conditions, args, _, err := costConditions(opts, 1)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s, COALESCE(SUM(cost_usd), 0), COUNT(*)
		FROM cost_records
		%s
		GROUP BY %s
		ORDER BY 2 DESC
	`, column, whereClause(conditions), column)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get cost breakdown: %w", err)
	}
	defer rows.Close()

	bd := &Breakdown{GroupBy: groupBy, Period: opts.Period, StartTime: opts.StartTime, EndTime: opts.EndTime}
	for rows.Next() {
		var item BreakdownItem
		if err := rows.Scan(&item.GroupValue, &item.CostUSD, &item.RecordCount); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown item: %w", err)
		}
		bd.TotalCostUSD += item.CostUSD
		bd.Items = append(bd.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate breakdown: %w", err)
	}
	finishBreakdown(bd)
	return bd, nil
}

// ListCostRecords lists cost records newest first
func (r *PostgresRepository) ListCostRecords(ctx context.Context, opts CostQueryOptions) ([]CostRecord, int, error) {
	conditions, args, argIndex, err := costConditions(opts, 1)
	if err != nil {
		return nil, 0, err
	}
	where := whereClause(conditions)

	var total int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM cost_records %s", where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count cost records: %w", err)
	}

	limit, offset := pageBounds(opts.Limit, opts.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM cost_records
		%s
		ORDER BY usage_date DESC, id
		LIMIT $%d OFFSET $%d
	`, recordColumns, where, argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cost records: %w", err)
	}
	defer rows.Close()

	records := []CostRecord{}
	for rows.Next() {
		var rec CostRecord
		var tags []byte
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.SubscriptionID, &rec.ResourceGroup, &rec.Service, &rec.Location,
			&tags, &rec.Date, &rec.CostUSD, &rec.Currency, &rec.Source, &rec.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan cost record: %w", err)
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &rec.Tags); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal tags: %w", err)
			}
		}
		if len(rec.Tags) == 0 {
			rec.Tags = nil
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate cost records: %w", err)
	}
	return records, total, nil
}

// GetDailyCosts returns total spend per day, oldest first
func (r *PostgresRepository) GetDailyCosts(ctx context.Context, opts CostQueryOptions) ([]DailyCost, error) {
	conditions, args, _, err := costConditions(opts, 1)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT usage_date, COALESCE(SUM(cost_usd), 0)
		FROM cost_records
		%s
		GROUP BY usage_date
		ORDER BY usage_date
	`, whereClause(conditions))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily costs: %w", err)
	}
	defer rows.Close()

	var out []DailyCost
	for rows.Next() {
		var d DailyCost
		if err := rows.Scan(&d.Date, &d.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan daily cost: %w", err)
		}
		d.Date = truncateDay(d.Date)
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateAggregate upserts an aggregate, replacing the stored total
func (r *PostgresRepository) UpdateAggregate(ctx context.Context, agg *CostAggregate) error {
	query := `
		INSERT INTO cost_aggregates (
			tenant_id, scope, scope_id, period, period_start, total_cost_usd, record_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, scope, scope_id, period, period_start)
		DO UPDATE SET
			total_cost_usd = EXCLUDED.total_cost_usd,
			record_count = EXCLUDED.record_count,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		agg.TenantID, agg.Scope, agg.ScopeID, agg.Period, agg.PeriodStart,
		agg.TotalCostUSD, agg.RecordCount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update aggregate: %w", err)
	}
	return nil
}

// ListAggregates lists aggregates of a scope in [startTime, endTime). A zero
// endTime is open ended and an empty scopeID matches every scope id.
func (r *PostgresRepository) ListAggregates(ctx context.Context, scope, scopeID string, period AggregatePeriod, startTime, endTime time.Time, tenantID string) ([]CostAggregate, error) {
	conditions := []string{"tenant_id = $1", "scope = $2", "period = $3", "period_start >= $4"}
	args := []interface{}{tenantID, scope, period, startTime}
	if scopeID != "" {
		args = append(args, scopeID)
		conditions = append(conditions, fmt.Sprintf("scope_id = $%d", len(args)))
	}
	if !endTime.IsZero() {
		args = append(args, endTime)
		conditions = append(conditions, fmt.Sprintf("period_start < $%d", len(args)))
	}
	query := fmt.Sprintf(`
		SELECT tenant_id, scope, scope_id, period, period_start, total_cost_usd, record_count, updated_at
		FROM cost_aggregates
		%s
		ORDER BY period_start, scope_id
	`, whereClause(conditions))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list aggregates: %w", err)
	}
	defer rows.Close()

	var out []CostAggregate
	for rows.Next() {
		var a CostAggregate
		if err := rows.Scan(&a.TenantID, &a.Scope, &a.ScopeID, &a.Period, &a.PeriodStart,
			&a.TotalCostUSD, &a.RecordCount, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveAlert saves a budget alert and sets its ID
func (r *PostgresRepository) SaveAlert(ctx context.Context, alert *BudgetAlert) error {
	query := `
		INSERT INTO cost_budget_alerts (
			budget_id, threshold, percentage_reached, amount_usd, alert_type, message, period_start, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, query,
		alert.BudgetID, alert.Threshold, alert.PercentageReached, alert.AmountUSD,
		alert.AlertType, alert.Message, alert.PeriodStart, alert.CreatedAt,
	).Scan(&alert.ID)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// AcknowledgeAlert acknowledges an alert
func (r *PostgresRepository) AcknowledgeAlert(ctx context.Context, alertID int64, acknowledgedBy string) error {
	query := `
		UPDATE cost_budget_alerts
		SET acknowledged = true, acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, alertID, nullString(acknowledgedBy), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return requireRow(result, ErrAlertNotFound)
}

// GetRecentAlerts gets the most recent alerts of a budget
func (r *PostgresRepository) GetRecentAlerts(ctx context.Context, budgetID string, limit int) ([]BudgetAlert, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT id, budget_id, threshold, percentage_reached, amount_usd, alert_type, message,
			   period_start, acknowledged, acknowledged_by, acknowledged_at, created_at
		FROM cost_budget_alerts
		WHERE budget_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, budgetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent alerts: %w", err)
	}
	defer rows.Close()

	var alerts []BudgetAlert
	for rows.Next() {
		var a BudgetAlert
		var message, acknowledgedBy sql.NullString
		var acknowledgedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.BudgetID, &a.Threshold, &a.PercentageReached, &a.AmountUSD,
			&a.AlertType, &message, &a.PeriodStart, &a.Acknowledged, &acknowledgedBy,
			&acknowledgedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Message = message.String
		a.AcknowledgedBy = acknowledgedBy.String
		if acknowledgedAt.Valid {
			t := acknowledgedAt.Time
			a.AcknowledgedAt = &t
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nonNilTags(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return tags
}

// nullString converts empty string to sql.NullString
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
