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

package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

const assessmentSchema = `
	CREATE TABLE IF NOT EXISTS compliance_assessments (
		id              TEXT PRIMARY KEY,
		tenant_id       TEXT,
		subscription_id TEXT NOT NULL,
		resource_group  TEXT,
		baseline        TEXT NOT NULL,
		status          TEXT NOT NULL,
		score           DOUBLE PRECISION NOT NULL,
		finding_count   INTEGER NOT NULL,
		data            JSONB NOT NULL,
		completed_at    TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_compliance_assessments_scope
		ON compliance_assessments (tenant_id, subscription_id, completed_at DESC);
`

// PostgresRepository stores assessments as JSONB documents with the
// listing columns denormalized
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the assessments table if it does not exist
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, assessmentSchema); err != nil {
		return fmt.Errorf("failed to create compliance schema: %w", err)
	}
	return nil
}

// SaveAssessment inserts or replaces an assessment
func (r *PostgresRepository) SaveAssessment(ctx context.Context, a *Assessment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}

	query := `
		INSERT INTO compliance_assessments (
			id, tenant_id, subscription_id, resource_group, baseline,
			status, score, finding_count, data, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, score = EXCLUDED.score,
			finding_count = EXCLUDED.finding_count, data = EXCLUDED.data,
			completed_at = EXCLUDED.completed_at
	`
	_, err = r.db.ExecContext(ctx, query,
		a.ID, nullString(a.TenantID), a.SubscriptionID, nullString(a.ResourceGroup),
		string(a.Baseline), string(a.Status), a.Score, len(a.Findings), data, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save assessment: %w", err)
	}
	return nil
}

// GetAssessment loads one assessment
func (r *PostgresRepository) GetAssessment(ctx context.Context, id string) (*Assessment, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM compliance_assessments WHERE id = $1`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrAssessmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return decodeAssessment(data)
}

func decodeAssessment(data []byte) (*Assessment, error) {
	var a Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assessment: %w", err)
	}
	return &a, nil
}

func scopeConditions(tenantID, subscriptionID string) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if tenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, tenantID)
		argIndex++
	}
	if subscriptionID != "" {
		conditions = append(conditions, fmt.Sprintf("subscription_id = $%d", argIndex))
		args = append(args, subscriptionID)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// ListAssessments returns summaries newest first with the total count
func (r *PostgresRepository) ListAssessments(ctx context.Context, opts ListOptions) ([]AssessmentSummary, int, error) {
	whereClause, args := scopeConditions(opts.TenantID, opts.SubscriptionID)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM compliance_assessments %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count assessments: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	argIndex := len(args) + 1

	query := fmt.Sprintf(`
		SELECT id, subscription_id, resource_group, baseline, status, score, finding_count, completed_at
		FROM compliance_assessments
		%s
		ORDER BY completed_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	var out []AssessmentSummary
	for rows.Next() {
		var s AssessmentSummary
		var rg sql.NullString
		if err := rows.Scan(&s.ID, &s.SubscriptionID, &rg, &s.Baseline, &s.Status, &s.Score, &s.Findings, &s.CompletedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan assessment: %w", err)
		}
		s.ResourceGroup = rg.String
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate assessments: %w", err)
	}
	return out, total, nil
}

// LatestAssessment returns the most recent assessment of a subscription
func (r *PostgresRepository) LatestAssessment(ctx context.Context, tenantID, subscriptionID string) (*Assessment, error) {
	whereClause, args := scopeConditions(tenantID, subscriptionID)
	query := fmt.Sprintf(`SELECT data FROM compliance_assessments %s ORDER BY completed_at DESC LIMIT 1`, whereClause)

	var data []byte
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrAssessmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest assessment: %w", err)
	}
	return decodeAssessment(data)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
