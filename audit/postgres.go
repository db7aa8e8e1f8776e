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

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostgresStore writes events to the audit_events table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the audit table and its indexes when missing
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		tenant_id VARCHAR(255),
		user_id VARCHAR(255),
		request_id VARCHAR(255),
		action VARCHAR(255) NOT NULL,
		resource TEXT,
		method VARCHAR(16),
		route TEXT,
		status INTEGER,
		duration_ms DOUBLE PRECISION,
		details JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_audit_events_tenant_time ON audit_events(tenant_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_user ON audit_events(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events(action);`

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create audit tables: %w", err)
	}
	return nil
}

// WriteBatch inserts events in a single transaction
func (p *PostgresStore) WriteBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_events (
			id, timestamp, tenant_id, user_id, request_id, action,
			resource, method, route, status, duration_ms, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		details := "{}"
		if len(ev.Details) > 0 {
			b, err := json.Marshal(ev.Details)
			if err != nil {
				return fmt.Errorf("failed to marshal details for %s: %w", ev.ID, err)
			}
			details = string(b)
		}
		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.Timestamp, ev.TenantID, ev.UserID, ev.RequestID, ev.Action,
			ev.Resource, ev.Method, ev.Route, ev.Status, ev.DurationMS, details,
		); err != nil {
			return fmt.Errorf("failed to insert audit event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit batch: %w", err)
	}
	return nil
}

// Search returns events matching f, newest first
func (p *PostgresStore) Search(ctx context.Context, f Filter) ([]Event, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.TenantID != "" {
		add("tenant_id = $%d", f.TenantID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if !f.Since.IsZero() {
		add("timestamp >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("timestamp < $%d", f.Until)
	}

	query := `SELECT id, timestamp, tenant_id, user_id, request_id, action,
		resource, method, route, status, duration_ms, details FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.limit())
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			ev      Event
			ts      time.Time
			details []byte
		)
		if err := rows.Scan(&ev.ID, &ts, &ev.TenantID, &ev.UserID, &ev.RequestID, &ev.Action,
			&ev.Resource, &ev.Method, &ev.Route, &ev.Status, &ev.DurationMS, &details); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.Timestamp = ts.UTC()
		if len(details) > 0 && string(details) != "{}" {
			if err := json.Unmarshal(details, &ev.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details for %s: %w", ev.ID, err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// IsHealthy pings the database
func (p *PostgresStore) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return p.db.PingContext(ctx) == nil
}
