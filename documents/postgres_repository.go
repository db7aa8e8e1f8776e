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

package documents

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const documentSchema = `
CREATE TABLE IF NOT EXISTS compliance_documents (
	id VARCHAR(64) PRIMARY KEY,
	tenant_id VARCHAR(255),
	doc_type VARCHAR(16) NOT NULL,
	title TEXT NOT NULL,
	format VARCHAR(16) NOT NULL,
	content_type VARCHAR(128) NOT NULL,
	assessment_id VARCHAR(64) NOT NULL,
	subscription_id VARCHAR(64) NOT NULL,
	system_name TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	sha256 CHAR(64) NOT NULL,
	storage_key TEXT NOT NULL,
	created_by VARCHAR(255),
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_compliance_documents_tenant ON compliance_documents (tenant_id, created_at DESC);
`

const documentColumns = `id, tenant_id, doc_type, title, format, content_type, assessment_id,
	subscription_id, system_name, size_bytes, sha256, storage_key, created_by, created_at`

// PostgresRepository stores document metadata in PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the documents table if it does not exist
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, documentSchema); err != nil {
		return fmt.Errorf("failed to create documents schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Save(ctx context.Context, d *Document) error {
	query := `
		INSERT INTO compliance_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		d.ID, nullString(d.TenantID), string(d.Type), d.Title, string(d.Format), d.ContentType,
		d.AssessmentID, d.SubscriptionID, d.SystemName, d.Size, d.SHA256, d.StorageKey,
		nullString(d.CreatedBy), d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*Document, error) {
	var d Document
	var tenantID, createdBy sql.NullString
	err := row.Scan(&d.ID, &tenantID, &d.Type, &d.Title, &d.Format, &d.ContentType, &d.AssessmentID,
		&d.SubscriptionID, &d.SystemName, &d.Size, &d.SHA256, &d.StorageKey, &createdBy, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.TenantID = tenantID.String
	d.CreatedBy = createdBy.String
	return &d, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM compliance_documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]Document, int, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if opts.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, opts.TenantID)
		argIndex++
	}
	if opts.Type != "" {
		conditions = append(conditions, fmt.Sprintf("doc_type = $%d", argIndex))
		args = append(args, string(opts.Type))
		argIndex++
	}
	if opts.AssessmentID != "" {
		conditions = append(conditions, fmt.Sprintf("assessment_id = $%d", argIndex))
		args = append(args, opts.AssessmentID)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM compliance_documents %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM compliance_documents %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		documentColumns, whereClause, argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return out, total, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM compliance_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
