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
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var documentRowColumns = []string{
	"id", "tenant_id", "doc_type", "title", "format", "content_type", "assessment_id",
	"subscription_id", "system_name", "size_bytes", "sha256", "storage_key", "created_by", "created_at",
}

func sampleDocument() *Document {
	return &Document{
		ID: "d-1", TenantID: "tenant-a", Type: TypeSSP, Title: "System Security Plan: Payments",
		Format: FormatMarkdown, ContentType: FormatMarkdown.ContentType(), AssessmentID: "a-1",
		SubscriptionID: testSubscription, SystemName: "Payments", Size: 42,
		SHA256: "ab", StorageKey: "tenant-a/ssp/d-1.md", CreatedAt: generatedAt,
	}
}

func newMockRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestPostgresRepository_SaveAndGet(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()
	d := sampleDocument()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS compliance_documents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO compliance_documents")).
		WithArgs("d-1", sql.NullString{String: "tenant-a", Valid: true}, "ssp", d.Title, "markdown", d.ContentType,
			"a-1", testSubscription, "Payments", int64(42), "ab", d.StorageKey, sql.NullString{}, generatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM compliance_documents WHERE id = $1")).
		WithArgs("d-1").
		WillReturnRows(sqlmock.NewRows(documentRowColumns).AddRow(
			"d-1", "tenant-a", "ssp", d.Title, "markdown", d.ContentType, "a-1",
			testSubscription, "Payments", 42, "ab", d.StorageKey, nil, generatedAt))
	mock.ExpectQuery(regexp.QuoteMeta("FROM compliance_documents WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.Save(ctx, d))

	got, err := repo.Get(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_List(t *testing.T) {
	repo, mock := newMockRepository(t)
	d := sampleDocument()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM compliance_documents WHERE tenant_id = $1 AND doc_type = $2 AND assessment_id = $3")).
		WithArgs("tenant-a", "ssp", "a-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $4 OFFSET $5")).
		WithArgs("tenant-a", "ssp", "a-1", 1, 2).
		WillReturnRows(sqlmock.NewRows(documentRowColumns).AddRow(
			"d-1", "tenant-a", "ssp", d.Title, "markdown", d.ContentType, "a-1",
			testSubscription, "Payments", 42, "ab", d.StorageKey, "alice", generatedAt))

	list, total, err := repo.List(context.Background(), ListOptions{
		TenantID: "tenant-a", Type: TypeSSP, AssessmentID: "a-1", Limit: 1, Offset: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].CreatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Delete(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM compliance_documents WHERE id = $1")).
		WithArgs("d-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM compliance_documents WHERE id = $1")).
		WithArgs("d-2").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "d-1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "d-2"), ErrDocumentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
