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
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func sampleAssessment() *Assessment {
	return &Assessment{
		ID:             "a-1",
		TenantID:       "tenant-a",
		SubscriptionID: testSubscription,
		Baseline:       BaselineModerate,
		Status:         AssessmentCompleted,
		Score:          80,
		Findings:       []Finding{{ID: "F-001", RuleID: "storage-https-only", Severity: SeverityHigh}},
		CompletedAt:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPostgresRepository_EnsureSchema(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS compliance_assessments").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SaveAssessment(t *testing.T) {
	repo, mock := newMockRepository(t)
	a := sampleAssessment()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO compliance_assessments")).
		WithArgs("a-1", sql.NullString{String: "tenant-a", Valid: true}, testSubscription, sql.NullString{},
			"moderate", "completed", 80.0, 1, sqlmock.AnyArg(), a.CompletedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveAssessment(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetAssessment(t *testing.T) {
	repo, mock := newMockRepository(t)
	data, err := json.Marshal(sampleAssessment())
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM compliance_assessments WHERE id = $1")).
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))

	got, err := repo.GetAssessment(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", got.TenantID)
	assert.Len(t, got.Findings, 1)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM compliance_assessments WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetAssessment(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrAssessmentNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListAssessments(t *testing.T) {
	repo, mock := newMockRepository(t)
	completed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM compliance_assessments WHERE tenant_id = $1 AND subscription_id = $2")).
		WithArgs("tenant-a", testSubscription).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY completed_at DESC")).
		WithArgs("tenant-a", testSubscription, 2, 1).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "subscription_id", "resource_group", "baseline", "status", "score", "finding_count", "completed_at",
		}).
			AddRow("a-2", testSubscription, nil, "moderate", "completed", 90.5, 2, completed).
			AddRow("a-1", testSubscription, "rg", "low", "partial", 70.0, 4, completed.Add(-time.Hour)))

	list, total, err := repo.ListAssessments(context.Background(), ListOptions{
		TenantID: "tenant-a", SubscriptionID: testSubscription, Limit: 2, Offset: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, "", list[0].ResourceGroup)
	assert.Equal(t, "rg", list[1].ResourceGroup)
	assert.Equal(t, AssessmentPartial, list[1].Status)
	assert.Equal(t, 4, list[1].Findings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListAssessmentsDefaults(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM compliance_assessments")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $1 OFFSET $2")).
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "subscription_id", "resource_group", "baseline", "status", "score", "finding_count", "completed_at",
		}))

	list, total, err := repo.ListAssessments(context.Background(), ListOptions{Offset: -5})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_LatestAssessment(t *testing.T) {
	repo, mock := newMockRepository(t)
	data, err := json.Marshal(sampleAssessment())
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE subscription_id = $1 ORDER BY completed_at DESC LIMIT 1")).
		WithArgs(testSubscription).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))

	got, err := repo.LatestAssessment(context.Background(), "", testSubscription)
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.ID)

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 1")).
		WithArgs("tenant-b", testSubscription).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.LatestAssessment(context.Background(), "tenant-b", testSubscription)
	assert.True(t, errors.Is(err, ErrAssessmentNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
