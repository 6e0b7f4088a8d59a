package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/progress"
	"github.com/ignite/listkeeper/internal/repository/postgres"
	"github.com/ignite/listkeeper/internal/worker"
)

func setupTestRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock, *progress.Tracker, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	tracker := progress.NewTracker(nil)
	h := NewHandlers(
		postgres.NewBatchRepo(db),
		postgres.NewJobRepo(db),
		postgres.NewLookupRepo(db),
		postgres.NewValidationRepo(db),
		nil,
		tracker,
		nil,
		worker.NewSuppressionLoader(db),
	)
	router := SetupRoutes(h)
	return router, mock, tracker, func() { db.Close() }
}

func TestHealthCheck(t *testing.T) {
	router, _, _, cleanup := setupTestRouter(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestGetBatch(t *testing.T) {
	router, mock, _, cleanup := setupTestRouter(t)
	defer cleanup()

	cols := []string{
		"id", "filename", "status", "total_lines", "imported_count", "duplicate_count",
		"rejected_count", "valid_count", "invalid_count", "error_message",
		"isolated_scope", "uploaded_by", "created_at", "completed_at",
	}
	mock.ExpectQuery("SELECT id, filename").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(3), "list.csv", "success", 100, 90, 5, 5, 0, 0, "",
				false, int64(1), time.Now(), nil))

	req := httptest.NewRequest("GET", "/api/batches/3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var batch domain.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, "list.csv", batch.Filename)
	assert.Equal(t, domain.BatchSuccess, batch.Status)
	assert.Equal(t, 100, batch.TotalLines)
}

func TestGetBatch_NotFound(t *testing.T) {
	router, mock, _, cleanup := setupTestRouter(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, filename").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest("GET", "/api/batches/99", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBatch_BadID(t *testing.T) {
	router, _, _, cleanup := setupTestRouter(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/batches/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartValidation(t *testing.T) {
	router, mock, _, cleanup := setupTestRouter(t)
	defer cleanup()

	cols := []string{
		"id", "filename", "status", "total_lines", "imported_count", "duplicate_count",
		"rejected_count", "valid_count", "invalid_count", "error_message",
		"isolated_scope", "uploaded_by", "created_at", "completed_at",
	}
	mock.ExpectQuery("SELECT id, filename").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(3), "list.csv", "success", 100, 90, 5, 5, 0, 0, "",
				false, int64(1), time.Now(), nil))
	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), time.Now()))

	body := bytes.NewBufferString(`{"method":"smtp"}`)
	req := httptest.NewRequest("POST", "/api/batches/3/validate", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var job domain.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, domain.JobValidate, job.Type)

	var payload worker.ValidatePayload
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, domain.MethodSMTP, payload.Method)
	assert.Equal(t, int64(3), payload.BatchID)
}

func TestStartValidation_BadMethod(t *testing.T) {
	router, _, _, cleanup := setupTestRouter(t)
	defer cleanup()

	body := bytes.NewBufferString(`{"method":"psychic"}`)
	req := httptest.NewRequest("POST", "/api/batches/3/validate", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJob(t *testing.T) {
	router, mock, tracker, cleanup := setupTestRouter(t)
	defer cleanup()

	mock.ExpectExec("UPDATE jobs SET cancel_requested").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest("POST", "/api/jobs/7/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, tracker.CancelRequested(req.Context(), 7))
}

func TestCancelJob_Finished(t *testing.T) {
	router, mock, _, cleanup := setupTestRouter(t)
	defer cleanup()

	mock.ExpectExec("UPDATE jobs SET cancel_requested").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest("POST", "/api/jobs/7/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobProgress_LiveAndFallback(t *testing.T) {
	router, mock, tracker, cleanup := setupTestRouter(t)
	defer cleanup()

	// Live progress published by a worker.
	tracker.Set(httptest.NewRequest("GET", "/", nil).Context(), domain.Progress{
		JobID: 5, Processed: 40, Total: 100, Status: domain.JobRunning,
	})

	req := httptest.NewRequest("GET", "/api/jobs/5/progress", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var p domain.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 40, p.Processed)
	assert.InDelta(t, 40.0, p.Percent, 0.01)

	// No published progress falls back to the stored job.
	cols := []string{
		"id", "type", "status", "payload", "batch_id", "cancel_requested",
		"error_message", "created_at", "started_at", "completed_at",
	}
	mock.ExpectQuery("SELECT id, type, status").
		WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(6), "export", "completed", []byte(`{}`), nil, false, "",
				time.Now(), time.Now(), time.Now()))

	req = httptest.NewRequest("GET", "/api/jobs/6/progress", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completed"`)
}

func TestIgnoreDomainCRUD(t *testing.T) {
	router, mock, _, cleanup := setupTestRouter(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO ignore_domains").
		WithArgs("spamtrap.example", "known trap").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	body := bytes.NewBufferString(`{"domain":"Spamtrap.Example","note":"known trap"}`)
	req := httptest.NewRequest("POST", "/api/ignore-domains/", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	mock.ExpectExec("DELETE FROM ignore_domains").
		WithArgs("spamtrap.example").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req = httptest.NewRequest("DELETE", "/api/ignore-domains/spamtrap.example", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGetDomainReputation(t *testing.T) {
	router, mock, _, cleanup := setupTestRouter(t)
	defer cleanup()

	mock.ExpectQuery("SELECT domain, total_seen").
		WithArgs("gmail.com").
		WillReturnRows(sqlmock.NewRows([]string{"domain", "total_seen", "valid_count", "invalid_count", "updated_at"}).
			AddRow("gmail.com", 10, 8, 2, time.Now()))

	req := httptest.NewRequest("GET", "/api/domains/gmail.com/reputation", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var rep domain.DomainReputation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, 80, rep.Score)

	mock.ExpectQuery("SELECT domain, total_seen").
		WithArgs("unseen.example").
		WillReturnError(sql.ErrNoRows)

	req = httptest.NewRequest("GET", "/api/domains/unseen.example/reputation", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportSuppressions(t *testing.T) {
	router, mock, _, cleanup := setupTestRouter(t)
	defer cleanup()

	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TEMP TABLE").WillReturnError(fmt.Errorf("no temp tables"))
		mock.ExpectRollback()
	}
	mock.ExpectExec("INSERT INTO suppression_entries").
		WillReturnResult(sqlmock.NewResult(0, 2))

	body := strings.NewReader("one@example.com\ntwo@example.com\n")
	req := httptest.NewRequest("POST", "/api/suppressions/import?source=optout_feed", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res worker.LoadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, int64(2), res.Imported)
}
