package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/service/export"
)

func TestAdmissionRepo_InsertEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewAdmissionRepo(db)

	t.Run("new address inserts", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO emails").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

		rec := &domain.EmailRecord{
			Address:        "alice@example.com",
			Domain:         "example.com",
			Status:         domain.StatusUnverified,
			ConsentGranted: true,
			BatchID:        1,
		}
		id, inserted, err := repo.InsertEmail(context.Background(), rec)
		if err != nil {
			t.Fatalf("InsertEmail() error = %v", err)
		}
		if !inserted {
			t.Error("InsertEmail() inserted = false, want true")
		}
		if id != 7 || rec.ID != 7 {
			t.Errorf("InsertEmail() id = %d, rec.ID = %d, want 7", id, rec.ID)
		}
	})

	t.Run("conflict returns existing id", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO emails").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT id FROM emails").
			WithArgs("Alice@Example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

		rec := &domain.EmailRecord{Address: "Alice@Example.com", Domain: "example.com"}
		id, inserted, err := repo.InsertEmail(context.Background(), rec)
		if err != nil {
			t.Fatalf("InsertEmail() error = %v", err)
		}
		if inserted {
			t.Error("InsertEmail() inserted = true, want false")
		}
		if id != 3 {
			t.Errorf("InsertEmail() id = %d, want 3", id)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestAdmissionRepo_Lookups(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewAdmissionRepo(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("blocked@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	suppressed, err := repo.IsSuppressed(context.Background(), "blocked@example.com")
	if err != nil {
		t.Fatalf("IsSuppressed() error = %v", err)
	}
	if !suppressed {
		t.Error("IsSuppressed() = false, want true")
	}

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ignored, err := repo.IsIgnoredDomain(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("IsIgnoredDomain() error = %v", err)
	}
	if ignored {
		t.Error("IsIgnoredDomain() = true, want false")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestExportRepo_ClaimAvailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewExportRepo(db)
	now := time.Now()

	cols := []string{
		"id", "address", "domain", "domain_category", "status", "quality_score",
		"rating", "validation_method", "consent_granted", "suppressed",
		"consumed_at", "consumption_count", "batch_id", "uploaded_by", "created_at",
	}

	t.Run("claims and scans records", func(t *testing.T) {
		mock.ExpectQuery("UPDATE emails").
			WithArgs("A", int64(50)).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow(int64(1), "a@gmail.com", "gmail.com", "global_providers", "verified",
					92, "A", "smtp", true, false, now, 1, int64(1), int64(0), now))

		records, err := repo.ClaimAvailable(context.Background(), domain.ExportFilter{
			StatusClass: domain.ExportClassVerified,
			Ratings:     []domain.Rating{domain.RatingA},
			Limit:       50,
		})
		if err != nil {
			t.Fatalf("ClaimAvailable() error = %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("ClaimAvailable() returned %d records, want 1", len(records))
		}
		if records[0].Address != "a@gmail.com" || records[0].Rating != domain.RatingA {
			t.Errorf("ClaimAvailable() record = %+v", records[0])
		}
		if records[0].ConsumedAt == nil {
			t.Error("ClaimAvailable() record not marked consumed")
		}
	})

	t.Run("domain and category allow-lists", func(t *testing.T) {
		mock.ExpectQuery("UPDATE emails").
			WithArgs("gmail.com", "yahoo.com", "regional_isp", int64(10)).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow(int64(2), "b@comcast.net", "comcast.net", "regional_isp", "verified",
					85, "A", "standard", true, false, now, 1, int64(1), int64(0), now))

		records, err := repo.ClaimAvailable(context.Background(), domain.ExportFilter{
			StatusClass:      domain.ExportClassVerified,
			Domains:          []string{"gmail.com", "Yahoo.com"},
			DomainCategories: []string{"regional_isp"},
			Limit:            10,
		})
		if err != nil {
			t.Fatalf("ClaimAvailable() error = %v", err)
		}
		if len(records) != 1 || records[0].DomainCategory != "regional_isp" {
			t.Errorf("ClaimAvailable() records = %+v", records)
		}
	})

	t.Run("unknown status class errors", func(t *testing.T) {
		_, err := repo.ClaimAvailable(context.Background(), domain.ExportFilter{StatusClass: "bogus"})
		if err == nil {
			t.Error("ClaimAvailable() expected error for unknown status class")
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestExportRepo_TemplateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewExportRepo(db)

	mock.ExpectQuery("SELECT id, name, filter_json").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetTemplate(context.Background(), "missing")
	if !errors.Is(err, export.ErrTemplateNotFound) {
		t.Errorf("GetTemplate() error = %v, want ErrTemplateNotFound", err)
	}

	mock.ExpectExec("DELETE FROM export_templates").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeleteTemplate(context.Background(), "missing"); !errors.Is(err, export.ErrTemplateNotFound) {
		t.Errorf("DeleteTemplate() error = %v, want ErrTemplateNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestJobRepo_ClaimNext(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewJobRepo(db)
	now := time.Now()

	cols := []string{
		"id", "type", "status", "payload", "batch_id", "cancel_requested",
		"error_message", "created_at", "started_at", "completed_at",
	}

	t.Run("claims oldest pending", func(t *testing.T) {
		batchID := int64(4)
		mock.ExpectQuery("UPDATE jobs").
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow(int64(1), "import", "running", []byte(`{}`), batchID, false, "", now, now, nil))

		job, err := repo.ClaimNext(context.Background())
		if err != nil {
			t.Fatalf("ClaimNext() error = %v", err)
		}
		if job == nil {
			t.Fatal("ClaimNext() returned nil job")
		}
		if job.Type != domain.JobImport || job.Status != domain.JobRunning {
			t.Errorf("ClaimNext() job = %+v", job)
		}
	})

	t.Run("empty queue returns nil", func(t *testing.T) {
		mock.ExpectQuery("UPDATE jobs").WillReturnError(sql.ErrNoRows)

		job, err := repo.ClaimNext(context.Background())
		if err != nil {
			t.Fatalf("ClaimNext() error = %v", err)
		}
		if job != nil {
			t.Errorf("ClaimNext() job = %+v, want nil", job)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestLookupRepo_RemoveMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewLookupRepo(db)

	mock.ExpectExec("DELETE FROM ignore_domains").
		WithArgs("nobody.example").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.RemoveIgnoreDomain(context.Background(), "nobody.example"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveIgnoreDomain() error = %v, want ErrNotFound", err)
	}

	mock.ExpectExec("DELETE FROM suppression_entries").
		WithArgs("nobody@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.RemoveSuppression(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveSuppression() error = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}
