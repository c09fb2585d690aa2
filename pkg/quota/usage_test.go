package quota

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/origolabs/origo/pkg/plans"
)

func TestSQLUsageSource_Counts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	source := NewSQLUsageSource(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM memberships WHERE tenant_id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	got, err := source.Usage(ctx, 1, plans.ResourceUsers)
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if got != 4 {
		t.Errorf("Expected 4 users, got %d", got)
	}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM pages WHERE tenant_id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	got, err = source.Usage(ctx, 1, plans.ResourcePages)
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if got != 12 {
		t.Errorf("Expected 12 pages, got %d", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestSQLUsageSource_StorageRoundsUp(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	source := NewSQLUsageSource(db)

	// 1.5 MB of media must report as 2 MB, not 1.
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(size_bytes\), 0\) FROM media WHERE tenant_id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1536 * 1024))

	got, err := source.Usage(context.Background(), 1, plans.ResourceStorage)
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if got != 2 {
		t.Errorf("Expected 2 MB, got %d", got)
	}
}

func TestSQLUsageSource_UnknownResource(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	if _, err := NewSQLUsageSource(db).Usage(context.Background(), 1, plans.ResourceType("widgets")); err == nil {
		t.Error("Expected unknown resource to error")
	}
}

func TestLedger_Reserve(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	ledger := NewLedger(db)
	ctx := context.Background()

	// Guarded update claims the units in one statement.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE tenant_usage`).
		WithArgs(int64(1), int64(7), "pages", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := ledger.Reserve(ctx, tx, 7, plans.ResourcePages, 1, 10); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestLedger_Reserve_Exceeded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	ledger := NewLedger(db)
	ctx := context.Background()

	// The guard rejects, the usage row reads back at the limit.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE tenant_usage`).
		WithArgs(int64(1), int64(7), "pages", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT used FROM tenant_usage`).
		WithArgs(int64(7), "pages").
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(10))
	mock.ExpectRollback()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	err = ledger.Reserve(ctx, tx, 7, plans.ResourcePages, 1, 10)
	if !IsQuotaExceeded(err) {
		t.Fatalf("Expected QuotaExceededError, got %v", err)
	}
	tx.Rollback()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestLedger_Reserve_InitializesRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	ledger := NewLedger(db)
	ctx := context.Background()

	// First reservation for a tenant: no row yet, so it is created.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE tenant_usage`).
		WithArgs(int64(2), int64(7), "posts", int64(25)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT used FROM tenant_usage`).
		WithArgs(int64(7), "posts").
		WillReturnRows(sqlmock.NewRows([]string{"used"}))
	mock.ExpectExec(`INSERT INTO tenant_usage`).
		WithArgs(int64(7), "posts", int64(2)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := ledger.Reserve(ctx, tx, 7, plans.ResourcePosts, 2, 25); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestLedger_Release(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	ledger := NewLedger(db)

	mock.ExpectExec(`UPDATE tenant_usage`).
		WithArgs(int64(3), int64(7), "pages").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := ledger.Release(context.Background(), 7, plans.ResourcePages, 3); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
