package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

func TestConnectionStoreSetSyncStatusRejectsIllegalTransition(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	store := NewConnectionStore(db)
	mock.ExpectQuery(`SELECT sync_status FROM connections WHERE id = \$1`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"sync_status"}).AddRow("pending"))

	err = store.SetSyncStatus(context.Background(), "c1", domain.SyncSynced, nil)
	kerr, ok := tserrors.As(err)
	if !ok || kerr.Kind != tserrors.KindConflict {
		t.Fatalf("expected a conflict error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConnectionStoreSetSyncStatusAllowsLegalTransition(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	store := NewConnectionStore(db)
	mock.ExpectQuery(`SELECT sync_status FROM connections WHERE id = \$1`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"sync_status"}).AddRow("syncing"))
	mock.ExpectExec(`UPDATE connections SET sync_status`).
		WithArgs("c1", "synced", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetSyncStatus(context.Background(), "c1", domain.SyncSynced, strPtr("2026-01-01T00:00:00Z")); err != nil {
		t.Fatalf("expected syncing -> synced to succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func strPtr(s string) *string { return &s }
