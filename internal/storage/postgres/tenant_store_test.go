package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

func TestTenantStoreCreateTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	store := NewTenantStore(db)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO tenants`).
		WithArgs(sqlmock.AnyArg(), "a@example.com", "Acme", "pro", 0).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	got, err := store.CreateTenant(context.Background(), domain.Tenant{
		Email: "a@example.com", Name: "Acme", PlanTier: "pro",
	})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if got.ID == "" {
		t.Fatal("expected a generated tenant id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTenantStoreGetTenantNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	store := NewTenantStore(db)
	mock.ExpectQuery(`SELECT id, email, name, plan_tier, solve_count, created_at FROM tenants WHERE id`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = store.GetTenant(context.Background(), "missing")
	kerr, ok := tserrors.As(err)
	if !ok || kerr.Kind != tserrors.KindNotFound {
		t.Fatalf("expected a NotFound error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTenantStoreListTenantsOrdersByCreatedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	store := NewTenantStore(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "name", "plan_tier", "solve_count", "created_at"}).
		AddRow("t1", "one@example.com", "One", "free", 3, now).
		AddRow("t2", "two@example.com", "Two", "pro", 9, now)
	mock.ExpectQuery(`SELECT id, email, name, plan_tier, solve_count, created_at FROM tenants ORDER BY created_at ASC`).
		WillReturnRows(rows)

	got, err := store.ListTenants(context.Background())
	if err != nil {
		t.Fatalf("list tenants: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tenants, got %d", len(got))
	}
	if got[0].ID != "t1" || got[1].ID != "t2" {
		t.Fatalf("unexpected tenant order: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
