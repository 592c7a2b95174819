package memory

import (
	"context"
	"testing"

	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

func TestSetSyncStatusRejectsIllegalTransition(t *testing.T) {
	store := New()
	conn, err := store.UpsertConnection(context.Background(), domain.Connection{
		TenantID: "t1", SourceName: "commerce", ShopDomain: "shop1.myshopify.com",
		SyncStatus: domain.SyncPending,
	})
	if err != nil {
		t.Fatalf("upsert connection: %v", err)
	}

	err = store.SetSyncStatus(context.Background(), conn.ID, domain.SyncSynced, nil)
	if err == nil {
		t.Fatal("expected pending -> synced to be rejected")
	}
	if e, ok := tserrors.As(err); !ok || e.Kind != tserrors.KindConflict {
		t.Fatalf("expected a conflict error, got %v", err)
	}

	got, err := store.GetConnectionByShop(context.Background(), "shop1.myshopify.com")
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if got.SyncStatus != domain.SyncPending {
		t.Fatalf("expected sync status to remain unchanged after a rejected transition, got %s", got.SyncStatus)
	}
}

func TestSetSyncStatusAllowsLegalTransition(t *testing.T) {
	store := New()
	conn, err := store.UpsertConnection(context.Background(), domain.Connection{
		TenantID: "t1", SourceName: "commerce", ShopDomain: "shop2.myshopify.com",
		SyncStatus: domain.SyncPending,
	})
	if err != nil {
		t.Fatalf("upsert connection: %v", err)
	}
	if err := store.SetSyncStatus(context.Background(), conn.ID, domain.SyncSyncing, nil); err != nil {
		t.Fatalf("pending -> syncing: %v", err)
	}
	if err := store.SetSyncStatus(context.Background(), conn.ID, domain.SyncSynced, nil); err != nil {
		t.Fatalf("syncing -> synced: %v", err)
	}
}
