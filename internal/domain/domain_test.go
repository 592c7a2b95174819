package domain

import "testing"

func TestSyncStatusTransition(t *testing.T) {
	cases := []struct {
		from, to SyncStatus
		want     bool
	}{
		{SyncPending, SyncSyncing, true},
		{SyncPending, SyncSynced, false},
		{SyncPending, SyncError, false},
		{SyncSyncing, SyncSynced, true},
		{SyncSyncing, SyncError, true},
		{SyncSyncing, SyncSyncing, false},
		{SyncSynced, SyncSyncing, true},
		{SyncSynced, SyncError, true},
		{SyncSynced, SyncSynced, false},
		{SyncError, SyncSyncing, true},
		{SyncError, SyncSynced, false},
		{SyncError, SyncError, false},
	}
	for _, c := range cases {
		if got := c.from.Transition(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
