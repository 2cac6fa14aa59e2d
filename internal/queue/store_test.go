// Package queue tests for the durable action store.
package queue

import (
	"fmt"
	"testing"

	"github.com/kimhsiao/inventorylite/internal/db"
	"github.com/kimhsiao/inventorylite/internal/models"
	"github.com/kimhsiao/inventorylite/internal/notify"
)

func openStore(t *testing.T, dir string, broker *notify.Broker) (*Store, func()) {
	t.Helper()

	database, err := db.Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := db.Migrate(database.DB); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	return NewStore(database.DB, broker), func() { database.Close() }
}

// TestAppendAssignsFields verifies Append sets ID, pending status, and a
// zero attempt counter.
func TestAppendAssignsFields(t *testing.T) {
	store, cleanup := openStore(t, t.TempDir(), nil)
	defer cleanup()

	action, err := store.Append(models.CreatePayload{Name: "Tea", Price: 5})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if action.ID == "" {
		t.Error("Expected action ID to be set")
	}
	if action.Kind != models.ActionCreate {
		t.Errorf("Expected create kind, got %s", action.Kind)
	}
	if action.Status != models.StatusPending {
		t.Errorf("Expected pending status, got %s", action.Status)
	}
	if action.Attempts != 0 {
		t.Errorf("Expected 0 attempts, got %d", action.Attempts)
	}
	if action.CreatedAt == 0 {
		t.Error("Expected created_at to be set")
	}
}

// TestListPreservesInsertionOrder verifies FIFO ordering for any
// sequence of appends.
func TestListPreservesInsertionOrder(t *testing.T) {
	store, cleanup := openStore(t, t.TempDir(), nil)
	defer cleanup()

	var ids []string
	for i := 0; i < 10; i++ {
		action, err := store.Append(models.DeletePayload{ProductID: fmt.Sprintf("p%d", i)})
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		ids = append(ids, action.ID)
	}

	actions, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(actions) != len(ids) {
		t.Fatalf("Expected %d actions, got %d", len(ids), len(actions))
	}
	for i, a := range actions {
		if a.ID != ids[i] {
			t.Errorf("Position %d: expected %s, got %s", i, ids[i], a.ID)
		}
	}
}

// TestPatchUpdatesFields verifies a patch merges only the given fields.
func TestPatchUpdatesFields(t *testing.T) {
	store, cleanup := openStore(t, t.TempDir(), nil)
	defer cleanup()

	action, err := store.Append(models.CreatePayload{Name: "Tea", Price: 5})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	failed := models.StatusFailed
	attempts := 2
	msg := "network error"
	if err := store.ApplyPatch(action.ID, Patch{
		Status:    &failed,
		Attempts:  &attempts,
		LastError: &msg,
	}); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}

	got, err := store.Get(action.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.StatusFailed {
		t.Errorf("Expected failed status, got %s", got.Status)
	}
	if got.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", got.Attempts)
	}
	if got.LastError != "network error" {
		t.Errorf("Expected last error preserved, got %q", got.LastError)
	}
	if got.Kind != models.ActionCreate {
		t.Errorf("Expected untouched kind, got %s", got.Kind)
	}
}

// TestPatchAbsentIDIsNoOp verifies patching a removed action is not an
// error, to tolerate races with removal.
func TestPatchAbsentIDIsNoOp(t *testing.T) {
	store, cleanup := openStore(t, t.TempDir(), nil)
	defer cleanup()

	failed := models.StatusFailed
	if err := store.ApplyPatch("missing-id", Patch{Status: &failed}); err != nil {
		t.Fatalf("Expected no-op, got error: %v", err)
	}
}

// TestRemoveIsIdempotent verifies removing twice succeeds.
func TestRemoveIsIdempotent(t *testing.T) {
	store, cleanup := openStore(t, t.TempDir(), nil)
	defer cleanup()

	action, err := store.Append(models.DeletePayload{ProductID: "p1"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := store.Remove(action.ID); err != nil {
		t.Fatalf("First remove failed: %v", err)
	}
	if err := store.Remove(action.ID); err != nil {
		t.Fatalf("Second remove failed: %v", err)
	}

	size, err := store.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 0 {
		t.Errorf("Expected empty queue, got %d", size)
	}
}

// TestClearEmptiesQueue verifies Clear removes every action.
func TestClearEmptiesQueue(t *testing.T) {
	store, cleanup := openStore(t, t.TempDir(), nil)
	defer cleanup()

	for i := 0; i < 3; i++ {
		if _, err := store.Append(models.DeletePayload{ProductID: fmt.Sprintf("p%d", i)}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	actions, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("Expected empty queue, got %d actions", len(actions))
	}
}

// TestQueueSurvivesReopen verifies persisted actions come back in order
// after the process restarts.
func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, cleanup := openStore(t, dir, nil)
	first, err := store.Append(models.CreatePayload{Name: "Tea", Price: 5})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	second, err := store.Append(models.DeletePayload{ProductID: "p9"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	cleanup()

	reopened, cleanup2 := openStore(t, dir, nil)
	defer cleanup2()

	actions, err := reopened.List()
	if err != nil {
		t.Fatalf("List after reopen failed: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("Expected 2 actions after reopen, got %d", len(actions))
	}
	if actions[0].ID != first.ID || actions[1].ID != second.ID {
		t.Error("Expected actions to keep insertion order across reopen")
	}
}

// TestResetInFlight verifies syncing actions return to pending while
// other statuses are untouched.
func TestResetInFlight(t *testing.T) {
	store, cleanup := openStore(t, t.TempDir(), nil)
	defer cleanup()

	stuck, _ := store.Append(models.CreatePayload{Name: "Tea"})
	ok, _ := store.Append(models.DeletePayload{ProductID: "p1"})

	syncing := models.StatusSyncing
	if err := store.ApplyPatch(stuck.ID, Patch{Status: &syncing}); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}

	n, err := store.ResetInFlight()
	if err != nil {
		t.Fatalf("ResetInFlight failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 reset action, got %d", n)
	}

	got, _ := store.Get(stuck.ID)
	if got.Status != models.StatusPending {
		t.Errorf("Expected stuck action back to pending, got %s", got.Status)
	}
	other, _ := store.Get(ok.ID)
	if other.Status != models.StatusPending {
		t.Errorf("Expected other action untouched, got %s", other.Status)
	}
}

// TestStatsCountsByStatus verifies the per-status counters.
func TestStatsCountsByStatus(t *testing.T) {
	store, cleanup := openStore(t, t.TempDir(), nil)
	defer cleanup()

	a, _ := store.Append(models.CreatePayload{Name: "Tea"})
	store.Append(models.DeletePayload{ProductID: "p1"})

	failed := models.StatusFailed
	if err := store.ApplyPatch(a.ID, Patch{Status: &failed}); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["total"] != 2 || stats["pending"] != 1 || stats["failed"] != 1 {
		t.Errorf("Unexpected stats: %v", stats)
	}
}

// TestMutationsPublishQueueChanged verifies every mutation emits a
// queue-changed signal.
func TestMutationsPublishQueueChanged(t *testing.T) {
	broker := notify.NewBroker()
	defer broker.Close()

	store, cleanup := openStore(t, t.TempDir(), broker)
	defer cleanup()

	sub := broker.Subscribe(16)
	defer sub.Close()

	action, err := store.Append(models.CreatePayload{Name: "Tea"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	failed := models.StatusFailed
	if err := store.ApplyPatch(action.ID, Patch{Status: &failed}); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	if err := store.Remove(action.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case sig := <-sub.C:
			if sig != notify.SignalQueueChanged {
				t.Errorf("Expected queue-changed, got %s", sig)
			}
		default:
			t.Fatalf("Expected 3 queue-changed signals, got %d", i)
		}
	}
}
