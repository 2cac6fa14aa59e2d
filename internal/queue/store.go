// Package queue provides the durable store of pending offline actions.
// The queue is the sole source of truth for undelivered intent: removal
// is the only representation of successful delivery.
package queue

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/inventorylite/internal/errors"
	"github.com/kimhsiao/inventorylite/internal/logging"
	"github.com/kimhsiao/inventorylite/internal/models"
	"github.com/kimhsiao/inventorylite/internal/notify"
	"github.com/kimhsiao/inventorylite/internal/uuid"
)

// Store persists the ordered action queue in SQLite. Insertion order is
// significant and preserved by every mutation; the AUTOINCREMENT seq
// column carries the FIFO position.
//
// All mutations are serialized through mu so read-modify-write races
// cannot drop updates, and every successful mutation publishes a
// queue-changed signal.
type Store struct {
	db     *sql.DB
	broker *notify.Broker
	mu     sync.Mutex
}

// NewStore creates a Store over an opened, migrated database. broker may
// be nil when no observers are wired (tests).
func NewStore(db *sql.DB, broker *notify.Broker) *Store {
	return &Store{db: db, broker: broker}
}

const actionColumns = "seq, id, kind, payload, status, attempts, last_error, error_code, created_at, next_retry_at"

// Append assigns an ID, persists the action as pending with zero
// attempts, and returns the stored record.
func (s *Store) Append(payload models.ActionPayload) (*models.QueuedAction, error) {
	data, err := models.EncodePayload(payload)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalid, "failed to encode action payload", err)
	}

	action := &models.QueuedAction{
		ID:        uuid.New(),
		Kind:      payload.ActionKind(),
		Payload:   data,
		Status:    models.StatusPending,
		CreatedAt: time.Now().Unix(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO action_queue (id, kind, payload, status, attempts, last_error, error_code, created_at, next_retry_at)
		 VALUES (?, ?, ?, ?, 0, '', '', ?, 0)`,
		action.ID, string(action.Kind), string(action.Payload), string(action.Status), action.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to append action", err)
	}
	if action.Seq, err = res.LastInsertId(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to read action seq", err)
	}

	logging.Info("Queued action",
		map[string]interface{}{"action_id": action.ID, "kind": string(action.Kind)})
	s.queueChanged()

	return action, nil
}

// List returns a snapshot of the queue in insertion order, safe to
// iterate without observing concurrent mutation.
func (s *Store) List() ([]models.QueuedAction, error) {
	rows, err := s.db.Query("SELECT " + actionColumns + " FROM action_queue ORDER BY seq")
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list actions", err)
	}
	defer rows.Close()

	var actions []models.QueuedAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list actions", err)
	}

	return actions, nil
}

// Get returns a single action by ID.
func (s *Store) Get(id string) (*models.QueuedAction, error) {
	row := s.db.QueryRow("SELECT "+actionColumns+" FROM action_queue WHERE id = ?", id)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrNotFound, fmt.Sprintf("action %s not found", id))
	}
	return a, err
}

// Patch holds the mutable fields of a queued action. Nil fields are
// left untouched.
type Patch struct {
	Status      *models.ActionStatus
	Attempts    *int
	LastError   *string
	ErrorCode   *string
	NextRetryAt *int64
}

// ApplyPatch merges the given fields into the stored record. A missing
// ID is a no-op, not an error, to tolerate races with removal.
func (s *Store) ApplyPatch(id string, p Patch) error {
	var sets []string
	var args []interface{}

	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.Attempts != nil {
		sets = append(sets, "attempts = ?")
		args = append(args, *p.Attempts)
	}
	if p.LastError != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, *p.LastError)
	}
	if p.ErrorCode != nil {
		sets = append(sets, "error_code = ?")
		args = append(args, *p.ErrorCode)
	}
	if p.NextRetryAt != nil {
		sets = append(sets, "next_retry_at = ?")
		args = append(args, *p.NextRetryAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("UPDATE action_queue SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to patch action", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.queueChanged()
	}

	return nil
}

// Remove deletes the record. Removal of an absent ID is a no-op.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM action_queue WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to remove action", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		logging.Info("Removed action", map[string]interface{}{"action_id": id})
		s.queueChanged()
	}

	return nil
}

// Clear empties the queue. Administrative and testing use.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM action_queue"); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to clear queue", err)
	}

	logging.Info("Queue cleared")
	s.queueChanged()

	return nil
}

// Size returns the number of queued actions.
func (s *Store) Size() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM action_queue").Scan(&n); err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to count queue", err)
	}
	return n, nil
}

// Stats returns action counts by status.
func (s *Store) Stats() (map[string]int, error) {
	stats := map[string]int{
		"total":   0,
		"pending": 0,
		"syncing": 0,
		"failed":  0,
	}

	rows, err := s.db.Query("SELECT status, COUNT(*) FROM action_queue GROUP BY status")
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to read queue stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, "failed to read queue stats", err)
		}
		stats[status] = count
		stats["total"] += count
	}

	return stats, rows.Err()
}

// ResetInFlight returns any action stuck in syncing status to pending.
// Run at startup: a process that died mid-delivery leaves the outcome
// unknown, and retrying is safe because the remote operations are
// idempotent or version-guarded.
func (s *Store) ResetInFlight() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE action_queue SET status = ? WHERE status = ?",
		string(models.StatusPending), string(models.StatusSyncing),
	)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to reset in-flight actions", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Warn("Reset in-flight actions from previous run",
			map[string]interface{}{"count": n})
		s.queueChanged()
	}

	return int(n), nil
}

func (s *Store) queueChanged() {
	if s.broker != nil {
		s.broker.Publish(notify.SignalQueueChanged)
	}
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row scanner) (*models.QueuedAction, error) {
	var a models.QueuedAction
	var kind, status, payload string

	err := row.Scan(&a.Seq, &a.ID, &kind, &payload, &status,
		&a.Attempts, &a.LastError, &a.ErrorCode, &a.CreatedAt, &a.NextRetryAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to scan action", err)
	}

	a.Kind = models.ActionKind(kind)
	a.Status = models.ActionStatus(status)
	a.Payload = []byte(payload)

	return &a, nil
}
