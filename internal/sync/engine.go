// Package sync provides the reconciler that drains the offline action
// queue against the remote products API.
package sync

import (
	"context"
	"fmt"
	"math/rand"
	stdsync "sync"
	"time"

	"github.com/kimhsiao/inventorylite/internal/api"
	"github.com/kimhsiao/inventorylite/internal/errors"
	"github.com/kimhsiao/inventorylite/internal/logging"
	"github.com/kimhsiao/inventorylite/internal/models"
	"github.com/kimhsiao/inventorylite/internal/notify"
	"github.com/kimhsiao/inventorylite/internal/queue"
)

// RemoteAPI is the slice of the products API the reconciler needs.
type RemoteAPI interface {
	CreateProduct(ctx context.Context, p models.CreatePayload) (*models.Product, error)
	UpdateProduct(ctx context.Context, id string, changed map[string]interface{}, version int64) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// Connectivity reports current reachability of the remote API.
type Connectivity interface {
	Online() bool
}

// Config holds reconciler tuning.
type Config struct {
	// MaxAttempts bounds automatic retries per action. Once reached the
	// action stays failed until a human retries or discards it.
	MaxAttempts int

	// CallTimeout bounds each remote call.
	CallTimeout time.Duration

	// BackoffBase is the delay after the first failed attempt; each
	// further attempt doubles it, with jitter, up to BackoffCap. Zero
	// disables backoff delays (tests).
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		CallTimeout: 15 * time.Second,
		BackoffBase: 2 * time.Second,
		BackoffCap:  5 * time.Minute,
	}
}

// Engine owns the single-flight reconciliation state. All queue
// mutations during a pass go through the Store, and pass boundaries are
// broadcast on the notification broker.
type Engine struct {
	store  *queue.Store
	remote RemoteAPI
	conn   Connectivity
	broker *notify.Broker
	cfg    Config

	mu           stdsync.Mutex
	inProgress   bool
	lastFinished time.Time
}

// NewEngine creates an Engine and recovers any action left in syncing
// status by a previous run: the outcome of a mid-flight delivery is
// unknown, so it is returned to pending and retried.
func NewEngine(store *queue.Store, remote RemoteAPI, conn Connectivity, broker *notify.Broker, cfg Config) (*Engine, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}

	if _, err := store.ResetInFlight(); err != nil {
		return nil, err
	}

	return &Engine{
		store:  store,
		remote: remote,
		conn:   conn,
		broker: broker,
		cfg:    cfg,
	}, nil
}

// RequestSync runs one reconciliation pass to completion. It is a no-op
// when offline or when a pass is already in progress: a request arriving
// mid-pass is dropped, not queued, and callers with time-sensitive
// intent re-trigger after sync-finished.
//
// No failure propagates out of RequestSync; individual outcomes surface
// through each action's status and last_error fields.
func (e *Engine) RequestSync() {
	e.mu.Lock()
	if e.inProgress || !e.conn.Online() {
		e.mu.Unlock()
		return
	}
	e.inProgress = true
	e.mu.Unlock()

	e.publish(notify.SignalSyncStarted)
	logging.Info("Reconciliation pass started")

	e.runPass()

	e.mu.Lock()
	e.inProgress = false
	e.lastFinished = time.Now()
	e.mu.Unlock()

	logging.Info("Reconciliation pass finished")
	e.publish(notify.SignalSyncFinished)
}

// InProgress reports whether a pass is currently running.
func (e *Engine) InProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inProgress
}

// LastFinished returns when the most recent pass completed, zero if no
// pass has run.
func (e *Engine) LastFinished() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastFinished
}

// Retry returns a failed action to pending with a fresh attempt budget.
// It does not run a pass; call RequestSync afterwards.
func (e *Engine) Retry(id string) error {
	pending := models.StatusPending
	zero := 0
	empty := ""
	var at int64

	if err := e.store.ApplyPatch(id, queue.Patch{
		Status:      &pending,
		Attempts:    &zero,
		LastError:   &empty,
		ErrorCode:   &empty,
		NextRetryAt: &at,
	}); err != nil {
		return err
	}

	logging.Info("Action reset for retry", map[string]interface{}{"action_id": id})
	return nil
}

// Discard removes an action unconditionally, abandoning its intent.
func (e *Engine) Discard(id string) error {
	return e.store.Remove(id)
}

// runPass sweeps a snapshot of the queue in FIFO order. Processing is
// strictly sequential so two queued mutations against the same product
// cannot race on its version stamp, and one action's failure never
// aborts the pass.
func (e *Engine) runPass() {
	snapshot, err := e.store.List()
	if err != nil {
		logging.Error("Failed to snapshot queue, skipping pass", err)
		return
	}

	for i := range snapshot {
		e.processAction(&snapshot[i])
	}
}

// processAction attempts delivery of one eligible action.
func (e *Engine) processAction(a *models.QueuedAction) {
	if !e.eligible(a) {
		return
	}

	attempts := a.Attempts + 1
	syncing := models.StatusSyncing
	if err := e.store.ApplyPatch(a.ID, queue.Patch{Status: &syncing, Attempts: &attempts}); err != nil {
		logging.Error("Failed to mark action syncing", err,
			map[string]interface{}{"action_id": a.ID})
		return
	}

	err := e.dispatch(a)
	if err == nil {
		if err := e.store.Remove(a.ID); err != nil {
			logging.Error("Failed to remove delivered action", err,
				map[string]interface{}{"action_id": a.ID})
		}
		logging.Info("Action delivered",
			map[string]interface{}{"action_id": a.ID, "kind": string(a.Kind), "attempts": attempts})
		return
	}

	e.recordFailure(a, attempts, err)
}

// eligible applies the skip rules: actions already in flight, actions
// out of attempt budget, actions whose last failure needs a human
// decision, and actions still inside their backoff window are left
// untouched.
func (e *Engine) eligible(a *models.QueuedAction) bool {
	if a.Status == models.StatusSyncing {
		return false
	}
	if a.Attempts >= e.cfg.MaxAttempts {
		return false
	}
	if permanentCode(errors.ErrorCode(a.ErrorCode)) {
		return false
	}
	if a.NextRetryAt > time.Now().Unix() {
		return false
	}
	return true
}

// dispatch decodes the payload and issues the matching remote call,
// bounded by the per-call timeout. An unrecognized kind fails only this
// action.
func (e *Engine) dispatch(a *models.QueuedAction) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CallTimeout)
	defer cancel()

	payload, err := models.DecodePayload(a.Kind, a.Payload)
	if err != nil {
		switch a.Kind {
		case models.ActionCreate, models.ActionUpdate, models.ActionDelete:
			return errors.Wrap(errors.ErrValidation, "malformed action payload", err)
		default:
			return errors.New(errors.ErrUnknownAction,
				fmt.Sprintf("unknown action kind %q", a.Kind))
		}
	}

	switch p := payload.(type) {
	case models.CreatePayload:
		_, err = e.remote.CreateProduct(ctx, p)
	case models.UpdatePayload:
		_, err = e.remote.UpdateProduct(ctx, p.ProductID, p.Changed, p.Version)
	case models.DeletePayload:
		err = e.remote.DeleteProduct(ctx, p.ProductID)
	default:
		err = errors.New(errors.ErrUnknownAction,
			fmt.Sprintf("unhandled payload type %T", payload))
	}

	return err
}

// recordFailure marks the action failed in place. Transient failures get
// a backoff window before the next attempt; conflicts, validation
// rejections, and unknown kinds stay frozen until a human retries or
// discards.
func (e *Engine) recordFailure(a *models.QueuedAction, attempts int, err error) {
	code := errors.CodeOf(err)
	failed := models.StatusFailed
	msg := err.Error()
	codeStr := string(code)

	p := queue.Patch{
		Status:    &failed,
		LastError: &msg,
		ErrorCode: &codeStr,
	}

	if api.IsTransient(err) {
		next := time.Now().Add(e.backoff(attempts)).Unix()
		p.NextRetryAt = &next
	}

	if patchErr := e.store.ApplyPatch(a.ID, p); patchErr != nil {
		logging.Error("Failed to record action failure", patchErr,
			map[string]interface{}{"action_id": a.ID})
	}

	logging.Warn("Action delivery failed",
		map[string]interface{}{
			"action_id": a.ID,
			"kind":      string(a.Kind),
			"attempts":  attempts,
			"code":      codeStr,
			"error":     msg,
		})
}

// backoff computes the delay before attempt n+1: base doubled per
// attempt with jitter in [0.5d, 1.5d), capped.
func (e *Engine) backoff(attempts int) time.Duration {
	if e.cfg.BackoffBase <= 0 {
		return 0
	}

	d := e.cfg.BackoffBase
	for i := 1; i < attempts && d < e.cfg.BackoffCap; i++ {
		d *= 2
	}
	if e.cfg.BackoffCap > 0 && d > e.cfg.BackoffCap {
		d = e.cfg.BackoffCap
	}

	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

// permanentCode reports whether a recorded failure requires a human
// decision before the action may run again. A conflict in particular
// must never be silently retried with the stale version.
func permanentCode(code errors.ErrorCode) bool {
	switch code {
	case errors.ErrSyncConflict, errors.ErrValidation, errors.ErrUnknownAction, errors.ErrInvalid:
		return true
	default:
		return false
	}
}

func (e *Engine) publish(sig notify.Signal) {
	if e.broker != nil {
		e.broker.Publish(sig)
	}
}
