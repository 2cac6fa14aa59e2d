// Package models provides data model definitions for the inventory agent.
package models

import (
	"encoding/json"
	"fmt"
)

// ActionKind identifies the remote mutation a queued action represents.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// ActionStatus represents the delivery state of a queued action.
// There is no "synced" status: successful delivery removes the action
// from the queue entirely.
type ActionStatus string

const (
	StatusPending ActionStatus = "pending"
	StatusSyncing ActionStatus = "syncing"
	StatusFailed  ActionStatus = "failed"
)

// QueuedAction represents a pending local mutation awaiting delivery
// to the remote products API.
type QueuedAction struct {
	Seq         int64           `db:"seq" json:"-"`
	ID          string          `db:"id" json:"id"`
	Kind        ActionKind      `db:"kind" json:"kind"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Status      ActionStatus    `db:"status" json:"status"`
	Attempts    int             `db:"attempts" json:"attempts"`
	LastError   string          `db:"last_error" json:"last_error,omitempty"`
	ErrorCode   string          `db:"error_code" json:"error_code,omitempty"`
	CreatedAt   int64           `db:"created_at" json:"created_at"`
	NextRetryAt int64           `db:"next_retry_at" json:"next_retry_at"`
}

// TableName returns the table name for QueuedAction.
func (QueuedAction) TableName() string {
	return "action_queue"
}

// ActionPayload is the kind-specific data carried by a queued action.
// Exactly one concrete payload type exists per ActionKind, so dispatch
// over payloads is exhaustive.
type ActionPayload interface {
	ActionKind() ActionKind
}

// CreatePayload carries the full field set for a new product.
type CreatePayload struct {
	Name     string  `json:"name"`
	SKU      string  `json:"sku,omitempty"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// ActionKind implements ActionPayload.
func (CreatePayload) ActionKind() ActionKind { return ActionCreate }

// UpdatePayload carries the changed-field subset for an existing product
// plus the version the edit was based on. The server rejects the update
// with a conflict if its stored version no longer matches.
type UpdatePayload struct {
	ProductID string                 `json:"product_id"`
	Changed   map[string]interface{} `json:"changed"`
	Version   int64                  `json:"version"`
}

// ActionKind implements ActionPayload.
func (UpdatePayload) ActionKind() ActionKind { return ActionUpdate }

// DeletePayload references the product to delete.
type DeletePayload struct {
	ProductID string `json:"product_id"`
}

// ActionKind implements ActionPayload.
func (DeletePayload) ActionKind() ActionKind { return ActionDelete }

// EncodePayload serializes a typed payload for storage.
func EncodePayload(p ActionPayload) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.ActionKind(), err)
	}
	return data, nil
}

// DecodePayload deserializes a stored payload into its typed form.
// An unrecognized kind is an error confined to the single action that
// carries it.
func DecodePayload(kind ActionKind, data json.RawMessage) (ActionPayload, error) {
	switch kind {
	case ActionCreate:
		var p CreatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode create payload: %w", err)
		}
		return p, nil
	case ActionUpdate:
		var p UpdatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode update payload: %w", err)
		}
		return p, nil
	case ActionDelete:
		var p DeletePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode delete payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
}
