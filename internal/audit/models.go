// Package audit records registry lifecycle events through a transactional
// outbox. Events are written in the same transaction as the business change
// and drained to Kafka by the worker; the stream exists so operations tooling
// can alert on reconciliation gaps and trace paid registrations.
package audit

import (
	"context"
	"time"
)

// Action identifies what happened.
type Action string

const (
	ActionPaymentInitiated  Action = "payment_initiated"
	ActionPaymentFinalized  Action = "payment_finalized"
	ActionItemRegistered    Action = "item_registered"
	ActionItemStatusChanged Action = "item_status_changed"
	ActionItemDeleted       Action = "item_deleted"
	// ActionReconciliationGap flags a confirmed payment whose item could not
	// be created. These events are the trigger for manual remediation.
	ActionReconciliationGap Action = "reconciliation_gap"
)

// Event is one audit record. Reference is the payment reference when the
// event belongs to the registration workflow.
type Event struct {
	Action       Action    `json:"action"`
	UserID       string    `json:"user_id,omitempty"`
	ItemID       string    `json:"item_id,omitempty"`
	SerialNumber string    `json:"serial_number,omitempty"`
	Reference    string    `json:"reference,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Store appends audit events. Implementations must respect a transaction
// carried in ctx so the event commits or rolls back with the business write.
type Store interface {
	Append(ctx context.Context, event Event) error
}
