// Package payment defines the gateway boundary for the registration fee and
// the staged registration that travels through it as metadata.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"catcher/internal/item"
)

// ErrUnknownReference is returned by Gateway.VerifyTransaction when the
// gateway has no record of the reference.
var ErrUnknownReference = errors.New("unknown transaction reference")

// Transaction statuses as reported by the gateway.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// Metadata is the opaque payload stored on the gateway transaction between
// initiate and finalize. ItemData is the JSON-encoded item.Fields; it is the
// only place the prospective item exists while payment is pending, and it is
// treated as untrusted input when it comes back.
type Metadata struct {
	ItemData string `json:"item_data"`
	UserID   string `json:"user_id"`
}

// EncodeMetadata stages a prospective registration for the gateway.
func EncodeMetadata(userID string, fields item.Fields) (Metadata, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return Metadata{}, fmt.Errorf("encode item data: %w", err)
	}
	return Metadata{ItemData: string(data), UserID: userID}, nil
}

// DecodeItem re-parses the staged item fields. Callers must re-validate the
// result; a well-formed envelope says nothing about the fields inside.
func (m Metadata) DecodeItem() (item.Fields, error) {
	var fields item.Fields
	if err := json.Unmarshal([]byte(m.ItemData), &fields); err != nil {
		return item.Fields{}, fmt.Errorf("decode item data: %w", err)
	}
	return fields, nil
}

// InitializeRequest starts a payment session.
type InitializeRequest struct {
	Email       string
	AmountKobo  int64
	Reference   string
	CallbackURL string
	Metadata    Metadata
}

// InitializeResult is the gateway's handoff for the redirect.
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult is the verified transaction record. Status and Metadata come
// from the gateway's own store, not from anything the caller echoed back.
type VerifyResult struct {
	Reference  string
	Status     string
	AmountKobo int64
	PaidAt     string
	Metadata   Metadata
}

// Succeeded reports whether the gateway confirmed the payment.
func (v VerifyResult) Succeeded() bool {
	return v.Status == StatusSuccess
}

// Gateway is the payment provider boundary. The credential lives behind this
// interface and never reaches the browser-facing layer.
//go:generate mockgen -source=gateway.go -destination=mocks/mocks.go -package=mocks Gateway
type Gateway interface {
	InitializeTransaction(ctx context.Context, req InitializeRequest) (InitializeResult, error)
	VerifyTransaction(ctx context.Context, reference string) (VerifyResult, error)
}
