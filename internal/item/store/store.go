// Package store persists registry items.
//
// Implementations are interface-driven so services and session caches can be
// tested against the in-memory store while production runs on Postgres.
package store

import (
	"context"

	"github.com/google/uuid"

	"catcher/internal/item"
)

// ItemStore is the owner-scoped persistence boundary. Every mutation filters
// by owner at the store layer; callers never get to trust an unfiltered
// response.
type ItemStore interface {
	// Insert creates a row owned by userID. Returns
	// sentinel.ErrDuplicateSerial when the serial_number already exists.
	Insert(ctx context.Context, userID string, fields item.Fields) (item.Item, error)

	// ListByUser returns the caller's items, newest first.
	ListByUser(ctx context.Context, userID string) ([]item.Item, error)

	// Update patches a row only if it is owned by userID. Returns
	// sentinel.ErrNotFound when no owned row matches.
	Update(ctx context.Context, userID string, id uuid.UUID, patch item.Patch) (item.Item, error)

	// Delete removes a row only if it is owned by userID.
	Delete(ctx context.Context, userID string, id uuid.UUID) error

	// FindBySerial returns the row with exactly this serial number,
	// regardless of owner. Used by finalize to detect an already-committed
	// registration.
	FindBySerial(ctx context.Context, serial string) (item.Item, error)

	// SearchBySerial is the cross-owner verification lookup:
	// case-insensitive partial match on serial_number only.
	SearchBySerial(ctx context.Context, partial string) ([]item.Summary, error)
}
