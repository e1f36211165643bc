// Package registry holds the authoritative client-side view of one user's
// items. All mutations funnel through the Store's operations; the change feed
// merges through Apply and never touches the collection directly.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"catcher/internal/feed"
	"catcher/internal/item"
	itemstore "catcher/internal/item/store"
	dErrors "catcher/pkg/domain-errors"
	"catcher/pkg/platform/sentinel"
)

// resyncTimeout bounds the background re-fetch triggered by feed reconnects.
const resyncTimeout = 15 * time.Second

// Store is the owned, ordered collection of one user's items, newest first.
// Every mutation is scoped by owner identity at the backing store, and the
// cache only changes after the backing store succeeds: a failed remote write
// leaves the cache untouched.
type Store struct {
	userID  string
	backend itemstore.ItemStore
	logger  *slog.Logger

	mu    sync.RWMutex
	items []item.Item
}

// New constructs a session store for userID. Call Load before first use.
func New(userID string, backend itemstore.ItemStore, logger *slog.Logger) *Store {
	return &Store{userID: userID, backend: backend, logger: logger}
}

// UserID returns the owning identity this store is scoped to.
func (s *Store) UserID() string { return s.userID }

// Load replaces the cache with a full fetch from the backing store.
func (s *Store) Load(ctx context.Context) error {
	items, err := s.backend.ListByUser(ctx, s.userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load items")
	}
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return nil
}

// List returns the current items without I/O.
func (s *Store) List() []item.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]item.Item, len(s.items))
	copy(out, s.items)
	return out
}

// GetBySerial finds an owned item by exact serial number, case-insensitively,
// from the cache alone.
func (s *Store) GetBySerial(serial string) (item.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if strings.EqualFold(it.SerialNumber, serial) {
			return it, true
		}
	}
	return item.Item{}, false
}

// Create inserts a new item for this user and prepends it on success.
func (s *Store) Create(ctx context.Context, fields item.Fields) (item.Item, error) {
	if err := fields.Validate(); err != nil {
		return item.Item{}, err
	}
	created, err := s.backend.Insert(ctx, s.userID, fields)
	if err != nil {
		return item.Item{}, translateStoreErr(err, "failed to create item")
	}

	s.mu.Lock()
	s.prependLocked(created)
	s.mu.Unlock()
	return created, nil
}

// Update patches an owned item and replaces it in the cache on success.
func (s *Store) Update(ctx context.Context, id uuid.UUID, patch item.Patch) (item.Item, error) {
	if err := patch.Validate(); err != nil {
		return item.Item{}, err
	}
	if patch.IsEmpty() {
		return item.Item{}, dErrors.New(dErrors.CodeBadRequest, "empty update")
	}
	updated, err := s.backend.Update(ctx, s.userID, id, patch)
	if err != nil {
		return item.Item{}, translateStoreErr(err, "failed to update item")
	}

	s.mu.Lock()
	s.replaceLocked(updated)
	s.mu.Unlock()
	return updated, nil
}

// Remove deletes an owned item and drops it from the cache on success.
func (s *Store) Remove(ctx context.Context, id uuid.UUID) error {
	if err := s.backend.Delete(ctx, s.userID, id); err != nil {
		return translateStoreErr(err, "failed to delete item")
	}
	s.mu.Lock()
	s.removeLocked(id)
	s.mu.Unlock()
	return nil
}

// SetStatus toggles an item between safe and stolen. Repeating the current
// status is accepted and still refreshes updated_at.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status item.Status) (item.Item, error) {
	return s.Update(ctx, id, item.Patch{Status: &status})
}

// Apply merges a change feed event idempotently. The session's own mutations
// have already landed in the cache, so the eventual echo must be a no-op that
// preserves the item's existing position.
func (s *Store) Apply(ev feed.Event) {
	if ev.UserID != s.userID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case feed.KindInserted:
		if s.indexLocked(ev.Item.ID) >= 0 {
			return
		}
		s.prependLocked(*ev.Item)
	case feed.KindUpdated:
		if s.indexLocked(ev.Item.ID) >= 0 {
			s.replaceLocked(*ev.Item)
			return
		}
		s.prependLocked(*ev.Item)
	case feed.KindDeleted:
		s.removeLocked(ev.ItemID)
	}
}

// Resync re-fetches the full item list after a feed transport loss. It runs
// with its own deadline because the feed listener must not block on it.
func (s *Store) Resync() {
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	if err := s.Load(ctx); err != nil {
		s.logger.ErrorContext(ctx, "session resync failed",
			"user_id", s.userID,
			"error", err,
		)
	}
}

func (s *Store) indexLocked(id uuid.UUID) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) prependLocked(it item.Item) {
	s.items = append([]item.Item{it}, s.items...)
}

func (s *Store) replaceLocked(it item.Item) {
	if i := s.indexLocked(it.ID); i >= 0 {
		s.items[i] = it
	}
}

func (s *Store) removeLocked(id uuid.UUID) {
	if i := s.indexLocked(id); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
}

// translateStoreErr maps store sentinels onto the caller-facing taxonomy.
func translateStoreErr(err error, message string) error {
	switch {
	case errors.Is(err, sentinel.ErrDuplicateSerial):
		return dErrors.Wrap(err, dErrors.CodeDuplicateSerial, "an item with this serial number already exists")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "item not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, message)
	}
}
