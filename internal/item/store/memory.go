package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"catcher/internal/item"
	"catcher/pkg/platform/sentinel"
)

// Memory is an in-memory ItemStore for unit tests and local development.
// It enforces the same serial uniqueness and owner scoping as Postgres.
type Memory struct {
	mu    sync.RWMutex
	items map[uuid.UUID]item.Item
	seq   map[uuid.UUID]int
	next  int
	clock Clock
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMemoryClock sets the clock function for testability.
func WithMemoryClock(clock Clock) MemoryOption {
	return func(m *Memory) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMemory constructs an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		items: make(map[uuid.UUID]item.Item),
		seq:   make(map[uuid.UUID]int),
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Insert creates a row owned by userID.
func (m *Memory) Insert(_ context.Context, userID string, fields item.Fields) (item.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.items {
		if existing.SerialNumber == fields.SerialNumber {
			return item.Item{}, fmt.Errorf("insert item %q: %w", fields.SerialNumber, sentinel.ErrDuplicateSerial)
		}
	}

	now := m.clock().UTC()
	it := item.Item{
		ID:           uuid.New(),
		Name:         fields.Name,
		SerialNumber: fields.SerialNumber,
		Status:       fields.Status,
		Category:     fields.Category,
		Description:  fields.Description,
		ImageURL:     fields.ImageURL,
		Owner:        fields.Owner,
		ContactInfo:  fields.ContactInfo,
		UserID:       userID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.items[it.ID] = it
	m.next++
	m.seq[it.ID] = m.next
	return it, nil
}

// ListByUser returns the caller's items, newest first.
func (m *Memory) ListByUser(_ context.Context, userID string) ([]item.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []item.Item
	for _, it := range m.items {
		if it.UserID == userID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return m.seq[items[i].ID] > m.seq[items[j].ID]
	})
	return items, nil
}

// Update patches a row owned by userID.
func (m *Memory) Update(_ context.Context, userID string, id uuid.UUID, patch item.Patch) (item.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || it.UserID != userID {
		return item.Item{}, fmt.Errorf("update item %s: %w", id, sentinel.ErrNotFound)
	}

	if patch.Name != nil {
		it.Name = *patch.Name
	}
	if patch.Status != nil {
		it.Status = *patch.Status
	}
	if patch.Category != nil {
		it.Category = *patch.Category
	}
	if patch.Description != nil {
		it.Description = *patch.Description
	}
	if patch.ImageURL != nil {
		it.ImageURL = *patch.ImageURL
	}
	if patch.Owner != nil {
		it.Owner = *patch.Owner
	}
	if patch.ContactInfo != nil {
		it.ContactInfo = *patch.ContactInfo
	}
	it.UpdatedAt = m.clock().UTC()

	m.items[id] = it
	return it, nil
}

// Delete removes a row owned by userID.
func (m *Memory) Delete(_ context.Context, userID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || it.UserID != userID {
		return fmt.Errorf("delete item %s: %w", id, sentinel.ErrNotFound)
	}
	delete(m.items, id)
	delete(m.seq, id)
	return nil
}

// FindBySerial returns the row with exactly this serial number, any owner.
func (m *Memory) FindBySerial(_ context.Context, serial string) (item.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, it := range m.items {
		if it.SerialNumber == serial {
			return it, nil
		}
	}
	return item.Item{}, fmt.Errorf("find serial %q: %w", serial, sentinel.ErrNotFound)
}

// SearchBySerial is the cross-owner verification lookup.
func (m *Memory) SearchBySerial(_ context.Context, partial string) ([]item.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(partial)
	var matches []item.Item
	for _, it := range m.items {
		if strings.Contains(strings.ToLower(it.SerialNumber), needle) {
			matches = append(matches, it)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return m.seq[matches[i].ID] > m.seq[matches[j].ID]
	})

	summaries := make([]item.Summary, 0, len(matches))
	for _, it := range matches {
		summaries = append(summaries, it.Summarize())
	}
	return summaries, nil
}
