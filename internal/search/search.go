// Package search implements the registry's two query paths. They are
// deliberately not merged: local search serves the caller's own cached items
// without I/O, while remote search crosses the ownership boundary and always
// round-trips to the backing store.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"catcher/internal/item"
	itemstore "catcher/internal/item/store"
	"catcher/internal/platform/metrics"
	"catcher/internal/registry"
	dErrors "catcher/pkg/domain-errors"
)

// Local is a pure function of the session cache and the query: a
// case-insensitive substring match over name, serial number, description and
// category, preserving the cache's order. Queries below the minimum length
// (one significant character) return no results rather than matching all.
func Local(store *registry.Store, query string) []item.Item {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var matches []item.Item
	for _, it := range store.List() {
		if strings.Contains(strings.ToLower(it.Name), query) ||
			strings.Contains(strings.ToLower(it.SerialNumber), query) ||
			strings.Contains(strings.ToLower(it.Description), query) ||
			strings.Contains(strings.ToLower(it.Category), query) {
			matches = append(matches, it)
		}
	}
	return matches
}

// Engine performs cross-owner verification lookups.
type Engine struct {
	store   itemstore.ItemStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine constructs a remote search engine. metrics may be nil in tests.
func NewEngine(store itemstore.ItemStore, logger *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{store: store, logger: logger, metrics: m}
}

// Remote answers "has this serial number been reported by anyone": a
// case-insensitive partial match on serial_number across all owners. A
// transport failure returns a non-nil error and no results; callers must
// not present it as "no match".
func (e *Engine) Remote(ctx context.Context, serial string) ([]item.Summary, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "serial is required")
	}

	start := time.Now()
	summaries, err := e.store.SearchBySerial(ctx, serial)
	if e.metrics != nil {
		e.metrics.ObserveRemoteSearch(time.Since(start))
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "remote serial lookup failed",
			"serial", serial,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "search is temporarily unavailable")
	}
	return summaries, nil
}
