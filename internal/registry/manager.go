package registry

import (
	"context"
	"log/slog"
	"sync"

	"catcher/internal/feed"
	itemstore "catcher/internal/item/store"
)

// Manager owns one session Store per connected user and its feed
// subscription. Stores are reference counted across concurrent sessions of
// the same user; the subscription is torn down when the last session
// detaches, so nothing leaks across identity changes.
type Manager struct {
	backend itemstore.ItemStore
	hub     *feed.Hub
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	store       *Store
	refs        int
	unsubscribe func()
}

// NewManager constructs a session manager.
func NewManager(backend itemstore.ItemStore, hub *feed.Hub, logger *slog.Logger) *Manager {
	return &Manager{
		backend:  backend,
		hub:      hub,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Acquire returns the user's session store, creating and loading it on first
// use. The release func must be called when the session ends.
func (m *Manager) Acquire(ctx context.Context, userID string) (*Store, func(), error) {
	m.mu.Lock()
	if sess, ok := m.sessions[userID]; ok {
		sess.refs++
		m.mu.Unlock()
		return sess.store, m.releaseFunc(userID), nil
	}
	m.mu.Unlock()

	// Load outside the lock; a slow initial fetch must not block other users.
	store := New(userID, m.backend, m.logger)
	if err := store.Load(ctx); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[userID]; ok {
		// Lost the race with a concurrent Acquire for the same user.
		sess.refs++
		return sess.store, m.releaseFunc(userID), nil
	}
	m.sessions[userID] = &session{
		store:       store,
		refs:        1,
		unsubscribe: m.hub.Subscribe(userID, store),
	}
	return store, m.releaseFunc(userID), nil
}

// Peek returns the user's session store when one is live, without creating
// one. Handlers use it to serve list/search from cache and fall back to the
// backing store otherwise.
func (m *Manager) Peek(userID string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	return sess.store, true
}

func (m *Manager) releaseFunc(userID string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			sess, ok := m.sessions[userID]
			if !ok {
				return
			}
			sess.refs--
			if sess.refs <= 0 {
				sess.unsubscribe()
				delete(m.sessions, userID)
			}
		})
	}
}
