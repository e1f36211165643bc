package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"catcher/internal/audit"
	"catcher/internal/item"
	itemstore "catcher/internal/item/store"
	"catcher/internal/platform/middleware"
	"catcher/internal/registry"
	"catcher/internal/search"
	"catcher/internal/transport/http/shared"
	dErrors "catcher/pkg/domain-errors"
)

// ItemsHandler serves the authenticated item surface: CRUD, status toggling
// and local search. Reads prefer the caller's live session cache and fall
// back to the backing store when no session is connected.
type ItemsHandler struct {
	sessions   *registry.Manager
	store      itemstore.ItemStore
	auditStore audit.Store
	logger     *slog.Logger
}

// NewItemsHandler constructs the items handler.
func NewItemsHandler(sessions *registry.Manager, store itemstore.ItemStore, auditStore audit.Store, logger *slog.Logger) *ItemsHandler {
	return &ItemsHandler{sessions: sessions, store: store, auditStore: auditStore, logger: logger}
}

// Register mounts the item routes on an authenticated router.
func (h *ItemsHandler) Register(r chi.Router) {
	r.Get("/items", h.handleList)
	r.Post("/items", h.handleCreate)
	r.Patch("/items/{id}", h.handleUpdate)
	r.Delete("/items/{id}", h.handleDelete)
	r.Put("/items/{id}/status", h.handleSetStatus)
	r.Get("/items/search", h.handleLocalSearch)
}

// sessionStore returns the caller's live session store, or an ephemeral one
// bound to the same identity. Mutations through an ephemeral store still hit
// the owner-scoped backing store; only the cache bookkeeping is throwaway.
func (h *ItemsHandler) sessionStore(userID string) *registry.Store {
	if store, ok := h.sessions.Peek(userID); ok {
		return store
	}
	return registry.New(userID, h.store, h.logger)
}

func (h *ItemsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if store, ok := h.sessions.Peek(userID); ok {
		shared.WriteJSON(w, http.StatusOK, map[string]any{"items": store.List()})
		return
	}

	items, err := h.store.ListByUser(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list items",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list items"))
		return
	}
	if items == nil {
		items = []item.Item{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ItemsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var fields item.Fields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	created, err := h.sessionStore(userID).Create(ctx, fields)
	if err != nil {
		h.warnOnUnexpected(r, "create item", err)
		shared.WriteError(w, err)
		return
	}

	if err := h.auditStore.Append(ctx, audit.Event{
		Action:       audit.ActionItemRegistered,
		UserID:       userID,
		ItemID:       created.ID.String(),
		SerialNumber: created.SerialNumber,
	}); err != nil {
		h.logger.WarnContext(ctx, "audit append failed", "action", audit.ActionItemRegistered, "error", err)
	}

	shared.WriteJSON(w, http.StatusCreated, created)
}

func (h *ItemsHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid item id"))
		return
	}

	var patch item.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	updated, err := h.sessionStore(userID).Update(ctx, id, patch)
	if err != nil {
		h.warnOnUnexpected(r, "update item", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, updated)
}

func (h *ItemsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid item id"))
		return
	}

	if err := h.sessionStore(userID).Remove(ctx, id); err != nil {
		h.warnOnUnexpected(r, "delete item", err)
		shared.WriteError(w, err)
		return
	}

	if err := h.auditStore.Append(ctx, audit.Event{
		Action: audit.ActionItemDeleted,
		UserID: userID,
		ItemID: id.String(),
	}); err != nil {
		h.logger.WarnContext(ctx, "audit append failed", "action", audit.ActionItemDeleted, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

type setStatusRequest struct {
	Status item.Status `json:"status"`
}

func (h *ItemsHandler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid item id"))
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	updated, err := h.sessionStore(userID).SetStatus(ctx, id, req.Status)
	if err != nil {
		h.warnOnUnexpected(r, "set item status", err)
		shared.WriteError(w, err)
		return
	}

	if err := h.auditStore.Append(ctx, audit.Event{
		Action:       audit.ActionItemStatusChanged,
		UserID:       userID,
		ItemID:       updated.ID.String(),
		SerialNumber: updated.SerialNumber,
		Detail:       string(updated.Status),
	}); err != nil {
		h.logger.WarnContext(ctx, "audit append failed", "action", audit.ActionItemStatusChanged, "error", err)
	}

	shared.WriteJSON(w, http.StatusOK, updated)
}

func (h *ItemsHandler) handleLocalSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	query := r.URL.Query().Get("q")

	store, ok := h.sessions.Peek(userID)
	if !ok {
		// No live session cache; load one for this request.
		store = registry.New(userID, h.store, h.logger)
		if err := store.Load(ctx); err != nil {
			shared.WriteError(w, err)
			return
		}
	}

	matches := search.Local(store, query)
	if matches == nil {
		matches = []item.Item{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"items": matches})
}

// warnOnUnexpected logs internal failures without duplicating noise for
// ordinary user-correctable outcomes.
func (h *ItemsHandler) warnOnUnexpected(r *http.Request, op string, err error) {
	if dErrors.Is(err, dErrors.CodeBadRequest) ||
		dErrors.Is(err, dErrors.CodeNotFound) ||
		dErrors.Is(err, dErrors.CodeDuplicateSerial) {
		return
	}
	h.logger.ErrorContext(r.Context(), "failed to "+op,
		"request_id", middleware.GetRequestID(r.Context()),
		"error", err,
	)
}
