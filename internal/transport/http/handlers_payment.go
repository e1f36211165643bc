package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"catcher/internal/item"
	"catcher/internal/payment/workflow"
	"catcher/internal/platform/middleware"
	"catcher/internal/transport/http/shared"
	dErrors "catcher/pkg/domain-errors"
)

// PaymentHandler exposes the two phases of paid registration. Initiate is
// authenticated; finalize is public because the gateway redirects the payer's
// browser back without a bearer token, and the verified transaction record,
// not the request, establishes whose item is created.
type PaymentHandler struct {
	workflow *workflow.Workflow
	logger   *slog.Logger
}

// NewPaymentHandler constructs the payment handler.
func NewPaymentHandler(wf *workflow.Workflow, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{workflow: wf, logger: logger}
}

// RegisterAuthenticated mounts initiate on the authenticated router.
func (h *PaymentHandler) RegisterAuthenticated(r chi.Router) {
	r.Post("/payments/initiate", h.handleInitiate)
}

// RegisterPublic mounts finalize on the public router.
func (h *PaymentHandler) RegisterPublic(r chi.Router) {
	r.Post("/payments/finalize", h.handleFinalize)
}

func (h *PaymentHandler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var fields item.Fields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.workflow.Initiate(ctx, middleware.GetUserID(ctx), middleware.GetEmail(ctx), fields)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

type finalizeRequest struct {
	Reference string `json:"reference"`
}

type finalizeResponse struct {
	Success   bool      `json:"success"`
	Item      item.Item `json:"item"`
	Reference string    `json:"payment_reference"`
}

func (h *PaymentHandler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	// The gateway's redirect appends the reference as a query parameter, so
	// accept it there as well.
	if req.Reference == "" {
		req.Reference = r.URL.Query().Get("reference")
	}

	result, err := h.workflow.Finalize(ctx, req.Reference)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeReconciliationGap) {
			h.logger.ErrorContext(ctx, "finalize left a reconciliation gap",
				"request_id", middleware.GetRequestID(ctx),
				"error", err,
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, finalizeResponse{
		Success:   true,
		Item:      result.Item,
		Reference: result.Reference,
	})
}
