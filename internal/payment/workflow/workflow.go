// Package workflow implements the payment-gated registration: a two-phase
// commit mediated by the payment gateway. The application cannot roll the
// gateway back, so the protocol leans on an idempotent finalize instead of
// distributed rollback. No row exists in the primary store until a payment
// has been verified.
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"catcher/internal/audit"
	"catcher/internal/item"
	itemstore "catcher/internal/item/store"
	"catcher/internal/payment"
	"catcher/internal/platform/metrics"
	dErrors "catcher/pkg/domain-errors"
	"catcher/pkg/platform/sentinel"
	txcontext "catcher/pkg/platform/tx"
)

const referencePrefix = "reg_"

// InitiateResult is the redirect handoff for the caller.
type InitiateResult struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

// FinalizeResult reports the committed item. Repeated finalize calls for the
// same reference return the same item.
type FinalizeResult struct {
	Item      item.Item `json:"item"`
	Reference string    `json:"payment_reference"`
}

// Workflow orchestrates initiate and finalize.
type Workflow struct {
	gateway    payment.Gateway
	items      itemstore.ItemStore
	auditStore audit.Store
	refs       *ReferenceCache
	db         *sql.DB
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	group      singleflight.Group

	amountKobo  int64
	callbackURL string
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithReferenceCache enables the Redis reference correlation.
func WithReferenceCache(refs *ReferenceCache) Option {
	return func(w *Workflow) { w.refs = refs }
}

// WithDB enables transactional insert+audit on finalize. Without it (unit
// tests on the memory store) the two writes are issued separately.
func WithDB(db *sql.DB) Option {
	return func(w *Workflow) { w.db = db }
}

// WithMetrics attaches workflow metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

// New constructs a Workflow.
func New(
	gateway payment.Gateway,
	items itemstore.ItemStore,
	auditStore audit.Store,
	logger *slog.Logger,
	amountKobo int64,
	callbackURL string,
	opts ...Option,
) (*Workflow, error) {
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if items == nil {
		return nil, fmt.Errorf("item store is required")
	}
	if auditStore == nil {
		return nil, fmt.Errorf("audit store is required")
	}

	w := &Workflow{
		gateway:     gateway,
		items:       items,
		auditStore:  auditStore,
		logger:      logger,
		tracer:      otel.Tracer("catcher/payment"),
		amountKobo:  amountKobo,
		callbackURL: callbackURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Initiate stages the prospective item as gateway metadata and opens a
// payment session. Nothing is written to the primary store; an initiate
// failure leaves no state behind and is fully recoverable by retrying.
func (w *Workflow) Initiate(ctx context.Context, userID, email string, fields item.Fields) (InitiateResult, error) {
	ctx, span := w.tracer.Start(ctx, "payment.initiate")
	defer span.End()

	if userID == "" {
		return InitiateResult{}, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return InitiateResult{}, dErrors.New(dErrors.CodeBadRequest, "email is required")
	}
	if err := fields.Validate(); err != nil {
		return InitiateResult{}, err
	}

	metadata, err := payment.EncodeMetadata(userID, fields)
	if err != nil {
		return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to stage registration")
	}

	reference := referencePrefix + uuid.NewString()
	span.SetAttributes(attribute.String("payment.reference", reference))

	result, err := w.gateway.InitializeTransaction(ctx, payment.InitializeRequest{
		Email:       email,
		AmountKobo:  w.amountKobo,
		Reference:   reference,
		CallbackURL: w.callbackURL,
		Metadata:    metadata,
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "payment initialize failed",
			"reference", reference,
			"error", err,
		)
		return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeGatewayUnavailable, "payment gateway is unavailable")
	}

	// Best-effort: an audit hiccup must not strand a valid payment session.
	if err := w.auditStore.Append(ctx, audit.Event{
		Action:       audit.ActionPaymentInitiated,
		UserID:       userID,
		SerialNumber: fields.SerialNumber,
		Reference:    reference,
	}); err != nil {
		w.logger.WarnContext(ctx, "audit append failed", "action", audit.ActionPaymentInitiated, "error", err)
	}

	return InitiateResult{
		AuthorizationURL: result.AuthorizationURL,
		Reference:        reference,
	}, nil
}

// Finalize verifies a payment reference and, only on gateway-confirmed
// success, materializes the staged item. It is safe to call repeatedly for
// the same reference, and once the gateway verify has been issued it always
// runs to a terminal outcome. Concurrent calls for one reference collapse to
// a single execution.
func (w *Workflow) Finalize(ctx context.Context, reference string) (FinalizeResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return FinalizeResult{}, dErrors.New(dErrors.CodeBadRequest, "reference is required")
	}

	v, err, _ := w.group.Do(reference, func() (any, error) {
		return w.finalize(ctx, reference)
	})
	if err != nil {
		return FinalizeResult{}, err
	}
	return v.(FinalizeResult), nil
}

func (w *Workflow) finalize(ctx context.Context, reference string) (FinalizeResult, error) {
	ctx, span := w.tracer.Start(ctx, "payment.finalize",
		trace.WithAttributes(attribute.String("payment.reference", reference)))
	defer span.End()

	outcome := "committed"
	defer func() {
		span.SetAttributes(attribute.String("payment.outcome", outcome))
		if w.metrics != nil {
			w.metrics.IncrementFinalize(outcome)
		}
	}()

	// Reference correlation: an already-committed reference returns the
	// prior result without another verify round-trip.
	if serial, ok, err := w.refs.Lookup(ctx, reference); err != nil {
		w.logger.WarnContext(ctx, "reference cache lookup failed", "reference", reference, "error", err)
	} else if ok {
		existing, err := w.items.FindBySerial(ctx, serial)
		if err == nil {
			outcome = "replayed"
			return FinalizeResult{Item: existing, Reference: reference}, nil
		}
		w.logger.WarnContext(ctx, "cached reference no longer resolves, re-verifying",
			"reference", reference,
			"error", err,
		)
	}

	verified, err := w.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		if errors.Is(err, payment.ErrUnknownReference) {
			outcome = "not_confirmed"
			return FinalizeResult{}, dErrors.Wrap(err, dErrors.CodePaymentNotConfirmed, "payment could not be confirmed")
		}
		outcome = "gateway_error"
		return FinalizeResult{}, dErrors.Wrap(err, dErrors.CodeGatewayUnavailable, "payment gateway is unavailable")
	}
	if !verified.Succeeded() {
		outcome = "not_confirmed"
		return FinalizeResult{}, dErrors.New(dErrors.CodePaymentNotConfirmed,
			fmt.Sprintf("payment %s is %s, not successful", reference, verified.Status))
	}

	// Payment is confirmed from here on: every failure below is a
	// reconciliation gap, never a silent retry.
	fields, userID, err := w.validateStaged(verified)
	if err != nil {
		outcome = "reconciliation_gap"
		w.recordGap(ctx, reference, userID, "", err.Error())
		return FinalizeResult{}, dErrors.Wrap(err, dErrors.CodeReconciliationGap,
			"payment confirmed but the staged registration is invalid; reference "+reference)
	}

	created, err := w.insertWithAudit(ctx, userID, fields, reference)
	if err != nil {
		if errors.Is(err, sentinel.ErrDuplicateSerial) {
			// The row may be this same registration, committed by an
			// earlier finalize whose cache entry was lost.
			if existing, findErr := w.items.FindBySerial(ctx, fields.SerialNumber); findErr == nil && existing.UserID == userID {
				_ = w.refs.Store(ctx, reference, existing.SerialNumber)
				outcome = "replayed"
				return FinalizeResult{Item: existing, Reference: reference}, nil
			}
			outcome = "reconciliation_gap"
			w.recordGap(ctx, reference, userID, fields.SerialNumber, "serial number already registered to another item")
			return FinalizeResult{}, dErrors.Wrap(err, dErrors.CodeReconciliationGap,
				"payment confirmed but an item with this serial number already exists; reference "+reference)
		}
		outcome = "reconciliation_gap"
		w.recordGap(ctx, reference, userID, fields.SerialNumber, err.Error())
		return FinalizeResult{}, dErrors.Wrap(err, dErrors.CodeReconciliationGap,
			"payment confirmed but the item could not be created; reference "+reference)
	}

	if err := w.refs.Store(ctx, reference, created.SerialNumber); err != nil {
		w.logger.WarnContext(ctx, "reference cache store failed", "reference", reference, "error", err)
	}
	if w.metrics != nil {
		w.metrics.ItemsRegistered.Inc()
	}
	w.logger.InfoContext(ctx, "registration committed",
		"reference", reference,
		"item_id", created.ID,
		"serial_number", created.SerialNumber,
	)
	return FinalizeResult{Item: created, Reference: reference}, nil
}

// validateStaged re-validates the metadata that came back from the gateway.
// The identity is re-derived strictly from the verified transaction record,
// never from request input.
func (w *Workflow) validateStaged(verified payment.VerifyResult) (item.Fields, string, error) {
	userID := verified.Metadata.UserID
	if userID == "" {
		return item.Fields{}, "", fmt.Errorf("verified transaction carries no user identity")
	}
	fields, err := verified.Metadata.DecodeItem()
	if err != nil {
		return item.Fields{}, userID, err
	}
	if err := fields.Validate(); err != nil {
		return item.Fields{}, userID, err
	}
	return fields, userID, nil
}

// insertWithAudit commits the item row and its audit events atomically when
// a database handle is available.
func (w *Workflow) insertWithAudit(ctx context.Context, userID string, fields item.Fields, reference string) (item.Item, error) {
	appendEvents := func(ctx context.Context, created item.Item) error {
		if err := w.auditStore.Append(ctx, audit.Event{
			Action:       audit.ActionItemRegistered,
			UserID:       userID,
			ItemID:       created.ID.String(),
			SerialNumber: created.SerialNumber,
			Reference:    reference,
		}); err != nil {
			return err
		}
		return w.auditStore.Append(ctx, audit.Event{
			Action:    audit.ActionPaymentFinalized,
			UserID:    userID,
			ItemID:    created.ID.String(),
			Reference: reference,
		})
	}

	if w.db == nil {
		created, err := w.items.Insert(ctx, userID, fields)
		if err != nil {
			return item.Item{}, err
		}
		if err := appendEvents(ctx, created); err != nil {
			w.logger.WarnContext(ctx, "audit append failed", "reference", reference, "error", err)
		}
		return created, nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return item.Item{}, fmt.Errorf("begin finalize transaction: %w", err)
	}
	txCtx := txcontext.WithTx(ctx, tx)

	created, err := w.items.Insert(txCtx, userID, fields)
	if err != nil {
		_ = tx.Rollback()
		return item.Item{}, err
	}
	if err := appendEvents(txCtx, created); err != nil {
		_ = tx.Rollback()
		return item.Item{}, fmt.Errorf("append finalize audit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return item.Item{}, fmt.Errorf("commit finalize transaction: %w", err)
	}
	return created, nil
}

// recordGap makes a reconciliation gap loud: counter, error log, and an
// audit event carrying the reference for manual follow-up.
func (w *Workflow) recordGap(ctx context.Context, reference, userID, serial, detail string) {
	if w.metrics != nil {
		w.metrics.ReconciliationGaps.Inc()
	}
	w.logger.ErrorContext(ctx, "reconciliation gap: payment confirmed but item not created",
		"reference", reference,
		"user_id", userID,
		"serial_number", serial,
		"detail", detail,
	)
	if err := w.auditStore.Append(ctx, audit.Event{
		Action:       audit.ActionReconciliationGap,
		UserID:       userID,
		SerialNumber: serial,
		Reference:    reference,
		Detail:       detail,
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		w.logger.ErrorContext(ctx, "failed to record reconciliation gap audit event",
			"reference", reference,
			"error", err,
		)
	}
}
