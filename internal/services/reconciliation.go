// Package services implements the payment reconciliation pipeline, ticket
// issuance and settlement logic on top of the gateway client and the store.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franmendez/ticketera/internal/gateway"
	"github.com/franmendez/ticketera/internal/models"
	"github.com/franmendez/ticketera/monitoring"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentFetcher is the slice of the gateway client the pipeline needs.
type PaymentFetcher interface {
	FetchPayment(ctx context.Context, mpPaymentID string) (*gateway.PaymentSnapshot, error)
}

// ReconcileResult reports where a notification landed, for the synchronous
// administrative endpoint. The background path persists the same information
// on the payment and ledger rows instead.
type ReconcileResult struct {
	PaymentID string        `json:"pagoId"`
	Estado    models.Estado `json:"estado"`
	MPStatus  string        `json:"mpStatus"`
	Note      string        `json:"note,omitempty"`
}

// ReconcilerOptions carries the trust checks and retry budget. A zero
// ExpectedCollectorID disables the collector guard; RequireLiveMode enables
// the stricter backend variant that rejects sandbox snapshots.
type ReconcilerOptions struct {
	Retry               gateway.RetryPolicy
	ExpectedCollectorID int
	RequireLiveMode     bool
}

// Reconciler drives a payment record through its state machine from inbound
// gateway notifications.
type Reconciler struct {
	db       *gorm.DB
	fetcher  PaymentFetcher
	ledger   *Ledger
	issuance *Issuance
	opts     ReconcilerOptions
	log      *zap.Logger
}

func NewReconciler(db *gorm.DB, fetcher PaymentFetcher, issuance *Issuance, opts ReconcilerOptions, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		db:       db,
		fetcher:  fetcher,
		ledger:   NewLedger(db),
		issuance: issuance,
		opts:     opts,
		log:      logger,
	}
}

// ProcessNotification is the background variant: bounded fetch retries,
// failures are persisted on the ledger and logged, never propagated to the
// acknowledgment already sent to the gateway.
func (r *Reconciler) ProcessNotification(ctx context.Context, topic, mpPaymentID string) {
	if mpPaymentID == "" {
		// Malformed or irrelevant notifications are expected noise.
		return
	}

	result, err := r.run(ctx, topic, mpPaymentID, r.opts.Retry)
	if err != nil {
		monitoring.WebhookProcessed("error")
		r.log.Warn("webhook reconciliation failed",
			zap.String("mp_payment_id", mpPaymentID),
			zap.Error(err))
		return
	}
	if result != nil {
		monitoring.WebhookProcessed(string(result.Estado))
		r.log.Info("webhook reconciled",
			zap.String("mp_payment_id", mpPaymentID),
			zap.String("pago_id", result.PaymentID),
			zap.String("estado", string(result.Estado)))
	}
}

// ReconcileNow is the synchronous variant used by the administrative
// endpoint: a single fetch attempt whose failure surfaces to the caller.
func (r *Reconciler) ReconcileNow(ctx context.Context, mpPaymentID string) (*ReconcileResult, error) {
	return r.run(ctx, "manual", mpPaymentID, gateway.NoRetry)
}

func (r *Reconciler) run(ctx context.Context, topic, mpPaymentID string, retry gateway.RetryPolicy) (*ReconcileResult, error) {
	var snap *gateway.PaymentSnapshot
	fetchErr := retry.Do(ctx, func() error {
		var err error
		snap, err = r.fetcher.FetchPayment(ctx, mpPaymentID)
		return err
	})
	if fetchErr != nil {
		monitoring.GatewayFetch("error")
		if err := r.ledger.RecordOutcome(ctx, models.WebhookEvent{
			MPPaymentID: mpPaymentID,
			Topic:       topic,
			Note:        models.NotePaymentNotFound,
		}); err != nil {
			r.log.Error("failed to record ledger note", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrPaymentNotFound, mpPaymentID, fetchErr)
	}
	monitoring.GatewayFetch("ok")

	return r.reconcile(ctx, topic, snap)
}

// reconcile applies steps 3-9 of the pipeline to a fresh snapshot.
func (r *Reconciler) reconcile(ctx context.Context, topic string, snap *gateway.PaymentSnapshot) (*ReconcileResult, error) {
	if snap.ExternalReference == "" {
		if err := r.ledger.RecordOutcome(ctx, models.WebhookEvent{
			MPPaymentID: snap.MPPaymentID,
			Topic:       topic,
			Note:        models.NoteMissingExternalRef,
			LastStatus:  snap.Status,
		}); err != nil {
			r.log.Error("failed to record ledger note", zap.Error(err))
		}
		return nil, ErrMissingExternalReference
	}

	pagoID := snap.ExternalReference

	var pago models.Payment
	err := r.db.WithContext(ctx).First(&pago, "id = ?", pagoID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.selfHeal(ctx, topic, pagoID, snap)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", pagoID, err)
	}

	// Trust checks. A failed check parks the payment in pendiente_mp so it
	// never advances on an untrusted snapshot.
	if note := r.trustCheck(snap); note != "" {
		return r.park(ctx, topic, &pago, snap, note)
	}

	if !amountsMatch(snap.TransactionAmount, pago.Total) {
		return r.finish(ctx, topic, &pago, snap, models.EstadoMontoInvalido, models.NoteAmountMismatch)
	}

	estado := MapGatewayStatus(snap.Status, snap.StatusDetail)
	if estado == models.EstadoAprobado {
		return r.approve(ctx, topic, &pago, snap)
	}
	return r.finish(ctx, topic, &pago, snap, estado, "")
}

func (r *Reconciler) trustCheck(snap *gateway.PaymentSnapshot) string {
	if r.opts.ExpectedCollectorID != 0 && snap.CollectorID != r.opts.ExpectedCollectorID {
		return models.NoteCollectorMismatch
	}
	if r.opts.RequireLiveMode && !snap.LiveMode {
		return models.NoteNotLiveMode
	}
	return ""
}

// selfHeal covers out-of-order delivery: the notification arrived before the
// local payment record exists. A placeholder pendiente_mp row keeps the
// gateway state visible without inventing purchase data.
func (r *Reconciler) selfHeal(ctx context.Context, topic, pagoID string, snap *gateway.PaymentSnapshot) (*ReconcileResult, error) {
	placeholder := models.Payment{
		ID:             pagoID,
		Estado:         models.EstadoPendienteMP,
		MPPaymentID:    snap.MPPaymentID,
		MPStatus:       snap.Status,
		MPStatusDetail: snap.StatusDetail,
	}
	if err := r.db.WithContext(ctx).Create(&placeholder).Error; err != nil {
		return nil, fmt.Errorf("failed to create placeholder payment %s: %w", pagoID, err)
	}
	if err := r.ledger.RecordOutcome(ctx, models.WebhookEvent{
		MPPaymentID: snap.MPPaymentID,
		Topic:       topic,
		Note:        models.NoteMissingLocalRecord,
		LastStatus:  snap.Status,
	}); err != nil {
		r.log.Error("failed to record ledger note", zap.Error(err))
	}
	return &ReconcileResult{
		PaymentID: pagoID,
		Estado:    models.EstadoPendienteMP,
		MPStatus:  snap.Status,
		Note:      models.NoteMissingLocalRecord,
	}, nil
}

// park marks a payment pendiente_mp after a failed trust check.
func (r *Reconciler) park(ctx context.Context, topic string, pago *models.Payment, snap *gateway.PaymentSnapshot, note string) (*ReconcileResult, error) {
	return r.finish(ctx, topic, pago, snap, models.EstadoPendienteMP, note)
}

// finish persists a non-approval transition and marks the ledger processed.
// Re-applying the same estado is harmless, which is what makes concurrent
// re-deliveries of non-approval outcomes safe without locking.
func (r *Reconciler) finish(ctx context.Context, topic string, pago *models.Payment, snap *gateway.PaymentSnapshot, estado models.Estado, note string) (*ReconcileResult, error) {
	updates := map[string]interface{}{
		"estado":           estado,
		"mp_payment_id":    snap.MPPaymentID,
		"mp_status":        snap.Status,
		"mp_status_detail": snap.StatusDetail,
	}
	if err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", pago.ID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update payment %s: %w", pago.ID, err)
	}

	if err := r.ledger.RecordOutcome(ctx, models.WebhookEvent{
		MPPaymentID: snap.MPPaymentID,
		Topic:       topic,
		Processed:   true,
		Note:        note,
		LastStatus:  snap.Status,
	}); err != nil {
		r.log.Error("failed to mark ledger processed", zap.Error(err))
	}

	return &ReconcileResult{
		PaymentID: pago.ID,
		Estado:    estado,
		MPStatus:  snap.Status,
		Note:      note,
	}, nil
}

// approve performs the one transition that has side effects. The guarded
// UPDATE only succeeds for the first observer; a losing concurrent delivery
// sees zero affected rows and skips issuance entirely.
func (r *Reconciler) approve(ctx context.Context, topic string, pago *models.Payment, snap *gateway.PaymentSnapshot) (*ReconcileResult, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND estado <> ?", pago.ID, models.EstadoAprobado).
		Updates(map[string]interface{}{
			"estado":           models.EstadoAprobado,
			"mp_payment_id":    snap.MPPaymentID,
			"mp_status":        snap.Status,
			"mp_status_detail": snap.StatusDetail,
			"approved_at":      now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to approve payment %s: %w", pago.ID, res.Error)
	}

	firstApproval := res.RowsAffected > 0
	if firstApproval {
		if err := r.issuance.IssueTickets(ctx, pago.ID); err != nil && !errors.Is(err, ErrAlreadyIssued) {
			r.log.Error("ticket issuance failed",
				zap.String("pago_id", pago.ID),
				zap.Error(err))
		}
	}

	if err := r.ledger.RecordOutcome(ctx, models.WebhookEvent{
		MPPaymentID: snap.MPPaymentID,
		Topic:       topic,
		Processed:   true,
		LastStatus:  snap.Status,
	}); err != nil {
		r.log.Error("failed to mark ledger processed", zap.Error(err))
	}

	return &ReconcileResult{
		PaymentID: pago.ID,
		Estado:    models.EstadoAprobado,
		MPStatus:  snap.Status,
	}, nil
}
