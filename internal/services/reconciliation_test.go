package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/franmendez/ticketera/internal/gateway"
	"github.com/franmendez/ticketera/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedSnapshot(amount float64, externalRef string) *gateway.PaymentSnapshot {
	return &gateway.PaymentSnapshot{
		Status:            "approved",
		StatusDetail:      "accredited",
		TransactionAmount: amount,
		CollectorID:       111,
		ExternalReference: externalRef,
		LiveMode:          true,
	}
}

func TestReconcileNow_EndToEndApproval(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{snap: approvedSnapshot(20.00, "PAGO1")}
	reconciler := newTestReconciler(t, db, fetcher, ReconcilerOptions{ExpectedCollectorID: 111})

	seedPayment(t, db, models.Payment{
		ID:    "PAGO1",
		Total: 20.00,
		Items: models.LineItems{
			{Name: "General", Quantity: 2, UnitPrice: 10.00, TierIndex: 0},
		},
	})

	result, err := reconciler.ReconcileNow(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, "PAGO1", result.PaymentID)
	assert.Equal(t, models.EstadoAprobado, result.Estado)
	assert.Equal(t, "approved", result.MPStatus)

	pago := loadPayment(t, db, "PAGO1")
	assert.Equal(t, models.EstadoAprobado, pago.Estado)
	assert.Equal(t, models.IssuanceCompleted, pago.EntradasPagasGeneradas)
	assert.Equal(t, "P1", pago.MPPaymentID)
	require.NotNil(t, pago.ApprovedAt)
	require.NotNil(t, pago.EntradasGeneradasAt)

	assert.EqualValues(t, 2, ticketCount(t, db, "PAGO1"))

	ledger := loadLedger(t, db, "P1")
	assert.True(t, ledger.Processed)
	assert.Equal(t, "approved", ledger.LastStatus)
}

func TestReconcileNow_RedeliveryDoesNotReissue(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{snap: approvedSnapshot(20.00, "PAGO1")}
	reconciler := newTestReconciler(t, db, fetcher, ReconcilerOptions{})

	seedPayment(t, db, models.Payment{
		ID:    "PAGO1",
		Total: 20.00,
		Items: models.LineItems{{Name: "General", Quantity: 3, UnitPrice: 6.6667, TierIndex: 0}},
	})

	_, err := reconciler.ReconcileNow(context.Background(), "P1")
	require.NoError(t, err)
	require.EqualValues(t, 3, ticketCount(t, db, "PAGO1"))

	// Same notification again: exactly one aprobado transition, one issuance.
	result, err := reconciler.ReconcileNow(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, models.EstadoAprobado, result.Estado)
	assert.EqualValues(t, 3, ticketCount(t, db, "PAGO1"))
}

func TestReconcileNow_AmountMismatchIsTerminal(t *testing.T) {
	db := newTestDB(t)
	// 10.005 rounds to 1001 cents, 10.00 to 1000: mismatch at cent
	// granularity even though the float difference is half a cent.
	fetcher := &fakeFetcher{snap: approvedSnapshot(10.005, "PAGO1")}
	reconciler := newTestReconciler(t, db, fetcher, ReconcilerOptions{})

	seedPayment(t, db, models.Payment{
		ID:    "PAGO1",
		Total: 10.00,
		Items: models.LineItems{{Name: "General", Quantity: 1, UnitPrice: 10.00, TierIndex: 0}},
	})

	result, err := reconciler.ReconcileNow(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, models.EstadoMontoInvalido, result.Estado)
	assert.Equal(t, models.NoteAmountMismatch, result.Note)

	pago := loadPayment(t, db, "PAGO1")
	assert.Equal(t, models.EstadoMontoInvalido, pago.Estado)
	assert.Equal(t, models.IssuanceNotStarted, pago.EntradasPagasGeneradas)
	assert.Zero(t, ticketCount(t, db, "PAGO1"))

	ledger := loadLedger(t, db, "P1")
	assert.True(t, ledger.Processed)
	assert.Equal(t, models.NoteAmountMismatch, ledger.Note)
}

func TestReconcileNow_CollectorMismatchParksPayment(t *testing.T) {
	db := newTestDB(t)
	snap := approvedSnapshot(20.00, "PAGO1")
	snap.CollectorID = 999
	fetcher := &fakeFetcher{snap: snap}
	reconciler := newTestReconciler(t, db, fetcher, ReconcilerOptions{ExpectedCollectorID: 111})

	seedPayment(t, db, models.Payment{
		ID:    "PAGO1",
		Total: 20.00,
		Items: models.LineItems{{Name: "General", Quantity: 1, UnitPrice: 20.00, TierIndex: 0}},
	})

	result, err := reconciler.ReconcileNow(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, models.EstadoPendienteMP, result.Estado)
	assert.Equal(t, models.NoteCollectorMismatch, result.Note)

	pago := loadPayment(t, db, "PAGO1")
	assert.Equal(t, models.EstadoPendienteMP, pago.Estado)
	assert.Zero(t, ticketCount(t, db, "PAGO1"))
}

func TestReconcileNow_SandboxSnapshotRejectedInStrictMode(t *testing.T) {
	db := newTestDB(t)
	snap := approvedSnapshot(20.00, "PAGO1")
	snap.LiveMode = false
	fetcher := &fakeFetcher{snap: snap}
	reconciler := newTestReconciler(t, db, fetcher, ReconcilerOptions{RequireLiveMode: true})

	seedPayment(t, db, models.Payment{
		ID:    "PAGO1",
		Total: 20.00,
		Items: models.LineItems{{Name: "General", Quantity: 1, UnitPrice: 20.00, TierIndex: 0}},
	})

	result, err := reconciler.ReconcileNow(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, models.EstadoPendienteMP, result.Estado)
	assert.Equal(t, models.NoteNotLiveMode, result.Note)
}

func TestReconcileNow_MissingExternalReference(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{snap: approvedSnapshot(20.00, "")}
	reconciler := newTestReconciler(t, db, fetcher, ReconcilerOptions{})

	_, err := reconciler.ReconcileNow(context.Background(), "P1")
	require.ErrorIs(t, err, ErrMissingExternalReference)

	ledger := loadLedger(t, db, "P1")
	assert.False(t, ledger.Processed)
	assert.Equal(t, models.NoteMissingExternalRef, ledger.Note)
}

func TestReconcileNow_MissingLocalRecordSelfHeals(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{snap: approvedSnapshot(20.00, "PAGO-UNKNOWN")}
	reconciler := newTestReconciler(t, db, fetcher, ReconcilerOptions{})

	result, err := reconciler.ReconcileNow(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, models.EstadoPendienteMP, result.Estado)
	assert.Equal(t, models.NoteMissingLocalRecord, result.Note)

	placeholder := loadPayment(t, db, "PAGO-UNKNOWN")
	assert.Equal(t, models.EstadoPendienteMP, placeholder.Estado)
	assert.Equal(t, "P1", placeholder.MPPaymentID)
	assert.Zero(t, ticketCount(t, db, "PAGO-UNKNOWN"))

	// The placeholder never advances on its own; no issuance happened.
	ledger := loadLedger(t, db, "P1")
	assert.False(t, ledger.Processed)
}

func TestReconcileNow_GatewayFetchFailure(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{err: errors.New("404 payment not found")}
	reconciler := newTestReconciler(t, db, fetcher, ReconcilerOptions{})

	_, err := reconciler.ReconcileNow(context.Background(), "P1")
	require.ErrorIs(t, err, ErrPaymentNotFound)
	assert.Equal(t, 1, fetcher.calls, "synchronous path makes a single attempt")

	ledger := loadLedger(t, db, "P1")
	assert.False(t, ledger.Processed)
	assert.Equal(t, models.NotePaymentNotFound, ledger.Note)

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	assert.Zero(t, count, "no payment record is mutated on fetch failure")
}

func TestProcessNotification_RetriesThenRecordsFailure(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{err: errors.New("gateway unavailable")}
	retry := gateway.NewRetryPolicy(5, 0).WithSleeper(func(time.Duration) {})
	reconciler := newTestReconciler(t, db, fetcher, ReconcilerOptions{Retry: retry})

	reconciler.ProcessNotification(context.Background(), "payment", "P9")

	assert.Equal(t, 5, fetcher.calls)
	ledger := loadLedger(t, db, "P9")
	assert.Equal(t, models.NotePaymentNotFound, ledger.Note)
}

func TestProcessNotification_EmptyIDIsDiscardedSilently(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{snap: approvedSnapshot(20.00, "PAGO1")}
	reconciler := newTestReconciler(t, db, fetcher, ReconcilerOptions{})

	reconciler.ProcessNotification(context.Background(), "payment", "")

	assert.Zero(t, fetcher.calls)
	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count, "malformed notifications leave no ledger trace")
}

func TestReconcileNow_NonApprovalTransitions(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		detail     string
		wantEstado models.Estado
	}{
		{"rejected", "rejected", "cc_rejected_insufficient_amount", models.EstadoRechazado},
		{"cancelled", "cancelled", "expired", models.EstadoRechazado},
		{"refunded", "refunded", "refunded", models.EstadoReembolsado},
		{"partial refund overrides approved", "approved", "partially_refunded", models.EstadoReembolsado},
		{"chargeback", "charged_back", "settled", models.EstadoReversado},
		{"in process", "in_process", "pending_review_manual", models.EstadoPendienteMP},
		{"unknown status falls back", "some_new_status", "", models.EstadoPendienteMP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			snap := approvedSnapshot(20.00, "PAGO1")
			snap.Status = tt.status
			snap.StatusDetail = tt.detail
			fetcher := &fakeFetcher{snap: snap}
			reconciler := newTestReconciler(t, db, fetcher, ReconcilerOptions{})

			seedPayment(t, db, models.Payment{
				ID:    "PAGO1",
				Total: 20.00,
				Items: models.LineItems{{Name: "General", Quantity: 1, UnitPrice: 20.00, TierIndex: 0}},
			})

			result, err := reconciler.ReconcileNow(context.Background(), "P1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantEstado, result.Estado)
			assert.Zero(t, ticketCount(t, db, "PAGO1"))

			pago := loadPayment(t, db, "PAGO1")
			assert.Equal(t, tt.wantEstado, pago.Estado)
			assert.Equal(t, tt.status, pago.MPStatus)
			assert.Equal(t, tt.detail, pago.MPStatusDetail)
		})
	}
}
