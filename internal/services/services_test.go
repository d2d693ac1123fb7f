package services

import (
	"context"
	"testing"

	"github.com/franmendez/ticketera/internal/gateway"
	"github.com/franmendez/ticketera/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Every pooled connection to ":memory:" is its own database; pin the
	// pool to one so migrations and queries see the same schema.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Event{}, &models.Tier{}, &models.Product{},
		&models.Payment{}, &models.Ticket{},
		&models.WebhookEvent{}, &models.Settlement{},
	))
	return db
}

// fakeFetcher returns a canned snapshot (or error), counting calls.
type fakeFetcher struct {
	snap  *gateway.PaymentSnapshot
	err   error
	calls int
}

func (f *fakeFetcher) FetchPayment(ctx context.Context, mpPaymentID string) (*gateway.PaymentSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	snap := *f.snap
	snap.MPPaymentID = mpPaymentID
	return &snap, nil
}

func newTestReconciler(t *testing.T, db *gorm.DB, fetcher *fakeFetcher, opts ReconcilerOptions) *Reconciler {
	t.Helper()
	return NewReconciler(db, fetcher, NewIssuance(db, nil), opts, nil)
}

func seedPayment(t *testing.T, db *gorm.DB, pago models.Payment) models.Payment {
	t.Helper()
	if pago.UserID == uuid.Nil {
		pago.UserID = uuid.New()
	}
	if pago.EventID == uuid.Nil {
		pago.EventID = uuid.New()
	}
	if pago.Estado == "" {
		pago.Estado = models.EstadoPendiente
	}
	if pago.EntradasPagasGeneradas == "" {
		pago.EntradasPagasGeneradas = models.IssuanceNotStarted
	}
	require.NoError(t, db.Create(&pago).Error)
	return pago
}

func ticketCount(t *testing.T, db *gorm.DB, paymentID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Ticket{}).Where("payment_id = ?", paymentID).Count(&count).Error)
	return count
}

func loadPayment(t *testing.T, db *gorm.DB, id string) models.Payment {
	t.Helper()
	var pago models.Payment
	require.NoError(t, db.First(&pago, "id = ?", id).Error)
	return pago
}

func loadLedger(t *testing.T, db *gorm.DB, mpPaymentID string) models.WebhookEvent {
	t.Helper()
	var event models.WebhookEvent
	require.NoError(t, db.First(&event, "mp_payment_id = ?", mpPaymentID).Error)
	return event
}
