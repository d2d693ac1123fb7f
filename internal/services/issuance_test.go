package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/franmendez/ticketera/internal/helpers"
	"github.com/franmendez/ticketera/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueTickets_ExpandsQuantities(t *testing.T) {
	db := newTestDB(t)
	issuance := NewIssuance(db, nil)

	pago := seedPayment(t, db, models.Payment{
		ID:     "PAGO1",
		Estado: models.EstadoAprobado,
		Total:  50.00,
		Items: models.LineItems{
			{Name: "General", Quantity: 3, UnitPrice: 10.00, TierIndex: 0},
			{Name: "VIP", Quantity: 1, UnitPrice: 20.00, TierIndex: 1},
		},
	})

	require.NoError(t, issuance.IssueTickets(context.Background(), "PAGO1"))

	var tickets []models.Ticket
	require.NoError(t, db.Where("payment_id = ?", "PAGO1").Order("tier_index").Find(&tickets).Error)
	require.Len(t, tickets, 4)

	seen := map[uuid.UUID]bool{}
	for _, ticket := range tickets {
		assert.False(t, seen[ticket.ID], "ticket ids must be unique")
		seen[ticket.ID] = true
		assert.Equal(t, pago.UserID, ticket.UserID)
		assert.Equal(t, pago.EventID, ticket.EventID)
		assert.Equal(t, models.TicketAprobada, ticket.Estado)
		assert.False(t, ticket.Usado)

		ticketID, sig, err := helpers.ParseTicketQR(ticket.QR)
		require.NoError(t, err)
		assert.Equal(t, ticket.ID, ticketID)
		assert.True(t, helpers.VerifyTicketSignature(ticketID, "PAGO1", pago.EventID, sig))
	}

	loaded := loadPayment(t, db, "PAGO1")
	assert.Equal(t, models.IssuanceCompleted, loaded.EntradasPagasGeneradas)
	require.NotNil(t, loaded.EntradasGeneradasAt)
}

func TestIssueTickets_SnapshotsTierData(t *testing.T) {
	db := newTestDB(t)
	issuance := NewIssuance(db, nil)

	event := models.Event{
		Title:     "Noche Electrónica",
		Venue:     "Club Central",
		StartTime: time.Now().Add(24 * time.Hour),
		EndTime:   time.Now().Add(30 * time.Hour),
		UserID:    uuid.New(),
	}
	require.NoError(t, db.Create(&event).Error)
	tier := models.Tier{EventID: event.ID, Name: "Early Bird", Price: 12.50, Index: 0}
	require.NoError(t, db.Create(&tier).Error)

	seedPayment(t, db, models.Payment{
		ID:      "PAGO1",
		EventID: event.ID,
		Estado:  models.EstadoAprobado,
		Total:   12.50,
		Items: models.LineItems{
			// Stale line-item snapshot; the live tier row wins.
			{Name: "EB", Quantity: 1, UnitPrice: 10.00, TierIndex: 0},
		},
	})

	require.NoError(t, issuance.IssueTickets(context.Background(), "PAGO1"))

	var ticket models.Ticket
	require.NoError(t, db.First(&ticket, "payment_id = ?", "PAGO1").Error)
	assert.Equal(t, tier.ID.String(), ticket.TierID)
	assert.Equal(t, "Early Bird", ticket.TierName)
	assert.Equal(t, 12.50, ticket.TierPrice)
}

func TestIssueTickets_AlreadyIssued(t *testing.T) {
	db := newTestDB(t)
	issuance := NewIssuance(db, nil)

	for _, flag := range []models.IssuanceFlag{models.IssuanceInProgress, models.IssuanceCompleted} {
		t.Run(string(flag), func(t *testing.T) {
			id := "PAGO-" + string(flag)
			seedPayment(t, db, models.Payment{
				ID:                     id,
				Estado:                 models.EstadoAprobado,
				Total:                  10.00,
				EntradasPagasGeneradas: flag,
				Items:                  models.LineItems{{Name: "General", Quantity: 1, UnitPrice: 10.00, TierIndex: 0}},
			})

			err := issuance.IssueTickets(context.Background(), id)
			require.ErrorIs(t, err, ErrAlreadyIssued)
			assert.Zero(t, ticketCount(t, db, id))
		})
	}
}

func TestIssueTickets_InvalidPayment(t *testing.T) {
	db := newTestDB(t)
	issuance := NewIssuance(db, nil)

	err := issuance.IssueTickets(context.Background(), "NO-SUCH-PAGO")
	require.ErrorIs(t, err, ErrInvalidPayment)

	seedPayment(t, db, models.Payment{
		ID:     "PAGO-EMPTY",
		Estado: models.EstadoAprobado,
		Total:  10.00,
		Items:  models.LineItems{},
	})
	err = issuance.IssueTickets(context.Background(), "PAGO-EMPTY")
	require.ErrorIs(t, err, ErrInvalidPayment)

	// A failed validation must not consume the idempotency flag.
	loaded := loadPayment(t, db, "PAGO-EMPTY")
	assert.Equal(t, models.IssuanceNotStarted, loaded.EntradasPagasGeneradas)
}

func TestIssueTickets_RerunAfterUnlockCreatesNoDuplicates(t *testing.T) {
	db := newTestDB(t)
	issuance := NewIssuance(db, nil)

	pago := seedPayment(t, db, models.Payment{
		ID:     "PAGO1",
		Estado: models.EstadoAprobado,
		Total:  30.00,
		Items:  models.LineItems{{Name: "General", Quantity: 3, UnitPrice: 10.00, TierIndex: 0}},
	})

	// Simulate a partial prior run: one unit already committed, flag
	// restored to retryable.
	preexisting := models.Ticket{
		ID:        deterministicTicketID("PAGO1", 0, 1),
		UserID:    pago.UserID,
		EventID:   pago.EventID,
		PaymentID: "PAGO1",
		TierName:  "General",
		TierPrice: 10.00,
		Estado:    models.TicketAprobada,
	}
	require.NoError(t, db.Create(&preexisting).Error)

	require.NoError(t, issuance.IssueTickets(context.Background(), "PAGO1"))
	assert.EqualValues(t, 3, ticketCount(t, db, "PAGO1"))
}

func TestDeterministicTicketID(t *testing.T) {
	a := deterministicTicketID("PAGO1", 0, 0)
	assert.Equal(t, a, deterministicTicketID("PAGO1", 0, 0), "same inputs, same id")

	ids := map[uuid.UUID]string{a: "0|0"}
	for _, pair := range [][2]int{{0, 1}, {1, 0}, {1, 1}} {
		id := deterministicTicketID("PAGO1", pair[0], pair[1])
		key := fmt.Sprintf("%d|%d", pair[0], pair[1])
		prev, dup := ids[id]
		assert.False(t, dup, "id for %s collides with %s", key, prev)
		ids[id] = key
	}
	assert.NotEqual(t, a, deterministicTicketID("PAGO2", 0, 0), "payment id participates")
}

func TestBatchTickets(t *testing.T) {
	assert.Nil(t, batchTickets(nil, 450))

	tickets := make([]models.Ticket, 451)
	batches := batchTickets(tickets, 450)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 450)
	assert.Len(t, batches[1], 1)

	total := 0
	for _, batch := range batchTickets(make([]models.Ticket, 900), 450) {
		total += len(batch)
	}
	assert.Equal(t, 900, total)
}

func TestIssueTickets_LargeOrderSpansBatches(t *testing.T) {
	db := newTestDB(t)
	issuance := NewIssuance(db, nil)

	seedPayment(t, db, models.Payment{
		ID:     "PAGO-BIG",
		Estado: models.EstadoAprobado,
		Total:  4510.00,
		Items:  models.LineItems{{Name: "General", Quantity: 451, UnitPrice: 10.00, TierIndex: 0}},
	})

	require.NoError(t, issuance.IssueTickets(context.Background(), "PAGO-BIG"))
	assert.EqualValues(t, 451, ticketCount(t, db, "PAGO-BIG"))
	assert.Equal(t, models.IssuanceCompleted, loadPayment(t, db, "PAGO-BIG").EntradasPagasGeneradas)
}
