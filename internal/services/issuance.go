package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franmendez/ticketera/internal/helpers"
	"github.com/franmendez/ticketera/internal/models"
	"github.com/franmendez/ticketera/monitoring"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// issuanceBatchSize caps rows per atomic batch, below the store's
// per-transaction operation ceiling.
const issuanceBatchSize = 450

// ticketNamespace seeds deterministic ticket ids. A ticket's identity is a
// pure function of (paymentID, itemIndex, unitIndex), so re-running issuance
// after a partial failure regenerates the same ids and the conflict clause
// skips units that already exist.
var ticketNamespace = uuid.MustParse("9f2c1f64-3b88-4c6a-9d0e-5a7b8f1e2d43")

// Issuance creates ticket rows for approved payments, exactly once per
// payment.
type Issuance struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewIssuance(db *gorm.DB, logger *zap.Logger) *Issuance {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuance{db: db, log: logger}
}

// IssueTickets expands an approved payment's line items into individual
// ticket rows. It fails with ErrAlreadyIssued when the idempotency guard
// rejects the run and ErrInvalidPayment when required fields are absent.
//
// The guard runs inside one transaction before any ticket is written: the
// flag moves false -> procesando, locking out concurrent runs. On batch
// failure the flag is restored so the next notification can retry; already
// committed units survive as-is and are skipped by their deterministic ids.
func (s *Issuance) IssueTickets(ctx context.Context, paymentID string) error {
	var pago models.Payment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&pago, "id = ?", paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidPayment
			}
			return err
		}
		if pago.EntradasPagasGeneradas != models.IssuanceNotStarted {
			return ErrAlreadyIssued
		}
		if pago.UserID == uuid.Nil || pago.EventID == uuid.Nil || len(pago.Items) == 0 {
			return ErrInvalidPayment
		}

		res := tx.Model(&models.Payment{}).
			Where("id = ? AND entradas_pagas_generadas = ?", paymentID, models.IssuanceNotStarted).
			Update("entradas_pagas_generadas", models.IssuanceInProgress)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyIssued
		}
		return nil
	})
	if err != nil {
		return err
	}

	tickets := s.expandTickets(&pago)
	for _, batch := range batchTickets(tickets, issuanceBatchSize) {
		if err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&batch).Error; err != nil {
			s.unlock(ctx, paymentID)
			return fmt.Errorf("failed to write ticket batch for %s: %w", paymentID, err)
		}
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]interface{}{
			"entradas_pagas_generadas": models.IssuanceCompleted,
			"entradas_generadas_at":    now,
		}).Error; err != nil {
		s.unlock(ctx, paymentID)
		return fmt.Errorf("failed to complete issuance for %s: %w", paymentID, err)
	}

	monitoring.TicketsIssued(len(tickets))
	s.log.Info("tickets issued",
		zap.String("pago_id", paymentID),
		zap.Int("count", len(tickets)))
	return nil
}

// unlock restores the issuance flag after a failed run so the payment is
// retryable on the next notification.
func (s *Issuance) unlock(ctx context.Context, paymentID string) {
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND entradas_pagas_generadas = ?", paymentID, models.IssuanceInProgress).
		Update("entradas_pagas_generadas", models.IssuanceNotStarted).Error; err != nil {
		s.log.Error("failed to unlock issuance",
			zap.String("pago_id", paymentID),
			zap.Error(err))
	}
}

// expandTickets turns each line item's quantity into that many ticket rows,
// snapshotting tier data so later tier edits never touch sold tickets.
func (s *Issuance) expandTickets(pago *models.Payment) []models.Ticket {
	tiersByIndex := s.loadTiers(pago.EventID)

	tickets := make([]models.Ticket, 0, pago.TotalQuantity())
	for itemIdx, item := range pago.Items {
		for unitIdx := 0; unitIdx < item.Quantity; unitIdx++ {
			ticketID := deterministicTicketID(pago.ID, itemIdx, unitIdx)

			ticket := models.Ticket{
				ID:        ticketID,
				UserID:    pago.UserID,
				EventID:   pago.EventID,
				PaymentID: pago.ID,
				TierName:  item.Name,
				TierPrice: item.UnitPrice,
				TierIndex: item.TierIndex,
				Estado:    models.TicketAprobada,
				QR:        helpers.TicketQRPayload(ticketID, pago.ID, pago.EventID),
			}
			if tier, ok := tiersByIndex[item.TierIndex]; ok {
				ticket.TierID = tier.ID.String()
				ticket.TierName = tier.Name
				ticket.TierPrice = tier.Price
			}
			tickets = append(tickets, ticket)
		}
	}
	return tickets
}

func (s *Issuance) loadTiers(eventID uuid.UUID) map[int]models.Tier {
	var tiers []models.Tier
	if err := s.db.Where("event_id = ?", eventID).Find(&tiers).Error; err != nil {
		s.log.Warn("failed to load event tiers, falling back to line item snapshots",
			zap.String("event_id", eventID.String()),
			zap.Error(err))
		return nil
	}
	byIndex := make(map[int]models.Tier, len(tiers))
	for _, tier := range tiers {
		byIndex[tier.Index] = tier
	}
	return byIndex
}

func deterministicTicketID(paymentID string, itemIdx, unitIdx int) uuid.UUID {
	return uuid.NewSHA1(ticketNamespace, []byte(fmt.Sprintf("%s|%d|%d", paymentID, itemIdx, unitIdx)))
}

// batchTickets chunks tickets into commit groups of at most size rows.
func batchTickets(tickets []models.Ticket, size int) [][]models.Ticket {
	if len(tickets) == 0 {
		return nil
	}
	batches := make([][]models.Ticket, 0, (len(tickets)+size-1)/size)
	for start := 0; start < len(tickets); start += size {
		end := start + size
		if end > len(tickets) {
			end = len(tickets)
		}
		batches = append(batches, tickets[start:end])
	}
	return batches
}
