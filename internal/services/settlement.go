package services

import (
	"context"
	"fmt"

	"github.com/franmendez/ticketera/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Settlements builds immutable payout rollups (liquidaciones) over the
// approved payments of an event.
type Settlements struct {
	db             *gorm.DB
	commissionRate decimal.Decimal
	log            *zap.Logger
}

func NewSettlements(db *gorm.DB, commissionRate float64, logger *zap.Logger) *Settlements {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Settlements{
		db:             db,
		commissionRate: decimal.NewFromFloat(commissionRate),
		log:            logger,
	}
}

// CreateSettlement aggregates every approved, not-yet-settled payment of the
// event into one settlement row and stamps those payments as settled, all in
// one transaction. Re-running later only picks up newly approved payments.
func (s *Settlements) CreateSettlement(ctx context.Context, eventID, createdBy uuid.UUID) (*models.Settlement, error) {
	var settlement *models.Settlement

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pagos []models.Payment
		if err := tx.
			Where("event_id = ? AND estado = ? AND settlement_id IS NULL", eventID, models.EstadoAprobado).
			Find(&pagos).Error; err != nil {
			return err
		}
		if len(pagos) == 0 {
			return ErrNothingToSettle
		}

		total := decimal.Zero
		ids := make(models.PaymentIDs, 0, len(pagos))
		for _, pago := range pagos {
			total = total.Add(decimal.NewFromFloat(pago.Total))
			ids = append(ids, pago.ID)
		}
		commission := total.Mul(s.commissionRate).Round(2)
		base := total.Sub(commission)

		settlement = &models.Settlement{
			EventID:    eventID,
			Total:      total.InexactFloat64(),
			Base:       base.InexactFloat64(),
			Commission: commission.InexactFloat64(),
			PaymentIDs: ids,
			CreatedBy:  createdBy,
		}
		if err := tx.Create(settlement).Error; err != nil {
			return fmt.Errorf("failed to create settlement: %w", err)
		}

		if err := tx.Model(&models.Payment{}).
			Where("id IN ?", []string(ids)).
			Update("settlement_id", settlement.ID).Error; err != nil {
			return fmt.Errorf("failed to mark payments settled: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("settlement created",
		zap.String("settlement_id", settlement.ID.String()),
		zap.String("event_id", eventID.String()),
		zap.Int("payments", len(settlement.PaymentIDs)),
		zap.Float64("total", settlement.Total))
	return settlement, nil
}
