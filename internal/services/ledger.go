package services

import (
	"context"

	"github.com/franmendez/ticketera/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger upserts diagnostic fields onto the webhook event record keyed by
// the provider payment id. The first write creates the row; later writes
// merge field by field, last write wins.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) RecordOutcome(ctx context.Context, event models.WebhookEvent) error {
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mp_payment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"topic", "processed", "note", "last_status", "updated_at"}),
	}).Create(&event).Error
}
