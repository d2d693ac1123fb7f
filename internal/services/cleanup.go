package services

import (
	"context"
	"time"

	"github.com/franmendez/ticketera/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CleanupStalePayments removes pendiente payments older than ttl that never
// received a gateway payment id: abandoned checkouts the gateway will never
// notify about. Returns the number of rows removed.
func CleanupStalePayments(ctx context.Context, db *gorm.DB, ttl time.Duration, logger *zap.Logger) (int64, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cutoff := time.Now().Add(-ttl)

	res := db.WithContext(ctx).
		Where("estado = ? AND mp_payment_id = '' AND created_at < ?", models.EstadoPendiente, cutoff).
		Delete(&models.Payment{})
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		logger.Info("stale pending payments removed",
			zap.Int64("count", res.RowsAffected),
			zap.Time("cutoff", cutoff))
	}
	return res.RowsAffected, nil
}
