package handlers

import (
	"net/http"
	"time"

	"github.com/franmendez/ticketera/internal/helpers"
	"github.com/franmendez/ticketera/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AdminHandler struct {
	stalePaymentTTL time.Duration
	log             *zap.Logger
}

func NewAdminHandler(stalePaymentTTL time.Duration, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{stalePaymentTTL: stalePaymentTTL, log: logger}
}

// CleanupStalePayments removes abandoned checkouts that never reached the
// gateway. Guarded by the admin shared secret middleware.
func (h *AdminHandler) CleanupStalePayments(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	removed, err := services.CleanupStalePayments(c.Request.Context(), gormDB, h.stalePaymentTTL, h.log)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Cleanup failed.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
