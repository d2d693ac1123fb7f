package handlers

import (
	"errors"
	"net/http"

	"github.com/franmendez/ticketera/internal/helpers"
	"github.com/franmendez/ticketera/internal/models"
	"github.com/franmendez/ticketera/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SettlementRequest struct {
	EventID uuid.UUID `json:"event_id" binding:"required"`
}

type SettlementHandler struct {
	settlements *services.Settlements
}

func NewSettlementHandler(settlements *services.Settlements) *SettlementHandler {
	return &SettlementHandler{settlements: settlements}
}

// CreateSettlement rolls every approved, unsettled payment of an event into
// one immutable liquidación.
func (h *SettlementHandler) CreateSettlement(c *gin.Context) {
	var req SettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	createdBy := uuid.Nil
	if userID, exists := c.Get("user_id"); exists {
		createdBy = userID.(uuid.UUID)
	}

	settlement, err := h.settlements.CreateSettlement(c.Request.Context(), req.EventID, createdBy)
	if err != nil {
		if errors.Is(err, services.ErrNothingToSettle) {
			helpers.RespondWithError(c, http.StatusConflict, "No approved payments pending settlement for this event.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create settlement.")
		return
	}

	c.JSON(http.StatusCreated, settlement)
}

func (h *SettlementHandler) ListSettlements(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	query := gormDB.Order("created_at desc")
	if eventID := c.Query("eventId"); eventID != "" {
		query = query.Where("event_id = ?", eventID)
	}

	var settlements []models.Settlement
	if err := query.Find(&settlements).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving settlements.")
		return
	}

	c.JSON(http.StatusOK, settlements)
}
