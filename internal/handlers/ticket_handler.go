package handlers

import (
	"net/http"

	"github.com/franmendez/ticketera/internal/helpers"
	"github.com/franmendez/ticketera/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"
)

func ListMyTickets(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var tickets []models.Ticket
	if err := gormDB.Where("user_id = ?", userID).Order("created_at desc").Find(&tickets).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving tickets.")
		return
	}

	c.JSON(http.StatusOK, tickets)
}

// GetTicketQR renders the ticket's stored verification payload as a PNG.
func GetTicketQR(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var ticket models.Ticket
	if err := gormDB.First(&ticket, "id = ?", c.Param("id")).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
		return
	}

	if ticket.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to render this ticket.")
		return
	}
	if ticket.Usado {
		helpers.RespondWithError(c, http.StatusForbidden, "Ticket already used.")
		return
	}

	qrImage, err := qrcode.Encode(ticket.QR, qrcode.Medium, 256)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code.")
		return
	}

	c.Data(http.StatusOK, "image/png", qrImage)
}

// ValidateTicket redeems a scanned QR at the door: verifies the embedded
// signature against the ticket's own identifiers and flips usado once.
func ValidateTicket(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var req struct {
		QRData string `json:"qr_data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	ticketID, signature, err := helpers.ParseTicketQR(req.QRData)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid QR code format.")
		return
	}

	var ticket models.Ticket
	if err := gormDB.First(&ticket, "id = ?", ticketID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
		return
	}

	if !helpers.VerifyTicketSignature(ticket.ID, ticket.PaymentID, ticket.EventID, signature) {
		helpers.RespondWithError(c, http.StatusForbidden, "Invalid QR code signature.")
		return
	}

	var event models.Event
	if err := gormDB.First(&event, "id = ?", ticket.EventID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
		return
	}
	if event.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to validate tickets for this event.")
		return
	}

	// The guarded update makes double scans of the same ticket lose cleanly.
	res := gormDB.Model(&models.Ticket{}).
		Where("id = ? AND usado = ?", ticket.ID, false).
		Updates(map[string]interface{}{"usado": true, "estado": models.TicketUsada})
	if res.Error != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to validate ticket.")
		return
	}
	if res.RowsAffected == 0 {
		helpers.RespondWithError(c, http.StatusForbidden, "Ticket already used.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Ticket validated successfully.",
		"ticket": gin.H{
			"id":          ticket.ID,
			"event_title": event.Title,
			"tier_name":   ticket.TierName,
		},
	})
}
