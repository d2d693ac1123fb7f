package handlers

import (
	"net/http"

	"github.com/franmendez/ticketera/internal/helpers"
	"github.com/franmendez/ticketera/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GetProfile returns the authenticated user together with their payment and
// ticket history.
func GetProfile(c *gin.Context) {
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

	var user models.User
	if err := gormDB.Preload("Role").Where("id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "User not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving user.")
		return
	}

	var pagos []models.Payment
	if err := gormDB.Where("user_id = ?", userID).Order("created_at desc").Find(&pagos).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving payments.")
		return
	}

	var tickets []models.Ticket
	if err := gormDB.Where("user_id = ?", userID).Order("created_at desc").Find(&tickets).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving tickets.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":     user,
		"pagos":    pagos,
		"entradas": tickets,
	})
}
