package handlers

import (
	"net/http"

	"github.com/franmendez/ticketera/internal/helpers"
	"github.com/franmendez/ticketera/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductRequest struct {
	EventID uuid.UUID `json:"event_id" binding:"required"`
	Name    string    `json:"name" binding:"required,min=2"`
	Price   float64   `json:"price" binding:"required"`
}

func CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

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

	var event models.Event
	if err := gormDB.First(&event, "id = ? AND user_id = ?", req.EventID, userID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "Event not found or you don't have permission to modify it.")
		return
	}

	product := models.Product{
		EventID: req.EventID,
		Name:    req.Name,
		Price:   req.Price,
		Active:  true,
	}
	if err := gormDB.Create(&product).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create product.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "Product created successfully.",
		"product_id": product.ID,
	})
}

func ListProducts(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var products []models.Product
	if err := gormDB.Where("event_id = ? AND active = ?", c.Param("id"), true).Find(&products).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving products.")
		return
	}

	c.JSON(http.StatusOK, products)
}

func DeactivateProduct(c *gin.Context) {
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

	var product models.Product
	if err := gormDB.First(&product, "id = ?", c.Param("id")).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Product not found.")
		return
	}

	var event models.Event
	if err := gormDB.First(&event, "id = ? AND user_id = ?", product.EventID, userID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to modify this product.")
		return
	}

	if err := gormDB.Model(&product).Update("active", false).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to deactivate product.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Product deactivated successfully."})
}
