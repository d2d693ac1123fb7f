package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/franmendez/ticketera/config"
	"github.com/franmendez/ticketera/internal/gateway"
	"github.com/franmendez/ticketera/internal/helpers"
	"github.com/franmendez/ticketera/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentItemRequest struct {
	Name      string `json:"nombre" binding:"required"`
	Quantity  int    `json:"cantidad" binding:"required,min=1"`
	TierIndex int    `json:"tierIndex"`
}

type PaymentRequest struct {
	EventID uuid.UUID            `json:"event_id" binding:"required"`
	Items   []PaymentItemRequest `json:"items" binding:"required,min=1,dive"`
}

type PaymentHandler struct {
	mp  *gateway.Client
	cfg *config.Config
}

func NewPaymentHandler(mp *gateway.Client, cfg *config.Config) *PaymentHandler {
	return &PaymentHandler{mp: mp, cfg: cfg}
}

// CreatePayment registers a pending payment and returns the Mercado Pago
// checkout link. Unit prices come from the stored tiers/products, never from
// the request, and the generated payment id travels to the gateway as the
// external reference.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	userUUID := userID.(uuid.UUID)

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Preload("Tiers").First(&event, "id = ?", req.EventID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
		return
	}

	var user models.User
	if err := gormDB.First(&user, "id = ?", userUUID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "User not found.")
		return
	}

	items, total, err := buildLineItems(gormDB, &event, req.Items)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	pago := models.Payment{
		ID:      newPaymentID(),
		UserID:  userUUID,
		EventID: event.ID,
		Items:   items,
		Total:   total,
		Estado:  models.EstadoPendiente,
	}
	if err := gormDB.Create(&pago).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create payment.")
		return
	}

	preference, err := h.mp.CreatePreference(c.Request.Context(), gateway.CheckoutOrder{
		PaymentID:  pago.ID,
		Title:      event.Title,
		Amount:     total,
		PayerEmail: user.Email,
		BackURL:    h.cfg.CheckoutBackURL,
		NotifyURL:  h.cfg.NotificationURL,
	})
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to create checkout preference.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"pago_id":       pago.ID,
		"total":         total,
		"preference_id": preference.ID,
		"init_point":    preference.InitPoint,
	})
}

// GetPayment lets a buyer poll the state of their own payment. This is the
// only way end users observe the reconciliation pipeline.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
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

	var pago models.Payment
	if err := gormDB.First(&pago, "id = ? AND user_id = ?", c.Param("id"), userID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Payment not found.")
		return
	}

	c.JSON(http.StatusOK, pago)
}

func buildLineItems(db *gorm.DB, event *models.Event, reqItems []PaymentItemRequest) (models.LineItems, float64, error) {
	tiersByIndex := make(map[int]models.Tier, len(event.Tiers))
	for _, tier := range event.Tiers {
		tiersByIndex[tier.Index] = tier
	}

	items := make(models.LineItems, 0, len(reqItems))
	total := 0.0
	for _, reqItem := range reqItems {
		item := models.LineItem{
			Name:      reqItem.Name,
			Quantity:  reqItem.Quantity,
			TierIndex: reqItem.TierIndex,
		}

		if reqItem.TierIndex >= 0 {
			tier, ok := tiersByIndex[reqItem.TierIndex]
			if !ok {
				return nil, 0, fmt.Errorf("event has no tier with index %d", reqItem.TierIndex)
			}
			item.Name = tier.Name
			item.UnitPrice = tier.Price
		} else {
			var product models.Product
			err := db.First(&product, "event_id = ? AND name = ? AND active = ?", event.ID, reqItem.Name, true).Error
			if err != nil {
				return nil, 0, fmt.Errorf("event has no active product %q", reqItem.Name)
			}
			item.UnitPrice = product.Price
		}

		total += item.UnitPrice * float64(item.Quantity)
		items = append(items, item)
	}
	return items, total, nil
}

func newPaymentID() string {
	return fmt.Sprintf("PAGO-%s", strings.ToUpper(uuid.New().String()[:8]))
}
