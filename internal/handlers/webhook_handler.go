package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/franmendez/ticketera/internal/helpers"
	"github.com/franmendez/ticketera/internal/services"
	"github.com/gin-gonic/gin"
)

// webhookNotification is the body Mercado Pago posts on payment events.
// Anything that does not match is expected noise and acked anyway.
type webhookNotification struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type WebhookHandler struct {
	reconciler *services.Reconciler
}

func NewWebhookHandler(reconciler *services.Reconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// HandleNotification acknowledges the gateway immediately and reconciles in
// the background. The gateway only needs a 200; every internal outcome is
// recorded in persisted state, never on this response.
func (h *WebhookHandler) HandleNotification(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.Status(http.StatusOK)
		return
	}

	var notification webhookNotification
	if err := c.ShouldBindJSON(&notification); err != nil || notification.Data.ID == "" {
		// Malformed bodies are not errors; the gateway retries until acked.
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	go func(topic, mpPaymentID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		h.reconciler.ProcessNotification(ctx, topic, mpPaymentID)
	}(notification.Type, notification.Data.ID)

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// ManualReconcile is the synchronous administrative variant: one fetch
// attempt, failure surfaces as an HTTP error.
func (h *WebhookHandler) ManualReconcile(c *gin.Context) {
	mpPaymentID := c.Query("paymentId")
	if mpPaymentID == "" {
		helpers.RespondWithError(c, http.StatusBadRequest, "paymentId query parameter is required.")
		return
	}

	result, err := h.reconciler.ReconcileNow(c.Request.Context(), mpPaymentID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found at gateway"})
		case errors.Is(err, services.ErrMissingExternalReference):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "payment has no external reference"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"pagoId":   result.PaymentID,
		"estado":   result.Estado,
		"mpStatus": result.MPStatus,
	})
}
