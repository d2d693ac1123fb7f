package models

import (
	"time"
)

// Ledger notes written when the pipeline short-circuits. They exist for
// operator diagnostics, not for control flow.
const (
	NotePaymentNotFound    = "payment_not_found"
	NoteMissingExternalRef = "missing_external_reference"
	NoteMissingLocalRecord = "missing_local_record"
	NoteCollectorMismatch  = "collector_mismatch"
	NoteNotLiveMode        = "not_live_mode"
	NoteAmountMismatch     = "amount_mismatch"
)

// WebhookEvent is the append/merge-only ledger of inbound gateway
// notifications, keyed by the provider payment id. It records whether a
// notification reached a terminal outcome; it is not the gate that prevents
// duplicate ticket issuance (that lives on the payment row).
type WebhookEvent struct {
	ID          uint      `gorm:"primary_key" json:"-"`
	MPPaymentID string    `gorm:"uniqueIndex;not null" json:"mp_payment_id"`
	Topic       string    `json:"topic"`
	Processed   bool      `gorm:"not null;default:false" json:"processed"`
	Note        string    `json:"note,omitempty"`
	LastStatus  string    `json:"last_status,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
