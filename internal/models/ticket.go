package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TicketAprobada = "aprobada"
	TicketUsada    = "usada"
)

// Ticket is one admission unit. The tier fields are a snapshot taken at
// issuance time, not a live reference, so later tier edits never rewrite
// sold tickets.
type Ticket struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	EventID   uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	PaymentID string    `gorm:"not null;index" json:"pago_id"`

	TierID    string  `json:"tier_id"`
	TierName  string  `json:"tier_name"`
	TierPrice float64 `json:"tier_price"`
	TierIndex int     `json:"tier_index"`

	Estado string `gorm:"not null;default:'aprobada'" json:"estado"`
	QR     string `gorm:"not null" json:"qr"`
	Usado  bool   `gorm:"not null;default:false" json:"usado"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Ticket) TableName() string {
	return "entradas"
}
