package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentIDs []string

func (ids PaymentIDs) Value() (driver.Value, error) {
	return json.Marshal(ids)
}

func (ids *PaymentIDs) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, ids)
	case string:
		return json.Unmarshal([]byte(v), ids)
	case nil:
		*ids = nil
		return nil
	}
	return fmt.Errorf("unsupported payment ids column type %T", value)
}

// Settlement (liquidación) is an immutable payout rollup over a set of
// approved payments for one event. Rows are created once and never updated.
type Settlement struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	EventID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"event_id"`
	Total      float64    `gorm:"not null" json:"total"`
	Base       float64    `gorm:"not null" json:"base"`
	Commission float64    `gorm:"not null" json:"commission"`
	PaymentIDs PaymentIDs `gorm:"type:jsonb" json:"payment_ids"`
	CreatedBy  uuid.UUID  `gorm:"type:uuid" json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (Settlement) TableName() string {
	return "liquidaciones"
}

func (settlement *Settlement) BeforeCreate(tx *gorm.DB) (err error) {
	if settlement.ID == uuid.Nil {
		settlement.ID = uuid.New()
	}
	return
}
