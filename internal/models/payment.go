package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Estado is the lifecycle state of a payment. All transitions are one-way
// from pendiente/pendiente_mp; aprobado is the only state that triggers
// ticket issuance.
type Estado string

const (
	EstadoPendiente     Estado = "pendiente"
	EstadoPendienteMP   Estado = "pendiente_mp"
	EstadoAprobado      Estado = "aprobado"
	EstadoRechazado     Estado = "rechazado"
	EstadoMontoInvalido Estado = "monto_invalido"
	EstadoReembolsado   Estado = "reembolsado"
	EstadoReversado     Estado = "reversado"
)

// IssuanceFlag guards ticket issuance idempotency. "procesando" acts as a
// lock: a concurrent issuance run observing it must abort without writing.
type IssuanceFlag string

const (
	IssuanceNotStarted IssuanceFlag = "false"
	IssuanceInProgress IssuanceFlag = "procesando"
	IssuanceCompleted  IssuanceFlag = "true"
)

// LineItem is one requested unit group in a purchase. TierIndex -1 marks a
// venue product rather than an event tier.
type LineItem struct {
	Name      string  `json:"nombre"`
	Quantity  int     `json:"cantidad"`
	UnitPrice float64 `json:"precio"`
	TierIndex int     `json:"tierIndex"`
}

type LineItems []LineItem

func (li LineItems) Value() (driver.Value, error) {
	return json.Marshal(li)
}

func (li *LineItems) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, li)
	case string:
		return json.Unmarshal([]byte(v), li)
	case nil:
		*li = nil
		return nil
	}
	return fmt.Errorf("unsupported line items column type %T", value)
}

// Payment is one purchase attempt. The ID is caller-assigned and travels to
// Mercado Pago as the external reference, which is how webhook notifications
// find their way back to this row.
type Payment struct {
	ID      string    `gorm:"primary_key" json:"id"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	EventID uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	Items   LineItems `gorm:"type:jsonb" json:"items"`
	Total   float64   `gorm:"not null" json:"total"`
	Estado  Estado    `gorm:"not null;default:'pendiente';index" json:"estado"`

	// Mirror of the last snapshot seen from the gateway.
	MPPaymentID    string `json:"mp_payment_id"`
	MPStatus       string `json:"mp_status"`
	MPStatusDetail string `json:"mp_status_detail"`

	EntradasPagasGeneradas IssuanceFlag `gorm:"not null;default:'false'" json:"entradas_pagas_generadas"`
	EntradasGeneradasAt    *time.Time   `json:"entradas_generadas_at,omitempty"`

	SettlementID *uuid.UUID `gorm:"type:uuid;index" json:"settlement_id,omitempty"`

	ApprovedAt *time.Time     `json:"approved_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Payment) TableName() string {
	return "pagos"
}

// TotalQuantity is the number of tickets an approved payment must produce.
func (p *Payment) TotalQuantity() int {
	total := 0
	for _, item := range p.Items {
		total += item.Quantity
	}
	return total
}
