package services

import "github.com/franmendez/ticketera/internal/models"

// detailToEstado maps exact status_detail codes that override the top-level
// status. Consulted first: a partial refund or chargeback detail arrives on
// payments whose status may still read approved.
var detailToEstado = map[string]models.Estado{
	"partially_refunded":    models.EstadoReembolsado,
	"chargeback":            models.EstadoReversado,
	"in_process_chargeback": models.EstadoReversado,
	"chargeback_reversal":   models.EstadoReversado,
}

// statusToEstado maps exact gateway statuses to local payment states.
var statusToEstado = map[string]models.Estado{
	"charged_back": models.EstadoReversado,
	"refunded":     models.EstadoReembolsado,
	"rejected":     models.EstadoRechazado,
	"cancelled":    models.EstadoRechazado,
	"approved":     models.EstadoAprobado,
	"authorized":   models.EstadoPendienteMP,
	"in_process":   models.EstadoPendienteMP,
	"in_mediation": models.EstadoPendienteMP,
	"pending":      models.EstadoPendienteMP,
}

// MapGatewayStatus resolves a gateway status/detail pair to a local estado.
// Detail codes take precedence over status; unrecognized combinations fall
// back to pendiente_mp so an evolving provider vocabulary can never
// misclassify a payment as approved or terminal.
func MapGatewayStatus(status, statusDetail string) models.Estado {
	if estado, ok := detailToEstado[statusDetail]; ok {
		return estado
	}
	if estado, ok := statusToEstado[status]; ok {
		return estado
	}
	return models.EstadoPendienteMP
}
