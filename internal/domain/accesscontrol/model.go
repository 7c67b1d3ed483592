package accesscontrol

import (
	"errors"

	"health-data-access/internal/domain/accesstokens"
	"health-data-access/internal/domain/auditlog"
	"health-data-access/internal/ports/directory"
)

// ErrDenied es la única denegación visible hacia afuera. El motivo
// concreto (expirado vs revocado vs recurso no cubierto) queda solo en
// auditoría y logs internos, para no darle señal a quien sondea tokens.
var ErrDenied = errors.New("you do not have access")

// Request es un intento de acceso ya autenticado por el transporte.
type Request struct {
	Accessor  directory.User
	PatientID string

	// Resource llega crudo del caller; se valida contra el set cerrado
	// recién en la rama de clínicos, pero se audita siempre tal cual vino.
	Resource   string
	ResourceID string
	Action     auditlog.Action

	// Contexto best-effort para la entrada de auditoría.
	IP        string
	UserAgent string
	Endpoint  string
	Method    string
}

// Decision es el resultado de una autorización concedida.
type Decision struct {
	Allowed bool
	Level   accesstokens.AccessLevel
	Reason  auditlog.AccessReason

	// TokenID y BookingID solo en accesos vía token (procedencia).
	TokenID   string
	BookingID string

	// UsageRecordFailed indica que el acceso se otorgó pero el registro
	// de uso del token no pudo persistirse.
	UsageRecordFailed bool
}
