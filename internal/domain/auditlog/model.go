package auditlog

import (
	"strings"
	"time"

	"health-data-access/internal/ports/directory"
)

// Action clasifica el intento de acceso registrado.
type Action string

const (
	ActionView   Action = "VIEW"
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionShare  Action = "SHARE"
)

func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionView:
		return ActionView, true
	case ActionCreate:
		return ActionCreate, true
	case ActionUpdate:
		return ActionUpdate, true
	case ActionShare:
		return ActionShare, true
	default:
		return "", false
	}
}

// IsWrite indica si la acción implica mutación de datos del paciente.
func (a Action) IsWrite() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionShare:
		return true
	default:
		return false
	}
}

// AccessReason es la razón bajo la cual se resolvió el acceso.
type AccessReason string

const (
	ReasonSelf              AccessReason = "SELF"
	ReasonBookingAssignment AccessReason = "BOOKING_ASSIGNMENT"
	ReasonAdminAudit        AccessReason = "ADMIN_AUDIT"
	ReasonDirectAccess      AccessReason = "DIRECT_ACCESS"
)

// Actor identifica a quien intentó el acceso.
type Actor struct {
	UserID   string
	UserType directory.Role
	Name     string
}

// Entry es un registro de auditoría. Append-only: este subsistema
// nunca lo actualiza ni lo borra después de escrito.
type Entry struct {
	ID        string
	Actor     Actor
	PatientID string

	// ResourceType se guarda como string crudo a propósito: en intentos
	// fallidos queda registrado exactamente lo que pidió el caller,
	// aunque no pertenezca al set cerrado de recursos.
	ResourceType string
	ResourceID   string
	Action       Action
	Reason       AccessReason

	// Procedencia, ambos opcionales.
	BookingID     string
	AccessTokenID string

	// Contexto del request, best-effort.
	IPAddress string
	UserAgent string
	Endpoint  string
	Method    string

	Success      bool
	ErrorMessage string // seteado sii Success == false

	// UsageRecordFailed marca un acceso otorgado cuyo registro de uso
	// no pudo persistirse, para que la discrepancia sea auditable.
	UsageRecordFailed bool

	Timestamp time.Time
}

// Filter acota las consultas de historial.
type Filter struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// StatBucket es un agregado por día / recurso / resultado.
type StatBucket struct {
	Day          string // YYYY-MM-DD (UTC)
	ResourceType string
	Success      bool
	Count        int
}
