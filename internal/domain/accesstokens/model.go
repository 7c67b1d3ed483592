package accesstokens

import (
	"strings"
	"time"

	"health-data-access/internal/ports/directory"
)

// AccessLevel define qué puede hacer el portador del token.
type AccessLevel string

const (
	ReadOnly  AccessLevel = "READ_ONLY"
	ReadWrite AccessLevel = "READ_WRITE"
)

func ParseAccessLevel(s string) (AccessLevel, bool) {
	switch AccessLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case ReadOnly:
		return ReadOnly, true
	case ReadWrite:
		return ReadWrite, true
	default:
		return "", false
	}
}

// ResourceType es el set cerrado de categorías de datos de salud.
type ResourceType string

const (
	ResourceHealthRecord     ResourceType = "HEALTH_RECORD"
	ResourceHealthMetric     ResourceType = "HEALTH_METRIC"
	ResourceDoctorNote       ResourceType = "DOCTOR_NOTE"
	ResourceEmergencySummary ResourceType = "EMERGENCY_SUMMARY"

	// ResourceFullHistory es el wildcard: satisface cualquier chequeo de recurso.
	ResourceFullHistory ResourceType = "FULL_HISTORY"
)

func ParseResourceType(s string) (ResourceType, bool) {
	switch ResourceType(strings.ToUpper(strings.TrimSpace(s))) {
	case ResourceHealthRecord:
		return ResourceHealthRecord, true
	case ResourceHealthMetric:
		return ResourceHealthMetric, true
	case ResourceDoctorNote:
		return ResourceDoctorNote, true
	case ResourceEmergencySummary:
		return ResourceEmergencySummary, true
	case ResourceFullHistory:
		return ResourceFullHistory, true
	default:
		return "", false
	}
}

// RevokerType indica quién revocó el token.
type RevokerType string

const (
	RevokedByPatient RevokerType = "PATIENT"
	RevokedByAdmin   RevokerType = "ADMIN"
)

// AccessToken es un capability token: autoriza a un clínico concreto a
// leer (o escribir) datos de un paciente concreto, acotado por tiempo,
// recursos y cantidad de usos.
//
// Solo el registry muta usage/revocación; nadie más escribe sobre un token.
type AccessToken struct {
	ID string

	GrantedTo     string // clínico
	GrantedToRole directory.Role
	PatientID     string
	BookingID     string // procedencia opcional: por qué se otorgó

	AccessLevel      AccessLevel
	AllowedResources []ResourceType // nunca vacío

	GrantedBy   string // admin que emite
	GrantReason string

	IssuedAt  time.Time
	ExpiresAt time.Time

	// MaxUsage nil => sin tope de usos.
	MaxUsage   *int
	UsageCount int
	LastUsedAt *time.Time
	LastUsedIP string

	// IsActive == false es terminal: ninguna transición lo reactiva.
	IsActive bool

	RevokedAt        *time.Time
	RevokedBy        string
	RevokedByType    RevokerType
	RevocationReason string
}

// Usable es el predicado único de validez:
// activo, no expirado y con usos restantes.
func (t AccessToken) Usable(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	if !now.Before(t.ExpiresAt) {
		return false
	}
	if t.MaxUsage != nil && t.UsageCount >= *t.MaxUsage {
		return false
	}
	return true
}

// Covers indica si el token alcanza al recurso pedido.
func (t AccessToken) Covers(rt ResourceType) bool {
	for _, r := range t.AllowedResources {
		if r == rt || r == ResourceFullHistory {
			return true
		}
	}
	return false
}

func (t AccessToken) CanWrite() bool {
	return t.AccessLevel == ReadWrite
}
