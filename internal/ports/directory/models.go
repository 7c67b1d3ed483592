package directory

import "strings"

// Role es el conjunto cerrado de roles del sistema.
// El validador de acceso hace match exhaustivo sobre este tipo:
// agregar un rol obliga a revisar cada switch.
type Role string

const (
	RolePatient         Role = "patient"
	RoleDoctor          Role = "doctor"
	RoleNurse           Role = "nurse"
	RolePhysiotherapist Role = "physiotherapist"
	RoleAdmin           Role = "admin"
)

// ParseRole valida contra el set cerrado.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient, true
	case RoleDoctor:
		return RoleDoctor, true
	case RoleNurse:
		return RoleNurse, true
	case RolePhysiotherapist:
		return RolePhysiotherapist, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// IsClinician indica si el rol puede recibir tokens de acceso.
func (r Role) IsClinician() bool {
	switch r {
	case RoleDoctor, RoleNurse, RolePhysiotherapist:
		return true
	default:
		return false
	}
}

// User es la identidad resuelta por el directorio.
type User struct {
	ID   string
	Name string
	Role Role

	// HospitalID vacío significa sin afiliación.
	// Para admins eso implica alcance de plataforma (sin frontera hospitalaria).
	HospitalID string
}
