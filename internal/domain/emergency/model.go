package emergency

import "time"

// Token es un token anónimo de corta vida, pensado para un QR que un
// primer respondiente escanea. Expirado se trata como inexistente.
type Token struct {
	ID        string
	PatientID string
	Value     string // string aleatorio no adivinable; se busca por valor crudo
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Summary es el dataset mínimo de emergencia, precomputado por un
// colaborador externo. Este módulo nunca busca el historial vivo.
type Summary struct {
	PatientID        string     `json:"patient_id"`
	BloodType        string     `json:"blood_type,omitempty"`
	Allergies        []string   `json:"allergies,omitempty"`
	Medications      []string   `json:"medications,omitempty"`
	Conditions       []string   `json:"conditions,omitempty"`
	EmergencyContact string     `json:"emergency_contact,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}
