package accesstokens

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, t AccessToken) error
	GetByID(ctx context.Context, id string) (AccessToken, error)
	ListByPatient(ctx context.Context, patientID string) ([]AccessToken, error)

	// FindUsable devuelve el token usable más reciente para el par
	// clínico-paciente, o error not-found.
	FindUsable(ctx context.Context, clinicianID, patientID string, now time.Time) (AccessToken, error)

	// Consume incrementa usage_count y setea last_used_* como UNA sola
	// actualización condicional: si el incremento alcanza max_usage,
	// is_active pasa a false en la misma operación. Nunca read-modify-write
	// en dos pasos; si el token ya no es usable, la actualización rechaza.
	Consume(ctx context.Context, id string, now time.Time, ip string) (AccessToken, error)

	// Update persiste campos de revocación. Solo el registry lo invoca.
	Update(ctx context.Context, t AccessToken) error
}
