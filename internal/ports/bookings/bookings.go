package bookings

import "context"

// Service es el servicio de bookings (colaborador externo).
// Solo lo consume el chequeo de frontera hospitalaria: dado un paciente
// y un conjunto de providers, responde si existe al menos un booking.
type Service interface {
	HasAnyBooking(ctx context.Context, patientID string, providerIDs []string) (bool, error)
}
