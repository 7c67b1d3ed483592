package accesstokens

import (
	"context"
	"fmt"

	"health-data-access/internal/ports/directory"
)

// enforceHospitalBoundary impide que un admin con afiliación hospitalaria
// otorgue acceso fuera de su hospital. Dos chequeos, ambos obligatorios:
//
//  1. el clínico debe pertenecer al mismo hospital que el admin;
//  2. el paciente debe tener al menos un booking con algún provider
//     de ese hospital.
//
// Un admin de plataforma (sin hospital) saltea el chequeo completo:
// es un tier de privilegio intencional.
func (s *Service) enforceHospitalBoundary(ctx context.Context, granter, grantee directory.User, patientID string) error {
	if granter.HospitalID == "" {
		return nil
	}

	if grantee.HospitalID != granter.HospitalID {
		s.log.Warn().
			Str("event", "security").
			Str("admin_id", granter.ID).
			Str("admin_hospital", granter.HospitalID).
			Str("clinician_id", grantee.ID).
			Str("clinician_hospital", grantee.HospitalID).
			Msg("cross-hospital grant denied")
		return fmt.Errorf("%w: cannot grant access to a clinician outside your hospital", ErrUnauthorized)
	}

	providers, err := s.dir.ListProviders(ctx, granter.HospitalID)
	if err != nil {
		// Ante la duda, denegar: la autorización falla cerrada.
		return fmt.Errorf("%w: could not verify hospital providers", ErrUnauthorized)
	}

	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.ID)
	}

	has, err := s.bookings.HasAnyBooking(ctx, patientID, ids)
	if err != nil {
		return fmt.Errorf("%w: could not verify patient bookings", ErrUnauthorized)
	}
	if !has {
		s.log.Warn().
			Str("event", "security").
			Str("admin_id", granter.ID).
			Str("admin_hospital", granter.HospitalID).
			Str("patient_id", patientID).
			Msg("grant denied: patient has no bookings with hospital")
		return fmt.Errorf("%w: patient has no bookings with your hospital", ErrUnauthorized)
	}

	return nil
}
