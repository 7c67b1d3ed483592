package accesstokens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"health-data-access/internal/ports/bookings"
	"health-data-access/internal/ports/directory"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrValidation   = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

const defaultTTL = 24 * time.Hour

// Service es el registry de capability tokens: emite, valida, consume
// y revoca. Es el único dueño de las mutaciones de uso y revocación.
type Service struct {
	repo     Repository
	dir      directory.Directory
	bookings bookings.Service
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, dir directory.Directory, bks bookings.Service, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		dir:      dir,
		bookings: bks,
		log:      log,
		now:      time.Now,
	}
}

type IssueInput struct {
	GrantedTo        string
	PatientID        string
	BookingID        string
	AccessLevel      AccessLevel
	AllowedResources []ResourceType
	GrantedBy        string
	GrantReason      string

	// ExpiresAt nil => defaultTTL desde ahora.
	ExpiresAt *time.Time
	// MaxUsage nil => sin tope.
	MaxUsage *int
}

// Issue valida parámetros, aplica la frontera hospitalaria del admin
// emisor y persiste un token nuevo con usage_count=0, is_active=true.
func (s *Service) Issue(ctx context.Context, in IssueInput) (AccessToken, error) {
	grantedTo := strings.TrimSpace(in.GrantedTo)
	patientID := strings.TrimSpace(in.PatientID)
	grantedBy := strings.TrimSpace(in.GrantedBy)

	if grantedTo == "" || patientID == "" || grantedBy == "" {
		return AccessToken{}, fmt.Errorf("%w: grantedTo, patient and grantedBy are required", ErrValidation)
	}

	resources, err := normalizeResources(in.AllowedResources)
	if err != nil {
		return AccessToken{}, err
	}

	level := in.AccessLevel
	if level == "" {
		level = ReadOnly
	}
	if level != ReadOnly && level != ReadWrite {
		return AccessToken{}, fmt.Errorf("%w: unknown access level %q", ErrValidation, in.AccessLevel)
	}

	now := s.now()

	expiresAt := now.Add(defaultTTL)
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			return AccessToken{}, fmt.Errorf("%w: expiresAt must be a future date", ErrValidation)
		}
		expiresAt = *in.ExpiresAt
	}

	if in.MaxUsage != nil && *in.MaxUsage <= 0 {
		return AccessToken{}, fmt.Errorf("%w: maxUsage must be a positive integer", ErrValidation)
	}

	granter, err := s.dir.Lookup(ctx, grantedBy)
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: granting user", ErrNotFound)
	}
	if granter.Role != directory.RoleAdmin {
		return AccessToken{}, fmt.Errorf("%w: only admins can issue access tokens", ErrUnauthorized)
	}

	grantee, err := s.dir.Lookup(ctx, grantedTo)
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: clinician", ErrNotFound)
	}
	if !grantee.Role.IsClinician() {
		return AccessToken{}, fmt.Errorf("%w: tokens can only be granted to clinicians", ErrValidation)
	}

	// Frontera hospitalaria: aplica solo a admins con afiliación.
	if err := s.enforceHospitalBoundary(ctx, granter, grantee, patientID); err != nil {
		return AccessToken{}, err
	}

	t := AccessToken{
		ID:               uuid.NewString(),
		GrantedTo:        grantee.ID,
		GrantedToRole:    grantee.Role,
		PatientID:        patientID,
		BookingID:        strings.TrimSpace(in.BookingID),
		AccessLevel:      level,
		AllowedResources: resources,
		GrantedBy:        granter.ID,
		GrantReason:      strings.TrimSpace(in.GrantReason),
		IssuedAt:         now,
		ExpiresAt:        expiresAt,
		MaxUsage:         in.MaxUsage,
		UsageCount:       0,
		IsActive:         true,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return AccessToken{}, err
	}

	s.log.Info().
		Str("token_id", t.ID).
		Str("granted_to", t.GrantedTo).
		Str("patient_id", t.PatientID).
		Str("granted_by", t.GrantedBy).
		Str("access_level", string(t.AccessLevel)).
		Time("expires_at", t.ExpiresAt).
		Msg("access token issued")

	return t, nil
}

// Validate devuelve el token solo si es usable ahora mismo. Cualquier
// otro estado (revocado, expirado, agotado, inexistente) responde igual
// hacia afuera; el motivo concreto queda solo en logs internos.
func (s *Service) Validate(ctx context.Context, id string) (AccessToken, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return AccessToken{}, false
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.log.Debug().Str("token_id", id).Msg("token validation failed: not found")
		return AccessToken{}, false
	}

	now := s.now()
	if !t.Usable(now) {
		s.log.Debug().
			Str("token_id", id).
			Bool("active", t.IsActive).
			Time("expires_at", t.ExpiresAt).
			Int("usage_count", t.UsageCount).
			Msg("token validation failed: not usable")
		return AccessToken{}, false
	}

	return t, true
}

// HasAccess busca el token usable vigente para el par clínico-paciente.
func (s *Service) HasAccess(ctx context.Context, clinicianID, patientID string) (AccessToken, bool) {
	clinicianID = strings.TrimSpace(clinicianID)
	patientID = strings.TrimSpace(patientID)
	if clinicianID == "" || patientID == "" {
		return AccessToken{}, false
	}

	t, err := s.repo.FindUsable(ctx, clinicianID, patientID, s.now())
	if err != nil {
		return AccessToken{}, false
	}
	return t, true
}

// Consume registra un uso del token. Si el registro falla, el acceso ya
// otorgado NO se revierte: se loguea y se devuelve usageRecordFailed=true
// para que quede marcado en la entrada de auditoría.
func (s *Service) Consume(ctx context.Context, t AccessToken, ip string) (AccessToken, bool) {
	updated, err := s.repo.Consume(ctx, t.ID, s.now(), strings.TrimSpace(ip))
	if err != nil {
		s.log.Error().
			Err(err).
			Str("token_id", t.ID).
			Str("patient_id", t.PatientID).
			Msg("usage record failed")
		return t, true
	}
	return updated, false
}

// Revoke marca el token como revocado y lo desactiva. Revocar dos veces
// es ErrConflict: suele indicar un bug del cliente que vale surfacear.
// Puede revocar el paciente dueño del token o un admin.
func (s *Service) Revoke(ctx context.Context, id, revokedBy, reason string) (AccessToken, error) {
	id = strings.TrimSpace(id)
	revokedBy = strings.TrimSpace(revokedBy)
	if id == "" || revokedBy == "" {
		return AccessToken{}, fmt.Errorf("%w: token id and revoker are required", ErrValidation)
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: token", ErrNotFound)
	}

	if t.RevokedAt != nil {
		return AccessToken{}, fmt.Errorf("%w: token is already revoked", ErrConflict)
	}

	var revokerType RevokerType
	switch {
	case revokedBy == t.PatientID:
		revokerType = RevokedByPatient
	default:
		u, err := s.dir.Lookup(ctx, revokedBy)
		if err != nil || u.Role != directory.RoleAdmin {
			return AccessToken{}, fmt.Errorf("%w: only the patient or an admin can revoke", ErrUnauthorized)
		}
		revokerType = RevokedByAdmin
	}

	now := s.now()
	t.IsActive = false
	t.RevokedAt = &now
	t.RevokedBy = revokedBy
	t.RevokedByType = revokerType
	t.RevocationReason = strings.TrimSpace(reason)

	if err := s.repo.Update(ctx, t); err != nil {
		return AccessToken{}, err
	}

	s.log.Info().
		Str("token_id", t.ID).
		Str("revoked_by", revokedBy).
		Str("revoker_type", string(revokerType)).
		Msg("access token revoked")

	return t, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]AccessToken, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patient id required", ErrValidation)
	}
	return s.repo.ListByPatient(ctx, patientID)
}

func normalizeResources(in []ResourceType) ([]ResourceType, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: allowedResources must not be empty", ErrValidation)
	}

	seen := map[ResourceType]struct{}{}
	out := make([]ResourceType, 0, len(in))

	for _, raw := range in {
		rt, ok := ParseResourceType(string(raw))
		if !ok {
			return nil, fmt.Errorf("%w: unknown resource type %q", ErrValidation, raw)
		}
		if _, dup := seen[rt]; dup {
			continue
		}
		seen[rt] = struct{}{}
		out = append(out, rt)
	}

	return out, nil
}
