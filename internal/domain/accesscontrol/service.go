package accesscontrol

import (
	"context"
	"fmt"
	"strings"

	"health-data-access/internal/domain/accesstokens"
	"health-data-access/internal/domain/auditlog"
	"health-data-access/internal/platform/ratelimit"
	"health-data-access/internal/ports/directory"

	"github.com/rs/zerolog"
)

// Service resuelve la decisión de autorización por request combinando
// acceso propio (paciente), auditoría de admin y acceso de clínicos vía
// capability token. Cada llamada a Authorize produce exactamente una
// entrada de auditoría, se conceda o no.
type Service struct {
	tokens  *accesstokens.Service
	audit   *auditlog.Service
	limiter ratelimit.Limiter
	log     zerolog.Logger
}

func NewService(tokens *accesstokens.Service, audit *auditlog.Service, limiter ratelimit.Limiter, log zerolog.Logger) *Service {
	return &Service{
		tokens:  tokens,
		audit:   audit,
		limiter: limiter,
		log:     log,
	}
}

// Authorize evalúa la tabla de decisión en orden, primera coincidencia gana:
//
//  1. paciente sobre sí mismo => ALLOW (READ_WRITE, SELF); paciente sobre
//     otro paciente => DENY siempre;
//  2. admin => ALLOW pero forzando READ_ONLY (ADMIN_AUDIT): un admin
//     audita, nunca muta por esta vía;
//  3. clínico => requiere token usable que cubra el recurso y el nivel
//     de escritura; en ALLOW se consume el token antes de responder;
//  4. cualquier otra cosa => DENY.
//
// El switch sobre el rol es exhaustivo a propósito: agregar un rol nuevo
// obliga a decidir su rama acá.
func (s *Service) Authorize(ctx context.Context, req Request) (Decision, error) {
	req.PatientID = strings.TrimSpace(req.PatientID)
	if req.Accessor.ID == "" || req.PatientID == "" || req.Action == "" {
		return s.deny(req, "malformed access request")
	}

	switch req.Accessor.Role {
	case directory.RolePatient:
		if req.Accessor.ID != req.PatientID {
			return s.deny(req, "patients can only access their own records")
		}
		return s.allow(req, Decision{
			Allowed: true,
			Level:   accesstokens.ReadWrite,
			Reason:  auditlog.ReasonSelf,
		})

	case directory.RoleAdmin:
		// READ_ONLY forzado sin importar lo que pida el caller.
		return s.allow(req, Decision{
			Allowed: true,
			Level:   accesstokens.ReadOnly,
			Reason:  auditlog.ReasonAdminAudit,
		})

	case directory.RoleDoctor, directory.RoleNurse, directory.RolePhysiotherapist:
		return s.authorizeClinician(ctx, req)

	default:
		return s.deny(req, fmt.Sprintf("unknown accessor role %q", req.Accessor.Role))
	}
}

func (s *Service) authorizeClinician(ctx context.Context, req Request) (Decision, error) {
	// Defensa contra un token válido pero abusado o comprometido:
	// tope por par clínico-paciente en ventana deslizante.
	if s.limiter != nil && !s.limiter.Allow(req.Accessor.ID+":"+req.PatientID) {
		return s.deny(req, "rate limit exceeded for clinician-patient pair")
	}

	token, ok := s.tokens.HasAccess(ctx, req.Accessor.ID, req.PatientID)
	if !ok {
		return s.deny(req, "no valid access token")
	}

	resource, ok := accesstokens.ParseResourceType(req.Resource)
	if !ok {
		return s.denyWithToken(req, token.ID, fmt.Sprintf("unknown resource type %q", req.Resource))
	}
	if !token.Covers(resource) {
		return s.denyWithToken(req, token.ID, fmt.Sprintf("access does not include %s", resource))
	}

	if req.Action.IsWrite() && !token.CanWrite() {
		return s.denyWithToken(req, token.ID, "token grants read-only access")
	}

	// Consumir antes de responder: si el registro de uso falla, el acceso
	// de ESTE request se mantiene, pero queda marcado en auditoría.
	consumed, usageRecordFailed := s.tokens.Consume(ctx, token, req.IP)

	reason := auditlog.ReasonDirectAccess
	if consumed.BookingID != "" {
		reason = auditlog.ReasonBookingAssignment
	}

	return s.allow(req, Decision{
		Allowed:           true,
		Level:             consumed.AccessLevel,
		Reason:            reason,
		TokenID:           consumed.ID,
		BookingID:         consumed.BookingID,
		UsageRecordFailed: usageRecordFailed,
	})
}

func (s *Service) allow(req Request, d Decision) (Decision, error) {
	s.record(req, d, "")
	return d, nil
}

func (s *Service) deny(req Request, internalReason string) (Decision, error) {
	return s.denyWithToken(req, "", internalReason)
}

func (s *Service) denyWithToken(req Request, tokenID, internalReason string) (Decision, error) {
	s.log.Warn().
		Str("event", "security").
		Str("accessor_id", req.Accessor.ID).
		Str("accessor_role", string(req.Accessor.Role)).
		Str("patient_id", req.PatientID).
		Str("resource", req.Resource).
		Str("reason", internalReason).
		Msg("access denied")

	s.record(req, Decision{TokenID: tokenID}, internalReason)

	// Hacia afuera la denegación es siempre la misma.
	return Decision{}, ErrDenied
}

// record arma y encola la única entrada de auditoría del intento.
// Es fire-and-forget: el resultado de la autorización ya está decidido.
func (s *Service) record(req Request, d Decision, denialReason string) {
	s.audit.Record(auditlog.Entry{
		Actor: auditlog.Actor{
			UserID:   req.Accessor.ID,
			UserType: req.Accessor.Role,
			Name:     req.Accessor.Name,
		},
		PatientID:         req.PatientID,
		ResourceType:      strings.TrimSpace(req.Resource),
		ResourceID:        strings.TrimSpace(req.ResourceID),
		Action:            req.Action,
		Reason:            d.Reason,
		BookingID:         d.BookingID,
		AccessTokenID:     d.TokenID,
		IPAddress:         req.IP,
		UserAgent:         req.UserAgent,
		Endpoint:          req.Endpoint,
		Method:            req.Method,
		Success:           d.Allowed,
		ErrorMessage:      denialReason,
		UsageRecordFailed: d.UsageRecordFailed,
	})
}
