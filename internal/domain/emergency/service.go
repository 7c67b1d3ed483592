package emergency

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

const (
	DefaultTTLHours = 24
	tokenBytes      = 32
)

// Service emite y resuelve tokens de acceso de emergencia.
type Service struct {
	repo       Repository
	summaries  SummaryStore
	log        zerolog.Logger
	defaultTTL int // horas
	now        func() time.Time
}

func NewService(repo Repository, summaries SummaryStore, log zerolog.Logger, defaultTTLHours int) *Service {
	if defaultTTLHours <= 0 {
		defaultTTLHours = DefaultTTLHours
	}
	return &Service{
		repo:       repo,
		summaries:  summaries,
		log:        log,
		defaultTTL: defaultTTLHours,
		now:        time.Now,
	}
}

// Generate crea un token nuevo con el TTL pedido (default configurable,
// 24h de fábrica). No invalida tokens previos: pueden convivir varios
// vigentes para el mismo paciente.
func (s *Service) Generate(ctx context.Context, patientID string, expiryHours int) (Token, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return Token{}, ErrInvalidInput
	}
	if expiryHours <= 0 {
		expiryHours = s.defaultTTL
	}

	value, err := newTokenValue()
	if err != nil {
		return Token{}, fmt.Errorf("generate token value: %w", err)
	}

	now := s.now()
	t := Token{
		ID:        uuid.NewString(),
		PatientID: patientID,
		Value:     value,
		ExpiresAt: now.Add(time.Duration(expiryHours) * time.Hour),
		CreatedAt: now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return Token{}, err
	}

	s.log.Info().
		Str("patient_id", patientID).
		Time("expires_at", t.ExpiresAt).
		Msg("emergency token generated")

	return t, nil
}

// Resolve busca por valor crudo y devuelve el resumen precomputado.
// "Nunca existió" y "expiró" responden exactamente igual: not found.
func (s *Service) Resolve(ctx context.Context, raw string) (Summary, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Summary{}, false
	}

	t, err := s.repo.GetByValue(ctx, raw)
	if err != nil {
		return Summary{}, false
	}
	if !s.now().Before(t.ExpiresAt) {
		return Summary{}, false
	}

	sum, err := s.summaries.Get(ctx, t.PatientID)
	if err != nil {
		// Token vigente pero sin resumen cargado: hacia afuera es not found.
		s.log.Warn().
			Str("patient_id", t.PatientID).
			Msg("emergency token resolved but no summary available")
		return Summary{}, false
	}

	s.log.Info().
		Str("patient_id", t.PatientID).
		Msg("emergency summary accessed")

	return sum, true
}

// PutSummary la usa el colaborador que mantiene el resumen precomputado.
func (s *Service) PutSummary(ctx context.Context, sum Summary) error {
	sum.PatientID = strings.TrimSpace(sum.PatientID)
	if sum.PatientID == "" {
		return ErrInvalidInput
	}
	now := s.now()
	sum.UpdatedAt = &now
	return s.summaries.Put(ctx, sum)
}

func newTokenValue() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
