package auditlog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

const (
	defaultQueueSize = 1024
	defaultLimit     = 50
	maxLimit         = 200

	appendTimeout = 5 * time.Second
)

// Service escribe entradas de auditoría de forma asíncrona y expone
// consultas de solo lectura para dashboards y monitoreo de seguridad.
//
// Record nunca bloquea ni falla hacia el caller: la política es
// fail-closed en autorización, fail-open en logging. Una escritura
// perdida se cuenta y se loguea, pero jamás revierte una decisión
// de acceso ya tomada.
type Service struct {
	repo Repository
	log  zerolog.Logger

	queue chan Entry
	done  chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once

	dropped atomic.Uint64
	failed  atomic.Uint64

	now func() time.Time
}

func NewService(repo Repository, log zerolog.Logger, queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	s := &Service{
		repo:  repo,
		log:   log,
		queue: make(chan Entry, queueSize),
		done:  make(chan struct{}),
		now:   time.Now,
	}

	go s.worker()
	return s
}

// Record encola una entrada sin bloquear. Si la cola está llena la
// entrada se descarta, se incrementa el contador de drops y se emite
// una alerta operacional; el caller no se entera.
func (s *Service) Record(e Entry) {
	if s.closed.Load() {
		s.dropped.Add(1)
		s.log.Error().Str("patient_id", e.PatientID).Msg("audit entry dropped: service closed")
		return
	}

	select {
	case s.queue <- e:
	default:
		s.dropped.Add(1)
		s.log.Error().
			Str("patient_id", e.PatientID).
			Str("accessor_id", e.Actor.UserID).
			Uint64("dropped_total", s.dropped.Load()).
			Msg("audit entry dropped: queue full")
	}
}

// Close deja de aceptar entradas, drena la cola y espera al worker.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.queue)
		<-s.done
	})
}

// Dropped devuelve cuántas entradas se descartaron (cola llena o cierre).
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

// Failed devuelve cuántas escrituras al repositorio fallaron.
func (s *Service) Failed() uint64 { return s.failed.Load() }

func (s *Service) worker() {
	defer close(s.done)

	// Timestamps monotónicos no-decrecientes por instancia del log.
	var last time.Time

	for e := range s.queue {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}

		ts := s.now().UTC()
		if ts.Before(last) {
			ts = last
		}
		last = ts
		e.Timestamp = ts

		// Contexto propio: la escritura no depende del request que la originó.
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		err := s.repo.Append(ctx, e)
		cancel()

		if err != nil {
			s.failed.Add(1)
			s.log.Error().
				Err(err).
				Str("entry_id", e.ID).
				Str("patient_id", e.PatientID).
				Uint64("failed_total", s.failed.Load()).
				Msg("audit append failed")
		}
	}
}

// ---- consultas (solo lectura) ----

func (s *Service) PatientHistory(ctx context.Context, patientID string, f Filter) ([]Entry, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByPatient(ctx, patientID, normalizeFilter(f))
}

func (s *Service) AccessorHistory(ctx context.Context, userID string, f Filter) ([]Entry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByAccessor(ctx, userID, normalizeFilter(f))
}

// FailedAttempts lista accesos denegados o fallidos, para monitoreo.
func (s *Service) FailedAttempts(ctx context.Context, f Filter) ([]Entry, error) {
	return s.repo.ListFailed(ctx, normalizeFilter(f))
}

// Stats agrega por día/recurso/resultado sobre una ventana de días hacia atrás.
func (s *Service) Stats(ctx context.Context, days int) ([]StatBucket, error) {
	if days <= 0 {
		days = 7
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	return s.repo.Stats(ctx, since)
}

func normalizeFilter(f Filter) Filter {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
