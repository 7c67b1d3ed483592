package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"health-data-access/internal/domain/accesstokens"
)

type tokensRepo struct {
	mu   sync.RWMutex
	byID map[string]accesstokens.AccessToken
}

func NewTokensRepo() accesstokens.Repository {
	return &tokensRepo{
		byID: make(map[string]accesstokens.AccessToken),
	}
}

func (r *tokensRepo) Create(ctx context.Context, t accesstokens.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" {
		return errors.New("token id required")
	}
	if _, exists := r.byID[t.ID]; exists {
		return errors.New("token already exists")
	}
	r.byID[t.ID] = t
	return nil
}

func (r *tokensRepo) GetByID(ctx context.Context, id string) (accesstokens.AccessToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return accesstokens.AccessToken{}, ErrNotFound
	}
	return t, nil
}

func (r *tokensRepo) ListByPatient(ctx context.Context, patientID string) ([]accesstokens.AccessToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]accesstokens.AccessToken, 0)
	for _, t := range r.byID {
		if t.PatientID == patientID {
			out = append(out, t)
		}
	}
	return out, nil
}

// FindUsable devuelve el usable más reciente por IssuedAt si hubiera
// más de uno para el par (no debería, pero data sucia existe).
func (r *tokensRepo) FindUsable(ctx context.Context, clinicianID, patientID string, now time.Time) (accesstokens.AccessToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var winner accesstokens.AccessToken
	has := false

	for _, t := range r.byID {
		if t.GrantedTo != clinicianID || t.PatientID != patientID {
			continue
		}
		if !t.Usable(now) {
			continue
		}
		if !has || t.IssuedAt.After(winner.IssuedAt) {
			winner = t
			has = true
		}
	}

	if !has {
		return accesstokens.AccessToken{}, ErrNotFound
	}
	return winner, nil
}

// Consume es la única actualización condicional del sistema: re-chequea
// usabilidad e incrementa bajo el mismo lock, y si el incremento alcanza
// max_usage desactiva el token en la misma operación. Así N+1 requests
// "simultáneos" sobre max_usage=N nunca consumen de más.
func (r *tokensRepo) Consume(ctx context.Context, id string, now time.Time, ip string) (accesstokens.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return accesstokens.AccessToken{}, ErrNotFound
	}
	if !t.Usable(now) {
		return accesstokens.AccessToken{}, ErrNotUsable
	}

	t.UsageCount++
	t.LastUsedAt = &now
	t.LastUsedIP = ip
	if t.MaxUsage != nil && t.UsageCount >= *t.MaxUsage {
		t.IsActive = false
	}

	r.byID[id] = t
	return t, nil
}

func (r *tokensRepo) Update(ctx context.Context, t accesstokens.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" {
		return errors.New("token id required")
	}
	if _, exists := r.byID[t.ID]; !exists {
		return ErrNotFound
	}
	r.byID[t.ID] = t
	return nil
}
