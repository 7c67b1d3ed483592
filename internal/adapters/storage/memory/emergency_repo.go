package memory

import (
	"context"
	"errors"
	"sync"

	"health-data-access/internal/domain/emergency"
)

type emergencyRepo struct {
	mu      sync.RWMutex
	byValue map[string]emergency.Token
}

func NewEmergencyRepo() emergency.Repository {
	return &emergencyRepo{
		byValue: make(map[string]emergency.Token),
	}
}

func (r *emergencyRepo) Create(ctx context.Context, t emergency.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Value == "" {
		return errors.New("token value required")
	}
	if _, exists := r.byValue[t.Value]; exists {
		return errors.New("token already exists")
	}
	r.byValue[t.Value] = t
	return nil
}

func (r *emergencyRepo) GetByValue(ctx context.Context, value string) (emergency.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byValue[value]
	if !ok {
		return emergency.Token{}, ErrNotFound
	}
	return t, nil
}

type summaryStore struct {
	mu        sync.RWMutex
	byPatient map[string]emergency.Summary
}

func NewSummaryStore() emergency.SummaryStore {
	return &summaryStore{
		byPatient: make(map[string]emergency.Summary),
	}
}

func (s *summaryStore) Get(ctx context.Context, patientID string) (emergency.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, ok := s.byPatient[patientID]
	if !ok {
		return emergency.Summary{}, ErrNotFound
	}
	return sum, nil
}

func (s *summaryStore) Put(ctx context.Context, sum emergency.Summary) error {
	if sum.PatientID == "" {
		return errors.New("patient id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPatient[sum.PatientID] = sum
	return nil
}
