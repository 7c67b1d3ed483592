package memory

import (
	"context"
	"sync"
)

// Service es una tabla estática paciente->providers para dev y tests.
type Service struct {
	mu        sync.RWMutex
	byPatient map[string]map[string]bool
}

func NewService() *Service {
	return &Service{byPatient: make(map[string]map[string]bool)}
}

func (s *Service) AddBooking(patientID, providerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byPatient[patientID] == nil {
		s.byPatient[patientID] = make(map[string]bool)
	}
	s.byPatient[patientID][providerID] = true
}

func (s *Service) HasAnyBooking(ctx context.Context, patientID string, providerIDs []string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	providers := s.byPatient[patientID]
	if len(providers) == 0 {
		return false, nil
	}
	for _, id := range providerIDs {
		if providers[id] {
			return true, nil
		}
	}
	return false, nil
}
