package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"health-data-access/internal/domain/auditlog"
)

// auditRepo es append-only: no expone Update ni Delete a propósito.
type auditRepo struct {
	mu      sync.RWMutex
	entries []auditlog.Entry
}

func NewAuditLogRepo() auditlog.Repository {
	return &auditRepo{
		entries: make([]auditlog.Entry, 0),
	}
}

func (r *auditRepo) Append(ctx context.Context, e auditlog.Entry) error {
	if e.ID == "" {
		return errors.New("entry id required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *auditRepo) ListByPatient(ctx context.Context, patientID string, f auditlog.Filter) ([]auditlog.Entry, error) {
	return r.list(func(e auditlog.Entry) bool { return e.PatientID == patientID }, f)
}

func (r *auditRepo) ListByAccessor(ctx context.Context, userID string, f auditlog.Filter) ([]auditlog.Entry, error) {
	return r.list(func(e auditlog.Entry) bool { return e.Actor.UserID == userID }, f)
}

func (r *auditRepo) ListFailed(ctx context.Context, f auditlog.Filter) ([]auditlog.Entry, error) {
	return r.list(func(e auditlog.Entry) bool { return !e.Success }, f)
}

func (r *auditRepo) Stats(ctx context.Context, since time.Time) ([]auditlog.StatBucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type key struct {
		day      string
		resource string
		success  bool
	}

	counts := map[key]int{}
	for _, e := range r.entries {
		if e.Timestamp.Before(since) {
			continue
		}
		k := key{
			day:      e.Timestamp.UTC().Format("2006-01-02"),
			resource: e.ResourceType,
			success:  e.Success,
		}
		counts[k]++
	}

	out := make([]auditlog.StatBucket, 0, len(counts))
	for k, n := range counts {
		out = append(out, auditlog.StatBucket{
			Day:          k.day,
			ResourceType: k.resource,
			Success:      k.success,
			Count:        n,
		})
	}

	// Orden estable para respuestas y tests.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		if out[i].ResourceType != out[j].ResourceType {
			return out[i].ResourceType < out[j].ResourceType
		}
		return !out[i].Success && out[j].Success
	})

	return out, nil
}

func (r *auditRepo) list(match func(auditlog.Entry) bool, f auditlog.Filter) ([]auditlog.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filtered := make([]auditlog.Entry, 0)
	for _, e := range r.entries {
		if !match(e) {
			continue
		}
		if f.From != nil && e.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && e.Timestamp.After(*f.To) {
			continue
		}
		filtered = append(filtered, e)
	}

	// Más reciente primero, como esperan los dashboards.
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	if f.Offset >= len(filtered) {
		return []auditlog.Entry{}, nil
	}
	filtered = filtered[f.Offset:]

	if f.Limit > 0 && len(filtered) > f.Limit {
		filtered = filtered[:f.Limit]
	}

	out := make([]auditlog.Entry, len(filtered))
	copy(out, filtered)
	return out, nil
}
