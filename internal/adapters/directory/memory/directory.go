package memory

import (
	"context"
	"errors"
	"sync"

	"health-data-access/internal/ports/directory"
)

var ErrUserNotFound = errors.New("user not found")

// Directory es un directorio estático en memoria para dev y tests.
type Directory struct {
	mu   sync.RWMutex
	byID map[string]directory.User
}

func NewDirectory(users ...directory.User) *Directory {
	d := &Directory{byID: make(map[string]directory.User, len(users))}
	for _, u := range users {
		d.byID[u.ID] = u
	}
	return d
}

func (d *Directory) Add(u directory.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[u.ID] = u
}

func (d *Directory) Lookup(ctx context.Context, userID string) (directory.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[userID]
	if !ok {
		return directory.User{}, ErrUserNotFound
	}
	return u, nil
}

func (d *Directory) ListProviders(ctx context.Context, hospitalID string) ([]directory.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]directory.User, 0)
	for _, u := range d.byID {
		if u.HospitalID == hospitalID && u.Role.IsClinician() {
			out = append(out, u)
		}
	}
	return out, nil
}
