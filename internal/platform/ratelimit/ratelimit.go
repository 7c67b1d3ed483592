package ratelimit

import (
	"sync"
	"time"
)

// Limiter decide si una key puede hacer otro request dentro de su ventana.
// La implementación local sirve para un solo proceso; en multi-instancia
// se reemplaza por un contador compartido detrás de esta misma interfaz.
type Limiter interface {
	Allow(key string) bool
}

// SlidingWindow cuenta requests por key en una ventana deslizante.
// Los contadores viven en memoria: un restart los pierde y la key queda
// "sin límite por un rato". Es un trade-off aceptado, no un bug.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Hour
	}
	return &SlidingWindow{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (l *SlidingWindow) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.hits[key] = kept
		return false
	}

	l.hits[key] = append(kept, now)
	return true
}

// Sweep descarta keys sin actividad dentro de la ventana.
// Pensado para correrse periódicamente desde un goroutine del router.
func (l *SlidingWindow) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, ts := range l.hits {
		alive := false
		for _, t := range ts {
			if t.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(l.hits, key)
		}
	}
}
