package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// floodLimiter limits the rate at which each player may send command lines.
// A nil floodLimiter allows everything.
type floodLimiter struct {
	limit rate.Limit
	burst int

	mu     sync.Mutex
	actors map[uuid.UUID]*rate.Limiter
}

func newFloodLimiter(perSecond float64, burst int) *floodLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &floodLimiter{limit: rate.Limit(perSecond), burst: burst, actors: make(map[uuid.UUID]*rate.Limiter)}
}

// Allow reports if the actor may send another command line at now.
func (f *floodLimiter) Allow(actor uuid.UUID, now time.Time) bool {
	if f == nil {
		return true
	}
	f.mu.Lock()
	l, ok := f.actors[actor]
	if !ok {
		l = rate.NewLimiter(f.limit, f.burst)
		f.actors[actor] = l
	}
	f.mu.Unlock()
	return l.AllowN(now, 1)
}

// Forget drops the limiter of an actor.
func (f *floodLimiter) Forget(actor uuid.UUID) {
	if f == nil {
		return
	}
	f.mu.Lock()
	delete(f.actors, actor)
	f.mu.Unlock()
}
