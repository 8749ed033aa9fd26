package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is matched by every BusyError.
var ErrBusy = errors.New("server busy")

// BusyError is returned when the admission ceiling is reached.
type BusyError struct {
	Active int
	Max    int
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("server busy: %d/%d renders active", e.Active, e.Max)
}

// Is reports whether target is ErrBusy.
func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

// Gate limits how many jobs run their pipelines at once. Admission never
// waits: a full gate refuses immediately.
type Gate struct {
	sem    *semaphore.Weighted
	max    int
	active atomic.Int64
}

// NewGate creates a Gate admitting up to limit jobs. Values below 1 are
// raised to 1.
func NewGate(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(limit)), max: limit}
}

// TryAcquire admits a job if a slot is free. The returned release function
// frees the slot; calling it more than once has no further effect.
func (g *Gate) TryAcquire() (release func(), err error) {
	if !g.sem.TryAcquire(1) {
		// Every slot is held.
		return nil, &BusyError{Active: g.max, Max: g.max}
	}
	g.active.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.active.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

// Drain closes the gate and blocks until every admitted job has released
// its slot. Once Drain returns nil the gate refuses all jobs. If ctx ends
// first the gate is left as it was.
func (g *Gate) Drain(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, int64(g.max)); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return nil
}

// Active returns the number of admitted jobs.
func (g *Gate) Active() int {
	return int(g.active.Load())
}

// Max returns the admission ceiling.
func (g *Gate) Max() int {
	return g.max
}
