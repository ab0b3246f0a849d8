// Package optimistic implements speculative apply: publish a local change
// immediately, attempt the remote effect, and on failure restore exactly the
// captured pre-state.
package optimistic

import (
	"context"
	"sync"
)

// Cell holds one published value. Values handed to and returned from a Cell
// are treated as immutable.
type Cell[T any] interface {
	// Snapshot returns the current value and whether one is present
	Snapshot() (T, bool)
	Publish(v T)
	// Restore puts back a value captured by Snapshot, including its absence
	Restore(prev T, present bool)
}

// Apply captures the cell, publishes mutate(prev, present), then runs remote.
// When remote fails the captured value is restored verbatim, never a
// recomputed correction, and the error is returned.
func Apply[T, R any](
	ctx context.Context,
	cell Cell[T],
	mutate func(prev T, present bool) T,
	remote func(ctx context.Context) (R, error),
) (R, error) {
	prev, present := cell.Snapshot()
	cell.Publish(mutate(prev, present))

	res, err := remote(ctx)
	if err != nil {
		cell.Restore(prev, present)
		var zero R
		return zero, err
	}
	return res, nil
}

// Var is a mutex-guarded Cell.
type Var[T any] struct {
	mu      sync.RWMutex
	value   T
	present bool
}

// Snapshot implements Cell
func (v *Var[T]) Snapshot() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value, v.present
}

// Publish implements Cell
func (v *Var[T]) Publish(value T) {
	v.mu.Lock()
	v.value, v.present = value, true
	v.mu.Unlock()
}

// Restore implements Cell
func (v *Var[T]) Restore(prev T, present bool) {
	v.mu.Lock()
	v.value, v.present = prev, present
	v.mu.Unlock()
}
