package session

import (
	"context"

	"lifesignal-backend/internal/checkin"
)

// Mutation describes one optimistic update of a piece of session state.
type Mutation[T any] struct {
	Load   func() T
	Store  func(T)
	Mutate func(T) (T, error)
	Commit func(ctx context.Context, before, after T) error
	Reload func(ctx context.Context) (T, error)
}

// Optimistic applies m locally, then commits it remotely. A Mutate error is
// returned before anything is stored. When Commit fails the authoritative
// value is reloaded, or the previous value restored if the reload fails too,
// and the error is reported as a sync failure.
func Optimistic[T any](ctx context.Context, m Mutation[T]) (T, error) {
	before := m.Load()

	after, err := m.Mutate(before)
	if err != nil {
		return before, err
	}
	m.Store(after)

	if err := m.Commit(ctx, before, after); err != nil {
		if fresh, rerr := m.Reload(ctx); rerr == nil {
			m.Store(fresh)
		} else {
			m.Store(before)
		}
		return m.Load(), checkin.AsSyncFailure(err)
	}

	return after, nil
}
