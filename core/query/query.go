// Package query turns remote calls into observable {data, loading, error} state.
package query

import (
	"context"
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// FetchError wraps a failed Query call.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return "fetching data: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }
func (e *FetchError) Cause() error  { return e.Err }

// MutationError wraps a failed Mutation call.
type MutationError struct {
	Err error
}

func (e *MutationError) Error() string { return "saving data: " + e.Err.Error() }
func (e *MutationError) Unwrap() error { return e.Err }
func (e *MutationError) Cause() error  { return e.Err }

// IsFetchError reports whether err is or wraps a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsMutationError reports whether err is or wraps a *MutationError.
func IsMutationError(err error) bool {
	var me *MutationError
	return errors.As(err, &me)
}

// State is the observable state of a Query or Mutation.
type State[T any] struct {
	Data    T
	Loading bool
	Err     error
}

// Query runs a fetch function and re-runs it whenever its dependencies change.
// Results of runs superseded by a newer run, or arriving after Close, are dropped.
type Query[T any] struct {
	fn func(ctx context.Context) (T, error)

	mu      sync.Mutex
	state   State[T]
	deps    []interface{}
	ran     bool
	stale   bool
	closed  bool
	gen     uint64
	cancel  context.CancelFunc
	pending chan struct{}
}

func NewQuery[T any](fn func(ctx context.Context) (T, error)) *Query[T] {
	return &Query[T]{fn: fn}
}

// Run fetches when deps differ from those of the previous run (or after Invalidate)
// and waits for the result. Otherwise it returns the current state unchanged.
func (q *Query[T]) Run(ctx context.Context, deps ...interface{}) State[T] {
	q.mu.Lock()
	if q.closed {
		defer q.mu.Unlock()
		return q.state
	}
	if q.ran && !q.stale && reflect.DeepEqual(q.deps, deps) {
		pending := q.pending
		q.mu.Unlock()
		if pending != nil {
			select {
			case <-pending:
			case <-ctx.Done():
			}
		}
		return q.State()
	}

	if q.cancel != nil {
		q.cancel()
	}
	q.gen++
	gen := q.gen
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	q.cancel, q.pending = cancel, done
	q.deps, q.ran, q.stale = deps, true, false
	q.state.Loading = true
	q.mu.Unlock()

	go q.fetch(runCtx, gen, done)

	select {
	case <-done:
	case <-ctx.Done():
	}
	return q.State()
}

func (q *Query[T]) fetch(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	data, err := q.fn(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || gen != q.gen {
		return
	}
	if err != nil {
		var zero T
		q.state = State[T]{Data: zero, Err: &FetchError{Err: err}}
	} else {
		q.state = State[T]{Data: data}
	}
	q.cancel, q.pending = nil, nil
}

// Invalidate forces the next Run to fetch again.
func (q *Query[T]) Invalidate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stale = true
}

// Close cancels any in-flight fetch. Nothing is written to the state afterwards.
func (q *Query[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
}

func (q *Query[T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Mutation wraps a write operation behind an explicit trigger.
type Mutation[V, T any] struct {
	fn func(ctx context.Context, v V) (T, error)

	mu    sync.Mutex
	state State[T]
}

func NewMutation[V, T any](fn func(ctx context.Context, v V) (T, error)) *Mutation[V, T] {
	return &Mutation[V, T]{fn: fn}
}

// Mutate clears the previous error, calls the function and records the outcome.
// A failure is both stored in the state and returned, as a *MutationError.
func (m *Mutation[V, T]) Mutate(ctx context.Context, v V) (T, error) {
	m.mu.Lock()
	m.state.Loading = true
	m.state.Err = nil
	m.mu.Unlock()

	data, err := m.fn(ctx, v)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Loading = false
	if err != nil {
		var zero T
		mErr := &MutationError{Err: err}
		m.state.Data, m.state.Err = zero, mErr
		return zero, mErr
	}
	m.state.Data = data
	return data, nil
}

func (m *Mutation[V, T]) State() State[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
