// Package cancel provides composable cancellation tokens.
//
// A Token wraps a context so it can be handed to provider adapters, but adds
// an explicit source: callers can tell whether work stopped because its
// deadline passed or because someone asked it to stop.
package cancel

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCanceled is the cause recorded when a token is canceled explicitly
	// or through its parent context.
	ErrCanceled = errors.New("canceled")
	// ErrDeadline is the cause recorded when a deadline token fires.
	ErrDeadline = errors.New("deadline exceeded")
)

// Source says what fired a token.
type Source int

const (
	SourceNone     Source = iota // not canceled
	SourceCaller                 // explicit Cancel or parent context
	SourceDeadline               // deadline timer
)

func (s Source) String() string {
	switch s {
	case SourceCaller:
		return "caller"
	case SourceDeadline:
		return "deadline"
	default:
		return "none"
	}
}

// Token is a cancellation signal. The zero value is not usable; build one
// with New, FromContext, Deadline or AnyOf. Cancel is idempotent and safe
// for concurrent use.
type Token struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	source  Source
	cleanup []func() bool
	timer   *time.Timer
}

// New returns a token that only fires when Cancel is called.
func New() *Token {
	return newToken(context.Background())
}

func newToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancelCause(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// FromContext returns a token that fires when ctx is done. The source is
// SourceDeadline if ctx ended by deadline, SourceCaller otherwise.
func FromContext(ctx context.Context) *Token {
	t := New()
	stop := context.AfterFunc(ctx, func() {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			t.fire(SourceDeadline, ErrDeadline)
			return
		}
		t.fire(SourceCaller, ErrCanceled)
	})
	t.addCleanup(stop)
	return t
}

// Deadline returns a token that fires with ErrDeadline after d.
func Deadline(d time.Duration) *Token {
	t := New()
	t.mu.Lock()
	t.timer = time.AfterFunc(d, func() { t.fire(SourceDeadline, ErrDeadline) })
	t.mu.Unlock()
	return t
}

// AnyOf returns a token that fires as soon as any of tokens fires, taking
// that token's source and cause. Canceling the combined token does not
// cancel its inputs.
func AnyOf(tokens ...*Token) *Token {
	t := New()
	for _, in := range tokens {
		if in == nil {
			continue
		}
		src := in
		stop := context.AfterFunc(src.ctx, func() {
			t.fire(src.Source(), context.Cause(src.ctx))
		})
		t.addCleanup(stop)
	}
	return t
}

// Cancel fires the token with SourceCaller. Calls after the first have no
// effect.
func (t *Token) Cancel() {
	t.fire(SourceCaller, ErrCanceled)
}

func (t *Token) fire(src Source, cause error) {
	t.mu.Lock()
	if t.source != SourceNone {
		t.mu.Unlock()
		return
	}
	t.source = src
	t.mu.Unlock()
	t.cancel(cause)
}

// Done is closed once the token fires.
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Canceled reports whether the token has fired.
func (t *Token) Canceled() bool { return t.ctx.Err() != nil }

// Cause returns ErrDeadline or ErrCanceled once fired, nil before.
func (t *Token) Cause() error {
	if t.ctx.Err() == nil {
		return nil
	}
	return context.Cause(t.ctx)
}

// Source reports what fired the token.
func (t *Token) Source() Source {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.source
}

// Context returns a context that is canceled when the token fires, for
// passing to code that speaks context.
func (t *Token) Context() context.Context { return t.ctx }

// Release stops timers and detaches the token from its inputs without
// firing it. It should be called once the guarded work has finished.
func (t *Token) Release() {
	t.mu.Lock()
	timer := t.timer
	cleanup := t.cleanup
	t.timer, t.cleanup = nil, nil
	t.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	for _, stop := range cleanup {
		stop()
	}
}

func (t *Token) addCleanup(stop func() bool) {
	t.mu.Lock()
	t.cleanup = append(t.cleanup, stop)
	t.mu.Unlock()
}
