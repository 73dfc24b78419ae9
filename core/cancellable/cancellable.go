// Package cancellable provides cancellation tokens that can be chained
// without either side keeping the other alive.
package cancellable

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"weak"
)

// ErrChained is the cancellation cause recorded when a token is cancelled
// through a chain link.
var ErrChained = errors.New("cancelled through chained token")

// Token is a cancellation handle backed by a context.
type Token struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// New returns an independent token.
func New() *Token {
	return FromContext(context.Background())
}

// FromContext returns a token that is cancelled when parent is, and can
// also be cancelled on its own.
func FromContext(parent context.Context) *Token {
	ctx, cancel := context.WithCancelCause(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Context returns the context observing this token.
func (t *Token) Context() context.Context { return t.ctx }

// Done is closed once the token is cancelled.
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Err returns context.Canceled once the token is cancelled.
func (t *Token) Err() error { return t.ctx.Err() }

// Cause returns the reason the token was cancelled.
func (t *Token) Cause() error { return context.Cause(t.ctx) }

// Cancelled reports whether the token has been cancelled.
func (t *Token) Cancelled() bool { return t.ctx.Err() != nil }

// Cancel cancels the token. Calling it more than once has no effect.
func (t *Token) Cancel() { t.cancel(context.Canceled) }

// Chain arranges for self to be cancelled when other is cancelled and
// returns self. If either token is nil the other is returned, which lets
// callers merge an optional token in one expression.
//
// The link holds self weakly, so neither token keeps the other alive. It
// is removed from other once self is cancelled or collected; if other is
// collected without being cancelled, self is unaffected.
func Chain(self, other *Token) *Token {
	if self == nil {
		return other
	}
	if other == nil || self == other {
		return self
	}
	if other.Cancelled() {
		self.cancel(ErrChained)
		return self
	}
	link(self, other)
	return self
}

// link registers the cancellation of self on other's context. The returned
// channel is closed once that registration has fired or been removed.
func link(self, other *Token) <-chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(done) }) }

	wp := weak.Make(self)
	stop := context.AfterFunc(other.ctx, func() {
		if t := wp.Value(); t != nil {
			t.cancel(ErrChained)
		}
		release()
	})
	unlink := func() {
		stop()
		release()
	}
	context.AfterFunc(self.ctx, unlink)
	runtime.AddCleanup(self, func(fn func()) { fn() }, unlink)
	return done
}
