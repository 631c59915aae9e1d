// Package window provides the foreground window class used by window-scoped
// remap rules.
//
// A Provider answers a single question, the class of the currently focused
// window. Queries are best effort: any failure is reported as ErrUnavailable
// and the engine falls back to unconditioned rules.
package window

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is returned when no window class can be determined: no X11
// session, a query timed out, or no window has focus.
var ErrUnavailable = errors.New("window class unavailable")

// Provider reports the class of the focused window.
type Provider interface {
	Class(ctx context.Context) (string, error)
}

// Static always reports the same class. Useful for tests and for pinning a
// profile from the command line.
type Static string

func (s Static) Class(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrUnavailable
	}
	return string(s), nil
}

// Unavailable is the provider used on sessions without window class support.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Class(ctx context.Context) (string, error) {
	if u.Reason == "" {
		return "", ErrUnavailable
	}
	return "", fmt.Errorf("%w: %s", ErrUnavailable, u.Reason)
}

type timeoutProvider struct {
	p       Provider
	timeout time.Duration
}

// WithTimeout bounds every query of p. A provider that ignores ctx is still
// abandoned after d; its result is discarded.
func WithTimeout(p Provider, d time.Duration) Provider {
	return &timeoutProvider{p: p, timeout: d}
}

type classResult struct {
	class string
	err   error
}

func (t *timeoutProvider) Class(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	ch := make(chan classResult, 1)
	go func() {
		c, err := t.p.Class(ctx)
		ch <- classResult{c, err}
	}()

	select {
	case r := <-ch:
		return r.class, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}
