package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNextCalledTwice is returned when a middleware calls next more than once
// in the same turn.
var ErrNextCalledTwice = errors.New("middleware called next more than once")

// NextFunc runs the rest of the pipeline.
type NextFunc func(ctx context.Context) error

// Middleware intercepts a turn. Work done before calling next runs on the
// way in, work after it on the way out. Not calling next ends the turn.
type Middleware interface {
	OnTurn(ctx context.Context, tc *TurnContext, next NextFunc) error
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, tc *TurnContext, next NextFunc) error

// OnTurn calls f.
func (f MiddlewareFunc) OnTurn(ctx context.Context, tc *TurnContext, next NextFunc) error {
	return f(ctx, tc, next)
}

// MiddlewareSet is an ordered middleware pipeline.
type MiddlewareSet struct {
	mu         sync.RWMutex
	middleware []Middleware
}

// NewMiddlewareSet creates a set holding mws in order.
func NewMiddlewareSet(mws ...Middleware) *MiddlewareSet {
	return (&MiddlewareSet{}).Use(mws...)
}

// Use appends middleware.
func (m *MiddlewareSet) Use(mws ...Middleware) *MiddlewareSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.middleware = append(m.middleware, mws...)
	return m
}

// Len returns the number of registered middleware.
func (m *MiddlewareSet) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.middleware)
}

// ReceiveActivityWithStatus runs the pipeline and then callback. A nil
// callback completes the turn once every middleware has called next.
func (m *MiddlewareSet) ReceiveActivityWithStatus(ctx context.Context, tc *TurnContext, callback Callback) error {
	m.mu.RLock()
	chain := append([]Middleware(nil), m.middleware...)
	m.mu.RUnlock()
	return receive(ctx, tc, chain, 0, callback)
}

func receive(ctx context.Context, tc *TurnContext, chain []Middleware, i int, callback Callback) error {
	if i == len(chain) {
		if callback == nil {
			return nil
		}
		return callback(ctx, tc)
	}
	var called atomic.Bool
	return chain[i].OnTurn(ctx, tc, func(ctx context.Context) error {
		if !called.CompareAndSwap(false, true) {
			return ErrNextCalledTwice
		}
		return receive(ctx, tc, chain, i+1, callback)
	})
}

// OnTurn lets a set be nested inside another pipeline.
func (m *MiddlewareSet) OnTurn(ctx context.Context, tc *TurnContext, next NextFunc) error {
	return m.ReceiveActivityWithStatus(ctx, tc, func(ctx context.Context, _ *TurnContext) error {
		return next(ctx)
	})
}
