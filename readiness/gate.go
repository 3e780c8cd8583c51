// Package readiness gates session-dependent work behind the user bootstrap.
// Callbacks submitted before the gate opens run in submission order once it
// does; callbacks submitted after run immediately.
package readiness

import (
	"go.uber.org/zap"
)

// Gate is a boolean readiness flag plus a FIFO queue of deferred callbacks.
type Gate struct {
	mu       chanMutex
	ready    bool
	draining bool
	failed   error
	queue    []func()
	logger   *zap.Logger
	onError  func(err error)
}

// chanMutex is a mutex that the drain loop can release between callbacks, so
// a callback calling Ready again re-enters cleanly.
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	m := make(chanMutex, 1)
	m <- struct{}{}
	return m
}

func (m chanMutex) lock()   { <-m }
func (m chanMutex) unlock() { m <- struct{}{} }

// NewGate builds a closed gate. onError receives the bootstrap failure so the
// host is told instead of waiting forever; it may be nil.
func NewGate(logger *zap.Logger, onError func(err error)) *Gate {
	return &Gate{
		mu:      newChanMutex(),
		logger:  logger,
		onError: onError,
	}
}

// Ready runs fn immediately when the gate is open, otherwise appends it to
// the queue. After a bootstrap failure new callbacks are dropped with a log
// line rather than accumulating against a gate that may never open.
func (g *Gate) Ready(fn func()) {
	g.mu.lock()
	// While the drain loop is running, new callbacks join the back of the
	// queue so they cannot jump ahead of earlier submissions.
	if g.ready && !g.draining {
		g.mu.unlock()
		g.run(fn)
		return
	}
	if g.failed != nil {
		err := g.failed
		g.mu.unlock()
		g.logger.Warn("ready callback dropped, bootstrap failed", zap.Error(err))
		return
	}
	g.queue = append(g.queue, fn)
	g.mu.unlock()
}

// SetReady opens the gate and drains the queue in strict insertion order.
// The loop re-checks the queue after every callback, so work enqueued by a
// draining callback runs on the same pass.
func (g *Gate) SetReady() {
	g.mu.lock()
	g.ready = true
	g.failed = nil
	g.draining = true
	for len(g.queue) > 0 {
		fn := g.queue[0]
		g.queue = g.queue[1:]
		g.mu.unlock()
		g.run(fn)
		g.mu.lock()
	}
	g.draining = false
	g.queue = nil
	g.mu.unlock()
}

// Fail records a bootstrap failure, reports it and discards queued work.
func (g *Gate) Fail(err error) {
	g.mu.lock()
	g.failed = err
	dropped := len(g.queue)
	g.queue = nil
	g.mu.unlock()

	g.logger.Error("session bootstrap failed",
		zap.Error(err),
		zap.Int("dropped_callbacks", dropped),
	)
	if g.onError != nil {
		g.onError(err)
	}
}

// IsReady reports whether the gate has opened.
func (g *Gate) IsReady() bool {
	g.mu.lock()
	defer g.mu.unlock()
	return g.ready
}

// run executes one callback; a panic is logged and must not stop the caller
// from draining the rest of the queue.
func (g *Gate) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("ready callback panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
