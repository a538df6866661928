package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncState is shared by an AsyncHandler and every handler derived from it
// through WithAttrs/WithGroup.
type asyncState struct {
	ch      chan job
	wg      sync.WaitGroup
	mu      sync.RWMutex // guards closed and the close of ch
	closed  bool
	dropped atomic.Int64
}

type job struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler hands records to background workers through a bounded buffer.
// Handle never blocks: when the buffer is full the record is dropped and counted.
type AsyncHandler struct {
	inner slog.Handler
	state *asyncState
}

// NewAsyncHandler creates an AsyncHandler with the given buffer size and worker count.
func NewAsyncHandler(inner slog.Handler, buffer, workers int) *AsyncHandler {
	if workers < 1 {
		workers = 1
	}
	st := &asyncState{ch: make(chan job, buffer)}
	for range workers {
		st.wg.Add(1)
		go st.drain()
	}
	return &AsyncHandler{inner: inner, state: st}
}

func (s *asyncState) drain() {
	defer s.wg.Done()
	for j := range s.ch {
		_ = j.h.Handle(context.Background(), j.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues a clone of rec. Records arriving after Close are dropped.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	if h.state.closed {
		h.state.dropped.Add(1)
		return nil
	}
	select {
	case h.state.ch <- job{h: h.inner, rec: rec.Clone()}:
	default:
		h.state.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing the same buffer with attrs applied to the inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), state: h.state}
}

// WithGroup returns a handler sharing the same buffer with the group applied to the inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), state: h.state}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.state.dropped.Load()
}

// Close stops accepting records and waits for the workers to drain the buffer.
// It is safe to call more than once.
func (h *AsyncHandler) Close() {
	h.state.mu.Lock()
	if h.state.closed {
		h.state.mu.Unlock()
		return
	}
	h.state.closed = true
	close(h.state.ch)
	h.state.mu.Unlock()
	h.state.wg.Wait()
}
