package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes and stops a logger returned by New.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncQueue is shared by an AsyncHandler and every handler derived from it
// through WithAttrs or WithGroup.
type asyncQueue struct {
	mu      sync.RWMutex // guards closed against sends on a closed channel
	closed  bool
	jobs    chan asyncJob
	workers sync.WaitGroup
	dropped atomic.Int64
	flush   slog.Handler // target of the final drop report
}

type asyncJob struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler moves record formatting off the caller's goroutine. The
// dashboard logs from the perturbation ticker, the ws hub and request
// handlers; none of them should block on stdout. When the queue is full,
// records are dropped and counted. Records handled after Close are written
// synchronously.
type AsyncHandler struct {
	next slog.Handler
	q    *asyncQueue
}

// NewAsyncHandler starts workers goroutines draining a queue of size buffer.
func NewAsyncHandler(next slog.Handler, buffer, workers int) *AsyncHandler {
	q := &asyncQueue{jobs: make(chan asyncJob, buffer), flush: next}
	q.workers.Add(workers)
	for range workers {
		go func() {
			defer q.workers.Done()
			for job := range q.jobs {
				_ = job.h.Handle(context.Background(), job.rec)
			}
		}()
	}
	return &AsyncHandler{next: next, q: q}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.q.mu.RLock()
	defer h.q.mu.RUnlock()
	if h.q.closed {
		return h.next.Handle(ctx, rec)
	}
	select {
	case h.q.jobs <- asyncJob{h: h.next, rec: rec.Clone()}:
	default:
		h.q.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{next: h.next.WithAttrs(attrs), q: h.q}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{next: h.next.WithGroup(name), q: h.q}
}

// Dropped reports how many records were discarded on a full queue.
func (h *AsyncHandler) Dropped() int64 {
	return h.q.dropped.Load()
}

// Close drains the queue and reports drops once. Safe to call repeatedly.
func (h *AsyncHandler) Close() {
	h.q.mu.Lock()
	if h.q.closed {
		h.q.mu.Unlock()
		return
	}
	h.q.closed = true
	close(h.q.jobs)
	h.q.mu.Unlock()

	h.q.workers.Wait()
	if n := h.q.dropped.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "log records dropped", 0)
		rec.AddAttrs(slog.Int64("dropped", n))
		_ = h.q.flush.Handle(context.Background(), rec)
	}
}
