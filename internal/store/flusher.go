package store

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Flusher runs a flush function in a single background goroutine, both on
// demand and on a fixed interval.
//
// Triggers coalesce: a burst of [Flusher.Trigger] calls while a flush is in
// progress results in at most one further flush. Because every run happens
// on the same goroutine, flushes never overlap.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Flusher struct {
	interval time.Duration
	flush    func() error
	logger   *slog.Logger
	trigger  chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFlusher creates a [Flusher] that calls flush every interval and after
// each trigger. The flusher does nothing until [Flusher.Start] is called.
func NewFlusher(interval time.Duration, flush func() error, logger *slog.Logger) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{
		interval: interval,
		flush:    flush,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Start begins the flush loop in a background goroutine.
//
// The loop runs until [Flusher.Stop] is called or ctx is cancelled. Start is
// idempotent, and a no-op after Stop.
func (f *Flusher) Start(ctx context.Context) {
	f.mu.Lock()
	if f.started || f.stopped {
		f.mu.Unlock()
		return
	}
	f.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-f.trigger:
				f.run()
			case <-ticker.C:
				f.run()
			}
		}
	}()
}

// Trigger requests a flush without waiting for it. If a request is already
// pending, Trigger does nothing.
func (f *Flusher) Trigger() {
	select {
	case f.trigger <- struct{}{}:
	default:
	}
}

// Stop halts the loop and waits for an in-progress flush to finish.
// Stop is idempotent and safe to call before Start. Pending triggers are
// discarded; callers wanting a final write flush explicitly afterwards.
func (f *Flusher) Stop() {
	f.mu.Lock()
	if !f.stopped {
		f.stopped = true
		if f.cancel != nil {
			f.cancel()
		}
	}
	f.mu.Unlock()

	f.wg.Wait()
}

// run calls the flush function with panic recovery. Errors are reported by
// the flush function itself.
func (f *Flusher) run() {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("flush panic",
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	_ = f.flush()
}
