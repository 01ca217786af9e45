// Package batch accumulates items in memory and hands them to a flush
// function in groups, by size or by age, off the caller's goroutine.
package batch

import (
	"context"
	"sync"
	"time"

	"dataanalyst/pkg/logger"
)

// FlushFunc writes one batch. It must not retain the slice.
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// Config contains configuration for Writer
type Config[T any] struct {
	Name         string
	FlushFunc    FlushFunc[T]
	MaxBatchSize int           // Default: 500
	MaxAge       time.Duration // Default: 5s
	MaxBuffered  int           // Default: 10 * MaxBatchSize, newer items are dropped beyond it
	FlushTimeout time.Duration // Default: 10s
}

// Writer buffers items and flushes them in the background once started.
// Before Start, a full buffer is flushed synchronously by Add.
type Writer[T any] struct {
	flushFunc FlushFunc[T]
	name      string
	log       *logger.Logger

	maxBatchSize int
	maxAge       time.Duration
	maxBuffered  int
	flushTimeout time.Duration

	mu        sync.Mutex
	buffer    []T
	dropped   uint64
	lastFlush time.Time
	running   bool

	flushCh chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewWriter creates a new batch writer
func NewWriter[T any](cfg Config[T]) *Writer[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}
	if cfg.MaxBuffered < cfg.MaxBatchSize {
		cfg.MaxBuffered = 10 * cfg.MaxBatchSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 10 * time.Second
	}

	return &Writer[T]{
		flushFunc:    cfg.FlushFunc,
		name:         cfg.Name,
		log:          logger.Get().With("component", "batch_writer", "writer", cfg.Name),
		maxBatchSize: cfg.MaxBatchSize,
		maxAge:       cfg.MaxAge,
		maxBuffered:  cfg.MaxBuffered,
		flushTimeout: cfg.FlushTimeout,
		buffer:       make([]T, 0, cfg.MaxBatchSize),
		lastFlush:    time.Now(),
		flushCh:      make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
}

// Start begins the background flush loop
func (w *Writer[T]) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.flushLoop(ctx)

	w.log.Infof("Batch writer started (maxBatchSize=%d, maxAge=%v)", w.maxBatchSize, w.maxAge)
}

// Add buffers an item. It reports false when the buffer is at capacity and
// the item was dropped.
func (w *Writer[T]) Add(ctx context.Context, item T) bool {
	w.mu.Lock()
	if len(w.buffer) >= w.maxBuffered {
		w.dropped++
		dropped := w.dropped
		w.mu.Unlock()
		if dropped == 1 || dropped%100 == 0 {
			w.log.Warnf("Buffer full, dropped %d items so far", dropped)
		}
		return false
	}

	w.buffer = append(w.buffer, item)
	full := len(w.buffer) >= w.maxBatchSize
	running := w.running
	w.mu.Unlock()

	if !full {
		return true
	}

	if running {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
		return true
	}

	if err := w.Flush(ctx); err != nil {
		w.log.Errorf("Synchronous flush failed: %v", err)
	}
	return true
}

// Flush writes all buffered items. Items of a failed flush are not retried.
func (w *Writer[T]) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}

	batch := w.buffer
	w.buffer = make([]T, 0, w.maxBatchSize)
	w.lastFlush = time.Now()
	w.mu.Unlock()

	flushCtx, cancel := context.WithTimeout(ctx, w.flushTimeout)
	defer cancel()

	start := time.Now()
	err := w.flushFunc(flushCtx, batch)
	duration := time.Since(start)

	if err != nil {
		w.log.Errorf("Failed to flush %d items: %v (took %v)", len(batch), err, duration)
		return err
	}

	w.log.Debugf("Flushed %d items (took %v)", len(batch), duration)
	return nil
}

func (w *Writer[T]) flushLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.finalFlush()
			return

		case <-w.stopCh:
			w.finalFlush()
			return

		case <-w.flushCh:
			_ = w.Flush(ctx)

		case <-ticker.C:
			if w.BufferSize() > 0 {
				_ = w.Flush(ctx)
			}
		}
	}
}

// finalFlush uses a fresh context since the loop context may be cancelled
func (w *Writer[T]) finalFlush() {
	w.log.Debug("Batch writer stopping, performing final flush")
	if err := w.Flush(context.Background()); err != nil {
		w.log.Errorf("Final flush failed: %v", err)
	}
}

// Stop flushes remaining items and waits for the loop to exit
func (w *Writer[T]) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.Flush(ctx)
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("Batch writer stopped")
		return nil
	case <-ctx.Done():
		w.log.Warn("Batch writer stop timed out")
		return ctx.Err()
	}
}

// BufferSize returns the current buffer size
func (w *Writer[T]) BufferSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Stats describes the writer state for monitoring
type Stats struct {
	BufferSize   int
	Dropped      uint64
	LastFlushAge time.Duration
	Running      bool
}

func (w *Writer[T]) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Stats{
		BufferSize:   len(w.buffer),
		Dropped:      w.dropped,
		LastFlushAge: time.Since(w.lastFlush),
		Running:      w.running,
	}
}
