package wlparser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

const (
	defaultBufferSize = 64
)

// BufferOptions configures buffered write behavior.
type BufferOptions struct {
	Duration  time.Duration
	Size      int
	Aggregate bool
	Async     bool
	Logger    *slog.Logger
}

// Buffer batches reports and flushes them to a writer by size and/or time.
// With Aggregate set, a later report for a label replaces the queued one.
type Buffer struct {
	writer ReportWriter
	logger *slog.Logger

	duration  time.Duration
	size      int
	aggregate bool
	async     bool

	mu      sync.Mutex
	byLabel map[string]int
	queue   []Report
	closed  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBuffer creates a report buffer for writer.
func NewBuffer(writer ReportWriter, opts BufferOptions) *Buffer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &Buffer{
		writer:    writer,
		logger:    logger.With(slog.String("component", "buffer")),
		duration:  normalizeBufferDuration(opts.Duration),
		size:      normalizeBufferSize(opts.Size),
		aggregate: opts.Aggregate,
		async:     opts.Async,
	}
	b.resetQueueLocked()
	if b.async && b.duration > 0 {
		b.startWorker()
	}
	return b
}

// Put enqueues reports, flushing when the queue reaches the size limit.
func (b *Buffer) Put(ctx context.Context, reports []Report) error {
	if b == nil {
		return fmt.Errorf("buffer is nil")
	}
	if len(reports) == 0 {
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("buffer is closed")
	}
	for _, r := range reports {
		b.storeLocked(r)
	}
	shouldFlush := len(b.queue) >= b.size
	b.mu.Unlock()

	if shouldFlush {
		return b.flush(ctx)
	}
	return nil
}

// Flush drains queued reports and writes them in one batch.
func (b *Buffer) Flush() error {
	return b.flush(context.Background())
}

// Shutdown stops the worker and flushes outstanding reports.
func (b *Buffer) Shutdown() error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	stopCh := b.stopCh
	b.stopCh = nil
	b.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		b.wg.Wait()
	}
	return b.Flush()
}

// Pending returns the number of queued reports.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Buffer) storeLocked(r Report) {
	if b.aggregate {
		if i, ok := b.byLabel[r.Label]; ok {
			b.queue[i] = r
			return
		}
		b.byLabel[r.Label] = len(b.queue)
	}
	b.queue = append(b.queue, r)
}

func (b *Buffer) flush(ctx context.Context) error {
	reports := b.drain()
	if len(reports) == 0 {
		return nil
	}
	if err := b.writer.Put(ctx, reports); err != nil {
		b.logger.Error("flush failed", slog.Int("reports", len(reports)), slog.Any("error", err))
		return err
	}
	b.logger.Debug("flushed reports", slog.Int("reports", len(reports)))
	return nil
}

func (b *Buffer) drain() []Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil
	}
	reports := b.queue
	b.resetQueueLocked()
	return reports
}

func (b *Buffer) resetQueueLocked() {
	b.byLabel = map[string]int{}
	b.queue = []Report{}
}

func (b *Buffer) startWorker() {
	stopCh := make(chan struct{})
	b.stopCh = stopCh
	b.wg.Add(1)

	go func(stop <-chan struct{}) {
		defer b.wg.Done()
		ticker := time.NewTicker(b.duration)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = b.Flush()
			case <-stop:
				return
			}
		}
	}(stopCh)
}

func (b *Buffer) matches(writer ReportWriter, duration time.Duration, size int, aggregate, async bool) bool {
	if b == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return sameWriter(b.writer, writer) &&
		b.duration == normalizeBufferDuration(duration) &&
		b.size == normalizeBufferSize(size) &&
		b.aggregate == aggregate &&
		b.async == async
}

func normalizeBufferDuration(value time.Duration) time.Duration {
	if value <= 0 {
		return 0
	}
	return value
}

func normalizeBufferSize(value int) int {
	if value <= 0 {
		return defaultBufferSize
	}
	return value
}

func sameWriter(a, b ReportWriter) bool {
	if a == nil || b == nil {
		return a == b
	}

	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if va.IsValid() && vb.IsValid() && va.Type() == vb.Type() {
		switch va.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return va.Pointer() == vb.Pointer()
		}
	}
	return reflect.DeepEqual(a, b)
}
