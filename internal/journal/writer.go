package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/dh2mqtt/internal/connection"
)

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// defaultQueueSize is used when NewWriter is given a non-positive size.
const defaultQueueSize = 64

// Logger defines the logging interface for the journal.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Writer persists transitions on a background goroutine.
//
// Observe is safe to call from any goroutine and never blocks; when the
// queue is full the transition is dropped and counted.
type Writer struct {
	repo   Repository
	queue  chan connection.Transition
	logger Logger

	dropped atomic.Uint64
	failed  atomic.Uint64

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// NewWriter creates a writer. Call Start before Observe has any effect on disk.
func NewWriter(repo Repository, queueSize int, logger Logger) *Writer {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Writer{
		repo:   repo,
		queue:  make(chan connection.Transition, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the background goroutine.
func (w *Writer) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop drains queued transitions and waits for the goroutine to exit.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}

// Observe queues a transition. It matches connection.Manager.SetOnTransition.
func (w *Writer) Observe(tr connection.Transition) {
	select {
	case w.queue <- tr:
	default:
		w.dropped.Add(1)
		if w.logger != nil {
			w.logger.Warn("journal queue full, dropping transition",
				"from", tr.From.String(), "to", tr.To.String(), "error", ErrWriterFull)
		}
	}
}

// Dropped returns how many transitions were discarded because the queue was full.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Failed returns how many inserts returned an error.
func (w *Writer) Failed() uint64 {
	return w.failed.Load()
}

func (w *Writer) run() {
	defer w.wg.Done()

	for {
		select {
		case tr := <-w.queue:
			w.write(tr)
		case <-w.done:
			for {
				select {
				case tr := <-w.queue:
					w.write(tr)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(tr connection.Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := w.repo.Record(ctx, tr); err != nil {
		w.failed.Add(1)
		if w.logger != nil {
			w.logger.Error("recording connection event", "error", err)
		}
	}
}
