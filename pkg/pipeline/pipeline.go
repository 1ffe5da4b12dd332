// Package pipeline implements the asynchronous pipeline writer: an alternative to pkg/writer.Writer that accepts spectra on
// a bounded channel from one or more producer goroutines while a single
// worker goroutine drains it into the synchronous writer, applying
// backpressure instead of unbounded buffering.
package pipeline

import (
	"context"
	"io"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mzpeak/mzpeak/pkg/ingest"
	"github.com/mzpeak/mzpeak/pkg/mzerr"
	"github.com/mzpeak/mzpeak/pkg/writer"
)

// Options configures an AsyncWriter.
type Options struct {
	writer.Options

	// QueueDepth bounds the number of spectra buffered between producers
	// and the worker goroutine. Submit blocks once it is full, which is
	// the pipeline's only backpressure mechanism. Defaults
	// to 256 when zero.
	QueueDepth int

	// Logger receives a "spectrum dropped" warning for each spectrum
	// dropped because Submit's context was canceled or because the worker
	// had already failed. A worker panic is not logged; Finish returns it
	// as *mzerr.WorkerPanicked. Nil defaults to a no-op logger.
	Logger *zap.Logger
}

const defaultQueueDepth = 256

// AsyncWriter runs pkg/writer.Writer on a dedicated worker goroutine:
// one channel, one worker, first error wins.
type AsyncWriter struct {
	queue  chan *ingest.Spectrum
	logger *zap.Logger

	group *errgroup.Group

	mu        sync.Mutex
	firstErr  error
	errSignal chan struct{}
	errOnce   sync.Once

	closeOnce sync.Once
}

// New starts the worker goroutine and returns an AsyncWriter ready to
// accept spectra. The underlying synchronous writer is constructed exactly
// as writer.New would construct it.
func New(dest io.Writer, opts Options) (*AsyncWriter, error) {
	w, err := writer.New(dest, opts.Options)
	if err != nil {
		return nil, err
	}

	depth := opts.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	aw := &AsyncWriter{
		queue:     make(chan *ingest.Spectrum, depth),
		logger:    logger,
		group:     new(errgroup.Group),
		errSignal: make(chan struct{}),
	}

	aw.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &mzerr.WorkerPanicked{Recovered: r, Stack: string(debug.Stack())}
			}
		}()
		return aw.run(w)
	})

	return aw, nil
}

// run drains the queue and writes each spectrum. Once a write fails, it
// keeps draining and dropping further items (logging each) rather than
// exiting early, so a producer already blocked in Submit is never stranded
// waiting on a worker that has stopped consuming; Submit itself becomes a
// no-block failure as soon as setErr fires via errSignal.
func (aw *AsyncWriter) run(w *writer.Writer) error {
	defer w.Discard()
	for s := range aw.queue {
		if aw.Err() != nil {
			aw.logger.Warn("mzpeak async writer: spectrum dropped after worker failure",
				zap.Uint32("spectrum_id", s.SpectrumID))
			continue
		}
		if err := w.WriteSpectrum(s); err != nil {
			aw.setErr(err)
			continue
		}
	}
	if err := aw.Err(); err != nil {
		return err
	}
	_, err := w.Finish()
	if err != nil {
		aw.setErr(err)
	}
	return err
}

func (aw *AsyncWriter) setErr(err error) {
	aw.mu.Lock()
	if aw.firstErr == nil {
		aw.firstErr = err
	}
	aw.mu.Unlock()
	aw.errOnce.Do(func() { close(aw.errSignal) })
}

// Submit enqueues one spectrum for the worker to write. It blocks while
// the queue is full (backpressure) and returns promptly, without writing
// the spectrum, if ctx is canceled or the worker has already failed;
// in the cancellation case the spectrum is dropped and a
// warning is logged since the caller already received its own error and
// has moved on.
func (aw *AsyncWriter) Submit(ctx context.Context, s *ingest.Spectrum) error {
	select {
	case <-aw.errSignal:
		return aw.Err()
	default:
	}
	select {
	case aw.queue <- s:
		return nil
	case <-ctx.Done():
		aw.logger.Warn("mzpeak async writer: spectrum dropped, submission context canceled",
			zap.Uint32("spectrum_id", s.SpectrumID))
		return ctx.Err()
	case <-aw.errSignal:
		return aw.Err()
	}
}

// Err returns the first error the worker encountered, if the worker has
// already failed. It does not block.
func (aw *AsyncWriter) Err() error {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.firstErr
}

// Finish closes the submission queue, waits for the worker to drain it and
// finalize the archive, and returns the worker's error, if any. Finish
// must be called exactly once, after the last Submit.
func (aw *AsyncWriter) Finish() error {
	var waitErr error
	aw.closeOnce.Do(func() {
		close(aw.queue)
		waitErr = aw.group.Wait()
	})
	if err := aw.Err(); err != nil {
		return err
	}
	return waitErr
}

// Abort closes the submission queue and waits for the worker to stop. The
// worker drains what is already queued and, unless a write has failed,
// finishes the archive from the spectra submitted so far; a caller that
// aborts discards that output itself. Safe to call after Finish has
// already been called (no-op).
func (aw *AsyncWriter) Abort() {
	aw.closeOnce.Do(func() {
		close(aw.queue)
		aw.group.Wait()
	})
}

// String reports the writer's outcome so far, useful in logs.
func (aw *AsyncWriter) String() string {
	if err := aw.Err(); err != nil {
		return "mzpeak async writer (failed: " + err.Error() + ")"
	}
	return "mzpeak async writer (in progress)"
}
