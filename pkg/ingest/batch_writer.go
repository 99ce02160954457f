package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/japaniel/yomikomi/pkg/db"
)

// InsertFunc stores one batch. It matches db.Store.InsertBatch.
type InsertFunc func(ctx context.Context, batch []db.Sentence) (db.BatchResult, error)

// Pending is a record waiting in the BatchWriter buffer.
type Pending struct {
	Ref      string
	Sentence db.Sentence
}

// Flushed is the outcome of one flush. When Err is set the whole batch failed
// and none of Records was stored; otherwise Result holds the per-record outcome.
type Flushed struct {
	Records []Pending
	Result  db.BatchResult
	Err     error
}

// BatchWriter buffers records and stores them in batches, flushing when the
// buffer reaches its capacity or when the oldest buffered record has waited
// longer than the flush interval. It is owned by a single goroutine; OnFlush
// runs synchronously on that goroutine.
type BatchWriter struct {
	insert        InsertFunc
	cap           int
	flushInterval time.Duration
	// CommitTimeout bounds each InsertFunc call; 0 means no bound beyond the caller's context.
	CommitTimeout time.Duration
	OnFlush       func(Flushed)

	buf     []Pending
	oldest  time.Time
	closed  bool
	lastErr error
	now     func() time.Time
}

// NewBatchWriter creates a new BatchWriter.
// insert: stores one batch, usually db.Store.InsertBatch.
// bufferSize: flush when buffer reaches this size.
// flushInterval: flush once the oldest record is this old (0 to disable).
func NewBatchWriter(insert InsertFunc, bufferSize int, flushInterval time.Duration) *BatchWriter {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	return &BatchWriter{
		insert:        insert,
		cap:           bufferSize,
		flushInterval: flushInterval,
		buf:           make([]Pending, 0, bufferSize),
		now:           time.Now,
	}
}

// Submit buffers p and flushes if the batch is full or stale.
func (bw *BatchWriter) Submit(ctx context.Context, p Pending) error {
	if bw.closed {
		return ErrBatchWriterClosed
	}
	if len(bw.buf) == 0 {
		bw.oldest = bw.now()
	}
	bw.buf = append(bw.buf, p)
	if len(bw.buf) >= bw.cap || bw.stale() {
		bw.Flush(ctx)
	}
	return nil
}

// Len is the number of buffered records.
func (bw *BatchWriter) Len() int { return len(bw.buf) }

func (bw *BatchWriter) stale() bool {
	return bw.flushInterval > 0 && len(bw.buf) > 0 && bw.now().Sub(bw.oldest) >= bw.flushInterval
}

// FlushIfStale flushes when the oldest buffered record has outlived the flush interval.
func (bw *BatchWriter) FlushIfStale(ctx context.Context) {
	if bw.stale() {
		bw.Flush(ctx)
	}
}

// Flush stores the buffered records and reports the outcome through OnFlush.
// A done ctx fails the batch with ErrCanceled without calling insert.
func (bw *BatchWriter) Flush(ctx context.Context) {
	if len(bw.buf) == 0 {
		return
	}
	batch := bw.buf
	bw.buf = make([]Pending, 0, bw.cap)

	f := Flushed{Records: batch}
	if err := ctx.Err(); err != nil {
		f.Err = fmt.Errorf("%w: %v", ErrCanceled, err)
	} else {
		f.Result, f.Err = bw.executeBatch(ctx, batch)
		if f.Err != nil {
			if ctx.Err() != nil {
				f.Err = fmt.Errorf("%w: %v", ErrCanceled, f.Err)
			} else {
				f.Err = fmt.Errorf("%w: batch of %d: %v", ErrPersistence, len(batch), f.Err)
			}
		}
	}
	if f.Err != nil && bw.lastErr == nil {
		bw.lastErr = f.Err
	}
	if bw.OnFlush != nil {
		bw.OnFlush(f)
	}
}

func (bw *BatchWriter) executeBatch(ctx context.Context, batch []Pending) (db.BatchResult, error) {
	if bw.CommitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bw.CommitTimeout)
		defer cancel()
	}
	sentences := make([]db.Sentence, len(batch))
	for i, p := range batch {
		sentences[i] = p.Sentence
	}
	return bw.insert(ctx, sentences)
}

// Close flushes what is left and returns the first batch error seen, if any.
func (bw *BatchWriter) Close(ctx context.Context) error {
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.closed = true
	bw.Flush(ctx)
	return bw.lastErr
}

var ErrBatchWriterClosed = &BatchWriterError{"batch writer closed"}

type BatchWriterError struct{ msg string }

func (e *BatchWriterError) Error() string { return e.msg }
