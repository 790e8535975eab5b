package reorder

import (
	"errors"
	"fmt"
	"sync"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/metrics"
	"go.uber.org/zap"
)

const DefaultFlushThreshold = 10000

var ErrIncomplete = errors.New("writer closed before every segment was accounted for")

// Sink receives flushed rows in chronological order. Implementations must not
// keep a reference to rows after WriteRows returns.
type Sink interface {
	WriteRows(rows []da.DensifiedRow) error
}

// Writer absorbs segment results in completion order, drains the contiguous
// ready prefix of the reorder buffer into an accumulation buffer and flushes it
// to the sink whenever it reaches the flush threshold.
type Writer struct {
	mu        sync.Mutex
	buf       *Buffer
	pending   []da.DensifiedRow
	threshold int
	sink      Sink
	metrics   *metrics.Pipeline
	log       *zap.Logger

	rowsWritten int
	flushes     int
	failed      int
	closed      bool
}

func NewWriter(numSegments, flushThreshold int, sink Sink, log *zap.Logger) *Writer {
	if flushThreshold <= 0 {
		flushThreshold = DefaultFlushThreshold
	}
	return &Writer{
		buf:       NewBuffer(numSegments),
		pending:   make([]da.DensifiedRow, 0, flushThreshold),
		threshold: flushThreshold,
		sink:      sink,
		log:       log,
	}
}

func (w *Writer) SetMetrics(m *metrics.Pipeline) {
	w.metrics = m
}

// Absorb records one segment result. Rows of a result carrying an error are
// discarded; the segment still advances the cursor with zero rows.
func (w *Writer) Absorb(res da.SegmentResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows := res.Rows
	if res.Err != nil {
		rows = nil
	}
	if err := w.buf.Deposit(res.Index, rows); err != nil {
		return err
	}
	if res.Failed() {
		w.failed++
	}

	for _, segmentRows := range w.buf.DrainReadyPrefix() {
		w.pending = append(w.pending, segmentRows...)
		if len(w.pending) >= w.threshold {
			if err := w.flushLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}

	da.SortRowsByTime(w.pending)
	if err := w.sink.WriteRows(w.pending); err != nil {
		return fmt.Errorf("flush %d rows: %w", len(w.pending), err)
	}

	w.rowsWritten += len(w.pending)
	w.flushes++
	w.metrics.RowsWritten(len(w.pending))
	w.log.Debug("flushed rows",
		zap.Int("rows", len(w.pending)),
		zap.Int("next_segment", w.buf.Next()),
		zap.Int("rows_written", w.rowsWritten))

	w.pending = w.pending[:0]
	return nil
}

// Close flushes whatever is left. It returns ErrIncomplete if some segment
// never reported a result; the rows before that gap have been written.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.flushLocked(); err != nil {
		return err
	}
	if !w.buf.Done() {
		return fmt.Errorf("%w: next segment %d of %d", ErrIncomplete, w.buf.Next(), w.buf.Len())
	}
	return nil
}

type WriterStats struct {
	RowsWritten int
	Flushes     int
	Failed      int
}

func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriterStats{
		RowsWritten: w.rowsWritten,
		Flushes:     w.flushes,
		Failed:      w.failed,
	}
}
