package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"trading-botv1/internal/model"
)

// pendingWrite is a mirror write held back while the circuit is open.
type pendingWrite struct {
	WriteType string // "status", "signal", "position"
	Data      []byte // JSON-encoded payload
}

// BufferedWriter wraps the Redis Writer with a circuit breaker. While the
// circuit is open, status and signal mirrors are buffered locally and
// replayed when Redis comes back; the trading loop never blocks on the cache.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int

	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 64),
		maxBuf: maxBufferSize,
	}

	// Replay the buffer as soon as the circuit closes
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteStatus mirrors a per-symbol status snapshot through the breaker.
func (bw *BufferedWriter) WriteStatus(st SymbolStatus) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.SetSymbolStatus(bw.ctx, st)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("status", st)
		return nil
	}
	return err
}

// WriteSignal mirrors an emitted signal through the breaker.
func (bw *BufferedWriter) WriteSignal(rec model.SignalRecord) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.PublishSignal(bw.ctx, rec)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("signal", rec)
		return nil
	}
	return err
}

// WritePosition mirrors a position lifecycle event through the breaker.
func (bw *BufferedWriter) WritePosition(p *model.Position) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.PublishPosition(bw.ctx, p)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("position", p)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(writeType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[buffered-writer] marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full — drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pendingWrite{WriteType: writeType, Data: data})

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 64)
	bw.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		switch pw.WriteType {
		case "status":
			var st SymbolStatus
			if json.Unmarshal(pw.Data, &st) == nil {
				bw.writer.SetSymbolStatus(bw.ctx, st)
			}
		case "signal":
			var rec model.SignalRecord
			if json.Unmarshal(pw.Data, &rec) == nil {
				bw.writer.PublishSignal(bw.ctx, rec)
			}
		case "position":
			var p model.Position
			if json.Unmarshal(pw.Data, &p) == nil {
				bw.writer.PublishPosition(bw.ctx, &p)
			}
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered writes", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
