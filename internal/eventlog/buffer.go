package eventlog

import "sync"

// Buffer is the append-only hand-off between the tick loop and the flush
// worker. Appends and drains swap under one mutex so no row is observed
// twice or lost between them.
type Buffer struct {
	mu   sync.Mutex
	rows []Row
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds a row to the tail.
func (b *Buffer) Append(r Row) {
	b.mu.Lock()
	b.rows = append(b.rows, r)
	b.mu.Unlock()
}

// Drain takes ownership of every buffered row and leaves the buffer empty.
func (b *Buffer) Drain() []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := b.rows
	b.rows = nil
	return rows
}

// Requeue puts rows that failed to persist back in front of anything
// appended since they were drained.
func (b *Buffer) Requeue(rows []Row) {
	if len(rows) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	merged := make([]Row, 0, len(rows)+len(b.rows))
	merged = append(merged, rows...)
	merged = append(merged, b.rows...)
	b.rows = merged
}

// Len reports the number of buffered rows.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}
