// Package reorder restores segment order from out-of-order worker completions
// and streams the result to storage in bounded chunks.
package reorder

import (
	"errors"
	"fmt"
	"sync"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
)

var (
	ErrIndexOutOfRange = errors.New("segment index out of range")
	ErrSlotFilled      = errors.New("segment result already deposited")
)

type slotState uint8

const (
	slotPending slotState = iota
	slotFilled
	slotFreed
)

// Buffer is a slot array parallel to the segments of one run plus a cursor at
// the first segment not yet drained. Each slot moves pending -> filled -> freed
// exactly once. Buffer is safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	states []slotState
	rows   [][]da.DensifiedRow
	next   int
}

func NewBuffer(numSegments int) *Buffer {
	return &Buffer{
		states: make([]slotState, numSegments),
		rows:   make([][]da.DensifiedRow, numSegments),
	}
}

// Deposit stores the rows of segment index. A failed segment is deposited with
// no rows so the cursor can move past it.
func (b *Buffer) Deposit(index int, rows []da.DensifiedRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.states) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(b.states))
	}
	if b.states[index] != slotPending {
		return fmt.Errorf("%w: segment %d", ErrSlotFilled, index)
	}

	b.states[index] = slotFilled
	b.rows[index] = rows
	return nil
}

// DrainReadyPrefix frees every filled slot from the cursor onward up to the
// first pending one and returns their rows in segment order.
func (b *Buffer) DrainReadyPrefix() [][]da.DensifiedRow {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ready [][]da.DensifiedRow
	for b.next < len(b.states) && b.states[b.next] == slotFilled {
		ready = append(ready, b.rows[b.next])
		b.rows[b.next] = nil
		b.states[b.next] = slotFreed
		b.next++
	}
	return ready
}

// Next is the index of the first segment not yet drained.
func (b *Buffer) Next() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

func (b *Buffer) Len() int {
	return len(b.states)
}

// Done reports whether every segment has been drained.
func (b *Buffer) Done() bool {
	return b.Next() == b.Len()
}
