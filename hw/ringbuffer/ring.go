// Package ringbuffer models the circular buffer state machine of the offload core.
//
// A Ring has a fixed number of slots addressed by head and tail indices modulo its length.
// Push writes at head, Pop reads at tail. Both are guarded no-ops at the boundaries, matching
// the device which ignores a push while full and a pop while empty.
package ringbuffer

import (
	"errors"
	"fmt"
	"math/bits"
)

// Errors.
var (
	ErrBufferFull  = errors.New("buffer full")
	ErrBufferEmpty = errors.New("buffer empty")
)

// State is the occupancy class of a Ring.
type State int

// States.
const (
	StateEmpty State = iota
	StatePartial
	StateFull
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePartial:
		return "partial"
	case StateFull:
		return "full"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is a snapshot of ring indices and flags.
type Status struct {
	Head  int  `json:"head"`
	Tail  int  `json:"tail"`
	Full  bool `json:"full"`
	Empty bool `json:"empty"`
}

// Advance returns the index following i in a ring of length l.
func Advance(i, l int) int {
	return (i + 1) % l
}

// IndexWidth returns the number of bits needed to represent every index of a ring of length l.
func IndexWidth(l int) int {
	if l <= 1 {
		return 1
	}
	return bits.Len(uint(l - 1))
}

// Ring is a fixed-capacity circular buffer.
// It is not thread-safe.
type Ring[T any] struct {
	slots []*T
	head  int
	tail  int
	count int
}

// New creates a Ring of length l.
// It panics if l is not positive.
func New[T any](l int) *Ring[T] {
	if l <= 0 {
		panic("ringbuffer: non-positive length")
	}
	return &Ring[T]{slots: make([]*T, l)}
}

// Len returns ring length.
func (r *Ring[T]) Len() int {
	return len(r.slots)
}

// Occupancy returns the number of stored elements.
func (r *Ring[T]) Occupancy() int {
	return r.count
}

// State returns the occupancy class.
func (r *Ring[T]) State() State {
	switch r.count {
	case 0:
		return StateEmpty
	case len(r.slots):
		return StateFull
	}
	return StatePartial
}

// Status returns head, tail, and flags.
func (r *Ring[T]) Status() Status {
	return Status{
		Head:  r.head,
		Tail:  r.tail,
		Full:  r.count == len(r.slots),
		Empty: r.count == 0,
	}
}

// Push stores v at head and advances head.
// If the ring is full, it returns ErrBufferFull and leaves slots, head, and tail unchanged.
func (r *Ring[T]) Push(v T) error {
	if r.count == len(r.slots) {
		return ErrBufferFull
	}
	r.slots[r.head] = &v
	r.head = Advance(r.head, len(r.slots))
	r.count++
	return nil
}

// Pop removes the element at tail, clears its slot, and advances tail.
// If the ring is empty, it returns false and leaves slots, head, and tail unchanged.
func (r *Ring[T]) Pop() (v T, ok bool) {
	if r.count == 0 {
		return v, false
	}
	v = *r.slots[r.tail]
	r.slots[r.tail] = nil
	r.tail = Advance(r.tail, len(r.slots))
	r.count--
	return v, true
}

// PopE is like Pop but reports an empty ring as ErrBufferEmpty.
func (r *Ring[T]) PopE() (v T, e error) {
	v, ok := r.Pop()
	if !ok {
		return v, ErrBufferEmpty
	}
	return v, nil
}

// Peek returns the element at tail without removing it.
func (r *Ring[T]) Peek() (v T, ok bool) {
	if r.count == 0 {
		return v, false
	}
	return *r.slots[r.tail], true
}

// Slots returns a copy of the physical slot array.
// Unoccupied slots are nil.
func (r *Ring[T]) Slots() []*T {
	list := make([]*T, len(r.slots))
	copy(list, r.slots)
	return list
}

// Reset empties the ring and rewinds both indices to zero.
func (r *Ring[T]) Reset() {
	for i := range r.slots {
		r.slots[i] = nil
	}
	r.head, r.tail, r.count = 0, 0, 0
}
