// Package satb buffers root addresses recorded while old-generation
// concurrent marking is interrupted, until a completion path drains them
// into the marking state.
package satb

import (
	"errors"
	"runtime"
	"sync/atomic"
)

var ErrInvalidCapacity = errors.New("ring capacity must be a power of two and >= 2")

type slot struct {
	sequence atomic.Uint64
	addr     uint64
}

// Ring is a lock-free MPMC bounded queue of heap addresses, using the
// sequence-based CAS scheme (Vyukov style). Any thread may publish a
// deferred root; the completion path drains them all.
type Ring struct {
	capacity uint64
	mask     uint64

	_pad0 [48]byte
	head  atomic.Uint64
	_pad1 [48]byte
	tail  atomic.Uint64
	_pad2 [48]byte

	slots []slot
}

func NewRing(capacity uint64) (*Ring, error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidCapacity
	}
	slots := make([]slot, capacity)
	for i := uint64(0); i < capacity; i++ {
		slots[i].sequence.Store(i)
	}
	return &Ring{
		capacity: capacity,
		mask:     capacity - 1,
		slots:    slots,
	}, nil
}

// Publish enqueues a deferred root, reporting false when the ring is
// full. A full ring means the publisher must process the root itself.
func (q *Ring) Publish(addr uint64) bool {
	for {
		pos := q.tail.Load()
		slot := &q.slots[pos&q.mask]
		seq := slot.sequence.Load()
		delta := int64(seq) - int64(pos)

		if delta == 0 {
			if q.tail.CompareAndSwap(pos, pos+1) {
				slot.addr = addr
				slot.sequence.Store(pos + 1)
				return true
			}
			continue
		}
		if delta < 0 {
			return false
		}
		runtime.Gosched()
	}
}

// Take dequeues one deferred root.
func (q *Ring) Take() (uint64, bool) {
	for {
		pos := q.head.Load()
		slot := &q.slots[pos&q.mask]
		seq := slot.sequence.Load()
		delta := int64(seq) - int64(pos+1)

		if delta == 0 {
			if q.head.CompareAndSwap(pos, pos+1) {
				addr := slot.addr
				slot.addr = 0
				slot.sequence.Store(pos + q.capacity)
				return addr, true
			}
			continue
		}
		if delta < 0 {
			return 0, false
		}
		runtime.Gosched()
	}
}

// Drain feeds every queued root to fn and returns how many were drained.
func (q *Ring) Drain(fn func(addr uint64)) int {
	n := 0
	for {
		addr, ok := q.Take()
		if !ok {
			return n
		}
		fn(addr)
		n++
	}
}
