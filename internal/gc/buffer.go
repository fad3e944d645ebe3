package gc

// AllocBuffer is a thread-local, card-aligned bump allocator for
// evacuation and promotion copies. Exactly one worker owns a buffer, so
// allocation takes no synchronization; the forwarding CAS is the only
// cross-thread point in the copy path.
type AllocBuffer struct {
	base   Address
	top    Address
	end    Address
	actual uint64 // granted size in words
	inOld  bool
}

func newAllocBuffer(base Address, words uint64, inOld bool) *AllocBuffer {
	return &AllocBuffer{base: base, top: base, end: base + words, actual: words, inOld: inOld}
}

func (b *AllocBuffer) Base() Address      { return b.base }
func (b *AllocBuffer) ActualSize() uint64 { return b.actual }
func (b *AllocBuffer) WordsRemaining() uint64 {
	return b.end - b.top
}

// Allocate bump-allocates size words, returning 0 when the buffer cannot
// hold them. An allocation never leaves a tail too small to hold a filler
// object, so retirement can always make the buffer walkable.
func (b *AllocBuffer) Allocate(size uint64) Address {
	left := b.end - b.top
	if left < size || (left-size > 0 && left-size < MinFillWords) {
		return 0
	}
	addr := b.top
	b.top += size
	return addr
}

// Undo rolls back the most recent allocation. Only the top allocation can
// be undone; this is how a losing evacuation returns its stale copy to
// the buffer.
func (b *AllocBuffer) Undo(addr Address, size uint64) {
	if addr+size != b.top {
		panic("undo of non-top buffer allocation")
	}
	b.top = addr
}

// retire seals the buffer: the unused tail is overwritten with a filler
// object so the backing region stays walkable, and — when the buffer sits
// in old-generation tracked memory — the filler is registered with the
// remembered-set scanner so card walks can skip it. Returns the number of
// wasted (filled) words.
func (b *AllocBuffer) retire(h *Heap) uint64 {
	tail := b.end - b.top
	if tail == 0 {
		return 0
	}
	if tail < MinFillWords {
		panic("buffer tail below minimum fill size")
	}
	h.fillWithObject(b.top, tail)
	if b.inOld {
		h.rset.RegisterObjectWithoutLock(b.top)
	}
	b.top = b.end
	return tail
}
