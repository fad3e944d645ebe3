package gc

import "sync/atomic"

// MarkContext is the engine's view of the marking collaborator: one mark
// bit per heap word plus the per-region top-at-mark-start captured when the
// cycle began. The engine only consumes completed marking; the bitmap is
// populated by tests or by the SATB drain.
type MarkContext struct {
	bits []uint64
}

func newMarkContext(heapWords uint64) *MarkContext {
	return &MarkContext{bits: make([]uint64, (heapWords+63)/64)}
}

func (m *MarkContext) Mark(addr Address) {
	atomic.OrUint64(&m.bits[addr/64], 1<<(addr%64))
}

func (m *MarkContext) IsMarked(addr Address) bool {
	return atomic.LoadUint64(&m.bits[addr/64])>>(addr%64)&1 != 0
}

// NextMarkedAddr returns the first marked address in [addr, limit), or
// limit when there is none.
func (m *MarkContext) NextMarkedAddr(addr, limit Address) Address {
	for a := addr; a < limit; a++ {
		word := atomic.LoadUint64(&m.bits[a/64]) >> (a % 64)
		if word == 0 {
			// Skip the rest of this bitmap word.
			a = alignUp(a+1, 64) - 1
			continue
		}
		if word&1 != 0 {
			return a
		}
	}
	return limit
}

func (m *MarkContext) reset() {
	clear(m.bits)
}
