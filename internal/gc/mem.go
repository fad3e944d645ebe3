package gc

import (
	"fmt"
	"sync/atomic"
)

// Address is a word index into the heap store. Address 0 is nil.
type Address = uint64

// An object is a two-word header followed by payload. The first header word
// packs {size in words including the header, age, leading reference count,
// filler flag}; the second is the forward slot. The first `refs` payload
// words hold addresses of other objects, the rest is opaque data.

func packHeader(sizeWords uint64, age uint8, refs uint16, filler bool) uint64 {
	if sizeWords > sizeMask {
		panic(fmt.Sprintf("object size %d exceeds header capacity", sizeWords))
	}
	h := sizeWords | uint64(age)<<ageShift | uint64(refs)<<refsShift
	if filler {
		h |= 1 << fillShift
	}
	return h
}

func headerSize(h uint64) uint64 { return h & sizeMask }
func headerAge(h uint64) uint8   { return uint8((h >> ageShift) & ageMask) }
func headerRefs(h uint64) uint16 { return uint16((h >> refsShift) & refsMask) }
func headerFiller(h uint64) bool { return (h>>fillShift)&1 != 0 }

func (h *Heap) header(obj Address) uint64 { return h.mem[obj] }

// ObjectSize returns the object's total size in words, header included.
func (h *Heap) ObjectSize(obj Address) uint64 { return headerSize(h.mem[obj]) }

func (h *Heap) ObjectAge(obj Address) uint8 { return headerAge(h.mem[obj]) }

func (h *Heap) ObjectRefs(obj Address) uint16 { return headerRefs(h.mem[obj]) }

func (h *Heap) IsFiller(obj Address) bool { return headerFiller(h.mem[obj]) }

func (h *Heap) setObjectAge(obj Address, age uint8) {
	hdr := h.mem[obj]
	h.mem[obj] = hdr&^(uint64(ageMask)<<ageShift) | uint64(age)<<ageShift
}

// WriteObject lays down an object header at obj and returns its size.
// refValues, if any, populate the leading payload words.
func (h *Heap) WriteObject(obj Address, sizeWords uint64, age uint8, refValues ...Address) uint64 {
	if sizeWords < MinFillWords {
		panic("object below minimum size")
	}
	if uint64(len(refValues)) > sizeWords-HeaderWords {
		panic("more references than payload words")
	}
	h.mem[obj] = packHeader(sizeWords, age, uint16(len(refValues)), false)
	h.mem[obj+forwardSlot] = 0
	for i, r := range refValues {
		h.mem[obj+HeaderWords+uint64(i)] = r
	}
	return sizeWords
}

// fillWithObject overwrites [addr, addr+sizeWords) with a filler object so
// the range stays linearly walkable.
func (h *Heap) fillWithObject(addr Address, sizeWords uint64) {
	if sizeWords < MinFillWords {
		panic(fmt.Sprintf("filler of %d words below minimum fill size", sizeWords))
	}
	h.mem[addr] = packHeader(sizeWords, 0, 0, true)
	h.mem[addr+forwardSlot] = 0
}

// forwardee returns the canonical copy's address, or 0 when the object has
// not been forwarded. The forward slot is written with CAS only, so a plain
// atomic load observes either 0 or the final value.
func (h *Heap) forwardee(obj Address) Address {
	return atomic.LoadUint64(&h.mem[obj+forwardSlot])
}

// ResolveForwarded follows the forward slot once. Forwarding is installed
// at most once per cycle, so a single hop suffices.
func (h *Heap) ResolveForwarded(obj Address) Address {
	if fwd := h.forwardee(obj); fwd != 0 {
		return fwd
	}
	return obj
}

// tryInstallForwardee publishes copy as the canonical relocation of obj.
// Exactly one caller wins; everyone gets the winning copy back.
func (h *Heap) tryInstallForwardee(obj, copyAddr Address) Address {
	if atomic.CompareAndSwapUint64(&h.mem[obj+forwardSlot], 0, copyAddr) {
		return copyAddr
	}
	return atomic.LoadUint64(&h.mem[obj+forwardSlot])
}

// copyObjectWords copies header and payload but not the forward slot: the
// source's slot may be concurrently CASed by a racing evacuator, and the
// copy's slot must start out clear.
func (h *Heap) copyObjectWords(dst, src Address, sizeWords uint64) {
	h.mem[dst] = h.mem[src]
	h.mem[dst+forwardSlot] = 0
	copy(h.mem[dst+HeaderWords:dst+sizeWords], h.mem[src+HeaderWords:src+sizeWords])
}

func (h *Heap) zeroWords(addr Address, n uint64) {
	clear(h.mem[addr : addr+n])
}
