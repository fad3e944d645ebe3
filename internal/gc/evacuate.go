package gc

import "fmt"

func clampAge(v uint32) uint8 {
	if v > ageMask {
		return ageMask
	}
	return uint8(v)
}

// Evacuate relocates a live object out of the collection set, returning
// the canonical copy's address. Any number of workers may call this for
// the same object concurrently; exactly one copy wins.
func (h *Heap) Evacuate(c *EvacContext, obj Address) Address {
	if c.oomDuringEvac {
		// This worker went through the OOM-during-evacuation protocol; it
		// must not attempt further copies and resolves through the
		// forward slot.
		return h.ResolveForwarded(obj)
	}

	from := h.RegionContaining(obj)
	if from.IsHumongous() {
		panic(fmt.Sprintf("humongous object at %#x reached the evacuation path", obj))
	}

	targetGen := YoungGen
	if from.IsOld() {
		targetGen = OldGen
	}

	if h.activeIsYoung() && from.IsYoung() {
		if fwd := h.forwardee(obj); fwd != 0 {
			// Already forwarded.
			return fwd
		}
		if from.Age()+uint32(h.ObjectAge(obj)) >= h.cfg.TenuringThreshold {
			if result := h.tryEvacuate(c, obj, from, OldGen); result != 0 {
				return result
			}
			// Promotion failed; fall through and evacuate within young.
		}
	}
	return h.tryEvacuate(c, obj, from, targetGen)
}

// tryEvacuate copies obj toward target and races to install the forward
// pointer. It returns 0 only for a failed promotion of a young object;
// every other failure resolves through the OOM-during-evacuation protocol.
func (h *Heap) tryEvacuate(c *EvacContext, obj Address, from *Region, target GenerationName) Address {
	allocFromBuffer := true
	hasPlab := false
	var copyAddr Address
	size := h.ObjectSize(obj)
	isPromotion := target == OldGen && from.IsYoung()

	switch target {
	case YoungGen:
		copyAddr = c.allocateFromGCLab(size)
		if copyAddr == 0 && size < c.gclabSize {
			// The young evacuation reserve is running out. Reset the
			// desired buffer size and retry once, to avoid cascading into
			// shared allocations.
			c.gclabSize = h.cfg.MinBufferWords
			copyAddr = c.allocateFromGCLab(size)
		}
	case OldGen:
		hasPlab = c.plab != nil
		copyAddr = c.allocateFromPlab(size, isPromotion)
		if copyAddr == 0 && size < c.plabSize && c.plabRetriesEnabled {
			if c.plabWordsRemaining() < h.cfg.MinBufferWords {
				c.plabSize = h.cfg.MinBufferWords
				copyAddr = c.allocateFromPlab(size, isPromotion)
				if copyAddr == 0 {
					// Don't keep retrying until the next cycle succeeds.
					c.disablePlabRetries()
				}
			}
			// else: plab memory is precious; leave 0 so the shared path
			// below serves this object and the plab survives.
		}
	}

	if copyAddr == 0 {
		// Shared allocation fallback. Promoting an object no larger than
		// a minimal buffer through the shared path costs more than simply
		// evacuating it to young and promoting on a later cycle, so that
		// case deliberately declines.
		if !isPromotion || !hasPlab || size > h.cfg.MinBufferWords {
			req := ForSharedGC(size, target, isPromotion)
			if addr := h.AllocateMemory(&req); addr != 0 {
				// Old-generation grants come back already registered with
				// the remembered set.
				copyAddr = addr
				allocFromBuffer = false
			}
		}
	}

	if copyAddr == 0 {
		if target == OldGen {
			if from.IsYoung() {
				// The object stays put and simply evacuates to young on
				// this attempt's fall-through; eligible again next cycle.
				h.old.HandleFailedPromotion(size)
				return 0
			}
			// Old-to-old copy failed: a full collection must follow the
			// evacuation phase to make the heap safe again.
			h.old.HandleFailedEvacuation()
		}
		c.enterOOMDuringEvac()
		return h.ResolveForwarded(obj)
	}

	start := h.tracker.beginEvacuation()
	h.copyObjectWords(copyAddr, obj, size)

	if target == YoungGen && h.IsAgingCycle() {
		h.setObjectAge(copyAddr, clampAge(uint32(h.ObjectAge(obj))+from.Age()+1))
	}

	result := h.tryInstallForwardee(obj, copyAddr)
	if result == copyAddr {
		// Our copy is now the public one.
		h.tracker.endEvacuation(start, size)
		h.pacer.ReportEvacuation(size)
		if target == OldGen {
			if allocFromBuffer {
				h.rset.RegisterObjectWithoutLock(copyAddr)
			}
			h.old.handleEvacuation(size, from.IsYoung())
		} else if h.cfg.CensusAtEvac {
			h.tracker.recordAge(size, h.ObjectAge(copyAddr))
		}
		return result
	}

	// Lost the race; the stale copy must not be left looking like a live
	// object, or the next cycle would scan it with unupdated references.
	if allocFromBuffer {
		switch target {
		case YoungGen:
			c.gclab.Undo(copyAddr, size)
		case OldGen:
			c.plab.Undo(copyAddr, size)
			if isPromotion {
				c.subtractFromPlabPromoted(size)
			}
		}
	} else {
		// Shared allocations cannot be rolled back; overwrite with a
		// filler. The crossing-map entry recorded at allocation stays
		// valid for the filler.
		h.fillWithObject(copyAddr, size)
	}
	return result
}
