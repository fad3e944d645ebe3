package gc

// CompleteDegeneratedCycle finishes a cycle whose concurrent phases were
// interrupted. Runs at a safepoint.
func (h *Heap) CompleteDegeneratedCycle() TransferResult {
	if h.IsOldMarkInProgress() {
		// The degeneration point may land after final mark of young while
		// old marking is still mid-flight; deferred root entries must
		// reach the marking state before anyone walks old memory.
		h.DrainDeferredRoots()
	}

	// Generation resizing is deferred until the collection set regions
	// have been recycled.
	result := h.BalanceGenerations()

	// Degeneration may have interrupted evacuation or update-refs;
	// clear the transient reserve state either way.
	h.ResetGenerationReserves()

	if !h.old.IsParseable() {
		h.CoalesceAndFillOldRegions()
	}
	return result
}

// CompleteConcurrentCycle finishes a cycle that ran its concurrent phases
// to the end.
func (h *Heap) CompleteConcurrentCycle() TransferResult {
	if !h.old.IsParseable() {
		// Make old memory walkable now, outside the heap lock: under
		// memory pressure there may be no window to do it before the
		// next young cycle needs to scan the remembered set.
		h.CoalesceAndFillOldRegions()
	}

	h.lock.Lock()
	result := h.balanceGenerationsLocked()
	h.ResetGenerationReserves()
	h.lock.Unlock()
	return result
}

// DrainDeferredRoots moves root entries published while old marking was
// interrupted into the marking state.
func (h *Heap) DrainDeferredRoots() int {
	return h.deferredRoots.Drain(func(addr uint64) {
		h.marks.Mark(addr)
	})
}

// CoalesceAndFillOldRegions pads the unmarked gaps of every active,
// non-collection-set, non-humongous old region with filler objects so old
// memory becomes linearly walkable, then marks the old generation
// parseable. Deliberately not cancellable: a partially linearized old
// generation would be unsafe to walk.
func (h *Heap) CoalesceAndFillOldRegions() {
	regions := NewRegionIterator(h)
	runWorkers(h.cfg.Workers, func(int) {
		for r := regions.Next(); r != nil; r = regions.Next() {
			if r.IsOld() && r.IsActive() && !r.IsHumongous() && !r.IsCset() {
				h.coalesceAndFillRegion(r)
			}
		}
	})
	h.old.SetParseable(true)
}

// coalesceAndFillRegion rebuilds the crossing map for [bottom, TAMS) from
// the mark bitmap, replacing dead gaps with fillers.
func (h *Heap) coalesceAndFillRegion(r *Region) {
	tams := r.TAMS()
	if tams == r.Bottom() {
		return
	}
	h.rset.clearCrossingRange(r.Bottom(), tams)

	addr := r.Bottom()
	for addr < tams {
		if h.marks.IsMarked(addr) {
			h.rset.RegisterObjectWithoutLock(addr)
			addr += h.ObjectSize(addr)
			continue
		}
		next := h.marks.NextMarkedAddr(addr, tams)
		h.fillWithObject(addr, next-addr)
		h.rset.RegisterObjectWithoutLock(addr)
		addr = next
	}
}

// UpdateRegionAges runs at the end of a marking phase: young regions that
// allocated past their mark start lose their age, the rest grow older
// during aging cycles.
func (h *Heap) UpdateRegionAges() {
	for _, r := range h.regions {
		if !r.IsActive() || !r.IsYoung() {
			continue
		}
		if r.Top() > r.TAMS() {
			r.ResetAge()
		} else if h.IsAgingCycle() {
			r.IncrementAge()
		}
	}
}
