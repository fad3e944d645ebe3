package gc

import (
	"fmt"
	"sync/atomic"
)

// refUpdater rewrites one reference slot to the referent's forwarded
// location. Two variants exist: the concurrent one uses atomic accesses
// because mutators may race on the slot, the stop-the-world one uses
// plain loads and stores.
type refUpdater func(h *Heap, slot Address)

func updateRefSlotSTW(h *Heap, slot Address) {
	ref := h.mem[slot]
	if ref == 0 {
		return
	}
	if fwd := h.ResolveForwarded(ref); fwd != ref {
		h.mem[slot] = fwd
	}
}

func updateRefSlotConcurrent(h *Heap, slot Address) {
	ref := atomic.LoadUint64(&h.mem[slot])
	if ref == 0 {
		return
	}
	if fwd := h.ResolveForwarded(ref); fwd != ref {
		atomic.StoreUint64(&h.mem[slot], fwd)
	}
}

func updateObjectRefs(h *Heap, obj Address, update refUpdater) {
	refs := uint64(h.ObjectRefs(obj))
	for i := uint64(0); i < refs; i++ {
		update(h, obj+HeaderWords+i)
	}
}

// UpdateHeapReferences rewrites every surviving reference to point at its
// forwarded target. Evacuation must be complete and all forwarding
// pointers stable. The concurrent flag is a runtime strategy switch, not
// a separate code path.
func (h *Heap) UpdateHeapReferences(concurrent bool) {
	regions := NewRegionIterator(h)
	chunks := NewChunkIterator(h, h.cfg.ChunkWords)
	runWorkers(h.cfg.Workers, func(worker int) {
		h.updateRefsWorker(worker, regions, chunks, concurrent)
	})
}

func (h *Heap) updateRefsWorker(worker int, regions *RegionIterator, chunks *ChunkIterator, concurrent bool) {
	update := updateRefSlotSTW
	if concurrent {
		update = updateRefSlotConcurrent
	}

	if concurrent && worker == 0 {
		// Replenish the mutator free set from the collector reserve: the
		// collection set being recycled supplies the reserve from here
		// on, so those regions are no longer needed. No more regions may
		// move than the recycling will reclaim.
		csetRegions := h.CollectionSetCount()
		h.lock.Lock()
		h.free.MoveCollectorSetsToMutator(csetRegions)
		h.lock.Unlock()
	}

	global := h.Cycle() == GlobalCycle
	isMixed := h.CollectionSetHasOldRegions()

	for r := regions.Next(); r != nil; r = regions.Next() {
		watermark := r.UpdateWatermark()
		progress := false
		if r.IsActive() && !r.IsCset() {
			switch {
			case r.IsYoung():
				h.markedObjectIterate(r, watermark, update)
				progress = true
			case r.IsOld():
				if global {
					// Global cycles parcel out whole old regions; there
					// is no remembered-set catchup phase to rebalance.
					h.markedObjectIterate(r, watermark, update)
					progress = true
				}
				// Otherwise this old region is processed in chunks below.
			default:
				// A FREE region can become active while this loop runs,
				// with the affiliation store trailing the active store.
				// Such a region holds nothing to update yet.
				if watermark != r.Bottom() {
					panic(fmt.Sprintf("region %d active without affiliation but has a watermark", r.Index()))
				}
			}
		}
		if progress {
			h.pacer.ReportUpdateRefs(watermark - r.Bottom())
		}
		if h.IsCancelled() {
			return
		}
	}

	if global {
		return
	}

	// Old regions in a young or mixed cycle are processed as fixed-size
	// chunks: finer-grained than whole regions, so workers that fell
	// behind on the direct scan catch up here.
	for !h.IsCancelled() {
		chunk, ok := chunks.Next()
		if !ok {
			return
		}
		r := chunk.Region
		if !r.IsActive() || r.IsCset() || !r.IsOld() {
			continue
		}
		start := r.Bottom() + chunk.OffsetWords
		end := r.UpdateWatermark()
		if end > start+chunk.SizeWords {
			end = start + chunk.SizeWords
		}
		if start >= end {
			continue
		}

		switch {
		case r.IsHumongous():
			// A mixed cycle must examine the whole slice no matter which
			// cards are marked.
			h.humongousSliceIterate(r, start, end, update)
		case isMixed:
			// Uncollected old regions have not been coalesced into single
			// live ranges; use the mark bitmap to find survivors.
			h.mixedChunkIterate(r, start, end, update)
		default:
			// Young-only cycle: the dirty-card map says which clusters
			// can hold cross-generation pointers at all.
			clusterWords := h.rset.CardWords() * CardsPerCluster
			clusters := (chunk.SizeWords + clusterWords - 1) / clusterWords
			h.rset.ProcessRegionSlice(r, chunk.OffsetWords, clusters, end, func(obj Address) {
				updateObjectRefs(h, obj, update)
			})
		}
		h.pacer.ReportUpdateRefs(end - start)
	}
}

// markedObjectIterate visits every live object in [r.Bottom(), limit):
// below TAMS the mark bitmap decides liveness, above it everything was
// allocated during the cycle and is live by construction.
func (h *Heap) markedObjectIterate(r *Region, limit Address, update refUpdater) {
	tams := r.TAMS()
	addr := r.Bottom()
	for addr < limit {
		if addr < tams && !h.marks.IsMarked(addr) {
			addr = h.marks.NextMarkedAddr(addr, tams)
			continue
		}
		size := h.ObjectSize(addr)
		if size == 0 {
			panic(fmt.Sprintf("zero-sized object at %#x during update refs", addr))
		}
		if !h.IsFiller(addr) {
			updateObjectRefs(h, addr, update)
		}
		addr += size
	}
}

// humongousSliceIterate updates the slots of the region's single spanning
// object that fall within [start, end).
func (h *Heap) humongousSliceIterate(r *Region, start, end Address, update refUpdater) {
	obj := r.Bottom()
	refs := uint64(h.ObjectRefs(obj))
	lo := max(obj+HeaderWords, start)
	hi := min(obj+HeaderWords+refs, end)
	for slot := lo; slot < hi; slot++ {
		update(h, slot)
	}
}

// mixedChunkIterate walks the marked objects whose start lies in
// [start, end). Objects starting at or above TAMS are found through the
// remembered set's crossing map, since the mark bitmap does not cover
// them.
func (h *Heap) mixedChunkIterate(r *Region, start, end Address, update refUpdater) {
	tams := r.TAMS()
	p := start
	if p >= tams {
		card := h.rset.CardIndexForAddr(p)
		for {
			if first := h.rset.FirstObjectInCard(card); first != 0 && first >= p {
				p = first
				break
			}
			if h.rset.AddrForCardIndex(card+1) < end {
				card++
				continue
			}
			p = end
			break
		}
	} else if !h.marks.IsMarked(p) {
		// Returns TAMS when no marked object remains; TAMS is either
		// past end or the start of a marked object.
		p = h.marks.NextMarkedAddr(p, tams)
	}

	for p < end {
		if !h.IsFiller(p) {
			updateObjectRefs(h, p, update)
		}
		prev := p
		p += h.ObjectSize(p)
		if p < tams {
			p = h.marks.NextMarkedAddr(p, tams)
		}
		if p == prev {
			panic("lack of forward progress in mixed chunk walk")
		}
	}
}
