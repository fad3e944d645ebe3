package gc

// AllocRequest describes one shared (non-buffer) or buffer allocation.
// Sizes are in words. Buffer grants may be adjusted downward to a
// card-aligned size no smaller than MinSize; ActualSize reports the grant.
type AllocRequest struct {
	MinSize     uint64
	Size        uint64
	Generation  GenerationName
	IsPromotion bool
	IsBuffer    bool

	actual uint64
}

// ForSharedGC builds a request for a single evacuation or promotion copy.
func ForSharedGC(size uint64, gen GenerationName, isPromotion bool) AllocRequest {
	return AllocRequest{MinSize: size, Size: size, Generation: gen, IsPromotion: isPromotion}
}

// ForBuffer builds a request for a new thread-local allocation buffer.
func ForBuffer(minSize, size uint64, gen GenerationName) AllocRequest {
	return AllocRequest{MinSize: minSize, Size: size, Generation: gen, IsBuffer: true}
}

func (r *AllocRequest) ActualSize() uint64 { return r.actual }

// FreeSet is the region free-list allocator behind shared and buffer
// allocation requests. All methods require the heap lock unless noted.
type FreeSet struct {
	heap *Heap

	// Free regions by owning generation's capacity pool.
	free [2][]int

	// Young free regions set aside to hold evacuation copies. Released
	// back to the mutator pool once the recycled collection set can
	// supply the reserve instead.
	collectorReserve []int

	// Current allocation region per generation.
	current [2]*Region
}

func newFreeSet(h *Heap) *FreeSet {
	return &FreeSet{heap: h}
}

func (fs *FreeSet) addFreeRegion(r *Region) {
	owner := GenerationName(r.owner.Load())
	fs.free[owner] = append(fs.free[owner], r.index)
}

// ReserveCollectorRegions moves up to n free young regions into the
// collector reserve, returning how many moved.
func (fs *FreeSet) ReserveCollectorRegions(n int) int {
	moved := 0
	for moved < n && len(fs.free[YoungGen]) > 0 {
		last := len(fs.free[YoungGen]) - 1
		fs.collectorReserve = append(fs.collectorReserve, fs.free[YoungGen][last])
		fs.free[YoungGen] = fs.free[YoungGen][:last]
		moved++
	}
	return moved
}

// MoveCollectorSetsToMutator returns up to n collector-reserved regions to
// the general pool. Called by the first update-refs worker once the
// recycled collection set replaces the reserve.
func (fs *FreeSet) MoveCollectorSetsToMutator(n uint64) uint64 {
	moved := uint64(0)
	for moved < n && len(fs.collectorReserve) > 0 {
		last := len(fs.collectorReserve) - 1
		fs.free[YoungGen] = append(fs.free[YoungGen], fs.collectorReserve[last])
		fs.collectorReserve = fs.collectorReserve[:last]
		moved++
	}
	return moved
}

func (fs *FreeSet) CollectorReserveCount() int { return len(fs.collectorReserve) }
func (fs *FreeSet) MutatorFreeCount() int      { return len(fs.free[YoungGen]) }

// FreeUnaffiliatedRegions counts free regions owned by gen's capacity
// pool, collector reserve included.
func (fs *FreeSet) FreeUnaffiliatedRegions(gen GenerationName) uint64 {
	n := uint64(len(fs.free[gen]))
	if gen == YoungGen {
		n += uint64(len(fs.collectorReserve))
	}
	return n
}

func (fs *FreeSet) takeFreeRegion(gen GenerationName) *Region {
	if gen == YoungGen && len(fs.collectorReserve) > 0 {
		last := len(fs.collectorReserve) - 1
		idx := fs.collectorReserve[last]
		fs.collectorReserve = fs.collectorReserve[:last]
		return fs.heap.regions[idx]
	}
	if len(fs.free[gen]) == 0 {
		return nil
	}
	last := len(fs.free[gen]) - 1
	idx := fs.free[gen][last]
	fs.free[gen] = fs.free[gen][:last]
	return fs.heap.regions[idx]
}

// retireCurrent seals the active allocation region of gen, filling the
// unused tail so the region stays walkable.
func (fs *FreeSet) retireCurrent(gen GenerationName) {
	r := fs.current[gen]
	if r == nil {
		return
	}
	if tail := r.freeWords(); tail >= MinFillWords {
		top := r.Top()
		fs.heap.fillWithObject(top, tail)
		if r.IsOld() {
			fs.heap.rset.RegisterObjectWithoutLock(top)
		}
		r.SetTop(r.End())
		fs.heap.generationAccount(gen).increaseUsed(tail)
	}
	fs.current[gen] = nil
}

// Allocate satisfies req from the free set, returning 0 on exhaustion.
// Caller holds the heap lock or runs at a safepoint.
func (fs *FreeSet) Allocate(req *AllocRequest) Address {
	gen := fs.heap.generation(req.Generation)
	if gen.Available() < req.MinSize {
		return 0
	}
	if req.IsPromotion && !req.IsBuffer {
		old := fs.heap.old
		if old.PromotedExpended()+req.Size > old.PromotedReserve() {
			return 0
		}
	}

	addr, granted := fs.carve(req)
	if addr == 0 {
		return 0
	}
	req.actual = granted
	if req.Generation == OldGen && !req.IsBuffer {
		// Shared grants are not card-aligned, so the crossing map must be
		// written while the heap lock still serializes allocations into
		// the same card.
		fs.heap.rset.RegisterObjectWithoutLock(addr)
	}
	fs.heap.generationAccount(req.Generation).increaseUsed(granted)
	if req.IsPromotion && !req.IsBuffer {
		fs.heap.old.ExpendPromoted(granted)
	}
	return addr
}

func (fs *FreeSet) carve(req *AllocRequest) (Address, uint64) {
	for attempt := 0; attempt < 2; attempt++ {
		r := fs.current[req.Generation]
		if r == nil {
			r = fs.takeFreeRegion(req.Generation)
			if r == nil {
				return 0, 0
			}
			fs.activate(r, req.Generation)
			fs.current[req.Generation] = r
		}

		granted := req.Size
		addr := r.Top()
		space := r.freeWords()
		if req.IsBuffer {
			// Buffers must start card-aligned so retirement can register
			// fillers without a lock. Pad up to the next card boundary,
			// widening the pad by a whole card when it is too small to
			// hold a filler object.
			cardWords := fs.heap.rset.CardWords()
			pad := alignUp(addr, cardWords) - addr
			if pad > 0 && pad < MinFillWords {
				pad += cardWords
			}
			if pad >= space {
				fs.retireCurrent(req.Generation)
				continue
			}
			if pad > 0 {
				fs.heap.fillWithObject(addr, pad)
				if r.IsOld() {
					fs.heap.rset.RegisterObjectWithoutLock(addr)
				}
				fs.heap.generationAccount(req.Generation).increaseUsed(pad)
				addr += pad
				space -= pad
				r.SetTop(addr)
			}
			granted = alignDown(min(req.Size, space), cardWords)
		}
		if granted >= req.MinSize && granted <= space {
			r.SetTop(addr + granted)
			return addr, granted
		}

		// Current region cannot serve even the minimum: seal it and retry
		// once with a fresh region.
		fs.retireCurrent(req.Generation)
	}
	return 0, 0
}

func (fs *FreeSet) activate(r *Region, gen GenerationName) {
	affiliation := YoungAffiliation
	if gen == OldGen {
		affiliation = OldAffiliation
	}
	r.SetAffiliation(affiliation)
	r.SetActive(true)
	r.SetUpdateWatermark(r.Bottom())
}
