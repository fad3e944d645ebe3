package gc

// RememberedSet tracks which card-sized word ranges may hold interesting
// pointers, plus a crossing map recording the first object that starts in
// each card. Buffers and regions are card-aligned, so single-owner writes
// to the crossing map never contend; shared old-generation grants are the
// exception and register under the heap lock.
type RememberedSet struct {
	heap      *Heap
	cardWords uint64

	dirty []atomicByte

	// firstObject[c] is 1+offset-in-card of the first object starting in
	// card c, or 0 when no object starts there.
	firstObject []atomicByte
}

// atomicByte is a byte flag written with plain stores from the single
// owner of a card range and read by scanners after a phase boundary. It is
// widened to uint32 so racing writers to *different* cards never share a
// memory word under the race detector.
type atomicByte struct{ v uint32 }

func newRememberedSet(h *Heap, cardWords uint64) *RememberedSet {
	if cardWords == 0 || cardWords&(cardWords-1) != 0 {
		panic("card size must be a power of two")
	}
	cards := uint64(len(h.mem)) / cardWords
	return &RememberedSet{
		heap:        h,
		cardWords:   cardWords,
		dirty:       make([]atomicByte, cards),
		firstObject: make([]atomicByte, cards),
	}
}

func (rs *RememberedSet) CardWords() uint64 { return rs.cardWords }

func (rs *RememberedSet) CardIndexForAddr(addr Address) uint64 {
	return addr / rs.cardWords
}

func (rs *RememberedSet) AddrForCardIndex(card uint64) Address {
	return card * rs.cardWords
}

// FirstObjectInCard returns the address of the first object starting
// within the card, or 0 when no object starts there.
func (rs *RememberedSet) FirstObjectInCard(card uint64) Address {
	off := rs.firstObject[card].v
	if off == 0 {
		return 0
	}
	return rs.AddrForCardIndex(card) + uint64(off-1)
}

// RegisterObjectWithoutLock records addr in the crossing map. Callers
// either own the card range they register into (card-aligned buffers
// guarantee this) or hold the heap lock (shared old-generation grants are
// registered by the allocator), so no lock is taken here.
func (rs *RememberedSet) RegisterObjectWithoutLock(addr Address) {
	card := rs.CardIndexForAddr(addr)
	off := uint32(addr-rs.AddrForCardIndex(card)) + 1
	if cur := rs.firstObject[card].v; cur == 0 || off < cur {
		rs.firstObject[card].v = off
	}
}

// clearCrossingRange drops crossing-map entries for every card starting
// within [start, end), ahead of re-registering the range's survivors.
func (rs *RememberedSet) clearCrossingRange(start, end Address) {
	for c := rs.CardIndexForAddr(start); c < rs.CardIndexForAddr(end-1)+1; c++ {
		rs.firstObject[c].v = 0
	}
}

func (rs *RememberedSet) MarkRangeDirty(start, end Address) {
	for c := rs.CardIndexForAddr(start); c <= rs.CardIndexForAddr(end-1); c++ {
		rs.dirty[c].v = 1
	}
}

func (rs *RememberedSet) IsCardDirty(card uint64) bool { return rs.dirty[card].v != 0 }

func (rs *RememberedSet) clearDirty() {
	clear(rs.dirty)
}

// ProcessRegionSlice walks the objects intersecting dirty cards within
// `clusters` clusters starting at offsetWords into the region, bounded by
// end. Clean clusters of memory are skipped wholesale; this is what makes
// old-region scanning cheap in a young-only cycle. visit is called exactly
// once per object intersecting a dirty card, from its lowest dirty card.
func (rs *RememberedSet) ProcessRegionSlice(r *Region, offsetWords, clusters uint64, end Address, visit func(Address)) {
	start := r.Bottom() + offsetWords
	sliceEnd := start + clusters*CardsPerCluster*rs.cardWords
	if sliceEnd > end {
		sliceEnd = end
	}
	if start >= sliceEnd {
		return
	}

	firstCard := rs.CardIndexForAddr(start)
	lastCard := rs.CardIndexForAddr(sliceEnd - 1)
	for card := firstCard; card <= lastCard; card++ {
		if !rs.IsCardDirty(card) {
			continue
		}
		obj := rs.firstObjectCovering(card, r.Bottom())
		if obj == 0 {
			continue
		}
		cardStart := rs.AddrForCardIndex(card)
		cardEnd := rs.AddrForCardIndex(card + 1)
		if cardEnd > sliceEnd {
			cardEnd = sliceEnd
		}
		if obj < cardStart {
			// An object spanning in from an earlier card belongs to the
			// walk of its lowest dirty covering card; visiting it from
			// exactly one card keeps every walk, this slice's or a
			// neighbor's, from repeating it.
			if !rs.heap.IsFiller(obj) && rs.lowestDirtyCardFrom(rs.CardIndexForAddr(obj), card) == card {
				visit(obj)
			}
			obj += rs.heap.ObjectSize(obj)
		}
		for obj < cardEnd {
			size := rs.heap.ObjectSize(obj)
			if size == 0 {
				panic("zero-sized object in card walk")
			}
			if !rs.heap.IsFiller(obj) {
				visit(obj)
			}
			obj += size
		}
	}
}

// firstObjectCovering returns the object covering the first word of card,
// walking the crossing map backwards toward bottom when that word belongs
// to an object starting in an earlier card. Returns 0 when the crossing
// map knows of no object reaching the card.
func (rs *RememberedSet) firstObjectCovering(card uint64, bottom Address) Address {
	target := rs.AddrForCardIndex(card)
	if obj := rs.FirstObjectInCard(card); obj == target {
		return obj
	}
	bottomCard := rs.CardIndexForAddr(bottom)
	for c := card; c > bottomCard; {
		c--
		obj := rs.FirstObjectInCard(c)
		if obj == 0 {
			continue
		}
		for {
			size := rs.heap.ObjectSize(obj)
			if size == 0 {
				panic("zero-sized object in crossing-map walk")
			}
			if obj+size > target {
				return obj
			}
			obj += size
		}
	}
	return rs.FirstObjectInCard(card)
}

func (rs *RememberedSet) lowestDirtyCardFrom(from, to uint64) uint64 {
	for c := from; c < to; c++ {
		if rs.IsCardDirty(c) {
			return c
		}
	}
	return to
}
