package gc

func (c *EvacContext) gclabWordsRemaining() uint64 {
	if c.gclab == nil {
		return 0
	}
	return c.gclab.WordsRemaining()
}

func (c *EvacContext) plabWordsRemaining() uint64 {
	if c.plab == nil {
		return 0
	}
	return c.plab.WordsRemaining()
}

// allocateFromGCLab serves a young-generation copy from the worker's
// buffer. A failure with ample buffer space left returns 0 immediately so
// the caller tries a shared allocation and the remaining space keeps
// serving smaller objects.
func (c *EvacContext) allocateFromGCLab(size uint64) Address {
	if c.gclab != nil {
		if addr := c.gclab.Allocate(size); addr != 0 {
			return addr
		}
	}
	if c.gclabWordsRemaining() >= c.heap.cfg.MinBufferWords {
		return 0
	}
	return c.allocateFromGCLabSlow(size)
}

func (c *EvacContext) allocateFromGCLabSlow(size uint64) Address {
	cfg := &c.heap.cfg
	minSize := max(alignUp(size, c.heap.rset.CardWords()), cfg.MinBufferWords)

	curSize := c.gclabSize
	if curSize == 0 {
		curSize = cfg.MinBufferWords
	}
	futureSize := min(curSize*2, cfg.MaxBufferWords)
	// Record the heuristic even when we take a shortcut below, so
	// moderately sized objects eventually grow the buffer.
	c.gclabSize = futureSize

	if curSize < size {
		// A fresh buffer would be retired by this one object; let the
		// shared path carry it instead.
		return 0
	}

	if c.gclab != nil {
		c.gclab.retire(c.heap)
		c.gclab = nil
	}

	// The grown preference is requested outright, not the pre-doubling
	// size; the free set may still trim the grant down to minSize.
	req := ForBuffer(minSize, futureSize, YoungGen)
	buf := c.heap.AllocateMemory(&req)
	if buf == 0 {
		return 0
	}
	actual := req.ActualSize()
	if cfg.ZeroBuffers {
		c.heap.zeroWords(buf, actual)
	}
	c.gclab = newAllocBuffer(buf, actual, false)
	return c.gclab.Allocate(size)
}

// allocateFromPlab serves an old-generation copy (mixed evacuation or
// promotion) from the worker's buffer. Promotions that this worker is no
// longer allowed to make fail fast without touching the buffer.
func (c *EvacContext) allocateFromPlab(size uint64, isPromotion bool) Address {
	if isPromotion && !c.plabPromotionsAllowed {
		return 0
	}
	var addr Address
	if c.plab != nil {
		addr = c.plab.Allocate(size)
	}
	if addr == 0 && c.plabWordsRemaining() < c.heap.cfg.MinBufferWords {
		addr = c.allocateFromPlabSlow(size, isPromotion)
	}
	// With at least the minimum still unused in the current plab, 0 is
	// returned instead so the caller uses a shared allocation and this
	// plab keeps absorbing future small requests.
	if addr == 0 {
		return 0
	}
	if isPromotion {
		c.addToPlabPromoted(size)
	}
	return addr
}

// allocateFromPlabSlow establishes a new plab and allocates size words
// within it. Plabs align on card granularity so that retirement can
// register the remnant filler with the remembered set without a lock.
func (c *EvacContext) allocateFromPlabSlow(size uint64, isPromotion bool) Address {
	cfg := &c.heap.cfg
	minBuffer := cfg.MinBufferWords
	minSize := minBuffer
	if size > minBuffer {
		minSize = alignUp(size, c.heap.rset.CardWords())
	}

	curSize := c.plabSize
	if curSize == 0 {
		curSize = minBuffer
	}
	// Expand aggressively, capped so the evacuation budget stays
	// equitably distributed across workers.
	futureSize := min(curSize*2, cfg.MaxBufferWords)
	if !isAligned(futureSize, c.heap.rset.CardWords()) {
		panic("plab size not card-aligned")
	}

	// Record the new heuristic even if we take a shortcut below.
	c.plabSize = futureSize
	if curSize < size {
		// Retiring a perfectly good plab to represent one oversized
		// object is wasteful; decline and let the shared path serve it.
		return 0
	}

	c.retirePlab()

	// As with the gclab, the new plab is requested at the grown
	// preference.
	req := ForBuffer(minSize, futureSize, OldGen)
	buf := c.heap.AllocateMemory(&req)
	if buf == 0 {
		if minSize == minBuffer {
			// Not even a minimal plab is available: fail faster on
			// subsequent promotion attempts by this worker.
			c.disablePlabPromotions()
		}
		return 0
	}
	c.enablePlabRetries()

	actual := req.ActualSize()
	if cfg.ZeroBuffers {
		c.heap.zeroWords(buf, actual)
	}
	c.plab = newAllocBuffer(buf, actual, true)
	c.plabActualSize = actual
	// The whole buffer is treated as promotion expenditure up front;
	// retirement returns whatever did not promote.
	c.heap.old.ExpendPromoted(actual)

	if isPromotion && !c.plabPromotionsAllowed {
		return 0
	}
	// The grant may have been down-sized for alignment, so this can
	// still fail and fall through to a shared allocation.
	return c.plab.Allocate(size)
}
