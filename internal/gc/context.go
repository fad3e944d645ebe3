package gc

// EvacContext is the per-worker mutable state of the evacuation call
// chain: the young and old allocation buffers, buffer-size heuristics,
// promotion accounting, and the out-of-memory latch. It is passed
// explicitly rather than looked up through thread-local storage; each
// worker owns exactly one and never shares it.
type EvacContext struct {
	heap   *Heap
	worker int

	gclab     *AllocBuffer // young-generation copies
	gclabSize uint64       // preferred size heuristic

	plab     *AllocBuffer // old-generation copies and promotions
	plabSize uint64

	// Words allocated through the plab for promotions. The difference
	// against the plab's actual size is returned to the promotion budget
	// at retirement.
	plabPromoted   uint64
	plabActualSize uint64

	plabRetriesEnabled    bool
	plabPromotionsAllowed bool

	// Once set, this worker must not allocate further evacuation copies
	// for the remainder of the cycle; objects resolve to their
	// already-forwarded target.
	oomDuringEvac bool
}

// NewEvacContext prepares a worker's evacuation state for one cycle.
func NewEvacContext(h *Heap, worker int) *EvacContext {
	return &EvacContext{
		heap:                  h,
		worker:                worker,
		gclabSize:             h.cfg.MinBufferWords,
		plabSize:              h.cfg.MinBufferWords,
		plabRetriesEnabled:    true,
		plabPromotionsAllowed: true,
	}
}

func (c *EvacContext) Worker() int { return c.worker }

func (c *EvacContext) IsOOMDuringEvac() bool { return c.oomDuringEvac }

// enterOOMDuringEvac latches the worker into the out-of-memory protocol.
func (c *EvacContext) enterOOMDuringEvac() { c.oomDuringEvac = true }

func (c *EvacContext) PromotionsAllowed() bool { return c.plabPromotionsAllowed }

func (c *EvacContext) disablePlabPromotions() { c.plabPromotionsAllowed = false }
func (c *EvacContext) enablePlabRetries()     { c.plabRetriesEnabled = true }
func (c *EvacContext) disablePlabRetries()    { c.plabRetriesEnabled = false }

func (c *EvacContext) addToPlabPromoted(words uint64) { c.plabPromoted += words }
func (c *EvacContext) subtractFromPlabPromoted(words uint64) {
	if c.plabPromoted < words {
		panic("plab promoted counter underflow")
	}
	c.plabPromoted -= words
}

// RetireBuffers seals both buffers at cycle end, settling the promotion
// budget for the plab.
func (c *EvacContext) RetireBuffers() {
	if c.gclab != nil {
		c.gclab.retire(c.heap)
		c.gclab = nil
	}
	c.retirePlab()
}

// retirePlab retires the old-generation buffer and returns the
// not-promoted remainder of its words to the old generation's promotion
// reserve. Conservation: actual == promoted + not-promoted.
func (c *EvacContext) retirePlab() {
	if c.plab == nil {
		return
	}
	notPromoted := c.plabActualSize - c.plabPromoted
	c.plabPromoted = 0
	c.plabActualSize = 0
	if notPromoted > 0 {
		c.heap.old.UnexpendPromoted(notPromoted)
	}
	c.plab.retire(c.heap)
	c.plab = nil
}
