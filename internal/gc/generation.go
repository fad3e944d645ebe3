package gc

import "sync/atomic"

// GenerationName identifies one of the two generations.
type GenerationName uint8

const (
	YoungGen GenerationName = iota
	OldGen
)

func (n GenerationName) String() string {
	if n == YoungGen {
		return "young"
	}
	return "old"
}

// Generation is the reserve/accounting contract shared by both
// generations. All quantities are in words.
type Generation interface {
	Name() GenerationName
	Available() uint64
	MaxCapacity() uint64
	UsedWords() uint64
	EvacuationReserve() uint64
	SetEvacuationReserve(words uint64)
	RegionBalance() int64
	SetRegionBalance(delta int64)
}

// generationAccounting backs both implementations. Capacity moves between
// the generations only through the sizer, under the heap lock.
type generationAccounting struct {
	name        GenerationName
	maxCapacity atomic.Uint64
	used        atomic.Uint64
	evacReserve atomic.Uint64

	// Signed pending region transfer computed by the balancer: positive
	// means old has a surplus to give young, negative a deficit to fill.
	regionBalance atomic.Int64
}

func (g *generationAccounting) Name() GenerationName { return g.name }
func (g *generationAccounting) MaxCapacity() uint64  { return g.maxCapacity.Load() }
func (g *generationAccounting) UsedWords() uint64    { return g.used.Load() }

func (g *generationAccounting) Available() uint64 {
	capacity, used := g.maxCapacity.Load(), g.used.Load()
	if used >= capacity {
		return 0
	}
	return capacity - used
}

func (g *generationAccounting) EvacuationReserve() uint64     { return g.evacReserve.Load() }
func (g *generationAccounting) SetEvacuationReserve(w uint64) { g.evacReserve.Store(w) }
func (g *generationAccounting) RegionBalance() int64          { return g.regionBalance.Load() }
func (g *generationAccounting) SetRegionBalance(delta int64)  { g.regionBalance.Store(delta) }

func (g *generationAccounting) increaseUsed(words uint64) { g.used.Add(words) }

func (g *generationAccounting) decreaseUsed(words uint64) {
	if g.used.Load() < words {
		panic("generation used underflow")
	}
	g.used.Add(^(words - 1))
}

// YoungGeneration holds recently allocated objects.
type YoungGeneration struct {
	generationAccounting
}

// OldGeneration holds objects that survived promotion. It additionally
// tracks the mixed-collection backlog, the promotion budget, and whether
// its memory is linearly walkable.
type OldGeneration struct {
	generationAccounting

	promotedReserve  atomic.Uint64
	promotedExpended atomic.Uint64

	// Estimated words that will be promoted in upcoming cycles, set by
	// the marking heuristics.
	promotionPotential atomic.Uint64

	// Live words in old regions selected as mixed-collection candidates
	// but not yet collected.
	candidateLiveWords atomic.Uint64
	candidateCount     atomic.Int64

	parseable atomic.Bool

	failedEvacuation     atomic.Bool
	failedTransfers      atomic.Uint64
	promotionFailures    atomic.Uint64
	promotionFailedWords atomic.Uint64

	promotedWords  atomic.Uint64 // via successful promotion this cycle
	evacuatedWords atomic.Uint64 // old-to-old evacuation this cycle
}

func newYoungGeneration(capacityWords uint64) *YoungGeneration {
	g := &YoungGeneration{}
	g.name = YoungGen
	g.maxCapacity.Store(capacityWords)
	return g
}

func newOldGeneration(capacityWords uint64) *OldGeneration {
	g := &OldGeneration{}
	g.name = OldGen
	g.maxCapacity.Store(capacityWords)
	g.parseable.Store(true)
	return g
}

func (g *OldGeneration) PromotedReserve() uint64     { return g.promotedReserve.Load() }
func (g *OldGeneration) SetPromotedReserve(w uint64) { g.promotedReserve.Store(w) }
func (g *OldGeneration) PromotedExpended() uint64    { return g.promotedExpended.Load() }

// ExpendPromoted draws words from the promotion budget. The buffer slow
// path expends a whole buffer up front and unexpends the non-promoted
// remainder at retirement.
func (g *OldGeneration) ExpendPromoted(words uint64) { g.promotedExpended.Add(words) }

func (g *OldGeneration) UnexpendPromoted(words uint64) {
	if g.promotedExpended.Load() < words {
		panic("unexpend below zero promoted expenditure")
	}
	g.promotedExpended.Add(^(words - 1))
}

func (g *OldGeneration) PromotionPotential() uint64     { return g.promotionPotential.Load() }
func (g *OldGeneration) SetPromotionPotential(w uint64) { g.promotionPotential.Store(w) }

func (g *OldGeneration) HasUnprocessedCollectionCandidates() bool { return g.candidateCount.Load() > 0 }
func (g *OldGeneration) UnprocessedCollectionCandidatesLiveWords() uint64 {
	return g.candidateLiveWords.Load()
}

func (g *OldGeneration) SetCollectionCandidates(count int64, liveWords uint64) {
	g.candidateCount.Store(count)
	g.candidateLiveWords.Store(liveWords)
}

func (g *OldGeneration) IsParseable() bool   { return g.parseable.Load() }
func (g *OldGeneration) SetParseable(v bool) { g.parseable.Store(v) }

// HandleFailedPromotion records that an aged object could not move to old
// space. Harmless: the object evacuates within young and is eligible again
// next cycle.
func (g *OldGeneration) HandleFailedPromotion(words uint64) {
	g.promotionFailures.Add(1)
	g.promotionFailedWords.Add(words)
}

func (g *OldGeneration) PromotionFailures() uint64    { return g.promotionFailures.Load() }
func (g *OldGeneration) PromotionFailedWords() uint64 { return g.promotionFailedWords.Load() }

// HandleFailedEvacuation marks the cycle as needing a full collection: an
// old object could not be copied out of the collection set.
func (g *OldGeneration) HandleFailedEvacuation() { g.failedEvacuation.Store(true) }

func (g *OldGeneration) EvacuationFailed() bool { return g.failedEvacuation.Load() }

// HandleFailedTransfer is the balancer telling old that its requested
// deficit could not be filled from young; collection plans should shrink.
func (g *OldGeneration) HandleFailedTransfer() { g.failedTransfers.Add(1) }

func (g *OldGeneration) FailedTransferCount() uint64 { return g.failedTransfers.Load() }

// handleEvacuation is winner-side accounting for a copy landed in old
// memory. Promotions and old-to-old evacuations are tallied separately.
func (g *OldGeneration) handleEvacuation(words uint64, fromYoung bool) {
	if fromYoung {
		g.promotedWords.Add(words)
	} else {
		g.evacuatedWords.Add(words)
	}
}

func (g *OldGeneration) PromotedThisCycle() uint64  { return g.promotedWords.Load() }
func (g *OldGeneration) EvacuatedThisCycle() uint64 { return g.evacuatedWords.Load() }
