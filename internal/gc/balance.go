package gc

import "fmt"

// TransferResult reports the outcome of one end-of-cycle region transfer,
// purely for logging.
type TransferResult struct {
	Success     bool
	Regions     uint64
	Destination string

	OldAvailable   uint64
	YoungAvailable uint64
}

func (t TransferResult) String() string {
	verb := "failed to transfer"
	if t.Success {
		verb = "successfully transferred"
	}
	return fmt.Sprintf("%s %d regions to %s to prepare for next gc, old available: %d words, young available: %d words",
		verb, t.Regions, t.Destination, t.OldAvailable, t.YoungAvailable)
}

// ComputeOldGenerationBalance decides how many regions should move between
// the generations before the next cycle and records the result as old's
// signed region balance. oldXferLimitWords caps what young can afford to
// give; oldCsetRegions counts old regions about to be recycled out of the
// collection set, which will become available by the time the transfer
// happens.
func (h *Heap) ComputeOldGenerationBalance(oldXferLimitWords, oldCsetRegions uint64) {
	h.lock.Lock()
	defer h.lock.Unlock()

	ratio := h.cfg.OldEvacRatioPercent
	if ratio > 100 {
		panic("old evacuation ratio above 100 percent")
	}

	oldAvailable := h.old.Available()
	youngReserve := h.young.MaxCapacity() * h.cfg.EvacReservePercent / 100

	// Upper bound on memory evacuated into old this cycle. With the
	// ratio at 100 the algebraic bound degenerates, and the limit is
	// everything that could possibly be made available to old.
	boundOnOldReserve := oldAvailable + oldXferLimitWords + youngReserve
	maxOldReserve := boundOnOldReserve
	if ratio < 100 {
		maxOldReserve = min(youngReserve*ratio/(100-ratio), boundOnOldReserve)
	}

	regionWords := h.cfg.RegionWords

	// Reserve enough unfragmented old space to evacuate the mixed
	// collection backlog.
	var reserveForMixed uint64
	if h.old.HasUnprocessedCollectionCandidates() {
		maxEvacNeed := uint64(float64(h.old.UnprocessedCollectionCandidatesLiveWords()) * h.cfg.OldEvacWaste)
		unaffiliatedWords := h.free.FreeUnaffiliatedRegions(OldGen) * regionWords
		if oldAvailable < unaffiliatedWords {
			panic("unaffiliated old space exceeds old availability")
		}
		oldFragmentedAvailable := oldAvailable - unaffiliatedWords
		reserveForMixed = maxEvacNeed + oldFragmentedAvailable
		if reserveForMixed > maxOldReserve {
			reserveForMixed = maxOldReserve
		}
	}

	// Reserve for anticipated promotions out of whatever headroom the
	// mixed reserve left under the cap.
	var reserveForPromo uint64
	if promoLoad := h.old.PromotionPotential(); promoLoad > 0 {
		availableForPromotions := maxOldReserve - reserveForMixed
		reserveForPromo = min(uint64(float64(promoLoad)*h.cfg.PromoEvacWaste), availableForPromotions)
	}

	oldReserve := reserveForMixed + reserveForPromo
	if oldReserve > maxOldReserve {
		panic("old reserve exceeds its upper bound")
	}

	maxOldAvailable := oldAvailable + oldCsetRegions*regionWords
	if maxOldAvailable >= oldReserve {
		// Old is running a surplus that young can use.
		surplus := (maxOldAvailable - oldReserve) / regionWords
		unaffiliated := h.free.FreeUnaffiliatedRegions(OldGen) + oldCsetRegions
		h.old.SetRegionBalance(int64(min(surplus, unaffiliated)))
		return
	}

	// Deficit, rounded up to whole regions, filled from young up to the
	// transfer limit. A restricted transfer curtails old collection work
	// rather than failing the cycle.
	oldNeed := (oldReserve - maxOldAvailable + regionWords - 1) / regionWords
	maxXferRegions := oldXferLimitWords / regionWords
	h.old.SetRegionBalance(-int64(min(oldNeed, maxXferRegions)))
}

// BalanceGenerations consumes the pending region balance and performs the
// physical transfer under the heap lock.
func (h *Heap) BalanceGenerations() TransferResult {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.balanceGenerationsLocked()
}

func (h *Heap) balanceGenerationsLocked() TransferResult {
	balance := h.old.RegionBalance()
	h.old.SetRegionBalance(0)

	var result TransferResult
	switch {
	case balance > 0:
		surplus := uint64(balance)
		result = TransferResult{
			Success:     h.transferRegions(OldGen, YoungGen, surplus),
			Regions:     surplus,
			Destination: "young",
		}
	case balance < 0:
		deficit := uint64(-balance)
		ok := h.transferRegions(YoungGen, OldGen, deficit)
		if !ok {
			h.old.HandleFailedTransfer()
		}
		result = TransferResult{Success: ok, Regions: deficit, Destination: "old"}
	default:
		result = TransferResult{Success: true, Regions: 0, Destination: "none"}
	}

	result.OldAvailable = h.old.Available()
	result.YoungAvailable = h.young.Available()
	return result
}

// transferRegions moves n free unaffiliated regions from one capacity
// pool to the other, all or nothing. Caller holds the heap lock.
func (h *Heap) transferRegions(from, to GenerationName, n uint64) bool {
	free := &h.free.free[from]
	if uint64(len(*free)) < n {
		return false
	}
	words := n * h.cfg.RegionWords
	for i := uint64(0); i < n; i++ {
		last := len(*free) - 1
		idx := (*free)[last]
		*free = (*free)[:last]
		r := h.regions[idx]
		r.owner.Store(uint32(to))
		h.free.free[to] = append(h.free.free[to], idx)
	}
	fromAcct := h.generationAccount(from)
	toAcct := h.generationAccount(to)
	fromAcct.maxCapacity.Store(fromAcct.maxCapacity.Load() - words)
	toAcct.maxCapacity.Store(toAcct.maxCapacity.Load() + words)
	return true
}

// ResetGenerationReserves clears all per-generation reserves at the end
// of a cycle.
func (h *Heap) ResetGenerationReserves() {
	h.young.SetEvacuationReserve(0)
	h.old.SetEvacuationReserve(0)
	h.old.SetPromotedReserve(0)
}
