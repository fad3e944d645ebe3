package gc

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Pam-La/gengc/internal/satb"
)

var (
	ErrHeapGeometry = errors.New("region count and size must be positive, card-aligned powers of two")
)

// CycleKind says which collection is active. Young and mixed cycles treat
// young regions as the active generation; a global cycle covers the whole
// heap.
type CycleKind uint32

const (
	NoCycle CycleKind = iota
	YoungCycle
	MixedCycle
	GlobalCycle
)

// Config sizes the heap and its policies. Zero values take defaults; all
// sizes are in words.
type Config struct {
	RegionCount int
	RegionWords uint64
	CardWords   uint64
	ChunkWords  uint64

	MinBufferWords uint64
	MaxBufferWords uint64

	TenuringThreshold uint32

	// Percent of young max capacity reserved for young evacuation.
	EvacReservePercent uint64
	// Target percent of total evacuation effort attributed to old.
	OldEvacRatioPercent uint64

	// Waste multipliers applied to live-data estimates when sizing old
	// reserves.
	OldEvacWaste   float64
	PromoEvacWaste float64

	Workers int

	// OldRegionCount regions are owned by the old capacity pool at
	// startup; the rest belong to young.
	OldRegionCount int

	ZeroBuffers  bool
	CensusAtEvac bool

	// Capacity of the deferred-root ring drained at degenerated
	// completion. Rounded up to a power of two.
	DeferredRootCapacity uint64
}

func (c *Config) applyDefaults() {
	if c.RegionCount == 0 {
		c.RegionCount = DefaultRegionCount
	}
	if c.RegionWords == 0 {
		c.RegionWords = DefaultRegionWords
	}
	if c.CardWords == 0 {
		c.CardWords = DefaultCardWords
	}
	if c.ChunkWords == 0 {
		c.ChunkWords = c.CardWords * CardsPerCluster
	}
	if c.MinBufferWords == 0 {
		c.MinBufferWords = DefaultMinBufferWords
	}
	if c.MaxBufferWords == 0 {
		c.MaxBufferWords = DefaultMaxBufferWords
	}
	// Buffer bounds stay card-aligned so buffer retirement never needs a
	// lock to register its filler.
	c.MinBufferWords = alignUp(max(c.MinBufferWords, c.CardWords), c.CardWords)
	c.MaxBufferWords = alignUp(max(c.MaxBufferWords, c.MinBufferWords), c.CardWords)
	if c.TenuringThreshold == 0 {
		c.TenuringThreshold = DefaultTenuringThreshold
	}
	if c.EvacReservePercent == 0 {
		c.EvacReservePercent = DefaultEvacReservePercent
	}
	if c.OldEvacRatioPercent == 0 {
		c.OldEvacRatioPercent = DefaultOldEvacRatioPercent
	}
	if c.OldEvacWaste == 0 {
		c.OldEvacWaste = DefaultOldEvacWaste
	}
	if c.PromoEvacWaste == 0 {
		c.PromoEvacWaste = DefaultPromoEvacWaste
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.OldRegionCount == 0 {
		c.OldRegionCount = c.RegionCount / 4
	}
	if c.DeferredRootCapacity == 0 {
		c.DeferredRootCapacity = 1024
	}
}

// Heap is the explicit context object tying the engine together: the word
// store, the region table, both generations, the free set, the remembered
// set, marking state, and cycle-wide flags. It replaces any global
// singleton access; every component receives it at construction.
type Heap struct {
	cfg Config

	mem     []uint64
	regions []*Region

	// Heap lock: shared allocation, affiliation changes, balancing.
	lock sync.Mutex

	young *YoungGeneration
	old   *OldGeneration

	free  *FreeSet
	rset  *RememberedSet
	marks *MarkContext
	pacer *Pacer

	cycle     atomic.Uint32
	aging     atomic.Bool
	cancelled atomic.Bool

	oldMarkInProgress atomic.Bool

	deferredRoots *satb.Ring

	tracker EvacTracker
}

func NewHeap(cfg Config) (*Heap, error) {
	cfg.applyDefaults()
	if cfg.RegionCount <= 0 || cfg.RegionWords == 0 ||
		cfg.CardWords&(cfg.CardWords-1) != 0 ||
		!isAligned(cfg.RegionWords, cfg.CardWords) {
		return nil, ErrHeapGeometry
	}
	if cfg.OldRegionCount >= cfg.RegionCount {
		return nil, ErrHeapGeometry
	}

	words := cfg.RegionWords * uint64(cfg.RegionCount)
	h := &Heap{
		cfg: cfg,
		// One extra card up front keeps address 0 out of circulation.
		mem:   make([]uint64, cfg.CardWords+words),
		pacer: &Pacer{},
	}

	h.regions = make([]*Region, cfg.RegionCount)
	for i := range h.regions {
		r := &Region{
			index:  i,
			bottom: cfg.CardWords + uint64(i)*cfg.RegionWords,
			words:  cfg.RegionWords,
		}
		r.top.Store(r.bottom)
		r.tams.Store(r.bottom)
		r.updateWatermark.Store(r.bottom)
		if i < cfg.OldRegionCount {
			r.owner.Store(uint32(OldGen))
		} else {
			r.owner.Store(uint32(YoungGen))
		}
		h.regions[i] = r
	}

	oldWords := cfg.RegionWords * uint64(cfg.OldRegionCount)
	h.young = newYoungGeneration(words - oldWords)
	h.old = newOldGeneration(oldWords)

	h.rset = newRememberedSet(h, cfg.CardWords)
	h.marks = newMarkContext(uint64(len(h.mem)))
	h.free = newFreeSet(h)
	for _, r := range h.regions {
		h.free.addFreeRegion(r)
	}

	ring, err := satb.NewRing(cfg.DeferredRootCapacity)
	if err != nil {
		return nil, err
	}
	h.deferredRoots = ring
	return h, nil
}

func (h *Heap) Config() Config                { return h.cfg }
func (h *Heap) Young() *YoungGeneration       { return h.young }
func (h *Heap) Old() *OldGeneration           { return h.old }
func (h *Heap) FreeSet() *FreeSet             { return h.free }
func (h *Heap) RememberedSet() *RememberedSet { return h.rset }
func (h *Heap) Marks() *MarkContext           { return h.marks }
func (h *Heap) Pacer() *Pacer                 { return h.pacer }
func (h *Heap) DeferredRoots() *satb.Ring     { return h.deferredRoots }
func (h *Heap) Tracker() *EvacTracker         { return &h.tracker }

func (h *Heap) RegionCount() int     { return len(h.regions) }
func (h *Heap) Region(i int) *Region { return h.regions[i] }
func (h *Heap) RegionWords() uint64  { return h.cfg.RegionWords }

func (h *Heap) generation(name GenerationName) Generation {
	if name == YoungGen {
		return h.young
	}
	return h.old
}

func (h *Heap) generationAccount(name GenerationName) *generationAccounting {
	if name == YoungGen {
		return &h.young.generationAccounting
	}
	return &h.old.generationAccounting
}

// RegionContaining maps an address to its region. Addresses below the
// first region (the reserved card) belong to no region.
func (h *Heap) RegionContaining(addr Address) *Region {
	if addr < h.cfg.CardWords {
		panic("address outside the region table")
	}
	idx := (addr - h.cfg.CardWords) / h.cfg.RegionWords
	return h.regions[idx]
}

// SetCycle installs the active collection kind and whether this cycle
// tracks object ages. Called at a safepoint by the cycle scheduler.
func (h *Heap) SetCycle(kind CycleKind, aging bool) {
	h.cycle.Store(uint32(kind))
	h.aging.Store(aging)
}

func (h *Heap) Cycle() CycleKind { return CycleKind(h.cycle.Load()) }

func (h *Heap) IsAgingCycle() bool { return h.aging.Load() }

func (h *Heap) activeIsYoung() bool {
	k := h.Cycle()
	return k == YoungCycle || k == MixedCycle
}

func (h *Heap) Cancel()           { h.cancelled.Store(true) }
func (h *Heap) ClearCancelled()   { h.cancelled.Store(false) }
func (h *Heap) IsCancelled() bool { return h.cancelled.Load() }

func (h *Heap) SetOldMarkInProgress(v bool) { h.oldMarkInProgress.Store(v) }
func (h *Heap) IsOldMarkInProgress() bool   { return h.oldMarkInProgress.Load() }

// AllocateMemory is the shared allocation path: heap-locked free-set
// access. Returns 0 on exhaustion; the caller decides how to degrade.
func (h *Heap) AllocateMemory(req *AllocRequest) Address {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.free.Allocate(req)
}

// RecycleCollectionSet reclaims every collection-set region after
// evacuation and reference updating: accounting returns to the owning
// generation's pool and the regions become free and unaffiliated. Returns
// the number of regions recycled.
func (h *Heap) RecycleCollectionSet() uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	var n uint64
	for _, r := range h.regions {
		if !r.IsCset() {
			continue
		}
		owner := GenerationName(r.owner.Load())
		h.generationAccount(owner).decreaseUsed(r.usedWords())
		if h.free.current[owner] == r {
			h.free.current[owner] = nil
		}
		r.recycle()
		h.free.addFreeRegion(r)
		n++
	}
	return n
}

// CollectionSetCount returns how many regions are in the collection set.
func (h *Heap) CollectionSetCount() uint64 {
	var n uint64
	for _, r := range h.regions {
		if r.IsCset() {
			n++
		}
	}
	return n
}

// CollectionSetHasOldRegions reports whether the active collection set
// includes old regions, which makes the cycle mixed.
func (h *Heap) CollectionSetHasOldRegions() bool {
	for _, r := range h.regions {
		if r.IsCset() && r.IsOld() {
			return true
		}
	}
	return false
}
