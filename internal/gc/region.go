package gc

import "sync/atomic"

// Affiliation says which generation a region's live data belongs to. A FREE
// region holds no live data regardless of which generation's capacity pool
// owns it. Affiliation changes are serialized by the heap lock or happen at
// a safepoint; reads are concurrent, hence the atomic.
type Affiliation uint32

const (
	FreeAffiliation Affiliation = iota
	YoungAffiliation
	OldAffiliation
)

func (a Affiliation) String() string {
	switch a {
	case FreeAffiliation:
		return "free"
	case YoungAffiliation:
		return "young"
	case OldAffiliation:
		return "old"
	}
	return "unknown"
}

const (
	regionActive uint32 = 1 << iota
	regionCset
	regionHumongous
)

// Region is a fixed-size span of the heap store, the unit of affiliation
// and reclamation. Regions are created once at heap initialization and
// recycled, never freed.
type Region struct {
	index  int
	bottom Address
	words  uint64

	top             atomic.Uint64 // absolute address of the allocation frontier
	tams            atomic.Uint64 // top at mark start
	updateWatermark atomic.Uint64

	affiliation atomic.Uint32
	owner       atomic.Uint32 // capacity pool (GenerationName), moved by the sizer
	flags       atomic.Uint32
	age         atomic.Uint32
}

func (r *Region) Index() int      { return r.index }
func (r *Region) Bottom() Address { return r.bottom }
func (r *Region) End() Address    { return r.bottom + r.words }
func (r *Region) Words() uint64   { return r.words }
func (r *Region) Top() Address    { return r.top.Load() }
func (r *Region) TAMS() Address   { return r.tams.Load() }
func (r *Region) Age() uint32     { return r.age.Load() }

func (r *Region) UpdateWatermark() Address { return r.updateWatermark.Load() }

func (r *Region) Affiliation() Affiliation { return Affiliation(r.affiliation.Load()) }
func (r *Region) IsYoung() bool            { return r.Affiliation() == YoungAffiliation }
func (r *Region) IsOld() bool              { return r.Affiliation() == OldAffiliation }
func (r *Region) IsFree() bool             { return r.Affiliation() == FreeAffiliation }

func (r *Region) IsActive() bool    { return r.flags.Load()&regionActive != 0 }
func (r *Region) IsCset() bool      { return r.flags.Load()&regionCset != 0 }
func (r *Region) IsHumongous() bool { return r.flags.Load()&regionHumongous != 0 }

func (r *Region) setFlag(f uint32, on bool) {
	for {
		old := r.flags.Load()
		next := old &^ f
		if on {
			next = old | f
		}
		if r.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

func (r *Region) SetActive(on bool)    { r.setFlag(regionActive, on) }
func (r *Region) SetCset(on bool)      { r.setFlag(regionCset, on) }
func (r *Region) SetHumongous(on bool) { r.setFlag(regionHumongous, on) }

func (r *Region) SetAffiliation(a Affiliation) { r.affiliation.Store(uint32(a)) }
func (r *Region) SetTop(addr Address)          { r.top.Store(addr) }
func (r *Region) SetTAMS(addr Address)         { r.tams.Store(addr) }

func (r *Region) SetUpdateWatermark(addr Address) { r.updateWatermark.Store(addr) }

func (r *Region) ResetAge()     { r.age.Store(0) }
func (r *Region) IncrementAge() { r.age.Add(1) }

func (r *Region) usedWords() uint64 { return r.Top() - r.bottom }
func (r *Region) freeWords() uint64 { return r.End() - r.Top() }

// recycle returns a reclaimed region to the FREE state. Caller holds the
// heap lock.
func (r *Region) recycle() {
	r.SetAffiliation(FreeAffiliation)
	r.SetActive(false)
	r.SetCset(false)
	r.SetHumongous(false)
	r.SetTop(r.bottom)
	r.SetTAMS(r.bottom)
	r.SetUpdateWatermark(r.bottom)
	r.ResetAge()
}
