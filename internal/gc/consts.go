package gc

// Object layout. Addresses are word indexes into the heap store; address 0
// is reserved as nil.
const (
	HeaderWords  = 2 // packed header word + forward word
	forwardSlot  = 1
	MinFillWords = HeaderWords
)

// Header word packing.
const (
	sizeBits  = 24
	sizeMask  = (1 << sizeBits) - 1
	ageShift  = sizeBits
	ageBits   = 8
	ageMask   = (1 << ageBits) - 1
	refsShift = ageShift + ageBits
	refsBits  = 16
	refsMask  = (1 << refsBits) - 1
	fillShift = refsShift + refsBits
)

// Remembered-set geometry. Cards group words for dirty tracking, clusters
// group cards for scan assignment.
const (
	DefaultCardWords  = 64
	CardsPerCluster   = 64
	DefaultChunkWords = DefaultCardWords * CardsPerCluster
)

// Default heap shape and buffer sizing. Buffer sizes are card-aligned so
// that retirement can register filler objects without a lock.
const (
	DefaultRegionWords    = 1 << 14
	DefaultRegionCount    = 64
	DefaultMinBufferWords = DefaultCardWords
	DefaultMaxBufferWords = 1 << 10
	DefaultWorkers        = 4
)

// Default balancing knobs, expressed the way the collector tunes them:
// percentages for reserve ratios, multipliers for evacuation waste.
const (
	DefaultTenuringThreshold   = 7
	DefaultEvacReservePercent  = 5
	DefaultOldEvacRatioPercent = 75
)

const (
	DefaultOldEvacWaste   = 1.4
	DefaultPromoEvacWaste = 1.2
)

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

func alignDown(v, alignment uint64) uint64 {
	return v &^ (alignment - 1)
}

func isAligned(v, alignment uint64) bool {
	return v&(alignment-1) == 0
}
