package gc

import "sync/atomic"

// RegionIterator hands each region to exactly one claimant. Lock-free: a
// monotonically advancing counter shared by all workers.
type RegionIterator struct {
	heap *Heap
	next atomic.Int64
}

func NewRegionIterator(h *Heap) *RegionIterator {
	return &RegionIterator{heap: h}
}

// Next claims the next region, or nil when the heap is exhausted.
func (it *RegionIterator) Next() *Region {
	idx := it.next.Add(1) - 1
	if idx >= int64(len(it.heap.regions)) {
		return nil
	}
	return it.heap.regions[idx]
}

func (it *RegionIterator) HasNext() bool {
	return it.next.Load() < int64(len(it.heap.regions))
}

// RegionChunk is an assignment of a byte-bounded slice of an old region,
// letting remembered-set work split finer than region granularity.
type RegionChunk struct {
	Region      *Region
	OffsetWords uint64
	SizeWords   uint64
}

// ChunkIterator deals out fixed-size chunks carved from old regions. The
// chunk list is built once, claiming is an atomic counter.
type ChunkIterator struct {
	chunks []RegionChunk
	next   atomic.Int64
}

// NewChunkIterator carves every active old region into chunks aligned on
// cluster boundaries. Chunk size is a whole number of card clusters.
func NewChunkIterator(h *Heap, chunkWords uint64) *ChunkIterator {
	clusterWords := h.rset.CardWords() * CardsPerCluster
	if chunkWords == 0 || chunkWords%clusterWords != 0 {
		panic("chunk size must be a multiple of the cluster size")
	}
	var chunks []RegionChunk
	for _, r := range h.regions {
		if !r.IsOld() || !r.IsActive() {
			continue
		}
		for off := uint64(0); off < r.Words(); off += chunkWords {
			size := min(chunkWords, r.Words()-off)
			chunks = append(chunks, RegionChunk{Region: r, OffsetWords: off, SizeWords: size})
		}
	}
	return &ChunkIterator{chunks: chunks}
}

// Next claims the next chunk; ok is false when all chunks are claimed.
func (it *ChunkIterator) Next() (RegionChunk, bool) {
	idx := it.next.Add(1) - 1
	if idx >= int64(len(it.chunks)) {
		return RegionChunk{}, false
	}
	return it.chunks[idx], true
}
