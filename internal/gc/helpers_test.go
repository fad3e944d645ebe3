package gc

import "testing"

// testConfig is a small, single-worker heap: 16 regions of 1024 words,
// the first 4 owned by old. One chunk covers exactly one region.
func testConfig() Config {
	return Config{
		RegionCount:    16,
		RegionWords:    1024,
		CardWords:      16,
		ChunkWords:     1024,
		MinBufferWords: 16,
		MaxBufferWords: 128,
		Workers:        1,
		OldRegionCount: 4,
		OldEvacWaste:   1.5,
		PromoEvacWaste: 2.0,
	}
}

func newTestHeap(t testing.TB, cfg Config) *Heap {
	t.Helper()
	h, err := NewHeap(cfg)
	if err != nil {
		t.Fatalf("NewHeap failed: %v", err)
	}
	return h
}

// mustAlloc allocates size words in gen through the shared path and lays
// down an object there. Old-generation grants arrive pre-registered with
// the remembered set.
func mustAlloc(t testing.TB, h *Heap, gen GenerationName, size uint64, age uint8, refs ...Address) Address {
	t.Helper()
	req := ForSharedGC(size, gen, false)
	addr := h.AllocateMemory(&req)
	if addr == 0 {
		t.Fatalf("allocation of %d words in %s failed", size, gen)
	}
	h.WriteObject(addr, size, age, refs...)
	return addr
}

// sealAllocRegion retires gen's current allocation region so subsequent
// allocations take a fresh one.
func sealAllocRegion(h *Heap, gen GenerationName) {
	h.lock.Lock()
	h.free.retireCurrent(gen)
	h.lock.Unlock()
}

// intoCollectionSet seals the region holding addr into the collection set
// with its watermark and mark-start frozen at the current top.
func intoCollectionSet(h *Heap, addr Address) *Region {
	r := h.RegionContaining(addr)
	if h.free.current[GenerationName(r.owner.Load())] == r {
		sealAllocRegion(h, GenerationName(r.owner.Load()))
	}
	r.SetTAMS(r.Top())
	r.SetUpdateWatermark(r.Top())
	r.SetCset(true)
	return r
}

// freezeRegion pins TAMS at bottom and the watermark at top, making the
// region look fully allocated during the current cycle for update-refs
// walks.
func freezeRegion(r *Region) {
	r.SetTAMS(r.Bottom())
	r.SetUpdateWatermark(r.Top())
}
