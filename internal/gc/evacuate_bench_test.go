package gc

import (
	"sync/atomic"
	"testing"
)

// benchHeap builds a heap with count evacuated 8-word objects, so the
// benchmarks measure steady-state resolution rather than first copies.
func benchHeap(b *testing.B, count int) (*Heap, []Address) {
	cfg := testConfig()
	cfg.RegionCount = 64
	cfg.OldRegionCount = 8
	h := newTestHeap(b, cfg)
	h.SetCycle(YoungCycle, false)

	addrs := make([]Address, count)
	for i := range addrs {
		addrs[i] = mustAlloc(b, h, YoungGen, 8, 0)
		if (i+1)%120 == 0 {
			sealAllocRegion(h, YoungGen)
		}
	}
	for _, obj := range addrs {
		intoCollectionSet(h, obj)
	}

	c := NewEvacContext(h, 0)
	for i, obj := range addrs {
		addrs[i] = h.Evacuate(c, obj)
		if addrs[i] == obj || addrs[i] == 0 {
			b.Fatal("setup evacuation failed")
		}
	}
	c.RetireBuffers()
	return h, addrs
}

func BenchmarkEvacuateForwarded(b *testing.B) {
	h, _ := benchHeap(b, 1024)

	var idx atomic.Uint64
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		c := NewEvacContext(h, int(idx.Add(1)))
		victims := benchVictims(h)
		i := 0
		for pb.Next() {
			obj := victims[i%len(victims)]
			if h.Evacuate(c, obj) == 0 {
				b.Fail()
			}
			i++
		}
	})
}

// benchVictims collects the original (forwarded) collection-set objects.
func benchVictims(h *Heap) []Address {
	var out []Address
	for i := 0; i < h.RegionCount(); i++ {
		r := h.Region(i)
		if !r.IsCset() {
			continue
		}
		addr := r.Bottom()
		for addr < r.TAMS() {
			if !h.IsFiller(addr) {
				out = append(out, addr)
			}
			addr += h.ObjectSize(addr)
		}
	}
	return out
}

func BenchmarkCardSliceScan(b *testing.B) {
	h := newTestHeap(b, testConfig())
	rs := h.RememberedSet()

	var objs []Address
	for i := 0; i < 100; i++ {
		objs = append(objs, mustAlloc(b, h, OldGen, 8, 0))
	}
	r := h.RegionContaining(objs[0])
	freezeRegion(r)
	// Every fourth card dirty.
	for i := 0; i < len(objs); i += 8 {
		rs.MarkRangeDirty(objs[i], objs[i]+8)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := 0
		rs.ProcessRegionSlice(r, 0, 1, r.UpdateWatermark(), func(Address) { n++ })
		if n == 0 {
			b.Fatal("scan visited nothing")
		}
	}
}

func BenchmarkMarkBitmapScan(b *testing.B) {
	h := newTestHeap(b, testConfig())
	m := h.Marks()
	base := h.Region(0).Bottom()
	for off := uint64(0); off < 1024; off += 64 {
		m.Mark(base + off)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		addr := base
		for addr < base+1024 {
			addr = m.NextMarkedAddr(addr+1, base+1024)
		}
	}
}
