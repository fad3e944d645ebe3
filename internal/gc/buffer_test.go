package gc

import "testing"

func TestAllocBufferBump(t *testing.T) {
	h := newTestHeap(t, testConfig())
	req := ForBuffer(16, 64, YoungGen)
	base := h.AllocateMemory(&req)
	if base == 0 {
		t.Fatal("buffer allocation failed")
	}
	b := newAllocBuffer(base, req.ActualSize(), false)

	a1 := b.Allocate(10)
	a2 := b.Allocate(20)
	if a1 != base || a2 != base+10 {
		t.Fatalf("expected bump allocations at +0 and +10, got %#x %#x", a1, a2)
	}
	if b.WordsRemaining() != 34 {
		t.Fatalf("expected 34 words remaining, got %d", b.WordsRemaining())
	}
	if b.Allocate(40) != 0 {
		t.Fatal("oversized allocation succeeded")
	}
}

func TestAllocBufferRefusesUnfillableTail(t *testing.T) {
	b := newAllocBuffer(100, 64, false)
	// 63 words would leave a 1-word tail that no filler can cover.
	if b.Allocate(63) != 0 {
		t.Fatal("allocation leaving an unfillable tail succeeded")
	}
	if b.Allocate(62) == 0 {
		t.Fatal("allocation leaving a 2-word tail failed")
	}
	if b.Allocate(2) == 0 {
		t.Fatal("exact-fit tail allocation failed")
	}
	if b.WordsRemaining() != 0 {
		t.Fatalf("expected empty buffer, got %d remaining", b.WordsRemaining())
	}
}

func TestAllocBufferUndo(t *testing.T) {
	b := newAllocBuffer(100, 64, false)
	b.Allocate(10)
	a2 := b.Allocate(20)
	b.Undo(a2, 20)
	if b.WordsRemaining() != 54 {
		t.Fatalf("expected 54 words after undo, got %d", b.WordsRemaining())
	}
	if b.Allocate(20) != a2 {
		t.Fatal("undone space not reused")
	}
}

func TestAllocBufferRetire(t *testing.T) {
	h := newTestHeap(t, testConfig())
	req := ForBuffer(16, 64, OldGen)
	base := h.AllocateMemory(&req)
	if base == 0 {
		t.Fatal("buffer allocation failed")
	}
	b := newAllocBuffer(base, req.ActualSize(), true)
	b.Allocate(10)

	waste := b.retire(h)
	if waste != req.ActualSize()-10 {
		t.Fatalf("expected %d wasted words, got %d", req.ActualSize()-10, waste)
	}
	tail := base + 10
	if !h.IsFiller(tail) || h.ObjectSize(tail) != waste {
		t.Fatal("retired tail not filled")
	}
	card := h.RememberedSet().CardIndexForAddr(tail)
	if h.RememberedSet().FirstObjectInCard(card) == 0 {
		t.Fatal("old buffer tail filler not registered")
	}
	if b.retire(h) != 0 {
		t.Fatal("second retire reported waste")
	}
}

func TestGCLabSlowPathGrowsBuffer(t *testing.T) {
	h := newTestHeap(t, testConfig())
	c := NewEvacContext(h, 0)

	// The first slow path doubles the sizing heuristic and requests the
	// doubled size right away.
	minBuf := h.Config().MinBufferWords
	if c.allocateFromGCLab(8) == 0 {
		t.Fatal("first gclab allocation failed")
	}
	if c.gclab == nil || c.gclab.ActualSize() != 2*minBuf {
		t.Fatal("expected a gclab of the doubled heuristic size")
	}
	if c.gclabSize != 2*minBuf {
		t.Fatalf("expected heuristic at %d, got %d", 2*minBuf, c.gclabSize)
	}

	// Exhaust it; the replacement doubles again.
	for c.gclab.Allocate(2) != 0 {
	}
	if c.allocateFromGCLab(8) == 0 {
		t.Fatal("gclab refill failed")
	}
	if c.gclab.ActualSize() != 4*minBuf {
		t.Fatalf("expected a %d-word gclab, got %d", 4*minBuf, c.gclab.ActualSize())
	}
}

func TestGCLabDeclinesOversizedObject(t *testing.T) {
	h := newTestHeap(t, testConfig())
	c := NewEvacContext(h, 0)

	// Larger than the current heuristic: the slow path must not retire a
	// buffer for it, only record a bigger wish for next time.
	if c.allocateFromGCLab(40) != 0 {
		t.Fatal("oversized object was served from a fresh gclab")
	}
	if c.gclab != nil {
		t.Fatal("declined allocation still built a gclab")
	}
	if c.gclabSize != 2*h.Config().MinBufferWords {
		t.Fatalf("expected heuristic to grow to %d, got %d", 2*h.Config().MinBufferWords, c.gclabSize)
	}
	// Still above the heuristic; declined again while the wish grows.
	if c.allocateFromGCLab(40) != 0 {
		t.Fatal("object above the heuristic was served")
	}
	// Now within it.
	if c.allocateFromGCLab(40) == 0 {
		t.Fatal("object within the grown heuristic failed")
	}
}

func TestPlabPromotionConservation(t *testing.T) {
	h := newTestHeap(t, testConfig())
	h.Old().SetPromotedReserve(2048)
	c := NewEvacContext(h, 0)

	addr := c.allocateFromPlab(8, true)
	if addr == 0 {
		t.Fatal("plab promotion allocation failed")
	}
	actual := c.plabActualSize
	if actual == 0 {
		t.Fatal("plab actual size not recorded")
	}
	// The whole buffer is expended up front.
	if h.Old().PromotedExpended() != actual {
		t.Fatalf("expected %d expended, got %d", actual, h.Old().PromotedExpended())
	}

	if c.allocateFromPlab(6, true) == 0 {
		t.Fatal("second plab promotion failed")
	}
	if c.allocateFromPlab(4, false) == 0 {
		t.Fatal("old-to-old plab allocation failed")
	}
	if c.plabPromoted != 14 {
		t.Fatalf("expected 14 promoted words, got %d", c.plabPromoted)
	}

	// Retirement returns exactly the not-promoted remainder: what stays
	// expended equals what was actually promoted.
	c.RetireBuffers()
	if h.Old().PromotedExpended() != 14 {
		t.Fatalf("expected 14 words expended after retirement, got %d", h.Old().PromotedExpended())
	}
	if c.plab != nil {
		t.Fatal("plab survived retirement")
	}
}

func TestPlabExhaustionDisablesPromotions(t *testing.T) {
	cfg := testConfig()
	h := newTestHeap(t, cfg)
	h.Old().SetPromotedReserve(4096)
	// No old space at all.
	h.Old().increaseUsed(h.Old().MaxCapacity())

	c := NewEvacContext(h, 0)
	if c.allocateFromPlab(8, true) != 0 {
		t.Fatal("promotion succeeded without old space")
	}
	if c.PromotionsAllowed() {
		t.Fatal("failed minimal plab did not disable promotions")
	}
	// Subsequent promotions fail fast.
	if c.allocateFromPlab(8, true) != 0 {
		t.Fatal("promotion succeeded after being disabled")
	}
	// Old-to-old evacuations may still try.
	if !c.plabRetriesEnabled {
		t.Fatal("plab retries should be untouched by the promotion latch")
	}
}
