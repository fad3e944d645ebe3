package gc

import (
	"sync/atomic"
	"time"
)

const censusAgeBuckets = ageMask + 1

// EvacTracker accumulates per-cycle evacuation telemetry: copy counts,
// copied words, wall time spent copying, and an age census of surviving
// young objects.
type EvacTracker struct {
	evacuations atomic.Uint64
	words       atomic.Uint64
	nanos       atomic.Int64

	censusWords [censusAgeBuckets]atomic.Uint64
}

func (t *EvacTracker) beginEvacuation() time.Time {
	return time.Now()
}

func (t *EvacTracker) endEvacuation(start time.Time, words uint64) {
	t.evacuations.Add(1)
	t.words.Add(words)
	t.nanos.Add(int64(time.Since(start)))
}

func (t *EvacTracker) recordAge(words uint64, age uint8) {
	t.censusWords[age].Add(words)
}

func (t *EvacTracker) Evacuations() uint64    { return t.evacuations.Load() }
func (t *EvacTracker) EvacuatedWords() uint64 { return t.words.Load() }
func (t *EvacTracker) EvacuationTime() time.Duration {
	return time.Duration(t.nanos.Load())
}

func (t *EvacTracker) CensusWords(age uint8) uint64 { return t.censusWords[age].Load() }

func (t *EvacTracker) reset() {
	t.evacuations.Store(0)
	t.words.Store(0)
	t.nanos.Store(0)
	for i := range t.censusWords {
		t.censusWords[i].Store(0)
	}
}
