package gc

import "sync/atomic"

// Pacer receives advisory progress reports from concurrent phases. The
// cycle scheduler uses the totals to rate-limit mutator allocation; the
// engine only reports, it never blocks on the pacer.
type Pacer struct {
	updateRefsWords atomic.Uint64
	evacWords       atomic.Uint64
}

func (p *Pacer) ReportUpdateRefs(words uint64) {
	p.updateRefsWords.Add(words)
}

func (p *Pacer) ReportEvacuation(words uint64) {
	p.evacWords.Add(words)
}

func (p *Pacer) UpdateRefsProgress() uint64 { return p.updateRefsWords.Load() }
func (p *Pacer) EvacuationProgress() uint64 { return p.evacWords.Load() }

func (p *Pacer) reset() {
	p.updateRefsWords.Store(0)
	p.evacWords.Store(0)
}
