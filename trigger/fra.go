package trigger

import (
	"github.com/icecube-sndaq/sico/analysis"
	"github.com/icecube-sndaq/sico/handler"
)

// FRAState is the fast-response trigger variant (spec section 4.5): keyed
// on an externally-supplied trigger time T instead of a threshold crossing.
// It fires exactly once, at the first base bin where any analysis is
// triggerable and its search window contains T; every matching analysis at
// that bin produces its own candidate, finalized on the same cycle.
type FRAState struct {
	t     int64 // year-epoch tenth-ns
	fired bool
}

// NewFRAState constructs a fast-response state machine targeting trigger
// time t (year-epoch tenth-ns).
func NewFRAState(t int64) *FRAState {
	return &FRAState{t: t}
}

// Fired reports whether this state machine has already produced its (only)
// batch of candidates.
func (s *FRAState) Fired() bool { return s.fired }

// Observe checks every triggerable analysis's search window
// (utime_sw-B, utime_sw] for containment of the target time T. Once any
// analysis matches, every matching analysis at that bin produces a
// finalized candidate and the state machine never fires again.
func (s *FRAState) Observe(nWritten int64, triggerable []handler.Triggerable, historyFn func(index int) []float64) []*Candidate {
	if s.fired {
		return nil
	}
	var out []*Candidate
	for _, tr := range triggerable {
		a := tr.Analysis
		lo := a.UTimeSW - int64(a.Binsize())*analysis.TenthNsPerMs
		hi := a.UTimeSW
		if s.t > lo && s.t <= hi {
			out = append(out, snapshotCandidate(tr, nWritten, historyFn))
		}
	}
	if len(out) > 0 {
		s.fired = true
	}
	return out
}
