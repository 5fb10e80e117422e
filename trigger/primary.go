package trigger

import (
	"github.com/icecube-sndaq/sico/analysis"
	"github.com/icecube-sndaq/sico/handler"
)

// windowBins converts the 30s escalation-window duration into base-bin
// units (L=500ms).
func windowBins(windowDurationMs int) int64 {
	return int64(windowDurationMs) / int64(analysis.BasePeriodMs)
}

// PrimaryState is the online (threshold-crossing) trigger variant (spec
// section 4.5). It holds at most one candidate at a time; a higher-xi
// triggerable analysis unconditionally replaces the held candidate and
// extends (not maxes) the close deadline.
type PrimaryState struct {
	threshold  float64
	windowBins int64

	heldXi  float64
	held    *Candidate
	closeAt int64

	triggerCount int64
}

// NewPrimaryState constructs a primary trigger state machine: threshold is
// the xi crossing level (default 4.0), windowDurationMs the escalation
// window length (default 30000).
func NewPrimaryState(threshold float64, windowDurationMs int) *PrimaryState {
	return &PrimaryState{threshold: threshold, windowBins: windowBins(windowDurationMs)}
}

// TriggerCount returns the number of times a candidate has been created or
// replaced so far.
func (s *PrimaryState) TriggerCount() int64 { return s.triggerCount }

// Held returns the currently-held candidate snapshot, or nil.
func (s *PrimaryState) Held() *Candidate { return s.held }

// Observe processes one base bin's triggerable analyses. If a higher-xi
// candidate than the one currently held crosses threshold, it replaces the
// held candidate and extends the escalation window. If a candidate is held
// and the window has since closed, it is finalized (returned, and cleared
// from internal state).
func (s *PrimaryState) Observe(nWritten int64, triggerable []handler.Triggerable, historyFn func(index int) []float64) *Candidate {
	var best *handler.Triggerable
	for i := range triggerable {
		tr := &triggerable[i]
		if tr.Analysis.Xi < s.threshold {
			continue
		}
		if best == nil || tr.Analysis.Xi > best.Analysis.Xi {
			best = tr
		}
	}
	if best != nil && best.Analysis.Xi > s.heldXi {
		s.triggerCount++
		s.held = snapshotCandidate(*best, nWritten, historyFn)
		s.heldXi = best.Analysis.Xi
		s.closeAt = nWritten + s.windowBins
	}

	if s.held != nil && nWritten > s.closeAt {
		out := s.held
		s.held = nil
		s.heldXi = 0
		return out
	}
	return nil
}

// Finalize forces the currently-held candidate (if any) to close
// immediately, marking it cancelled. Used on cooperative shutdown.
func (s *PrimaryState) Finalize() *Candidate {
	if s.held == nil {
		return nil
	}
	out := s.held
	out.Cancelled = true
	s.held = nil
	s.heldXi = 0
	return out
}

func snapshotCandidate(tr handler.Triggerable, nWritten int64, historyFn func(index int) []float64) *Candidate {
	a := tr.Analysis
	hist := historyFn(tr.Index)
	histCopy := make([]float64, len(hist))
	copy(histCopy, hist)
	qualCopy := make([]bool, len(a.Qualified))
	copy(qualCopy, a.Qualified)
	return &Candidate{
		Xi:                   a.Xi,
		XiCorr:               a.Xi, // no muon correction is computed; enrichment leaves XiCorr equal to Xi
		TTrigger:             a.UTimeSW,
		Binsize:              a.Binsize(),
		Offset:               a.Offset(),
		History:              histCopy,
		Qualified:            qualCopy,
		NWrittenAtTrigger:    nWritten,
		SearchWindowDistance: a.SearchWindowDistance(),
	}
}
