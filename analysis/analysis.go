package analysis

import (
	"math"

	"github.com/icecube-sndaq/sico/circular"
)

// BasePeriodMs is L, the duration of one base bin.
const BasePeriodMs = 500

// TenthNsPerMs converts milliseconds to year-epoch tenth-ns units.
const TenthNsPerMs = 10_000_000

// Params holds the per-channel and threshold configuration shared by every
// analysis in a bank. It is never mutated after the bank is built.
type Params struct {
	N             int
	Epsilon       []float64
	MinActiveDoms int
	MinBkgRate    float64
	MaxBkgRate    float64
	MinBkgFano    float64
	MaxBkgFano    float64
}

// Analysis is one configured (binsize, offset) sliding window over the base
// buffer: spec section 4.4's per-analysis state. Region boundaries are fixed
// distances from the live edge (the most recently appended base row) and
// never change after construction; only the accumulators evolve as base bins
// arrive.
type Analysis struct {
	params *Params

	binsizeMs int
	offsetMs  int
	rebin     int // R = binsize/L

	// Distances (in base-bin units, increasing with age) from the live edge
	// to the near (freshest) boundary of each region. Regions occupy
	// [start, start+len) in this distance space. Trailing regions sit
	// closest to the live edge (most recently appended rows) and leading
	// regions sit farthest (oldest rows): a detector's trailing background
	// is the window immediately behind the search window, while leading
	// background is the window farthest in the past.
	trailingBGStart   int
	trailingExclStart int
	searchStart       int
	leadingExclStart  int
	leadingBGStart    int
	regionEnd         int // == leadingBGStart + bgLeadingBins; online threshold

	bgLeadingBins, bgTrailingBins int
	nBg                           float64 // (bg_leading+bg_trailing)/binsize, in B-wide bin units

	SumBG   []int64
	SumBGSq []int64
	SumSW   []int64

	Qualified  []bool
	NDomActive int

	NSeen          int64
	NSinceLastEval int64

	Xi, Dmu, VarDmu, Chi2 float64
	UTimeSW               int64

	LastToggled int
}

// NewAnalysis constructs one analysis for binsizeMs/offsetMs against the
// shared params and background/exclusion geometry (all in ms). t0 is the
// year-epoch tenth-ns time the engine's base buffer starts counting from.
// UTimeSW starts at t0 minus the search window's distance from the live edge,
// so after each update it is the absolute time of the search window's upper
// edge, which FRA containment checks and reported trigger times rely on.
func NewAnalysis(binsizeMs, offsetMs int, bgLeadingMs, bgTrailingMs, exclLeadingMs, exclTrailingMs int, p *Params, t0 int64) *Analysis {
	if binsizeMs%BasePeriodMs != 0 {
		panic("analysis: binsize must be a multiple of the base period")
	}
	if offsetMs < 0 || offsetMs >= binsizeMs || offsetMs%BasePeriodMs != 0 {
		panic("analysis: offset out of range")
	}
	r := binsizeMs / BasePeriodMs
	roff := offsetMs / BasePeriodMs
	bgl := bgLeadingMs / BasePeriodMs
	bgt := bgTrailingMs / BasePeriodMs
	el := exclLeadingMs / BasePeriodMs
	et := exclTrailingMs / BasePeriodMs

	a := &Analysis{
		params:            p,
		binsizeMs:         binsizeMs,
		offsetMs:          offsetMs,
		rebin:             r,
		bgLeadingBins:     bgl,
		bgTrailingBins:    bgt,
		trailingBGStart:   0,
		trailingExclStart: bgt,
		searchStart:       bgt + et + roff,
		SumBG:             make([]int64, p.N),
		SumBGSq:           make([]int64, p.N),
		SumSW:             make([]int64, p.N),
		Qualified:         make([]bool, p.N),
	}
	a.leadingExclStart = a.searchStart + r
	a.leadingBGStart = a.leadingExclStart + el
	a.regionEnd = a.leadingBGStart + bgl
	a.nBg = float64(bgl+bgt) / float64(r)
	a.UTimeSW = t0 - int64(a.searchStart)*BasePeriodMs*TenthNsPerMs
	return a
}

// Binsize returns B in ms.
func (a *Analysis) Binsize() int { return a.binsizeMs }

// Offset returns O in ms.
func (a *Analysis) Offset() int { return a.offsetMs }

// Rebin returns R = B/L.
func (a *Analysis) Rebin() int { return a.rebin }

// RegionEnd is the base-buffer capacity (in rows, measured from the live
// edge) this analysis needs available to be fully backed by real data.
func (a *Analysis) RegionEnd() int { return a.regionEnd }

// SearchWindowDistance returns the distance, in base-bin rows from the live
// edge, to the near (freshest) boundary of the search window. Callers that
// need to locate this analysis's search window again after more bins have
// arrived add the number of bins written since the distance was captured.
func (a *Analysis) SearchWindowDistance() int { return a.searchStart }

// Online reports whether enough base bins have ever arrived (RegionEnd rows)
// to fill every region, out to the far edge of the leading background, with
// real (non-padding) data.
func (a *Analysis) Online() bool { return a.NSeen >= int64(a.regionEnd) }

// updatable reports whether exactly R new base bins have arrived since the
// last sum update (the cadence gate); it is true for exactly one call to
// Update out of every R.
func (a *Analysis) updatable() bool { return a.NSinceLastEval >= int64(a.rebin) }

// Triggerable reports whether this analysis may currently contribute a
// trigger candidate.
func (a *Analysis) Triggerable(justUpdated bool) bool {
	return justUpdated && a.Online() && a.NDomActive >= a.params.MinActiveDoms
}

// Update feeds one newly-appended base-bin row into the analysis. buf is the
// handler's base buffer, already containing the new row as its newest
// (RowFromEnd(0)). It returns true on cycles where sums, qualification, and
// xi were actually recomputed (the cadence-gated updatable predicate).
func (a *Analysis) Update(buf *circular.Buffer[uint64]) bool {
	a.NSeen++
	a.NSinceLastEval++
	if !a.updatable() {
		return false
	}
	a.NSinceLastEval = 0
	a.updateSums(buf)
	a.UTimeSW += int64(a.binsizeMs) * TenthNsPerMs
	if !a.Online() {
		return false
	}
	a.updateQualification()
	if a.NDomActive >= a.params.MinActiveDoms {
		a.computeXi()
	} else {
		a.Xi, a.Dmu, a.VarDmu, a.Chi2 = 0, 0, 0, 0
	}
	return true
}

func sumRows(buf *circular.Buffer[uint64], distanceStart, count int) []int64 {
	n := buf.Width()
	out := make([]int64, n)
	for d := distanceStart; d < distanceStart+count; d++ {
		row := buf.RowFromEnd(d)
		for c := 0; c < n; c++ {
			out[c] += int64(row[c])
		}
	}
	return out
}

// updateSums applies the incremental add/subtract step described in spec
// section 4.4: each region gains a new R-wide edge at its near (live-edge
// facing) boundary and loses the R-wide edge that has just aged past its far
// boundary, computed by direct summation so the running totals never drift
// from a from-scratch recomputation. A region's far edge is exactly where
// the next, older region begins, so the subtracted slice is read at the
// start of that neighbor (leadingExclStart for the search window, regionEnd
// for leading background) rather than at its own start+count-R.
func (a *Analysis) updateSums(buf *circular.Buffer[uint64]) {
	r := a.rebin
	addbgT := sumRows(buf, a.trailingBGStart, r)
	subbgT := sumRows(buf, a.trailingExclStart, r)
	addsw := sumRows(buf, a.searchStart, r)
	subsw := sumRows(buf, a.leadingExclStart, r)
	addbgL := sumRows(buf, a.leadingBGStart, r)
	subbgL := sumRows(buf, a.regionEnd, r)

	for c := range a.SumBG {
		a.SumSW[c] += addsw[c] - subsw[c]
		a.SumBG[c] += addbgL[c] + addbgT[c] - subbgL[c] - subbgT[c]
		a.SumBGSq[c] += addbgL[c]*addbgL[c] + addbgT[c]*addbgT[c] - subbgL[c]*subbgL[c] - subbgT[c]*subbgT[c]
	}
}

// Mean returns mu[c] for the given channel.
func (a *Analysis) Mean(c int) float64 {
	if a.nBg <= 0 {
		return 0
	}
	return float64(a.SumBG[c]) / a.nBg
}

// Variance returns var[c] for the given channel.
func (a *Analysis) Variance(c int) float64 {
	if a.nBg <= 0 {
		return 0
	}
	sb := float64(a.SumBG[c])
	return (a.nBg*float64(a.SumBGSq[c]) - sb*sb) / (a.nBg * a.nBg)
}

// Fano returns var[c]/mu[c], or 0 when mu[c] <= 0.
func (a *Analysis) Fano(c int) float64 {
	mu := a.Mean(c)
	if mu <= 0 {
		return 0
	}
	return a.Variance(c) / mu
}

func (a *Analysis) updateQualification() {
	toggled := 0
	active := 0
	for c := range a.Qualified {
		mu := a.Mean(c)
		fano := a.Fano(c)
		good := mu > a.params.MinBkgRate && mu < a.params.MaxBkgRate &&
			fano > a.params.MinBkgFano && fano < a.params.MaxBkgFano
		if good != a.Qualified[c] {
			toggled++
			a.Qualified[c] = good
		}
		if a.Qualified[c] {
			active++
		}
	}
	a.LastToggled = toggled
	a.NDomActive = active
}

func (a *Analysis) computeXi() {
	var s1, s2, chi2 float64
	for c, q := range a.Qualified {
		if !q {
			continue
		}
		mu := a.Mean(c)
		v := a.Variance(c)
		eps := a.params.Epsilon[c]
		rate := float64(a.SumSW[c])
		signal := rate - mu
		if v > 0 {
			s1 += signal * eps / v
			s2 += eps * eps / v
		}
		denom := v + eps*math.Abs(signal)
		if denom > 0 {
			resid := rate - (mu + eps*signal)
			chi2 += resid * resid / denom
		}
	}
	if s2 <= 0 {
		a.Dmu, a.VarDmu, a.Xi = 0, 0, 0
		a.Chi2 = chi2
		return
	}
	a.Dmu = s1 / s2
	a.VarDmu = 1 / s2
	a.Xi = a.Dmu / math.Sqrt(a.VarDmu)
	a.Chi2 = chi2
}
