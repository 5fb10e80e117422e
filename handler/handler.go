package handler

import (
	"github.com/icecube-sndaq/sico/analysis"
	"github.com/icecube-sndaq/sico/circular"
)

// HistoryLen is the xi-history ring length: 600s / 500ms.
const HistoryLen = 1200

// xiRing is a fixed-length circular float64 buffer. It is its own small
// type rather than an instantiation of circular.Buffer[T], since that type
// is constrained to unsigned integer counts (the staging and base grids);
// xi is a signed floating-point statistic.
type xiRing struct {
	data [HistoryLen]float64
	pos  int
	n    int
}

func (r *xiRing) push(v float64) {
	r.data[r.pos] = v
	r.pos = (r.pos + 1) % HistoryLen
	if r.n < HistoryLen {
		r.n++
	}
}

// Recent returns up to n most recent values, oldest first.
func (r *xiRing) Recent() []float64 {
	out := make([]float64, r.n)
	start := (r.pos - r.n + HistoryLen) % HistoryLen
	for i := 0; i < r.n; i++ {
		out[i] = r.data[(start+i)%HistoryLen]
	}
	return out
}

// Handler is component E: it owns the base buffer and the analysis bank.
type Handler struct {
	n        int
	base     *circular.Buffer[uint64]
	bank     []*analysis.Analysis
	history  []xiRing
	nWritten int64
}

// New constructs a handler over n channels, a base buffer of the given
// capacity (see analysis.BaseBufferCapacity), and the given analysis bank.
func New(n, baseCapacity int, bank []*analysis.Analysis) *Handler {
	return &Handler{
		n:       n,
		base:    circular.NewBuffer[uint64](baseCapacity, n, 2),
		bank:    bank,
		history: make([]xiRing, len(bank)),
	}
}

// Bank returns the analyses this handler drives, in construction order.
func (h *Handler) Bank() []*analysis.Analysis { return h.bank }

// Base returns the underlying base buffer, for read-only inspection
// (lightcurve construction, diagnostics).
func (h *Handler) Base() *circular.Buffer[uint64] { return h.base }

// NWritten returns the total number of base bins ever appended.
func (h *Handler) NWritten() int64 { return h.nWritten }

// History returns the most recent xi values recorded for the analysis at
// bank index i, oldest first.
func (h *Handler) History(i int) []float64 { return h.history[i].Recent() }

// Triggerable is a snapshot identifying one analysis that became eligible
// to contribute a trigger candidate on the base bin just processed.
type Triggerable struct {
	Index    int
	Analysis *analysis.Analysis
}

// Advance appends one new base-bin row (spec section 4.3's accumulator
// output), drives every analysis's sum update, records each analysis's
// current xi into its history ring, and returns the analyses that became
// triggerable this cycle.
func (h *Handler) Advance(row []uint64) []Triggerable {
	if len(row) != h.n {
		panic("handler: row width mismatch")
	}
	h.base.Append(row)
	h.nWritten++

	var triggerable []Triggerable
	for i, a := range h.bank {
		fired := a.Update(h.base)
		h.history[i].push(a.Xi)
		if a.Triggerable(fired) {
			triggerable = append(triggerable, Triggerable{Index: i, Analysis: a})
		}
	}
	return triggerable
}
