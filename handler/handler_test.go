package handler_test

import (
	"testing"

	"github.com/icecube-sndaq/sico/analysis"
	"github.com/icecube-sndaq/sico/handler"
	"github.com/stretchr/testify/require"
)

func params(n int) *analysis.Params {
	eps := make([]float64, n)
	for i := range eps {
		eps[i] = 1.0
	}
	return &analysis.Params{
		N:             n,
		Epsilon:       eps,
		MinActiveDoms: 1,
		MinBkgRate:    5,
		MaxBkgRate:    500,
		MinBkgFano:    0,
		MaxBkgFano:    10,
	}
}

// S1-style: constant low counts never cross threshold, and the history ring
// records exactly one entry per base bin (oldest-first, length-capped).
func TestHandlerAdvanceRecordsHistoryEveryBin(t *testing.T) {
	n := 2
	p := params(n)
	bank := analysis.BuildBank([]int{500}, false, 2000, 2000, 500, 500, p, 0)
	cap := analysis.BaseBufferCapacity([]int{500}, 2000, 2000, 500, 500)
	h := handler.New(n, cap, bank)

	for i := 0; i < 50; i++ {
		h.Advance([]uint64{30, 30})
	}
	require.Equal(t, int64(50), h.NWritten())
	require.Len(t, h.History(0), 50)
}

func TestHandlerHistoryRingCapsAtLength(t *testing.T) {
	n := 1
	p := params(n)
	bank := analysis.BuildBank([]int{500}, false, 1000, 1000, 500, 500, p, 0)
	cap := analysis.BaseBufferCapacity([]int{500}, 1000, 1000, 500, 500)
	h := handler.New(n, cap, bank)

	for i := 0; i < handler.HistoryLen+25; i++ {
		h.Advance([]uint64{10})
	}
	require.Len(t, h.History(0), handler.HistoryLen)
}

// S2-style: a sustained excess across all channels eventually makes the
// single B=500 analysis triggerable with a positive xi.
func TestHandlerAdvanceReportsTriggerable(t *testing.T) {
	n := 4
	p := params(n)
	bank := analysis.BuildBank([]int{500}, false, 3000, 3000, 500, 500, p, 0)
	cap := analysis.BaseBufferCapacity([]int{500}, 3000, 3000, 500, 500)
	h := handler.New(n, cap, bank)

	baseline := []uint64{100, 100, 100, 100}
	regionEnd := bank[0].RegionEnd()
	for i := 0; i < regionEnd+5; i++ {
		h.Advance(baseline)
	}

	// The search window sits bg_trailing+excl_trailing = 7 base bins behind
	// the live edge, so the excess needs 8 bins to reach it.
	excess := []uint64{150, 150, 150, 150}
	var lastTrig []handler.Triggerable
	for i := 0; i < 8; i++ {
		lastTrig = h.Advance(excess)
	}
	require.NotEmpty(t, lastTrig)
	require.Greater(t, lastTrig[0].Analysis.Xi, 0.0)
}
