package analysis

// BuildBank constructs one Analysis per (binsize, offset) pair: for each
// binsize B in binsizesMs, offsets {0, 500, ..., B-500} when useOffsets is
// true, otherwise just {0}. The returned slice is ordered by binsize then
// offset, matching construction order in spec section 4.4. t0 (year-epoch
// tenth-ns) seeds every analysis's UTimeSW so the bank reports absolute
// search-window times from its very first update.
func BuildBank(binsizesMs []int, useOffsets bool, bgLeadingMs, bgTrailingMs, exclLeadingMs, exclTrailingMs int, p *Params, t0 int64) []*Analysis {
	var bank []*Analysis
	for _, b := range binsizesMs {
		offsets := []int{0}
		if useOffsets {
			offsets = offsets[:0]
			for o := 0; o < b; o += BasePeriodMs {
				offsets = append(offsets, o)
			}
		}
		for _, o := range offsets {
			bank = append(bank, NewAnalysis(b, o, bgLeadingMs, bgTrailingMs, exclLeadingMs, exclTrailingMs, p, t0))
		}
	}
	return bank
}

// BaseBufferCapacity computes K5, the base buffer capacity in rows, per spec
// section 4.4: large enough to simultaneously hold the trailing background
// window, trailing exclusion, every search window and its offsets, leading
// exclusion, leading background, and one extra max-binsize worth of slack
// for subtraction.
func BaseBufferCapacity(binsizesMs []int, bgLeadingMs, bgTrailingMs, exclLeadingMs, exclTrailingMs int) int {
	maxB := 0
	for _, b := range binsizesMs {
		if b > maxB {
			maxB = b
		}
	}
	total := bgLeadingMs + exclLeadingMs + bgTrailingMs + exclTrailingMs + 3*maxB
	k5 := (total + BasePeriodMs - 1) / BasePeriodMs
	return k5 - 1
}
