package enrich

import (
	"context"
	"time"

	"github.com/icecube-sndaq/sico/analysis"
	"github.com/icecube-sndaq/sico/circular"
	"github.com/icecube-sndaq/sico/ext"
	"github.com/icecube-sndaq/sico/trigger"
)

// Sources bundles the external collaborators enrichment needs.
type Sources struct {
	MuonRateTriggerBinsize ext.MuonRateSource
	MuonRate500ms          ext.MuonRateSource
	YearStart              time.Time // converts year-epoch tenth-ns to wall time
}

func tenthNsToTime(yearStart time.Time, tenthNs int64) time.Time {
	return yearStart.Add(time.Duration(tenthNs/10) * time.Nanosecond)
}

// Enrich fills c's enrichment fields in place: muon-veto rate series at the
// candidate's binsize and at 500ms covering [T-bg_trailing, T+bg_leading],
// and a lightcurve of qualified-channel hit counts at the candidate's
// binsize drawn from the base buffer.
func Enrich(ctx context.Context, c *trigger.Candidate, buf *circular.Buffer[uint64], nWrittenNow int64, bgLeadingMs, bgTrailingMs, lcLeadingMs, lcTrailingMs int, src Sources) error {
	tTrigger := tenthNsToTime(src.YearStart, c.TTrigger)
	start := tTrigger.Add(-time.Duration(bgTrailingMs) * time.Millisecond)
	stop := tTrigger.Add(time.Duration(bgLeadingMs) * time.Millisecond)

	if src.MuonRateTriggerBinsize != nil {
		series, err := src.MuonRateTriggerBinsize.Series(ctx, start, stop, c.Binsize)
		if err != nil {
			return err
		}
		c.MuonRateTriggerBinsize = series
	}
	if src.MuonRate500ms != nil {
		series, err := src.MuonRate500ms.Series(ctx, start, stop, analysis.BasePeriodMs)
		if err != nil {
			return err
		}
		c.MuonRate500ms = series
	}

	buildLightcurve(c, buf, c.Qualified, nWrittenNow, lcLeadingMs, lcTrailingMs)
	return nil
}

// buildLightcurve reads the contiguous base-buffer slice spanning
// [T-lcLeadingMs, T+lcTrailingMs) (T = the search window's position at
// trigger time, relocated to its current distance from the live edge),
// sums qualified channels into a per-base-bin scalar series, then rebins
// that series into candidate.Binsize-wide bins.
func buildLightcurve(c *trigger.Candidate, buf *circular.Buffer[uint64], qualified []bool, nWrittenNow int64, lcLeadingMs, lcTrailingMs int) {
	elapsed := int(nWrittenNow - c.NWrittenAtTrigger)
	triggerDistance := c.SearchWindowDistance + elapsed

	leadingBins := lcLeadingMs / analysis.BasePeriodMs
	trailingBins := lcTrailingMs / analysis.BasePeriodMs

	// Window in distance space [nearDistance, farDistance), oldest (largest
	// distance) to newest.
	farDistance := triggerDistance + leadingBins
	nearDistance := triggerDistance - trailingBins
	if nearDistance < 0 {
		nearDistance = 0
	}
	if farDistance > buf.Capacity() {
		farDistance = buf.Capacity()
	}

	perBin := make([]uint64, 0, farDistance-nearDistance)
	for d := farDistance - 1; d >= nearDistance; d-- {
		row := buf.RowFromEnd(d)
		var sum uint64
		for ch, ok := range qualified {
			if ok {
				sum += row[ch]
			}
		}
		perBin = append(perBin, sum)
	}

	r := c.Binsize / analysis.BasePeriodMs
	offsetMs := lcLeadingMs % c.Binsize
	firstBinRows := r
	if offsetMs != 0 {
		firstBinRows = (c.Binsize - offsetMs) / analysis.BasePeriodMs
		if firstBinRows == 0 {
			firstBinRows = r
		}
	}

	var data []uint64
	i := 0
	for i < len(perBin) {
		width := r
		if len(data) == 0 {
			width = firstBinRows
		}
		if i+width > len(perBin) {
			width = len(perBin) - i
		}
		var sum uint64
		for _, v := range perBin[i : i+width] {
			sum += v
		}
		data = append(data, sum)
		i += width
	}

	c.Lightcurve = data
	c.LightcurveOffsetMs = offsetMs
}
