package ext

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
)

const muonRateTimeLayout = "2006-01-02 15:04:05.000000000"

// TextMuonRateSource parses the muon-veto rate text format (spec section
// 6): one "timestamp<ws>count" record per line, at a fixed bin width
// declared when the source is loaded (500ms or the run's trigger binsize,
// depending on which file is loaded).
type TextMuonRateSource struct {
	binMs  int
	times  []time.Time
	counts []uint64
}

// LoadTextMuonRateSource reads and sorts every record from r.
func LoadTextMuonRateSource(r io.Reader, binMs int) (*TextMuonRateSource, error) {
	s := &TextMuonRateSource{binMs: binMs}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		i := strings.LastIndexAny(line, " \t")
		if i < 0 {
			return nil, errors.E("ext: malformed muon rate line", line)
		}
		ts, err := time.Parse(muonRateTimeLayout, strings.TrimSpace(line[:i]))
		if err != nil {
			return nil, errors.E(err, "ext: parsing muon rate timestamp", line)
		}
		count, err := strconv.ParseUint(strings.TrimSpace(line[i+1:]), 10, 64)
		if err != nil {
			return nil, errors.E(err, "ext: parsing muon rate count", line)
		}
		s.times = append(s.times, ts)
		s.counts = append(s.counts, count)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(err, "ext: reading muon rate source")
	}
	idx := make([]int, len(s.times))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return s.times[idx[a]].Before(s.times[idx[b]]) })
	sortedTimes := make([]time.Time, len(idx))
	sortedCounts := make([]uint64, len(idx))
	for i, j := range idx {
		sortedTimes[i] = s.times[j]
		sortedCounts[i] = s.counts[j]
	}
	s.times, s.counts = sortedTimes, sortedCounts
	return s, nil
}

// Series implements ext.MuonRateSource, returning the counts recorded in
// [start, stop). binMs must match the width this source was loaded with.
func (s *TextMuonRateSource) Series(ctx context.Context, start, stop time.Time, binMs int) ([]uint64, error) {
	if binMs != s.binMs {
		return nil, errors.E("ext: muon rate source bin width mismatch", strconv.Itoa(binMs), strconv.Itoa(s.binMs))
	}
	lo := sort.Search(len(s.times), func(i int) bool { return !s.times[i].Before(start) })
	hi := sort.Search(len(s.times), func(i int) bool { return !s.times[i].Before(stop) })
	out := make([]uint64, hi-lo)
	copy(out, s.counts[lo:hi])
	return out, nil
}
