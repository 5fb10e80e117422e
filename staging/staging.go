package staging

import (
	"math"

	"github.com/grailbio/base/log"
)

// TickDurationTenthNs is the duration of one detector-clock scaler bin, in
// year-epoch 0.1ns units: 250 * 2^16 tenth-ns, approximately 1.6384ms.
const TickDurationTenthNs = 250 * 65536

// ColumnWidthTenthNs is the width of one staging-grid column: 2ms.
const ColumnWidthTenthNs = 20_000_000

// Buffer is the rolling write-ahead staging grid described in spec section
// 4.2: a ring of Depth() columns, each holding one 2ms count per channel.
// Column 0 of the logical window is always the oldest column not yet
// consumed by the accumulator; Deposit writes ahead of that point by however
// far a payload's timestamp places it, and Advance pops the front.
//
// Unlike circular.Buffer (which always exposes the most recently appended
// rows), this is a write-ahead/read-behind queue: the write cursor for a
// given tick is computed from its timestamp, while the read cursor only
// moves forward in fixed 2ms steps. The two data structures serve different
// access patterns even though both are "rolling 2-D buffers over
// (time-bin, channel)".
type Buffer struct {
	n        int
	depth    int
	grid     []uint16
	frontCol int64 // absolute column index of the oldest (front) column
	t0       int64 // tenth-ns timestamp of the start of column frontCol

	regressionDrops int64
	fastForwards    int64
}

// NewBuffer constructs a staging buffer for n channels with the given
// logical depth (K2 in spec notation), whose front column starts at t0
// (year-epoch tenth-ns).
func NewBuffer(n, depth int, t0 int64) *Buffer {
	if n <= 0 || depth <= 0 {
		panic("staging: n and depth must be positive")
	}
	return &Buffer{
		n:     n,
		depth: depth,
		grid:  make([]uint16, depth*n),
		t0:    t0,
	}
}

// Depth returns K2, the number of columns held at once.
func (b *Buffer) Depth() int { return b.depth }

// T0 returns the year-epoch tenth-ns timestamp of the current front column.
func (b *Buffer) T0() int64 { return b.t0 }

// RegressionDrops counts payloads dropped for timestamp regression.
func (b *Buffer) RegressionDrops() int64 { return b.regressionDrops }

// FastForwards counts payloads that forced the buffer to skip ahead.
func (b *Buffer) FastForwards() int64 { return b.fastForwards }

func (b *Buffer) slot(colAbs int64) []uint16 {
	idx := int(((colAbs % int64(b.depth)) + int64(b.depth)) % int64(b.depth))
	return b.grid[idx*b.n : (idx+1)*b.n]
}

// FrontColumn returns the oldest, not-yet-consumed column (one count per
// channel). The returned slice aliases internal storage and is only valid
// until the next Advance.
func (b *Buffer) FrontColumn() []uint16 {
	return b.slot(b.frontCol)
}

// Advance consumes the front column: it copies it out, zeroes the backing
// slot for reuse, and moves the read cursor (and t0) forward by one column
// width. The returned slice is an owned copy safe to retain.
func (b *Buffer) Advance() []uint16 {
	src := b.slot(b.frontCol)
	out := make([]uint16, b.n)
	copy(out, src)
	for i := range src {
		src[i] = 0
	}
	b.frontCol++
	b.t0 += ColumnWidthTenthNs
	return out
}

// Deposit rebins one payload's per-tick counts onto the staging grid for
// channel channelIdx, per spec section 4.2. payloadUTime is the year-epoch
// tenth-ns timestamp of counts[0]; each subsequent byte covers one
// TickDurationTenthNs-long clock tick.
//
// If the payload falls entirely before the current front column, it is
// dropped (timestamp regression) and dropped reports true. If it starts far
// enough in the future to not fit in the current window, the buffer is
// fast-forwarded: skipped columns are handed to onSkippedColumn (zero-filled,
// since no payload ever wrote them) in oldest-first order, exactly as
// Advance would have produced them, before the payload's own ticks are
// deposited.
func (b *Buffer) Deposit(channelIdx int, payloadUTime int64, counts []byte, onSkippedColumn func([]uint16)) (dropped bool) {
	if len(counts) == 0 {
		return false
	}
	lastTick := payloadUTime + int64(len(counts)-1)*TickDurationTenthNs
	if lastTick+TickDurationTenthNs <= b.t0 {
		b.regressionDrops++
		log.Debug.Printf("staging: dropping payload for channel %d, timestamp regression (t_p=%d, t0=%d)", channelIdx, payloadUTime, b.t0)
		return true
	}

	// Reserve room for a possible destructive split of the last tick into
	// the following column, so that case never has to drop counts.
	lastCol := floorDiv(lastTick-b.t0, ColumnWidthTenthNs)
	if lastCol+1 >= int64(b.depth) {
		b.fastForwards++
		target := b.frontCol + (lastCol + 1 - int64(b.depth) + 1)
		log.Debug.Printf("staging: fast-forwarding channel %d payload from col %d to %d (zero-fill)", channelIdx, b.frontCol, target)
		for b.frontCol < target {
			if onSkippedColumn != nil {
				onSkippedColumn(b.Advance())
			} else {
				b.Advance()
			}
		}
	}

	for k, c := range counts {
		if c == 0 {
			continue
		}
		tk := payloadUTime + int64(k)*TickDurationTenthNs
		if tk < b.t0 {
			// Only possible for leading ticks of a payload that straddles the
			// regression boundary; drop those individual ticks rather than the
			// whole payload.
			continue
		}
		jk := floorDiv(tk-b.t0, ColumnWidthTenthNs)
		if jk < 0 || jk >= int64(b.depth) {
			continue
		}
		colEnd := b.t0 + (jk+1)*ColumnWidthTenthNs
		tickEnd := tk + TickDurationTenthNs
		if tickEnd <= colEnd {
			// Tick lies entirely within one column.
			addCount(b.slot(b.frontCol+jk), channelIdx, uint16(c))
			continue
		}
		// Tick straddles the column boundary: split destructively so the
		// total deposited count across both columns equals c exactly.
		f := 1 - float64(colEnd-tk)/float64(TickDurationTenthNs)
		moved := uint16(math.Round(f * float64(c)))
		addCount(b.slot(b.frontCol+jk), channelIdx, uint16(c)-moved)
		if jk+1 < int64(b.depth) {
			addCount(b.slot(b.frontCol+jk+1), channelIdx, moved)
		}
	}
	return false
}

func addCount(col []uint16, channelIdx int, delta uint16) {
	col[channelIdx] += delta
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
