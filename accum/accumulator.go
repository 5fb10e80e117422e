package accum

// ColumnsPerBase is R5, the number of 2ms staging columns folded into one
// 500ms base column.
const ColumnsPerBase = 250

// Accumulator sums consecutive 2ms staging columns into one 500ms base
// column, per spec section 4.3.
type Accumulator struct {
	n           int
	countToBase int
	baseColumn  []uint64
}

// NewAccumulator constructs an accumulator for n channels.
func NewAccumulator(n int) *Accumulator {
	return &Accumulator{
		n:           n,
		countToBase: ColumnsPerBase,
		baseColumn:  make([]uint64, n),
	}
}

// Add folds one 2ms staging column into the running base column. It
// returns (column, true) once ColumnsPerBase columns have been folded,
// signalling that a base bin is ready; the returned slice is an owned copy
// safe for the caller to retain. Otherwise it returns (nil, false).
func (a *Accumulator) Add(staged []uint16) ([]uint64, bool) {
	if len(staged) != a.n {
		panic("accum: column width mismatch")
	}
	for i, v := range staged {
		a.baseColumn[i] += uint64(v)
	}
	a.countToBase--
	if a.countToBase > 0 {
		return nil, false
	}
	out := make([]uint64, a.n)
	copy(out, a.baseColumn)
	for i := range a.baseColumn {
		a.baseColumn[i] = 0
	}
	a.countToBase = ColumnsPerBase
	return out, true
}
