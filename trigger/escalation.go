package trigger

import (
	"math"
	"sort"
)

// EscalationLevel is one rung of the flattened trigger-level inheritance
// tree from the source implementation: an uncorrected threshold and a
// muon-corrected threshold, both on the xi scale.
type EscalationLevel struct {
	Name          string
	Threshold     float64
	ThresholdCorr float64
}

// escalationTable is sorted ascending by Threshold at package init, mirroring
// the source's descending-threshold processing order (walked in reverse at
// lookup time).
var escalationTable = func() []EscalationLevel {
	t := []EscalationLevel{
		{Name: "primary", Threshold: 4.0, ThresholdCorr: math.Inf(-1)},
		{Name: "basic", Threshold: 6.0, ThresholdCorr: 4.0},
		{Name: "sn-wg", Threshold: 7.0, ThresholdCorr: 4.4},
		{Name: "silver", Threshold: 8.0, ThresholdCorr: 8.0},
		{Name: "snews", Threshold: 8.4, ThresholdCorr: 5.8},
		{Name: "gold", Threshold: 10.0, ThresholdCorr: 10.0},
	}
	sort.Slice(t, func(i, j int) bool { return t[i].Threshold < t[j].Threshold })
	return t
}()

// EscalationLevels returns the flattened table, ascending by threshold.
func EscalationLevels() []EscalationLevel {
	out := make([]EscalationLevel, len(escalationTable))
	copy(out, escalationTable)
	return out
}

// Label walks the table highest-threshold-first and returns the name of the
// first level whose (possibly muon-corrected) threshold is at or below xi.
// Falls back to the lowest level ("primary") if xi clears nothing else.
func Label(xi float64, corrected bool) string {
	for i := len(escalationTable) - 1; i >= 0; i-- {
		lvl := escalationTable[i]
		th := lvl.Threshold
		if corrected {
			th = lvl.ThresholdCorr
		}
		if xi >= th {
			return lvl.Name
		}
	}
	return escalationTable[0].Name
}
