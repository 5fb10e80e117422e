package trigger

// Candidate is a snapshot of one analysis at trigger time (spec section 3).
// Enrichment fields are left zero-valued until the enrich package populates
// them during finalization.
type Candidate struct {
	Xi       float64
	XiCorr   float64
	TTrigger int64 // year-epoch tenth-ns
	Binsize  int
	Offset   int

	// History is a copy of the analysis's xi history ring at trigger time,
	// oldest first.
	History []float64

	// Qualified is a copy of the analysis's channel qualification mask at
	// trigger time, indexed by dense channel index. Enrichment sums this
	// set of channels when building the lightcurve.
	Qualified []bool

	// NWrittenAtTrigger and SearchWindowDistance let enrichment relocate
	// this candidate's search window in the base buffer after further bins
	// have been appended: the window's current distance from the live edge
	// is SearchWindowDistance + (current n_written - NWrittenAtTrigger).
	NWrittenAtTrigger    int64
	SearchWindowDistance int

	// Cancelled marks a candidate force-finalized by cooperative
	// cancellation rather than by the ordinary window-close path.
	Cancelled bool

	// Enrichment, populated by enrich.Enrich on finalization.
	MuonRateTriggerBinsize []uint64
	MuonRate500ms          []uint64
	Lightcurve             []uint64
	LightcurveOffsetMs     int
}
