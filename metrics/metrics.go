package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Set is the engine's collector bundle. A nil *Set is safe to call every
// method on; it simply records nothing. Construct one with New and
// register it against the registerer the CLI owns.
type Set struct {
	binsProcessed       prometheus.Counter
	payloadsSkipped     *prometheus.CounterVec
	triggersRaised      prometheus.Counter
	candidatesFinalized prometheus.Counter
	sinkMessagesDropped prometheus.Counter
	qualifiedChannels   *prometheus.GaugeVec
	xi                  *prometheus.GaugeVec
}

// New builds a Set and registers its collectors against reg. reg must not
// be nil; pass a fresh prometheus.NewRegistry() in tests to avoid
// colliding with other Sets registered in the same process.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		binsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sico_bins_processed_total",
			Help: "Total number of 500ms base bins accumulated and dispatched to the analysis bank.",
		}),
		payloadsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sico_payloads_skipped_total",
			Help: "Total number of input payloads skipped, by reason.",
		}, []string{"reason"}),
		triggersRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sico_triggers_raised_total",
			Help: "Total number of primary threshold crossings accepted as a new or replacement candidate.",
		}),
		candidatesFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sico_candidates_finalized_total",
			Help: "Total number of candidates finalized and handed to enrichment.",
		}),
		sinkMessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sico_sink_messages_dropped_total",
			Help: "Total number of result messages dropped after exhausting the sink's bounded retry budget.",
		}),
		qualifiedChannels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sico_qualified_channels",
			Help: "Number of channels currently passing background-rate and Fano-factor qualification, per analysis.",
		}, []string{"binsize_ms", "offset_ms"}),
		xi: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sico_xi",
			Help: "Most recently computed xi test statistic, per analysis.",
		}, []string{"binsize_ms", "offset_ms"}),
	}
	reg.MustRegister(
		s.binsProcessed,
		s.payloadsSkipped,
		s.triggersRaised,
		s.candidatesFinalized,
		s.sinkMessagesDropped,
		s.qualifiedChannels,
		s.xi,
	)
	return s
}

// Reasons for PayloadsSkipped, matching spec's labeled skip causes.
const (
	ReasonUnknownChannel      = "unknown-channel"
	ReasonBadMagic            = "bad-magic"
	ReasonTruncated           = "truncated"
	ReasonTimestampRegression = "timestamp-regression"
)

func (s *Set) BinsProcessed() {
	if s == nil {
		return
	}
	s.binsProcessed.Inc()
}

func (s *Set) PayloadsSkipped(reason string) {
	if s == nil {
		return
	}
	s.payloadsSkipped.WithLabelValues(reason).Inc()
}

func (s *Set) TriggersRaised() {
	if s == nil {
		return
	}
	s.triggersRaised.Inc()
}

func (s *Set) CandidatesFinalized() {
	if s == nil {
		return
	}
	s.candidatesFinalized.Inc()
}

func (s *Set) SinkMessagesDropped() {
	if s == nil {
		return
	}
	s.sinkMessagesDropped.Inc()
}

func (s *Set) QualifiedChannels(binsizeMs, offsetMs int, n int) {
	if s == nil {
		return
	}
	s.qualifiedChannels.WithLabelValues(strconv.Itoa(binsizeMs), strconv.Itoa(offsetMs)).Set(float64(n))
}

func (s *Set) Xi(binsizeMs, offsetMs int, xi float64) {
	if s == nil {
		return
	}
	s.xi.WithLabelValues(strconv.Itoa(binsizeMs), strconv.Itoa(offsetMs)).Set(xi)
}
