// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"io"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/icecube-sndaq/sico/accum"
	"github.com/icecube-sndaq/sico/analysis"
	"github.com/icecube-sndaq/sico/config"
	"github.com/icecube-sndaq/sico/enrich"
	"github.com/icecube-sndaq/sico/ext"
	"github.com/icecube-sndaq/sico/handler"
	"github.com/icecube-sndaq/sico/metrics"
	"github.com/icecube-sndaq/sico/staging"
	"github.com/icecube-sndaq/sico/trigger"
)

// stagingDepth is K2, the number of 2ms columns the staging buffer holds at
// once. It must comfortably exceed the drain margin below so that channels
// whose payloads lag behind the fastest channel by a few columns still land
// in an unconsumed slot.
const stagingDepth = 4000

// drainMarginColumns bounds how far behind the newest-seen payload column
// the engine is willing to let the front column sit before it is safe to
// fold into the base accumulator: payloads for other channels may still be
// in flight for columns this close to the front. This is the engine's own
// cadence decision (spec section 9's generator/iterator note: the loop
// owns the cadence, not the reader), not a property of the staging buffer
// itself.
const drainMarginColumns = 50

// sinkMaxRetries bounds the bounded-retry policy for a single Sink.Publish
// call before the message is counted as dropped (spec sections 5, 7).
const sinkMaxRetries = 3

// Sources bundles the enrichment collaborators threaded down from the CLI.
type Sources struct {
	ChannelMap ext.ChannelMap
	Sink       ext.Sink
	Enrich     enrich.Sources
}

// Engine drives one run of the SICO pipeline end to end: payloads arrive
// through a PayloadReader, are rebinned and accumulated into base bins, fed
// through the analysis bank, and evaluated by the configured trigger
// variant. Finalized candidates are enriched and published to the sink.
//
// Engine holds the single logical thread of mutation described in spec
// section 5: every exported method here is expected to be called from one
// goroutine. A separate producer may feed the PayloadReader concurrently
// (it is itself expected to serialize reads), but Engine itself performs
// no internal synchronization.
type Engine struct {
	cfg     config.Config
	chanMap ext.ChannelMap
	sink    ext.Sink
	sources enrich.Sources
	metrics *metrics.Set

	staging *staging.Buffer
	accum   *accum.Accumulator
	handler *handler.Handler

	primary *trigger.PrimaryState
	fra     *trigger.FRAState

	latestUTime int64

	cancelled bool
}

// New constructs an Engine for cfg against n channels with per-channel
// efficiencies eps (len(eps) must equal n), starting its staging clock at
// t0 (year-epoch tenth-ns — typically the timestamp of the first payload).
func New(cfg config.Config, n int, eps []float64, src Sources, t0 int64, m *metrics.Set) *Engine {
	if len(eps) != n {
		panic("engine: epsilon slice length must equal channel count")
	}
	params := &analysis.Params{
		N:             n,
		Epsilon:       eps,
		MinActiveDoms: cfg.MinActiveDoms,
		MinBkgRate:    cfg.MinBkgRate,
		MaxBkgRate:    cfg.MaxBkgRate,
		MinBkgFano:    cfg.MinBkgFano,
		MaxBkgFano:    cfg.MaxBkgFano,
	}
	bank := analysis.BuildBank(cfg.BinsizesMs, cfg.UseOffsets, cfg.BgLeadingMs, cfg.BgTrailingMs, cfg.ExclLeadingMs, cfg.ExclTrailingMs, params, t0)
	baseCap := analysis.BaseBufferCapacity(cfg.BinsizesMs, cfg.BgLeadingMs, cfg.BgTrailingMs, cfg.ExclLeadingMs, cfg.ExclTrailingMs)

	e := &Engine{
		cfg:     cfg,
		chanMap: src.ChannelMap,
		sink:    src.Sink,
		sources: src.Enrich,
		metrics: m,
		staging: staging.NewBuffer(n, stagingDepth, t0),
		accum:   accum.NewAccumulator(n),
		handler: handler.New(n, baseCap, bank),
	}
	switch cfg.Mode {
	case config.ModeFRA:
		e.fra = trigger.NewFRAState(cfg.FRATriggerTimeTenthNs)
	default:
		e.primary = trigger.NewPrimaryState(cfg.PrimaryThreshold, cfg.TriggerWindowMs)
	}
	return e
}

// Handler exposes the underlying analysis handler for diagnostics and
// testing.
func (e *Engine) Handler() *handler.Handler { return e.handler }

// Run drives the pipeline from r until r.Next returns io.EOF or ctx is
// cancelled. Candidates finalized along the way are enriched and published
// to the sink; cancellation force-closes any open trigger window and
// publishes its candidate with a cancelled marker before returning.
func (e *Engine) Run(ctx context.Context, r ext.PayloadReader, requestID string) error {
	for {
		select {
		case <-ctx.Done():
			e.cancel(ctx, requestID)
			return nil
		default:
		}

		p, err := r.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, "engine: reading payload")
		}
		if err := e.ingest(ctx, p, requestID); err != nil {
			return err
		}
	}
	return nil
}

// ingest deposits one payload into the rebinner, then drains and folds
// every staging column that is now safely behind the live edge.
func (e *Engine) ingest(ctx context.Context, p ext.Payload, requestID string) error {
	idx, ok := e.chanMap.Index(p.ChannelID)
	if !ok {
		e.metrics.PayloadsSkipped(metrics.ReasonUnknownChannel)
		return nil
	}

	lastTick := p.UTime
	if n := len(p.Counts); n > 0 {
		lastTick += int64(n-1) * staging.TickDurationTenthNs
	}
	if lastTick > e.latestUTime {
		e.latestUTime = lastTick
	}

	dropped := e.staging.Deposit(idx, p.UTime, p.Counts, func(col []uint16) {
		if err := e.foldColumn(ctx, col, requestID); err != nil {
			log.Error.Printf("engine: folding fast-forwarded column: %v", err)
		}
	})
	if dropped {
		e.metrics.PayloadsSkipped(metrics.ReasonTimestampRegression)
	}

	margin := int64(drainMarginColumns) * staging.ColumnWidthTenthNs
	for e.staging.T0()+staging.ColumnWidthTenthNs <= e.latestUTime-margin {
		col := e.staging.Advance()
		if err := e.foldColumn(ctx, col, requestID); err != nil {
			return err
		}
	}
	return nil
}

// foldColumn folds one consumed 2ms staging column through the accumulator
// and, once a full 500ms base bin is ready, drives the analysis bank and
// trigger evaluation for that bin.
func (e *Engine) foldColumn(ctx context.Context, col []uint16, requestID string) error {
	row, ready := e.accum.Add(col)
	if !ready {
		return nil
	}
	e.metrics.BinsProcessed()
	triggerable := e.handler.Advance(row)
	for _, tr := range triggerable {
		e.metrics.QualifiedChannels(tr.Analysis.Binsize(), tr.Analysis.Offset(), tr.Analysis.NDomActive)
		e.metrics.Xi(tr.Analysis.Binsize(), tr.Analysis.Offset(), tr.Analysis.Xi)
	}
	return e.evaluateTrigger(ctx, triggerable, requestID)
}

func (e *Engine) evaluateTrigger(ctx context.Context, triggerable []handler.Triggerable, requestID string) error {
	nWritten := e.handler.NWritten()
	if e.primary != nil {
		before := e.primary.TriggerCount()
		cand := e.primary.Observe(nWritten, triggerable, e.handler.History)
		if e.primary.TriggerCount() > before {
			e.metrics.TriggersRaised()
		}
		if cand != nil {
			return e.finalize(ctx, cand, requestID)
		}
		return nil
	}
	for _, cand := range e.fra.Observe(nWritten, triggerable, e.handler.History) {
		if err := e.finalize(ctx, cand, requestID); err != nil {
			return err
		}
	}
	return nil
}

// finalize enriches a closed candidate and publishes it, applying the
// sink's bounded-retry/drop policy (spec sections 5, 7).
func (e *Engine) finalize(ctx context.Context, cand *trigger.Candidate, requestID string) error {
	e.metrics.CandidatesFinalized()
	if err := enrich.Enrich(ctx, cand, e.handler.Base(), e.handler.NWritten(), e.cfg.BgLeadingMs, e.cfg.BgTrailingMs, e.cfg.LcLeadingMs, e.cfg.LcTrailingMs, e.sources); err != nil {
		log.Error.Printf("engine: enriching candidate: %v", err)
	}
	processEscalation(cand)
	return e.publish(ctx, resultFromCandidate(requestID, cand))
}

// processEscalation walks the flattened escalation table highest-threshold
// first (spec section 9's inheritance-tree flattening) and logs the
// highest level this candidate clears, on both the uncorrected and
// muon-corrected scale. This stands in for the source's per-level
// "processing" action list; this repository's only registered action is
// the log line, since alert routing is an explicit non-goal (spec.md
// section 1).
func processEscalation(cand *trigger.Candidate) {
	log.Info.Printf("engine: candidate xi=%.3f binsize=%dms escalation=%s corrected-escalation=%s",
		cand.Xi, cand.Binsize, trigger.Label(cand.Xi, false), trigger.Label(cand.XiCorr, true))
}

// cancel force-closes any currently-open trigger window and publishes its
// candidate (marked cancelled) before the engine stops, per spec section 5.
func (e *Engine) cancel(ctx context.Context, requestID string) {
	if e.cancelled {
		return
	}
	e.cancelled = true
	var cand *trigger.Candidate
	if e.primary != nil {
		cand = e.primary.Finalize()
	}
	if cand == nil {
		return
	}
	if err := e.finalize(ctx, cand, requestID); err != nil {
		log.Error.Printf("engine: publishing cancelled candidate: %v", err)
	}
}

func resultFromCandidate(requestID string, c *trigger.Candidate) ext.Result {
	status := ext.StatusSuccess
	if c.Cancelled {
		status = ext.StatusFail
	}
	r := ext.Result{
		RequestID: requestID,
		Status:    status,
		Xi:        map[int]float64{c.Binsize: c.Xi},
		Lightcurve: map[int]ext.Lightcurve{
			c.Binsize: {Data: c.Lightcurve, OffsetMs: c.LightcurveOffsetMs},
		},
	}
	if c.Cancelled {
		r.ErrMsg = "run cancelled before the escalation window closed"
	}
	return r
}

// publish delivers r to the sink with bounded retry; after sinkMaxRetries
// failed attempts the message is dropped and counted rather than stalling
// ingest (spec sections 5, 7).
func (e *Engine) publish(ctx context.Context, r ext.Result) error {
	if e.sink == nil {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt < sinkMaxRetries; attempt++ {
		if err := e.sink.Publish(ctx, r); err != nil {
			lastErr = err
			log.Debug.Printf("engine: sink publish attempt %d failed: %v", attempt, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff(attempt)):
			}
			continue
		}
		return nil
	}
	log.Error.Printf("engine: dropping result %s after %d failed publish attempts: %v", r.RequestID, sinkMaxRetries, lastErr)
	e.metrics.SinkMessagesDropped()
	return nil
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}
