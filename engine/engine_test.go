package engine_test

import (
	"context"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/icecube-sndaq/sico/config"
	"github.com/icecube-sndaq/sico/engine"
	"github.com/icecube-sndaq/sico/enrich"
	"github.com/icecube-sndaq/sico/ext"
	"github.com/icecube-sndaq/sico/metrics"
)

// fakeChannelMap maps a single hardware channel ID to dense index 0.
type fakeChannelMap struct{ id uint64 }

func (m fakeChannelMap) Index(channelID uint64) (int, bool) {
	if channelID == m.id {
		return 0, true
	}
	return 0, false
}
func (fakeChannelMap) Efficiency(int) float64 { return 1 }
func (fakeChannelMap) Len() int               { return 1 }

// fakeReader replays a fixed slice of payloads, then io.EOF.
type fakeReader struct {
	payloads []ext.Payload
	i        int
}

func (r *fakeReader) Next(ctx context.Context) (ext.Payload, error) {
	if r.i >= len(r.payloads) {
		return ext.Payload{}, io.EOF
	}
	p := r.payloads[r.i]
	r.i++
	return p, nil
}

// fakeSink records every published result.
type fakeSink struct{ published []ext.Result }

func (s *fakeSink) Publish(ctx context.Context, r ext.Result) error {
	s.published = append(s.published, r)
	return nil
}

func constantTickPayload(channelID uint64, utime int64, nTicks int, value byte) ext.Payload {
	counts := make([]byte, nTicks)
	for i := range counts {
		counts[i] = value
	}
	return ext.Payload{ChannelID: channelID, UTime: utime, Counts: counts}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load(config.RawOptions{
		Mode:            config.ModePrimary,
		BinsizesMs:      []int{500},
		BgLeadingMs:     1000,
		BgTrailingMs:    1000,
		ExclLeadingMs:   500,
		ExclTrailingMs:  500,
		MinActiveDoms:   1,
		MinBkgRate:      0,
		MaxBkgRate:      1000,
		MinBkgFano:      -1,
		MaxBkgFano:      1000,
		PrimaryThreshold: 4.0,
		TriggerWindowMs: 2000,
	})
	require.NoError(t, err)
	return cfg
}

// S1-style: a long constant-rate baseline never crosses threshold. The
// engine should bring the sole analysis online and never publish a result.
func TestEngineRunNoTriggerOnConstantBaseline(t *testing.T) {
	cfg := testConfig(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	sink := &fakeSink{}

	e := engine.New(cfg, 1, []float64{1}, engine.Sources{
		ChannelMap: fakeChannelMap{id: 1},
		Sink:       sink,
		Enrich:     enrich.Sources{},
	}, 0, m)

	// ~3663 ticks * 1.6384ms/tick =~ 6000ms of constant-rate data, comfortably
	// past the analysis's online threshold (3500ms) even after the engine's
	// drain margin holds back the trailing ~100ms.
	reader := &fakeReader{payloads: []ext.Payload{constantTickPayload(1, 0, 3663, 100)}}

	err := e.Run(context.Background(), reader, "req-1")
	require.NoError(t, err)

	bank := e.Handler().Bank()
	require.Len(t, bank, 1)
	require.True(t, bank[0].Online())
	require.Equal(t, 0.0, bank[0].Xi)
	require.Empty(t, sink.published)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var sawBins bool
	for _, mf := range mfs {
		if mf.GetName() == "sico_bins_processed_total" {
			sawBins = true
			require.Greater(t, mf.GetMetric()[0].GetCounter().GetValue(), 0.0)
		}
	}
	require.True(t, sawBins)
}

// FRA mode with a non-zero t0: the analysis bank must seed UTimeSW from the
// engine's base-buffer epoch, not 0, or the trigger time reported on the
// finalized candidate (and the window FRAState matches T against) would be
// off by the entire t0 offset on every real deployment.
func TestEngineRunFRAModeWithNonZeroT0(t *testing.T) {
	t0 := int64(86_400_000_000_000) // 8640s (2.4h) in tenth-ns
	cfg, err := config.Load(config.RawOptions{
		Mode:           config.ModeFRA,
		BinsizesMs:     []int{500},
		BgLeadingMs:    1000,
		BgTrailingMs:   1000,
		ExclLeadingMs:  500,
		ExclTrailingMs: 500,
		MinActiveDoms:  1,
		MinBkgRate:     0,
		// 100 counts per 1.6384ms tick is ~30500 counts per base bin; the
		// rate bound must admit that for the channel to qualify.
		MaxBkgRate: 100000,
		MinBkgFano: -1,
		MaxBkgFano: 1000,
		// The search window sits 3 base bins (1500ms) behind the live edge,
		// so once 10 base bins (5000ms) have arrived it is
		// (t0+3000ms, t0+3500ms] (500ms binsize); pick a target comfortably
		// inside it.
		FRATriggerTimeTenthNs: func() *int64 { v := t0 + 32_000_000_000; return &v }(),
	})
	require.NoError(t, err)
	sink := &fakeSink{}

	e := engine.New(cfg, 1, []float64{1}, engine.Sources{
		ChannelMap: fakeChannelMap{id: 1},
		Sink:       sink,
		Enrich:     enrich.Sources{},
	}, t0, nil)

	reader := &fakeReader{payloads: []ext.Payload{constantTickPayload(1, t0, 3663, 100)}}
	err = e.Run(context.Background(), reader, "req-fra")
	require.NoError(t, err)

	require.Len(t, sink.published, 1)
	require.Equal(t, ext.StatusSuccess, sink.published[0].Status)
}

// Payloads for an unmapped channel are skipped, not fatal, and never reach
// the staging buffer.
func TestEngineRunSkipsUnknownChannel(t *testing.T) {
	cfg := testConfig(t)
	sink := &fakeSink{}
	e := engine.New(cfg, 1, []float64{1}, engine.Sources{
		ChannelMap: fakeChannelMap{id: 1},
		Sink:       sink,
	}, 0, nil)

	reader := &fakeReader{payloads: []ext.Payload{constantTickPayload(999, 0, 10, 50)}}
	err := e.Run(context.Background(), reader, "req-2")
	require.NoError(t, err)
	require.Equal(t, int64(0), e.Handler().NWritten())
}
