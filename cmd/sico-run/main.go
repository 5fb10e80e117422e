// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*
sico-run is the command-line dispatcher for the SICO engine (spec section
6): it parses a process request, either from flags or a process-json
payload, builds an immutable config.Config, and drives engine.Engine
against real input files. None of the engine, analysis, or trigger
packages import this package; it only ever calls down through the narrow
contracts in ext and config.
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/prometheus/client_golang/prometheus"
	"v.io/x/lib/cmdline"

	"github.com/icecube-sndaq/sico/config"
	"github.com/icecube-sndaq/sico/engine"
	"github.com/icecube-sndaq/sico/enrich"
	"github.com/icecube-sndaq/sico/ext"
	"github.com/icecube-sndaq/sico/metrics"
)

// sentinelName is the file the running process polls for between payloads
// to implement cooperative cancellation across processes (spec section 9:
// out-of-process control is modeled as a narrow interface, not a shared
// synchronization primitive).
const sentinelName = "sico.stop"

func newCmdStop() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "stop",
		Short:    "Signal a running sico-run process to cancel cooperatively",
		ArgsName: "rundir",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("stop takes one rundir argument, but got %v", argv)
		}
		path := argv[0] + string(os.PathSeparator) + sentinelName
		return os.WriteFile(path, []byte("stop\n"), 0644)
	})
	return cmd
}

// processFlags holds the flags shared by process and process-json.
type processFlags struct {
	confPath    string
	channelMap  string
	input       string
	output      string
	rundir      string
	muonTrigger string
	muon500ms   string
	year        int
}

func bindProcessFlags(cmd *cmdline.Command) *processFlags {
	f := &processFlags{}
	cmd.Flags.StringVar(&f.confPath, "conf", "", "Path to a JSON RawOptions config file")
	cmd.Flags.StringVar(&f.channelMap, "channel-map", "", "Path to the whitespace-table channel map file")
	cmd.Flags.StringVar(&f.input, "input", "", "Path to a binary scaler payload file; defaults to stdin")
	cmd.Flags.StringVar(&f.output, "output", "", "Path to write newline-delimited JSON results; defaults to stdout")
	cmd.Flags.StringVar(&f.rundir, "rundir", ".", "Directory polled for the stop sentinel written by 'sico-run stop'")
	cmd.Flags.StringVar(&f.muonTrigger, "muon-rate-trigger-binsize", "", "Path to the trigger-binsize muon rate text file")
	cmd.Flags.StringVar(&f.muon500ms, "muon-rate-500ms", "", "Path to the 500ms muon rate text file")
	cmd.Flags.IntVar(&f.year, "year", 0, "Calendar year the start/stop year-epoch timestamps are relative to; defaults to the current UTC year")
	return f
}

func newCmdProcess() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "process",
		Short:    "Run the SICO engine over an input payload stream",
		ArgsName: "start stop type",
		ArgsLong: "start: year-epoch tenth-ns timestamp the engine clock starts at. stop: year-epoch tenth-ns timestamp, used as the trigger time for ccsn|merger; the input is read to its end either way. type: primary|ccsn|merger.",
	}
	f := bindProcessFlags(cmd)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("process takes start, stop, type, but got %v", argv)
		}
		start, err := strconv.ParseInt(argv[0], 10, 64)
		if err != nil {
			return errors.E(err, "sico-run: parsing start time")
		}
		stop, err := strconv.ParseInt(argv[1], 10, 64)
		if err != nil {
			return errors.E(err, "sico-run: parsing stop time")
		}
		raw, err := loadRawOptions(f.confPath)
		if err != nil {
			return err
		}
		applyType(&raw, argv[2], &stop)
		return runAndExit(requestSpec{
			requestID: "cli-process",
			start:     start,
			stop:      stop,
			raw:       raw,
			flags:     f,
		})
	})
	return cmd
}

// processJSONRequest mirrors the process-json object from spec section 6.
type processJSONRequest struct {
	RequestID    string  `json:"request_id"`
	StartTime    int64   `json:"start_time"`
	StopTime     int64   `json:"stop_time"`
	FRType       string  `json:"fr_type"`
	AlertID      string  `json:"alert_id"`
	TestRequest  bool    `json:"test_request"`
	BinSizes     []int   `json:"bin_sizes"`
	OffsetSearch bool    `json:"offset_search"`
	BgDuration   [2]int  `json:"bg_duration"`
	ExclDuration [2]int  `json:"excl_duration"`
	LcDuration   [2]int  `json:"lc_duration"`
}

func newCmdProcessJSON() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "process-json",
		Short:    "Run the SICO engine from a process-json request object",
		ArgsName: "json",
	}
	f := bindProcessFlags(cmd)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("process-json takes one JSON argument, but got %v", argv)
		}
		var req processJSONRequest
		if err := json.Unmarshal([]byte(argv[0]), &req); err != nil {
			return errors.E(err, "sico-run: parsing process-json payload")
		}
		raw, err := loadRawOptions(f.confPath)
		if err != nil {
			return err
		}
		if len(req.BinSizes) > 0 {
			raw.BinsizesMs = req.BinSizes
		}
		raw.UseOffsets = req.OffsetSearch
		if req.BgDuration[0] != 0 || req.BgDuration[1] != 0 {
			raw.BgTrailingMs, raw.BgLeadingMs = req.BgDuration[0], req.BgDuration[1]
		}
		if req.ExclDuration[0] != 0 || req.ExclDuration[1] != 0 {
			raw.ExclTrailingMs, raw.ExclLeadingMs = req.ExclDuration[0], req.ExclDuration[1]
		}
		if req.LcDuration[0] != 0 || req.LcDuration[1] != 0 {
			raw.LcTrailingMs, raw.LcLeadingMs = req.LcDuration[0], req.LcDuration[1]
		}
		stop := req.StopTime
		fraType := req.FRType
		if fraType == "" {
			fraType = "primary"
		}
		applyType(&raw, fraType, &stop)

		requestID := req.RequestID
		if requestID == "" {
			requestID = req.AlertID
		}
		return runAndExit(requestSpec{
			requestID: requestID,
			start:     req.StartTime,
			stop:      stop,
			raw:       raw,
			flags:     f,
		})
	})
	return cmd
}

// applyType maps the CLI's TYPE argument (spec section 6: primary, or
// ccsn/merger for FRA) onto raw.Mode and, for FRA requests, sets the
// trigger time to the request's stop time. It does not bound the run: the
// input is still read to its end.
func applyType(raw *config.RawOptions, typ string, stop *int64) {
	switch typ {
	case "ccsn", "merger":
		raw.Mode = config.ModeFRA
		t := *stop
		raw.FRATriggerTimeTenthNs = &t
	default:
		raw.Mode = config.ModePrimary
	}
}

func loadRawOptions(path string) (config.RawOptions, error) {
	raw := defaultRawOptions()
	if path == "" {
		return raw, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return config.RawOptions{}, errors.E(err, "sico-run: opening config file", path)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return config.RawOptions{}, errors.E(err, "sico-run: decoding config file", path)
	}
	return raw, nil
}

func defaultRawOptions() config.RawOptions {
	return config.RawOptions{
		Mode:             config.ModePrimary,
		BinsizesMs:       []int{500, 1500, 4000},
		UseOffsets:       true,
		UseRebins:        true,
		BgLeadingMs:      300000,
		BgTrailingMs:     300000,
		ExclLeadingMs:    15000,
		ExclTrailingMs:   15000,
		MinActiveDoms:    1000,
		MinBkgRate:       0,
		MaxBkgRate:       1000,
		MinBkgFano:       0.2,
		MaxBkgFano:       0.8,
		PrimaryThreshold: 4.0,
		TriggerWindowMs:  30000,
		LcLeadingMs:      5000,
		LcTrailingMs:     5000,
	}
}

type requestSpec struct {
	requestID string
	start     int64
	stop      int64
	raw       config.RawOptions
	flags     *processFlags
}

// runAndExit drives runRequest and enforces spec.md section 6's exit-code
// contract: 0 success, 1 configuration error, 2 operational error.
// cmdline.Main itself always exits 1 on a Runner error, which already
// matches the configuration-error code, so only the operational case (2)
// needs to bypass it with an explicit os.Exit.
func runAndExit(spec requestSpec) error {
	err := runRequest(spec)
	if err == nil {
		return nil
	}
	ee, ok := err.(exitErr)
	if !ok || ee.code != 2 {
		return err
	}
	fmt.Fprintln(os.Stderr, ee.Error())
	os.Exit(2)
	return nil
}

// runRequest builds a Config, wires the external collaborators, and drives
// the engine to completion, translating failures into the exit codes
// spec.md section 6 requires.
func runRequest(spec requestSpec) error {
	cfg, err := config.Load(spec.raw)
	if err != nil {
		return exitErr{code: 1, err: err}
	}

	chanMapFile, err := os.Open(spec.flags.channelMap)
	if err != nil {
		return exitErr{code: 1, err: errors.E(err, "sico-run: opening channel map")}
	}
	defer chanMapFile.Close()
	chanMap, err := ext.LoadTableChannelMap(chanMapFile)
	if err != nil {
		return exitErr{code: 1, err: err}
	}

	reader, closeReader, err := openPayloadReader(spec.flags.input)
	if err != nil {
		return exitErr{code: 2, err: err}
	}
	defer closeReader()

	sink, closeSink, err := openSink(spec.flags.output)
	if err != nil {
		return exitErr{code: 2, err: err}
	}
	defer closeSink()

	enrichSrc := enrich.Sources{YearStart: yearStart(spec.flags.year)}
	if spec.flags.muonTrigger != "" {
		src, err := loadMuonSource(spec.flags.muonTrigger, cfg.BinsizesMs[0])
		if err != nil {
			log.Error.Printf("sico-run: loading trigger-binsize muon rate: %v", err)
		} else {
			enrichSrc.MuonRateTriggerBinsize = src
		}
	}
	if spec.flags.muon500ms != "" {
		src, err := loadMuonSource(spec.flags.muon500ms, 500)
		if err != nil {
			log.Error.Printf("sico-run: loading 500ms muon rate: %v", err)
		} else {
			enrichSrc.MuonRate500ms = src
		}
	}

	eps := make([]float64, chanMap.Len())
	for i := range eps {
		eps[i] = chanMap.Efficiency(i)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	e := engine.New(cfg, chanMap.Len(), eps, engine.Sources{
		ChannelMap: chanMap,
		Sink:       sink,
		Enrich:     enrichSrc,
	}, spec.start, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pollStopSentinel(ctx, cancel, spec.flags.rundir)

	if err := e.Run(ctx, reader, spec.requestID); err != nil {
		return exitErr{code: 2, err: err}
	}
	return nil
}

// yearStart returns the UTC instant that year-epoch tenth-ns timestamps are
// measured from. A zero year falls back to the current UTC year, which
// covers the common case of processing data as it arrives.
func yearStart(year int) time.Time {
	if year == 0 {
		year = time.Now().UTC().Year()
	}
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
}

// pollStopSentinel cancels ctx once the stop sentinel written by
// 'sico-run stop' appears in rundir, implementing the out-of-process half
// of the cooperative cancellation contract described in spec section 9.
func pollStopSentinel(ctx context.Context, cancel context.CancelFunc, rundir string) {
	path := rundir + string(os.PathSeparator) + sentinelName
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(path); err == nil {
				os.Remove(path)
				cancel()
				return
			}
		}
	}
}

func openPayloadReader(path string) (ext.PayloadReader, func(), error) {
	if path == "" {
		return ext.NewBinaryPayloadReader(os.Stdin, 0), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.E(err, "sico-run: opening input", path)
	}
	return ext.NewBinaryPayloadReader(f, 1000), func() { f.Close() }, nil
}

// jsonLineSink publishes each result as one line of newline-delimited JSON.
type jsonLineSink struct {
	enc *json.Encoder
}

func (s jsonLineSink) Publish(ctx context.Context, r ext.Result) error {
	return s.enc.Encode(r)
}

func openSink(path string) (ext.Sink, func(), error) {
	if path == "" {
		return jsonLineSink{enc: json.NewEncoder(os.Stdout)}, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.E(err, "sico-run: creating output", path)
	}
	return jsonLineSink{enc: json.NewEncoder(f)}, func() { f.Close() }, nil
}

func loadMuonSource(path string, binMs int) (*ext.TextMuonRateSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(err, "sico-run: opening muon rate file", path)
	}
	defer f.Close()
	return ext.LoadTextMuonRateSource(f, binMs)
}

// exitErr carries the process exit code a configuration (1) or operational
// (2) error should produce (spec section 6).
type exitErr struct {
	code int
	err  error
}

func (e exitErr) Error() string { return e.err.Error() }

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(&cmdline.Command{
		Name:     "sico-run",
		Short:    "Streaming Significance-Computation Online engine dispatcher",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdStop(),
			newCmdProcess(),
			newCmdProcessJSON(),
		},
	})
}
