package config

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/icecube-sndaq/sico/trigger"
)

// Mode selects the trigger state-machine variant.
type Mode string

const (
	ModePrimary Mode = "primary"
	ModeFRA     Mode = "fra"
)

// RawOptions is the unvalidated option set as parsed from command-line
// flags or a decoded process-json payload (spec section 6).
type RawOptions struct {
	Mode Mode

	BinsizesMs []int
	UseOffsets bool
	UseRebins  bool

	BgLeadingMs, BgTrailingMs     int
	ExclLeadingMs, ExclTrailingMs int

	MinActiveDoms int
	MinBkgRate    float64
	MaxBkgRate    float64
	MinBkgFano    float64
	MaxBkgFano    float64
	MaxBkgAbsSkew float64

	PrimaryThreshold    float64
	TriggerWindowMs     int
	LcLeadingMs         int
	LcTrailingMs        int
	FRATriggerTimeTenthNs *int64

	InputRoot  string
	OutputRoot string
	SinkEndpoint string
}

// Config is the engine's immutable, validated configuration. It has no
// setters; a new run builds a new Config from scratch via Load.
type Config struct {
	Mode Mode

	BinsizesMs []int
	UseOffsets bool
	UseRebins  bool

	BgLeadingMs, BgTrailingMs     int
	ExclLeadingMs, ExclTrailingMs int

	MinActiveDoms int
	MinBkgRate    float64
	MaxBkgRate    float64
	MinBkgFano    float64
	MaxBkgFano    float64
	MaxBkgAbsSkew float64

	PrimaryThreshold  float64
	TriggerWindowMs   int
	LcLeadingMs       int
	LcTrailingMs      int
	FRATriggerTimeTenthNs int64

	Escalation []trigger.EscalationLevel

	InputRoot    string
	OutputRoot   string
	SinkEndpoint string
}

const basePeriodMs = 500

// Load validates and normalizes raw into an immutable Config. Invalid
// options are returned as configuration errors (spec section 7), never
// panicked.
func Load(raw RawOptions) (Config, error) {
	if len(raw.BinsizesMs) == 0 {
		return Config{}, errors.E("config: at least one binsize is required")
	}
	for _, b := range raw.BinsizesMs {
		if b <= 0 || b%basePeriodMs != 0 {
			return Config{}, errors.E("config: binsize must be a positive multiple of 500ms")
		}
	}
	for name, v := range map[string]int{
		"bg_leading_ms": raw.BgLeadingMs, "bg_trailing_ms": raw.BgTrailingMs,
		"excl_leading_ms": raw.ExclLeadingMs, "excl_trailing_ms": raw.ExclTrailingMs,
	} {
		if v < 0 || v%basePeriodMs != 0 {
			return Config{}, errors.E("config: must be a non-negative multiple of 500ms", name)
		}
	}

	minFano, maxFano := raw.MinBkgFano, raw.MaxBkgFano
	if minFano > maxFano {
		log.Error.Printf("config: min_bkg_fano (%v) > max_bkg_fano (%v), swapping", minFano, maxFano)
		minFano, maxFano = maxFano, minFano
	}

	switch raw.Mode {
	case ModePrimary:
		if raw.FRATriggerTimeTenthNs != nil {
			return Config{}, errors.E("config: primary mode must not set an FRA trigger time")
		}
	case ModeFRA:
		if raw.FRATriggerTimeTenthNs == nil {
			return Config{}, errors.E("config: FRA mode requires a trigger time")
		}
	default:
		return Config{}, errors.E("config: unknown mode", string(raw.Mode))
	}

	threshold := raw.PrimaryThreshold
	if threshold == 0 {
		threshold = 4.0
	}
	windowMs := raw.TriggerWindowMs
	if windowMs == 0 {
		windowMs = 30000
	}

	var fraTime int64
	if raw.FRATriggerTimeTenthNs != nil {
		fraTime = *raw.FRATriggerTimeTenthNs
	}

	return Config{
		Mode:                  raw.Mode,
		BinsizesMs:            append([]int(nil), raw.BinsizesMs...),
		UseOffsets:            raw.UseOffsets,
		UseRebins:             raw.UseRebins,
		BgLeadingMs:           raw.BgLeadingMs,
		BgTrailingMs:          raw.BgTrailingMs,
		ExclLeadingMs:         raw.ExclLeadingMs,
		ExclTrailingMs:        raw.ExclTrailingMs,
		MinActiveDoms:         raw.MinActiveDoms,
		MinBkgRate:            raw.MinBkgRate,
		MaxBkgRate:            raw.MaxBkgRate,
		MinBkgFano:            minFano,
		MaxBkgFano:            maxFano,
		MaxBkgAbsSkew:         raw.MaxBkgAbsSkew,
		PrimaryThreshold:      threshold,
		TriggerWindowMs:       windowMs,
		LcLeadingMs:           raw.LcLeadingMs,
		LcTrailingMs:          raw.LcTrailingMs,
		FRATriggerTimeTenthNs: fraTime,
		Escalation:            trigger.EscalationLevels(),
		InputRoot:             raw.InputRoot,
		OutputRoot:            raw.OutputRoot,
		SinkEndpoint:          raw.SinkEndpoint,
	}, nil
}
