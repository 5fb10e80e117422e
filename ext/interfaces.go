package ext

import (
	"context"
	"io"
	"time"
)

// Payload is one scaler record: a channel's per-clock-tick counts starting
// at UTime (year-epoch tenth-ns).
type Payload struct {
	ChannelID uint64
	UTime     int64
	Counts    []byte
}

// PayloadReader is a pull-based iterator over a payload source. Next
// returns io.EOF once the source is exhausted.
type PayloadReader interface {
	Next(ctx context.Context) (Payload, error)
}

// ChannelMap resolves hardware channel IDs to the dense [0,N) index space
// the engine operates on, and carries each channel's relative efficiency.
type ChannelMap interface {
	Index(channelID uint64) (idx int, ok bool)
	Efficiency(idx int) float64
	Len() int
}

// Status is the result-message lifecycle state published to the sink.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFail       Status = "FAIL"
)

// Lightcurve is one binsize's enriched lightcurve payload.
type Lightcurve struct {
	Data     []uint64
	OffsetMs int
}

// Result is the structured record published to the sink (spec section 6).
type Result struct {
	RequestID string
	Status    Status
	Xi        map[int]float64
	Lightcurve map[int]Lightcurve
	ErrMsg    string
}

// Sink publishes result messages. The engine wraps calls with bounded retry
// and a drop counter; Sink implementations need not retry internally.
type Sink interface {
	Publish(ctx context.Context, r Result) error
}

// MuonRateSource backs candidate enrichment (spec section 4.6): a rate
// series covering [start,stop) at the given bin width.
type MuonRateSource interface {
	Series(ctx context.Context, start, stop time.Time, binMs int) ([]uint64, error)
}

// EOF re-exports io.EOF for callers that only import ext.
var EOF = io.EOF
