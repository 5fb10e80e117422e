package ext_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/icecube-sndaq/sico/ext"
	"github.com/stretchr/testify/require"
)

func TestTextMuonRateSourceSeriesRange(t *testing.T) {
	data := strings.Join([]string{
		"2026-01-01 00:00:00.000000000 10",
		"2026-01-01 00:00:00.500000000 11",
		"2026-01-01 00:00:01.000000000 12",
	}, "\n")
	s, err := ext.LoadTextMuonRateSource(strings.NewReader(data), 500)
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stop := start.Add(time.Second)
	out, err := s.Series(context.Background(), start, stop, 500)
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 11}, out)
}

func TestTextMuonRateSourceRejectsWrongBinWidth(t *testing.T) {
	s, err := ext.LoadTextMuonRateSource(strings.NewReader("2026-01-01 00:00:00.000000000 1"), 500)
	require.NoError(t, err)
	_, err = s.Series(context.Background(), time.Now(), time.Now(), 1500)
	require.Error(t, err)
}
