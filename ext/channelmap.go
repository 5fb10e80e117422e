package ext

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// TableChannelMap parses the whitespace-separated channel-map table format
// (spec section 6): string, position-index, x, y, z, mainboard-ID (hex),
// type, effective-volume. Only the mainboard ID (used as the channel's
// hardware ID) and effective-volume (used as the channel's efficiency) are
// consulted; the remaining columns are skipped and not stored.
type TableChannelMap struct {
	index map[uint64]int
	eps   []float64
}

// LoadTableChannelMap reads a channel-map table from r. IDs outside the map
// are silently ignored by ChannelMap.Index, per spec section 6; malformed
// lines are an input-data error and abort loading (the map is loaded once
// at startup, unlike the streaming payload path).
func LoadTableChannelMap(r io.Reader) (*TableChannelMap, error) {
	m := &TableChannelMap{index: make(map[uint64]int)}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 8 {
			return nil, errors.E("ext: malformed channel map line", strconv.Itoa(line))
		}
		mbID, err := strconv.ParseUint(fields[5], 16, 64)
		if err != nil {
			return nil, errors.E(err, "ext: parsing mainboard id", strconv.Itoa(line))
		}
		vol, err := strconv.ParseFloat(fields[7], 64)
		if err != nil {
			return nil, errors.E(err, "ext: parsing effective volume", strconv.Itoa(line))
		}
		idx := len(m.eps)
		m.index[mbID] = idx
		m.eps = append(m.eps, vol)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(err, "ext: reading channel map")
	}
	return m, nil
}

// Index implements ChannelMap.
func (m *TableChannelMap) Index(channelID uint64) (int, bool) {
	idx, ok := m.index[channelID]
	return idx, ok
}

// Efficiency implements ChannelMap.
func (m *TableChannelMap) Efficiency(idx int) float64 { return m.eps[idx] }

// Len implements ChannelMap.
func (m *TableChannelMap) Len() int { return len(m.eps) }
