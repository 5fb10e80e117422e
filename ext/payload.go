package ext

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/grailbio/base/errors"
)

const (
	payloadTypeID    uint32 = 16
	payloadMagic     uint16 = 300
	payloadHeaderLen        = 4 + 8 + 8 + 2 + 2 + 6 // type_id, utime, channel_id, record_len, magic, clock
)

// ErrBadMagic is returned (wrapped) when a record's magic field doesn't
// match the expected value; the caller treats this as an input-data error
// and skips the record rather than aborting the stream.
var ErrBadMagic = errors.New("ext: bad magic")

// BinaryPayloadReader reads the big-endian framed scaler payload format
// described in spec section 6: a self-inclusive uint32 length prefix (it
// counts its own 4 bytes) followed by length-4 bytes of fixed header plus
// per-tick counts. Records whose type_id is not
// 16 are skipped transparently; Next only ever returns records of interest.
type BinaryPayloadReader struct {
	r          io.Reader
	skipped    int64
	maxSkipped int64
}

// NewBinaryPayloadReader constructs a reader over r. maxSkipped caps the
// number of malformed/uninteresting records tolerated before the file is
// abandoned (spec section 7); 0 means unbounded.
func NewBinaryPayloadReader(r io.Reader, maxSkipped int64) *BinaryPayloadReader {
	return &BinaryPayloadReader{r: r, maxSkipped: maxSkipped}
}

// Skipped returns the number of records skipped so far (wrong type, bad
// magic, or truncated).
func (b *BinaryPayloadReader) Skipped() int64 { return b.skipped }

// Next returns the next type-16 payload, or io.EOF when the stream is
// exhausted.
func (b *BinaryPayloadReader) Next(ctx context.Context) (Payload, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Payload{}, err
		}
		var lenBuf [4]byte
		if _, err := io.ReadFull(b.r, lenBuf[:]); err != nil {
			if err == io.EOF {
				return Payload{}, io.EOF
			}
			return Payload{}, errors.E(err, "ext: reading payload length")
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		if length < 4+payloadHeaderLen {
			if err := b.recordSkip(); err != nil {
				return Payload{}, err
			}
			continue
		}
		// length is self-inclusive: it counts the 4 bytes of the prefix
		// itself, so only length-4 more bytes follow on the wire.
		record := make([]byte, length-4)
		if _, err := io.ReadFull(b.r, record); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return Payload{}, io.EOF
			}
			return Payload{}, errors.E(err, "ext: reading payload record")
		}
		typeID := binary.BigEndian.Uint32(record[0:4])
		if typeID != payloadTypeID {
			if err := b.recordSkip(); err != nil {
				return Payload{}, err
			}
			continue
		}
		utime := binary.BigEndian.Uint64(record[4:12])
		channelID := binary.BigEndian.Uint64(record[12:20])
		magic := binary.BigEndian.Uint16(record[22:24])
		if magic != payloadMagic {
			if err := b.recordSkip(); err != nil {
				return Payload{}, err
			}
			continue
		}
		counts := record[payloadHeaderLen:]
		return Payload{ChannelID: channelID, UTime: int64(utime), Counts: counts}, nil
	}
}

// recordSkip counts one skipped record and returns a non-nil error once the
// configured cap is exceeded, signalling the caller should abandon the file
// (spec section 7).
func (b *BinaryPayloadReader) recordSkip() error {
	b.skipped++
	if b.maxSkipped > 0 && b.skipped > b.maxSkipped {
		return errors.E("ext: too many skipped records, abandoning file")
	}
	return nil
}
