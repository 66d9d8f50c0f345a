package export

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Wire constants for the per-message LZ4 framing of spec.md section
// 4.5.4/6: this is NOT the standard lz4 frame container (teacher's other
// decoder paths use that via higher-level readers/writers); the original
// wraps every message in a 4-byte (compressed_length, uncompressed_length)
// pair of uint16s and re-primes the stream with a reset marker after every
// reconnection, so this package drives pierrec/lz4/v4's block-level
// Compressor/UncompressBlock API directly instead of lz4.NewWriter.
const (
	lz4BlockHeaderLen = 4
	lz4ResetMagic     = uint32(0x4C5A3463) // "LZ4c" packed big-endian
	lz4ResetMarkerLen = 4 + 4 + 4          // zero run + magic + buffer-size hint
)

// LZ4Stream frames and compresses outgoing message payloads, or
// decompresses and unframes incoming ones, per spec.md section 4.5.4. One
// LZ4Stream is owned by one Exporter's transport session: it must be
// recreated (or Reset) on every reconnection, emitting a fresh reset
// marker, since the compressor's dictionary otherwise carries state across
// sessions the collector side has no way to resynchronize with.
type LZ4Stream struct {
	compressor   lz4.Compressor
	bufferHint   uint32
	freshSession bool
}

// NewLZ4Stream builds a stream primed to emit a reset marker before its
// first block, matching "a reset marker is emitted after every
// reconnection" (spec.md section 4.5.4).
func NewLZ4Stream(bufferSizeHint uint32) *LZ4Stream {
	return &LZ4Stream{bufferHint: bufferSizeHint, freshSession: true}
}

// Reset forces the next call to CompressMessage to emit a fresh reset
// marker, called after a transport Reconnect.
func (s *LZ4Stream) Reset() { s.freshSession = true }

// CompressMessage compresses payload into one LZ4 block framed with its
// (compressed_length, uncompressed_length) header, prefixed with a reset
// marker if this is the first block since construction or the last Reset.
func (s *LZ4Stream) CompressMessage(payload []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(payload))
	compressed := make([]byte, bound)
	n, err := s.compressor.CompressBlock(payload, compressed)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	var out []byte
	if s.freshSession {
		out = append(out, s.resetMarker()...)
		s.freshSession = false
	}

	frame := make([]byte, lz4BlockHeaderLen)
	if n == 0 {
		// Incompressible block: lz4's CompressBlock reports n==0 when the
		// output would not be smaller than the input. Store payload
		// uncompressed with compressed_length == 0 as the "stored" marker.
		binary.BigEndian.PutUint16(frame[0:2], 0)
		binary.BigEndian.PutUint16(frame[2:4], uint16(len(payload)))
		out = append(out, frame...)
		out = append(out, payload...)
		return out, nil
	}

	binary.BigEndian.PutUint16(frame[0:2], uint16(n))
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(payload)))
	out = append(out, frame...)
	out = append(out, compressed[:n]...)
	return out, nil
}

func (s *LZ4Stream) resetMarker() []byte {
	marker := make([]byte, lz4ResetMarkerLen)
	binary.BigEndian.PutUint32(marker[4:8], lz4ResetMagic)
	binary.BigEndian.PutUint32(marker[8:12], s.bufferHint)
	return marker
}

// DecompressBlock reverses one CompressMessage block (excluding any reset
// marker, which the caller is expected to detect and skip separately): it
// reads the 4-byte header and returns the decompressed payload plus the
// number of input bytes consumed.
func DecompressBlock(frame []byte) (payload []byte, consumed int, err error) {
	if len(frame) < lz4BlockHeaderLen {
		return nil, 0, fmt.Errorf("lz4 frame: short header (%d bytes)", len(frame))
	}
	compressedLen := int(binary.BigEndian.Uint16(frame[0:2]))
	uncompressedLen := int(binary.BigEndian.Uint16(frame[2:4]))
	body := frame[lz4BlockHeaderLen:]

	if compressedLen == 0 {
		if len(body) < uncompressedLen {
			return nil, 0, fmt.Errorf("lz4 frame: short stored block")
		}
		out := make([]byte, uncompressedLen)
		copy(out, body[:uncompressedLen])
		return out, lz4BlockHeaderLen + uncompressedLen, nil
	}
	if len(body) < compressedLen {
		return nil, 0, fmt.Errorf("lz4 frame: short compressed block")
	}
	out := make([]byte, uncompressedLen)
	n, err := lz4.UncompressBlock(body[:compressedLen], out)
	if err != nil {
		return nil, 0, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out[:n], lz4BlockHeaderLen + compressedLen, nil
}

// IsResetMarker reports whether frame begins with a reset marker, and if
// so, its length, so a reader can skip it before resuming block framing.
func IsResetMarker(frame []byte) (isMarker bool, length int) {
	if len(frame) < lz4ResetMarkerLen {
		return false, 0
	}
	for _, b := range frame[0:4] {
		if b != 0 {
			return false, 0
		}
	}
	if binary.BigEndian.Uint32(frame[4:8]) != lz4ResetMagic {
		return false, 0
	}
	return true, lz4ResetMarkerLen
}
