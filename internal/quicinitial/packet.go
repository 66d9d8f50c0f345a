package quicinitial

import (
	"encoding/binary"
	"fmt"
)

// varint decodes a QUIC variable-length integer (RFC 9000 section 16)
// starting at buf[0], returning its value and the number of bytes
// consumed.
func varint(buf []byte) (value uint64, n int, err error) {
	if len(buf) == 0 {
		return 0, 0, ErrTruncatedPacket
	}
	prefix := buf[0] >> 6
	length := 1 << prefix
	if len(buf) < length {
		return 0, 0, ErrTruncatedPacket
	}
	v := uint64(buf[0] & 0x3f)
	for i := 1; i < length; i++ {
		v = v<<8 | uint64(buf[i])
	}
	return v, length, nil
}

// LongHeader is the parsed, still header-protected long-header fields of
// one QUIC packet (RFC 9000 section 17.2).
type LongHeader struct {
	Type    LongHeaderType
	Version uint32
	DCID    []byte
	SCID    []byte
	Token   []byte

	// pnOffset is the offset (within the full packet slice passed to
	// ParseLongHeader) where the protected packet-number field begins.
	pnOffset int
	// packetLen is the total length of this packet within the
	// (possibly coalesced) datagram, header included, once the Length
	// field's "packet number + payload" count is added to pnOffset.
	packetLen int
}

// ParseLongHeader parses the unprotected portion of a long-header packet
// starting at the beginning of pkt (spec.md section 4.5.6 step 1:
// "Packet must be long-header, have a supported QUIC version, and have
// the QUIC-bit set"). It does not remove header protection or interpret
// the packet number; that happens in DecryptInitial once the version's
// keys are known.
func ParseLongHeader(pkt []byte) (*LongHeader, error) {
	if len(pkt) < 7 {
		return nil, ErrTruncatedPacket
	}
	first := pkt[0]
	if first&longHeaderFormBit == 0 {
		return nil, ErrNotLongHeader
	}
	if first&fixedQUICBit == 0 {
		return nil, ErrNotLongHeader
	}

	version := binary.BigEndian.Uint32(pkt[1:5])
	offset := 5

	dcidLen := int(pkt[offset])
	offset++
	if len(pkt) < offset+dcidLen {
		return nil, ErrTruncatedPacket
	}
	dcid := append([]byte(nil), pkt[offset:offset+dcidLen]...)
	offset += dcidLen

	if len(pkt) < offset+1 {
		return nil, ErrTruncatedPacket
	}
	scidLen := int(pkt[offset])
	offset++
	if len(pkt) < offset+scidLen {
		return nil, ErrTruncatedPacket
	}
	scid := append([]byte(nil), pkt[offset:offset+scidLen]...)
	offset += scidLen

	lh := &LongHeader{
		Type:    LongHeaderType((first & longPacketTypeMask) >> longPacketTypeShift),
		Version: version,
		DCID:    dcid,
		SCID:    scid,
	}

	if version == VersionNegotiation {
		lh.packetLen = len(pkt)
		return lh, nil
	}
	if lh.Type != TypeInitial {
		return lh, fmt.Errorf("%w: type %d", ErrNotInitial, lh.Type)
	}

	tokenLen, n, err := varint(pkt[offset:])
	if err != nil {
		return nil, err
	}
	offset += n
	if len(pkt) < offset+int(tokenLen) {
		return nil, ErrTruncatedPacket
	}
	lh.Token = append([]byte(nil), pkt[offset:offset+int(tokenLen)]...)
	offset += int(tokenLen)

	length, n, err := varint(pkt[offset:])
	if err != nil {
		return nil, err
	}
	offset += n

	lh.pnOffset = offset
	lh.packetLen = offset + int(length)
	if lh.packetLen > len(pkt) {
		return nil, ErrTruncatedPacket
	}
	return lh, nil
}

// DecryptInitial decrypts one Initial packet's payload using clientDCID
// as the key-derivation input (the first DCID observed for this flow,
// per spec.md section 4.5.6's "Cross-packet state"). It returns the
// decrypted payload (still containing QUIC frames, not yet TLS bytes)
// and the total number of bytes this packet occupied in pkt, so the
// caller can advance to the next coalesced packet.
func DecryptInitial(pkt []byte, clientDCID []byte, isServer bool) (payload []byte, consumed int, err error) {
	lh, err := ParseLongHeader(pkt)
	if err != nil {
		return nil, 0, err
	}

	clientSecrets, serverSecrets, err := DeriveInitialSecrets(lh.Version, clientDCID)
	if err != nil {
		return nil, 0, err
	}
	secrets := clientSecrets
	if isServer {
		secrets = serverSecrets
	}

	first, pnLen, pn, err := removeHeaderProtection(secrets.HPKey, pkt[:lh.packetLen], lh.pnOffset)
	if err != nil {
		return nil, 0, err
	}

	// The first header byte and packet-number bytes were protected; the
	// associated data for AEAD is the header with its *unprotected*
	// form, so reconstruct it here rather than mutating pkt in place.
	header := append([]byte(nil), pkt[:lh.pnOffset+pnLen]...)
	header[0] = first
	for i := 0; i < pnLen; i++ {
		header[lh.pnOffset+i] = byte(pn >> uint(8*(pnLen-1-i)))
	}

	ciphertext := pkt[lh.pnOffset+pnLen : lh.packetLen]
	plaintext, err := decryptPayload(secrets, pn, header, ciphertext)
	if err != nil {
		return nil, 0, err
	}
	return plaintext, lh.packetLen, nil
}

// CryptoReassembler accumulates CRYPTO frame bytes (possibly split
// across several QUIC packets/frames) into one contiguous stream, per
// spec.md section 4.5.6 step 7.
type CryptoReassembler struct {
	data []byte
	have []bool
}

// NewCryptoReassembler returns an empty reassembler.
func NewCryptoReassembler() *CryptoReassembler {
	return &CryptoReassembler{}
}

// Feed parses frames out of one decrypted packet payload, skipping
// PADDING/PING/ACK/CONNECTION_CLOSE, and appends any CRYPTO frame data to
// the reassembler at its declared offset.
func (c *CryptoReassembler) Feed(payload []byte) error {
	i := 0
	for i < len(payload) {
		frameType := payload[i]
		switch {
		case frameType == 0x00: // PADDING
			i++
		case frameType == 0x01: // PING
			i++
		case frameType == 0x02 || frameType == 0x03: // ACK
			n, err := c.skipACK(payload[i:])
			if err != nil {
				return err
			}
			i += n
		case frameType == 0x06: // CRYPTO
			n, err := c.readCrypto(payload[i:])
			if err != nil {
				return err
			}
			i += n
		case frameType == 0x1c || frameType == 0x1d: // CONNECTION_CLOSE
			return nil // nothing more to extract from this packet
		default:
			return fmt.Errorf("%w: unexpected frame type %#x in Initial packet", ErrMalformedFrame, frameType)
		}
	}
	return nil
}

func (c *CryptoReassembler) skipACK(buf []byte) (int, error) {
	i := 1 // frame type
	largest, n, err := varint(buf[i:])
	if err != nil {
		return 0, err
	}
	i += n
	_, n, err = varint(buf[i:]) // ACK Delay
	if err != nil {
		return 0, err
	}
	i += n
	rangeCount, n, err := varint(buf[i:])
	if err != nil {
		return 0, err
	}
	i += n
	_, n, err = varint(buf[i:]) // First ACK Range
	if err != nil {
		return 0, err
	}
	i += n
	for r := uint64(0); r < rangeCount; r++ {
		_, n, err := varint(buf[i:]) // Gap
		if err != nil {
			return 0, err
		}
		i += n
		_, n, err = varint(buf[i:]) // ACK Range Length
		if err != nil {
			return 0, err
		}
		i += n
	}
	if buf[0] == 0x03 {
		for _, label := range []string{"ect0", "ect1", "ecn-ce"} {
			_ = label
			_, n, err := varint(buf[i:])
			if err != nil {
				return 0, err
			}
			i += n
		}
	}
	_ = largest
	return i, nil
}

func (c *CryptoReassembler) readCrypto(buf []byte) (int, error) {
	i := 1
	offset, n, err := varint(buf[i:])
	if err != nil {
		return 0, err
	}
	i += n
	length, n, err := varint(buf[i:])
	if err != nil {
		return 0, err
	}
	i += n
	if len(buf) < i+int(length) {
		return 0, ErrTruncatedPacket
	}
	data := buf[i : i+int(length)]
	c.write(int(offset), data)
	return i + int(length), nil
}

func (c *CryptoReassembler) write(offset int, data []byte) {
	end := offset + len(data)
	if end > len(c.data) {
		grown := make([]byte, end)
		copy(grown, c.data)
		c.data = grown
		grownHave := make([]bool, end)
		copy(grownHave, c.have)
		c.have = grownHave
	}
	copy(c.data[offset:end], data)
	for i := offset; i < end; i++ {
		c.have[i] = true
	}
}

// Contiguous returns the longest contiguous run of CRYPTO bytes starting
// at offset 0 (i.e. what a TLS parser can safely consume so far).
func (c *CryptoReassembler) Contiguous() []byte {
	n := 0
	for n < len(c.have) && c.have[n] {
		n++
	}
	return c.data[:n]
}
