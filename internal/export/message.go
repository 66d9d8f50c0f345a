package export

import (
	"encoding/binary"
	"time"
)

// Wire constants from spec.md section 6, "IPFIX wire format (bit-exact)".
const (
	IPFIXVersion    = 0x000a
	MessageHeaderLen = 16
	SetHeaderLen     = 4
	TemplateSetID    = 2
	// DefaultMTU is the default message payload cap (spec.md section 6,
	// "mtu=N"): 1500 bytes, matching common Ethernet MTU.
	DefaultMTU = 1500
)

// MessageBuffer accumulates template/data sets into one IPFIX message,
// bounded by a configured MTU, flushing to onFlush when a new set would
// not fit (spec.md section 4.5.3). It is not safe for concurrent use; one
// Exporter owns one MessageBuffer per collector session, matching "the
// collector socket is owned by a single exporter thread" (spec.md
// section 5).
type MessageBuffer struct {
	mtu               int
	observationDomain uint32
	seq               uint32
	body              []byte
	onFlush           func(payload []byte) error
	// Clock is overridable for deterministic tests; defaults to time.Now.
	Clock func() time.Time
}

// NewMessageBuffer builds a buffer capped at mtu total message bytes
// (header included), stamping every flushed message with
// observationDomain and a per-session sequence number starting at 0
// (spec.md section 4.5.5: "reset to zero on reconnect").
func NewMessageBuffer(mtu int, observationDomain uint32, onFlush func([]byte) error) *MessageBuffer {
	if mtu <= MessageHeaderLen {
		mtu = DefaultMTU
	}
	return &MessageBuffer{
		mtu:               mtu,
		observationDomain: observationDomain,
		onFlush:           onFlush,
		Clock:             time.Now,
	}
}

// ResetSequence zeroes the sequence number, called on transport
// reconnection (spec.md section 4.5.5: "the sequence number is reset on
// reconnect because it is defined per transport session").
func (m *MessageBuffer) ResetSequence() { m.seq = 0 }

func (m *MessageBuffer) remaining() int {
	return m.mtu - MessageHeaderLen - len(m.body)
}

// AppendSet appends one complete, already-framed set (set header plus
// body) to the current message, flushing first if it would not fit.
// Reports ErrRecordExceedsMTU if the set alone can never fit in any
// message at this MTU (spec.md section 8: "if a single record exceeds
// MTU an error is reported, not silently truncated").
func (m *MessageBuffer) AppendSet(set []byte) error {
	if len(set) > m.mtu-MessageHeaderLen {
		return ErrRecordExceedsMTU
	}
	if len(set) > m.remaining() {
		if err := m.Flush(); err != nil {
			return err
		}
	}
	m.body = append(m.body, set...)
	return nil
}

// Flush emits the current message (if non-empty) to onFlush and resets
// the buffer. The sum of flushed message lengths always equals what was
// appended plus headers -- no partial-message emission (spec.md section
// 8, T2).
func (m *MessageBuffer) Flush() error {
	if len(m.body) == 0 {
		return nil
	}
	header := make([]byte, MessageHeaderLen)
	binary.BigEndian.PutUint16(header[0:2], IPFIXVersion)
	binary.BigEndian.PutUint16(header[2:4], uint16(MessageHeaderLen+len(m.body)))
	binary.BigEndian.PutUint32(header[4:8], uint32(m.Clock().Unix()))
	binary.BigEndian.PutUint32(header[8:12], m.seq)
	binary.BigEndian.PutUint32(header[12:16], m.observationDomain)

	payload := append(header, m.body...)
	m.seq++
	m.body = m.body[:0]

	if err := m.onFlush(payload); err != nil {
		return err
	}
	MessagesSent.Inc()
	BytesSent.Add(float64(len(payload)))
	return nil
}
