package export

import "errors"

var (
	// ErrContradictoryOptions is a configuration error: e.g. "udp" combined
	// with "lz4-compression" (spec.md section 7, Configuration errors).
	ErrContradictoryOptions = errors.New("contradictory transport options")
	// ErrUnknownOption is wrapped around a malformed value of a recognized
	// exporter option; an unrecognized option name is reported by
	// ParseOptions as optparse.ErrUnknownOption instead.
	ErrUnknownOption = errors.New("unknown exporter option")
	// ErrRecordExceedsMTU is the boundary-behavior error from spec.md
	// section 8: "if a single record exceeds MTU an error is reported,
	// not silently truncated".
	ErrRecordExceedsMTU = errors.New("record exceeds configured MTU")
	// ErrTransportBroken classifies a transport error as requiring
	// reconnection (spec.md section 7, Transport errors).
	ErrTransportBroken = errors.New("transport connection broken")
	// ErrTransportRetryable classifies a transport error the caller should
	// loop on (e.g. EAGAIN on a non-blocking socket).
	ErrTransportRetryable = errors.New("transport write would block")
	// ErrLZ4ForbiddenOnDatagram rejects lz4-compression combined with a
	// datagram transport (spec.md section 4.5.4, "forbidden on datagrams").
	ErrLZ4ForbiddenOnDatagram = errors.New("lz4 compression is forbidden on datagram transports")
	// ErrFieldLengthMismatch is returned when a scalar value's natural
	// encoding does not match its template's declared fixed length.
	ErrFieldLengthMismatch = errors.New("scalar value length does not match template field length")
	// ErrFieldTypeMismatch is returned when a field's Getter returns a
	// value of a type the encoder does not recognize.
	ErrFieldTypeMismatch = errors.New("unsupported field value type")
)
