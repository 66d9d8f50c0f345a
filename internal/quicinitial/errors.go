package quicinitial

import "errors"

var (
	// ErrNotLongHeader rejects a packet whose first byte does not have
	// the long-header form bit set (spec.md section 4.5.6, step 1).
	ErrNotLongHeader = errors.New("quicinitial: not a long-header packet")
	// ErrUnsupportedVersion is returned when no salt is known for the
	// packet's QUIC version (spec.md section 4.5.6: "have a supported
	// QUIC version").
	ErrUnsupportedVersion = errors.New("quicinitial: unsupported QUIC version")
	// ErrNotInitial rejects a long-header packet whose type is not
	// Initial (e.g. Retry or 0-RTT).
	ErrNotInitial = errors.New("quicinitial: long-header packet is not an Initial packet")
	// ErrTruncatedPacket is returned whenever a length prefix or fixed
	// field runs past the end of the available bytes.
	ErrTruncatedPacket = errors.New("quicinitial: truncated packet")
	// ErrHeaderProtectionSample is returned when there are not enough
	// bytes after the packet number field to take a header-protection
	// sample.
	ErrHeaderProtectionSample = errors.New("quicinitial: insufficient bytes for header protection sample")
	// ErrAEADAuthFailed is returned when AES-128-GCM authentication of
	// the decrypted payload fails.
	ErrAEADAuthFailed = errors.New("quicinitial: AEAD authentication failed")
	// ErrMalformedFrame is returned when CRYPTO frame reassembly
	// encounters an inconsistent frame.
	ErrMalformedFrame = errors.New("quicinitial: malformed frame in decrypted payload")
	// ErrMalformedTLSRecord is returned by the minimal TLS parser.
	ErrMalformedTLSRecord = errors.New("quicinitial: malformed TLS handshake record")
)
