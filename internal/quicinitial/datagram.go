package quicinitial

// ProcessDatagram walks every coalesced QUIC packet in datagram (spec.md
// section 4.5.6, "Coalesced packets"), decrypting each Initial packet it
// finds and feeding its CRYPTO frame bytes into reassembler. Retry and
// Version Negotiation packets short-circuit the scan, since neither
// carries an Initial payload to decrypt. Any other non-Initial long-header
// packet ends the scan with an error wrapping ErrNotInitial. clientDCID must be the first
// client DCID observed for this flow (spec.md's "Cross-packet state").
func ProcessDatagram(datagram []byte, clientDCID []byte, isServer bool, reassembler *CryptoReassembler) error {
	offset := 0
	for offset < len(datagram) {
		pkt := datagram[offset:]
		first := pkt[0]
		if first&longHeaderFormBit == 0 {
			// A short-header (1-RTT) packet can't be parsed without
			// 1-RTT keys this decryptor never derives; nothing more in
			// this datagram is an Initial packet once one appears.
			return nil
		}

		lh, err := ParseLongHeader(pkt)
		if lh != nil && (lh.Version == VersionNegotiation || lh.Type == TypeRetry) {
			return nil // neither carries CRYPTO data, short-circuit
		}
		if err != nil {
			return err
		}

		plaintext, consumed, err := DecryptInitial(pkt, clientDCID, isServer)
		if err != nil {
			return err
		}
		if err := reassembler.Feed(plaintext); err != nil {
			return err
		}
		if consumed == 0 {
			return nil
		}
		offset += consumed
	}
	return nil
}
