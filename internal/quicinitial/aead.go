package quicinitial

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// decryptPayload performs the AES-128-GCM decryption of step 6 (spec.md
// section 4.5.6): nonce is iv XOR'd with the packet number left-padded
// to iv's length, associated data is the full unprotected header bytes
// (header up to and including the now-recovered packet number field),
// and the trailing 16 bytes of ciphertext are the GCM authentication
// tag.
func decryptPayload(secrets Secrets, packetNumber uint32, header, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(secrets.Key)
	if err != nil {
		return nil, fmt.Errorf("quicinitial: aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("quicinitial: cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, len(secrets.IV))
	copy(nonce, secrets.IV)
	applyPacketNumber(nonce, packetNumber)

	plaintext, err := aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAEADAuthFailed, err)
	}
	return plaintext, nil
}

// applyPacketNumber XORs the packet number into the low-order bytes of
// nonce in place, per RFC 9001 section 5.3: "left-padded with zeros to
// the size of the IV, then XORed".
func applyPacketNumber(nonce []byte, pn uint32) {
	pnBytes := [4]byte{byte(pn >> 24), byte(pn >> 16), byte(pn >> 8), byte(pn)}
	offset := len(nonce) - 4
	for i := 0; i < 4; i++ {
		nonce[offset+i] ^= pnBytes[i]
	}
}
