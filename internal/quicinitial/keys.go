package quicinitial

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keyLen   = 16 // AES-128 key
	ivLen    = 12 // AEAD nonce
	hpKeyLen = 16 // AES-128 header-protection key
)

// Secrets holds one direction's (client or server) derived Initial keys,
// spec.md section 4.5.6 steps 2-4.
type Secrets struct {
	Key     []byte
	IV      []byte
	HPKey   []byte
}

func newSHA256() hash.Hash { return sha256.New() }

// hkdfExpandLabel implements RFC 8446 section 7.1's HKDF-Expand-Label,
// including the "tls13 " label prefix that RFC 9001 keeps verbatim for
// QUIC, used to derive client_in/server_in secrets and the
// key/iv/hp triad from them (spec.md section 4.5.6 steps 3-4).
func hkdfExpandLabel(secret []byte, label string, context []byte, length int) ([]byte, error) {
	fullLabel := "tls13 " + label
	if len(fullLabel) > 255 || len(context) > 255 {
		return nil, fmt.Errorf("%w: label or context too long", ErrMalformedFrame)
	}

	info := make([]byte, 0, 2+1+len(fullLabel)+1+len(context))
	info = binary.BigEndian.AppendUint16(info, uint16(length))
	info = append(info, byte(len(fullLabel)))
	info = append(info, fullLabel...)
	info = append(info, byte(len(context)))
	info = append(info, context...)

	out := make([]byte, length)
	r := hkdf.Expand(newSHA256, secret, info)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return out, nil
}

// DeriveInitialSecrets computes both endpoints' Initial secrets and
// key/iv/hp triads from a QUIC version and the client's first-observed
// destination connection id, per RFC 9001 section 5.2 and spec.md
// section 4.5.6 steps 2-4.
func DeriveInitialSecrets(version uint32, clientDCID []byte) (client, server Secrets, err error) {
	salt, ok := SaltForVersion(version)
	if !ok {
		return Secrets{}, Secrets{}, ErrUnsupportedVersion
	}

	initialSecret := hkdf.Extract(newSHA256, clientDCID, salt)

	clientInitialSecret, err := hkdfExpandLabel(initialSecret, "client in", nil, sha256.Size)
	if err != nil {
		return Secrets{}, Secrets{}, err
	}
	serverInitialSecret, err := hkdfExpandLabel(initialSecret, "server in", nil, sha256.Size)
	if err != nil {
		return Secrets{}, Secrets{}, err
	}

	keyLabel, ivLabel, hpLabel := "quic key", "quic iv", "quic hp"
	if IsV2(version) {
		keyLabel, ivLabel, hpLabel = "quicv2 key", "quicv2 iv", "quicv2 hp"
	}

	client, err = deriveTriad(clientInitialSecret, keyLabel, ivLabel, hpLabel)
	if err != nil {
		return Secrets{}, Secrets{}, err
	}
	server, err = deriveTriad(serverInitialSecret, keyLabel, ivLabel, hpLabel)
	if err != nil {
		return Secrets{}, Secrets{}, err
	}
	return client, server, nil
}

func deriveTriad(secret []byte, keyLabel, ivLabel, hpLabel string) (Secrets, error) {
	key, err := hkdfExpandLabel(secret, keyLabel, nil, keyLen)
	if err != nil {
		return Secrets{}, err
	}
	iv, err := hkdfExpandLabel(secret, ivLabel, nil, ivLen)
	if err != nil {
		return Secrets{}, err
	}
	hp, err := hkdfExpandLabel(secret, hpLabel, nil, hpKeyLen)
	if err != nil {
		return Secrets{}, err
	}
	return Secrets{Key: key, IV: iv, HPKey: hp}, nil
}
