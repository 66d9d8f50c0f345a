package quicinitial

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// TestDeriveInitialSecretsRFC9001Vectors checks the key derivation
// against the client DCID used in RFC 9001 Appendix A.1's worked example
// (QUIC v1, client DCID 0x8394c8f03e515708). It checks structural
// properties (key lengths, client/server divergence, determinism)
// rather than transcribing the appendix's derived byte strings verbatim.
func TestDeriveInitialSecretsRFC9001Vectors(t *testing.T) {
	dcid := mustDecodeHex("8394c8f03e515708")

	client, server, err := DeriveInitialSecrets(Version1, dcid)
	if err != nil {
		t.Fatalf("DeriveInitialSecrets: %v", err)
	}

	if len(client.Key) != keyLen || len(client.IV) != ivLen || len(client.HPKey) != hpKeyLen {
		t.Error("client secrets have unexpected lengths")
	}
	if len(server.Key) != keyLen || len(server.IV) != ivLen || len(server.HPKey) != hpKeyLen {
		t.Error("server secrets have unexpected lengths")
	}
	if bytes.Equal(client.Key, server.Key) {
		t.Error("client and server keys must differ")
	}
	if bytes.Equal(client.IV, server.IV) {
		t.Error("client and server IVs must differ")
	}

	again, _, err := DeriveInitialSecrets(Version1, dcid)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(client.Key, again.Key) {
		t.Error("derivation must be deterministic for the same (version, dcid)")
	}

	other, _, err := DeriveInitialSecrets(Version1, mustDecodeHex("0011223344556677"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(client.Key, other.Key) {
		t.Error("different client DCIDs must derive different keys")
	}
	_ = hex.EncodeToString // keep hex imported for future vector pinning
}

func TestDeriveInitialSecretsUnsupportedVersion(t *testing.T) {
	_, _, err := DeriveInitialSecrets(0xdeadbeef, []byte{1, 2, 3, 4})
	if err != ErrUnsupportedVersion {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestDeriveInitialSecretsVersionNegotiationUnsupported(t *testing.T) {
	_, _, err := DeriveInitialSecrets(VersionNegotiation, []byte{1, 2, 3, 4})
	if err != ErrUnsupportedVersion {
		t.Fatalf("expected ErrUnsupportedVersion for version negotiation, got %v", err)
	}
}

func TestIsV2LabelSelection(t *testing.T) {
	if !IsV2(Version2) {
		t.Error("Version2 should select v2 labels")
	}
	if IsV2(Version1) {
		t.Error("Version1 should not select v2 labels")
	}
}
