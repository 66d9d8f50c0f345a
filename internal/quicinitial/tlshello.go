package quicinitial

import (
	"encoding/binary"
	"fmt"
)

// Handshake message types this parser recognizes (RFC 8446 section 4).
const (
	handshakeClientHello = 1
	handshakeServerHello = 2
)

// ClientHelloInfo is the subset of a QUIC Initial's ClientHello this
// decryptor extracts, per spec.md section 4.5.6 step 7: "extracts SNI,
// ALPN, QUIC transport parameters, and -- if present -- the Google
// user-agent extension."
type ClientHelloInfo struct {
	ServerName          string
	ALPNProtocols       []string
	SupportedVersions   []uint16
	QUICTransportParams []byte
	UserAgent           string
}

// ServerHelloInfo is the subset extracted from a decrypted ServerHello.
type ServerHelloInfo struct {
	LegacyVersion     uint16
	SelectedVersion   uint16 // from the supported_versions extension, 0 if absent
	NegotiatedALPN    string
	QUICTransportParams []byte
}

// handshakeMessage is one length-delimited TLS handshake message as
// carried directly in a QUIC CRYPTO stream (no outer TLS record layer).
type handshakeMessage struct {
	msgType byte
	body    []byte
}

// splitHandshakeMessages walks a contiguous CRYPTO byte stream and
// returns every complete handshake message found in it.
func splitHandshakeMessages(stream []byte) ([]handshakeMessage, error) {
	var out []handshakeMessage
	i := 0
	for i+4 <= len(stream) {
		msgType := stream[i]
		length := int(stream[i+1])<<16 | int(stream[i+2])<<8 | int(stream[i+3])
		if i+4+length > len(stream) {
			break // message not fully reassembled yet
		}
		out = append(out, handshakeMessage{msgType: msgType, body: stream[i+4 : i+4+length]})
		i += 4 + length
	}
	return out, nil
}

// ParseClientHello extracts ClientHelloInfo from the first ClientHello
// message found in stream (a CryptoReassembler's Contiguous() output).
func ParseClientHello(stream []byte) (*ClientHelloInfo, error) {
	msgs, err := splitHandshakeMessages(stream)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if m.msgType == handshakeClientHello {
			return parseClientHelloBody(m.body)
		}
	}
	return nil, fmt.Errorf("%w: no ClientHello message in stream", ErrMalformedTLSRecord)
}

// ParseServerHello extracts ServerHelloInfo from the first ServerHello
// message found in stream.
func ParseServerHello(stream []byte) (*ServerHelloInfo, error) {
	msgs, err := splitHandshakeMessages(stream)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if m.msgType == handshakeServerHello {
			return parseServerHelloBody(m.body)
		}
	}
	return nil, fmt.Errorf("%w: no ServerHello message in stream", ErrMalformedTLSRecord)
}

func parseClientHelloBody(body []byte) (*ClientHelloInfo, error) {
	i := 2 + 32 // legacy_version, random
	if len(body) < i+1 {
		return nil, ErrMalformedTLSRecord
	}
	sessionIDLen := int(body[i])
	i += 1 + sessionIDLen
	if len(body) < i+2 {
		return nil, ErrMalformedTLSRecord
	}
	cipherSuitesLen := int(binary.BigEndian.Uint16(body[i : i+2]))
	i += 2 + cipherSuitesLen
	if len(body) < i+1 {
		return nil, ErrMalformedTLSRecord
	}
	compressionLen := int(body[i])
	i += 1 + compressionLen
	if len(body) < i+2 {
		return nil, ErrMalformedTLSRecord
	}
	extLen := int(binary.BigEndian.Uint16(body[i : i+2]))
	i += 2
	if len(body) < i+extLen {
		return nil, ErrMalformedTLSRecord
	}
	extensions := body[i : i+extLen]

	info := &ClientHelloInfo{}
	err := walkExtensions(extensions, func(extType uint16, data []byte) error {
		switch extType {
		case extServerName:
			name, err := parseServerNameExtension(data)
			if err != nil {
				return err
			}
			info.ServerName = name
		case extALPN:
			protos, err := parseALPNExtension(data)
			if err != nil {
				return err
			}
			info.ALPNProtocols = protos
		case extSupportedVersions:
			versions, err := parseSupportedVersionsClientExtension(data)
			if err != nil {
				return err
			}
			info.SupportedVersions = versions
		case extQUICTransportParamsV1, extQUICTransportParamsDraft, extQUICTransportParamsV2:
			info.QUICTransportParams = append([]byte(nil), data...)
		case extGoogleUserAgent:
			info.UserAgent = string(data)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func parseServerHelloBody(body []byte) (*ServerHelloInfo, error) {
	if len(body) < 2 {
		return nil, ErrMalformedTLSRecord
	}
	info := &ServerHelloInfo{LegacyVersion: binary.BigEndian.Uint16(body[0:2])}
	i := 2 + 32 // legacy_version, random
	if len(body) < i+1 {
		return nil, ErrMalformedTLSRecord
	}
	sessionIDLen := int(body[i])
	i += 1 + sessionIDLen
	i += 2 // cipher_suite
	i += 1 // legacy_compression_method
	if len(body) < i+2 {
		return nil, ErrMalformedTLSRecord
	}
	extLen := int(binary.BigEndian.Uint16(body[i : i+2]))
	i += 2
	if len(body) < i+extLen {
		return nil, ErrMalformedTLSRecord
	}
	extensions := body[i : i+extLen]

	err := walkExtensions(extensions, func(extType uint16, data []byte) error {
		switch extType {
		case extSupportedVersions:
			if len(data) == 2 {
				info.SelectedVersion = binary.BigEndian.Uint16(data)
			}
		case extALPN:
			protos, err := parseALPNExtension(data)
			if err == nil && len(protos) > 0 {
				info.NegotiatedALPN = protos[0]
			}
		case extQUICTransportParamsV1, extQUICTransportParamsDraft, extQUICTransportParamsV2:
			info.QUICTransportParams = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func walkExtensions(extensions []byte, fn func(extType uint16, data []byte) error) error {
	i := 0
	for i+4 <= len(extensions) {
		extType := binary.BigEndian.Uint16(extensions[i : i+2])
		extLen := int(binary.BigEndian.Uint16(extensions[i+2 : i+4]))
		i += 4
		if i+extLen > len(extensions) {
			return ErrMalformedTLSRecord
		}
		if err := fn(extType, extensions[i:i+extLen]); err != nil {
			return err
		}
		i += extLen
	}
	return nil
}

func parseServerNameExtension(data []byte) (string, error) {
	if len(data) < 2 {
		return "", ErrMalformedTLSRecord
	}
	listLen := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) < 2+listLen {
		return "", ErrMalformedTLSRecord
	}
	list := data[2 : 2+listLen]
	i := 0
	for i+3 <= len(list) {
		nameType := list[i]
		nameLen := int(binary.BigEndian.Uint16(list[i+1 : i+3]))
		i += 3
		if i+nameLen > len(list) {
			return "", ErrMalformedTLSRecord
		}
		if nameType == 0 { // host_name
			return string(list[i : i+nameLen]), nil
		}
		i += nameLen
	}
	return "", nil
}

func parseALPNExtension(data []byte) ([]string, error) {
	if len(data) < 2 {
		return nil, ErrMalformedTLSRecord
	}
	listLen := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) < 2+listLen {
		return nil, ErrMalformedTLSRecord
	}
	list := data[2 : 2+listLen]
	var out []string
	i := 0
	for i < len(list) {
		protoLen := int(list[i])
		i++
		if i+protoLen > len(list) {
			return nil, ErrMalformedTLSRecord
		}
		out = append(out, string(list[i:i+protoLen]))
		i += protoLen
	}
	return out, nil
}

func parseSupportedVersionsClientExtension(data []byte) ([]uint16, error) {
	if len(data) < 1 {
		return nil, ErrMalformedTLSRecord
	}
	listLen := int(data[0])
	if len(data) < 1+listLen || listLen%2 != 0 {
		return nil, ErrMalformedTLSRecord
	}
	var out []uint16
	for i := 1; i+2 <= 1+listLen; i += 2 {
		out = append(out, binary.BigEndian.Uint16(data[i:i+2]))
	}
	return out, nil
}
