package export

import (
	"fmt"
	"strconv"
	"time"

	"github.com/CESNET/ipfixprobe-go/internal/optparse"
)

// TransportMode selects the collector connection kind (spec.md section
// 4.5.5).
type TransportMode uint8

const (
	TransportTCP TransportMode = iota
	TransportUDP
)

// Options is the exporter plugin's parsed configuration, grounded on
// original_source's ipfix exporter option set and re-expressed through
// internal/optparse's grammar (SPEC_FULL.md section 4).
type Options struct {
	Host string
	Port int
	Mode TransportMode

	MTU               int
	ObservationDomain  uint32
	LZ4Compression     bool
	LZ4BufferSize      uint32
	TemplateRefreshSec time.Duration
	TemplateRefreshPkt int
	NonBlocking        bool
}

// DefaultOptions matches original_source's exporter defaults: port 4739,
// TCP, MTU 1500, template refresh every 600s or 0x1000 packets.
func DefaultOptions() Options {
	return Options{
		Host:               "127.0.0.1",
		Port:               4739,
		Mode:               TransportTCP,
		MTU:                DefaultMTU,
		ObservationDomain:  0,
		LZ4BufferSize:      64 * 1024,
		TemplateRefreshSec: 600 * time.Second,
		TemplateRefreshPkt: 0x1000,
	}
}

// ParseOptions parses a plugin option string (e.g.
// "host=127.0.0.1;port=4739;udp;lz4-compression") into Options, rejecting
// contradictory combinations per spec.md section 7 ("udp combined with
// lz4-compression is a configuration error, not silently resolved").
func ParseOptions(args string) (Options, error) {
	opts := DefaultOptions()
	udpRequested := false

	p := optparse.New("ipfix", "IPFIX exporter")
	reg := func(short, long, hint, desc string, mode optparse.ArgMode, fn optparse.Func) {
		if err := p.Register(short, long, hint, desc, mode, fn); err != nil {
			panic(err) // registration errors are a programming bug, not a runtime error
		}
	}

	reg("h", "host", "ADDR", "collector host", optparse.RequiredArgument, func(v string) error {
		opts.Host = v
		return nil
	})
	reg("p", "port", "PORT", "collector port", optparse.RequiredArgument, func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: port %q: %v", ErrUnknownOption, v, err)
		}
		opts.Port = n
		return nil
	})
	reg("u", "udp", "", "use UDP transport", optparse.NoArgument, func(string) error {
		udpRequested = true
		opts.Mode = TransportUDP
		return nil
	})
	reg("m", "mtu", "BYTES", "message MTU", optparse.RequiredArgument, func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: mtu %q: %v", ErrUnknownOption, v, err)
		}
		opts.MTU = n
		return nil
	})
	reg("o", "id", "ID", "observation domain id", optparse.RequiredArgument, func(v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: id %q: %v", ErrUnknownOption, v, err)
		}
		opts.ObservationDomain = uint32(n)
		return nil
	})
	reg("l", "lz4-compression", "", "compress messages with lz4", optparse.NoArgument, func(string) error {
		opts.LZ4Compression = true
		return nil
	})
	reg("b", "lz4-buffer-size", "N", "lz4 reset-marker ring-buffer size hint", optparse.RequiredArgument, func(v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: lz4-buffer-size %q: %v", ErrUnknownOption, v, err)
		}
		opts.LZ4BufferSize = uint32(n)
		return nil
	})
	reg("t", "template", "SECONDS", "template refresh interval", optparse.RequiredArgument, func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: template %q: %v", ErrUnknownOption, v, err)
		}
		opts.TemplateRefreshSec = time.Duration(n) * time.Second
		return nil
	})
	reg("n", "non-blocking", "", "drop records instead of blocking when the ring is full", optparse.NoArgument, func(string) error {
		opts.NonBlocking = true
		return nil
	})

	if err := p.Parse(args); err != nil {
		return Options{}, err
	}

	if udpRequested && opts.LZ4Compression {
		return Options{}, fmt.Errorf("%w: %w", ErrContradictoryOptions, ErrLZ4ForbiddenOnDatagram)
	}
	return opts, nil
}
