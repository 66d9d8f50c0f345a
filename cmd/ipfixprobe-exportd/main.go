// Command ipfixprobe-exportd is a thin demonstration entrypoint wiring the
// field registry, process-plugin runtime, output ring and exporter into one
// running process, consistent with spec.md's stated external-interface
// boundary: this package owns no protocol dissection or packet capture of
// its own, it only shows how the library packages compose (SPEC_FULL.md
// section 5).
package main

import (
	"flag"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/go-logr/logr/funcr"

	"github.com/CESNET/ipfixprobe-go/internal/basicplugin"
	"github.com/CESNET/ipfixprobe-go/internal/elementmap"
	"github.com/CESNET/ipfixprobe-go/internal/export"
	"github.com/CESNET/ipfixprobe-go/internal/fieldregistry"
	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
	"github.com/CESNET/ipfixprobe-go/internal/obslog"
	"github.com/CESNET/ipfixprobe-go/internal/outputring"
	"github.com/CESNET/ipfixprobe-go/internal/pluginfactory"
	"github.com/CESNET/ipfixprobe-go/internal/pluginrt"
	"github.com/CESNET/ipfixprobe-go/internal/quicplugin"
)

func main() {
	elementsPath := flag.String("elements", "hack/elements.yaml", "path to the field->IE element map")
	exporterOpts := flag.String("exporter", "host=127.0.0.1;port=4739", "exporter plugin option string (internal/optparse grammar)")
	outFile := flag.String("out", "", "write an IPFIX file-format capture here instead of connecting to a collector")
	verbosity := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	obslog.SetLogger(funcr.New(func(prefix, args string) {
		fmt.Fprintln(os.Stderr, prefix, args)
	}, funcr.Options{Verbosity: *verbosity}))

	if err := run(*elementsPath, *exporterOpts, *outFile); err != nil {
		obslog.Log.Error(err, "ipfixprobe-exportd exited with an error")
		os.Exit(1)
	}
}

// run builds the full pipeline described in DESIGN.md's
// cmd/ipfixprobe-exportd section: field
// registry -> process plugins -> flow-record layout -> output ring ->
// exporter, then drives a handful of synthetic packets through it so the
// wiring can be demonstrated without a live capture source.
func run(elementsPath, exporterOptsStr, outPath string) error {
	reg := fieldregistry.New()

	basicHandlers, err := basicplugin.Register(reg)
	if err != nil {
		return fmt.Errorf("register basic plugin fields: %w", err)
	}
	quicHandlers, quicRef, err := quicplugin.Register(reg)
	if err != nil {
		return fmt.Errorf("register quic plugin fields: %w", err)
	}

	if err := pluginfactory.Global().Register(
		pluginfactory.Manifest{Name: "basic", Description: "directional packet/byte/flag counters", PluginVersion: "1.0.0", APIVersion: "1.0.0"},
		func(string) (pluginrt.ProcessPlugin, error) { return basicplugin.New(basicHandlers), nil },
	); err != nil {
		return fmt.Errorf("register basic plugin constructor: %w", err)
	}
	if err := pluginfactory.Global().Register(
		pluginfactory.Manifest{Name: "quic", Description: "QUIC Initial SNI/user-agent extraction", PluginVersion: "1.0.0", APIVersion: "1.0.0"},
		func(string) (pluginrt.ProcessPlugin, error) { return quicplugin.New(quicHandlers, quicRef), nil },
	); err != nil {
		return fmt.Errorf("register quic plugin constructor: %w", err)
	}

	basicInstance, err := pluginfactory.Global().Construct("basic", "")
	if err != nil {
		return fmt.Errorf("construct basic plugin: %w", err)
	}
	quicInstance, err := pluginfactory.Global().Construct("quic", "")
	if err != nil {
		return fmt.Errorf("construct quic plugin: %w", err)
	}
	if q, ok := quicInstance.(*quicplugin.Plugin); ok {
		q.SetIndex(1)
	}

	rt := pluginrt.New([]pluginrt.ProcessPlugin{basicInstance, quicInstance})

	layout, err := flowrecord.NewLayout(rt.Specs())
	if err != nil {
		return fmt.Errorf("build flow layout: %w", err)
	}

	elementsFile, err := os.Open(elementsPath)
	if err != nil {
		return fmt.Errorf("open element map %q: %w", elementsPath, err)
	}
	defer elementsFile.Close()
	bindings, err := elementmap.Load(elementsFile)
	if err != nil {
		return fmt.Errorf("load element map: %w", err)
	}

	opts, err := export.ParseOptions(exporterOptsStr)
	if err != nil {
		return fmt.Errorf("parse exporter options: %w", err)
	}

	var writer export.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file %q: %w", outPath, err)
		}
		defer f.Close()
		writer = export.NewFileSink(f)
	} else {
		switch opts.Mode {
		case export.TransportUDP:
			udp, err := export.NewUDPTransport(opts.Host, opts.Port)
			if err != nil {
				return fmt.Errorf("dial udp collector: %w", err)
			}
			defer udp.Close()
			writer = udp
		default:
			tcp := export.NewTCPTransport(opts.Host, opts.Port)
			if err := tcp.Connect(); err != nil {
				return fmt.Errorf("dial tcp collector: %w", err)
			}
			defer tcp.Close()
			writer = tcp
		}
	}

	streamMode := opts.Mode == export.TransportTCP
	cache := export.NewTemplateCache(reg, bindings, streamMode, opts.TemplateRefreshSec, opts.TemplateRefreshPkt)
	exporter := export.NewExporter(opts, cache, writer)

	const ringGroups = 1
	ring := outputring.New[export.OutputEntry](1024, ringGroups)
	ring.RegisterWriter()

	produceDemoFlows(ring, rt, layout)
	ring.UnregisterWriter()

	rd := ring.NewReader(0)
	if err := exporter.Run(ring, rd); err != nil {
		return fmt.Errorf("export ring: %w", err)
	}

	obslog.Log.Info("ipfixprobe-exportd finished draining demonstration flows")
	return nil
}

// produceDemoFlows dispatches one synthetic biflow through rt and writes its
// finished record to ring, standing in for a real flow-cache worker goroutine
// (spec.md section 4.4's producer side).
func produceDemoFlows(ring *outputring.Ring[export.OutputEntry], rt *pluginrt.Runtime, layout *flowrecord.Layout) {
	rec, err := layout.NewRecord([]bool{true, true})
	if err != nil {
		obslog.Log.Error(err, "allocate demonstration flow record")
		return
	}

	now := time.Now()
	fwd := &pluginrt.Packet{
		Timestamp: now,
		Direction: pluginrt.DirectionForward,
		SrcAddr:   netip.MustParseAddr("192.0.2.1"),
		DstAddr:   netip.MustParseAddr("192.0.2.2"),
		SrcPort:   51820,
		DstPort:   443,
		Protocol:  17,
		ByteLen:   128,
	}
	rev := &pluginrt.Packet{
		Timestamp: now.Add(time.Millisecond),
		Direction: pluginrt.DirectionReverse,
		SrcAddr:   netip.MustParseAddr("192.0.2.2"),
		DstAddr:   netip.MustParseAddr("192.0.2.1"),
		SrcPort:   443,
		DstPort:   51820,
		Protocol:  17,
		ByteLen:   256,
	}

	rt.Dispatch(rec, fwd)
	rt.Dispatch(rec, rev)
	rt.Export(rec)

	entry := &export.OutputEntry{
		Record:       rec,
		PluginGroups: []string{basicplugin.GroupName, quicplugin.GroupName},
		Family:       export.FamilyIPv4,
		View:         export.ViewBiflowForward,
	}
	ring.WriteBlocking(entry)
}
