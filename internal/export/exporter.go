package export

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/CESNET/ipfixprobe-go/internal/outputring"
)

// Writer is the minimal sink an Exporter flushes framed IPFIX messages to.
// TCPTransport, UDPTransport and FileSink all satisfy it; tests use a
// recording fake.
type Writer interface {
	Write(p []byte) (int, error)
}

// groupBits assigns a stable bit position to each plugin-group name the
// first time it is seen, process-lifetime, so an []string of active
// groups can be folded into the uint64 bitmask TemplateKey needs (spec.md
// section 4.5.1). Plugin groups are a small, fixed set known at startup in
// the original, but this implementation discovers them lazily to avoid a
// separate static registration step.
var (
	groupBitsMu sync.Mutex
	groupBits   = map[string]uint{}
	nextGroupBit uint
)

func groupBitmask(groups []string) uint64 {
	groupBitsMu.Lock()
	defer groupBitsMu.Unlock()
	var mask uint64
	for _, g := range groups {
		bit, ok := groupBits[g]
		if !ok {
			if nextGroupBit >= 64 {
				continue // silently saturate: groups past the 64th add no bit
			}
			bit = nextGroupBit
			groupBits[g] = bit
			nextGroupBit++
		}
		mask |= 1 << bit
	}
	return mask
}

// Exporter ties together a TemplateCache, MessageBuffer and Writer to
// implement the IPFIX-exporter half of spec.md section 5's pipeline: it
// drains OutputEntry values from the output ring, resolves/emits
// templates, serializes records into data sets, and frames everything
// into MTU-bounded messages.
type Exporter struct {
	opts     Options
	cache    *TemplateCache
	msg      *MessageBuffer
	writer   Writer
	lz4      *LZ4Stream
	dataSets map[uint16]*dataSetBuilder
}

// dataSetBuilder holds the encoded record bytes of one template id's
// in-progress data set (spec.md section 6, "Data sets: one set per
// template id actually used"). appendToDataSet flushes it after every
// record, so each record currently goes out under its own set header.
type dataSetBuilder struct {
	templateID uint16
	body       []byte
}

// NewExporter builds an Exporter writing to w, backed by cache for
// template resolution. onFlush is derived internally from w and opts'
// LZ4 setting.
func NewExporter(opts Options, cache *TemplateCache, w Writer) *Exporter {
	e := &Exporter{
		opts:     opts,
		cache:    cache,
		writer:   w,
		dataSets: make(map[uint16]*dataSetBuilder),
	}
	if opts.LZ4Compression {
		e.lz4 = NewLZ4Stream(opts.LZ4BufferSize)
	}
	e.msg = NewMessageBuffer(opts.MTU, opts.ObservationDomain, e.flushToWriter)
	return e
}

func (e *Exporter) flushToWriter(payload []byte) error {
	if e.lz4 != nil {
		frame, err := e.lz4.CompressMessage(payload)
		if err != nil {
			return err
		}
		payload = frame
	}
	for {
		n, err := e.writer.Write(payload)
		if err == nil || !errors.Is(err, ErrTransportRetryable) {
			return err
		}
		payload = payload[n:]
	}
}

// OnReconnect must be called after the underlying transport successfully
// reconnects: it marks every cached template unsent, resets the message
// sequence number, and re-primes the LZ4 stream's reset marker (spec.md
// section 4.5.5).
func (e *Exporter) OnReconnect() {
	e.cache.MarkAllUnsent()
	e.msg.ResetSequence()
	if e.lz4 != nil {
		e.lz4.Reset()
	}
}

// ExportEntry serializes one ring entry: resolving its template
// (emitting a template set first if required), encoding its record into
// that template's data set, and appending completed data sets to the
// message buffer. Entry's record is NOT released here; the caller (Run)
// releases it once ExportEntry returns.
func (e *Exporter) ExportEntry(entry *OutputEntry) error {
	key := TemplateKey{Bitmask: groupBitmask(entry.PluginGroups), Family: entry.Family, View: entry.View}
	tmpl, needsSend, err := e.cache.Resolve(key, entry.PluginGroups)
	if err != nil {
		RecordsDropped.WithLabelValues("template").Inc()
		return err
	}

	if needsSend {
		if err := e.flushPendingDataSets(); err != nil {
			return err
		}
		if err := e.emitTemplateSet(tmpl); err != nil {
			return err
		}
		trigger := "refresh"
		if !tmpl.Unsent {
			trigger = "periodic"
		}
		e.cache.MarkSent(key)
		TemplatesSent.WithLabelValues(trigger).Inc()
	}

	var recordBytes []byte
	if err := EncodeRecord(&recordBytes, tmpl, entry.Record); err != nil {
		RecordsDropped.WithLabelValues("encode").Inc()
		return err
	}

	if err := e.appendToDataSet(tmpl.ID, recordBytes); err != nil {
		return err
	}
	e.cache.MarkExported(key)
	RecordsExported.Inc()
	return nil
}

// appendToDataSet adds recordBytes to templateID's in-progress data set
// and then flushes that set to the message buffer at once, so every
// record is framed as a data set of its own.
func (e *Exporter) appendToDataSet(templateID uint16, recordBytes []byte) error {
	b, ok := e.dataSets[templateID]
	if !ok {
		b = &dataSetBuilder{templateID: templateID}
		e.dataSets[templateID] = b
	}
	b.body = append(b.body, recordBytes...)

	// Conservatively flush eagerly: a data set for one template is
	// completed and appended to the message as soon as it is built,
	// since the ring yields records interleaved across templates and
	// holding many open builders risks head-of-line blocking on MTU
	// packing. This trades a few extra set headers for simplicity.
	return e.flushDataSet(templateID)
}

func (e *Exporter) flushDataSet(templateID uint16) error {
	b, ok := e.dataSets[templateID]
	if !ok || len(b.body) == 0 {
		return nil
	}
	set := framSet(templateID, b.body)
	delete(e.dataSets, templateID)
	return e.msg.AppendSet(set)
}

func (e *Exporter) flushPendingDataSets() error {
	for id := range e.dataSets {
		if err := e.flushDataSet(id); err != nil {
			return err
		}
	}
	return nil
}

// emitTemplateSet wraps tmpl's precomputed wire bytes in a set header and
// appends it to the message buffer.
func (e *Exporter) emitTemplateSet(tmpl *Template) error {
	return e.msg.AppendSet(framSet(TemplateSetID, tmpl.WireBytes))
}

// framSet wraps body in a 4-byte set header (spec.md section 6: set_id,
// set_length including the header itself).
func framSet(setID uint16, body []byte) []byte {
	header := make([]byte, SetHeaderLen)
	binary.BigEndian.PutUint16(header[0:2], setID)
	binary.BigEndian.PutUint16(header[2:4], uint16(SetHeaderLen+len(body)))
	return append(header, body...)
}

// Flush forces any pending data sets and the message buffer out to the
// writer, used when draining the ring at shutdown (spec.md section 8,
// T2: "no partial-message emission" still holds -- this only flushes
// complete sets).
func (e *Exporter) Flush() error {
	if err := e.flushPendingDataSets(); err != nil {
		return err
	}
	return e.msg.Flush()
}

// Run drains rd until Read reports ok=false (the ring is exhausted, or
// the reader's backoff gave up), exporting each entry and releasing its
// record afterward. It returns the first export error encountered, having
// already flushed whatever was buffered up to that point.
func (e *Exporter) Run(ring *outputring.Ring[OutputEntry], rd *outputring.Reader) error {
	for {
		entry, ok := ring.Read(rd)
		if !ok {
			return e.Flush()
		}
		err := e.ExportEntry(entry)
		entry.Release()
		if err != nil {
			_ = e.Flush()
			return fmt.Errorf("export entry: %w", err)
		}
	}
}
