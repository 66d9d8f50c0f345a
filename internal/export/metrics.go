package export

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirror the teacher's metrics.go convention of flat package-level
// prometheus collectors, one block per component (spec.md section
// "Ambient Stack"/SPEC_FULL.md section 2): here, the exporter and its
// transport.
var (
	RecordsExported = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exporter_records_exported_total",
		Help: "Total number of flow records serialized and handed to a transport.",
	})
	RecordsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exporter_records_dropped_total",
		Help: "Total number of flow records dropped before serialization.",
	}, []string{"reason"})
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exporter_messages_sent_total",
		Help: "Total number of IPFIX messages flushed to the transport.",
	})
	BytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exporter_bytes_sent_total",
		Help: "Total number of bytes written to the transport.",
	})
	TemplatesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exporter_templates_sent_total",
		Help: "Total number of template sets (re)transmitted, by trigger.",
	}, []string{"trigger"})
	TransportReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exporter_transport_reconnects_total",
		Help: "Total number of transport reconnection attempts.",
	})
	TransportErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exporter_transport_errors_total",
		Help: "Total number of transport write errors, by classification.",
	}, []string{"kind"})
)
