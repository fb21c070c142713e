// Package varpdmetrics exposes govarpd's operational counters and gauges
// through a Prometheus registry: a struct of pre-registered vectors plus
// small label-aware increment methods, rather than ad hoc prometheus calls
// scattered through the reactor and svp packages.
package varpdmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "govarpd"
	subsystem = "daemon"
)

// Label names used across the collector's vectors.
const (
	labelKind   = "kind"   // netlinksrc trigger kind: v4, v6, mac
	labelStatus = "status" // svp ack status: ok, notfound, error
)

// Collector holds all govarpd Prometheus metrics.
type Collector struct {
	// FabricScans counts completed fabric inventory scans, labeled by
	// trigger ("startup", "sighup", "rtm_newlink").
	FabricScans *prometheus.CounterVec

	// FabricLinksDiscovered is the current count of populated FabricLink
	// entries in the link table.
	FabricLinksDiscovered prometheus.Gauge

	// NetlinkTriggers counts qualifying neighbor-resolution trigger events
	// consumed from the kernel routing socket, labeled by kind.
	NetlinkTriggers *prometheus.CounterVec

	// NetlinkEventsDropped counts neighbor events dropped at a validity
	// gate.
	NetlinkEventsDropped prometheus.Counter

	// SVPRequestsSent counts outbound SVP requests, labeled by op
	// ("vl2_req", "vl3_req").
	SVPRequestsSent *prometheus.CounterVec

	// SVPAcksReceived counts inbound SVP acknowledgements, labeled by
	// status ("ok", "notfound", "error").
	SVPAcksReceived *prometheus.CounterVec

	// SVPTransactionsOutstanding tracks the live size of the transaction
	// registry.
	SVPTransactionsOutstanding prometheus.Gauge
}

// NewCollector creates a Collector with all govarpd metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.FabricScans,
		c.FabricLinksDiscovered,
		c.NetlinkTriggers,
		c.NetlinkEventsDropped,
		c.SVPRequestsSent,
		c.SVPAcksReceived,
		c.SVPTransactionsOutstanding,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		FabricScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fabric_scans_total",
			Help:      "Total fabric inventory scans performed, labeled by trigger.",
		}, []string{"trigger"}),

		FabricLinksDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fabric_links_discovered",
			Help:      "Current number of populated FabricLink entries in the link table.",
		}),

		NetlinkTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "netlink_triggers_total",
			Help:      "Total neighbor-resolution trigger events consumed from the kernel routing socket.",
		}, []string{labelKind}),

		NetlinkEventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "netlink_events_dropped_total",
			Help:      "Total neighbor events dropped at a validity gate.",
		}),

		SVPRequestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "svp_requests_sent_total",
			Help:      "Total outbound SVP requests sent, labeled by op.",
		}, []string{"op"}),

		SVPAcksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "svp_acks_received_total",
			Help:      "Total inbound SVP acknowledgements received, labeled by status.",
		}, []string{labelStatus}),

		SVPTransactionsOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "svp_transactions_outstanding",
			Help:      "Current number of SVP transactions awaiting an acknowledgement.",
		}),
	}
}

// RecordScan increments the scan counter for the given trigger and updates
// the discovered-links gauge.
func (c *Collector) RecordScan(trigger string, linksDiscovered int) {
	c.FabricScans.WithLabelValues(trigger).Inc()
	c.FabricLinksDiscovered.Set(float64(linksDiscovered))
}

// RecordTrigger increments the netlink trigger counter for kind.
func (c *Collector) RecordTrigger(kind string) {
	c.NetlinkTriggers.WithLabelValues(kind).Inc()
}

// RecordDropped increments the netlink dropped-event counter.
func (c *Collector) RecordDropped() {
	c.NetlinkEventsDropped.Inc()
}

// RecordRequestSent increments the outbound SVP request counter for op.
func (c *Collector) RecordRequestSent(op string) {
	c.SVPRequestsSent.WithLabelValues(op).Inc()
}

// RecordAck increments the inbound SVP ack counter for status and sets the
// outstanding-transactions gauge to outstanding.
func (c *Collector) RecordAck(status string, outstanding int) {
	c.SVPAcksReceived.WithLabelValues(status).Inc()
	c.SVPTransactionsOutstanding.Set(float64(outstanding))
}
