package varpdmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	varpdmetrics "github.com/mnx-cloud/govarpd/internal/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestRecordScan(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := varpdmetrics.NewCollector(reg)

	c.RecordScan("startup", 3)

	if got := counterValue(t, c.FabricScans.WithLabelValues("startup")); got != 1 {
		t.Errorf("FabricScans(startup) = %v, want 1", got)
	}
	if got := gaugeValue(t, c.FabricLinksDiscovered); got != 3 {
		t.Errorf("FabricLinksDiscovered = %v, want 3", got)
	}
}

func TestRecordTriggerAndDropped(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := varpdmetrics.NewCollector(reg)

	c.RecordTrigger("v4")
	c.RecordTrigger("v4")
	c.RecordDropped()

	if got := counterValue(t, c.NetlinkTriggers.WithLabelValues("v4")); got != 2 {
		t.Errorf("NetlinkTriggers(v4) = %v, want 2", got)
	}
	if got := counterValue(t, c.NetlinkEventsDropped); got != 1 {
		t.Errorf("NetlinkEventsDropped = %v, want 1", got)
	}
}

func TestRecordRequestAndAck(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := varpdmetrics.NewCollector(reg)

	c.RecordRequestSent("vl3_req")
	c.RecordAck("ok", 1)

	if got := counterValue(t, c.SVPRequestsSent.WithLabelValues("vl3_req")); got != 1 {
		t.Errorf("SVPRequestsSent(vl3_req) = %v, want 1", got)
	}
	if got := counterValue(t, c.SVPAcksReceived.WithLabelValues("ok")); got != 1 {
		t.Errorf("SVPAcksReceived(ok) = %v, want 1", got)
	}
	if got := gaugeValue(t, c.SVPTransactionsOutstanding); got != 1 {
		t.Errorf("SVPTransactionsOutstanding = %v, want 1", got)
	}
}
