package wsflush

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/behrlich/wsflush/frame"
)

func TestPromObserver_ObserveWrite(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPromObserver(reg, "wsflush_test")

	o.ObserveWrite(128, 5000, true, 3)

	if got := counterValue(t, o.writeBytes); got != 128 {
		t.Errorf("writeBytes = %v, want 128", got)
	}
	if got := counterValue(t, o.writesBatched); got != 1 {
		t.Errorf("writesBatched = %v, want 1", got)
	}
	if got := counterValue(t, o.writesGathered); got != 0 {
		t.Errorf("writesGathered = %v, want 0", got)
	}
}

func TestPromObserver_ObserveWrite_Gathered(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPromObserver(reg, "wsflush_test")

	o.ObserveWrite(64, 1000, false, 2)

	if got := counterValue(t, o.writesGathered); got != 1 {
		t.Errorf("writesGathered = %v, want 1", got)
	}
}

func TestPromObserver_ObserveSubmit(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPromObserver(reg, "wsflush_test")

	o.ObserveSubmit(frame.Ping)
	o.ObserveSubmit(frame.Ping)
	o.ObserveSubmit(frame.Text)

	if got := vecValue(t, o.submits, "ping"); got != 2 {
		t.Errorf("submits[ping] = %v, want 2", got)
	}
	if got := vecValue(t, o.submits, "text"); got != 1 {
		t.Errorf("submits[text] = %v, want 1", got)
	}
}

func TestPromObserver_ObserveFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPromObserver(reg, "wsflush_test")

	o.ObserveFailure(string(KindWriteFailure))

	if got := vecValue(t, o.failures, string(KindWriteFailure)); got != 1 {
		t.Errorf("failures[write_failure] = %v, want 1", got)
	}
}

func TestPromObserver_ObserveQueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPromObserver(reg, "wsflush_test")

	o.ObserveQueueDepth(7)

	m := &dto.Metric{}
	if err := o.queueDepth.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.Gauge.GetValue() != 7 {
		t.Errorf("queueDepth = %v, want 7", m.Gauge.GetValue())
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.Counter.GetValue()
}

func vecValue(t *testing.T, v *prometheus.CounterVec, label string) float64 {
	t.Helper()
	c, err := v.GetMetricWithLabelValues(label)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	return counterValue(t, c)
}
