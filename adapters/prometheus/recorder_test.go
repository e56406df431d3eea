package prometheus

import (
	"context"
	"testing"

	"github.com/goliatone/go-wsrm/core"
	"github.com/goliatone/go-wsrm/session"
	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, registry *prom.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}

func TestMetricName(t *testing.T) {
	cases := map[string]string{
		"wsrm.session.receive.total": "wsrm_session_receive_total",
		" duration-ms ":              "duration_ms",
		"9lives":                     "_9lives",
	}
	for input, want := range cases {
		if got := MetricName(input); got != want {
			t.Fatalf("MetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRecorderCountersAndHistograms(t *testing.T) {
	registry := prom.NewRegistry()
	recorder := NewRecorder(Options{Registerer: registry, Namespace: "edge"})
	ctx := context.Background()
	tags := map[string]string{"operation": "receive", "status": "success", "outcome": "accepted", "ignored": "x"}

	recorder.IncCounter(ctx, "wsrm.session.receive.total", 1, tags)
	recorder.IncCounter(ctx, "wsrm.session.receive.total", 2, tags)
	recorder.IncCounter(ctx, "wsrm.session.receive.total", -1, tags)
	recorder.ObserveHistogram(ctx, "wsrm.session.receive.duration_ms", 3, tags)

	counter := gatherFamily(t, registry, "edge_wsrm_session_receive_total")
	if counter == nil || len(counter.GetMetric()) != 1 {
		t.Fatalf("expected one counter series, got %v", counter)
	}
	series := counter.GetMetric()[0]
	if series.GetCounter().GetValue() != 3 {
		t.Fatalf("expected counter 3, got %v", series.GetCounter().GetValue())
	}
	if labelValue(series, "outcome") != "accepted" || labelValue(series, "fault_code") != "" {
		t.Fatalf("unexpected labels %v", series.GetLabel())
	}
	if len(series.GetLabel()) != len(DefaultLabels) {
		t.Fatalf("expected unknown tags dropped, got %v", series.GetLabel())
	}

	histogram := gatherFamily(t, registry, "edge_wsrm_session_receive_duration_ms")
	if histogram == nil || histogram.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one histogram sample, got %v", histogram)
	}
}

func TestRecorderReusesRegisteredCollectors(t *testing.T) {
	registry := prom.NewRegistry()
	first := NewRecorder(Options{Registerer: registry})
	second := NewRecorder(Options{Registerer: registry})
	ctx := context.Background()

	first.IncCounter(ctx, "wsrm.session.close.total", 1, map[string]string{"status": "success"})
	second.IncCounter(ctx, "wsrm.session.close.total", 1, map[string]string{"status": "success"})

	family := gatherFamily(t, registry, "wsrm_session_close_total")
	if family == nil || family.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("expected recorders sharing one collector, got %v", family)
	}
}

func TestRecorderObservesListenerOperations(t *testing.T) {
	registry := prom.NewRegistry()
	runtime, err := core.ResolveRuntime(core.DefaultConfig(), core.WithMetricsRecorder(NewRecorder(Options{Registerer: registry})))
	if err != nil {
		t.Fatalf("resolve runtime: %v", err)
	}
	listener, err := session.NewListener(session.ListenerOptions[string]{
		Runtime: runtime,
		Handler: core.ChannelDispatcherFunc[string](func(context.Context, string) error { return nil }),
	})
	if err != nil {
		t.Fatalf("new listener: %v", err)
	}
	if err := listener.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer listener.Abort()

	if _, err := listener.Receive(context.Background(), session.SequenceMessage[string]{SequenceID: "urn:unknown", Number: 1}); err == nil {
		t.Fatalf("expected unknown sequence fault")
	}

	family := gatherFamily(t, registry, "wsrm_session_receive_total")
	if family == nil {
		t.Fatalf("expected receive counter")
	}
	series := family.GetMetric()[0]
	if labelValue(series, "status") != "failure" || labelValue(series, "fault_code") != string(core.FaultUnknownSequence) {
		t.Fatalf("unexpected labels %v", series.GetLabel())
	}
}
