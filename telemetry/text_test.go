package telemetry

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"
)

func greeterRegistry(t *testing.T) (*Registry, *Counter, *Histogram) {

	r := NewRegistry()
	c, err := r.RegisterCounter("grpc_requests_total", "Total number of gRPC requests")
	if err != nil {
		t.Fatal(err)
	}
	h, err := r.RegisterHistogram("grpc_request_duration_seconds", "gRPC request duration in seconds", DefaultBuckets())
	if err != nil {
		t.Fatal(err)
	}
	return r, c, h
}

func TestWriteTextScenario(t *testing.T) {

	r, c, h := greeterRegistry(t)

	for _, d := range []float64{0.05, 0.05, 0.05, 2.0} {
		c.Inc()
		h.Observe(d)
	}

	text := string(Text(r.Snapshot()))

	expected := []string{
		"# HELP grpc_requests_total Total number of gRPC requests\n",
		"# TYPE grpc_requests_total counter\n",
		"grpc_requests_total 4\n",
		"# HELP grpc_request_duration_seconds gRPC request duration in seconds\n",
		"# TYPE grpc_request_duration_seconds histogram\n",
		`grpc_request_duration_seconds_bucket{le="0.001"} 0` + "\n",
		`grpc_request_duration_seconds_bucket{le="0.01"} 0` + "\n",
		`grpc_request_duration_seconds_bucket{le="0.1"} 3` + "\n",
		`grpc_request_duration_seconds_bucket{le="1.0"} 3` + "\n",
		`grpc_request_duration_seconds_bucket{le="10.0"} 4` + "\n",
		`grpc_request_duration_seconds_bucket{le="+Inf"} 4` + "\n",
		"grpc_request_duration_seconds_count 4\n",
	}
	for _, line := range expected {
		if !strings.Contains(text, line) {
			t.Fatalf("missing %q in:\n%s", line, text)
		}
	}

	// counter registered first, so it is rendered first
	if strings.Index(text, "grpc_requests_total") > strings.Index(text, "grpc_request_duration_seconds") {
		t.Fatal("metrics are not in registration order")
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(strings.NewReader(text))
	if err != nil {
		t.Fatalf("output does not parse: %v\n%s", err, text)
	}

	hist := families["grpc_request_duration_seconds"].GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 4 {
		t.Fatalf("unexpected count %d", hist.GetSampleCount())
	}
	if math.Abs(hist.GetSampleSum()-2.15) > 1e-9 {
		t.Fatalf("unexpected sum %v", hist.GetSampleSum())
	}
	if families["grpc_requests_total"].GetMetric()[0].GetCounter().GetValue() != 4 {
		t.Fatal("unexpected counter value")
	}
}

func TestWriteTextDeterministic(t *testing.T) {

	r, c, h := greeterRegistry(t)
	c.Inc()
	h.Observe(0.3)

	lc, err := c.With(Labels{"method": "SayHello"})
	if err != nil {
		t.Fatal(err)
	}
	lc.Inc()
	if _, err := c.With(Labels{"method": "Other"}); err != nil {
		t.Fatal(err)
	}

	first := Text(r.Snapshot())
	second := Text(r.Snapshot())
	if !bytes.Equal(first, second) {
		t.Fatalf("serialization is not deterministic:\n%s\n---\n%s", first, second)
	}
}

func TestWriteTextEscaping(t *testing.T) {

	r := NewRegistry()
	c := r.MustRegisterCounter("escaped_total", "line one\nback\\slash")
	s, err := c.With(Labels{"path": `a"b\c` + "\n"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Add(0.5); err != nil {
		t.Fatal(err)
	}

	h := r.MustRegisterHistogram("labeled_seconds", "", []float64{1, 2.5})
	hs, err := h.With(Labels{"method": "SayHello"})
	if err != nil {
		t.Fatal(err)
	}
	hs.Observe(2)

	text := string(Text(r.Snapshot()))

	for _, line := range []string{
		`# HELP escaped_total line one\nback\\slash` + "\n",
		`escaped_total{path="a\"b\\c\n"} 0.5` + "\n",
		`labeled_seconds_bucket{method="SayHello",le="1.0"} 0` + "\n",
		`labeled_seconds_bucket{method="SayHello",le="2.5"} 1` + "\n",
		`labeled_seconds_bucket{method="SayHello",le="+Inf"} 1` + "\n",
		`labeled_seconds_sum{method="SayHello"} 2` + "\n",
		`labeled_seconds_count 0` + "\n",
	} {
		if !strings.Contains(text, line) {
			t.Fatalf("missing %q in:\n%s", line, text)
		}
	}

	var parser expfmt.TextParser
	if _, err := parser.TextToMetricFamilies(strings.NewReader(text)); err != nil {
		t.Fatalf("output does not parse: %v\n%s", err, text)
	}
}

func TestFormatBound(t *testing.T) {

	cases := map[float64]string{
		0.001: "0.001",
		1:     "1.0",
		10:    "10.0",
		2.5:   "2.5",
		1e21:  "1e+21",
	}
	for v, want := range cases {
		if got := formatBound(v); got != want {
			t.Fatalf("formatBound(%v): want %s, got %s", v, want, got)
		}
	}
	if formatValue(math.Inf(1)) != "+Inf" || formatValue(math.NaN()) != "NaN" {
		t.Fatal("special values are not rendered as in the exposition format")
	}
}
