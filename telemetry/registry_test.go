package telemetry

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func TestRegistryCounterIdempotent(t *testing.T) {

	r := NewRegistry()

	c1, err := r.RegisterCounter("grpc_requests_total", "Total number of gRPC requests")
	if err != nil {
		t.Fatal(err)
	}
	c2, err := r.RegisterCounter("grpc_requests_total", "other help")
	if err != nil {
		t.Fatal(err)
	}
	if c1 != c2 {
		t.Fatal("expected the same counter for the same name")
	}

	c1.Inc()
	if err := c2.Add(2); err != nil {
		t.Fatal(err)
	}
	if c1.Value() != 3 || c2.Value() != 3 {
		t.Fatalf("expected 3 via both handles, got %v and %v", c1.Value(), c2.Value())
	}

	if len(r.Snapshot().Metrics) != 1 {
		t.Fatal("expected a single registered metric")
	}
}

func TestRegistryTypeConflict(t *testing.T) {

	r := NewRegistry()

	r.MustRegisterCounter("requests", "")
	if _, err := r.RegisterHistogram("requests", "", DefaultBuckets()); !errors.Is(err, ErrMetricTypeConflict) {
		t.Fatalf("expected ErrMetricTypeConflict, got %v", err)
	}

	r.MustRegisterHistogram("latency", "", DefaultBuckets())
	if _, err := r.RegisterCounter("latency", ""); !errors.Is(err, ErrMetricTypeConflict) {
		t.Fatalf("expected ErrMetricTypeConflict, got %v", err)
	}

	kind, ok := r.Lookup("latency")
	if !ok || kind != KindHistogram {
		t.Fatalf("unexpected lookup result %v %v", kind, ok)
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Fatal("unexpected lookup hit")
	}
}

func TestRegistryInvalidBuckets(t *testing.T) {

	r := NewRegistry()

	invalid := map[string][]float64{
		"empty":      {},
		"nil":        nil,
		"descending": {1, 0.1},
		"duplicate":  {0.1, 0.1},
		"nan":        {0.1, math.NaN()},
		"only_inf":   {math.Inf(1)},
	}
	for name, bounds := range invalid {
		if _, err := r.RegisterHistogram("h_"+name, "", bounds); !errors.Is(err, ErrInvalidBucketBoundaries) {
			t.Fatalf("%s: expected ErrInvalidBucketBoundaries, got %v", name, err)
		}
		if _, ok := r.Lookup("h_" + name); ok {
			t.Fatalf("%s: invalid histogram must not be registered", name)
		}
	}

	h, err := r.RegisterHistogram("with_inf", "", []float64{1, 2, math.Inf(1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Bounds()) != 2 {
		t.Fatalf("expected +Inf to be folded, got %v", h.Bounds())
	}

	if _, err := r.RegisterHistogram("with_inf", "", []float64{1, 3}); !errors.Is(err, ErrInvalidBucketBoundaries) {
		t.Fatalf("expected bounds mismatch error, got %v", err)
	}
	if _, err := r.RegisterHistogram("with_inf", "", []float64{1, 2}); err != nil {
		t.Fatalf("same bounds should return existing histogram: %v", err)
	}
}

func TestDefaultBucketsFresh(t *testing.T) {

	buckets := DefaultBuckets()
	buckets[0] = 42

	r := NewRegistry()
	h := r.MustRegisterHistogram("latency", "", DefaultBuckets())
	if h.Bounds()[0] != 0.001 {
		t.Fatalf("Default buckets were changed by a caller: %v", h.Bounds())
	}
}

func TestRegistryInvalidNames(t *testing.T) {

	r := NewRegistry()

	for _, name := range []string{"", "1abc", "a-b", "a b"} {
		if _, err := r.RegisterCounter(name, ""); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("%q: expected ErrInvalidName, got %v", name, err)
		}
	}

	c := r.MustRegisterCounter("ok:name_1", "")
	for _, label := range []string{"le", "__name", "a-b", "9a"} {
		if _, err := c.With(Labels{label: "x"}); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("%q: expected ErrInvalidName, got %v", label, err)
		}
	}
}

func TestCounterInvalidDelta(t *testing.T) {

	r := NewRegistry()
	c := r.MustRegisterCounter("c", "")

	if err := c.Add(1.5); err != nil {
		t.Fatal(err)
	}
	if err := c.Add(-1); !errors.Is(err, ErrInvalidDelta) {
		t.Fatalf("expected ErrInvalidDelta, got %v", err)
	}
	if err := c.Add(math.NaN()); !errors.Is(err, ErrInvalidDelta) {
		t.Fatalf("expected ErrInvalidDelta for NaN, got %v", err)
	}
	if err := c.Add(0); err != nil {
		t.Fatal(err)
	}
	if c.Value() != 1.5 {
		t.Fatalf("rejected delta changed value: %v", c.Value())
	}
}

func TestCounterConcurrentAdd(t *testing.T) {

	r := NewRegistry()
	c := r.MustRegisterCounter("stress_total", "")

	const goroutines = 64
	const perGoroutine = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(delta float64) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				if err := c.Add(delta); err != nil {
					t.Error(err)
					return
				}
			}
		}(float64(i % 4))
	}
	wg.Wait()

	// deltas 0..3 repeat, all integral so the float sum is exact
	var want float64
	for i := 0; i < goroutines; i++ {
		want += float64(i%4) * perGoroutine
	}
	if got := c.Value(); got != want {
		t.Fatalf("lost updates: want %v, got %v", want, got)
	}
}

func TestHistogramObserve(t *testing.T) {

	r := NewRegistry()
	h := r.MustRegisterHistogram("latency_seconds", "", DefaultBuckets())

	values := []float64{0.0005, 0.001, 0.005, 0.05, 0.05, 0.5, 2, 20, -1}
	var sum float64
	for _, v := range values {
		h.Observe(v)
		sum += v
	}

	s := h.Snapshot()
	if s.Count != uint64(len(values)) {
		t.Fatalf("expected count %d, got %d", len(values), s.Count)
	}
	if math.Abs(s.Sum-sum) > 1e-9 {
		t.Fatalf("expected sum %v, got %v", sum, s.Sum)
	}

	for i, bound := range DefaultBuckets() {
		var want uint64
		for _, v := range values {
			if v <= bound {
				want++
			}
		}
		if s.Buckets[i] != want {
			t.Fatalf("bucket le=%v: want %d, got %d", bound, want, s.Buckets[i])
		}
		if i > 0 && s.Buckets[i] < s.Buckets[i-1] {
			t.Fatal("buckets are not cumulative")
		}
	}
	if s.Buckets[len(s.Buckets)-1] > s.Count {
		t.Fatal("last bucket exceeds count")
	}
}

func TestHistogramConcurrentObserve(t *testing.T) {

	r := NewRegistry()
	h := r.MustRegisterHistogram("h", "", DefaultBuckets())

	const goroutines = 32
	const perGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(1)

	stop := make(chan struct{})
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			s := h.Snapshot()
			for i := 1; i < len(s.Buckets); i++ {
				if s.Buckets[i] < s.Buckets[i-1] {
					t.Error("torn snapshot: buckets not cumulative")
					return
				}
			}
			if len(s.Buckets) > 0 && s.Buckets[len(s.Buckets)-1] > s.Count {
				t.Error("torn snapshot: bucket above count")
				return
			}
		}
	}()

	var writers sync.WaitGroup
	writers.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer writers.Done()
			for j := 0; j < perGoroutine; j++ {
				h.Observe(0.05)
			}
		}()
	}
	writers.Wait()
	close(stop)
	wg.Wait()

	s := h.Snapshot()
	if s.Count != goroutines*perGoroutine {
		t.Fatalf("lost observations: %d", s.Count)
	}
	if s.Buckets[2] != goroutines*perGoroutine || s.Buckets[1] != 0 {
		t.Fatalf("unexpected buckets %v", s.Buckets)
	}
}

func TestLabeledSeries(t *testing.T) {

	r := NewRegistry()
	c := r.MustRegisterCounter("calls_total", "")

	a1, err := c.With(Labels{"method": "SayHello", "code": "OK"})
	if err != nil {
		t.Fatal(err)
	}
	a2, err := c.With(Labels{"code": "OK", "method": "SayHello"})
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Fatal("label order must not create a new series")
	}
	a1.Inc()
	c.Inc()

	m, ok := r.Snapshot().Find("calls_total")
	if !ok {
		t.Fatal("metric missing from snapshot")
	}
	if len(m.Series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(m.Series))
	}
	// default series sorts first
	if len(m.Series[0].Labels) != 0 || m.Series[1].Labels["method"] != "SayHello" {
		t.Fatalf("unexpected series order %+v", m.Series)
	}

	h := r.MustRegisterHistogram("h", "", []float64{1})
	hs, err := h.With(Labels{"method": "SayHello"})
	if err != nil {
		t.Fatal(err)
	}
	hs.Observe(0.5)
	if h.Snapshot().Count != 0 || hs.Snapshot().Count != 1 {
		t.Fatal("labeled histogram series leaked into the default series")
	}
}

func TestSnapshotIsCopy(t *testing.T) {

	r := NewRegistry()
	c := r.MustRegisterCounter("c", "")
	h := r.MustRegisterHistogram("h", "", []float64{1})

	c.Inc()
	h.Observe(0.5)
	s := r.Snapshot()

	c.Inc()
	h.Observe(0.5)

	cm, _ := s.Find("c")
	hm, _ := s.Find("h")
	if cm.Series[0].Value != 1 || hm.Series[0].Count != 1 || hm.Series[0].Buckets[0] != 1 {
		t.Fatal("snapshot changed after later mutation")
	}
}
