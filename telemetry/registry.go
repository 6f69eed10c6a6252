// Package telemetry keeps request counters and latency histograms in memory and
// renders them in the Prometheus text exposition format.
//
// A Registry is created once by the process and handed to whoever records or
// exports metrics. Registration is idempotent per (name, kind): asking for an
// existing name with the same kind returns the same instrument, asking with a
// different kind fails with ErrMetricTypeConflict.
//
//	r := telemetry.NewRegistry()
//	requests, _ := r.RegisterCounter("grpc_requests_total", "Total number of gRPC requests")
//	latency, _ := r.RegisterHistogram("grpc_request_duration_seconds", "gRPC request duration in seconds", telemetry.DefaultBuckets())
//	requests.Inc()
//	latency.Observe(0.05)
//	_ = telemetry.WriteText(os.Stdout, r.Snapshot())
package telemetry

import (
	"fmt"
	"sync"
)

type metric interface {
	Name() string
	Help() string
	Kind() Kind
	snapshot() MetricSnapshot
}

type Registry struct {
	mu      sync.RWMutex
	metrics map[string]metric
	order   []metric
}

func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]metric),
	}
}

func (r *Registry) lookup(name string) (metric, bool) {

	r.mu.RLock()
	m, ok := r.metrics[name]
	r.mu.RUnlock()
	return m, ok
}

// register returns the metric stored under name or stores the one built by create.
func (r *Registry) register(name string, kind Kind, create func() metric) (metric, error) {

	if !validMetricName(name) {
		return nil, fmt.Errorf("%w: metric %q", ErrInvalidName, name)
	}

	if m, ok := r.lookup(name); ok {
		if m.Kind() != kind {
			return nil, fmt.Errorf("%w: %s is a %s, not a %s", ErrMetricTypeConflict, name, m.Kind(), kind)
		}
		return m, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.metrics[name]; ok {
		if m.Kind() != kind {
			return nil, fmt.Errorf("%w: %s is a %s, not a %s", ErrMetricTypeConflict, name, m.Kind(), kind)
		}
		return m, nil
	}

	m := create()
	r.metrics[name] = m
	r.order = append(r.order, m)
	return m, nil
}

// RegisterCounter creates the counter name or returns the existing one.
func (r *Registry) RegisterCounter(name, help string) (*Counter, error) {

	m, err := r.register(name, KindCounter, func() metric {
		return newCounter(name, help)
	})
	if err != nil {
		return nil, err
	}
	return m.(*Counter), nil
}

// RegisterHistogram creates the histogram name with the given bucket bounds or
// returns the existing one. Bounds must be non-empty and strictly ascending; an
// existing histogram registered with other bounds is reported as
// ErrInvalidBucketBoundaries.
func (r *Registry) RegisterHistogram(name, help string, bounds []float64) (*Histogram, error) {

	bs, err := checkBounds(bounds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	m, err := r.register(name, KindHistogram, func() metric {
		return newHistogram(name, help, bs)
	})
	if err != nil {
		return nil, err
	}

	h := m.(*Histogram)
	if !sameBounds(h.bounds, bs) {
		return nil, fmt.Errorf("%w: %s is registered with %v, got %v", ErrInvalidBucketBoundaries, name, h.bounds, bs)
	}
	return h, nil
}

func (r *Registry) MustRegisterCounter(name, help string) *Counter {

	c, err := r.RegisterCounter(name, help)
	if err != nil {
		panic(err)
	}
	return c
}

func (r *Registry) MustRegisterHistogram(name, help string, bounds []float64) *Histogram {

	h, err := r.RegisterHistogram(name, help, bounds)
	if err != nil {
		panic(err)
	}
	return h
}

// Lookup reports the kind registered under name.
func (r *Registry) Lookup(name string) (Kind, bool) {

	m, ok := r.lookup(name)
	if !ok {
		return "", false
	}
	return m.Kind(), true
}

// Snapshot copies the state of every registered metric in registration order.
// Each series is read atomically; different series may be read at slightly
// different instants.
func (r *Registry) Snapshot() *Snapshot {

	r.mu.RLock()
	list := make([]metric, len(r.order))
	copy(list, r.order)
	r.mu.RUnlock()

	s := &Snapshot{Metrics: make([]MetricSnapshot, 0, len(list))}
	for _, m := range list {
		s.Metrics = append(s.Metrics, m.snapshot())
	}
	return s
}
