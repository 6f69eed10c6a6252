package telemetry

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// DefaultBuckets returns the request latency bounds in seconds. Each call
// returns a fresh slice.
func DefaultBuckets() []float64 {
	return []float64{0.001, 0.01, 0.1, 1.0, 10.0}
}

// Histogram counts observations into fixed buckets. Bounds are ascending upper
// bounds set at registration; the +Inf bucket is implicit.
type Histogram struct {
	name   string
	help   string
	bounds []float64

	mu     sync.RWMutex
	series map[string]*HistogramSeries
	def    *HistogramSeries
}

type HistogramSeries struct {
	key    string
	labels Labels
	bounds []float64

	mu sync.Mutex
	// counts[i] holds observations in (bounds[i-1], bounds[i]]; the last slot is +Inf
	counts []uint64
	count  uint64
	sum    float64
}

// HistogramSnapshot is a point-in-time copy of one histogram series. Buckets are
// cumulative and line up with Bounds; Count is the +Inf bucket.
type HistogramSnapshot struct {
	Bounds  []float64
	Buckets []uint64
	Count   uint64
	Sum     float64
}

func checkBounds(bounds []float64) ([]float64, error) {

	if len(bounds) > 0 && math.IsInf(bounds[len(bounds)-1], 1) {
		bounds = bounds[:len(bounds)-1]
	}
	if len(bounds) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBucketBoundaries)
	}
	for i, b := range bounds {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, fmt.Errorf("%w: %v at %d", ErrInvalidBucketBoundaries, b, i)
		}
		if i > 0 && b <= bounds[i-1] {
			return nil, fmt.Errorf("%w: %v after %v is not ascending", ErrInvalidBucketBoundaries, b, bounds[i-1])
		}
	}
	out := make([]float64, len(bounds))
	copy(out, bounds)
	return out, nil
}

func sameBounds(a, b []float64) bool {

	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newHistogram(name, help string, bounds []float64) *Histogram {

	h := &Histogram{
		name:   name,
		help:   help,
		bounds: bounds,
		series: make(map[string]*HistogramSeries),
	}
	h.def = h.newSeries("", nil)
	h.series[""] = h.def
	return h
}

func (h *Histogram) newSeries(key string, labels Labels) *HistogramSeries {
	return &HistogramSeries{
		key:    key,
		labels: copyLabels(labels),
		bounds: h.bounds,
		counts: make([]uint64, len(h.bounds)+1),
	}
}

func (h *Histogram) Name() string { return h.name }
func (h *Histogram) Help() string { return h.help }
func (h *Histogram) Kind() Kind   { return KindHistogram }

func (h *Histogram) Bounds() []float64 {

	out := make([]float64, len(h.bounds))
	copy(out, h.bounds)
	return out
}

// Observe records v in the default series. Any value is accepted.
func (h *Histogram) Observe(v float64) {
	h.def.Observe(v)
}

func (h *Histogram) Snapshot() HistogramSnapshot {
	return h.def.Snapshot()
}

func (h *Histogram) With(labels Labels) (*HistogramSeries, error) {

	key, err := labelKey(labels)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	s, ok := h.series[key]
	h.mu.RUnlock()
	if ok {
		return s, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok = h.series[key]; ok {
		return s, nil
	}
	s = h.newSeries(key, labels)
	h.series[key] = s
	return s, nil
}

func (h *Histogram) snapshot() MetricSnapshot {

	h.mu.RLock()
	list := make([]*HistogramSeries, 0, len(h.series))
	for _, s := range h.series {
		list = append(list, s)
	}
	h.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].key < list[j].key })

	ms := MetricSnapshot{
		Name:   h.name,
		Help:   h.help,
		Kind:   KindHistogram,
		Bounds: h.Bounds(),
		Series: make([]SeriesSnapshot, 0, len(list)),
	}
	for _, s := range list {
		hs := s.Snapshot()
		ms.Series = append(ms.Series, SeriesSnapshot{
			Labels:  copyLabels(s.labels),
			Buckets: hs.Buckets,
			Count:   hs.Count,
			Sum:     hs.Sum,
		})
	}
	return ms
}

// Observe adds v to the first bucket whose bound is >= v; NaN and values above
// the last bound only land in +Inf.
func (s *HistogramSeries) Observe(v float64) {

	i := sort.SearchFloat64s(s.bounds, v)

	s.mu.Lock()
	s.counts[i]++
	s.count++
	s.sum += v
	s.mu.Unlock()
}

func (s *HistogramSeries) Snapshot() HistogramSnapshot {

	buckets := make([]uint64, len(s.bounds))

	s.mu.Lock()
	var acc uint64
	for i := range buckets {
		acc += s.counts[i]
		buckets[i] = acc
	}
	count, sum := s.count, s.sum
	s.mu.Unlock()

	bounds := make([]float64, len(s.bounds))
	copy(bounds, s.bounds)
	return HistogramSnapshot{Bounds: bounds, Buckets: buckets, Count: count, Sum: sum}
}

func (s *HistogramSeries) Labels() Labels {
	return copyLabels(s.labels)
}
