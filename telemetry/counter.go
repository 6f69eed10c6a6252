package telemetry

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// Counter is a monotonic counter metric. Each distinct label set selects its own
// CounterSeries; calls on the Counter itself go to the empty label set.
type Counter struct {
	name string
	help string

	mu     sync.RWMutex
	series map[string]*CounterSeries
	def    *CounterSeries
}

// CounterSeries holds the value of one label set. The value is a float64 kept as
// its bit pattern so that readers never see a torn update.
type CounterSeries struct {
	key    string
	labels Labels
	bits   atomic.Uint64
}

func newCounter(name, help string) *Counter {

	def := &CounterSeries{}
	return &Counter{
		name:   name,
		help:   help,
		series: map[string]*CounterSeries{"": def},
		def:    def,
	}
}

func (c *Counter) Name() string { return c.name }
func (c *Counter) Help() string { return c.help }
func (c *Counter) Kind() Kind   { return KindCounter }

// Inc adds one to the default series.
func (c *Counter) Inc() {
	c.def.Inc()
}

// Add adds delta to the default series. Negative or NaN deltas are rejected
// with ErrInvalidDelta and leave the value untouched.
func (c *Counter) Add(delta float64) error {
	return c.def.Add(delta)
}

func (c *Counter) Value() float64 {
	return c.def.Value()
}

// With returns the series for labels, creating it on first use.
func (c *Counter) With(labels Labels) (*CounterSeries, error) {

	key, err := labelKey(labels)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	s, ok := c.series[key]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok = c.series[key]; ok {
		return s, nil
	}
	s = &CounterSeries{key: key, labels: copyLabels(labels)}
	c.series[key] = s
	return s, nil
}

func (c *Counter) snapshot() MetricSnapshot {

	c.mu.RLock()
	list := make([]*CounterSeries, 0, len(c.series))
	for _, s := range c.series {
		list = append(list, s)
	}
	c.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].key < list[j].key })

	ms := MetricSnapshot{
		Name:   c.name,
		Help:   c.help,
		Kind:   KindCounter,
		Series: make([]SeriesSnapshot, 0, len(list)),
	}
	for _, s := range list {
		ms.Series = append(ms.Series, SeriesSnapshot{
			Labels: copyLabels(s.labels),
			Value:  s.Value(),
		})
	}
	return ms
}

func (s *CounterSeries) Inc() {
	s.add(1)
}

func (s *CounterSeries) Add(delta float64) error {

	if delta < 0 || math.IsNaN(delta) {
		return fmt.Errorf("%w: %v", ErrInvalidDelta, delta)
	}
	s.add(delta)
	return nil
}

func (s *CounterSeries) add(delta float64) {

	for {
		old := s.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if s.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (s *CounterSeries) Value() float64 {
	return math.Float64frombits(s.bits.Load())
}

func (s *CounterSeries) Labels() Labels {
	return copyLabels(s.labels)
}
