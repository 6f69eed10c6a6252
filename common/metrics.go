package common

import (
	"errors"
	"fmt"
	"math"

	"github.com/devopsext/greeter/telemetry"
)

type MetricsCounter struct {
	counters []Counter
	metrics  *Metrics
}

type MetricsHistogram struct {
	histograms []Histogram
	metrics    *Metrics
}

// Metrics fans every update out to all registered meters.
type Metrics struct {
	meters []Meter
}

func (msc *MetricsCounter) Inc() Counter {

	for _, c := range msc.counters {
		c.Inc()
	}
	return msc
}

// Add rejects a negative or NaN delta before any meter sees it.
func (msc *MetricsCounter) Add(value float64) error {

	if value < 0 || math.IsNaN(value) {
		return fmt.Errorf("%w: %v", telemetry.ErrInvalidDelta, value)
	}

	var errs []error
	for _, c := range msc.counters {
		if err := c.Add(value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ms *Metrics) Counter(name, description string, labels Labels, prefixes ...string) (Counter, error) {

	counter := MetricsCounter{
		metrics: ms,
	}

	for _, m := range ms.meters {

		c, err := m.Counter(name, description, labels, prefixes...)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", name, err)
		}
		if c != nil {
			counter.counters = append(counter.counters, c)
		}
	}
	return &counter, nil
}

func (msh *MetricsHistogram) Observe(value float64) Histogram {

	for _, h := range msh.histograms {
		h.Observe(value)
	}
	return msh
}

func (ms *Metrics) Histogram(name, description string, buckets []float64, labels Labels, prefixes ...string) (Histogram, error) {

	histogram := MetricsHistogram{
		metrics: ms,
	}

	for _, m := range ms.meters {

		h, err := m.Histogram(name, description, buckets, labels, prefixes...)
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", name, err)
		}
		if h != nil {
			histogram.histograms = append(histogram.histograms, h)
		}
	}
	return &histogram, nil
}

func (ms *Metrics) Stop() {

	for _, m := range ms.meters {
		m.Stop()
	}
}

func (ms *Metrics) Register(m Meter) {
	if ms != nil && m != nil {
		ms.meters = append(ms.meters, m)
	}
}

func (ms *Metrics) Len() int {
	return len(ms.meters)
}

func NewMetrics() *Metrics {
	return &Metrics{}
}
