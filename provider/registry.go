package provider

import (
	"strings"

	"github.com/devopsext/greeter/common"
	"github.com/devopsext/greeter/telemetry"
	"github.com/devopsext/utils"
)

type RegistryOptions struct {
	Prefix string
}

type RegistryCounter struct {
	meter  *RegistryMeter
	series *telemetry.CounterSeries
}

type RegistryHistogram struct {
	meter  *RegistryMeter
	series *telemetry.HistogramSeries
}

// RegistryMeter records into an in-process telemetry.Registry, which is what the
// exporter snapshots and publishes.
type RegistryMeter struct {
	options  RegistryOptions
	logger   common.Logger
	registry *telemetry.Registry
}

func (r *RegistryMeter) buildName(name string, prefixes ...string) string {

	var names []string

	if !utils.IsEmpty(r.options.Prefix) {
		names = append(names, r.options.Prefix)
	}

	names = append(names, prefixes...)
	names = append(names, name)
	return strings.Join(names, "_")
}

func (rc *RegistryCounter) Inc() common.Counter {

	rc.series.Inc()
	return rc
}

func (rc *RegistryCounter) Add(value float64) error {
	return rc.series.Add(value)
}

func (r *RegistryMeter) Counter(name, description string, labels common.Labels, prefixes ...string) (common.Counter, error) {

	counter, err := r.registry.RegisterCounter(r.buildName(name, prefixes...), description)
	if err != nil {
		return nil, err
	}

	series, err := counter.With(labels)
	if err != nil {
		return nil, err
	}

	return &RegistryCounter{
		meter:  r,
		series: series,
	}, nil
}

func (rh *RegistryHistogram) Observe(value float64) common.Histogram {

	rh.series.Observe(value)
	return rh
}

func (r *RegistryMeter) Histogram(name, description string, buckets []float64, labels common.Labels, prefixes ...string) (common.Histogram, error) {

	if len(buckets) == 0 {
		buckets = telemetry.DefaultBuckets()
	}

	histogram, err := r.registry.RegisterHistogram(r.buildName(name, prefixes...), description, buckets)
	if err != nil {
		return nil, err
	}

	series, err := histogram.With(labels)
	if err != nil {
		return nil, err
	}

	return &RegistryHistogram{
		meter:  r,
		series: series,
	}, nil
}

func (r *RegistryMeter) Registry() *telemetry.Registry {
	return r.registry
}

func (r *RegistryMeter) Stop() {
	// registry lives until the process exits
}

func NewRegistryMeter(options RegistryOptions, registry *telemetry.Registry, logger common.Logger, stdout *Stdout) *RegistryMeter {

	if logger == nil {
		logger = stdout
	}

	if registry == nil {
		registry = telemetry.NewRegistry()
	}

	logger.Debug("Registry meter is up...")

	return &RegistryMeter{
		options:  options,
		logger:   logger,
		registry: registry,
	}
}
