package provider

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/devopsext/greeter/common"
	"github.com/devopsext/greeter/telemetry"
	"github.com/devopsext/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	controller "go.opentelemetry.io/otel/sdk/metric/controller/basic"
	processor "go.opentelemetry.io/otel/sdk/metric/processor/basic"
	"go.opentelemetry.io/otel/sdk/metric/selector/simple"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

type OpentelemetryOptions struct {
	ServiceName string
	Version     string
	Environment string
	Attributes  string
}

type OpentelemetryMeterOptions struct {
	OpentelemetryOptions
	AgentHost     string
	AgentPort     int
	Prefix        string
	CollectPeriod int64
}

type OpentelemetryCounter struct {
	meter      *OpentelemetryMeter
	counter    metric.Float64Counter
	attributes []attribute.KeyValue
}

type OpentelemetryHistogram struct {
	meter      *OpentelemetryMeter
	histogram  metric.Float64Histogram
	attributes []attribute.KeyValue
}

// OpentelemetryMeter pushes instruments to an OTLP collector over gRPC. The
// controller collects every CollectPeriod milliseconds and once more on Stop.
type OpentelemetryMeter struct {
	options    OpentelemetryMeterOptions
	logger     common.Logger
	meter      metric.Meter
	controller *controller.Controller
	exporter   *otlpmetric.Exporter
	attributes []attribute.KeyValue
}

func (otm *OpentelemetryMeter) buildName(name string, prefixes ...string) string {

	var names []string

	if !utils.IsEmpty(otm.options.Prefix) {
		names = append(names, otm.options.Prefix)
	}

	names = append(names, prefixes...)
	names = append(names, name)
	return strings.Join(names, ".")
}

func toOpentelemetryAttributes(m map[string]string) []attribute.KeyValue {

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attributes := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attributes = append(attributes, attribute.String(k, m[k]))
	}
	return attributes
}

func (otm *OpentelemetryMeter) getAttributes(labels common.Labels) []attribute.KeyValue {

	var attributes []attribute.KeyValue
	attributes = append(attributes, otm.attributes...)
	return append(attributes, toOpentelemetryAttributes(labels)...)
}

func (otc *OpentelemetryCounter) Inc() common.Counter {

	otc.counter.Add(context.Background(), 1, otc.attributes...)
	return otc
}

func (otc *OpentelemetryCounter) Add(value float64) error {

	if value < 0 || math.IsNaN(value) {
		return fmt.Errorf("%w: %v", telemetry.ErrInvalidDelta, value)
	}
	otc.counter.Add(context.Background(), value, otc.attributes...)
	return nil
}

func (otm *OpentelemetryMeter) Counter(name, description string, labels common.Labels, prefixes ...string) (common.Counter, error) {

	counter, err := otm.meter.NewFloat64Counter(otm.buildName(name, prefixes...), metric.WithDescription(description))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", telemetry.ErrMetricTypeConflict, err)
	}

	return &OpentelemetryCounter{
		meter:      otm,
		counter:    counter,
		attributes: otm.getAttributes(labels),
	}, nil
}

func (oth *OpentelemetryHistogram) Observe(value float64) common.Histogram {

	oth.histogram.Record(context.Background(), value, oth.attributes...)
	return oth
}

func (otm *OpentelemetryMeter) Histogram(name, description string, buckets []float64, labels common.Labels, prefixes ...string) (common.Histogram, error) {

	histogram, err := otm.meter.NewFloat64Histogram(otm.buildName(name, prefixes...), metric.WithDescription(description))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", telemetry.ErrMetricTypeConflict, err)
	}

	return &OpentelemetryHistogram{
		meter:      otm,
		histogram:  histogram,
		attributes: otm.getAttributes(labels),
	}, nil
}

func (otm *OpentelemetryMeter) Stop() {

	ctx := context.Background()
	if otm.controller != nil {
		if err := otm.controller.Stop(ctx); err != nil {
			otm.logger.Error(err)
		}
	}
	if otm.exporter != nil {
		if err := otm.exporter.Shutdown(ctx); err != nil {
			otm.logger.Error(err)
		}
	}
}

func startOpentelemetryMeter(options OpentelemetryMeterOptions) (metric.Meter, *controller.Controller, *otlpmetric.Exporter, error) {

	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(options.ServiceName),
			semconv.ServiceVersionKey.String(options.Version),
			semconv.DeploymentEnvironmentKey.String(options.Environment),
		),
	)
	if err != nil {
		return metric.Meter{}, nil, nil, err
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithEndpoint(fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort)),
	)
	if err != nil {
		return metric.Meter{}, nil, nil, err
	}

	collectPeriod := options.CollectPeriod
	if collectPeriod == 0 {
		collectPeriod = 1000
	}

	cont := controller.New(
		processor.NewFactory(
			simple.NewWithHistogramDistribution(),
			metricExporter,
		),
		controller.WithCollectPeriod(time.Duration(collectPeriod)*time.Millisecond),
		controller.WithExporter(metricExporter),
		controller.WithResource(res),
	)

	if err := cont.Start(ctx); err != nil {
		return metric.Meter{}, nil, nil, err
	}
	return cont.Meter("github.com/devopsext/greeter"), cont, metricExporter, nil
}

func NewOpentelemetryMeter(options OpentelemetryMeterOptions, logger common.Logger, stdout *Stdout) *OpentelemetryMeter {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.AgentHost) {
		stdout.Debug("Opentelemetry meter is disabled.")
		return nil
	}

	meter, controller, exporter, err := startOpentelemetryMeter(options)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	logger.Info("Opentelemetry meter is up...")

	return &OpentelemetryMeter{
		options:    options,
		logger:     logger,
		meter:      meter,
		controller: controller,
		exporter:   exporter,
		attributes: toOpentelemetryAttributes(common.GetKeyValues(options.Attributes)),
	}
}
