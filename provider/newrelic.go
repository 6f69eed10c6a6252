package provider

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/devopsext/greeter/common"
	"github.com/devopsext/greeter/telemetry"
	utils "github.com/devopsext/utils"
	nrtelemetry "github.com/newrelic/newrelic-telemetry-sdk-go/telemetry"
)

type NewRelicOptions struct {
	ApiKey      string
	ServiceName string
	Environment string
	Version     string
	Attributes  string
	Debug       bool
}

type NewRelicMeterOptions struct {
	NewRelicOptions
	Endpoint string
	Prefix   string
}

type NewRelicCounter struct {
	meter      *NewRelicMeter
	name       string
	attributes map[string]interface{}
}

type NewRelicHistogram struct {
	meter      *NewRelicMeter
	name       string
	attributes map[string]interface{}
}

// NewRelicMeter records every update into a harvester which ships them to the
// metric API periodically and once more on Stop. Observations go out as
// single sample summaries.
type NewRelicMeter struct {
	harvester *nrtelemetry.Harvester
	options   NewRelicMeterOptions
	logger    common.Logger
}

func (nrm *NewRelicMeter) buildName(name string, prefixes ...string) string {

	var names []string

	if !utils.IsEmpty(nrm.options.Prefix) {
		names = append(names, nrm.options.Prefix)
	}

	names = append(names, prefixes...)
	names = append(names, name)
	return strings.Join(names, ".")
}

func (nrm *NewRelicMeter) getAttributes(labels common.Labels) map[string]interface{} {

	m := make(map[string]interface{})
	for k, v := range labels {
		m[k] = v
	}
	return m
}

func (nrc *NewRelicCounter) record(value float64) {

	nrc.meter.harvester.RecordMetric(nrtelemetry.Count{
		Timestamp:  time.Now(),
		Name:       nrc.name,
		Value:      value,
		Attributes: nrc.attributes,
	})
}

func (nrc *NewRelicCounter) Inc() common.Counter {

	nrc.record(1)
	return nrc
}

func (nrc *NewRelicCounter) Add(value float64) error {

	if value < 0 || math.IsNaN(value) {
		return fmt.Errorf("%w: %v", telemetry.ErrInvalidDelta, value)
	}
	nrc.record(value)
	return nil
}

func (nrm *NewRelicMeter) Counter(name, description string, labels common.Labels, prefixes ...string) (common.Counter, error) {

	return &NewRelicCounter{
		meter:      nrm,
		name:       nrm.buildName(name, prefixes...),
		attributes: nrm.getAttributes(labels),
	}, nil
}

func (nrh *NewRelicHistogram) Observe(value float64) common.Histogram {

	nrh.meter.harvester.RecordMetric(nrtelemetry.Summary{
		Timestamp:  time.Now(),
		Name:       nrh.name,
		Count:      1,
		Sum:        value,
		Min:        value,
		Max:        value,
		Attributes: nrh.attributes,
	})
	return nrh
}

func (nrm *NewRelicMeter) Histogram(name, description string, buckets []float64, labels common.Labels, prefixes ...string) (common.Histogram, error) {

	return &NewRelicHistogram{
		meter:      nrm,
		name:       nrm.buildName(name, prefixes...),
		attributes: nrm.getAttributes(labels),
	}, nil
}

func (nrm *NewRelicMeter) Stop() {
	if nrm.harvester != nil {
		nrm.harvester.HarvestNow(context.Background())
	}
}

func NewNewRelicMeter(options NewRelicMeterOptions, logger common.Logger, stdout *Stdout) *NewRelicMeter {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.Endpoint) {
		stdout.Debug("NewRelic meter is disabled.")
		return nil
	}

	attributes := make(map[string]interface{})
	m := common.GetKeyValues(options.Attributes)
	for k, v := range m {
		attributes[k] = v
	}
	attributes["service.name"] = options.ServiceName
	attributes["service.version"] = options.Version
	attributes["environment"] = options.Environment
	attributes["instance.id"] = common.GetGuid()

	var cfgs []func(*nrtelemetry.Config)
	cfgs = append(cfgs,
		nrtelemetry.ConfigAPIKey(options.ApiKey),
		nrtelemetry.ConfigMetricsURLOverride(options.Endpoint),
		nrtelemetry.ConfigCommonAttributes(attributes),
	)

	if options.Debug {
		cfgs = append(cfgs,
			nrtelemetry.ConfigBasicErrorLogger(stdout.Writer()),
			nrtelemetry.ConfigBasicDebugLogger(stdout.Writer()),
		)
	}

	harvester, err := nrtelemetry.NewHarvester(cfgs...)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	logger.Info("NewRelic meter is up...")

	return &NewRelicMeter{
		harvester: harvester,
		options:   options,
		logger:    logger,
	}
}
