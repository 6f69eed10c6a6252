package provider

import (
	"fmt"
	"math"
	"strings"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/devopsext/greeter/common"
	"github.com/devopsext/greeter/telemetry"
	"github.com/devopsext/utils"
)

type DataDogOptions struct {
	ServiceName string
	Environment string
	Version     string
	Tags        string
	Debug       bool
}

type DataDogMeterOptions struct {
	DataDogOptions
	AgentHost string
	AgentPort int
	Prefix    string
}

type DataDogCounter struct {
	meter *DataDogMeter
	name  string
	tags  []string
}

type DataDogHistogram struct {
	meter *DataDogMeter
	name  string
	tags  []string
}

// DataDogMeter sends every update to a DogStatsD agent. Counters carry integer
// deltas, so fractional Add values are rounded.
type DataDogMeter struct {
	options  DataDogMeterOptions
	logger   common.Logger
	client   *statsd.Client
	instance string
}

func (ddm *DataDogMeter) getGlobalTags() []string {

	var tags []string

	tags = append(tags, common.MapToArray(common.GetKeyValues(ddm.options.Tags), ":")...)
	tags = append(tags, fmt.Sprintf("service:%s", ddm.options.ServiceName))
	tags = append(tags, fmt.Sprintf("version:%s", ddm.options.Version))
	tags = append(tags, fmt.Sprintf("env:%s", ddm.options.Environment))
	tags = append(tags, fmt.Sprintf("instance:%s", ddm.instance))
	return tags
}

func (ddm *DataDogMeter) getTags(labels common.Labels) []string {

	tags := ddm.getGlobalTags()
	return append(tags, common.MapToArray(labels, ":")...)
}

func (ddm *DataDogMeter) buildName(name string, prefixes ...string) string {

	var names []string

	if !utils.IsEmpty(ddm.options.Prefix) {
		names = append(names, ddm.options.Prefix)
	}

	if len(prefixes) > 0 {
		names = append(names, strings.Join(prefixes, "_"))
	}

	names = append(names, name)
	return strings.Join(names, ".")
}

func (ddmc *DataDogCounter) Inc() common.Counter {

	if err := ddmc.meter.client.Incr(ddmc.name, ddmc.tags, 1); err != nil {
		ddmc.meter.logger.Error(err)
	}
	return ddmc
}

func (ddmc *DataDogCounter) Add(value float64) error {

	if value < 0 || math.IsNaN(value) {
		return fmt.Errorf("%w: %v", telemetry.ErrInvalidDelta, value)
	}

	if err := ddmc.meter.client.Count(ddmc.name, int64(math.Round(value)), ddmc.tags, 1); err != nil {
		ddmc.meter.logger.Error(err)
	}
	return nil
}

func (ddm *DataDogMeter) Counter(name, description string, labels common.Labels, prefixes ...string) (common.Counter, error) {

	return &DataDogCounter{
		meter: ddm,
		name:  ddm.buildName(name, prefixes...),
		tags:  ddm.getTags(labels),
	}, nil
}

func (ddmh *DataDogHistogram) Observe(value float64) common.Histogram {

	if err := ddmh.meter.client.Histogram(ddmh.name, value, ddmh.tags, 1); err != nil {
		ddmh.meter.logger.Error(err)
	}
	return ddmh
}

func (ddm *DataDogMeter) Histogram(name, description string, buckets []float64, labels common.Labels, prefixes ...string) (common.Histogram, error) {

	return &DataDogHistogram{
		meter: ddm,
		name:  ddm.buildName(name, prefixes...),
		tags:  ddm.getTags(labels),
	}, nil
}

func (ddm *DataDogMeter) Stop() {

	if err := ddm.client.Close(); err != nil {
		ddm.logger.Error(err)
	}
}

func NewDataDogMeter(options DataDogMeterOptions, logger common.Logger, stdout *Stdout) *DataDogMeter {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.AgentHost) {
		stdout.Debug("DataDog meter is disabled.")
		return nil
	}

	client, err := statsd.New(fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort))
	if err != nil {
		logger.Error(err)
		return nil
	}

	logger.Info("DataDog meter is up...")

	return &DataDogMeter{
		options:  options,
		logger:   logger,
		client:   client,
		instance: common.GetGuid(),
	}
}
