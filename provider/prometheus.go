package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devopsext/greeter/common"
	"github.com/devopsext/greeter/telemetry"
	"github.com/devopsext/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PrometheusOptions struct {
	URL     string
	Listen  string
	Version string
	Prefix  string
	Runtime bool
}

type PrometheusCounter struct {
	meter   *PrometheusMeter
	counter prometheus.Counter
}

type PrometheusHistogram struct {
	meter    *PrometheusMeter
	observer prometheus.Observer
}

// PrometheusMeter mirrors instruments into a client_golang registry. A name is
// bound to the help text and label names it was first registered with.
type PrometheusMeter struct {
	options  PrometheusOptions
	logger   common.Logger
	registry *prometheus.Registry
	mu       sync.Mutex
	server   *http.Server
	stopped  bool
	listener net.Listener
}

func (p *PrometheusMeter) buildName(name string, prefixes ...string) string {

	var names []string

	if !utils.IsEmpty(p.options.Prefix) {
		names = append(names, p.options.Prefix)
	}

	names = append(names, prefixes...)
	names = append(names, name)
	return strings.Join(names, "_")
}

func labelNames(labels common.Labels) []string {

	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// register adds c or returns the collector already registered under the same
// descriptor.
func (p *PrometheusMeter) register(c prometheus.Collector) (prometheus.Collector, error) {

	err := p.registry.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector, nil
	}
	return nil, fmt.Errorf("%w: %v", telemetry.ErrMetricTypeConflict, err)
}

func (pc *PrometheusCounter) Inc() common.Counter {

	pc.counter.Inc()
	return pc
}

func (pc *PrometheusCounter) Add(value float64) error {

	if value < 0 || math.IsNaN(value) {
		return fmt.Errorf("%w: %v", telemetry.ErrInvalidDelta, value)
	}
	pc.counter.Add(value)
	return nil
}

func (p *PrometheusMeter) Counter(name, description string, labels common.Labels, prefixes ...string) (common.Counter, error) {

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: p.buildName(name, prefixes...),
		Help: description,
	}, labelNames(labels))

	c, err := p.register(vec)
	if err != nil {
		return nil, err
	}

	existing, ok := c.(*prometheus.CounterVec)
	if !ok {
		return nil, fmt.Errorf("%w: %s", telemetry.ErrMetricTypeConflict, name)
	}

	counter, err := existing.GetMetricWith(labels)
	if err != nil {
		return nil, err
	}

	return &PrometheusCounter{
		meter:   p,
		counter: counter,
	}, nil
}

func (ph *PrometheusHistogram) Observe(value float64) common.Histogram {

	ph.observer.Observe(value)
	return ph
}

func (p *PrometheusMeter) Histogram(name, description string, buckets []float64, labels common.Labels, prefixes ...string) (common.Histogram, error) {

	if len(buckets) == 0 {
		buckets = telemetry.DefaultBuckets()
	}

	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    p.buildName(name, prefixes...),
		Help:    description,
		Buckets: buckets,
	}, labelNames(labels))

	c, err := p.register(vec)
	if err != nil {
		return nil, err
	}

	existing, ok := c.(*prometheus.HistogramVec)
	if !ok {
		return nil, fmt.Errorf("%w: %s", telemetry.ErrMetricTypeConflict, name)
	}

	observer, err := existing.GetMetricWith(labels)
	if err != nil {
		return nil, err
	}

	return &PrometheusHistogram{
		meter:    p,
		observer: observer,
	}, nil
}

func (p *PrometheusMeter) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusMeter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusMeter) Start() bool {

	if utils.IsEmpty(p.options.Listen) {
		p.logger.Debug("Prometheus endpoint is disabled.")
		return false
	}

	p.logger.Info("Start prometheus endpoint...")

	mux := http.NewServeMux()
	mux.Handle(p.options.URL, p.Handler())

	listener, err := net.Listen("tcp", p.options.Listen)
	if err != nil {
		p.logger.Error(err)
		return false
	}

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		listener.Close()
		return false
	}
	p.listener = listener
	p.server = server
	p.mu.Unlock()

	p.logger.Info("Prometheus is up. Listening on %s...", listener.Addr().String())
	err = server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		p.logger.Error(err)
		return false
	}
	return true
}

func (p *PrometheusMeter) StartInWaitGroup(wg *sync.WaitGroup) {

	wg.Add(1)

	go func(wg *sync.WaitGroup) {

		defer wg.Done()
		p.Start()
	}(wg)
}

func (p *PrometheusMeter) Stop() {

	p.mu.Lock()
	p.stopped = true
	server := p.server
	p.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}

func NewPrometheusMeter(options PrometheusOptions, logger common.Logger, stdout *Stdout) *PrometheusMeter {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.URL) {
		options.URL = "/metrics"
	}

	registry := prometheus.NewRegistry()
	if options.Runtime {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return &PrometheusMeter{
		options:  options,
		logger:   logger,
		registry: registry,
	}
}
