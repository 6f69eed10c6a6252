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

	"github.com/VictoriaMetrics/metrics"
	"github.com/devopsext/greeter/common"
	"github.com/devopsext/greeter/telemetry"
	"github.com/devopsext/utils"
)

type VictoriaOptions struct {
	URL     string
	Listen  string
	Version string
	Prefix  string
	Process bool
}

type VictoriaCounter struct {
	meter   *VictoriaMeter
	counter *metrics.FloatCounter
}

type VictoriaHistogram struct {
	meter     *VictoriaMeter
	histogram *metrics.Histogram
}

// VictoriaMeter mirrors instruments into a VictoriaMetrics set. Its histograms
// use VictoriaMetrics' own vmrange buckets, so bucket bounds are ignored.
type VictoriaMeter struct {
	options  VictoriaOptions
	logger   common.Logger
	set      *metrics.Set
	mu       sync.Mutex
	server   *http.Server
	stopped  bool
	listener net.Listener
}

func (v *VictoriaMeter) buildIdent(name string, labels common.Labels, prefixes ...string) string {

	var names []string

	if !utils.IsEmpty(v.options.Prefix) {
		names = append(names, v.options.Prefix)
	}

	names = append(names, prefixes...)
	names = append(names, name)
	name = strings.Join(names, "_")

	lbs := ""
	if len(labels) > 0 {
		arr := []string{}
		for k, v := range labels {
			arr = append(arr, fmt.Sprintf(`%s=%q`, k, v))
		}
		sort.Strings(arr)
		lbs = fmt.Sprintf("{%s}", strings.Join(arr, ","))
	}
	return fmt.Sprintf(`%s%s`, name, lbs)
}

// getOrCreate turns the panics metrics.Set raises for bad names and kind
// clashes into errors.
func getOrCreate[T any](ident string, create func(string) T) (m T, err error) {

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", telemetry.ErrMetricTypeConflict, r)
		}
	}()
	return create(ident), nil
}

func (vc *VictoriaCounter) Inc() common.Counter {

	vc.counter.Add(1)
	return vc
}

func (vc *VictoriaCounter) Add(value float64) error {

	if value < 0 || math.IsNaN(value) {
		return fmt.Errorf("%w: %v", telemetry.ErrInvalidDelta, value)
	}
	vc.counter.Add(value)
	return nil
}

func (v *VictoriaMeter) Counter(name, description string, labels common.Labels, prefixes ...string) (common.Counter, error) {

	counter, err := getOrCreate(v.buildIdent(name, labels, prefixes...), v.set.GetOrCreateFloatCounter)
	if err != nil {
		return nil, err
	}

	return &VictoriaCounter{
		meter:   v,
		counter: counter,
	}, nil
}

func (vh *VictoriaHistogram) Observe(value float64) common.Histogram {

	vh.histogram.Update(value)
	return vh
}

func (v *VictoriaMeter) Histogram(name, description string, buckets []float64, labels common.Labels, prefixes ...string) (common.Histogram, error) {

	histogram, err := getOrCreate(v.buildIdent(name, labels, prefixes...), v.set.GetOrCreateHistogram)
	if err != nil {
		return nil, err
	}

	return &VictoriaHistogram{
		meter:     v,
		histogram: histogram,
	}, nil
}

func (v *VictoriaMeter) ServeHTTP(w http.ResponseWriter, req *http.Request) {

	w.Header().Set("Content-Type", telemetry.TextContentType)
	v.set.WritePrometheus(w)
	if v.options.Process {
		metrics.WriteProcessMetrics(w)
	}
}

func (v *VictoriaMeter) Start() bool {

	if utils.IsEmpty(v.options.Listen) {
		v.logger.Debug("Victoria endpoint is disabled.")
		return false
	}

	v.logger.Info("Start victoria endpoint...")

	mux := http.NewServeMux()
	mux.Handle(v.options.URL, v)

	listener, err := net.Listen("tcp", v.options.Listen)
	if err != nil {
		v.logger.Error(err)
		return false
	}

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		listener.Close()
		return false
	}
	v.listener = listener
	v.server = server
	v.mu.Unlock()

	v.logger.Info("Victoria is up. Listening on %s...", listener.Addr().String())
	err = server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		v.logger.Error(err)
		return false
	}
	return true
}

func (v *VictoriaMeter) StartInWaitGroup(wg *sync.WaitGroup) {

	wg.Add(1)

	go func(wg *sync.WaitGroup) {

		defer wg.Done()
		v.Start()
	}(wg)
}

// Addr is the bound listen address, nil until Start has bound it.
func (v *VictoriaMeter) Addr() net.Addr {

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.listener == nil {
		return nil
	}
	return v.listener.Addr()
}

func (v *VictoriaMeter) Stop() {

	v.mu.Lock()
	v.stopped = true
	server := v.server
	v.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}

func NewVictoriaMeter(options VictoriaOptions, logger common.Logger, stdout *Stdout) *VictoriaMeter {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.URL) {
		options.URL = "/metrics"
	}

	return &VictoriaMeter{
		options: options,
		logger:  logger,
		set:     metrics.NewSet(),
	}
}
