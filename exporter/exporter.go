package exporter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/devopsext/greeter/common"
	"github.com/devopsext/greeter/provider"
	"github.com/devopsext/greeter/telemetry"
	"github.com/devopsext/utils"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultPath     = "/tmp/metrics.txt"
)

var ErrPublishFailure = errors.New("publish failure")

// PublishError is returned by a cycle whose sink rejected the data. It matches
// ErrPublishFailure as well as the sink error.
type PublishError struct {
	Sink string
	Err  error
}

func (pe *PublishError) Error() string {
	return fmt.Sprintf("%s to %s: %v", ErrPublishFailure, pe.Sink, pe.Err)
}

func (pe *PublishError) Unwrap() []error {
	return []error{ErrPublishFailure, pe.Err}
}

type Snapshotter interface {
	Snapshot() *telemetry.Snapshot
}

type ExporterOptions struct {
	Interval    time.Duration
	Path        string
	FlushOnStop bool
	Echo        bool
}

type Stats struct {
	Cycles    uint64
	Failures  uint64
	LastError error
	LastCycle time.Time
}

// Exporter periodically snapshots a registry, renders the text exposition and
// hands it to a sink. The interval is counted from the end of the previous
// cycle, so a slow sink delays the next cycle instead of piling cycles up.
type Exporter struct {
	options  ExporterOptions
	registry Snapshotter
	sink     Sink
	logger   common.Logger
	mu       sync.Mutex
	last     []byte
	stats    Stats
}

// Cycle runs snapshot, serialize and publish once.
func (e *Exporter) Cycle(ctx context.Context) error {

	data := telemetry.Text(e.registry.Snapshot())

	e.mu.Lock()
	e.last = data
	e.mu.Unlock()

	err := e.sink.Publish(ctx, data)

	e.mu.Lock()
	e.stats.Cycles++
	e.stats.LastCycle = time.Now()
	if err != nil {
		err = &PublishError{Sink: e.sink.String(), Err: err}
		e.stats.Failures++
		e.stats.LastError = err
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Error(err)
		return err
	}

	e.logger.Info("Metrics updated at %s", e.sink.String())
	if e.options.Echo {
		e.logger.Debug("Current metrics:\n%s", data)
	}
	return nil
}

// Run blocks until ctx is done. Publish failures are logged and the loop goes
// on; the returned error is only set by a failed final flush.
func (e *Exporter) Run(ctx context.Context) error {

	e.logger.Info("Exporter is up. Publishing to %s every %s...", e.sink.String(), e.options.Interval)

	timer := time.NewTimer(e.options.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Exporter is stopping...")
			if e.options.FlushOnStop {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.options.Interval)
				defer cancel()
				return e.Cycle(flushCtx)
			}
			return nil
		case <-timer.C:
			e.Cycle(ctx)
			timer.Reset(e.options.Interval)
		}
	}
}

func (e *Exporter) Start(ctx context.Context, wg *sync.WaitGroup) {

	wg.Add(1)

	go func(wg *sync.WaitGroup) {

		defer wg.Done()
		e.Run(ctx)
	}(wg)
}

func (e *Exporter) Stats() Stats {

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Last returns the most recently serialized text, or nil before the first cycle.
func (e *Exporter) Last() []byte {

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	data := e.Last()
	if data == nil {
		data = telemetry.Text(e.registry.Snapshot())
	}

	w.Header().Set("Content-Type", telemetry.TextContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		e.logger.Error(err)
	}
}

func NewExporter(registry Snapshotter, sink Sink, options ExporterOptions, logger common.Logger, stdout *provider.Stdout) *Exporter {

	if logger == nil {
		logger = stdout
	}

	if registry == nil {
		stdout.Error("Exporter has no registry.")
		return nil
	}

	if options.Interval <= 0 {
		options.Interval = DefaultInterval
	}

	if utils.IsEmpty(options.Path) {
		options.Path = DefaultPath
	}

	if sink == nil {
		sink = NewSink(options.Path)
	}

	return &Exporter{
		options:  options,
		registry: registry,
		sink:     sink,
		logger:   logger,
	}
}
