package greeter

import (
	"time"

	"github.com/devopsext/greeter/common"
	"github.com/devopsext/greeter/telemetry"
)

const (
	RequestsName        = "grpc_requests_total"
	RequestsHelp        = "Total number of gRPC requests"
	RequestDurationName = "grpc_request_duration_seconds"
	RequestDurationHelp = "gRPC request duration in seconds"
)

type RecorderOptions struct {
	Buckets []float64
	Labels  common.Labels
}

// Recorder is the narrow write path from request handling into the meters.
// Instruments are resolved once, so recording never registers or fails.
type Recorder struct {
	requests common.Counter
	duration common.Histogram
}

// RecordRequest counts one handled request and observes its latency in seconds.
func (r *Recorder) RecordRequest(seconds float64) {

	r.requests.Inc()
	r.duration.Observe(seconds)
}

func (r *Recorder) Since(start time.Time) {
	r.RecordRequest(time.Since(start).Seconds())
}

func NewRecorder(metrics *common.Metrics, options RecorderOptions) (*Recorder, error) {

	if len(options.Buckets) == 0 {
		options.Buckets = telemetry.DefaultBuckets()
	}

	requests, err := metrics.Counter(RequestsName, RequestsHelp, options.Labels)
	if err != nil {
		return nil, err
	}

	duration, err := metrics.Histogram(RequestDurationName, RequestDurationHelp, options.Buckets, options.Labels)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		requests: requests,
		duration: duration,
	}, nil
}
