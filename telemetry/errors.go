package telemetry

import "errors"

var (
	ErrMetricTypeConflict      = errors.New("metric type conflict")
	ErrInvalidBucketBoundaries = errors.New("invalid bucket boundaries")
	ErrInvalidDelta            = errors.New("invalid delta")
	ErrInvalidName             = errors.New("invalid name")
)
