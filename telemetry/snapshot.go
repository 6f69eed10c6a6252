package telemetry

// Snapshot is an immutable copy of a registry's state.
type Snapshot struct {
	Metrics []MetricSnapshot
}

type MetricSnapshot struct {
	Name   string
	Help   string
	Kind   Kind
	Bounds []float64 // histograms only
	Series []SeriesSnapshot
}

// SeriesSnapshot holds one label set. Counters use Value; histograms use
// Buckets (cumulative, aligned with the metric Bounds), Count and Sum.
type SeriesSnapshot struct {
	Labels  Labels
	Value   float64
	Buckets []uint64
	Count   uint64
	Sum     float64
}

// Find returns the metric called name.
func (s *Snapshot) Find(name string) (MetricSnapshot, bool) {

	for _, m := range s.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricSnapshot{}, false
}
