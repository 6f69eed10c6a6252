package common

type Labels = map[string]string

type Counter interface {
	Inc() Counter
	Add(value float64) error
}

type Histogram interface {
	Observe(value float64) Histogram
}

// Meter is a metrics backend. Counter and Histogram return an error only when
// the instrument cannot be registered, e.g. the name is taken by another kind.
type Meter interface {
	Counter(name, description string, labels Labels, prefixes ...string) (Counter, error)
	Histogram(name, description string, buckets []float64, labels Labels, prefixes ...string) (Histogram, error)
	Stop()
}
