package telemetry

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"strconv"
	"strings"
)

const TextContentType = "text/plain; version=0.0.4; charset=utf-8"

// WriteText renders s in the Prometheus text exposition format. Output depends
// only on the snapshot contents, so equal snapshots render to equal bytes.
func WriteText(w io.Writer, s *Snapshot) error {

	bw := bufio.NewWriter(w)

	for _, m := range s.Metrics {

		bw.WriteString("# HELP ")
		bw.WriteString(m.Name)
		bw.WriteByte(' ')
		bw.WriteString(escapeHelp(m.Help))
		bw.WriteString("\n# TYPE ")
		bw.WriteString(m.Name)
		bw.WriteByte(' ')
		bw.WriteString(m.Kind.String())
		bw.WriteByte('\n')

		for _, series := range m.Series {

			key, _ := labelKey(series.Labels)

			switch m.Kind {
			case KindCounter:
				writeSample(bw, m.Name, key, "", formatValue(series.Value))
			case KindHistogram:
				for i, bound := range m.Bounds {
					var count uint64
					if i < len(series.Buckets) {
						count = series.Buckets[i]
					}
					writeSample(bw, m.Name+"_bucket", key, formatBound(bound), strconv.FormatUint(count, 10))
				}
				writeSample(bw, m.Name+"_bucket", key, "+Inf", strconv.FormatUint(series.Count, 10))
				writeSample(bw, m.Name+"_sum", key, "", formatValue(series.Sum))
				writeSample(bw, m.Name+"_count", key, "", strconv.FormatUint(series.Count, 10))
			}
		}
	}
	return bw.Flush()
}

// Text is WriteText into a fresh buffer.
func Text(s *Snapshot) []byte {

	var b bytes.Buffer
	_ = WriteText(&b, s)
	return b.Bytes()
}

func writeSample(w *bufio.Writer, name, labels, le, value string) {

	w.WriteString(name)
	if labels != "" || le != "" {
		w.WriteByte('{')
		w.WriteString(labels)
		if le != "" {
			if labels != "" {
				w.WriteByte(',')
			}
			w.WriteString(`le="`)
			w.WriteString(le)
			w.WriteByte('"')
		}
		w.WriteByte('}')
	}
	w.WriteByte(' ')
	w.WriteString(value)
	w.WriteByte('\n')
}

func formatValue(v float64) string {

	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case math.IsNaN(v):
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// formatBound keeps a decimal point on integral bounds (1.0, 10.0) so that le
// values read as floats.
func formatBound(v float64) string {

	s := formatValue(v)
	if strings.ContainsAny(s, ".eEIN") {
		return s
	}
	return s + ".0"
}
