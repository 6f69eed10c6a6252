package telemetry

import (
	"fmt"
	"sort"
	"strings"
)

type Labels = map[string]string

type Kind string

const (
	KindCounter   Kind = "counter"
	KindHistogram Kind = "histogram"
)

func (k Kind) String() string {
	return string(k)
}

func validMetricName(name string) bool {

	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func validLabelName(name string) bool {

	if name == "" || name == "le" || strings.HasPrefix(name, "__") {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// labelKey validates labels and returns their canonical form, sorted by name,
// which identifies a series within a metric. The empty set maps to "".
func labelKey(labels Labels) (string, error) {

	if len(labels) == 0 {
		return "", nil
	}

	names := make([]string, 0, len(labels))
	for k := range labels {
		if !validLabelName(k) {
			return "", fmt.Errorf("%w: label %q", ErrInvalidName, k)
		}
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, k := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(escapeLabelValue(labels[k]))
		b.WriteByte('"')
	}
	return b.String(), nil
}

func copyLabels(labels Labels) Labels {

	if len(labels) == 0 {
		return nil
	}
	out := make(Labels, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

var labelValueEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeLabelValue(s string) string {
	return labelValueEscaper.Replace(s)
}

func escapeHelp(s string) string {
	return helpEscaper.Replace(s)
}
