package metrics

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

// Value reads the current value of a counter or gauge from the shared
// registry. Labels must match the series exactly; nil selects a series
// without variable labels.
func Value(name string, labels map[string]string) (float64, error) {
	families, err := GetRegistry().Gather()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrGatherFailed, err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !labelsMatch(m.GetLabel(), labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue(), nil
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue(), nil
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount()), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrMetricNotFound, name)
}

func labelsMatch(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) != len(want) {
		return false
	}
	for _, lp := range got {
		if v, ok := want[lp.GetName()]; !ok || v != lp.GetValue() {
			return false
		}
	}
	return true
}
