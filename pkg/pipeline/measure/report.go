package measure

import (
	"sort"
	"time"
)

// StepReport summarises the metric of one step.
type StepReport struct {
	Name      string
	Count     int64
	Average   time.Duration
	Total     time.Duration
	Transport map[string]time.Duration
}

// Report returns one entry per measured step sorted by name.
func Report(m Measure) []StepReport {
	metrics := m.AllMetrics()
	res := make([]StepReport, 0, len(metrics))
	for name, mt := range metrics {
		rep := StepReport{
			Name:      name,
			Count:     mt.Count(),
			Average:   mt.AVGDuration(),
			Total:     mt.GetTotalDuration(),
			Transport: make(map[string]time.Duration),
		}
		for input, info := range mt.AVGTransportDuration() {
			rep.Transport[input] = info.Elapsed
		}
		res = append(res, rep)
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].Name < res[j].Name
	})

	return res
}
