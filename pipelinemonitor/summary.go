package pipelinemonitor

import (
	"sort"
	"strings"
)

// SummarySpec declares what a resource type aggregates beyond status counts.
type SummarySpec struct {
	// NumericAttributes are summed across records.
	NumericAttributes []string
	// MatchAttribute and MatchValue count records whose attribute equals
	// the value, case-insensitively (e.g. execution_class = FLEX).
	MatchAttribute string
	MatchValue     string
}

// Summary holds the KPIs of a set of records.
type Summary struct {
	Total                int
	ByStatus             map[Status]int
	Sums                 map[string]float64
	MatchCount           int
	TotalDurationSeconds float64
}

// Summarize aggregates records. Missing or non-numeric attributes count as
// zero; ERROR records are counted under their own status.
func Summarize(records []ResourceRecord, spec SummarySpec) Summary {
	s := Summary{
		Total:    len(records),
		ByStatus: make(map[Status]int),
		Sums:     make(map[string]float64, len(spec.NumericAttributes)),
	}
	for _, attr := range spec.NumericAttributes {
		s.Sums[attr] = 0
	}

	for _, r := range records {
		s.ByStatus[r.Status]++

		for _, attr := range spec.NumericAttributes {
			if v, ok := r.Number(attr); ok {
				s.Sums[attr] += v
			}
		}

		if spec.MatchAttribute != "" && strings.EqualFold(r.Text(spec.MatchAttribute), spec.MatchValue) {
			s.MatchCount++
		}

		if r.DurationSeconds != nil {
			s.TotalDurationSeconds += *r.DurationSeconds
		}
	}
	return s
}

// Statuses returns the observed statuses in name order.
func (s Summary) Statuses() []Status {
	statuses := make([]Status, 0, len(s.ByStatus))
	for st := range s.ByStatus {
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i] < statuses[j]
	})
	return statuses
}

// Count returns the number of records with status st.
func (s Summary) Count(st Status) int {
	return s.ByStatus[st]
}
