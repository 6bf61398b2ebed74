package pipelinemonitor

import (
	"sort"
	"strings"
	"time"
)

// Query selects and orders records for display.
type Query struct {
	// Text is a comma-separated list of case-insensitive name fragments.
	// A record matches when any fragment is a substring of its name.
	Text string
	// Status keeps only records with this exact status. Empty or ALL
	// disables the filter.
	Status string
	// Window keeps only records started within [Now-Window, Now]. It is
	// honoured only when WindowActive is set.
	Window       time.Duration
	WindowActive bool
	Now          time.Time
}

// Terms returns the normalised text fragments of the query.
func (q Query) Terms() []string {
	var terms []string
	for _, part := range strings.Split(q.Text, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			terms = append(terms, part)
		}
	}
	return terms
}

// Filter returns the records matching q, most recently started first.
// Records without a start time keep their relative order at the end. The
// input slice is not modified.
func Filter(records []ResourceRecord, q Query) []ResourceRecord {
	terms := q.Terms()
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}
	from := now.Add(-q.Window)

	out := make([]ResourceRecord, 0, len(records))
	for _, r := range records {
		if !matchesText(r, terms) {
			continue
		}
		if q.Status != "" && q.Status != StatusAll && string(r.Status) != q.Status {
			continue
		}
		if q.WindowActive {
			if r.StartedAt == nil || r.StartedAt.Before(from) || r.StartedAt.After(now) {
				continue
			}
		}
		out = append(out, r)
	}

	SortByRecency(out)
	return out
}

// SortByRecency orders records by (has start time, start time) descending.
func SortByRecency(records []ResourceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].StartedAt, records[j].StartedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

func matchesText(r ResourceRecord, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	name := strings.ToLower(r.DisplayName())
	for _, t := range terms {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}
