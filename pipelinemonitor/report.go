package pipelinemonitor

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const reportTimeLayout = "2006-01-02 15:04:05 UTC"

// ReportGenerator renders a batch as a markdown report.
type ReportGenerator struct {
	batch   *FetchBatch
	records []ResourceRecord
	spec    SummarySpec
}

// NewReportGenerator creates a report over records, which are normally the
// filtered view of batch. A nil records slice renders every batch record.
func NewReportGenerator(batch *FetchBatch, records []ResourceRecord, spec SummarySpec) *ReportGenerator {
	if records == nil {
		records = Filter(batch.Records, Query{})
	}
	return &ReportGenerator{batch: batch, records: records, spec: spec}
}

// Generate writes a complete markdown report to the provided writer.
func (rg *ReportGenerator) Generate(w io.Writer) error {
	if err := rg.writeHeader(w); err != nil {
		return err
	}
	if err := rg.writeSummary(w); err != nil {
		return err
	}
	if err := rg.writeRecords(w); err != nil {
		return err
	}
	return nil
}

func (rg *ReportGenerator) writeHeader(w io.Writer) error {
	b := rg.batch
	_, err := fmt.Fprintf(w, "# Pipeline Monitor Report: %s\n\n", b.ResourceType)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "**Account:** %s\n", orDash(b.AccountID))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "**Profile:** %s\n", orDash(b.Profile))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "**Fetched:** %s\n", formatTime(b.FetchedAt))
	if err != nil {
		return err
	}
	if !b.UpdatedAt.IsZero() {
		_, err = fmt.Fprintf(w, "**Cached:** %s\n", formatTime(b.UpdatedAt))
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "**Total Resources:** %d\n", b.ResourceCount)
	if err != nil {
		return err
	}
	if len(rg.records) != len(b.Records) {
		_, err = fmt.Fprintf(w, "**Shown:** %d\n", len(rg.records))
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "\n")
	return err
}

func (rg *ReportGenerator) writeSummary(w io.Writer) error {
	_, err := fmt.Fprintf(w, "## Summary\n\n")
	if err != nil {
		return err
	}

	if len(rg.records) == 0 {
		_, err = fmt.Fprintf(w, "No resources found.\n\n")
		return err
	}

	sum := Summarize(rg.records, rg.spec)

	_, err = fmt.Fprintf(w, "| Status | Count |\n")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "|--------|-------|\n")
	if err != nil {
		return err
	}
	for _, st := range sum.Statuses() {
		_, err = fmt.Fprintf(w, "| %s | %d |\n", escapeMarkdown(string(st)), sum.ByStatus[st])
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "\n")
	if err != nil {
		return err
	}

	for _, attr := range rg.spec.NumericAttributes {
		_, err = fmt.Fprintf(w, "**%s:** %.2f\n", attr, sum.Sums[attr])
		if err != nil {
			return err
		}
	}
	if rg.spec.MatchAttribute != "" {
		_, err = fmt.Fprintf(w, "**%s = %s:** %d\n", rg.spec.MatchAttribute, rg.spec.MatchValue, sum.MatchCount)
		if err != nil {
			return err
		}
	}
	if len(rg.spec.NumericAttributes) > 0 || rg.spec.MatchAttribute != "" {
		_, err = fmt.Fprintf(w, "\n")
	}
	return err
}

func (rg *ReportGenerator) writeRecords(w io.Writer) error {
	_, err := fmt.Fprintf(w, "## Resources\n\n")
	if err != nil {
		return err
	}

	if len(rg.records) == 0 {
		_, err = fmt.Fprintf(w, "No resources to display.\n\n")
		return err
	}

	_, err = fmt.Fprintf(w, "| Name | Status | Started | Duration | Detail |\n")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "|------|--------|---------|----------|--------|\n")
	if err != nil {
		return err
	}

	for _, r := range rg.records {
		started := "-"
		if r.StartedAt != nil {
			started = formatTime(*r.StartedAt)
		}
		duration := "-"
		if r.DurationSeconds != nil {
			duration = FormatDuration(*r.DurationSeconds)
		}
		detail := "-"
		if r.Error != "" {
			detail = r.Error
		}
		_, err = fmt.Fprintf(w, "| %s | %s | %s | %s | %s |\n",
			escapeMarkdown(truncate(r.DisplayName())),
			escapeMarkdown(string(r.Status)),
			started,
			duration,
			escapeMarkdown(truncate(detail)))
		if err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(w, "\n")
	return err
}

// FormatDuration renders seconds as e.g. "1h02m", "3m05s" or "12s".
func FormatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(reportTimeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func truncate(s string) string {
	const maxLen = 60
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
