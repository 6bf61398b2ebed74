package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
	"github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor/sources"
)

const (
	formatTable    = "table"
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

func validFormat(f string) error {
	switch f {
	case formatTable, formatJSON, formatMarkdown:
		return nil
	default:
		return fmt.Errorf("invalid format %q: use %s, %s or %s", f, formatTable, formatJSON, formatMarkdown)
	}
}

// render writes records, the filtered view of batch, in the given format.
func render(w io.Writer, format string, batch *pm.FetchBatch, records []pm.ResourceRecord) error {
	switch format {
	case formatJSON:
		view := *batch
		view.Records = records
		view.ResourceCount = len(records)
		data, err := view.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to serialize JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatMarkdown:
		rg := pm.NewReportGenerator(batch, records, sources.SummarySpecFor(batch.ResourceType))
		return rg.Generate(w)
	default:
		return renderTable(w, batch, records)
	}
}

func renderTable(w io.Writer, batch *pm.FetchBatch, records []pm.ResourceRecord) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Status", "Started", "Duration", "Detail"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, r := range records {
		started := "-"
		if r.StartedAt != nil {
			started = humanize.Time(*r.StartedAt)
		}
		duration := "-"
		if r.DurationSeconds != nil {
			duration = pm.FormatDuration(*r.DurationSeconds)
		}
		table.Append([]string{
			r.DisplayName(),
			colorStatus(r.Status),
			started,
			duration,
			recordDetail(r),
		})
	}
	table.Render()

	_, err := fmt.Fprintln(w, summaryLine(batch, records))
	return err
}

func recordDetail(r pm.ResourceRecord) string {
	if r.Error != "" {
		return r.Error
	}
	if msg := r.Text("error_message"); msg != "" {
		return msg
	}
	return ""
}

func colorStatus(s pm.Status) string {
	switch s {
	case pm.StatusSucceeded:
		return color.GreenString(string(s))
	case pm.StatusFailed, pm.StatusError:
		return color.RedString(string(s))
	case pm.StatusRunning:
		return color.CyanString(string(s))
	case pm.StatusNeverRun:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

// summaryLine renders the KPIs of records on one line.
func summaryLine(batch *pm.FetchBatch, records []pm.ResourceRecord) string {
	spec := sources.SummarySpecFor(batch.ResourceType)
	sum := pm.Summarize(records, spec)

	parts := []string{fmt.Sprintf("%d %s", sum.Total, batch.ResourceType)}
	for _, st := range sum.Statuses() {
		parts = append(parts, fmt.Sprintf("%s=%d", st, sum.ByStatus[st]))
	}
	for _, attr := range spec.NumericAttributes {
		parts = append(parts, fmt.Sprintf("%s=%.2f", attr, sum.Sums[attr]))
	}
	if spec.MatchAttribute != "" {
		parts = append(parts, fmt.Sprintf("%s:%s=%d", spec.MatchAttribute, spec.MatchValue, sum.MatchCount))
	}
	return strings.Join(parts, " ")
}

// warnFailures prints per-resource failures the way partial collections are
// reported.
func warnFailures(w io.Writer, batch *pm.FetchBatch) {
	var fetchErrs pm.FetchErrors
	if !errors.As(batch.Errors(), &fetchErrs) {
		return
	}
	fmt.Fprintf(w, "Warning: %d resource(s) failed: %s\n",
		len(fetchErrs.Errors), strings.Join(fetchErrs.IDs(), ", "))
	for _, re := range fetchErrs.Errors {
		fmt.Fprintf(w, "  [%s] %v\n", re.ID, re.Err)
	}
}

func describeOrigin(u pm.Update) string {
	if u.Origin == pm.OriginCache {
		age := "cache"
		if !u.Batch.UpdatedAt.IsZero() {
			age = "cache, updated " + humanize.Time(u.Batch.UpdatedAt)
		}
		return age
	}
	return "fetched " + u.At.Format(time.Kitchen)
}
