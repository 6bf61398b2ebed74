package sources

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

const (
	// AthenaUSDPerTB is the on-demand price per terabyte scanned.
	AthenaUSDPerTB = 5.0

	bytesPerGB = 1 << 30
	bytesPerTB = 1 << 40

	athenaBatchSize = 50
)

// AthenaClient defines the Athena operations used.
type AthenaClient interface {
	ListWorkGroups(ctx context.Context, params *athena.ListWorkGroupsInput, optFns ...func(*athena.Options)) (*athena.ListWorkGroupsOutput, error)
	GetWorkGroup(ctx context.Context, params *athena.GetWorkGroupInput, optFns ...func(*athena.Options)) (*athena.GetWorkGroupOutput, error)
	ListQueryExecutions(ctx context.Context, params *athena.ListQueryExecutionsInput, optFns ...func(*athena.Options)) (*athena.ListQueryExecutionsOutput, error)
	BatchGetQueryExecution(ctx context.Context, params *athena.BatchGetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.BatchGetQueryExecutionOutput, error)
}

// AthenaWorkgroups reports recent query activity and scan cost per
// workgroup.
type AthenaWorkgroups struct {
	client AthenaClient
	budget pm.WorkerBudget

	// History governs the query history lookups, which throttle more
	// readily than the workgroup call.
	History pm.RetryPolicy
}

// NewAthenaWorkgroups creates an Athena workgroups source.
func NewAthenaWorkgroups(client AthenaClient, budget pm.WorkerBudget) *AthenaWorkgroups {
	return &AthenaWorkgroups{client: client, budget: budget, History: pm.HistoryPolicy()}
}

func (s *AthenaWorkgroups) Type() pm.ResourceType { return pm.AthenaWorkgroups }
func (s *AthenaWorkgroups) Budget() pm.WorkerBudget { return s.budget }

// Enumerate lists all workgroup names.
func (s *AthenaWorkgroups) Enumerate(ctx context.Context) ([]string, error) {
	var names []string
	var nextToken *string

	for {
		output, err := s.client.ListWorkGroups(ctx, &athena.ListWorkGroupsInput{NextToken: nextToken})
		if err != nil {
			return nil, classify(err)
		}
		for _, wg := range output.WorkGroups {
			if name := aws.ToString(wg.Name); name != "" {
				names = append(names, name)
			}
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return names, nil
}

// Detail summarises the workgroup's most recent page of queries. The record
// status is that of the newest query.
func (s *AthenaWorkgroups) Detail(ctx context.Context, name string) (pm.ResourceRecord, error) {
	wg, err := s.client.GetWorkGroup(ctx, &athena.GetWorkGroupInput{WorkGroup: aws.String(name)})
	if err != nil {
		return pm.ResourceRecord{}, classify(err)
	}

	state := athenatypes.WorkGroupStateEnabled
	if wg.WorkGroup != nil && wg.WorkGroup.State != "" {
		state = wg.WorkGroup.State
	}

	rec := pm.ResourceRecord{
		ID:     name,
		Name:   name,
		Status: pm.StatusNeverRun,
		Attributes: map[string]any{
			"state":           string(state),
			"query_count":     0,
			"failed_queries":  0,
			"data_scanned_gb": 0.0,
			"cost_usd":        0.0,
		},
	}
	if state == athenatypes.WorkGroupStateDisabled {
		rec.Status = pm.Status(state)
		return rec, nil
	}

	queries, err := pm.Retry(ctx, s.History, func(ctx context.Context) ([]athenatypes.QueryExecution, error) {
		return s.recentQueries(ctx, name)
	})
	if err != nil {
		return pm.ResourceRecord{}, fmt.Errorf("query history: %w", err)
	}
	if len(queries) == 0 {
		return rec, nil
	}

	var scanned int64
	var failed int
	var latest *athenatypes.QueryExecution
	for i := range queries {
		q := &queries[i]
		if q.Statistics != nil && q.Statistics.DataScannedInBytes != nil {
			scanned += *q.Statistics.DataScannedInBytes
		}
		if q.Status == nil {
			continue
		}
		if q.Status.State == athenatypes.QueryExecutionStateFailed {
			failed++
		}
		if q.Status.SubmissionDateTime == nil {
			continue
		}
		if latest == nil || q.Status.SubmissionDateTime.After(*latest.Status.SubmissionDateTime) {
			latest = q
		}
	}

	rec.Attributes["query_count"] = len(queries)
	rec.Attributes["failed_queries"] = failed
	rec.Attributes["data_scanned_gb"] = round2(float64(scanned) / bytesPerGB)
	rec.Attributes["cost_usd"] = round2(float64(scanned) / bytesPerTB * AthenaUSDPerTB)

	if latest != nil {
		rec.Status = athenaStatus(latest.Status.State)
		rec.StartedAt = latest.Status.SubmissionDateTime
		if latest.Statistics != nil && latest.Statistics.TotalExecutionTimeInMillis != nil {
			secs := float64(*latest.Statistics.TotalExecutionTimeInMillis) / 1000
			rec.DurationSeconds = &secs
		}
	}
	return rec, nil
}

func (s *AthenaWorkgroups) recentQueries(ctx context.Context, workgroup string) ([]athenatypes.QueryExecution, error) {
	list, err := s.client.ListQueryExecutions(ctx, &athena.ListQueryExecutionsInput{WorkGroup: aws.String(workgroup)})
	if err != nil {
		return nil, classify(err)
	}

	ids := list.QueryExecutionIds
	queries := make([]athenatypes.QueryExecution, 0, len(ids))
	for i := 0; i < len(ids); i += athenaBatchSize {
		end := i + athenaBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		output, err := s.client.BatchGetQueryExecution(ctx, &athena.BatchGetQueryExecutionInput{
			QueryExecutionIds: ids[i:end],
		})
		if err != nil {
			return nil, classify(err)
		}
		queries = append(queries, output.QueryExecutions...)
	}

	return queries, nil
}

func athenaStatus(state athenatypes.QueryExecutionState) pm.Status {
	switch state {
	case athenatypes.QueryExecutionStateSucceeded:
		return pm.StatusSucceeded
	case athenatypes.QueryExecutionStateFailed:
		return pm.StatusFailed
	case athenatypes.QueryExecutionStateRunning, athenatypes.QueryExecutionStateQueued:
		return pm.StatusRunning
	default:
		return pm.Status(state)
	}
}
