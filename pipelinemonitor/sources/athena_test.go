package sources

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

type mockAthenaClient struct {
	listWorkGroupsFunc         func(ctx context.Context, params *athena.ListWorkGroupsInput, optFns ...func(*athena.Options)) (*athena.ListWorkGroupsOutput, error)
	getWorkGroupFunc           func(ctx context.Context, params *athena.GetWorkGroupInput, optFns ...func(*athena.Options)) (*athena.GetWorkGroupOutput, error)
	listQueryExecutionsFunc    func(ctx context.Context, params *athena.ListQueryExecutionsInput, optFns ...func(*athena.Options)) (*athena.ListQueryExecutionsOutput, error)
	batchGetQueryExecutionFunc func(ctx context.Context, params *athena.BatchGetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.BatchGetQueryExecutionOutput, error)
}

func (m *mockAthenaClient) ListWorkGroups(ctx context.Context, params *athena.ListWorkGroupsInput, optFns ...func(*athena.Options)) (*athena.ListWorkGroupsOutput, error) {
	if m.listWorkGroupsFunc != nil {
		return m.listWorkGroupsFunc(ctx, params, optFns...)
	}
	return &athena.ListWorkGroupsOutput{}, nil
}

func (m *mockAthenaClient) GetWorkGroup(ctx context.Context, params *athena.GetWorkGroupInput, optFns ...func(*athena.Options)) (*athena.GetWorkGroupOutput, error) {
	if m.getWorkGroupFunc != nil {
		return m.getWorkGroupFunc(ctx, params, optFns...)
	}
	return &athena.GetWorkGroupOutput{}, nil
}

func (m *mockAthenaClient) ListQueryExecutions(ctx context.Context, params *athena.ListQueryExecutionsInput, optFns ...func(*athena.Options)) (*athena.ListQueryExecutionsOutput, error) {
	if m.listQueryExecutionsFunc != nil {
		return m.listQueryExecutionsFunc(ctx, params, optFns...)
	}
	return &athena.ListQueryExecutionsOutput{}, nil
}

func (m *mockAthenaClient) BatchGetQueryExecution(ctx context.Context, params *athena.BatchGetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.BatchGetQueryExecutionOutput, error) {
	if m.batchGetQueryExecutionFunc != nil {
		return m.batchGetQueryExecutionFunc(ctx, params, optFns...)
	}
	return &athena.BatchGetQueryExecutionOutput{}, nil
}

func newTestAthena(client AthenaClient) *AthenaWorkgroups {
	s := NewAthenaWorkgroups(client, testBudget)
	s.History = instantPolicy(2)
	return s
}

func TestAthenaWorkgroups_Enumerate(t *testing.T) {
	mock := &mockAthenaClient{
		listWorkGroupsFunc: func(ctx context.Context, params *athena.ListWorkGroupsInput, optFns ...func(*athena.Options)) (*athena.ListWorkGroupsOutput, error) {
			return &athena.ListWorkGroupsOutput{WorkGroups: []athenatypes.WorkGroupSummary{
				{Name: aws.String("primary")},
				{Name: aws.String("analytics")},
			}}, nil
		},
	}

	names, err := newTestAthena(mock).Enumerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"primary", "analytics"}, names)
}

func TestAthenaWorkgroups_DetailAggregatesQueries(t *testing.T) {
	older := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	mock := &mockAthenaClient{
		listQueryExecutionsFunc: func(ctx context.Context, params *athena.ListQueryExecutionsInput, optFns ...func(*athena.Options)) (*athena.ListQueryExecutionsOutput, error) {
			assert.Equal(t, "analytics", aws.ToString(params.WorkGroup))
			return &athena.ListQueryExecutionsOutput{QueryExecutionIds: []string{"q1", "q2", "q3"}}, nil
		},
		batchGetQueryExecutionFunc: func(ctx context.Context, params *athena.BatchGetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.BatchGetQueryExecutionOutput, error) {
			return &athena.BatchGetQueryExecutionOutput{QueryExecutions: []athenatypes.QueryExecution{
				{
					Status:     &athenatypes.QueryExecutionStatus{State: athenatypes.QueryExecutionStateSucceeded, SubmissionDateTime: &older},
					Statistics: &athenatypes.QueryExecutionStatistics{DataScannedInBytes: aws.Int64(1 << 39)},
				},
				{
					Status: &athenatypes.QueryExecutionStatus{State: athenatypes.QueryExecutionStateFailed, SubmissionDateTime: &newer},
					Statistics: &athenatypes.QueryExecutionStatistics{
						DataScannedInBytes:         aws.Int64(1 << 39),
						TotalExecutionTimeInMillis: aws.Int64(2500),
					},
				},
				{Statistics: &athenatypes.QueryExecutionStatistics{}},
			}}, nil
		},
	}

	rec, err := newTestAthena(mock).Detail(context.Background(), "analytics")
	require.NoError(t, err)

	assert.Equal(t, pm.StatusFailed, rec.Status)
	require.NotNil(t, rec.StartedAt)
	assert.True(t, rec.StartedAt.Equal(newer))
	assert.InDelta(t, 2.5, *rec.DurationSeconds, 1e-9)
	assert.Equal(t, "ENABLED", rec.Text("state"))

	count, _ := rec.Number("query_count")
	assert.Equal(t, 3.0, count)
	failed, _ := rec.Number("failed_queries")
	assert.Equal(t, 1.0, failed)
	gb, _ := rec.Number("data_scanned_gb")
	assert.InDelta(t, 1024, gb, 1e-9)
	cost, _ := rec.Number("cost_usd")
	assert.InDelta(t, 5, cost, 1e-9)
}

func TestAthenaWorkgroups_DetailBatchesLookups(t *testing.T) {
	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("q%d", i)
	}

	var batches []int
	mock := &mockAthenaClient{
		listQueryExecutionsFunc: func(ctx context.Context, params *athena.ListQueryExecutionsInput, optFns ...func(*athena.Options)) (*athena.ListQueryExecutionsOutput, error) {
			return &athena.ListQueryExecutionsOutput{QueryExecutionIds: ids}, nil
		},
		batchGetQueryExecutionFunc: func(ctx context.Context, params *athena.BatchGetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.BatchGetQueryExecutionOutput, error) {
			batches = append(batches, len(params.QueryExecutionIds))
			out := make([]athenatypes.QueryExecution, len(params.QueryExecutionIds))
			return &athena.BatchGetQueryExecutionOutput{QueryExecutions: out}, nil
		},
	}

	rec, err := newTestAthena(mock).Detail(context.Background(), "primary")
	require.NoError(t, err)
	assert.Equal(t, []int{50, 50, 20}, batches)
	count, _ := rec.Number("query_count")
	assert.Equal(t, 120.0, count)
	assert.Equal(t, pm.StatusNeverRun, rec.Status)
}

func TestAthenaWorkgroups_DetailDisabled(t *testing.T) {
	listed := false
	mock := &mockAthenaClient{
		getWorkGroupFunc: func(ctx context.Context, params *athena.GetWorkGroupInput, optFns ...func(*athena.Options)) (*athena.GetWorkGroupOutput, error) {
			return &athena.GetWorkGroupOutput{WorkGroup: &athenatypes.WorkGroup{State: athenatypes.WorkGroupStateDisabled}}, nil
		},
		listQueryExecutionsFunc: func(ctx context.Context, params *athena.ListQueryExecutionsInput, optFns ...func(*athena.Options)) (*athena.ListQueryExecutionsOutput, error) {
			listed = true
			return &athena.ListQueryExecutionsOutput{}, nil
		},
	}

	rec, err := newTestAthena(mock).Detail(context.Background(), "archived")
	require.NoError(t, err)
	assert.Equal(t, pm.Status("DISABLED"), rec.Status)
	assert.False(t, listed)
}

func TestAthenaWorkgroups_DetailNoQueries(t *testing.T) {
	rec, err := newTestAthena(&mockAthenaClient{}).Detail(context.Background(), "quiet")
	require.NoError(t, err)
	assert.Equal(t, pm.StatusNeverRun, rec.Status)
	cost, ok := rec.Number("cost_usd")
	assert.True(t, ok)
	assert.Zero(t, cost)
}

func TestAthenaWorkgroups_HistoryRetriesThrottling(t *testing.T) {
	calls := 0
	mock := &mockAthenaClient{
		listQueryExecutionsFunc: func(ctx context.Context, params *athena.ListQueryExecutionsInput, optFns ...func(*athena.Options)) (*athena.ListQueryExecutionsOutput, error) {
			calls++
			if calls == 1 {
				return nil, errThrottled
			}
			return &athena.ListQueryExecutionsOutput{}, nil
		},
	}

	_, err := newTestAthena(mock).Detail(context.Background(), "busy")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestAthenaWorkgroups_HistoryExhausted(t *testing.T) {
	calls := 0
	mock := &mockAthenaClient{
		listQueryExecutionsFunc: func(ctx context.Context, params *athena.ListQueryExecutionsInput, optFns ...func(*athena.Options)) (*athena.ListQueryExecutionsOutput, error) {
			calls++
			return nil, errThrottled
		},
	}

	_, err := newTestAthena(mock).Detail(context.Background(), "busy")
	require.Error(t, err)
	assert.ErrorIs(t, err, pm.ErrRetriesExhausted)
	assert.Equal(t, pm.KindPermanent, pm.Classify(err))
	assert.Equal(t, 3, calls)
}

func TestAthenaWorkgroups_GetWorkGroupError(t *testing.T) {
	mock := &mockAthenaClient{
		getWorkGroupFunc: func(ctx context.Context, params *athena.GetWorkGroupInput, optFns ...func(*athena.Options)) (*athena.GetWorkGroupOutput, error) {
			return nil, errors.New("InvalidRequestException: no such workgroup")
		},
	}

	_, err := newTestAthena(mock).Detail(context.Background(), "gone")
	assert.ErrorContains(t, err, "no such workgroup")
}

func TestAthenaStatus(t *testing.T) {
	assert.Equal(t, pm.StatusRunning, athenaStatus(athenatypes.QueryExecutionStateQueued))
	assert.Equal(t, pm.StatusRunning, athenaStatus(athenatypes.QueryExecutionStateRunning))
	assert.Equal(t, pm.StatusSucceeded, athenaStatus(athenatypes.QueryExecutionStateSucceeded))
	assert.Equal(t, pm.Status("CANCELLED"), athenaStatus(athenatypes.QueryExecutionStateCancelled))
}
