package sources

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

// GlueJobsClient defines the Glue operations used to monitor jobs.
type GlueJobsClient interface {
	ListJobs(ctx context.Context, params *glue.ListJobsInput, optFns ...func(*glue.Options)) (*glue.ListJobsOutput, error)
	GetJobRuns(ctx context.Context, params *glue.GetJobRunsInput, optFns ...func(*glue.Options)) (*glue.GetJobRunsOutput, error)
}

// GlueJobs reports the latest run of every Glue job.
type GlueJobs struct {
	client GlueJobsClient
	budget pm.WorkerBudget
}

// NewGlueJobs creates a Glue jobs source.
func NewGlueJobs(client GlueJobsClient, budget pm.WorkerBudget) *GlueJobs {
	return &GlueJobs{client: client, budget: budget}
}

func (s *GlueJobs) Type() pm.ResourceType { return pm.GlueJobs }
func (s *GlueJobs) Budget() pm.WorkerBudget { return s.budget }

// Enumerate lists all job names.
func (s *GlueJobs) Enumerate(ctx context.Context) ([]string, error) {
	var names []string
	var nextToken *string

	for {
		output, err := s.client.ListJobs(ctx, &glue.ListJobsInput{NextToken: nextToken})
		if err != nil {
			return nil, classify(err)
		}
		names = append(names, output.JobNames...)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return names, nil
}

// Detail returns the job's most recent run. A job that never ran is
// reported as NEVER_RUN.
func (s *GlueJobs) Detail(ctx context.Context, name string) (pm.ResourceRecord, error) {
	output, err := s.client.GetJobRuns(ctx, &glue.GetJobRunsInput{JobName: aws.String(name)})
	if err != nil {
		return pm.ResourceRecord{}, classify(err)
	}

	rec := pm.ResourceRecord{ID: name, Name: name, Status: pm.StatusNeverRun}
	if len(output.JobRuns) == 0 {
		return rec, nil
	}

	run := output.JobRuns[0]
	rec.Status = glueRunStatus(run.JobRunState)
	rec.StartedAt = run.StartedOn

	var duration time.Duration
	switch {
	case run.ExecutionTime > 0:
		duration = time.Duration(run.ExecutionTime) * time.Second
	case run.StartedOn != nil && run.CompletedOn != nil:
		duration = run.CompletedOn.Sub(*run.StartedOn)
	}
	if duration > 0 {
		rec.DurationSeconds = seconds(duration)
	}

	rec.Attributes = map[string]any{
		"run_id":           aws.ToString(run.Id),
		"duration_minutes": round2(duration.Minutes()),
		"dpu_hours":        round2(dpuHours(run, duration)),
		"execution_class":  string(run.ExecutionClass),
	}
	if run.WorkerType != "" {
		rec.Attributes["worker_type"] = string(run.WorkerType)
	}
	if msg := aws.ToString(run.ErrorMessage); msg != "" {
		rec.Attributes["error_message"] = msg
	}
	return rec, nil
}

// glueRunStatus maps a run state onto the record vocabulary. Glue's own
// ERROR state is a failed run, not a failed fetch.
func glueRunStatus(state gluetypes.JobRunState) pm.Status {
	switch state {
	case gluetypes.JobRunStateSucceeded:
		return pm.StatusSucceeded
	case gluetypes.JobRunStateFailed, gluetypes.JobRunStateError:
		return pm.StatusFailed
	case gluetypes.JobRunStateRunning, gluetypes.JobRunStateStarting:
		return pm.StatusRunning
	case "":
		return pm.StatusNeverRun
	default:
		return pm.Status(state)
	}
}

// dpuHours prefers the billed DPU seconds reported for auto-scaled and
// FLEX runs, falling back to capacity times execution time.
func dpuHours(run gluetypes.JobRun, duration time.Duration) float64 {
	if run.DPUSeconds != nil {
		return *run.DPUSeconds / 3600
	}
	if run.MaxCapacity != nil {
		return *run.MaxCapacity * duration.Hours()
	}
	return 0
}
