package sources

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	sfntypes "github.com/aws/aws-sdk-go-v2/service/sfn/types"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

// StepFunctionsClient defines the Step Functions operations used.
type StepFunctionsClient interface {
	ListStateMachines(ctx context.Context, params *sfn.ListStateMachinesInput, optFns ...func(*sfn.Options)) (*sfn.ListStateMachinesOutput, error)
	ListExecutions(ctx context.Context, params *sfn.ListExecutionsInput, optFns ...func(*sfn.Options)) (*sfn.ListExecutionsOutput, error)
}

// StepFunctions reports the latest execution of every state machine. Ids
// are state machine ARNs.
type StepFunctions struct {
	client StepFunctionsClient
	budget pm.WorkerBudget
	now    func() time.Time
}

// NewStepFunctions creates a Step Functions source.
func NewStepFunctions(client StepFunctionsClient, budget pm.WorkerBudget) *StepFunctions {
	return &StepFunctions{client: client, budget: budget, now: time.Now}
}

func (s *StepFunctions) Type() pm.ResourceType { return pm.StepFunctions }
func (s *StepFunctions) Budget() pm.WorkerBudget { return s.budget }

// Enumerate lists all state machine ARNs.
func (s *StepFunctions) Enumerate(ctx context.Context) ([]string, error) {
	var arns []string
	var nextToken *string

	for {
		output, err := s.client.ListStateMachines(ctx, &sfn.ListStateMachinesInput{NextToken: nextToken})
		if err != nil {
			return nil, classify(err)
		}
		for _, sm := range output.StateMachines {
			if arn := aws.ToString(sm.StateMachineArn); arn != "" {
				arns = append(arns, arn)
			}
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return arns, nil
}

// Detail returns the newest execution of the state machine. Executions are
// listed newest first, so only the first page is read.
func (s *StepFunctions) Detail(ctx context.Context, arn string) (pm.ResourceRecord, error) {
	output, err := s.client.ListExecutions(ctx, &sfn.ListExecutionsInput{StateMachineArn: aws.String(arn)})
	if err != nil {
		return pm.ResourceRecord{}, classify(err)
	}

	rec := pm.ResourceRecord{ID: arn, Name: nameFromARN(arn), Status: pm.StatusNeverRun}
	if len(output.Executions) == 0 {
		return rec, nil
	}

	exec := output.Executions[0]
	rec.Status = sfnStatus(exec.Status)
	rec.StartedAt = exec.StartDate

	var duration time.Duration
	if exec.StartDate != nil {
		end := s.now()
		if exec.StopDate != nil {
			end = *exec.StopDate
		}
		duration = end.Sub(*exec.StartDate)
		rec.DurationSeconds = seconds(duration)
	}

	rec.Attributes = map[string]any{
		"execution_name":   aws.ToString(exec.Name),
		"duration_minutes": round2(duration.Minutes()),
	}
	return rec, nil
}

func sfnStatus(status sfntypes.ExecutionStatus) pm.Status {
	switch status {
	case sfntypes.ExecutionStatusSucceeded:
		return pm.StatusSucceeded
	case sfntypes.ExecutionStatusFailed:
		return pm.StatusFailed
	case sfntypes.ExecutionStatusRunning:
		return pm.StatusRunning
	default:
		return pm.Status(status)
	}
}
