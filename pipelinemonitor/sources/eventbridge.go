package sources

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

// EventBridgeClient defines the EventBridge operations used.
type EventBridgeClient interface {
	ListRules(ctx context.Context, params *eventbridge.ListRulesInput, optFns ...func(*eventbridge.Options)) (*eventbridge.ListRulesOutput, error)
	DescribeRule(ctx context.Context, params *eventbridge.DescribeRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.DescribeRuleOutput, error)
	ListTargetsByRule(ctx context.Context, params *eventbridge.ListTargetsByRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.ListTargetsByRuleOutput, error)
}

// EventBridgeRules reports the state and targets of rules on the default
// event bus. Rules have no run history, so the status is the rule state.
type EventBridgeRules struct {
	client EventBridgeClient
	budget pm.WorkerBudget
}

// NewEventBridgeRules creates an EventBridge rules source.
func NewEventBridgeRules(client EventBridgeClient, budget pm.WorkerBudget) *EventBridgeRules {
	return &EventBridgeRules{client: client, budget: budget}
}

func (s *EventBridgeRules) Type() pm.ResourceType { return pm.EventBridgeRules }
func (s *EventBridgeRules) Budget() pm.WorkerBudget { return s.budget }

// Enumerate lists all rule names.
func (s *EventBridgeRules) Enumerate(ctx context.Context) ([]string, error) {
	var names []string
	var nextToken *string

	for {
		output, err := s.client.ListRules(ctx, &eventbridge.ListRulesInput{NextToken: nextToken})
		if err != nil {
			return nil, classify(err)
		}
		for _, r := range output.Rules {
			if name := aws.ToString(r.Name); name != "" {
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

// Detail describes the rule and counts its targets.
func (s *EventBridgeRules) Detail(ctx context.Context, name string) (pm.ResourceRecord, error) {
	rule, err := s.client.DescribeRule(ctx, &eventbridge.DescribeRuleInput{Name: aws.String(name)})
	if err != nil {
		return pm.ResourceRecord{}, classify(err)
	}

	targets := 0
	var nextToken *string
	for {
		output, err := s.client.ListTargetsByRule(ctx, &eventbridge.ListTargetsByRuleInput{
			Rule:      aws.String(name),
			NextToken: nextToken,
		})
		if err != nil {
			return pm.ResourceRecord{}, classify(err)
		}
		targets += len(output.Targets)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	kind := "event_pattern"
	schedule := aws.ToString(rule.ScheduleExpression)
	if schedule != "" {
		kind = "schedule"
	}

	rec := pm.ResourceRecord{
		ID:     name,
		Name:   name,
		Status: pm.Status(rule.State),
		Attributes: map[string]any{
			"rule_kind":    kind,
			"target_count": targets,
			"event_bus":    aws.ToString(rule.EventBusName),
		},
	}
	if schedule != "" {
		rec.Attributes["schedule_expression"] = schedule
	}
	if desc := aws.ToString(rule.Description); desc != "" {
		rec.Attributes["description"] = desc
	}
	return rec, nil
}
