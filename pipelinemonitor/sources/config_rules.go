package sources

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	cfgtypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

// ConfigRulesClient defines the AWS Config operations used.
type ConfigRulesClient interface {
	DescribeConfigRules(ctx context.Context, params *configservice.DescribeConfigRulesInput, optFns ...func(*configservice.Options)) (*configservice.DescribeConfigRulesOutput, error)
	DescribeConfigRuleEvaluationStatus(ctx context.Context, params *configservice.DescribeConfigRuleEvaluationStatusInput, optFns ...func(*configservice.Options)) (*configservice.DescribeConfigRuleEvaluationStatusOutput, error)
	DescribeComplianceByConfigRule(ctx context.Context, params *configservice.DescribeComplianceByConfigRuleInput, optFns ...func(*configservice.Options)) (*configservice.DescribeComplianceByConfigRuleOutput, error)
}

// ConfigRules reports the last evaluation and compliance of every AWS
// Config rule.
type ConfigRules struct {
	client ConfigRulesClient
	budget pm.WorkerBudget

	// History governs the compliance lookup.
	History pm.RetryPolicy
}

// NewConfigRules creates an AWS Config rules source.
func NewConfigRules(client ConfigRulesClient, budget pm.WorkerBudget) *ConfigRules {
	return &ConfigRules{client: client, budget: budget, History: pm.HistoryPolicy()}
}

func (s *ConfigRules) Type() pm.ResourceType { return pm.ConfigRules }
func (s *ConfigRules) Budget() pm.WorkerBudget { return s.budget }

// Enumerate lists all rule names.
func (s *ConfigRules) Enumerate(ctx context.Context) ([]string, error) {
	var names []string
	var nextToken *string

	for {
		output, err := s.client.DescribeConfigRules(ctx, &configservice.DescribeConfigRulesInput{NextToken: nextToken})
		if err != nil {
			return nil, classify(err)
		}
		for _, r := range output.ConfigRules {
			if name := aws.ToString(r.ConfigRuleName); name != "" {
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

// Detail reports the newest invocation of the rule. A rule whose last
// invocation failed is FAILED, one that never ran is NEVER_RUN.
func (s *ConfigRules) Detail(ctx context.Context, name string) (pm.ResourceRecord, error) {
	output, err := s.client.DescribeConfigRuleEvaluationStatus(ctx, &configservice.DescribeConfigRuleEvaluationStatusInput{
		ConfigRuleNames: []string{name},
	})
	if err != nil {
		return pm.ResourceRecord{}, classify(err)
	}

	rec := pm.ResourceRecord{
		ID:         name,
		Name:       name,
		Status:     pm.StatusNeverRun,
		Attributes: map[string]any{},
	}

	if len(output.ConfigRulesEvaluationStatus) > 0 {
		applyEvaluation(&rec, output.ConfigRulesEvaluationStatus[0])
	}

	compliance, err := pm.Retry(ctx, s.History, func(ctx context.Context) (cfgtypes.ComplianceType, error) {
		return s.compliance(ctx, name)
	})
	if err != nil {
		return pm.ResourceRecord{}, fmt.Errorf("compliance: %w", err)
	}
	if compliance != "" {
		rec.Attributes["compliance"] = string(compliance)
	}
	return rec, nil
}

func applyEvaluation(rec *pm.ResourceRecord, status cfgtypes.ConfigRuleEvaluationStatus) {
	ok, failed := status.LastSuccessfulInvocationTime, status.LastFailedInvocationTime
	switch {
	case failed != nil && (ok == nil || failed.After(*ok)):
		rec.Status = pm.StatusFailed
		rec.StartedAt = failed
		if msg := aws.ToString(status.LastErrorMessage); msg != "" {
			rec.Attributes["error_message"] = msg
		}
	case ok != nil:
		rec.Status = pm.StatusSucceeded
		rec.StartedAt = ok
	}
}

func (s *ConfigRules) compliance(ctx context.Context, name string) (cfgtypes.ComplianceType, error) {
	output, err := s.client.DescribeComplianceByConfigRule(ctx, &configservice.DescribeComplianceByConfigRuleInput{
		ConfigRuleNames: []string{name},
	})
	if err != nil {
		return "", classify(err)
	}
	for _, c := range output.ComplianceByConfigRules {
		if aws.ToString(c.ConfigRuleName) == name && c.Compliance != nil {
			return c.Compliance.ComplianceType, nil
		}
	}
	return "", nil
}
