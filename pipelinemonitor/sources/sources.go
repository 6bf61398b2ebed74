// Package sources adapts AWS service APIs to pipelinemonitor.Source.
package sources

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/sfn"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

var defaultBudgets = map[pm.ResourceType]pm.WorkerBudget{
	pm.GlueJobs:         {Divisor: 5, Min: 5, Max: 15},
	pm.StepFunctions:    {Divisor: 10, Min: 2, Max: 5, Stagger: 50 * time.Millisecond},
	pm.AthenaWorkgroups: {Divisor: 5, Min: 2, Max: 5, Stagger: 25 * time.Millisecond},
	pm.EventBridgeRules: {Divisor: 5, Min: 5, Max: 10},
	pm.GlueTables:       {Divisor: 10, Min: 5, Max: 15},
	pm.ConfigRules:      {Divisor: 5, Min: 2, Max: 5, Stagger: 25 * time.Millisecond},
}

// DefaultBudget returns the worker budget tuned for rt's API limits.
func DefaultBudget(rt pm.ResourceType) pm.WorkerBudget {
	if b, ok := defaultBudgets[rt]; ok {
		return b
	}
	return pm.WorkerBudget{Divisor: 5, Min: 1, Max: 5}
}

var summarySpecs = map[pm.ResourceType]pm.SummarySpec{
	pm.GlueJobs: {
		NumericAttributes: []string{"dpu_hours", "duration_minutes"},
		MatchAttribute:    "execution_class",
		MatchValue:        "FLEX",
	},
	pm.StepFunctions: {
		NumericAttributes: []string{"duration_minutes"},
	},
	pm.AthenaWorkgroups: {
		NumericAttributes: []string{"cost_usd", "data_scanned_gb", "query_count"},
	},
	pm.EventBridgeRules: {
		NumericAttributes: []string{"target_count"},
		MatchAttribute:    "rule_kind",
		MatchValue:        "schedule",
	},
	pm.GlueTables: {
		NumericAttributes: []string{"partition_count"},
	},
	pm.ConfigRules: {
		MatchAttribute: "compliance",
		MatchValue:     "NON_COMPLIANT",
	},
}

// SummarySpecFor returns the KPIs rendered for rt.
func SummarySpecFor(rt pm.ResourceType) pm.SummarySpec {
	return summarySpecs[rt]
}

var permissions = map[pm.ResourceType][]string{
	pm.GlueJobs:         {"glue:ListJobs", "glue:GetJobRuns"},
	pm.StepFunctions:    {"states:ListStateMachines", "states:ListExecutions"},
	pm.AthenaWorkgroups: {"athena:ListWorkGroups", "athena:GetWorkGroup", "athena:ListQueryExecutions", "athena:BatchGetQueryExecution"},
	pm.EventBridgeRules: {"events:ListRules", "events:DescribeRule", "events:ListTargetsByRule"},
	pm.GlueTables:       {"glue:GetDatabases", "glue:GetTables", "glue:GetTable", "glue:GetPartitions"},
	pm.ConfigRules:      {"config:DescribeConfigRules", "config:DescribeConfigRuleEvaluationStatus", "config:DescribeComplianceByConfigRule"},
}

// RequiredPermissions lists the IAM actions needed to monitor rt, plus the
// identity lookup every command performs.
func RequiredPermissions(rt pm.ResourceType) []string {
	perms := append([]string{"sts:GetCallerIdentity"}, permissions[rt]...)
	return perms
}

// New builds the adapter for rt from an AWS config. A zero budget selects
// DefaultBudget(rt).
func New(rt pm.ResourceType, cfg aws.Config, budget pm.WorkerBudget) (pm.Source, error) {
	if budget == (pm.WorkerBudget{}) {
		budget = DefaultBudget(rt)
	}

	switch rt {
	case pm.GlueJobs:
		return NewGlueJobs(glue.NewFromConfig(cfg), budget), nil
	case pm.StepFunctions:
		return NewStepFunctions(sfn.NewFromConfig(cfg), budget), nil
	case pm.AthenaWorkgroups:
		return NewAthenaWorkgroups(athena.NewFromConfig(cfg), budget), nil
	case pm.EventBridgeRules:
		return NewEventBridgeRules(eventbridge.NewFromConfig(cfg), budget), nil
	case pm.GlueTables:
		return NewGlueTables(glue.NewFromConfig(cfg), budget), nil
	case pm.ConfigRules:
		return NewConfigRules(configservice.NewFromConfig(cfg), budget), nil
	default:
		return nil, fmt.Errorf("unknown resource type %q", rt)
	}
}

// classify tags an SDK error with its kind so retry sites need not inspect
// messages again.
func classify(err error) error {
	return pm.Classified(err)
}

// nameFromARN returns the resource name at the end of an ARN.
func nameFromARN(arn string) string {
	if i := strings.LastIndex(arn, ":"); i >= 0 && i < len(arn)-1 {
		return arn[i+1:]
	}
	return arn
}

func seconds(d time.Duration) *float64 {
	s := d.Seconds()
	return &s
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
