package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

// StatusActive marks a catalog table that exists and was described.
const StatusActive pm.Status = "ACTIVE"

// GlueTablesClient defines the Glue Data Catalog operations used.
type GlueTablesClient interface {
	GetDatabases(ctx context.Context, params *glue.GetDatabasesInput, optFns ...func(*glue.Options)) (*glue.GetDatabasesOutput, error)
	GetTables(ctx context.Context, params *glue.GetTablesInput, optFns ...func(*glue.Options)) (*glue.GetTablesOutput, error)
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
	GetPartitions(ctx context.Context, params *glue.GetPartitionsInput, optFns ...func(*glue.Options)) (*glue.GetPartitionsOutput, error)
}

// GlueTables reports catalog tables and their partition counts. Ids have
// the form "database/table"; the start time is the last table update.
type GlueTables struct {
	client GlueTablesClient
	budget pm.WorkerBudget
}

// NewGlueTables creates a Glue catalog tables source.
func NewGlueTables(client GlueTablesClient, budget pm.WorkerBudget) *GlueTables {
	return &GlueTables{client: client, budget: budget}
}

func (s *GlueTables) Type() pm.ResourceType { return pm.GlueTables }
func (s *GlueTables) Budget() pm.WorkerBudget { return s.budget }

// Enumerate lists every table of every database.
func (s *GlueTables) Enumerate(ctx context.Context) ([]string, error) {
	databases, err := s.databases(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, db := range databases {
		var nextToken *string
		for {
			output, err := s.client.GetTables(ctx, &glue.GetTablesInput{
				DatabaseName: aws.String(db),
				NextToken:    nextToken,
			})
			if err != nil {
				return nil, classify(err)
			}
			for _, t := range output.TableList {
				if name := aws.ToString(t.Name); name != "" {
					ids = append(ids, db+"/"+name)
				}
			}

			if output.NextToken == nil {
				break
			}
			nextToken = output.NextToken
		}
	}

	return ids, nil
}

func (s *GlueTables) databases(ctx context.Context) ([]string, error) {
	var names []string
	var nextToken *string

	for {
		output, err := s.client.GetDatabases(ctx, &glue.GetDatabasesInput{NextToken: nextToken})
		if err != nil {
			return nil, classify(err)
		}
		for _, db := range output.DatabaseList {
			if name := aws.ToString(db.Name); name != "" {
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

// Detail describes one table and counts its partitions.
func (s *GlueTables) Detail(ctx context.Context, id string) (pm.ResourceRecord, error) {
	db, table, ok := strings.Cut(id, "/")
	if !ok || db == "" || table == "" {
		return pm.ResourceRecord{}, fmt.Errorf("invalid table id %q", id)
	}

	output, err := s.client.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(db),
		Name:         aws.String(table),
	})
	if err != nil {
		return pm.ResourceRecord{}, classify(err)
	}

	rec := pm.ResourceRecord{
		ID:     id,
		Name:   id,
		Status: StatusActive,
		Attributes: map[string]any{
			"database":        db,
			"partition_count": 0,
		},
	}

	t := output.Table
	if t == nil {
		return rec, nil
	}
	rec.StartedAt = t.UpdateTime
	if rec.StartedAt == nil {
		rec.StartedAt = t.CreateTime
	}
	if tt := aws.ToString(t.TableType); tt != "" {
		rec.Attributes["table_type"] = tt
	}
	if t.StorageDescriptor != nil {
		if loc := aws.ToString(t.StorageDescriptor.Location); loc != "" {
			rec.Attributes["location"] = loc
		}
	}

	if len(t.PartitionKeys) == 0 {
		return rec, nil
	}

	count, err := s.partitionCount(ctx, db, table)
	if err != nil {
		return pm.ResourceRecord{}, err
	}
	rec.Attributes["partition_count"] = count
	return rec, nil
}

func (s *GlueTables) partitionCount(ctx context.Context, db, table string) (int, error) {
	count := 0
	var nextToken *string

	for {
		output, err := s.client.GetPartitions(ctx, &glue.GetPartitionsInput{
			DatabaseName:        aws.String(db),
			TableName:           aws.String(table),
			ExcludeColumnSchema: aws.Bool(true),
			NextToken:           nextToken,
		})
		if err != nil {
			return 0, classify(err)
		}
		count += len(output.Partitions)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return count, nil
}
