package sources

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGlueTablesClient struct {
	getDatabasesFunc  func(ctx context.Context, params *glue.GetDatabasesInput, optFns ...func(*glue.Options)) (*glue.GetDatabasesOutput, error)
	getTablesFunc     func(ctx context.Context, params *glue.GetTablesInput, optFns ...func(*glue.Options)) (*glue.GetTablesOutput, error)
	getTableFunc      func(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
	getPartitionsFunc func(ctx context.Context, params *glue.GetPartitionsInput, optFns ...func(*glue.Options)) (*glue.GetPartitionsOutput, error)
}

func (m *mockGlueTablesClient) GetDatabases(ctx context.Context, params *glue.GetDatabasesInput, optFns ...func(*glue.Options)) (*glue.GetDatabasesOutput, error) {
	if m.getDatabasesFunc != nil {
		return m.getDatabasesFunc(ctx, params, optFns...)
	}
	return &glue.GetDatabasesOutput{}, nil
}

func (m *mockGlueTablesClient) GetTables(ctx context.Context, params *glue.GetTablesInput, optFns ...func(*glue.Options)) (*glue.GetTablesOutput, error) {
	if m.getTablesFunc != nil {
		return m.getTablesFunc(ctx, params, optFns...)
	}
	return &glue.GetTablesOutput{}, nil
}

func (m *mockGlueTablesClient) GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error) {
	if m.getTableFunc != nil {
		return m.getTableFunc(ctx, params, optFns...)
	}
	return &glue.GetTableOutput{}, nil
}

func (m *mockGlueTablesClient) GetPartitions(ctx context.Context, params *glue.GetPartitionsInput, optFns ...func(*glue.Options)) (*glue.GetPartitionsOutput, error) {
	if m.getPartitionsFunc != nil {
		return m.getPartitionsFunc(ctx, params, optFns...)
	}
	return &glue.GetPartitionsOutput{}, nil
}

func TestGlueTables_Enumerate(t *testing.T) {
	mock := &mockGlueTablesClient{
		getDatabasesFunc: func(ctx context.Context, params *glue.GetDatabasesInput, optFns ...func(*glue.Options)) (*glue.GetDatabasesOutput, error) {
			return &glue.GetDatabasesOutput{DatabaseList: []gluetypes.Database{
				{Name: aws.String("raw")},
				{Name: aws.String("curated")},
			}}, nil
		},
		getTablesFunc: func(ctx context.Context, params *glue.GetTablesInput, optFns ...func(*glue.Options)) (*glue.GetTablesOutput, error) {
			switch aws.ToString(params.DatabaseName) {
			case "raw":
				if params.NextToken == nil {
					return &glue.GetTablesOutput{
						TableList: []gluetypes.Table{{Name: aws.String("events")}},
						NextToken: aws.String("p2"),
					}, nil
				}
				return &glue.GetTablesOutput{TableList: []gluetypes.Table{{Name: aws.String("clicks")}}}, nil
			default:
				return &glue.GetTablesOutput{TableList: []gluetypes.Table{{Name: aws.String("daily")}}}, nil
			}
		},
	}

	ids, err := NewGlueTables(mock, testBudget).Enumerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"raw/events", "raw/clicks", "curated/daily"}, ids)
}

func TestGlueTables_DetailPartitioned(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2024, 5, 30, 6, 0, 0, 0, time.UTC)

	var partitionCalls []*glue.GetPartitionsInput
	mock := &mockGlueTablesClient{
		getTableFunc: func(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error) {
			assert.Equal(t, "raw", aws.ToString(params.DatabaseName))
			assert.Equal(t, "events", aws.ToString(params.Name))
			return &glue.GetTableOutput{Table: &gluetypes.Table{
				Name:              aws.String("events"),
				CreateTime:        &created,
				UpdateTime:        &updated,
				TableType:         aws.String("EXTERNAL_TABLE"),
				StorageDescriptor: &gluetypes.StorageDescriptor{Location: aws.String("s3://lake/raw/events/")},
				PartitionKeys:     []gluetypes.Column{{Name: aws.String("dt")}},
			}}, nil
		},
		getPartitionsFunc: func(ctx context.Context, params *glue.GetPartitionsInput, optFns ...func(*glue.Options)) (*glue.GetPartitionsOutput, error) {
			partitionCalls = append(partitionCalls, params)
			if params.NextToken == nil {
				return &glue.GetPartitionsOutput{
					Partitions: make([]gluetypes.Partition, 3),
					NextToken:  aws.String("more"),
				}, nil
			}
			return &glue.GetPartitionsOutput{Partitions: make([]gluetypes.Partition, 2)}, nil
		},
	}

	rec, err := NewGlueTables(mock, testBudget).Detail(context.Background(), "raw/events")
	require.NoError(t, err)

	assert.Equal(t, StatusActive, rec.Status)
	require.NotNil(t, rec.StartedAt)
	assert.True(t, rec.StartedAt.Equal(updated))
	assert.Equal(t, "raw", rec.Text("database"))
	assert.Equal(t, "EXTERNAL_TABLE", rec.Text("table_type"))
	assert.Equal(t, "s3://lake/raw/events/", rec.Text("location"))
	partitions, _ := rec.Number("partition_count")
	assert.Equal(t, 5.0, partitions)

	require.Len(t, partitionCalls, 2)
	assert.True(t, aws.ToBool(partitionCalls[0].ExcludeColumnSchema))
}

func TestGlueTables_DetailUnpartitioned(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	called := false
	mock := &mockGlueTablesClient{
		getTableFunc: func(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error) {
			return &glue.GetTableOutput{Table: &gluetypes.Table{Name: aws.String("dim"), CreateTime: &created}}, nil
		},
		getPartitionsFunc: func(ctx context.Context, params *glue.GetPartitionsInput, optFns ...func(*glue.Options)) (*glue.GetPartitionsOutput, error) {
			called = true
			return &glue.GetPartitionsOutput{}, nil
		},
	}

	rec, err := NewGlueTables(mock, testBudget).Detail(context.Background(), "curated/dim")
	require.NoError(t, err)
	assert.False(t, called)
	assert.True(t, rec.StartedAt.Equal(created))
	partitions, ok := rec.Number("partition_count")
	assert.True(t, ok)
	assert.Zero(t, partitions)
}

func TestGlueTables_DetailInvalidID(t *testing.T) {
	s := NewGlueTables(&mockGlueTablesClient{}, testBudget)

	for _, id := range []string{"no-slash", "/table", "db/"} {
		_, err := s.Detail(context.Background(), id)
		assert.ErrorContains(t, err, "invalid table id", id)
	}
}
