package pipelinemonitor

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourceType(t *testing.T) {
	rt, err := ParseResourceType(" Glue_Jobs ")
	require.NoError(t, err)
	assert.Equal(t, GlueJobs, rt)

	_, err = ParseResourceType("lambda_functions")
	assert.ErrorContains(t, err, `unknown resource type "lambda_functions"`)
}

func TestResourceTypes(t *testing.T) {
	assert.Equal(t, []ResourceType{
		AthenaWorkgroups,
		ConfigRules,
		EventBridgeRules,
		GlueJobs,
		GlueTables,
		StepFunctions,
	}, ResourceTypes())
}

func TestResourceType_Keys(t *testing.T) {
	assert.Equal(t, "state_machine_count", StepFunctions.CountKey())
	assert.Equal(t, "state_machines", StepFunctions.ListKey())
	assert.Equal(t, "config_rule_count", ConfigRules.CountKey())

	custom := ResourceType("lambda")
	assert.False(t, custom.IsKnown())
	assert.Equal(t, "lambda_count", custom.CountKey())
	assert.Equal(t, "lambda", custom.ListKey())
}

func TestIdentity_String(t *testing.T) {
	assert.Equal(t, "unknown", Identity{}.String())
	assert.Equal(t, "123", Identity{AccountID: "123"}.String())
	assert.Equal(t, "123 (prod)", Identity{AccountID: "123", Profile: "prod"}.String())
}

func TestResourceRecord_Accessors(t *testing.T) {
	r := ResourceRecord{
		ID: "arn:aws:glue:job/x",
		Attributes: map[string]any{
			"dpu_hours":    2.5,
			"query_count":  7,
			"text_number":  "1.5",
			"worker_type":  "G.1X",
			"target_count": json.Number("3"),
			"flag":         true,
			"missing":      nil,
		},
	}

	assert.Equal(t, "arn:aws:glue:job/x", r.DisplayName())
	r.Name = "x"
	assert.Equal(t, "x", r.DisplayName())

	tests := []struct {
		key  string
		want float64
		ok   bool
	}{
		{"dpu_hours", 2.5, true},
		{"query_count", 7, true},
		{"text_number", 1.5, true},
		{"target_count", 3, true},
		{"worker_type", 0, false},
		{"flag", 0, false},
		{"absent", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := r.Number(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	assert.Equal(t, "G.1X", r.Text("worker_type"))
	assert.Equal(t, "7", r.Text("query_count"))
	assert.Equal(t, "true", r.Text("flag"))
	assert.Empty(t, r.Text("missing"))
	assert.Empty(t, r.Text("absent"))
}

func TestFetchBatch_StatusAndErrors(t *testing.T) {
	batch := NewFetchBatch(GlueJobs, testIdentity, fixedNow, []ResourceRecord{
		{ID: "a", Status: StatusSucceeded},
		{ID: "b", Status: StatusError, Error: "AccessDenied"},
		{ID: "c", Status: StatusSucceeded},
		{ID: "d", Status: StatusError, Error: "timeout"},
	})

	assert.Equal(t, map[Status]int{StatusSucceeded: 2, StatusError: 2}, batch.StatusCounts())
	assert.Len(t, batch.Failed(), 2)

	err := batch.Errors()
	var fe FetchErrors
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, []string{"b", "d"}, fe.IDs())

	clean := NewFetchBatch(GlueJobs, testIdentity, fixedNow, nil)
	assert.NoError(t, clean.Errors())
	assert.NotNil(t, clean.Records)
	assert.Zero(t, clean.ResourceCount)
}

func TestFetchBatch_KnownKeysOverrideExtra(t *testing.T) {
	batch := NewFetchBatch(AthenaWorkgroups, testIdentity, fixedNow, []ResourceRecord{{ID: "primary", Status: "ENABLED"}})
	batch.Extra = map[string]json.RawMessage{
		"workgroup_count": json.RawMessage(`99`),
		"note":            json.RawMessage(`"kept"`),
	}

	data, err := batch.ToJSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(1), doc["workgroup_count"])
	assert.Equal(t, "kept", doc["note"])
	assert.Equal(t, doc["timestamp"], doc["updated_at"])
}

func TestResourceRecord_UnknownFieldsRoundTrip(t *testing.T) {
	var rec ResourceRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","status":"SUCCEEDED","job_run_id":"jr_1"}`), &rec))
	assert.Equal(t, "a", rec.ID)
	assert.Equal(t, map[string]json.RawMessage{"job_run_id": json.RawMessage(`"jr_1"`)}, rec.Extra)

	rec.Extra["status"] = json.RawMessage(`"SHADOWED"`)
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","status":"SUCCEEDED","job_run_id":"jr_1","started_at":null,"duration_seconds":null}`, string(data))

	var plain ResourceRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id":"b","status":"FAILED"}`), &plain))
	assert.Nil(t, plain.Extra)
}

func TestLoadFromJSON_Invalid(t *testing.T) {
	_, err := LoadFromJSON(GlueJobs, []byte(`[1,2,3]`))
	assert.Error(t, err)

	batch, err := LoadFromJSON(GlueJobs, []byte(`{"jobs": "nope"}`))
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
	assert.True(t, batch.FetchedAt.IsZero())
}
