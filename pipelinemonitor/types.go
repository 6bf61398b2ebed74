package pipelinemonitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ResourceType identifies a kind of monitored resource (e.g. glue_jobs).
type ResourceType string

const (
	GlueJobs         ResourceType = "glue_jobs"
	StepFunctions    ResourceType = "step_functions"
	AthenaWorkgroups ResourceType = "athena_workgroups"
	EventBridgeRules ResourceType = "eventbridge_rules"
	GlueTables       ResourceType = "glue_tables"
	ConfigRules      ResourceType = "config_rules"
)

type cacheKeys struct {
	count string
	list  string
}

var resourceCacheKeys = map[ResourceType]cacheKeys{
	GlueJobs:         {count: "job_count", list: "jobs"},
	StepFunctions:    {count: "state_machine_count", list: "state_machines"},
	AthenaWorkgroups: {count: "workgroup_count", list: "workgroups"},
	EventBridgeRules: {count: "rule_count", list: "rules"},
	GlueTables:       {count: "table_count", list: "tables"},
	ConfigRules:      {count: "config_rule_count", list: "config_rules"},
}

// String returns the string representation of the resource type.
func (rt ResourceType) String() string {
	return string(rt)
}

// IsKnown reports whether the type has a registered adapter.
func (rt ResourceType) IsKnown() bool {
	_, ok := resourceCacheKeys[rt]
	return ok
}

// CountKey is the cache document key holding the record count.
func (rt ResourceType) CountKey() string {
	if k, ok := resourceCacheKeys[rt]; ok {
		return k.count
	}
	return string(rt) + "_count"
}

// ListKey is the cache document key holding the record list.
func (rt ResourceType) ListKey() string {
	if k, ok := resourceCacheKeys[rt]; ok {
		return k.list
	}
	return string(rt)
}

// ResourceTypes returns every known resource type in name order.
func ResourceTypes() []ResourceType {
	types := make([]ResourceType, 0, len(resourceCacheKeys))
	for rt := range resourceCacheKeys {
		types = append(types, rt)
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i] < types[j]
	})
	return types
}

// ParseResourceType validates a user-supplied resource type name.
func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(strings.ToLower(strings.TrimSpace(s)))
	if !rt.IsKnown() {
		return "", fmt.Errorf("unknown resource type %q", s)
	}
	return rt, nil
}

// Status is the domain status of a record. Values not listed below are
// passed through verbatim from the provider.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusRunning   Status = "RUNNING"
	StatusNeverRun  Status = "NEVER_RUN"
	StatusError     Status = "ERROR"

	// StatusAll disables status filtering.
	StatusAll = "ALL"
)

// Identity is the caller identity a cache namespace is bound to.
type Identity struct {
	AccountID string
	Profile   string
}

func (id Identity) String() string {
	account := id.AccountID
	if account == "" {
		account = "unknown"
	}
	if id.Profile == "" {
		return account
	}
	return fmt.Sprintf("%s (%s)", account, id.Profile)
}

// ResourceRecord is one fetched item. Records are never mutated once they
// are part of a batch; the next fetch supersedes them.
type ResourceRecord struct {
	ID              string         `json:"id"`
	Name            string         `json:"name,omitempty"`
	Status          Status         `json:"status"`
	StartedAt       *time.Time     `json:"started_at"`
	DurationSeconds *float64       `json:"duration_seconds"`
	Attributes      map[string]any `json:"attributes,omitempty"`
	Error           string         `json:"error,omitempty"`

	// Extra holds record fields this package does not interpret. They are
	// written back unchanged.
	Extra map[string]json.RawMessage `json:"-"`
}

var recordKeys = map[string]bool{
	"id": true, "name": true, "status": true, "started_at": true,
	"duration_seconds": true, "attributes": true, "error": true,
}

// DisplayName is the name used for text matching and rendering.
func (r ResourceRecord) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// Number returns a numeric attribute. Missing and non-numeric values
// report false.
func (r ResourceRecord) Number(key string) (float64, bool) {
	v, ok := r.Attributes[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Text returns an attribute formatted as text, or "" when absent.
func (r ResourceRecord) Text(key string) string {
	v, ok := r.Attributes[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// UnmarshalJSON decodes a record leniently: a field that fails to parse is
// left at its zero value instead of failing the whole record.
func (r *ResourceRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = ResourceRecord{}
	decodeLenient(raw["id"], &r.ID)
	decodeLenient(raw["name"], &r.Name)
	var status string
	decodeLenient(raw["status"], &status)
	r.Status = Status(status)
	r.StartedAt = parseTimestamp(raw["started_at"])
	r.DurationSeconds = parseSeconds(raw["duration_seconds"])
	decodeLenient(raw["attributes"], &r.Attributes)
	decodeLenient(raw["error"], &r.Error)

	for k, v := range raw {
		if recordKeys[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = v
	}
	return nil
}

// MarshalJSON encodes the record with its uninterpreted fields merged in.
// Known fields win over an Extra entry of the same name.
func (r ResourceRecord) MarshalJSON() ([]byte, error) {
	type plain ResourceRecord
	data, err := json.Marshal(plain(r))
	if err != nil || len(r.Extra) == 0 {
		return data, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if recordKeys[k] {
			continue
		}
		doc[k] = v
	}
	return json.Marshal(doc)
}

// FetchBatch is the ordered result of one fetch cycle.
type FetchBatch struct {
	ResourceType  ResourceType
	FetchedAt     time.Time
	UpdatedAt     time.Time
	AccountID     string
	Profile       string
	ResourceCount int
	Records       []ResourceRecord

	// Extra holds top-level cache fields this package does not interpret.
	Extra map[string]json.RawMessage
}

// NewFetchBatch creates a batch whose count matches its records.
func NewFetchBatch(rt ResourceType, id Identity, fetchedAt time.Time, records []ResourceRecord) *FetchBatch {
	if records == nil {
		records = make([]ResourceRecord, 0)
	}
	return &FetchBatch{
		ResourceType:  rt,
		FetchedAt:     fetchedAt.UTC(),
		AccountID:     id.AccountID,
		Profile:       id.Profile,
		ResourceCount: len(records),
		Records:       records,
	}
}

// Identity returns the identity stamped on the batch.
func (b *FetchBatch) Identity() Identity {
	return Identity{AccountID: b.AccountID, Profile: b.Profile}
}

// StatusCounts returns a map of status to count.
func (b *FetchBatch) StatusCounts() map[Status]int {
	counts := make(map[Status]int)
	for _, r := range b.Records {
		counts[r.Status]++
	}
	return counts
}

// Failed returns the records whose detail fetch failed.
func (b *FetchBatch) Failed() []ResourceRecord {
	var failed []ResourceRecord
	for _, r := range b.Records {
		if r.Status == StatusError {
			failed = append(failed, r)
		}
	}
	return failed
}

// Errors returns a FetchErrors describing the failed records, or nil.
func (b *FetchBatch) Errors() error {
	failed := b.Failed()
	if len(failed) == 0 {
		return nil
	}
	fe := FetchErrors{Errors: make([]ResourceError, 0, len(failed))}
	for _, r := range failed {
		fe.Errors = append(fe.Errors, ResourceError{ID: r.ID, Err: errors.New(r.Error)})
	}
	return fe
}

// ToJSON serializes the batch in the cache document layout.
func (b *FetchBatch) ToJSON() ([]byte, error) {
	doc := make(map[string]any, len(b.Extra)+6)
	for k, v := range b.Extra {
		doc[k] = v
	}

	updated := b.UpdatedAt
	if updated.IsZero() {
		updated = b.FetchedAt
	}
	records := b.Records
	if records == nil {
		records = make([]ResourceRecord, 0)
	}

	doc["timestamp"] = b.FetchedAt.UTC().Format(time.RFC3339Nano)
	doc["updated_at"] = updated.UTC().Format(time.RFC3339Nano)
	doc["account_id"] = nullable(b.AccountID)
	doc["profile"] = nullable(b.Profile)
	doc[b.ResourceType.CountKey()] = len(records)
	doc[b.ResourceType.ListKey()] = records

	return json.MarshalIndent(doc, "", "  ")
}

// LoadFromJSON deserializes a batch written by ToJSON. Records that are not
// JSON objects are skipped; unparseable fields inside a record are nulled.
func LoadFromJSON(rt ResourceType, data []byte) (*FetchBatch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	b := &FetchBatch{ResourceType: rt, Records: make([]ResourceRecord, 0)}
	if t := parseTimestamp(raw["timestamp"]); t != nil {
		b.FetchedAt = *t
	}
	if t := parseTimestamp(raw["updated_at"]); t != nil {
		b.UpdatedAt = *t
	}
	decodeLenient(raw["account_id"], &b.AccountID)
	decodeLenient(raw["profile"], &b.Profile)

	var items []json.RawMessage
	decodeLenient(raw[rt.ListKey()], &items)
	for _, item := range items {
		var rec ResourceRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		b.Records = append(b.Records, rec)
	}
	b.ResourceCount = len(b.Records)

	known := map[string]bool{
		"timestamp": true, "updated_at": true, "account_id": true, "profile": true,
		rt.CountKey(): true, rt.ListKey(): true,
	}
	for k, v := range raw {
		if known[k] {
			continue
		}
		if b.Extra == nil {
			b.Extra = make(map[string]json.RawMessage)
		}
		b.Extra[k] = v
	}

	return b, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func decodeLenient(data json.RawMessage, v any) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, v)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
}

// parseTimestamp accepts ISO-8601 with or without an offset; naive values
// are read as UTC. Anything else yields nil.
func parseTimestamp(data json.RawMessage) *time.Time {
	var s string
	if len(data) == 0 || json.Unmarshal(data, &s) != nil || s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func parseSeconds(data json.RawMessage) *float64 {
	if len(data) == 0 {
		return nil
	}
	var f float64
	if json.Unmarshal(data, &f) == nil {
		return &f
	}
	var s string
	if json.Unmarshal(data, &s) != nil {
		return nil
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return &f
	}
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
		secs := d.Seconds()
		return &secs
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
