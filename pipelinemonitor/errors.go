package pipelinemonitor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// ErrorKind classifies a failure for retry purposes.
type ErrorKind int

const (
	// KindPermanent errors surface on first occurrence.
	KindPermanent ErrorKind = iota
	// KindTransient errors are rate-limit class and retried with backoff.
	KindTransient
	// KindLocalIO errors come from the local cache and degrade to a miss.
	KindLocalIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindLocalIO:
		return "local_io"
	default:
		return "permanent"
	}
}

// ErrRetriesExhausted is joined with the last error when a transient failure
// outlives the retry budget.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ClassifiedError carries a kind decided once at the SDK call boundary.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (ce *ClassifiedError) Error() string {
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Classified wraps err with the kind Classify assigns to it. It returns nil
// for a nil error and leaves already classified errors untouched.
func Classified(err error) error {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return err
	}
	return &ClassifiedError{Kind: Classify(err), Err: err}
}

var throttleCodes = map[string]bool{
	"ThrottlingException":                    true,
	"Throttling":                             true,
	"TooManyRequestsException":               true,
	"RequestLimitExceeded":                   true,
	"ProvisionedThroughputExceededException": true,
	"SlowDown":                               true,
}

var transientVocabulary = []string{
	"throttling",
	"rate exceeded",
	"too many requests",
	"requestlimitexceeded",
}

// Classify returns the kind of err. Exhausted retries and context
// cancellation are permanent; otherwise a ClassifiedError in the chain wins,
// then smithy API error codes, then the message vocabulary.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindPermanent
	}

	if errors.Is(err, ErrRetriesExhausted) {
		return KindPermanent
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindPermanent
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && throttleCodes[apiErr.ErrorCode()] {
		return KindTransient
	}

	if isTransientMessage(err.Error()) {
		return KindTransient
	}
	return KindPermanent
}

func isTransientMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, term := range transientVocabulary {
		if strings.Contains(msg, term) {
			return true
		}
	}
	return false
}

// EnumerateError reports that resources of a type could not be listed.
// Enumeration failures abort the whole batch.
type EnumerateError struct {
	ResourceType ResourceType
	Err          error
}

func (ee EnumerateError) Error() string {
	return fmt.Sprintf("enumerate %s: %v", ee.ResourceType, ee.Err)
}

func (ee EnumerateError) Unwrap() error {
	return ee.Err
}

// ResourceError represents a detail fetch that failed for a single resource.
type ResourceError struct {
	ID  string
	Err error
}

func (re ResourceError) Error() string {
	return fmt.Sprintf("[%s] %v", re.ID, re.Err)
}

func (re ResourceError) Unwrap() error {
	return re.Err
}

// FetchErrors aggregates per-resource failures within one batch.
type FetchErrors struct {
	Errors []ResourceError
}

func (fe FetchErrors) Error() string {
	if len(fe.Errors) == 1 {
		return fe.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d resources failed: ", len(fe.Errors)))
	for i, e := range fe.Errors {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(e.Error())
	}
	return sb.String()
}

// IDs returns the identifiers of the failed resources.
func (fe FetchErrors) IDs() []string {
	ids := make([]string, len(fe.Errors))
	for i, e := range fe.Errors {
		ids[i] = e.ID
	}
	return ids
}
