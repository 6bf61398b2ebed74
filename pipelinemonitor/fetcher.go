package pipelinemonitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultProgressEvery is how many completions pass between progress reports.
const DefaultProgressEvery = 10

// WorkerBudget sizes the detail-fetch pool for one resource type. Budgets
// are per type: throttle-prone APIs get a low ceiling and a stagger.
type WorkerBudget struct {
	Divisor int
	Min     int
	Max     int
	// Stagger is the minimum spacing between task submissions.
	Stagger time.Duration
}

// Workers returns clamp(n/Divisor, Min, Max), never more than n and never
// less than one for a non-empty batch.
func (b WorkerBudget) Workers(n int) int {
	if n <= 0 {
		return 0
	}
	div := b.Divisor
	if div <= 0 {
		div = 1
	}
	w := n / div
	if b.Min > 0 && w < b.Min {
		w = b.Min
	}
	if b.Max > 0 && w > b.Max {
		w = b.Max
	}
	if w > n {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// EnumerateFunc lists every resource identifier, draining all pages.
type EnumerateFunc func(ctx context.Context) ([]string, error)

// DetailFunc fetches one resource.
type DetailFunc func(ctx context.Context, id string) (ResourceRecord, error)

// ProgressFunc receives advisory progress updates.
type ProgressFunc func(completed, total int, elapsed time.Duration)

// Source is a per-resource-type adapter.
type Source interface {
	Type() ResourceType
	Enumerate(ctx context.Context) ([]string, error)
	Detail(ctx context.Context, id string) (ResourceRecord, error)
	Budget() WorkerBudget
}

// Fetcher enumerates resources and fetches their details over a bounded
// worker pool.
type Fetcher struct {
	Identity    Identity
	ListRetry   RetryPolicy
	DetailRetry RetryPolicy

	Progress      ProgressFunc
	ProgressEvery int

	Logger  zerolog.Logger
	Metrics *Metrics
	Now     func() time.Time
}

// NewFetcher creates a Fetcher with the default retry policies.
func NewFetcher(id Identity) *Fetcher {
	return &Fetcher{
		Identity:      id,
		ListRetry:     ListPolicy(),
		DetailRetry:   DetailPolicy(),
		ProgressEvery: DefaultProgressEvery,
		Logger:        zerolog.Nop(),
		Now:           time.Now,
	}
}

func (f *Fetcher) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// FetchSource runs FetchAll with the source's functions and budget.
func (f *Fetcher) FetchSource(ctx context.Context, src Source) (*FetchBatch, error) {
	return f.FetchAll(ctx, src.Type(), src.Enumerate, src.Detail, src.Budget())
}

// FetchAll enumerates identifiers, then fetches each one's detail in
// parallel. A detail failure becomes an ERROR record and never aborts the
// batch; an enumeration failure is returned as an EnumerateError.
// Cancelling ctx stops dispatch and backoff, and FetchAll returns ctx.Err().
func (f *Fetcher) FetchAll(ctx context.Context, rt ResourceType, enumerate EnumerateFunc, detail DetailFunc, budget WorkerBudget) (*FetchBatch, error) {
	start := time.Now()
	logger := f.Logger.With().Str("resource_type", rt.String()).Logger()

	logger.Debug().Msg("Starting enumeration")
	ids, err := Retry[[]string](ctx, f.policy(ctx, f.ListRetry, rt, logger), enumerate)
	if err != nil {
		f.Metrics.RecordFetch(ctx, rt, "enumerate_failed", time.Since(start))
		return nil, EnumerateError{ResourceType: rt, Err: err}
	}

	if len(ids) == 0 {
		logger.Info().Msg("No resources found")
		f.Metrics.RecordFetch(ctx, rt, "success", time.Since(start))
		return NewFetchBatch(rt, f.Identity, f.now(), nil), nil
	}

	workers := budget.Workers(len(ids))
	logger.Info().
		Int("resources", len(ids)).
		Int("workers", workers).
		Dur("stagger", budget.Stagger).
		Msg("Fetching resource details")

	detailPolicy := f.policy(ctx, f.DetailRetry, rt, logger)
	results := make(chan ResourceRecord, workers)
	go f.dispatch(ctx, ids, detail, detailPolicy, budget, workers, results, logger)

	every := f.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}

	records := make([]ResourceRecord, 0, len(ids))
	for rec := range results {
		records = append(records, rec)
		done := len(records)
		if f.Progress != nil && (done%every == 0 || done == len(ids)) {
			f.Progress(done, len(ids), time.Since(start))
		}
	}

	if err := ctx.Err(); err != nil {
		f.Metrics.RecordFetch(ctx, rt, "cancelled", time.Since(start))
		return nil, fmt.Errorf("fetch %s: %w", rt, err)
	}

	batch := NewFetchBatch(rt, f.Identity, f.now(), records)
	failed := len(batch.Failed())
	logger.Info().
		Int("records", batch.ResourceCount).
		Int("errors", failed).
		Dur("elapsed", time.Since(start)).
		Msgf("Completed with %d records", batch.ResourceCount)

	f.Metrics.RecordFetch(ctx, rt, "success", time.Since(start))
	f.Metrics.RecordRecords(ctx, rt, batch.StatusCounts())
	return batch, nil
}

func (f *Fetcher) dispatch(ctx context.Context, ids []string, detail DetailFunc, policy RetryPolicy, budget WorkerBudget, workers int, results chan<- ResourceRecord, logger zerolog.Logger) {
	defer close(results)

	var limiter *rate.Limiter
	if budget.Stagger > 0 {
		limiter = rate.NewLimiter(rate.Every(budget.Stagger), 1)
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for _, id := range ids {
		if ctx.Err() != nil {
			logger.Warn().Msg("fetch cancelled, no further resources dispatched")
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}

		id := id
		g.Go(func() error {
			results <- f.fetchOne(ctx, id, detail, policy, logger)
			return nil
		})
	}

	_ = g.Wait()
}

func (f *Fetcher) fetchOne(ctx context.Context, id string, detail DetailFunc, policy RetryPolicy, logger zerolog.Logger) (rec ResourceRecord) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("resource_id", id).Interface("panic", r).Msg("detail fetch panicked")
			rec = errorRecord(id, fmt.Errorf("panic: %v", r))
		}
	}()

	fetched, err := Retry(ctx, policy, func(ctx context.Context) (ResourceRecord, error) {
		return detail(ctx, id)
	})
	if err != nil {
		logger.Warn().Err(err).Str("resource_id", id).Msg("detail fetch failed")
		return errorRecord(id, err)
	}
	if fetched.ID == "" {
		fetched.ID = id
	}
	return fetched
}

// policy returns a copy of base that logs with the fetch logger and counts
// retries against rt.
func (f *Fetcher) policy(ctx context.Context, base RetryPolicy, rt ResourceType, logger zerolog.Logger) RetryPolicy {
	p := base
	p.Logger = logger
	onRetry := base.OnRetry
	p.OnRetry = func(a RetryAttempt) {
		f.Metrics.RecordRetry(ctx, rt)
		if onRetry != nil {
			onRetry(a)
		}
	}
	return p
}

func errorRecord(id string, err error) ResourceRecord {
	msg := err.Error()
	return ResourceRecord{
		ID:     id,
		Name:   id,
		Status: StatusError,
		Error:  msg,
		Attributes: map[string]any{
			"error":      msg,
			"error_kind": Classify(err).String(),
		},
	}
}
