package pipelinemonitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Origin tells where a batch came from.
type Origin string

const (
	OriginCache  Origin = "cache"
	OriginRemote Origin = "remote"
)

// Update is the value handed from a refresh to its consumer. The batch is
// not modified after it is sent.
type Update struct {
	Batch  *FetchBatch
	Origin Origin
	Err    error
	At     time.Time
}

// Monitor ties one source to the cache: a fresh cache short-circuits the
// remote fetch, and every remote fetch is written back.
type Monitor struct {
	Source    Source
	Cache     *CacheStore
	Fetcher   *Fetcher
	Freshness time.Duration
	Logger    zerolog.Logger
}

// NewMonitor creates a Monitor with the default freshness threshold.
func NewMonitor(src Source, cache *CacheStore, fetcher *Fetcher) *Monitor {
	return &Monitor{
		Source:    src,
		Cache:     cache,
		Fetcher:   fetcher,
		Freshness: DefaultFreshness,
		Logger:    zerolog.Nop(),
	}
}

// Refresh returns the cached batch when it is fresh and force is false.
// Otherwise it fetches, saves and returns the remote batch. Enumeration and
// cancellation errors are returned; cache failures are only logged.
func (m *Monitor) Refresh(ctx context.Context, force bool) (Update, error) {
	rt := m.Source.Type()
	logger := m.Logger.With().Str("resource_type", rt.String()).Logger()

	freshness := m.Freshness
	if freshness <= 0 {
		freshness = DefaultFreshness
	}

	if !force && m.Cache != nil && m.Cache.IsFresh(rt, freshness) {
		if batch, ok := m.Cache.Load(rt); ok {
			logger.Debug().Int("records", batch.ResourceCount).Msg("using cached batch")
			return Update{Batch: batch, Origin: OriginCache, At: time.Now()}, nil
		}
	}

	batch, err := m.Fetcher.FetchSource(ctx, m.Source)
	if err != nil {
		logger.Error().Err(err).Msg("refresh failed")
		return Update{Origin: OriginRemote, Err: err, At: time.Now()}, err
	}

	if m.Cache != nil && !m.Cache.Save(rt, batch) {
		logger.Warn().Msg("batch fetched but not cached")
	}
	return Update{Batch: batch, Origin: OriginRemote, At: time.Now()}, nil
}

// Watch refreshes every interval and sends each result to the returned
// channel, which has a single consumer and closes once ctx is done. The
// first refresh may be served from cache; later ones always fetch. A
// non-positive interval yields a single error update.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration) <-chan Update {
	updates := make(chan Update, 1)
	first := true

	r := NewRefresher(interval, func(ctx context.Context) {
		u, err := m.Refresh(ctx, !first)
		first = false
		if err != nil && ctx.Err() != nil {
			return
		}
		select {
		case updates <- u:
		case <-ctx.Done():
		}
	})
	if err := r.Start(ctx); err != nil {
		updates <- Update{Err: err, At: time.Now()}
		close(updates)
		return updates
	}

	go func() {
		<-r.Done()
		close(updates)
	}()
	return updates
}
