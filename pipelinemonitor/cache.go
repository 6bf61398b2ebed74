package pipelinemonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// DefaultFreshness is the default maximum cache age before a re-fetch.
const DefaultFreshness = 15 * time.Minute

// CacheStore persists one batch per (resource type, account) as a JSON
// document. Cache failures are logged and reported as a miss; they never
// reach the caller as errors.
type CacheStore struct {
	fs      afero.Fs
	dir     string
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time

	mu       sync.Mutex
	identity Identity
	locks    map[string]*sync.Mutex
}

// CacheOption configures a CacheStore.
type CacheOption func(*CacheStore)

// WithLogger sets the store's logger.
func WithLogger(l zerolog.Logger) CacheOption {
	return func(s *CacheStore) { s.logger = l }
}

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) CacheOption {
	return func(s *CacheStore) { s.now = now }
}

// WithMetrics records cache operations on m.
func WithMetrics(m *Metrics) CacheOption {
	return func(s *CacheStore) { s.metrics = m }
}

// NewCacheStore creates a store rooted at dir on fsys, bound to id.
func NewCacheStore(fsys afero.Fs, dir string, id Identity, opts ...CacheOption) *CacheStore {
	s := &CacheStore{
		fs:       fsys,
		dir:      dir,
		logger:   zerolog.Nop(),
		now:      time.Now,
		identity: id,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Identity returns the identity the store validates records against.
func (s *CacheStore) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetIdentity rebinds the store, e.g. after a profile switch.
func (s *CacheStore) SetIdentity(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
}

// Path returns the cache file for rt under the current identity.
func (s *CacheStore) Path(rt ResourceType) string {
	return s.pathFor(rt, s.Identity())
}

func (s *CacheStore) pathFor(rt ResourceType, id Identity) string {
	if id.AccountID == "" {
		return filepath.Join(s.dir, fmt.Sprintf("%s_cache.json", rt))
	}
	account := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id.AccountID)
	return filepath.Join(s.dir, fmt.Sprintf("%s_cache_%s.json", rt, account))
}

func (s *CacheStore) lock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// Save writes batch for rt, stamped with the store identity and the current
// time. The file is replaced atomically. A batch stamped with a different
// account is refused.
func (s *CacheStore) Save(rt ResourceType, batch *FetchBatch) bool {
	if batch == nil {
		return false
	}
	id := s.Identity()
	path := s.pathFor(rt, id)

	if batch.AccountID != "" && batch.AccountID != id.AccountID {
		s.logger.Warn().
			Str("resource_type", rt.String()).
			Str("batch_account", batch.AccountID).
			Str("cache_account", id.AccountID).
			Msg("refusing to cache batch for another account")
		s.metrics.RecordCacheOperation(context.Background(), "save", "identity_mismatch")
		return false
	}

	l := s.lock(path)
	l.Lock()
	defer l.Unlock()

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		s.localError("save", path, err)
		return false
	}

	stamped := *batch
	stamped.ResourceType = rt
	stamped.AccountID = id.AccountID
	stamped.Profile = id.Profile
	stamped.UpdatedAt = s.now().UTC()

	data, err := stamped.ToJSON()
	if err != nil {
		s.localError("save", path, err)
		return false
	}
	if err := s.writeAtomic(path, data); err != nil {
		s.localError("save", path, err)
		return false
	}

	s.logger.Debug().
		Str("resource_type", rt.String()).
		Str("path", path).
		Int("records", len(stamped.Records)).
		Msg("cache saved")
	s.metrics.RecordCacheOperation(context.Background(), "save", "ok")
	return true
}

func (s *CacheStore) writeAtomic(path string, data []byte) error {
	tmp, err := afero.TempFile(s.fs, filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load returns the cached batch for rt. Absent, unreadable, malformed and
// identity-mismatched caches all report false.
func (s *CacheStore) Load(rt ResourceType) (*FetchBatch, bool) {
	id := s.Identity()
	path := s.pathFor(rt, id)

	data, ok := s.read("load", path)
	if !ok {
		return nil, false
	}

	batch, err := LoadFromJSON(rt, data)
	if err != nil {
		s.localError("load", path, err)
		return nil, false
	}
	if batch.Identity() != id {
		s.logger.Debug().
			Str("resource_type", rt.String()).
			Str("cached", batch.Identity().String()).
			Str("current", id.String()).
			Msg("cache identity mismatch")
		s.metrics.RecordCacheOperation(context.Background(), "load", "identity_mismatch")
		return nil, false
	}

	s.metrics.RecordCacheOperation(context.Background(), "load", "hit")
	return batch, true
}

type cacheHeader struct {
	UpdatedAt json.RawMessage `json:"updated_at"`
	AccountID *string         `json:"account_id"`
	Profile   *string         `json:"profile"`
}

// Age returns how long ago the cache for rt was written. It reads only the
// document header.
func (s *CacheStore) Age(rt ResourceType) (time.Duration, bool) {
	id := s.Identity()
	path := s.pathFor(rt, id)

	data, ok := s.read("age", path)
	if !ok {
		return 0, false
	}

	var h cacheHeader
	if err := json.Unmarshal(data, &h); err != nil {
		s.localError("age", path, err)
		return 0, false
	}
	if deref(h.AccountID) != id.AccountID || deref(h.Profile) != id.Profile {
		return 0, false
	}
	updated := parseTimestamp(h.UpdatedAt)
	if updated == nil {
		return 0, false
	}
	return s.now().Sub(*updated), true
}

// IsFresh reports whether the cache for rt was written less than threshold
// ago. It is false when the cache is absent, belongs to another identity, or
// is stamped in the future.
func (s *CacheStore) IsFresh(rt ResourceType, threshold time.Duration) bool {
	age, ok := s.Age(rt)
	if ok && age < 0 {
		s.logger.Warn().
			Str("resource_type", rt.String()).
			Dur("age", age).
			Msg("cache timestamp is in the future, treating as stale")
		ok = false
	}
	fresh := ok && age < threshold
	result := "stale"
	if fresh {
		result = "fresh"
	}
	s.metrics.RecordCacheOperation(context.Background(), "freshness", result)
	return fresh
}

// Clear removes the cache file for rt. A missing file counts as cleared.
func (s *CacheStore) Clear(rt ResourceType) bool {
	path := s.Path(rt)
	l := s.lock(path)
	l.Lock()
	defer l.Unlock()

	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.localError("clear", path, err)
		return false
	}
	return true
}

func (s *CacheStore) read(op, path string) ([]byte, bool) {
	l := s.lock(path)
	l.Lock()
	defer l.Unlock()

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.metrics.RecordCacheOperation(context.Background(), op, "miss")
			return nil, false
		}
		s.localError(op, path, err)
		return nil, false
	}
	return data, true
}

func (s *CacheStore) localError(op, path string, err error) {
	err = &ClassifiedError{Kind: KindLocalIO, Err: err}
	s.logger.Warn().Err(err).Str("operation", op).Str("path", path).Msg("cache unavailable")
	s.metrics.RecordCacheOperation(context.Background(), op, "error")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
