package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Observer receives cache lookups.
type Observer interface {
	ObserveCacheLookup(result string) // "hit", "miss" or "shared"
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithObserver sets the lookup observer.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observer = o
	}
}

type entry struct {
	value     any
	fetchedAt time.Time
}

// Store is an in-memory query cache.
type Store struct {
	now      func() time.Time
	observer Observer
	group    singleflight.Group

	mu       sync.Mutex
	entries  map[string]entry
	gens     map[string]uint64 // only keys with a fetch in flight
	inflight map[string]int
	errs     map[string]error

	subsMu sync.Mutex
	subs   map[int]func(key string)
	nextID int
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		entries:  make(map[string]entry),
		gens:     make(map[string]uint64),
		inflight: make(map[string]int),
		errs:     make(map[string]error),
		subs:     make(map[int]func(string)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the cached value for key when it is younger than maxAge, and
// otherwise calls fn. A maxAge of zero or less never expires.
//
// Concurrent callers share one call of fn. The shared call is detached from the
// cancellation of whichever caller started it; a caller whose ctx ends stops
// waiting and gets ctx.Err() while the others still receive the result.
func Fetch[T any](ctx context.Context, s *Store, key string, maxAge time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	s.mu.Lock()
	if e, ok := s.entries[key]; ok && (maxAge <= 0 || s.now().Sub(e.fetchedAt) < maxAge) {
		if v, ok := e.value.(T); ok {
			s.mu.Unlock()
			s.observe("hit")
			return v, nil
		}
	}
	gen := s.gens[key]
	s.gens[key] = gen
	s.inflight[key]++
	s.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		val, err := fn(detached)
		s.store(key, gen, val, err)
		return val, err
	})

	var res singleflight.Result
	select {
	case res = <-ch:
		s.done(key)
	case <-ctx.Done():
		go func() {
			<-ch
			s.done(key)
		}()
		return zero, ctx.Err()
	}

	if res.Shared {
		s.observe("shared")
	} else {
		s.observe("miss")
	}
	if res.Err != nil {
		return zero, res.Err
	}
	t, _ := res.Val.(T)
	return t, nil
}

// Refresh fetches key unconditionally and stores the result.
func Refresh[T any](ctx context.Context, s *Store, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	s.mu.Lock()
	s.dropLocked(key)
	s.mu.Unlock()
	return Fetch(ctx, s, key, 0, fn)
}

func (s *Store) store(key string, gen uint64, val any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gens[key] != gen {
		return
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.errs[key] = err
		}
		return
	}
	s.entries[key] = entry{value: val, fetchedAt: s.now()}
	delete(s.errs, key)
}

// done releases one waiter of key and forgets its generation once none are left.
func (s *Store) done(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[key]--; s.inflight[key] <= 0 {
		delete(s.inflight, key)
		delete(s.gens, key)
	}
}

// dropLocked removes the entry of key. Fetches still in flight for key are made
// stale so their results are discarded.
func (s *Store) dropLocked(key string) {
	delete(s.entries, key)
	if s.inflight[key] > 0 {
		s.gens[key]++
	}
}

// knownKeysLocked returns every key with an entry, an error or a fetch in flight.
func (s *Store) knownKeysLocked() []string {
	seen := make(map[string]bool, len(s.entries)+len(s.inflight)+len(s.errs))
	for k := range s.entries {
		seen[k] = true
	}
	for k := range s.inflight {
		seen[k] = true
	}
	for k := range s.errs {
		seen[k] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the cached value for key regardless of age.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e.value, ok
}

// Put stores value under key and advances its generation, so in-flight fetches
// cannot overwrite it.
func (s *Store) Put(key string, value any) {
	s.mu.Lock()
	s.dropLocked(key)
	s.entries[key] = entry{value: value, fetchedAt: s.now()}
	delete(s.errs, key)
	s.mu.Unlock()
}

// Invalidate drops the given keys.
func (s *Store) Invalidate(keys ...string) {
	s.mu.Lock()
	for _, key := range keys {
		s.dropLocked(key)
	}
	s.mu.Unlock()

	s.notify(keys)
}

// InvalidatePrefix drops every known key starting with prefix.
func (s *Store) InvalidatePrefix(prefix string) {
	s.mu.Lock()
	var keys []string
	for _, key := range s.knownKeysLocked() {
		if strings.HasPrefix(key, prefix) {
			s.dropLocked(key)
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()

	s.notify(keys)
}

// Clear drops every entry and recorded error.
func (s *Store) Clear() {
	s.mu.Lock()
	keys := s.knownKeysLocked()
	for _, key := range keys {
		s.dropLocked(key)
	}
	s.errs = make(map[string]error)
	s.mu.Unlock()

	s.notify(keys)
}

// RecordError stores err as the last error of key.
func (s *Store) RecordError(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, key)
		return
	}
	s.errs[key] = err
}

// LastError returns the last error recorded for key.
func (s *Store) LastError(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[key]
}

// Errors returns all recorded errors by key.
func (s *Store) Errors() map[string]error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]error, len(s.errs))
	for k, v := range s.errs {
		out[k] = v
	}
	return out
}

// Retry clears the last error of key and invalidates it.
func (s *Store) Retry(key string) {
	s.mu.Lock()
	delete(s.errs, key)
	s.mu.Unlock()
	s.Invalidate(key)
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Subscribe registers fn to be called with every invalidated key.
func (s *Store) Subscribe(fn func(key string)) func() {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) notify(keys []string) {
	if len(keys) == 0 {
		return
	}

	s.subsMu.Lock()
	fns := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, key := range keys {
		for _, fn := range fns {
			fn(key)
		}
	}
}

func (s *Store) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveCacheLookup(result)
	}
}
