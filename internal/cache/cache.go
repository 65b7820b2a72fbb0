// Package cache keeps rendered read views in an LRU and evicts them by tag
// after writes. Tags are derived from gang, fighter and vehicle ids.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"ganger/internal/metrics"
)

func GangTag(gangID string) string        { return "gang-" + gangID }
func GangCreditsTag(gangID string) string { return "gang-credits-" + gangID }
func GangRatingTag(gangID string) string  { return "gang-rating-" + gangID }
func FighterTag(fighterID string) string  { return "fighter-" + fighterID }
func VehicleTag(vehicleID string) string  { return "vehicle-" + vehicleID }
func UserGangsTag(userID string) string   { return "gangs-user-" + userID }

// FinancialTags is the set every ledger write must invalidate.
func FinancialTags(gangID string) []string {
	return []string{GangTag(gangID), GangCreditsTag(gangID), GangRatingTag(gangID)}
}

type entry struct {
	value any
	tags  []string
	at    time.Time
}

type Store struct {
	mu     sync.Mutex
	lru    *lru.Cache
	byTag  map[string]map[string]struct{}
	maxAge time.Duration
	now    func() time.Time
	epoch  uint64
}

func New(size int) (*Store, error) {
	if size <= 0 {
		size = 1024
	}
	s := &Store{byTag: make(map[string]map[string]struct{}), now: time.Now}
	c, err := lru.NewWithEvict(size, s.onEvict)
	if err != nil {
		return nil, err
	}
	s.lru = c
	return s, nil
}

// SetMaxAge bounds how long a view is served. Writes made by another process
// never reach Invalidate here, so this is what ages them out. Zero disables it.
func (s *Store) SetMaxAge(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxAge = d
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.lru.Get(key)
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	e := v.(entry)
	if s.maxAge > 0 && s.now().Sub(e.at) > s.maxAge {
		s.lru.Remove(key)
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return e.value, true
}

// Epoch changes on every Invalidate. Read it before loading a view and hand
// it to PutAt so a view read before a concurrent write is not cached.
func (s *Store) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// PutAt stores value only if no invalidation happened since epoch was read.
func (s *Store) PutAt(epoch uint64, key string, value any, tags ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		metrics.CacheLookups.WithLabelValues("skipped").Inc()
		return false
	}
	s.put(key, value, tags)
	return true
}

func (s *Store) Put(key string, value any, tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value, tags)
}

func (s *Store) put(key string, value any, tags []string) {
	s.lru.Add(key, entry{value: value, tags: tags, at: s.now()})
	for _, t := range tags {
		keys, ok := s.byTag[t]
		if !ok {
			keys = make(map[string]struct{})
			s.byTag[t] = keys
		}
		keys[key] = struct{}{}
	}
}

// Invalidate drops every key carrying any of tags and returns how many went.
func (s *Store) Invalidate(tags ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++

	var keys []string
	for _, t := range tags {
		for k := range s.byTag[t] {
			keys = append(keys, k)
		}
	}
	n := 0
	for _, k := range keys {
		if s.lru.Remove(k) {
			n++
		}
	}
	metrics.CacheInvalidations.Add(float64(n))
	return n
}

func (s *Store) Len() int {
	return s.lru.Len()
}

// onEvict fires synchronously inside lru.Add and lru.Remove, both of which are
// only called with s.mu held.
func (s *Store) onEvict(key, value any) {
	k, _ := key.(string)
	e, _ := value.(entry)
	for _, t := range e.tags {
		keys := s.byTag[t]
		delete(keys, k)
		if len(keys) == 0 {
			delete(s.byTag, t)
		}
	}
}
