// Package memory is an in-process Store used by tests and dry runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"lpAnalytics/internal/aggregate"
	"lpAnalytics/internal/model"
)

// Store keeps everything in maps guarded by one mutex, so each ApplyBuckets
// call is atomic.
type Store struct {
	mu      sync.Mutex
	pools   map[string]model.Pool
	tokens  map[string]model.Token
	buckets map[aggregate.BucketKey]aggregate.Bucket
	prices  map[aggregate.BucketKey]aggregate.PriceSnapshot

	// FailApply, when set, is returned by ApplyBuckets without writing.
	FailApply error
}

func New() *Store {
	return &Store{
		pools:   make(map[string]model.Pool),
		tokens:  make(map[string]model.Token),
		buckets: make(map[aggregate.BucketKey]aggregate.Bucket),
		prices:  make(map[aggregate.BucketKey]aggregate.PriceSnapshot),
	}
}

func tokenKey(chainID uint64, addr string) string {
	return strconv.FormatUint(chainID, 10) + ":" + strings.ToLower(addr)
}

func (s *Store) Pool(_ context.Context, id string) (model.Pool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[strings.ToLower(id)]
	return p, ok, nil
}

func (s *Store) Token(_ context.Context, chainID uint64, address string) (model.Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenKey(chainID, address)]
	return t, ok, nil
}

func (s *Store) EnsureToken(_ context.Context, token model.Token) (model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tokenKey(token.ChainID, token.Address)
	if existing, ok := s.tokens[key]; ok {
		return existing, nil
	}
	token.Address = strings.ToLower(token.Address)
	s.tokens[key] = token
	return token, nil
}

func (s *Store) EnsurePool(_ context.Context, pool model.Pool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strings.ToLower(pool.ID)
	if _, ok := s.pools[id]; ok {
		return false, nil
	}
	if _, ok := s.tokens[tokenKey(pool.ChainID, pool.Token0)]; !ok {
		return false, errors.New("token0 not registered")
	}
	if _, ok := s.tokens[tokenKey(pool.ChainID, pool.Token1)]; !ok {
		return false, errors.New("token1 not registered")
	}
	pool.ID = id
	s.pools[id] = pool
	return true, nil
}

func (s *Store) ApplyBuckets(_ context.Context, acc *aggregate.Accumulator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailApply != nil {
		return s.FailApply
	}
	for _, delta := range acc.Buckets() {
		if _, ok := s.pools[delta.Key.PoolID]; !ok {
			return errors.New("bucket references unknown pool " + delta.Key.PoolID)
		}
	}
	for _, delta := range acc.Buckets() {
		row, ok := s.buckets[delta.Key]
		if !ok {
			row = aggregate.Bucket{Key: delta.Key}
		}
		row.Merge(delta)
		s.buckets[delta.Key] = row
	}
	for _, p := range acc.Prices() {
		s.prices[p.Key] = p
	}
	return nil
}

// Bucket returns the stored row for key.
func (s *Store) Bucket(key aggregate.BucketKey) (aggregate.Bucket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	return b, ok
}

// Price returns the stored hour price snapshot for key.
func (s *Store) Price(key aggregate.BucketKey) (aggregate.PriceSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[key]
	return p, ok
}

// Buckets lists rows of one granularity ordered by pool then index.
func (s *Store) Buckets(g aggregate.Granularity) []aggregate.Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]aggregate.Bucket, 0, len(s.buckets))
	for key, b := range s.buckets {
		if key.Granularity == g {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.PoolID != out[j].Key.PoolID {
			return out[i].Key.PoolID < out[j].Key.PoolID
		}
		return out[i].Key.Index < out[j].Key.Index
	})
	return out
}
