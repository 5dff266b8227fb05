package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/embedding"
)

// VolatileStore is a process-local Store. Records are kept per namespace in
// insertion order and vanish with the instance.
//
// Concurrency: protected by RWMutex; embeddings are computed outside the lock.
type VolatileStore struct {
	opts Options

	mu      sync.RWMutex
	records map[string][]core.MemoryRecord // namespace key -> records
	closed  bool
}

// NewVolatileStore creates an empty in-memory store.
func NewVolatileStore(optFns ...func(o *Options)) *VolatileStore {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &VolatileStore{
		opts:    opts,
		records: make(map[string][]core.MemoryRecord),
	}
}

// Write implements Store.
func (s *VolatileStore) Write(ctx context.Context, ns core.Namespace, content string) (string, error) {
	if err := validateWrite(ns, content); err != nil {
		return "", err
	}
	rec, err := newRecord(ctx, s.opts, ns, content)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", unavailable("volatile", fmt.Errorf("store closed"))
	}
	key := ns.Key()
	s.records[key] = append(s.records[key], rec)

	s.opts.Logger.Debug("memory.write", "backend", "volatile", "namespace", key, "id", rec.ID)

	return rec.ID, nil
}

// Search implements Store.
func (s *VolatileStore) Search(ctx context.Context, nsPrefix core.Namespace, query string, topK int) ([]core.MemoryRecord, error) {
	if err := nsPrefix.Validate(); err != nil {
		return nil, err
	}
	vec, err := embedding.EmbedOne(ctx, s.opts.Embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, unavailable("volatile", fmt.Errorf("store closed"))
	}
	var candidates []core.MemoryRecord
	for _, recs := range s.records {
		if len(recs) == 0 || !nsPrefix.Contains(recs[0].Namespace) {
			continue
		}
		for _, rec := range recs {
			candidates = append(candidates, cloneRecord(rec))
		}
	}
	s.mu.RUnlock()

	return rank(candidates, vec, topK), nil
}

// Exact implements Store.
func (s *VolatileStore) Exact(_ context.Context, ns core.Namespace) ([]core.MemoryRecord, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, unavailable("volatile", fmt.Errorf("store closed"))
	}
	recs := s.records[ns.Key()]
	out := make([]core.MemoryRecord, len(recs))
	for i, rec := range recs {
		out[i] = cloneRecord(rec)
	}
	return out, nil
}

// Get implements Store.
func (s *VolatileStore) Get(_ context.Context, ns core.Namespace, id string) (core.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.MemoryRecord{}, unavailable("volatile", fmt.Errorf("store closed"))
	}
	for _, rec := range s.records[ns.Key()] {
		if rec.ID == id {
			return cloneRecord(rec), nil
		}
	}
	return core.MemoryRecord{}, fmt.Errorf("memory %s in %s: %w", id, ns, core.ErrNotFound)
}

// Close implements Store. Records are discarded.
func (s *VolatileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}
