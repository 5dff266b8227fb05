package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/embedding"
	"github.com/hupe1980/crewmesh/logging"
)

// Store persists namespaced facts and recalls them by semantic similarity.
type Store interface {
	// Write appends a new record and returns its id.
	Write(ctx context.Context, ns core.Namespace, content string) (string, error)
	// Search returns up to topK records under nsPrefix ordered by descending
	// similarity to query. topK <= 0 returns every match.
	Search(ctx context.Context, nsPrefix core.Namespace, query string, topK int) ([]core.MemoryRecord, error)
	// Exact returns every record stored under ns (not nested ones), oldest first.
	Exact(ctx context.Context, ns core.Namespace) ([]core.MemoryRecord, error)
	// Get returns one record or core.ErrNotFound.
	Get(ctx context.Context, ns core.Namespace, id string) (core.MemoryRecord, error)
	// Close releases backend resources.
	Close() error
}

// Options are shared by every backend.
type Options struct {
	// Embedder computes record and query vectors. Defaults to a HashEmbedder.
	Embedder embedding.Embedder
	// Logger receives backend diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
	// Now stamps new records. Defaults to time.Now.
	Now func() time.Time
}

func defaultOptions() Options {
	return Options{
		Embedder: embedding.NewHashEmbedder(0),
		Logger:   logging.NoOpLogger{},
		Now:      time.Now,
	}
}

func validateWrite(ns core.Namespace, content string) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("memory content is empty")
	}
	return nil
}

func newRecord(ctx context.Context, opts Options, ns core.Namespace, content string) (core.MemoryRecord, error) {
	vec, err := embedding.EmbedOne(ctx, opts.Embedder, content)
	if err != nil {
		return core.MemoryRecord{}, fmt.Errorf("embed memory: %w", err)
	}
	return core.MemoryRecord{
		ID:        core.NewID(),
		Namespace: slices.Clone(ns),
		Content:   content,
		Embedding: vec,
		CreatedAt: opts.Now().UTC(),
	}, nil
}

// rank scores candidates against the query vector and keeps the best topK.
// Ties fall back to recency.
func rank(candidates []core.MemoryRecord, query []float32, topK int) []core.MemoryRecord {
	out := make([]core.MemoryRecord, len(candidates))
	for i, rec := range candidates {
		rec.Score = embedding.Cosine(query, rec.Embedding)
		out[i] = rec
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func cloneRecord(rec core.MemoryRecord) core.MemoryRecord {
	rec.Namespace = slices.Clone(rec.Namespace)
	rec.Embedding = slices.Clone(rec.Embedding)
	return rec
}

func unavailable(backend string, err error) error {
	return fmt.Errorf("%w: %s: %w", core.ErrStoreUnavailable, backend, err)
}
