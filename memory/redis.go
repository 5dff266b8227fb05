package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/embedding"
)

// RedisOptions configure the durable Redis store.
type RedisOptions struct {
	Options

	// KeyPrefix namespaces every key. Defaults to "crewmesh:memory".
	KeyPrefix string
	// Password and DB select the logical database.
	Password string
	DB       int
}

// RedisStore is a durable Store on top of go-redis. Each record is one JSON
// value; a list per namespace keeps insertion order and a set tracks known
// namespaces. Writes update all three in one MULTI/EXEC transaction.
type RedisStore struct {
	client *redis.Client
	opts   RedisOptions
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string, optFns ...func(o *RedisOptions)) (*RedisStore, error) {
	opts := RedisOptions{
		Options:   defaultOptions(),
		KeyPrefix: "crewmesh:memory",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("redis", err)
	}
	return &RedisStore{client: client, opts: opts}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{
		Options:   defaultOptions(),
		KeyPrefix: "crewmesh:memory",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, opts: opts}
}

func (s *RedisStore) recordKey(id string) string { return s.opts.KeyPrefix + ":record:" + id }
func (s *RedisStore) listKey(ns string) string   { return s.opts.KeyPrefix + ":ns:" + ns }
func (s *RedisStore) namespacesKey() string      { return s.opts.KeyPrefix + ":namespaces" }

// Write implements Store.
func (s *RedisStore) Write(ctx context.Context, ns core.Namespace, content string) (string, error) {
	if err := validateWrite(ns, content); err != nil {
		return "", err
	}
	rec, err := newRecord(ctx, s.opts.Options, ns, content)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode memory: %w", err)
	}

	key := ns.Key()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.ID), payload, 0)
		pipe.RPush(ctx, s.listKey(key), rec.ID)
		pipe.SAdd(ctx, s.namespacesKey(), key)
		return nil
	})
	if err != nil {
		return "", s.classify(err)
	}

	s.opts.Logger.Debug("memory.write", "backend", "redis", "namespace", key, "id", rec.ID)

	return rec.ID, nil
}

// Search implements Store.
func (s *RedisStore) Search(ctx context.Context, nsPrefix core.Namespace, query string, topK int) ([]core.MemoryRecord, error) {
	if err := nsPrefix.Validate(); err != nil {
		return nil, err
	}
	vec, err := embedding.EmbedOne(ctx, s.opts.Embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	keys, err := s.client.SMembers(ctx, s.namespacesKey()).Result()
	if err != nil {
		return nil, s.classify(err)
	}

	var candidates []core.MemoryRecord
	for _, key := range keys {
		ns, err := core.ParseNamespace(key)
		if err != nil || !nsPrefix.Contains(ns) {
			continue
		}
		recs, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, recs...)
	}

	return rank(candidates, vec, topK), nil
}

// Exact implements Store.
func (s *RedisStore) Exact(ctx context.Context, ns core.Namespace) ([]core.MemoryRecord, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	return s.load(ctx, ns.Key())
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, ns core.Namespace, id string) (core.MemoryRecord, error) {
	raw, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.MemoryRecord{}, fmt.Errorf("memory %s in %s: %w", id, ns, core.ErrNotFound)
		}
		return core.MemoryRecord{}, s.classify(err)
	}
	var rec core.MemoryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return core.MemoryRecord{}, fmt.Errorf("decode memory %s: %w", id, err)
	}
	if !rec.Namespace.Equal(ns) {
		return core.MemoryRecord{}, fmt.Errorf("memory %s in %s: %w", id, ns, core.ErrNotFound)
	}
	return rec, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) load(ctx context.Context, nsKey string) ([]core.MemoryRecord, error) {
	ids, err := s.client.LRange(ctx, s.listKey(nsKey), 0, -1).Result()
	if err != nil {
		return nil, s.classify(err)
	}
	if len(ids) == 0 {
		return []core.MemoryRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.classify(err)
	}

	out := make([]core.MemoryRecord, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			s.opts.Logger.Warn("memory.dangling", "backend", "redis", "id", ids[i])
			continue
		}
		var rec core.MemoryRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("decode memory %s: %w", ids[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.opts.Logger.Warn("memory.unavailable", "backend", "redis", "error", err)
	return unavailable("redis", err)
}
