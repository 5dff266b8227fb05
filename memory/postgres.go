package memory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/embedding"
	"github.com/hupe1980/crewmesh/logging"
)

// PostgresOptions configure the durable Postgres store.
type PostgresOptions struct {
	Options

	// Table holds the records. Defaults to "crewmesh_memories".
	Table string
	// MaxConns caps the pool size (0 keeps the pgx default).
	MaxConns int32
}

// ErrDimensionMismatch reports an existing table whose embedding column does
// not match the dimensionality of the configured embedder.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresStore is a durable Store backed by a pgx connection pool and the
// pgvector extension. Embeddings live in a vector(<dims>) column with an HNSW
// cosine index, so ranking happens in the database.
type PostgresStore struct {
	pool  *pgxpool.Pool
	opts  PostgresOptions
	table string
	dims  int

	provisionOnce sync.Once
	provisionErr  error
}

// NewPostgresStore connects to dsn, enables the vector extension and
// provisions the schema for the embedder's dimensionality. Connectivity
// failures are reported as core.ErrStoreUnavailable.
func NewPostgresStore(ctx context.Context, dsn string, optFns ...func(o *PostgresOptions)) (*PostgresStore, error) {
	opts := PostgresOptions{
		Options: defaultOptions(),
		Table:   "crewmesh_memories",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if !tableNamePattern.MatchString(opts.Table) {
		return nil, fmt.Errorf("invalid table name %q", opts.Table)
	}
	dims := opts.Embedder.Dimensions()
	if dims <= 0 {
		return nil, fmt.Errorf("embedder reports %d dimensions", dims)
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}

	// the vector type must exist before pooled connections register it
	if err := createVectorExtension(ctx, config.ConnConfig.Copy()); err != nil {
		return nil, classifyPostgres(opts.Logger, err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, unavailable("postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("postgres", err)
	}

	s := &PostgresStore{pool: pool, opts: opts, table: opts.Table, dims: dims}
	if err := s.Provision(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func createVectorExtension(ctx context.Context, config *pgx.ConnConfig) error {
	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create extension vector: %w", err)
	}
	return nil
}

// Provision creates the table and indexes if they do not exist and checks
// that an existing embedding column has the embedder's dimensionality. It
// runs at most once per store.
func (s *PostgresStore) Provision(ctx context.Context) error {
	s.provisionOnce.Do(func() {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				namespace TEXT NOT NULL,
				content TEXT NOT NULL,
				embedding vector(%d) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, s.table, s.dims),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_namespace_idx ON %s (namespace text_pattern_ops)`, s.table, s.table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_created_at_idx ON %s (created_at)`, s.table, s.table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
		}
		for _, stmt := range stmts {
			if _, err := s.pool.Exec(ctx, stmt); err != nil {
				s.provisionErr = s.classify(fmt.Errorf("provision %s: %w", s.table, err))
				return
			}
		}
		if err := s.checkDimensions(ctx); err != nil {
			s.provisionErr = err
			return
		}
		s.opts.Logger.Info("memory.provisioned", "backend", "postgres", "table", s.table, "dimensions", s.dims)
	})
	return s.provisionErr
}

func (s *PostgresStore) checkDimensions(ctx context.Context) error {
	var columnType string
	err := s.pool.QueryRow(ctx,
		`SELECT format_type(atttypid, atttypmod) FROM pg_attribute
			WHERE attrelid = to_regclass($1) AND attname = 'embedding' AND NOT attisdropped`,
		s.table).Scan(&columnType)
	if err != nil {
		return s.classify(fmt.Errorf("inspect %s: %w", s.table, err))
	}
	if want := fmt.Sprintf("vector(%d)", s.dims); columnType != want {
		return fmt.Errorf("%w: %s.embedding is %s, embedder produces %s", ErrDimensionMismatch, s.table, columnType, want)
	}
	return nil
}

// Write implements Store with a single INSERT.
func (s *PostgresStore) Write(ctx context.Context, ns core.Namespace, content string) (string, error) {
	if err := validateWrite(ns, content); err != nil {
		return "", err
	}
	rec, err := newRecord(ctx, s.opts.Options, ns, content)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, namespace, content, embedding, created_at) VALUES ($1, $2, $3, $4, $5)`, s.table),
		rec.ID, ns.Key(), rec.Content, pgvector.NewVector(rec.Embedding), rec.CreatedAt)
	if err != nil {
		return "", s.classify(err)
	}

	s.opts.Logger.Debug("memory.write", "backend", "postgres", "namespace", ns.Key(), "id", rec.ID)

	return rec.ID, nil
}

// Search implements Store.
func (s *PostgresStore) Search(ctx context.Context, nsPrefix core.Namespace, query string, topK int) ([]core.MemoryRecord, error) {
	if err := nsPrefix.Validate(); err != nil {
		return nil, err
	}
	vec, err := embedding.EmbedOne(ctx, s.opts.Embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// LIMIT NULL means no limit
	var limit any
	if topK > 0 {
		limit = topK
	}

	key := nsPrefix.Key()
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, namespace, content, embedding, created_at, embedding <=> $1 AS distance FROM %s
			WHERE namespace = $2 OR namespace LIKE $3 ESCAPE '\'
			ORDER BY embedding <=> $1, created_at DESC
			LIMIT $4`, s.table),
		pgvector.NewVector(vec), key, escapeLike(key)+"/%", limit)
	if err != nil {
		return nil, s.classify(err)
	}
	recs, err := scanRecords(rows, true)
	if err != nil {
		return nil, s.classify(err)
	}
	return recs, nil
}

// Exact implements Store.
func (s *PostgresStore) Exact(ctx context.Context, ns core.Namespace) ([]core.MemoryRecord, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, namespace, content, embedding, created_at FROM %s
			WHERE namespace = $1 ORDER BY created_at, id`, s.table),
		ns.Key())
	if err != nil {
		return nil, s.classify(err)
	}
	recs, err := scanRecords(rows, false)
	if err != nil {
		return nil, s.classify(err)
	}
	return recs, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, ns core.Namespace, id string) (core.MemoryRecord, error) {
	var (
		nsKey     string
		rec       core.MemoryRecord
		vec       pgvector.Vector
		createdAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT id, namespace, content, embedding, created_at FROM %s WHERE id = $1 AND namespace = $2`, s.table),
		id, ns.Key()).Scan(&rec.ID, &nsKey, &rec.Content, &vec, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.MemoryRecord{}, fmt.Errorf("memory %s in %s: %w", id, ns, core.ErrNotFound)
		}
		return core.MemoryRecord{}, s.classify(err)
	}
	rec.Namespace, err = core.ParseNamespace(nsKey)
	if err != nil {
		return core.MemoryRecord{}, err
	}
	rec.Embedding = vec.Slice()
	rec.CreatedAt = createdAt.UTC()
	return rec, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// scanRecords reads id, namespace, content, embedding, created_at and, with
// scored set, a trailing cosine distance turned into a similarity.
func scanRecords(rows pgx.Rows, scored bool) ([]core.MemoryRecord, error) {
	defer rows.Close()

	var out []core.MemoryRecord
	for rows.Next() {
		var (
			rec      core.MemoryRecord
			nsKey    string
			vec      pgvector.Vector
			distance float64
		)
		dest := []any{&rec.ID, &nsKey, &rec.Content, &vec, &rec.CreatedAt}
		if scored {
			dest = append(dest, &distance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		ns, err := core.ParseNamespace(nsKey)
		if err != nil {
			return nil, err
		}
		rec.Namespace = ns
		rec.Embedding = vec.Slice()
		rec.CreatedAt = rec.CreatedAt.UTC()
		if scored {
			rec.Score = 1 - distance
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) classify(err error) error { return classifyPostgres(s.opts.Logger, err) }

// classifyPostgres maps driver errors: server-side SQL errors pass through,
// anything else (network, pool, timeouts) is reported as unavailable.
// Cancellation by the caller is returned unchanged.
func classifyPostgres(logger logging.Logger, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres: %w", err)
	}
	logger.Warn("memory.unavailable", "backend", "postgres", "error", err)
	return unavailable("postgres", err)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
