package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/config"
	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

const defaultPostgresTable = "profile_records"

// pgExecer is the subset of *pgxpool.Pool the sink uses
type pgExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresSink stores each record as a JSONB row keyed by (batch, dedup_key).
// Records without a dedup key get a NULL key and are always inserted.
type PostgresSink struct {
	db          pgExecer
	pool        *pgxpool.Pool // nil when constructed over a plain executor
	table       string
	dedupFields []string
	log         *logrus.Entry
}

// NewPostgresPool creates and verifies a pgxpool connection pool
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: pgxpool.New: %w", utils.ErrDatabase, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: postgres ping failed: %w", utils.ErrDatabase, err)
	}
	return pool, nil
}

// NewPostgresSink connects, ensures the schema, and returns a sink owning the pool
func NewPostgresSink(ctx context.Context, cfg config.PostgresConfig, dedupFields []string, log *logrus.Entry) (*PostgresSink, error) {
	pool, err := NewPostgresPool(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	sink := newPostgresSink(pool, cfg.Table, dedupFields, log)
	sink.pool = pool
	if err := sink.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

func newPostgresSink(db pgExecer, table string, dedupFields []string, log *logrus.Entry) *PostgresSink {
	if table == "" {
		table = defaultPostgresTable
	}
	return &PostgresSink{db: db, table: table, dedupFields: dedupFields, log: log}
}

// EnsureSchema creates the records table and its dedup index if missing
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	table := pgx.Identifier{s.table}.Sanitize()
	index := pgx.Identifier{"idx_" + s.table + "_dedup"}.Sanitize()

	sql := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		batch TEXT NOT NULL,
		dedup_key TEXT,
		uuid TEXT NOT NULL,
		record JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (batch, dedup_key);
	`, table, index, table)

	if _, err := s.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("%w: failed to ensure schema: %w", utils.ErrDatabase, err)
	}
	return nil
}

// Persist implements Sink
func (s *PostgresSink) Persist(ctx context.Context, batch string, rec *models.Record) (bool, error) {
	raw, err := rec.MarshalJSON()
	if err != nil {
		return false, fmt.Errorf("%w: encoding record JSON: %w", utils.ErrParsing, err)
	}

	var dedupKey any
	if key := rec.DedupKey(s.dedupFields); key != "" {
		dedupKey = utils.NormalizeDedupKey(key)
	}
	id := rec.Value("uuid")
	if !models.IsAvailable(id) {
		id = uuid.NewString()
	}

	sql := fmt.Sprintf(
		`INSERT INTO %s (batch, dedup_key, uuid, record)
		 VALUES ($1, $2, $3, $4::jsonb)
		 ON CONFLICT (batch, dedup_key) DO NOTHING`,
		pgx.Identifier{s.table}.Sanitize())

	tag, err := s.db.Exec(ctx, sql, batch, dedupKey, id, string(raw))
	if err != nil {
		return false, fmt.Errorf("%w: inserting record: %w", utils.ErrDatabase, err)
	}
	if tag.RowsAffected() == 0 {
		s.log.WithFields(logrus.Fields{"batch": batch, "dedup_key": dedupKey}).Info("Duplicate record, skipping")
		return false, nil
	}
	return true, nil
}

// Close implements Sink
func (s *PostgresSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
