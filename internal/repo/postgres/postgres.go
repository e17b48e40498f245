package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/healthagent/internal/domain"
	"github.com/hamed0406/healthagent/internal/repo"
	"github.com/hamed0406/healthagent/internal/stats"
)

var _ repo.ResultStore = (*Store)(nil)

const SchemaSQL = `
CREATE TABLE IF NOT EXISTS results (
  id          BIGSERIAL PRIMARY KEY,
  target_name TEXT        NOT NULL,
  kind        TEXT        NOT NULL,
  checked_at  TIMESTAMPTZ NOT NULL,
  success     BOOLEAN     NOT NULL,
  latency_ms  BIGINT      NULL,
  status_code INTEGER     NULL,
  error       TEXT        NOT NULL DEFAULT '',
  meta        JSONB       NULL
);

CREATE INDEX IF NOT EXISTS idx_results_target_time ON results (target_name, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_checked_at   ON results (checked_at);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
	now  func() time.Time
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, SchemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, log: log, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Append(ctx context.Context, r domain.CheckResult) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = s.now().UTC()
	}
	m, err := repo.EncodeMeta(r)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO results
		   (target_name, kind, checked_at, success, latency_ms, status_code, error, meta)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.TargetName, string(r.Kind), r.CheckedAt, r.Success, r.LatencyMs, r.StatusCode, r.Error, m,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, name string, window time.Duration) (domain.Snapshot, error) {
	if window <= 0 {
		window = domain.DefaultWindow
	}
	now := s.now().UTC()
	from := now.Add(-window)

	rows, err := s.pool.Query(ctx,
		`SELECT checked_at, success, latency_ms
		   FROM results
		  WHERE target_name = $1 AND checked_at >= $2 AND checked_at <= $3
		  ORDER BY checked_at ASC, id ASC`,
		name, from, now)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	var results []domain.CheckResult
	for rows.Next() {
		r := domain.CheckResult{TargetName: name}
		if err := rows.Scan(&r.CheckedAt, &r.Success, &r.LatencyMs); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan window: %w", err)
		}
		r.CheckedAt = r.CheckedAt.UTC()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	return stats.Compute(name, window, now, results), nil
}

func (s *Store) Latest(ctx context.Context, name string) (domain.CheckResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT kind, checked_at, success, latency_ms, status_code, error, meta
		   FROM results
		  WHERE target_name = $1
		  ORDER BY checked_at DESC, id DESC
		  LIMIT 1`, name)

	var (
		kind string
		m    []byte
		r    = domain.CheckResult{TargetName: name}
	)
	if err := row.Scan(&kind, &r.CheckedAt, &r.Success, &r.LatencyMs, &r.StatusCode, &r.Error, &m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CheckResult{}, repo.ErrNotFound
		}
		return domain.CheckResult{}, fmt.Errorf("latest: %w", err)
	}
	r.Kind = domain.Kind(kind)
	r.CheckedAt = r.CheckedAt.UTC()
	if err := repo.DecodeMeta(m, &r); err != nil {
		s.log.Warn("store_meta_decode_error", zap.String("target", name), zap.Error(err))
	}
	return r, nil
}

func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM results WHERE checked_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Compact(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `VACUUM ANALYZE results`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
