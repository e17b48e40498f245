package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hamed0406/healthagent/internal/domain"
	"github.com/hamed0406/healthagent/internal/repo"
	"github.com/hamed0406/healthagent/internal/stats"
)

var _ repo.ResultStore = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS results (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  target_name TEXT    NOT NULL,
  kind        TEXT    NOT NULL,
  checked_at  INTEGER NOT NULL, -- unix nanoseconds, UTC
  success     INTEGER NOT NULL,
  latency_ms  INTEGER NULL,
  status_code INTEGER NULL,
  error       TEXT    NOT NULL DEFAULT '',
  meta        TEXT    NULL
);

CREATE INDEX IF NOT EXISTS idx_results_target_time ON results (target_name, checked_at);
CREATE INDEX IF NOT EXISTS idx_results_checked_at  ON results (checked_at);
`

// Store is the default adapter: a single SQLite file in WAL mode.
type Store struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

func New(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection keeps writes ordered.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, log: log, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Append(ctx context.Context, r domain.CheckResult) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = s.now().UTC()
	}
	m, err := repo.EncodeMeta(r)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results
		   (target_name, kind, checked_at, success, latency_ms, status_code, error, meta)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TargetName, string(r.Kind), r.CheckedAt.UnixNano(), r.Success,
		r.LatencyMs, r.StatusCode, r.Error, string(m),
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

	rows, err := s.db.QueryContext(ctx,
		`SELECT checked_at, success, latency_ms
		   FROM results
		  WHERE target_name = ? AND checked_at >= ? AND checked_at <= ?
		  ORDER BY checked_at ASC, id ASC`,
		name, from.UnixNano(), now.UnixNano())
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	var results []domain.CheckResult
	for rows.Next() {
		var (
			at      int64
			success bool
			latency sql.NullInt64
		)
		if err := rows.Scan(&at, &success, &latency); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan window: %w", err)
		}
		r := domain.CheckResult{TargetName: name, CheckedAt: time.Unix(0, at).UTC(), Success: success}
		if latency.Valid {
			r.LatencyMs = domain.Int64(latency.Int64)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	return stats.Compute(name, window, now, results), nil
}

func (s *Store) Latest(ctx context.Context, name string) (domain.CheckResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT kind, checked_at, success, latency_ms, status_code, error, meta
		   FROM results
		  WHERE target_name = ?
		  ORDER BY checked_at DESC, id DESC
		  LIMIT 1`, name)

	var (
		kind    string
		at      int64
		r       = domain.CheckResult{TargetName: name}
		latency sql.NullInt64
		status  sql.NullInt64
		m       sql.NullString
	)
	if err := row.Scan(&kind, &at, &r.Success, &latency, &status, &r.Error, &m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CheckResult{}, repo.ErrNotFound
		}
		return domain.CheckResult{}, fmt.Errorf("latest: %w", err)
	}
	r.Kind = domain.Kind(kind)
	r.CheckedAt = time.Unix(0, at).UTC()
	if latency.Valid {
		r.LatencyMs = domain.Int64(latency.Int64)
	}
	if status.Valid {
		r.StatusCode = domain.Int(int(status.Int64))
	}
	if m.Valid {
		if err := repo.DecodeMeta([]byte(m.String), &r); err != nil {
			s.log.Warn("store_meta_decode_error", zap.String("target", name), zap.Error(err))
		}
	}
	return r, nil
}

func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE checked_at < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Compact(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}
