package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscrub/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock pools satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	path         TEXT PRIMARY KEY,
	config       JSONB NOT NULL,
	status       TEXT,
	status_at    TIMESTAMPTZ,
	results      JSONB,
	output_files JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_status_history (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	seq         BIGSERIAL,
	job_path    TEXT NOT NULL REFERENCES jobs(path),
	run_id      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_job_status_history_path ON job_status_history(job_path, seq);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) PutConfig(ctx context.Context, path string, cfg model.ColumnConfig) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal config")
	}
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (path, config, created_at, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (path) DO UPDATE SET config = EXCLUDED.config, updated_at = EXCLUDED.updated_at`,
		path, cfgJSON, now, now,
	)
	return eris.Wrapf(err, "postgres: put config %s", path)
}

func (s *PostgresStore) GetJob(ctx context.Context, path string) (*model.Job, error) {
	var (
		j          model.Job
		cfgJSON    []byte
		status     *string
		statusAt   *time.Time
		resultJSON []byte
		outputJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT path, config, status, status_at, results, output_files, created_at, updated_at FROM jobs WHERE path = $1`,
		path,
	).Scan(&j.Path, &cfgJSON, &status, &statusAt, &resultJSON, &outputJSON, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get job %s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", path)
	}

	if err := decodeJob(&j, cfgJSON, resultJSON, outputJSON); err != nil {
		return nil, eris.Wrap(err, "postgres: decode job")
	}
	if status != nil {
		j.Status = &model.JobStatus{Stage: model.Stage(*status)}
		if statusAt != nil {
			j.Status.LastUpdated = *statusAt
		}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT stage, recorded_at FROM job_status_history WHERE job_path = $1 ORDER BY seq`,
		path,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list status history")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stage string
			at    time.Time
		)
		if err := rows.Scan(&stage, &at); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status history")
		}
		j.History = append(j.History, model.JobStatus{Stage: model.Stage(stage), LastUpdated: at})
	}
	return &j, eris.Wrap(rows.Err(), "postgres: status history iterate")
}

func (s *PostgresStore) AppendStatus(ctx context.Context, path, runID string, stage model.Stage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append status")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := postgresAppend(ctx, tx, path, runID, stage, time.Now().UTC()); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit append status")
}

func (s *PostgresStore) Complete(ctx context.Context, path, runID string, results model.Results, outputs map[string]string) error {
	resultJSON, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal results")
	}
	outputJSON, err := json.Marshal(outputs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal output files")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin complete")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE jobs SET results = $1, output_files = $2 WHERE path = $3`,
		resultJSON, outputJSON, path,
	); err != nil {
		return eris.Wrapf(err, "postgres: update results %s", path)
	}
	if err := postgresAppend(ctx, tx, path, runID, model.StageDone, time.Now().UTC()); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit complete")
}

func postgresAppend(ctx context.Context, tx pgx.Tx, path, runID string, stage model.Stage, at time.Time) error {
	tag, err := tx.Exec(ctx,
		`UPDATE jobs SET status = $1, status_at = $2, updated_at = $3 WHERE path = $4`,
		string(stage), at, at, path,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status %s", path)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update status %s", path)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO job_status_history (id, job_path, run_id, stage, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), path, runID, string(stage), at,
	)
	return eris.Wrapf(err, "postgres: insert status %s", path)
}
