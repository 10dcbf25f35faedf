package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadscrub/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck,gosec
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	path         TEXT PRIMARY KEY,
	config       TEXT NOT NULL,
	status       TEXT,
	status_at    DATETIME,
	results      TEXT,
	output_files TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS job_status_history (
	id          TEXT PRIMARY KEY,
	job_path    TEXT NOT NULL REFERENCES jobs(path),
	run_id      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	recorded_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_job_status_history_path ON job_status_history(job_path);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutConfig(ctx context.Context, path string, cfg model.ColumnConfig) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal config")
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (path, config, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (path) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		path, string(cfgJSON), now, now,
	)
	return eris.Wrapf(err, "sqlite: put config %s", path)
}

func (s *SQLiteStore) GetJob(ctx context.Context, path string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT path, config, status, status_at, results, output_files, created_at, updated_at FROM jobs WHERE path = ?`,
		path,
	)

	var (
		j          model.Job
		cfgJSON    string
		status     sql.NullString
		statusAt   sql.NullTime
		resultJSON sql.NullString
		outputJSON sql.NullString
	)
	err := row.Scan(&j.Path, &cfgJSON, &status, &statusAt, &resultJSON, &outputJSON, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get job %s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", path)
	}

	if err := decodeJob(&j, []byte(cfgJSON), nullBytes(resultJSON), nullBytes(outputJSON)); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode job")
	}
	if status.Valid {
		j.Status = &model.JobStatus{Stage: model.Stage(status.String), LastUpdated: statusAt.Time}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, recorded_at FROM job_status_history WHERE job_path = ? ORDER BY rowid`,
		path,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list status history")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var st model.JobStatus
		if err := rows.Scan(&st.Stage, &st.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status history")
		}
		j.History = append(j.History, st)
	}
	return &j, eris.Wrap(rows.Err(), "sqlite: status history iterate")
}

func (s *SQLiteStore) AppendStatus(ctx context.Context, path, runID string, stage model.Stage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append status")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := sqliteAppend(ctx, tx, path, runID, stage, time.Now().UTC()); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit append status")
}

func (s *SQLiteStore) Complete(ctx context.Context, path, runID string, results model.Results, outputs map[string]string) error {
	resultJSON, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal results")
	}
	outputJSON, err := json.Marshal(outputs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal output files")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin complete")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET results = ?, output_files = ? WHERE path = ?`,
		string(resultJSON), string(outputJSON), path,
	); err != nil {
		return eris.Wrapf(err, "sqlite: update results %s", path)
	}
	if err := sqliteAppend(ctx, tx, path, runID, model.StageDone, now); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit complete")
}

func sqliteAppend(ctx context.Context, tx *sql.Tx, path, runID string, stage model.Stage, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, status_at = ?, updated_at = ? WHERE path = ?`,
		string(stage), at, at, path,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %s", path)
	}
	if err := checkRowsAffected(res, path); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO job_status_history (id, job_path, run_id, stage, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), path, runID, string(stage), at,
	)
	return eris.Wrapf(err, "sqlite: insert status %s", path)
}

// helpers

func checkRowsAffected(res sql.Result, path string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "job %s", path)
	}
	return nil
}

func nullBytes(s sql.NullString) []byte {
	if !s.Valid {
		return nil
	}
	return []byte(s.String)
}

// decodeJob fills the JSON-encoded parts of a job document.
func decodeJob(j *model.Job, cfgJSON, resultJSON, outputJSON []byte) error {
	if err := json.Unmarshal(cfgJSON, &j.Config); err != nil {
		return eris.Wrap(err, "unmarshal config")
	}
	if len(resultJSON) > 0 {
		j.Results = &model.Results{}
		if err := json.Unmarshal(resultJSON, j.Results); err != nil {
			return eris.Wrap(err, "unmarshal results")
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &j.OutputFiles); err != nil {
			return eris.Wrap(err, "unmarshal output files")
		}
	}
	return nil
}
