package evidence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	artifact_path  TEXT,
	backend        TEXT,
	started_at     TEXT NOT NULL,
	started_ns     INTEGER NOT NULL,
	outcome        TEXT NOT NULL,
	ignited        INTEGER NOT NULL,
	best_index     INTEGER NOT NULL,
	reason         TEXT,
	phi_threshold  REAL NOT NULL,
	gamma_critical REAL NOT NULL,
	results        INTEGER NOT NULL,
	failed         INTEGER NOT NULL,
	indexed_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cells (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	position      INTEGER NOT NULL,
	alpha         REAL NOT NULL,
	k             INTEGER NOT NULL,
	status        TEXT NOT NULL,
	job_id        TEXT,
	depth         INTEGER,
	phi           REAL,
	lambda        REAL,
	gamma         REAL,
	xi            REAL,
	conscious     INTEGER,
	stable        INTEGER,
	p_succ        REAL,
	delta_tau_eff REAL,
	error         TEXT,
	FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS controls (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id   TEXT NOT NULL,
	control  TEXT NOT NULL,
	job_id   TEXT,
	phi      REAL,
	lambda   REAL,
	gamma    REAL,
	error    TEXT,
	FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cells_run ON cells(run_id, position);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_ns);
`
// #endregion schema

// #region types

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID         string
	ArtifactPath  string
	Backend       string
	StartedAt     time.Time
	Outcome       string
	Ignited       bool
	BestIndex     int
	Reason        string
	PhiThreshold  float64
	GammaCritical float64
	Results       int
	Failed        int
}

// CellRow is one indexed grid cell. Observable fields are nil for cells
// without observables.
type CellRow struct {
	Position    int
	Alpha       float64
	K           int
	Status      string
	JobID       string
	Depth       int
	Phi         *float64
	Lambda      *float64
	Gamma       *float64
	Xi          *float64
	Conscious   *bool
	Stable      *bool
	PSucc       *float64
	DeltaTauEff *float64
	Error       string
}

// #endregion types

// #region index-struct

// Index is a SQLite catalogue of artifacts for querying across runs.
type Index struct {
	db *sql.DB
}

// OpenIndex opens a SQLite database and runs migrations.
func OpenIndex(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

// #endregion index-struct

// #region record-run

// RecordRun indexes an artifact and the path it was written to. Artifacts
// without a run ID get a fresh one. Re-indexing a run replaces its rows.
func (x *Index) RecordRun(a Artifact, path string) (string, error) {
	runID := a.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	tx, err := x.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// foreign_keys is per connection, so children are cleared explicitly
	for _, table := range []string{"cells", "controls", "runs"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
			return "", fmt.Errorf("clear %s: %w", table, err)
		}
	}
	_, err = tx.Exec(
		`INSERT INTO runs (run_id, artifact_path, backend, started_at, started_ns, outcome, ignited, best_index, reason,
		                   phi_threshold, gamma_critical, results, failed, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		nullIfEmpty(path),
		nullIfEmpty(a.Backend),
		a.Time().Format(time.RFC3339Nano),
		a.Time().UnixNano(),
		a.Verdict.Outcome,
		a.Verdict.Ignited,
		a.Verdict.BestIndex,
		nullIfEmpty(a.Verdict.Reason),
		a.Constants["PHI_THRESHOLD"],
		a.Constants["GAMMA_CRITICAL"],
		len(a.Results),
		len(a.FailedCells),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	pos := 0
	for _, c := range a.Results {
		args := []any{runID, pos, c.Alpha, c.K, c.Status, nullIfEmpty(c.JobID), c.CircuitDepth}
		if c.CCCE != nil {
			args = append(args, c.CCCE.Phi, c.CCCE.Lambda, c.CCCE.Gamma, c.CCCE.Xi, c.CCCE.Conscious, c.CCCE.Stable)
		} else {
			args = append(args, nil, nil, nil, nil, nil, nil)
		}
		if c.Observables != nil {
			args = append(args, c.Observables.PSucc, c.Observables.DeltaTauEff)
		} else {
			args = append(args, nil, nil)
		}
		args = append(args, nullIfEmpty(c.Error))
		if err := insertCell(tx, args); err != nil {
			return "", err
		}
		pos++
	}
	for _, f := range a.FailedCells {
		args := []any{runID, pos, f.Alpha, f.K, "failed", nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nullIfEmpty(f.Error)}
		if err := insertCell(tx, args); err != nil {
			return "", err
		}
		pos++
	}

	for _, c := range a.Controls {
		var phi, lambda, gamma any
		if c.CCCE != nil {
			phi, lambda, gamma = c.CCCE.Phi, c.CCCE.Lambda, c.CCCE.Gamma
		}
		_, err := tx.Exec(
			`INSERT INTO controls (run_id, control, job_id, phi, lambda, gamma, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, c.Control, nullIfEmpty(c.JobID), phi, lambda, gamma, nullIfEmpty(c.Error),
		)
		if err != nil {
			return "", fmt.Errorf("insert control: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

func insertCell(tx *sql.Tx, args []any) error {
	_, err := tx.Exec(
		`INSERT INTO cells (run_id, position, alpha, k, status, job_id, depth,
		                    phi, lambda, gamma, xi, conscious, stable, p_succ, delta_tau_eff, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("insert cell: %w", err)
	}
	return nil
}

// #endregion record-run

// #region queries

// ListRuns returns the most recent runs first. limit <= 0 returns all.
// started_at drops trailing fractional zeros, so ordering uses started_ns.
func (x *Index) ListRuns(limit int) ([]RunSummary, error) {
	q := `SELECT run_id, artifact_path, backend, started_at, outcome, ignited, best_index, reason,
	             phi_threshold, gamma_critical, results, failed
	      FROM runs ORDER BY started_ns DESC, run_id`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := x.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Run returns one run by ID.
func (x *Index) Run(runID string) (RunSummary, error) {
	row := x.db.QueryRow(
		`SELECT run_id, artifact_path, backend, started_at, outcome, ignited, best_index, reason,
		        phi_threshold, gamma_critical, results, failed
		 FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		return RunSummary{}, fmt.Errorf("run %s: %w", runID, err)
	}
	return r, nil
}

// Cells returns a run's cells: results first, then failed cells.
func (x *Index) Cells(runID string) ([]CellRow, error) {
	rows, err := x.db.Query(
		`SELECT position, alpha, k, status, job_id, depth, phi, lambda, gamma, xi,
		        conscious, stable, p_succ, delta_tau_eff, error
		 FROM cells WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cells: %w", err)
	}
	defer rows.Close()

	var out []CellRow
	for rows.Next() {
		var (
			c                   CellRow
			jobID, errText      sql.NullString
			depth               sql.NullInt64
			phi, lambda, gamma  sql.NullFloat64
			xi, pSucc, deltaTau sql.NullFloat64
			conscious, stable   sql.NullBool
		)
		if err := rows.Scan(&c.Position, &c.Alpha, &c.K, &c.Status, &jobID, &depth,
			&phi, &lambda, &gamma, &xi, &conscious, &stable, &pSucc, &deltaTau, &errText); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		c.JobID = jobID.String
		c.Depth = int(depth.Int64)
		c.Error = errText.String
		c.Phi = floatPtr(phi)
		c.Lambda = floatPtr(lambda)
		c.Gamma = floatPtr(gamma)
		c.Xi = floatPtr(xi)
		c.PSucc = floatPtr(pSucc)
		c.DeltaTauEff = floatPtr(deltaTau)
		c.Conscious = boolPtr(conscious)
		c.Stable = boolPtr(stable)
		out = append(out, c)
	}
	return out, rows.Err()
}

// #endregion queries

// #region helpers

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunSummary, error) {
	var (
		r                     RunSummary
		path, backend, reason sql.NullString
		started               string
	)
	if err := s.Scan(&r.RunID, &path, &backend, &started, &r.Outcome, &r.Ignited, &r.BestIndex, &reason,
		&r.PhiThreshold, &r.GammaCritical, &r.Results, &r.Failed); err != nil {
		return RunSummary{}, fmt.Errorf("scan run: %w", err)
	}
	r.ArtifactPath = path.String
	r.Backend = backend.String
	r.Reason = reason.String
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return RunSummary{}, fmt.Errorf("parse started_at: %w", err)
	}
	r.StartedAt = t
	return r, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

// #endregion helpers
