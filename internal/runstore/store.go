package runstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
)

// Store provides SQLite-backed history of batch runs and merges
type Store struct {
	db *sql.DB
}

// RunSummary is one row of the run history
type RunSummary struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Phase      domain.RunPhase `json:"phase"`
	Total      int             `json:"total"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// MergeRecord is one merge attempt
type MergeRecord struct {
	ID            string
	SourceIDs     []string
	Dedupe        bool
	DeleteSources bool
	Success       bool
	Error         string
	Result        *domain.MergeResult
	CreatedAt     time.Time
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a run and its records, replacing an earlier save of the same run
func (s *Store) SaveRun(kind string, run *domain.BatchRun) error {
	if run == nil {
		return fmt.Errorf("nil run")
	}

	succeeded, failed := 0, 0
	for _, rec := range run.Items {
		if rec.Status == domain.JobSuccess {
			succeeded++
		} else if rec.Status == domain.JobFailed {
			failed++
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO batch_runs (id, kind, phase, total, succeeded, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			finished_at = excluded.finished_at
	`,
		run.ID,
		kind,
		string(run.Phase),
		run.Total(),
		succeeded,
		failed,
		run.StartedAt,
		nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM job_records WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	for i, rec := range run.Items {
		_, err := tx.Exec(`
			INSERT INTO job_records (run_id, position, item_kind, item_id, group_id, label, status, error, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			i,
			string(rec.Item.Kind),
			rec.Item.ID,
			rec.Item.GroupID,
			rec.Item.Label,
			string(rec.Status),
			rec.Error,
			nullTime(rec.StartedAt),
			nullTime(rec.FinishedAt),
		)
		if err != nil {
			return fmt.Errorf("saving record %d of run %s: %w", i, run.ID, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, kind, phase, total, succeeded, failed, started_at, finished_at
		FROM batch_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var phase string
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Kind, &phase, &r.Total, &r.Succeeded, &r.Failed, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		r.Phase = domain.RunPhase(phase)
		r.FinishedAt = timePtr(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads a run with its records in submission order
func (s *Store) GetRun(id string) (*domain.BatchRun, error) {
	var run domain.BatchRun
	var phase string
	var finished sql.NullTime
	err := s.db.QueryRow(`
		SELECT id, phase, started_at, finished_at FROM batch_runs WHERE id = ?
	`, id).Scan(&run.ID, &phase, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	run.Phase = domain.RunPhase(phase)
	run.FinishedAt = timePtr(finished)

	rows, err := s.db.Query(`
		SELECT item_kind, item_id, group_id, label, status, error, started_at, finished_at
		FROM job_records WHERE run_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec domain.JobRecord
		var kind, status string
		var group, label, errMsg sql.NullString
		var started, done sql.NullTime
		if err := rows.Scan(&kind, &rec.Item.ID, &group, &label, &status, &errMsg, &started, &done); err != nil {
			return nil, err
		}
		rec.Item.Kind = domain.ItemKind(kind)
		rec.Item.GroupID = group.String
		rec.Item.Label = label.String
		rec.Status = domain.JobStatus(status)
		rec.Error = errMsg.String
		rec.StartedAt = timePtr(started)
		rec.FinishedAt = timePtr(done)
		if rec.Status != domain.JobPending {
			run.Cursor++
		}
		run.Items = append(run.Items, rec)
	}
	return &run, rows.Err()
}

// SaveMerge stores one merge attempt
func (s *Store) SaveMerge(m MergeRecord) error {
	sourcesJSON, err := json.Marshal(m.SourceIDs)
	if err != nil {
		return err
	}
	var total, deduped int
	var paths []string
	if m.Result != nil {
		total = m.Result.TotalMessages
		deduped = m.Result.DeduplicatedMessages
		paths = m.Result.OutputPaths
	}
	pathsJSON, err := json.Marshal(paths)
	if err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO merges (id, source_ids, dedupe, delete_sources, success, error, total_messages, deduplicated_messages, output_paths, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID,
		string(sourcesJSON),
		m.Dedupe,
		m.DeleteSources,
		m.Success,
		m.Error,
		total,
		deduped,
		string(pathsJSON),
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving merge %s: %w", m.ID, err)
	}
	return nil
}

// ListMerges returns the most recent merges first
func (s *Store) ListMerges(limit int) ([]MergeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, source_ids, dedupe, delete_sources, success, error, total_messages, deduplicated_messages, output_paths, created_at
		FROM merges ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var merges []MergeRecord
	for rows.Next() {
		var m MergeRecord
		var sourcesJSON, pathsJSON string
		var errMsg sql.NullString
		var total, deduped int
		if err := rows.Scan(&m.ID, &sourcesJSON, &m.Dedupe, &m.DeleteSources, &m.Success, &errMsg, &total, &deduped, &pathsJSON, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &m.SourceIDs); err != nil {
			return nil, err
		}
		m.Error = errMsg.String
		if m.Success {
			m.Result = &domain.MergeResult{
				SourceCount:          len(m.SourceIDs),
				TotalMessages:        total,
				DeduplicatedMessages: deduped,
			}
			if pathsJSON != "" && pathsJSON != "null" {
				if err := json.Unmarshal([]byte(pathsJSON), &m.Result.OutputPaths); err != nil {
					return nil, err
				}
			}
		}
		merges = append(merges, m)
	}
	return merges, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
