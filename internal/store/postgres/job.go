package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"baton/internal/store"
)

func (s *Store) CreateJobs(ctx context.Context, tx store.DBTransaction, jobs []*store.Job) error {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO jobs (id, group_id, assignment_id, namespace_id, seq, job_type, harness,
			context, prompt, status, result, metrics, started_at, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	for _, j := range jobs {
		metrics, err := json.Marshal(j.Metrics)
		if err != nil {
			return fmt.Errorf("marshal metrics for job %s: %w", j.ID, err)
		}
		_, err = executor.ExecContext(ctx, query,
			j.ID,
			j.GroupID,
			j.AssignmentID,
			j.NamespaceID,
			j.Seq,
			j.Type,
			j.Harness,
			j.Context,
			j.Prompt,
			j.Status,
			j.Result,
			metrics,
			j.StartedAt,
			j.CompletedAt,
			j.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

const jobColumns = `id, group_id, assignment_id, namespace_id, seq, job_type, harness,
	context, prompt, status, result, metrics, started_at, completed_at, created_at`

func scanJob(row rowScanner) (*store.Job, error) {
	var j store.Job
	var jobContext, prompt, result sql.NullString
	var metrics []byte
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.GroupID, &j.AssignmentID, &j.NamespaceID, &j.Seq, &j.Type, &j.Harness,
		&jobContext, &prompt, &j.Status, &result, &metrics, &startedAt, &completedAt, &j.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if jobContext.Valid {
		j.Context = &jobContext.String
	}
	if prompt.Valid {
		j.Prompt = &prompt.String
	}
	if result.Valid {
		j.Result = &result.String
	}
	if err := json.Unmarshal(metrics, &j.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics for job %s: %w", j.ID, err)
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func (s *Store) GetJobByID(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (*store.Job, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + jobColumns + " FROM jobs WHERE id = $1"
	return scanJob(executor.QueryRowContext(ctx, query, id))
}

func (s *Store) ListJobsByGroup(ctx context.Context, tx store.DBTransaction, groupID uuid.UUID) ([]store.Job, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + jobColumns + " FROM jobs WHERE group_id = $1 ORDER BY seq ASC"
	rows, err := executor.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (s *Store) MarkJobRunning(ctx context.Context, tx store.DBTransaction, id uuid.UUID, at time.Time) (bool, error) {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE jobs SET status = $1, started_at = $2 WHERE id = $3 AND status = $4",
		store.JobStatusRunning, at, id, store.JobStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) MarkJobTerminal(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.JobStatus, result *string, at time.Time) (bool, error) {
	executor := s.getExecutor(tx)
	// Lock the parent group row first. Two jobs of the same group finishing
	// concurrently must settle the group one after the other, or the later
	// settle reads a stale job set under read committed.
	if tx != nil {
		_, err := executor.ExecContext(ctx,
			"SELECT id FROM job_groups WHERE id = (SELECT group_id FROM jobs WHERE id = $1) FOR UPDATE",
			id)
		if err != nil {
			return false, err
		}
	}
	res, err := executor.ExecContext(ctx,
		"UPDATE jobs SET status = $1, result = $2, completed_at = $3 WHERE id = $4 AND status = $5",
		status, result, at, id, store.JobStatusRunning)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) UpdateJobMetrics(ctx context.Context, tx store.DBTransaction, id uuid.UUID, m store.JobMetrics) (bool, error) {
	executor := s.getExecutor(tx)
	metrics, err := json.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("marshal metrics for job %s: %w", id, err)
	}
	res, err := executor.ExecContext(ctx,
		"UPDATE jobs SET metrics = $1 WHERE id = $2 AND status IN ($3, $4)",
		metrics, id, store.JobStatusPending, store.JobStatusRunning)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) CountJobsByAssignment(ctx context.Context, tx store.DBTransaction, assignmentID uuid.UUID, status store.JobStatus) (int64, error) {
	executor := s.getExecutor(tx)
	var n int64
	err := executor.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM jobs WHERE assignment_id = $1 AND status = $2",
		assignmentID, status).Scan(&n)
	return n, err
}

func (s *Store) ListRunningJobsOlderThan(ctx context.Context, tx store.DBTransaction, cutoff time.Time) ([]store.Job, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + jobColumns + " FROM jobs WHERE status = $1 AND started_at < $2 ORDER BY started_at ASC"
	rows, err := executor.QueryContext(ctx, query, store.JobStatusRunning, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (s *Store) CountJobsByStatus(ctx context.Context, status store.JobStatus) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs WHERE status = $1", status).Scan(&n)
	return n, err
}
