package sqlite

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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
			string(metrics),
			fmtTimePtr(j.StartedAt),
			fmtTimePtr(j.CompletedAt),
			fmtTime(j.CreatedAt),
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
	var jobContext, prompt, result, startedAt, completedAt sql.NullString
	var metrics, createdAt string
	err := row.Scan(
		&j.ID, &j.GroupID, &j.AssignmentID, &j.NamespaceID, &j.Seq, &j.Type, &j.Harness,
		&jobContext, &prompt, &j.Status, &result, &metrics, &startedAt, &completedAt, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	j.Context = strPtr(jobContext)
	j.Prompt = strPtr(prompt)
	j.Result = strPtr(result)
	if err := json.Unmarshal([]byte(metrics), &j.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics for job %s: %w", j.ID, err)
	}
	if j.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, err
	}
	if j.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Store) GetJobByID(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (*store.Job, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + jobColumns + " FROM jobs WHERE id = ?"
	return scanJob(executor.QueryRowContext(ctx, query, id))
}

func (s *Store) ListJobsByGroup(ctx context.Context, tx store.DBTransaction, groupID uuid.UUID) ([]store.Job, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + jobColumns + " FROM jobs WHERE group_id = ? ORDER BY seq ASC"
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
		"UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?",
		store.JobStatusRunning, fmtTime(at), id, store.JobStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) MarkJobTerminal(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.JobStatus, result *string, at time.Time) (bool, error) {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE jobs SET status = ?, result = ?, completed_at = ? WHERE id = ? AND status = ?",
		status, result, fmtTime(at), id, store.JobStatusRunning)
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
		"UPDATE jobs SET metrics = ? WHERE id = ? AND status IN (?, ?)",
		string(metrics), id, store.JobStatusPending, store.JobStatusRunning)
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
		"SELECT COUNT(*) FROM jobs WHERE assignment_id = ? AND status = ?",
		assignmentID, status).Scan(&n)
	return n, err
}

func (s *Store) ListRunningJobsOlderThan(ctx context.Context, tx store.DBTransaction, cutoff time.Time) ([]store.Job, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + jobColumns + " FROM jobs WHERE status = ? AND started_at < ? ORDER BY started_at ASC"
	rows, err := executor.QueryContext(ctx, query, store.JobStatusRunning, fmtTime(cutoff))
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
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs WHERE status = ?", status).Scan(&n)
	return n, err
}
