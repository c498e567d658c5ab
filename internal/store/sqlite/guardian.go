package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"baton/internal/store"
)

func (s *Store) CreateEvaluation(ctx context.Context, tx store.DBTransaction, e *store.GuardianEvaluation) error {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO guardian_evaluations (id, assignment_id, group_id, status, rationale, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := executor.ExecContext(ctx, query,
		e.ID,
		e.AssignmentID,
		e.GroupID,
		e.Status,
		e.Rationale,
		fmtTime(e.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("evaluation for group %s: %w", e.GroupID, store.ErrDuplicate)
	}
	return err
}

const evaluationColumns = `id, assignment_id, group_id, status, rationale, created_at`

func scanEvaluation(row rowScanner) (*store.GuardianEvaluation, error) {
	var e store.GuardianEvaluation
	var createdAt string
	err := row.Scan(&e.ID, &e.AssignmentID, &e.GroupID, &e.Status, &e.Rationale, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetEvaluationByGroup(ctx context.Context, tx store.DBTransaction, groupID uuid.UUID) (*store.GuardianEvaluation, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + evaluationColumns + " FROM guardian_evaluations WHERE group_id = ?"
	return scanEvaluation(executor.QueryRowContext(ctx, query, groupID))
}

func (s *Store) ListEvaluationsByAssignment(ctx context.Context, tx store.DBTransaction, assignmentID uuid.UUID) ([]store.GuardianEvaluation, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + evaluationColumns + " FROM guardian_evaluations WHERE assignment_id = ? ORDER BY created_at ASC"
	rows, err := executor.QueryContext(ctx, query, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.GuardianEvaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ListUnevaluatedGroups finds the terminal reporting groups of
// guardian-monitored assignments that have no evaluation on record.
func (s *Store) ListUnevaluatedGroups(ctx context.Context, tx store.DBTransaction, namespaceID uuid.UUID, reportingTypes []store.JobType) ([]store.JobGroup, error) {
	if len(reportingTypes) == 0 {
		return nil, nil
	}
	executor := s.getExecutor(tx)
	query := `
		SELECT g.id, g.assignment_id, g.namespace_id, g.next_group_id, g.status, g.aggregated_result, g.created_at, g.updated_at
		FROM job_groups g
		JOIN chat_threads t ON t.assignment_id = g.assignment_id
		WHERE g.namespace_id = ?
		  AND g.status IN (?, ?)
		  AND t.mode = ?
		  AND EXISTS (
			SELECT 1 FROM jobs j
			WHERE j.group_id = g.id AND j.job_type IN (` + placeholders(len(reportingTypes)) + `)
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM guardian_evaluations ev WHERE ev.group_id = g.id
		  )
		ORDER BY g.created_at ASC, g.id ASC
	`
	args := []interface{}{
		namespaceID,
		store.GroupStatusComplete,
		store.GroupStatusFailed,
		store.ThreadModeGuardian,
	}
	for _, t := range reportingTypes {
		args = append(args, t)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.JobGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}
