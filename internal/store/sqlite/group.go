package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"baton/internal/store"
)

func (s *Store) CreateGroup(ctx context.Context, tx store.DBTransaction, g *store.JobGroup) error {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO job_groups (id, assignment_id, namespace_id, next_group_id, status, aggregated_result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := executor.ExecContext(ctx, query,
		g.ID,
		g.AssignmentID,
		g.NamespaceID,
		uuidValue(g.NextGroupID),
		g.Status,
		g.AggregatedResult,
		fmtTime(g.CreatedAt),
		fmtTime(g.UpdatedAt),
	)
	return err
}

const groupColumns = `id, assignment_id, namespace_id, next_group_id, status, aggregated_result, created_at, updated_at`

func scanGroup(row rowScanner) (*store.JobGroup, error) {
	var g store.JobGroup
	var next, aggregated sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&g.ID, &g.AssignmentID, &g.NamespaceID, &next, &g.Status, &aggregated, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if g.NextGroupID, err = uuidPtr(next); err != nil {
		return nil, err
	}
	g.AggregatedResult = strPtr(aggregated)
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) GetGroupByID(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (*store.JobGroup, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + groupColumns + " FROM job_groups WHERE id = ?"
	return scanGroup(executor.QueryRowContext(ctx, query, id))
}

func (s *Store) SetGroupNext(ctx context.Context, tx store.DBTransaction, id uuid.UUID, next *uuid.UUID, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE job_groups SET next_group_id = ?, updated_at = ? WHERE id = ?",
		uuidValue(next), fmtTime(at), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) UpdateGroupStatus(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.GroupStatus, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE job_groups SET status = ?, updated_at = ? WHERE id = ?",
		status, fmtTime(at), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) FinalizeGroup(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.GroupStatus, aggregated string, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE job_groups SET status = ?, aggregated_result = ?, updated_at = ? WHERE id = ?",
		status, aggregated, fmtTime(at), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) ListGroupsByAssignment(ctx context.Context, tx store.DBTransaction, assignmentID uuid.UUID) ([]store.JobGroup, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + groupColumns + " FROM job_groups WHERE assignment_id = ? ORDER BY created_at ASC, id ASC"
	rows, err := executor.QueryContext(ctx, query, assignmentID)
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
