package postgres

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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := executor.ExecContext(ctx, query,
		g.ID,
		g.AssignmentID,
		g.NamespaceID,
		g.NextGroupID,
		g.Status,
		g.AggregatedResult,
		g.CreatedAt,
		g.UpdatedAt,
	)
	return err
}

const groupColumns = `id, assignment_id, namespace_id, next_group_id, status, aggregated_result, created_at, updated_at`

func scanGroup(row rowScanner) (*store.JobGroup, error) {
	var g store.JobGroup
	var next uuid.NullUUID
	var aggregated sql.NullString
	err := row.Scan(&g.ID, &g.AssignmentID, &g.NamespaceID, &next, &g.Status, &aggregated, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if next.Valid {
		id := next.UUID
		g.NextGroupID = &id
	}
	if aggregated.Valid {
		g.AggregatedResult = &aggregated.String
	}
	return &g, nil
}

func (s *Store) GetGroupByID(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (*store.JobGroup, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + groupColumns + " FROM job_groups WHERE id = $1"
	return scanGroup(executor.QueryRowContext(ctx, query, id))
}

func (s *Store) SetGroupNext(ctx context.Context, tx store.DBTransaction, id uuid.UUID, next *uuid.UUID, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE job_groups SET next_group_id = $1, updated_at = $2 WHERE id = $3",
		next, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) UpdateGroupStatus(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.GroupStatus, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE job_groups SET status = $1, updated_at = $2 WHERE id = $3",
		status, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) FinalizeGroup(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.GroupStatus, aggregated string, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE job_groups SET status = $1, aggregated_result = $2, updated_at = $3 WHERE id = $4",
		status, aggregated, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) ListGroupsByAssignment(ctx context.Context, tx store.DBTransaction, assignmentID uuid.UUID) ([]store.JobGroup, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + groupColumns + " FROM job_groups WHERE assignment_id = $1 ORDER BY created_at ASC, id ASC"
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
