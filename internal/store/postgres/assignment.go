package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"baton/internal/store"
)

func (s *Store) CreateAssignment(ctx context.Context, tx store.DBTransaction, a *store.Assignment) error {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO assignments (id, namespace_id, north_star, status, blocked_reason, alignment,
			independent, priority, artifacts, decisions, head_group_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	var alignment interface{}
	if a.Alignment != nil {
		alignment = string(*a.Alignment)
	}
	_, err := executor.ExecContext(ctx, query,
		a.ID,
		a.NamespaceID,
		a.NorthStar,
		a.Status,
		a.BlockedReason,
		alignment,
		a.Independent,
		a.Priority,
		a.Artifacts,
		a.Decisions,
		a.HeadGroupID,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

const assignmentColumns = `id, namespace_id, north_star, status, blocked_reason, alignment,
	independent, priority, artifacts, decisions, head_group_id, created_at, updated_at`

func scanAssignment(row rowScanner) (*store.Assignment, error) {
	var a store.Assignment
	var blockedReason, alignment sql.NullString
	var headGroup uuid.NullUUID
	err := row.Scan(
		&a.ID, &a.NamespaceID, &a.NorthStar, &a.Status, &blockedReason, &alignment,
		&a.Independent, &a.Priority, &a.Artifacts, &a.Decisions, &headGroup,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if blockedReason.Valid {
		a.BlockedReason = &blockedReason.String
	}
	if alignment.Valid {
		al := store.Alignment(alignment.String)
		a.Alignment = &al
	}
	if headGroup.Valid {
		id := headGroup.UUID
		a.HeadGroupID = &id
	}
	return &a, nil
}

func (s *Store) GetAssignmentByID(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (*store.Assignment, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + assignmentColumns + " FROM assignments WHERE id = $1"
	return scanAssignment(executor.QueryRowContext(ctx, query, id))
}

func (s *Store) ListAssignmentsByNamespace(ctx context.Context, tx store.DBTransaction, namespaceID uuid.UUID, statuses []store.AssignmentStatus) ([]store.Assignment, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + assignmentColumns + " FROM assignments WHERE namespace_id = $1"
	args := []interface{}{namespaceID}
	if len(statuses) > 0 {
		query += " AND status = ANY($2)"
		filter := make([]string, len(statuses))
		for i, st := range statuses {
			filter[i] = string(st)
		}
		args = append(args, pq.Array(filter))
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) LockSequentialAssignments(ctx context.Context, tx store.DBTransaction, namespaceID uuid.UUID) error {
	if tx == nil {
		return nil
	}
	executor := s.getExecutor(tx)
	// Row locks on the namespace's sequential assignments. Two transactions
	// activating different sequential assignments would otherwise each pass
	// the no-other-active check under read committed and both commit.
	_, err := executor.ExecContext(ctx,
		"SELECT id FROM assignments WHERE namespace_id = $1 AND NOT independent FOR UPDATE",
		namespaceID)
	return err
}

func (s *Store) UpdateAssignmentStatus(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.AssignmentStatus, blockedReason *string, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE assignments SET status = $1, blocked_reason = $2, updated_at = $3 WHERE id = $4",
		status, blockedReason, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) UpdateAssignmentAlignment(ctx context.Context, tx store.DBTransaction, id uuid.UUID, alignment store.Alignment, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE assignments SET alignment = $1, updated_at = $2 WHERE id = $3",
		alignment, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetAssignmentHead(ctx context.Context, tx store.DBTransaction, id uuid.UUID, head uuid.UUID, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE assignments SET head_group_id = $1, updated_at = $2 WHERE id = $3",
		head, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetAssignmentArtifacts(ctx context.Context, tx store.DBTransaction, id uuid.UUID, artifacts string, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE assignments SET artifacts = $1, updated_at = $2 WHERE id = $3",
		artifacts, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetAssignmentDecisions(ctx context.Context, tx store.DBTransaction, id uuid.UUID, decisions string, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE assignments SET decisions = $1, updated_at = $2 WHERE id = $3",
		decisions, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
