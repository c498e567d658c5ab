package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"baton/internal/store"
)

func (s *Store) CreateAssignment(ctx context.Context, tx store.DBTransaction, a *store.Assignment) error {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO assignments (id, namespace_id, north_star, status, blocked_reason, alignment,
			independent, priority, artifacts, decisions, head_group_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		uuidValue(a.HeadGroupID),
		fmtTime(a.CreatedAt),
		fmtTime(a.UpdatedAt),
	)
	return err
}

const assignmentColumns = `id, namespace_id, north_star, status, blocked_reason, alignment,
	independent, priority, artifacts, decisions, head_group_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAssignment(row rowScanner) (*store.Assignment, error) {
	var a store.Assignment
	var blockedReason, alignment, headGroup sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(
		&a.ID, &a.NamespaceID, &a.NorthStar, &a.Status, &blockedReason, &alignment,
		&a.Independent, &a.Priority, &a.Artifacts, &a.Decisions, &headGroup,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.BlockedReason = strPtr(blockedReason)
	if alignment.Valid {
		al := store.Alignment(alignment.String)
		a.Alignment = &al
	}
	if a.HeadGroupID, err = uuidPtr(headGroup); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAssignmentByID(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (*store.Assignment, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + assignmentColumns + " FROM assignments WHERE id = ?"
	return scanAssignment(executor.QueryRowContext(ctx, query, id))
}

func (s *Store) ListAssignmentsByNamespace(ctx context.Context, tx store.DBTransaction, namespaceID uuid.UUID, statuses []store.AssignmentStatus) ([]store.Assignment, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + assignmentColumns + " FROM assignments WHERE namespace_id = ?"
	args := []interface{}{namespaceID}
	if len(statuses) > 0 {
		query += " AND status IN (" + placeholders(len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, st)
		}
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

// LockSequentialAssignments is a no-op here: the store runs every
// transaction on its single connection, so activations already serialize.
func (s *Store) LockSequentialAssignments(ctx context.Context, tx store.DBTransaction, namespaceID uuid.UUID) error {
	return nil
}

func (s *Store) UpdateAssignmentStatus(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.AssignmentStatus, blockedReason *string, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE assignments SET status = ?, blocked_reason = ?, updated_at = ? WHERE id = ?",
		status, blockedReason, fmtTime(at), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) UpdateAssignmentAlignment(ctx context.Context, tx store.DBTransaction, id uuid.UUID, alignment store.Alignment, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE assignments SET alignment = ?, updated_at = ? WHERE id = ?",
		alignment, fmtTime(at), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetAssignmentHead(ctx context.Context, tx store.DBTransaction, id uuid.UUID, head uuid.UUID, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE assignments SET head_group_id = ?, updated_at = ? WHERE id = ?",
		head, fmtTime(at), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetAssignmentArtifacts(ctx context.Context, tx store.DBTransaction, id uuid.UUID, artifacts string, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE assignments SET artifacts = ?, updated_at = ? WHERE id = ?",
		artifacts, fmtTime(at), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetAssignmentDecisions(ctx context.Context, tx store.DBTransaction, id uuid.UUID, decisions string, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE assignments SET decisions = ?, updated_at = ? WHERE id = ?",
		decisions, fmtTime(at), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
