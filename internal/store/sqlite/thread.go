package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"baton/internal/store"
)

func (s *Store) CreateThread(ctx context.Context, tx store.DBTransaction, t *store.ChatThread) error {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO chat_threads (id, namespace_id, assignment_id, mode, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := executor.ExecContext(ctx, query,
		t.ID,
		t.NamespaceID,
		uuidValue(t.AssignmentID),
		t.Mode,
		t.Title,
		fmtTime(t.CreatedAt),
		fmtTime(t.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("thread for assignment: %w", store.ErrDuplicate)
	}
	return err
}

const threadColumns = `id, namespace_id, assignment_id, mode, title, created_at, updated_at`

func scanThread(row rowScanner) (*store.ChatThread, error) {
	var t store.ChatThread
	var assignmentID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.NamespaceID, &assignmentID, &t.Mode, &t.Title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.AssignmentID, err = uuidPtr(assignmentID); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetThreadByID(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (*store.ChatThread, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + threadColumns + " FROM chat_threads WHERE id = ?"
	return scanThread(executor.QueryRowContext(ctx, query, id))
}

func (s *Store) GetThreadByAssignment(ctx context.Context, tx store.DBTransaction, assignmentID uuid.UUID) (*store.ChatThread, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + threadColumns + " FROM chat_threads WHERE assignment_id = ?"
	return scanThread(executor.QueryRowContext(ctx, query, assignmentID))
}

func (s *Store) UpdateThreadMode(ctx context.Context, tx store.DBTransaction, id uuid.UUID, mode store.ThreadMode, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE chat_threads SET mode = ?, updated_at = ? WHERE id = ?",
		mode, fmtTime(at), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
