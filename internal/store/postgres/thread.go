package postgres

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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := executor.ExecContext(ctx, query,
		t.ID,
		t.NamespaceID,
		t.AssignmentID,
		t.Mode,
		t.Title,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("thread for assignment: %w", store.ErrDuplicate)
	}
	return err
}

const threadColumns = `id, namespace_id, assignment_id, mode, title, created_at, updated_at`

func scanThread(row rowScanner) (*store.ChatThread, error) {
	var t store.ChatThread
	var assignmentID uuid.NullUUID
	err := row.Scan(&t.ID, &t.NamespaceID, &assignmentID, &t.Mode, &t.Title, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if assignmentID.Valid {
		id := assignmentID.UUID
		t.AssignmentID = &id
	}
	return &t, nil
}

func (s *Store) GetThreadByID(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (*store.ChatThread, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + threadColumns + " FROM chat_threads WHERE id = $1"
	return scanThread(executor.QueryRowContext(ctx, query, id))
}

func (s *Store) GetThreadByAssignment(ctx context.Context, tx store.DBTransaction, assignmentID uuid.UUID) (*store.ChatThread, error) {
	executor := s.getExecutor(tx)
	query := "SELECT " + threadColumns + " FROM chat_threads WHERE assignment_id = $1"
	return scanThread(executor.QueryRowContext(ctx, query, assignmentID))
}

func (s *Store) UpdateThreadMode(ctx context.Context, tx store.DBTransaction, id uuid.UUID, mode store.ThreadMode, at time.Time) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx,
		"UPDATE chat_threads SET mode = $1, updated_at = $2 WHERE id = $3",
		mode, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
