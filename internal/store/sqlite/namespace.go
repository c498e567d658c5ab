package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"baton/internal/store"
)

func (s *Store) CreateNamespace(ctx context.Context, tx store.DBTransaction, ns *store.Namespace, keyHash string) error {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO namespaces (id, name, description, api_key_hash, rate_limit, rate_limit_burst, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := executor.ExecContext(ctx, query,
		ns.ID,
		ns.Name,
		ns.Description,
		keyHash,
		ns.RateLimit,
		ns.RateLimitBurst,
		fmtTime(ns.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("namespace %q: %w", ns.Name, store.ErrDuplicate)
	}
	return err
}

const namespaceColumns = `id, name, description, rate_limit, rate_limit_burst, created_at`

func scanNamespace(row *sql.Row) (*store.Namespace, error) {
	var ns store.Namespace
	var createdAt string
	err := row.Scan(&ns.ID, &ns.Name, &ns.Description, &ns.RateLimit, &ns.RateLimitBurst, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ns.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &ns, nil
}

func (s *Store) GetNamespaceByID(ctx context.Context, id uuid.UUID) (*store.Namespace, error) {
	query := "SELECT " + namespaceColumns + " FROM namespaces WHERE id = ?"
	return scanNamespace(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) GetNamespaceByName(ctx context.Context, name string) (*store.Namespace, error) {
	query := "SELECT " + namespaceColumns + " FROM namespaces WHERE name = ?"
	return scanNamespace(s.db.QueryRowContext(ctx, query, name))
}

func (s *Store) GetNamespaceByAPIKeyHash(ctx context.Context, hash string) (*store.Namespace, error) {
	query := "SELECT " + namespaceColumns + " FROM namespaces WHERE api_key_hash = ?"
	return scanNamespace(s.db.QueryRowContext(ctx, query, hash))
}

func (s *Store) UpdateNamespaceDescription(ctx context.Context, tx store.DBTransaction, id uuid.UUID, description string) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx, "UPDATE namespaces SET description = ? WHERE id = ?", description, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) DeleteNamespace(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error {
	executor := s.getExecutor(tx)
	if _, err := executor.ExecContext(ctx, "DELETE FROM chat_threads WHERE namespace_id = ?", id); err != nil {
		return err
	}
	if _, err := executor.ExecContext(ctx, "DELETE FROM namespace_counters WHERE namespace_id = ?", id); err != nil {
		return err
	}
	res, err := executor.ExecContext(ctx, "DELETE FROM namespaces WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) CountAssignmentsInNamespace(ctx context.Context, tx store.DBTransaction, namespaceID uuid.UUID) (int64, error) {
	executor := s.getExecutor(tx)
	var n int64
	err := executor.QueryRowContext(ctx, "SELECT COUNT(*) FROM assignments WHERE namespace_id = ?", namespaceID).Scan(&n)
	return n, err
}

// requireRow maps a zero-row update or delete onto ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
