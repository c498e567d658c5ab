package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"baton/internal/store"
)

const maxNamespaceNameLen = 64

// CreateNamespace registers a new isolation boundary. The caller generates
// the API key and passes only its hash; the plaintext never reaches the
// engine or the store.
func (e *Engine) CreateNamespace(ctx context.Context, name, description, keyHash string) (*store.Namespace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: namespace name is required", ErrInvalidInput)
	}
	if len(name) > maxNamespaceNameLen {
		return nil, fmt.Errorf("%w: namespace name exceeds %d characters", ErrInvalidInput, maxNamespaceNameLen)
	}
	if keyHash == "" {
		return nil, fmt.Errorf("%w: API key hash is required", ErrInvalidInput)
	}

	ns := &store.Namespace{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   e.now(),
	}
	if err := e.store.CreateNamespace(ctx, nil, ns, keyHash); err != nil {
		return nil, err
	}
	e.log.Info("namespace created", "namespace_id", ns.ID, "name", ns.Name)
	return ns, nil
}

// GetNamespace returns a namespace by ID.
func (e *Engine) GetNamespace(ctx context.Context, id uuid.UUID) (*store.Namespace, error) {
	return e.store.GetNamespaceByID(ctx, id)
}

// GetNamespaceByName returns a namespace by its unique name.
func (e *Engine) GetNamespaceByName(ctx context.Context, name string) (*store.Namespace, error) {
	return e.store.GetNamespaceByName(ctx, name)
}

// UpdateNamespaceDescription replaces the free-form description.
func (e *Engine) UpdateNamespaceDescription(ctx context.Context, id uuid.UUID, description string) error {
	if _, err := e.store.GetNamespaceByID(ctx, id); err != nil {
		return err
	}
	return e.store.UpdateNamespaceDescription(ctx, nil, id, description)
}

// DeleteNamespace removes a namespace that contains no assignments. A
// namespace with history refuses deletion so no chain is ever orphaned.
func (e *Engine) DeleteNamespace(ctx context.Context, id uuid.UUID) error {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	n, err := e.store.CountAssignmentsInNamespace(ctx, tx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: namespace has %d assignments", ErrConflict, n)
	}
	if err := e.store.DeleteNamespace(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	e.log.Info("namespace deleted", "namespace_id", id)
	return nil
}

// NamespaceCounters returns the denormalized job tallies for a namespace.
func (e *Engine) NamespaceCounters(ctx context.Context, id uuid.UUID) (*store.NamespaceCounters, error) {
	if _, err := e.store.GetNamespaceByID(ctx, id); err != nil {
		return nil, err
	}
	return e.store.GetNamespaceCounters(ctx, id)
}
