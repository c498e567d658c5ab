package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"baton/internal/store"
)

func (s *Store) BumpJobCounters(ctx context.Context, tx store.DBTransaction, namespaceID uuid.UUID, d store.CounterDelta) error {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO namespace_counters (namespace_id, jobs_pending, jobs_running, jobs_complete, jobs_failed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (namespace_id) DO UPDATE SET
			jobs_pending  = namespace_counters.jobs_pending  + EXCLUDED.jobs_pending,
			jobs_running  = namespace_counters.jobs_running  + EXCLUDED.jobs_running,
			jobs_complete = namespace_counters.jobs_complete + EXCLUDED.jobs_complete,
			jobs_failed   = namespace_counters.jobs_failed   + EXCLUDED.jobs_failed
	`
	_, err := executor.ExecContext(ctx, query, namespaceID, d.Pending, d.Running, d.Complete, d.Failed)
	return err
}

func (s *Store) GetNamespaceCounters(ctx context.Context, namespaceID uuid.UUID) (*store.NamespaceCounters, error) {
	query := `
		SELECT jobs_pending, jobs_running, jobs_complete, jobs_failed
		FROM namespace_counters
		WHERE namespace_id = $1
	`
	c := &store.NamespaceCounters{NamespaceID: namespaceID}
	err := s.db.QueryRowContext(ctx, query, namespaceID).Scan(&c.JobsPending, &c.JobsRunning, &c.JobsComplete, &c.JobsFailed)
	if errors.Is(err, sql.ErrNoRows) {
		// no jobs were ever inserted for this namespace
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
