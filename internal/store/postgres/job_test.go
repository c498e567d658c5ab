package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"baton/internal/store"
)

func TestMarkJobRunning_Claimed(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	id := uuid.New()
	at := time.Now()

	mock.ExpectExec(`UPDATE jobs SET status = \$1, started_at = \$2 WHERE id = \$3 AND status = \$4`).
		WithArgs(string(store.JobStatusRunning), at, id, string(store.JobStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.MarkJobRunning(ctx, nil, id, at)
	if err != nil {
		t.Fatalf("MarkJobRunning failed: %v", err)
	}
	if !ok {
		t.Error("expected claim to win, got ok=false")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMarkJobRunning_LostRace(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	id := uuid.New()

	// Zero rows affected means the job was no longer pending.
	mock.ExpectExec(`UPDATE jobs SET status`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.MarkJobRunning(ctx, nil, id, time.Now())
	if err != nil {
		t.Fatalf("MarkJobRunning failed: %v", err)
	}
	if ok {
		t.Error("expected claim to lose, got ok=true")
	}
}

func TestMarkJobTerminal_LocksGroupInsideTransaction(t *testing.T) {
	// Inside a transaction the parent group row is locked before the job
	// flips, so concurrent settles of one group serialize.
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	id := uuid.New()
	result := "all tests pass"

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT id FROM job_groups WHERE id = \(SELECT group_id FROM jobs WHERE id = \$1\) FOR UPDATE`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE jobs SET status = \$1, result = \$2, completed_at = \$3 WHERE id = \$4 AND status = \$5`).
		WithArgs(string(store.JobStatusComplete), &result, sqlmock.AnyArg(), id, string(store.JobStatusRunning)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	ok, err := s.MarkJobTerminal(ctx, tx, id, store.JobStatusComplete, &result, time.Now())
	if err != nil {
		t.Fatalf("MarkJobTerminal failed: %v", err)
	}
	if !ok {
		t.Error("expected transition to apply, got ok=false")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMarkJobTerminal_NotRunning(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	id := uuid.New()

	mock.ExpectExec(`UPDATE jobs SET status`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.MarkJobTerminal(ctx, nil, id, store.JobStatusFailed, nil, time.Now())
	if err != nil {
		t.Fatalf("MarkJobTerminal failed: %v", err)
	}
	if ok {
		t.Error("expected no transition for a non-running job")
	}
}

func TestUpdateJobMetrics_FrozenWhenTerminal(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	id := uuid.New()

	// The status guard keeps terminal rows untouched.
	mock.ExpectExec(`UPDATE jobs SET metrics = \$1 WHERE id = \$2 AND status IN \(\$3, \$4\)`).
		WithArgs(sqlmock.AnyArg(), id, string(store.JobStatusPending), string(store.JobStatusRunning)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.UpdateJobMetrics(ctx, nil, id, store.JobMetrics{OutputTokens: 10})
	if err != nil {
		t.Fatalf("UpdateJobMetrics failed: %v", err)
	}
	if ok {
		t.Error("expected metrics update to be rejected for terminal job")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetJobByID_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	id := uuid.New()
	groupID := uuid.New()
	assignmentID := uuid.New()
	nsID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM jobs WHERE id`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "group_id", "assignment_id", "namespace_id", "seq", "job_type", "harness",
			"context", "prompt", "status", "result", "metrics", "started_at", "completed_at", "created_at",
		}).AddRow(
			id.String(), groupID.String(), assignmentID.String(), nsID.String(), 0, "review", "claude",
			nil, "review the diff", "pending", nil, []byte(`{"input_tokens":5}`), nil, nil, now,
		))

	j, err := s.GetJobByID(ctx, nil, id)
	if err != nil {
		t.Fatalf("GetJobByID failed: %v", err)
	}
	if j.Type != store.JobTypeReview {
		t.Errorf("got type %s, want review", j.Type)
	}
	if j.Harness != store.HarnessClaude {
		t.Errorf("got harness %s, want claude", j.Harness)
	}
	if j.Metrics.InputTokens != 5 {
		t.Errorf("got input tokens %d, want 5", j.Metrics.InputTokens)
	}
	if j.Prompt == nil || *j.Prompt != "review the diff" {
		t.Errorf("got prompt %v, want 'review the diff'", j.Prompt)
	}
}

func TestGetJobByID_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()

	mock.ExpectQuery(`SELECT .* FROM jobs WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetJobByID(ctx, nil, uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestListRunningJobsOlderThan_QueryStructure(t *testing.T) {
	// Verify the reaper query pins the running status and the cutoff
	// comparison; a regression here would sweep live jobs.
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	cutoff := time.Now().Add(-30 * time.Minute)

	mock.ExpectQuery(`SELECT .* FROM jobs WHERE status = \$1 AND started_at < \$2 ORDER BY started_at ASC`).
		WithArgs(string(store.JobStatusRunning), cutoff).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "group_id", "assignment_id", "namespace_id", "seq", "job_type", "harness",
			"context", "prompt", "status", "result", "metrics", "started_at", "completed_at", "created_at",
		}))

	jobs, err := s.ListRunningJobsOlderThan(ctx, nil, cutoff)
	if err != nil {
		t.Fatalf("ListRunningJobsOlderThan failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
