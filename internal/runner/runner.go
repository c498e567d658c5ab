// Package runner contains the runner-specific logic for executing agent jobs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"baton/internal/runner/harness"
	"baton/pkg/api"
)

// Config holds configuration for the runner.
type Config struct {
	ID          string
	NamespaceID uuid.UUID
	Concurrency int
	// PollInterval is the floor of the adaptive poll backoff.
	PollInterval time.Duration
	MaxBackoff   time.Duration // Maximum backoff when the feed is empty (default: 30s)
	JobTimeout   time.Duration // Per-job wall clock limit (default: 30m)
}

// ControllerClient is the slice of the controller API the runner drives.
// *Client satisfies it; tests substitute a mock.
type ControllerClient interface {
	Ready(ctx context.Context, namespaceID uuid.UUID) ([]api.ReadyJobResponse, error)
	Claim(ctx context.Context, jobID string) (*api.JobResponse, error)
	Complete(ctx context.Context, jobID, result string) error
	Fail(ctx context.Context, jobID string, errMsg *string) error
	UpdateMetrics(ctx context.Context, jobID string, patch api.UpdateJobMetricsRequest) error
}

// Runner is the agent that runs the pull-loop for job execution. Each
// runner serves exactly one namespace.
type Runner struct {
	client  ControllerClient
	harness harness.Harness
	config  Config
	done    chan struct{}
}

// New creates a new runner.
func New(client ControllerClient, h harness.Harness, config Config) *Runner {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Minute
	}

	return &Runner{
		client:  client,
		harness: h,
		config:  config,
		done:    make(chan struct{}),
	}
}

// Run starts the main pull-loop. It blocks until the context is cancelled.
// On SIGTERM, it stops claiming new work and allows in-flight jobs to finish.
func (r *Runner) Run(ctx context.Context) error {
	log.Printf("Runner %s starting for namespace %s with concurrency %d",
		r.config.ID, r.config.NamespaceID, r.config.Concurrency)

	// Semaphore to limit concurrency
	sem := make(chan struct{}, r.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal when a slot becomes available (adaptive polling)
	pollNow := make(chan struct{}, 1)

	// Current backoff duration (increases on empty feed, resets on work found)
	currentBackoff := r.config.PollInterval

	// Helper to trigger immediate non-blocking re-poll
	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending
		}
	}

	// Initial poll
	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			log.Println("Context cancelled, waiting for running jobs to finish...")
			wg.Wait()
			close(r.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			// Timer-based poll (with backoff)
			triggerPoll()

		case <-pollNow:
			// Count available slots
			availableSlots := r.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			ready, err := r.client.Ready(ctx, r.config.NamespaceID)
			if err != nil {
				log.Printf("Ready poll error: %v", err)
				continue
			}

			if len(ready) == 0 {
				// Empty feed - increase backoff (exponential, capped at MaxBackoff)
				currentBackoff = currentBackoff * 2
				if currentBackoff > r.config.MaxBackoff {
					currentBackoff = r.config.MaxBackoff
				}
				continue
			}

			// Found work - reset backoff to minimum
			currentBackoff = r.config.PollInterval

			// Claim up to the available slots. The feed is shared, so a
			// lost claim just means another runner was faster.
			claimed := 0
			for _, item := range ready {
				if claimed >= availableSlots {
					break
				}

				job, err := r.client.Claim(ctx, item.Job.ID)
				if err != nil {
					if errors.Is(err, ErrClaimLost) {
						continue
					}
					log.Printf("Claim error for %s: %v", item.Job.ID, err)
					continue
				}
				item.Job = *job
				claimed++

				// Acquire semaphore slot
				sem <- struct{}{}

				wg.Add(1)
				go func(item api.ReadyJobResponse) {
					defer wg.Done()
					defer func() {
						<-sem
						// Signal that a slot is now available - trigger immediate re-poll
						triggerPoll()
					}()
					r.processJob(item)
				}(item)
			}

			if claimed > 0 {
				log.Printf("Claimed %d jobs", claimed)
			}

			// If we claimed jobs and there are still slots available, poll again immediately
			if claimed > 0 && claimed < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel that is closed when the runner has fully stopped.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// processJob drives a single claimed job through its harness.
func (r *Runner) processJob(item api.ReadyJobResponse) {
	// Start Span
	tracer := otel.Tracer("runner-agent")
	spanCtx, span := tracer.Start(context.Background(), "run_job",
		trace.WithAttributes(
			attribute.String("job.id", item.Job.ID),
			attribute.String("job.type", item.Job.Type),
			attribute.String("job.harness", item.Job.Harness),
			attribute.String("assignment.id", item.Job.AssignmentID),
			attribute.String("namespace.id", r.config.NamespaceID.String()),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	log.Printf("Running job %s (%s on %s)", item.Job.ID, item.Job.Type, item.Job.Harness)

	// The execution context is rooted in the span, not the poll context:
	// on SIGTERM in-flight jobs drain instead of dying mid-run.
	execCtx, cancel := context.WithTimeout(spanCtx, r.config.JobTimeout)
	defer cancel()

	start := time.Now()

	handle, err := r.harness.Start(execCtx, harness.Job{
		ID:      item.Job.ID,
		Type:    item.Job.Type,
		Harness: item.Job.Harness,
		Prompt:  buildPrompt(item),
	})
	if err != nil {
		log.Printf("Failed to start harness for %s: %v", item.Job.ID, err)
		span.RecordError(err)
		r.fail(item.Job.ID, fmt.Sprintf("Failed to start harness. %s", err.Error()))
		return
	}

	// Wait for result
	result, err := handle.Wait(execCtx)
	if err != nil {
		span.RecordError(err)

		// Check if this was a timeout
		if execCtx.Err() == context.DeadlineExceeded {
			log.Printf("Job %s timed out after %v", item.Job.ID, r.config.JobTimeout)
			// Forcefully stop the harness
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			handle.Stop(stopCtx)
			r.fail(item.Job.ID, fmt.Sprintf("Job timed out after %v", r.config.JobTimeout))
			return
		}

		log.Printf("Harness waiting error for %s: %v", item.Job.ID, err)
		r.fail(item.Job.ID, fmt.Sprintf("Harness waiting error: %v", err))
		return
	}

	span.SetAttributes(attribute.Int("exit_code", result.ExitCode))

	if result.ExitCode == 0 {
		log.Printf("Job %s completed in %v", item.Job.ID, time.Since(start).Round(time.Millisecond))
		// Metrics must land before the job turns terminal; terminal jobs
		// reject the patch.
		r.reportMetrics(item.Job.ID, int64(len(result.Output)))
		if err := r.client.Complete(context.Background(), item.Job.ID, result.Output); err != nil {
			log.Printf("Failed to report completion for %s: %v", item.Job.ID, err)
		}
		return
	}

	log.Printf("Job %s failed with code %d", item.Job.ID, result.ExitCode)
	errorMessage := fmt.Sprintf("Exit code %d", result.ExitCode)
	if result.Error != nil {
		errorMessage = result.Error.Error()
		span.RecordError(result.Error)
	}
	r.fail(item.Job.ID, errorMessage)
}

func (r *Runner) reportMetrics(jobID string, outputBytes int64) {
	patch := api.UpdateJobMetricsRequest{OutputBytes: &outputBytes}
	if err := r.client.UpdateMetrics(context.Background(), jobID, patch); err != nil {
		log.Printf("Failed to report metrics for %s: %v", jobID, err)
	}
}

func (r *Runner) fail(jobID, msg string) {
	if err := r.client.Fail(context.Background(), jobID, &msg); err != nil {
		log.Printf("Failed to report failure for %s: %v", jobID, err)
	}
}

// buildPrompt renders everything the controller handed over into the text
// fed to the agent: the assignment's north star, its durable decisions,
// the prior groups' results, then the job's own context and task prompt.
func buildPrompt(item api.ReadyJobResponse) string {
	var b strings.Builder

	b.WriteString("# North star\n")
	b.WriteString(item.NorthStar)
	b.WriteString("\n")

	if item.Decisions != "" {
		b.WriteString("\n# Decisions\n")
		b.WriteString(item.Decisions)
		b.WriteString("\n")
	}

	if len(item.Prior) > 0 {
		b.WriteString("\n# Prior results\n")
		for _, p := range item.Prior {
			fmt.Fprintf(&b, "\n[group %d] %s (%s):\n%s\n", p.GroupIndex, p.JobType, p.Harness, p.Result)
		}
	}

	if item.Job.Context != nil && *item.Job.Context != "" {
		b.WriteString("\n# Context\n")
		b.WriteString(*item.Job.Context)
		b.WriteString("\n")
	}

	b.WriteString("\n# Task\n")
	if item.Job.Prompt != nil && *item.Job.Prompt != "" {
		b.WriteString(*item.Job.Prompt)
	} else {
		fmt.Fprintf(&b, "Carry out the %s step for the assignment above.", item.Job.Type)
	}
	b.WriteString("\n")

	return b.String()
}
