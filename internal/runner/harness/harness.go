// Package harness provides the execution backends an agent job runs on.
package harness

import "context"

// Job is one agent invocation: which CLI to drive and the prompt to feed it.
type Job struct {
	ID      string
	Type    string
	Harness string
	Prompt  string
}

// Result is the outcome of a finished invocation. Output is the agent's
// stdout in full; on a zero exit it becomes the job result.
type Result struct {
	Output   string
	ExitCode int
	Error    error
}

// Harness starts agent invocations.
// Implementations include local process execution and Docker.
type Harness interface {
	// Start begins an invocation and returns a handle.
	Start(ctx context.Context, job Job) (Handle, error)
}

// Handle represents a running invocation.
type Handle interface {
	// Wait blocks until the invocation finishes and returns its result.
	Wait(ctx context.Context) (Result, error)

	// Stop terminates the invocation.
	Stop(ctx context.Context) error
}
