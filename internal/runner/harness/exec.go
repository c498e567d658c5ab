package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// ExecHarness runs agent CLIs as local processes. The prompt goes in on
// stdin and the result is whatever the process writes to stdout.
type ExecHarness struct {
	// Commands maps a harness name to the command line to spawn. A
	// missing entry falls back to the harness name itself.
	Commands map[string]string

	// WorkDir is the base directory for per-job working directories.
	WorkDir string
}

// NewExecHarness creates a new process-based harness.
func NewExecHarness(commands map[string]string, workDir string) *ExecHarness {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "baton", "runner")
	}
	return &ExecHarness{Commands: commands, WorkDir: workDir}
}

// Start implements Harness.Start using os/exec.
func (h *ExecHarness) Start(ctx context.Context, job Job) (Handle, error) {
	if job.Harness == "" {
		return nil, fmt.Errorf("harness is required")
	}

	command := h.Commands[job.Harness]
	if command == "" {
		command = job.Harness
	}
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command configured for harness %q", job.Harness)
	}

	workDir := filepath.Join(h.WorkDir, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(job.Prompt)
	cmd.Env = append(os.Environ(),
		"BATON_JOB_ID="+job.ID,
		"BATON_JOB_TYPE="+job.Type,
		"BATON_HARNESS="+job.Harness,
	)

	handle := &ExecHandle{
		cmd:      cmd,
		finished: make(chan struct{}),
	}
	cmd.Stdout = &handle.stdout
	cmd.Stderr = &handle.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	go func() {
		handle.waitErr = cmd.Wait()
		close(handle.finished)
	}()

	return handle, nil
}

// ExecHandle represents a running process.
type ExecHandle struct {
	cmd      *exec.Cmd
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	finished chan struct{}
	waitErr  error
}

// Wait blocks until the process exits or the context ends. The output
// buffers are only safe to read after the process has exited.
func (h *ExecHandle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	case <-h.finished:
	}

	if h.waitErr == nil {
		return Result{Output: h.stdout.String(), ExitCode: 0}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(h.waitErr, &exitErr) {
		return Result{
			Output:   h.stdout.String(),
			ExitCode: exitErr.ExitCode(),
			Error:    stderrTail(&h.stderr),
		}, nil
	}
	return Result{ExitCode: -1, Error: h.waitErr}, h.waitErr
}

// Stop terminates the process: SIGTERM first, SIGKILL when the context
// runs out before the process exits.
func (h *ExecHandle) Stop(ctx context.Context) error {
	if h.cmd.Process == nil {
		return nil
	}

	select {
	case <-h.finished:
		return nil
	default:
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	select {
	case <-h.finished:
		return nil
	case <-ctx.Done():
		return h.cmd.Process.Kill()
	}
}

// stderrTail turns captured stderr into an error, trimmed to the last
// kilobyte so a chatty agent cannot flood the job's failure message.
func stderrTail(buf *bytes.Buffer) error {
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return nil
	}
	const max = 1024
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return errors.New(s)
}
