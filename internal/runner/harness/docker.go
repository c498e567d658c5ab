package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerHarness runs agent CLIs inside per-harness container images.
type DockerHarness struct {
	client *client.Client

	// Images maps a harness name to the image to run. A missing entry
	// falls back to "baton/<harness>:latest".
	Images map[string]string
}

// NewDockerHarness creates a new Docker-based harness.
func NewDockerHarness(images map[string]string) (*DockerHarness, error) {
	// Initializes client from standard environment variables (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("Failed to create Docker client: %w", err)
	}
	return &DockerHarness{client: cli, Images: images}, nil
}

func (d *DockerHarness) imageFor(harness string) string {
	if img := d.Images[harness]; img != "" {
		return img
	}
	return fmt.Sprintf("baton/%s:latest", harness)
}

// Start implements Harness.Start using Docker containers. The prompt is
// streamed to the container's stdin, which closes once it is written.
func (d *DockerHarness) Start(ctx context.Context, job Job) (Handle, error) {
	if job.Harness == "" {
		return nil, fmt.Errorf("harness is required")
	}
	img := d.imageFor(job.Harness)

	// Ensure Image Exists
	// Check if it exists locally first to save time.
	_, err := d.client.ImageInspect(ctx, img)
	if err != nil {
		// If image doesn't exist locally, pull it.
		reader, err := d.client.ImagePull(ctx, img, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("Failed to pull image %s: %w", img, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	containerConfig := &container.Config{
		Image: img,
		Env: []string{
			"BATON_JOB_ID=" + job.ID,
			"BATON_JOB_TYPE=" + job.Type,
			"BATON_HARNESS=" + job.Harness,
		},
		OpenStdin:   true,
		StdinOnce:   true,
		AttachStdin: true,
	}
	containerResponse, err := d.client.ContainerCreate(ctx, containerConfig, nil, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("Failed to create container: %w", err)
	}

	attach, err := d.client.ContainerAttach(ctx, containerResponse.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to attach to container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, containerResponse.ID, container.StartOptions{}); err != nil {
		attach.Close()
		return nil, fmt.Errorf("Failed to start container: %w", err)
	}

	go func() {
		defer attach.Close()
		io.Copy(attach.Conn, strings.NewReader(job.Prompt))
		attach.CloseWrite()
	}()

	return &DockerHandle{
		client:      d.client,
		containerID: containerResponse.ID,
	}, nil
}

// DockerHandle represents a running container.
type DockerHandle struct {
	client      *client.Client
	containerID string
}

// Wait blocks until the container exits, then collects its output.
func (h *DockerHandle) Wait(ctx context.Context) (Result, error) {
	statusCh, errCh := h.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		return Result{ExitCode: -1, Error: err}, err
	case status := <-statusCh:
		stdout, stderr := h.collectOutput(ctx)
		h.remove()

		result := Result{
			Output:   stdout,
			ExitCode: int(status.StatusCode),
			Error:    stderrTail(stderr),
		}
		if status.Error != nil {
			result.Error = fmt.Errorf("%s", status.Error.Message)
		}
		return result, nil
	case <-ctx.Done():
		return Result{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

// Stop forcefully terminates the container.
func (h *DockerHandle) Stop(ctx context.Context) error {
	timeOut := 5
	return h.client.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &timeOut})
}

func (h *DockerHandle) collectOutput(ctx context.Context) (string, *bytes.Buffer) {
	rc, err := h.client.ContainerLogs(ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", &bytes.Buffer{}
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	stdcopy.StdCopy(&stdout, &stderr, rc)
	return stdout.String(), &stderr
}

// remove is best-effort; a container that lingers is an operator problem,
// not a job failure.
func (h *DockerHandle) remove() {
	h.client.ContainerRemove(context.Background(), h.containerID, container.RemoveOptions{Force: true})
}
