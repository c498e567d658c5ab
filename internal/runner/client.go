package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"baton/pkg/api"
)

// ErrClaimLost is returned by Claim when another runner won the race or
// the job's assignment cannot start right now.
var ErrClaimLost = errors.New("claim lost")

// Client talks to the controller's internal job API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the controller at baseURL. The token is
// the shared internal secret; empty sends no Authorization header.
func NewClient(baseURL, token string) *Client {
	// Ensure no trailing slash
	if len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ready fetches every job dispatchable right now for the namespace.
func (c *Client) Ready(ctx context.Context, namespaceID uuid.UUID) ([]api.ReadyJobResponse, error) {
	var resp api.ReadyJobsResponse
	if _, err := c.do(ctx, http.MethodGet, "/internal/jobs/ready?namespace="+namespaceID.String(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Claim moves a job to running on the controller. A conflict comes back
// as ErrClaimLost so the loop can just move on.
func (c *Client) Claim(ctx context.Context, jobID string) (*api.JobResponse, error) {
	var job api.JobResponse
	status, err := c.do(ctx, http.MethodPost, "/internal/jobs/"+jobID+"/claim", nil, &job)
	if err != nil {
		if status == http.StatusConflict {
			return nil, ErrClaimLost
		}
		return nil, err
	}
	return &job, nil
}

// Complete reports a successful result for the job.
func (c *Client) Complete(ctx context.Context, jobID, result string) error {
	_, err := c.do(ctx, http.MethodPost, "/internal/jobs/"+jobID+"/complete", api.CompleteJobRequest{Result: result}, nil)
	return err
}

// Fail reports a failed job with an optional error message.
func (c *Client) Fail(ctx context.Context, jobID string, errMsg *string) error {
	_, err := c.do(ctx, http.MethodPost, "/internal/jobs/"+jobID+"/fail", api.FailJobRequest{Error: errMsg}, nil)
	return err
}

// UpdateMetrics merges a metrics patch into a live job.
func (c *Client) UpdateMetrics(ctx context.Context, jobID string, patch api.UpdateJobMetricsRequest) error {
	_, err := c.do(ctx, http.MethodPatch, "/internal/jobs/"+jobID+"/metrics", patch, nil)
	return err
}

// do sends one request and decodes the response into out when non-nil.
// It returns the HTTP status so callers can special-case a code.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return resp.StatusCode, fmt.Errorf("api returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return resp.StatusCode, fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
