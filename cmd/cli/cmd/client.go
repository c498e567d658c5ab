package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"baton/pkg/api"
)

// ControlClient handles API calls to the baton controller.
type ControlClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewControlClient creates a new client with the given base URL and token.
func NewControlClient(baseURL, token string) *ControlClient {
	return &ControlClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// doJSON sends one request and decodes the response into out (skipped when
// out is nil). Non-2xx responses come back as *APIError with the raw body.
func (c *ControlClient) doJSON(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// CreateNamespace sends POST /namespaces. The response carries the API key;
// it is shown once and never retrievable again.
func (c *ControlClient) CreateNamespace(req api.CreateNamespaceRequest) (*api.CreateNamespaceResponse, error) {
	var result api.CreateNamespaceResponse
	if err := c.doJSON(http.MethodPost, "/namespaces", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetNamespace sends GET /namespaces/{name} to retrieve the namespace and
// its job counters.
func (c *ControlClient) GetNamespace(name string) (*api.NamespaceResponse, error) {
	var result api.NamespaceResponse
	if err := c.doJSON(http.MethodGet, "/namespaces/"+name, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteNamespace sends DELETE /namespaces/{name}. The controller refuses
// while the namespace still holds assignments.
func (c *ControlClient) DeleteNamespace(name string) error {
	return c.doJSON(http.MethodDelete, "/namespaces/"+name, nil, nil)
}

// CreateAssignment sends POST /assignments to open a new assignment.
func (c *ControlClient) CreateAssignment(req api.CreateAssignmentRequest) (*api.AssignmentResponse, error) {
	var result api.AssignmentResponse
	if err := c.doJSON(http.MethodPost, "/assignments", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAssignments sends GET /assignments. status is an optional
// comma-separated filter.
func (c *ControlClient) ListAssignments(status string) ([]api.AssignmentResponse, error) {
	path := "/assignments"
	if status != "" {
		path += "?status=" + status
	}
	var result []api.AssignmentResponse
	if err := c.doJSON(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetChain sends GET /assignments/{id}/chain: the assignment plus every
// group in link order, jobs included.
func (c *ControlClient) GetChain(assignmentID string) (*api.ChainResponse, error) {
	var result api.ChainResponse
	if err := c.doJSON(http.MethodGet, fmt.Sprintf("/assignments/%s/chain", assignmentID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EnqueueGroup sends POST /assignments/{id}/groups to chain a job group.
func (c *ControlClient) EnqueueGroup(assignmentID string, req api.EnqueueGroupRequest) (*api.EnqueueGroupResponse, error) {
	var result api.EnqueueGroupResponse
	if err := c.doJSON(http.MethodPost, fmt.Sprintf("/assignments/%s/groups", assignmentID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BlockAssignment sends POST /assignments/{id}/block.
func (c *ControlClient) BlockAssignment(assignmentID, reason string) (*api.AssignmentResponse, error) {
	var result api.AssignmentResponse
	req := api.BlockAssignmentRequest{Reason: reason}
	if err := c.doJSON(http.MethodPost, fmt.Sprintf("/assignments/%s/block", assignmentID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UnblockAssignment sends POST /assignments/{id}/unblock.
func (c *ControlClient) UnblockAssignment(assignmentID string) (*api.AssignmentResponse, error) {
	var result api.AssignmentResponse
	if err := c.doJSON(http.MethodPost, fmt.Sprintf("/assignments/%s/unblock", assignmentID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CompleteAssignment sends POST /assignments/{id}/complete.
func (c *ControlClient) CompleteAssignment(assignmentID string) (*api.AssignmentResponse, error) {
	var result api.AssignmentResponse
	if err := c.doJSON(http.MethodPost, fmt.Sprintf("/assignments/%s/complete", assignmentID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RecordDecision sends POST /assignments/{id}/decisions.
func (c *ControlClient) RecordDecision(assignmentID, decision string) (*api.AssignmentResponse, error) {
	var result api.AssignmentResponse
	req := api.RecordDecisionRequest{Decision: decision}
	if err := c.doJSON(http.MethodPost, fmt.Sprintf("/assignments/%s/decisions", assignmentID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReadyJobs sends GET /jobs/ready: every job dispatchable right now for the
// authenticated namespace.
func (c *ControlClient) ReadyJobs() ([]api.ReadyJobResponse, error) {
	var result api.ReadyJobsResponse
	if err := c.doJSON(http.MethodGet, "/jobs/ready", nil, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// PendingEvaluations sends GET /guardian/pending: terminal reporting groups
// still awaiting a guardian verdict.
func (c *ControlClient) PendingEvaluations() ([]api.PendingEvaluationResponse, error) {
	var result api.PendingEvaluationsResponse
	if err := c.doJSON(http.MethodGet, "/guardian/pending", nil, &result); err != nil {
		return nil, err
	}
	return result.Evaluations, nil
}

// ListEvaluations sends GET /assignments/{id}/evaluations.
func (c *ControlClient) ListEvaluations(assignmentID string) ([]api.EvaluationResponse, error) {
	var result []api.EvaluationResponse
	if err := c.doJSON(http.MethodGet, fmt.Sprintf("/assignments/%s/evaluations", assignmentID), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyAlignment sends POST /assignments/{id}/alignment with a verdict.
func (c *ControlClient) ApplyAlignment(assignmentID string, req api.ApplyAlignmentRequest) (*api.EvaluationResponse, error) {
	var result api.EvaluationResponse
	if err := c.doJSON(http.MethodPost, fmt.Sprintf("/assignments/%s/alignment", assignmentID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ControlClient) CreateThread(req api.CreateThreadRequest) (*api.ThreadResponse, error) {
	var result api.ThreadResponse
	if err := c.doJSON(http.MethodPost, "/threads", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ControlClient) SetThreadMode(threadID string, req api.SetThreadModeRequest) (*api.ThreadResponse, error) {
	var result api.ThreadResponse
	if err := c.doJSON(http.MethodPost, fmt.Sprintf("/threads/%s/mode", threadID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Reap sends POST /internal/reap. Requires the controller's internal token,
// not a namespace API key.
func (c *ControlClient) Reap() (*api.ReapResponse, error) {
	var result api.ReapResponse
	if err := c.doJSON(http.MethodPost, "/internal/reap", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
