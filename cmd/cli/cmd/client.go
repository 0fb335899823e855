package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"testplane/pkg/api"
)

// Client handles API calls to the testplane controller.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new client for the controller at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
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

func apiError(status int, body []byte) *APIError {
	var e api.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return &APIError{StatusCode: status, Message: e.Error}
	}
	return &APIError{StatusCode: status, Message: string(bytes.TrimSpace(body))}
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Accept", "application/json")
	if in != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// CreateTestCase sends POST /test-cases.
func (c *Client) CreateTestCase(ctx context.Context, req api.CreateTestCaseRequest) (*api.CreateTestCaseResponse, error) {
	var result api.CreateTestCaseResponse
	if err := c.do(ctx, http.MethodPost, "/test-cases", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AddRevision sends POST /test-cases/{id}/revisions.
func (c *Client) AddRevision(ctx context.Context, testCaseID int64, nlText string) (*api.CreateTestCaseResponse, error) {
	var result api.CreateTestCaseResponse
	path := fmt.Sprintf("/test-cases/%d/revisions", testCaseID)
	if err := c.do(ctx, http.MethodPost, path, api.CreateRevisionRequest{NLText: nlText}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateProposal sends POST /proposals to start plan generation.
func (c *Client) CreateProposal(ctx context.Context, revisionID int64) (*api.ProposalResponse, error) {
	var result api.ProposalResponse
	if err := c.do(ctx, http.MethodPost, "/proposals", api.CreateProposalRequest{RevisionID: revisionID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetProposal sends GET /proposals/{id}.
func (c *Client) GetProposal(ctx context.Context, id int64) (*api.ProposalResponse, error) {
	var result api.ProposalResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/proposals/%d", id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkReady sends POST /proposals/{id}/ready.
func (c *Client) MarkReady(ctx context.Context, id int64) (*api.ProposalResponse, error) {
	var result api.ProposalResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/proposals/%d/ready", id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateRun sends POST /runs.
func (c *Client) CreateRun(ctx context.Context, req api.CreateRunRequest) (*api.RunResponse, error) {
	var result api.RunResponse
	if err := c.do(ctx, http.MethodPost, "/runs", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRun sends GET /runs/{id}.
func (c *Client) GetRun(ctx context.Context, id int64) (*api.RunResponse, error) {
	var result api.RunResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/runs/%d", id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DownloadArtifact fetches a run artifact into path, following the presigned
// redirect when storage is remote.
func (c *Client) DownloadArtifact(ctx context.Context, runID int64, kind, path string) (int64, error) {
	endpoint := fmt.Sprintf("%s/runs/%d/artifacts/%s", c.BaseURL, runID, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	// Videos can outlast the default client timeout.
	client := *c.HTTPClient
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return 0, apiError(resp.StatusCode, respBody)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, errors.Join(fmt.Errorf("failed to write %s: %w", path, err), os.Remove(path))
	}
	return n, nil
}
