package devtermsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal dev terminal HTTP API client.
type Client struct {
	BaseURL string
	// BasePath prefixes the action endpoint, "/functions/v1" by default.
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/functions/v1",
		Timeout:  30 * time.Second,
	}
}

// Request represents a dev request (partial).
type Request struct {
	ID              string   `json:"id"`
	Prompt          string   `json:"prompt"`
	RequestType     string   `json:"request_type"`
	TargetUsers     []string `json:"target_users"`
	BuildMode       string   `json:"build_mode"`
	Status          string   `json:"status"`
	SourceRequestID string   `json:"source_request_id,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
	CreatedAt       string   `json:"created_at"`
	CompletedAt     string   `json:"completed_at,omitempty"`
	BuildDurationMS int64    `json:"build_duration_ms,omitempty"`
}

// Step represents one entry of a request's build plan.
type Step struct {
	ID               string `json:"id"`
	StepName         string `json:"step_name"`
	StepType         string `json:"step_type"`
	StepOrder        int    `json:"step_order"`
	Status           string `json:"status"`
	OutputArtifactID string `json:"output_artifact_id,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
}

// Artifact represents a generated source artifact.
type Artifact struct {
	ID            string   `json:"id"`
	RequestID     string   `json:"request_id"`
	ArtifactType  string   `json:"artifact_type"`
	ArtifactName  string   `json:"artifact_name"`
	FilePath      string   `json:"file_path,omitempty"`
	GeneratedCode string   `json:"generated_code"`
	LinkedModules []string `json:"linked_modules"`
	CreatedAt     string   `json:"created_at"`
	RevertedAt    string   `json:"reverted_at,omitempty"`
	RevertReason  string   `json:"revert_reason,omitempty"`
}

// Analysis is the analyzer outcome for a prompt.
type Analysis struct {
	Complexity         int      `json:"complexity"`
	PredictedArtifacts []string `json:"predicted_artifacts"`
	EntityName         string   `json:"entity_name"`
	TargetRoles        []string `json:"target_roles"`
	LinkedModules      []string `json:"linked_modules,omitempty"`
}

// Pattern is a civic memory pattern.
type Pattern struct {
	ID          string  `json:"id"`
	PatternName string  `json:"pattern_name"`
	PatternType string  `json:"pattern_type"`
	UsageCount  int     `json:"usage_count"`
	SuccessRate float64 `json:"success_rate"`
}

// Health summarises recent build outcomes.
type Health struct {
	SuccessRate float64 `json:"success_rate"`
	Status      string  `json:"status"`
	Completed   int     `json:"completed"`
	Total       int     `json:"total"`
}

// AnalyzeInput carries the fields of a new request.
type AnalyzeInput struct {
	Prompt             string   `json:"prompt"`
	RequestType        string   `json:"requestType,omitempty"`
	TargetUsers        []string `json:"targetUsers,omitempty"`
	BuildMode          string   `json:"buildMode,omitempty"`
	UseCivicMemory     bool     `json:"useCivicMemory,omitempty"`
	PreviewBeforeBuild bool     `json:"previewBeforeBuild,omitempty"`
	AutoBuild          bool     `json:"-"`
}

type AnalyzeResponse struct {
	Success   bool       `json:"success"`
	Request   Request    `json:"request"`
	Analysis  Analysis   `json:"analysis"`
	Steps     []Step     `json:"steps"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

type BuildResponse struct {
	Success   bool       `json:"success"`
	Request   Request    `json:"request"`
	Artifacts []Artifact `json:"artifacts"`
}

type PreviewResponse struct {
	Success   bool       `json:"success"`
	Request   Request    `json:"request"`
	Steps     []Step     `json:"steps"`
	Artifacts []Artifact `json:"artifacts"`
}

type RevertResponse struct {
	Success  bool    `json:"success"`
	Request  Request `json:"request"`
	Reverted int64   `json:"reverted"`
}

type CloneResponse struct {
	Success bool    `json:"success"`
	Request Request `json:"request"`
}

type StatusResponse struct {
	Success         bool       `json:"success"`
	RecentRequests  []Request  `json:"recent_requests"`
	ActiveRequests  []Request  `json:"active_requests"`
	RecentArtifacts []Artifact `json:"recent_artifacts"`
	Patterns        []Pattern  `json:"patterns"`
	Health          Health     `json:"health"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d error=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Analyze submits a new request and returns its analysis and plan.
func (c *Client) Analyze(ctx context.Context, in AnalyzeInput) (AnalyzeResponse, error) {
	body := map[string]any{
		"action":             "analyze",
		"prompt":             in.Prompt,
		"useCivicMemory":     in.UseCivicMemory,
		"previewBeforeBuild": in.PreviewBeforeBuild,
	}
	if in.RequestType != "" {
		body["requestType"] = in.RequestType
	}
	if len(in.TargetUsers) > 0 {
		body["targetUsers"] = in.TargetUsers
	}
	if in.BuildMode != "" {
		body["buildMode"] = in.BuildMode
	}
	if in.AutoBuild {
		body["options"] = map[string]any{"autoBuild": true}
	}
	var resp AnalyzeResponse
	err := c.action(ctx, body, &resp)
	return resp, err
}

// Build executes the plan of a request.
func (c *Client) Build(ctx context.Context, requestID string) (BuildResponse, error) {
	var resp BuildResponse
	err := c.action(ctx, map[string]any{"action": "build", "requestId": requestID}, &resp)
	return resp, err
}

// Preview returns a request with its steps and artifacts.
func (c *Client) Preview(ctx context.Context, requestID string) (PreviewResponse, error) {
	var resp PreviewResponse
	err := c.action(ctx, map[string]any{"action": "preview", "requestId": requestID}, &resp)
	return resp, err
}

// Revert marks every artifact of a request reverted.
func (c *Client) Revert(ctx context.Context, requestID, reason string) (RevertResponse, error) {
	body := map[string]any{"action": "revert", "requestId": requestID}
	if reason != "" {
		body["options"] = map[string]any{"reason": reason}
	}
	var resp RevertResponse
	err := c.action(ctx, body, &resp)
	return resp, err
}

// Clone copies a request, optionally replacing its prompt.
func (c *Client) Clone(ctx context.Context, requestID, prompt string) (CloneResponse, error) {
	body := map[string]any{"action": "clone", "requestId": requestID}
	if prompt != "" {
		body["options"] = map[string]any{"prompt": prompt}
	}
	var resp CloneResponse
	err := c.action(ctx, body, &resp)
	return resp, err
}

// Status returns the recent activity report.
func (c *Client) Status(ctx context.Context, limit int) (StatusResponse, error) {
	body := map[string]any{"action": "status"}
	if limit > 0 {
		body["options"] = map[string]any{"limit": limit}
	}
	var resp StatusResponse
	err := c.action(ctx, body, &resp)
	return resp, err
}

func (c *Client) action(ctx context.Context, body any, out any) error {
	return c.do(ctx, http.MethodPost, c.basePath()+"/ashen-dev-terminal", body, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Message = envelope.Error
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) basePath() string {
	p := c.BasePath
	if p == "" {
		p = "/functions/v1"
	}
	return "/" + strings.Trim(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
