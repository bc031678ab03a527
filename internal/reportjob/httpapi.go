package reportjob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/svaia/api/internal/config"
)

// HTTPClient implements API against the REST API and the chat service.
type HTTPClient struct {
	httpClient *http.Client
	apiURL     string
	chatURL    string
	token      string
}

// ProjectSummary is one entry of the project listing used to seed the board.
type ProjectSummary struct {
	Email      string `json:"email"`
	Name       string `json:"project_name"`
	HasReport  bool   `json:"has_report"`
	InProcess  bool   `json:"in_process"`
	ReportName string `json:"report_name,omitempty"`
}

// Job returns the job id of the project.
func (p ProjectSummary) Job() JobID {
	return JobID{Owner: p.Email, Project: p.Name}
}

type envelope struct {
	OK       bool            `json:"ok"`
	Message  string          `json:"message,omitempty"`
	Code     string          `json:"code,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
	Projects json.RawMessage `json:"projects,omitempty"`
}

// NewHTTPClient creates a backend client. The generate call waits for the
// whole generation, so the timeout must cover a slow LLM run.
func NewHTTPClient(cfg *config.ClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultClientTimeout
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		chatURL:    strings.TrimRight(cfg.ChatURL, "/"),
		token:      cfg.Token,
	}
}

func (c *HTTPClient) GenerationStatus(ctx context.Context, scope Scope) ([]json.RawMessage, error) {
	path := "/api/check-generation-status"
	if scope == ScopeAdmin {
		path += "/admin"
	}

	env, err := c.do(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return nil, err
	}

	var ids []json.RawMessage
	if len(env.Projects) == 0 || string(env.Projects) == "null" {
		return ids, nil
	}
	if err := json.Unmarshal(env.Projects, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode generation status: %w", err)
	}
	return ids, nil
}

func (c *HTTPClient) GenerateReport(ctx context.Context, job JobID) (Artifact, error) {
	body := map[string]string{
		"user_email":   job.Owner,
		"project_name": job.Project,
	}
	env, err := c.do(ctx, http.MethodPost, c.chatURL+"/chat/generate-report", body)
	if stillRunning(ctx, err) {
		return Artifact{}, fmt.Errorf("%w: %w", ErrStillRunning, err)
	}
	if err != nil {
		return Artifact{}, err
	}
	return decodeArtifact(env)
}

// stillRunning reports whether err leaves the generation running on the
// backend: a 504/TIMEOUT answer, or the client timing out after the
// request was sent. Cancellation by the caller does not count.
func stillRunning(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Status == http.StatusGatewayTimeout || rejected.Code == codeTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func (c *HTTPClient) ReportData(ctx context.Context, job JobID) (Artifact, error) {
	body := map[string]string{"project_name": job.Project}
	if job.Owner != "" {
		body["email"] = job.Owner
	}
	env, err := c.do(ctx, http.MethodPost, c.apiURL+"/api/get-report-data", body)
	if err != nil {
		return Artifact{}, err
	}
	return decodeArtifact(env)
}

// Projects lists the projects visible in scope.
func (c *HTTPClient) Projects(ctx context.Context, scope Scope) ([]ProjectSummary, error) {
	url := c.apiURL + "/api/projects"
	if scope == ScopeAdmin {
		url += "?all=true"
	}
	env, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var projects []ProjectSummary
	if len(env.Content) == 0 || string(env.Content) == "null" {
		return projects, nil
	}
	if err := json.Unmarshal(env.Content, &projects); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	return projects, nil
}

func decodeArtifact(env *envelope) (Artifact, error) {
	var a Artifact
	if len(env.Content) > 0 && string(env.Content) != "null" {
		if err := json.Unmarshal(env.Content, &a); err != nil {
			return Artifact{}, fmt.Errorf("failed to decode report: %w", err)
		}
	}
	if a.Data == "" {
		return Artifact{}, &RejectedError{Status: http.StatusOK, Message: "report has no content"}
	}
	return a, nil
}

// do sends one request and decodes the {ok, message, content} envelope.
// 401 maps to ErrUnauthorized, ok=false to *RejectedError.
func (c *HTTPClient) do(ctx context.Context, method, url string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// The status endpoint answers with a bare {projects: [...]}.
	if env.Projects != nil && resp.StatusCode == http.StatusOK {
		return &env, nil
	}
	if !env.OK {
		return nil, &RejectedError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	return &env, nil
}
