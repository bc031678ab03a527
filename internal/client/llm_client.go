package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/svaia/api/internal/config"
)

// ReportGenerator writes a vulnerability report for an SBOM.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, sbom string, requirements string) (*Generated, error)
	IsConfigured() bool
}

// Generated is the raw LLM output for one report.
type Generated struct {
	Reasoning string
	Content   string
	Model     string
}

// DefaultReportPrompt is the system prompt used when none is configured.
const DefaultReportPrompt = "You are a software supply chain security analyst. " +
	"Given a CycloneDX SBOM, write a markdown report listing the components " +
	"with known vulnerabilities, their CVE identifiers, CVSS scores and the " +
	"recommended fixed versions, followed by an overall risk assessment."

// LLMClient talks to an OpenAI-compatible chat completions API.
type LLMClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	prompt     string
}

// ChatMessage represents a message in the chat completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest represents the request body for chat completion
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

// ChatCompletionResponse represents the response from chat completion.
// Reasoning models return their chain of thought in reasoning_content.
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role             string `json:"role"`
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			Reasoning        string `json:"reasoning"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewLLMClient creates a new chat completions client
func NewLLMClient(cfg *config.LLMConfig) *LLMClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &LLMClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		prompt:  DefaultReportPrompt,
	}
}

// GenerateReport asks the model for a report on sbom. requirements, when
// set, lists the acceptance criteria the report must check.
func (c *LLMClient) GenerateReport(ctx context.Context, sbom, requirements string) (*Generated, error) {
	prompt := c.prompt
	if requirements != "" {
		prompt += " You should mention if the following requirements are met: " + requirements
	}

	reqBody := ChatCompletionRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: sbom},
		},
		Temperature: 0.2,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	msg := chatResp.Choices[0].Message
	reasoning := msg.ReasoningContent
	if reasoning == "" {
		reasoning = msg.Reasoning
	}
	content, inline := splitThink(msg.Content)
	if reasoning == "" {
		reasoning = inline
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty report from model %s", chatResp.Model)
	}

	return &Generated{Reasoning: reasoning, Content: content, Model: chatResp.Model}, nil
}

// splitThink separates an inline <think>...</think> block some reasoning
// models emit at the start of the content.
func splitThink(content string) (body, reasoning string) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "<think>") {
		return content, ""
	}
	end := strings.Index(trimmed, "</think>")
	if end < 0 {
		return content, ""
	}
	reasoning = strings.TrimSpace(trimmed[len("<think>"):end])
	body = strings.TrimSpace(trimmed[end+len("</think>"):])
	return body, reasoning
}

// IsConfigured returns true if the client has valid configuration
func (c *LLMClient) IsConfigured() bool {
	return c.apiKey != "" && c.baseURL != ""
}
