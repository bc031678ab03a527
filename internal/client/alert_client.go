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

// ReportNotifier tells a user that their report is ready.
type ReportNotifier interface {
	SendReport(ctx context.Context, n *ReportNotification) error
	IsConfigured() bool
}

// ReportNotification is the body of POST /alert/send-report.
type ReportNotification struct {
	UserEmail   string `json:"user_email"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	ProjectName string `json:"project_name"`
}

// AlertClient posts report notifications to the alert service.
type AlertClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewAlertClient(cfg *config.AlertConfig) *AlertClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AlertClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.URL, "/"),
	}
}

func (c *AlertClient) SendReport(ctx context.Context, n *ReportNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/alert/send-report", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("alert service error (status %d): %s", resp.StatusCode, string(msg))
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *AlertClient) IsConfigured() bool {
	return c.baseURL != ""
}
