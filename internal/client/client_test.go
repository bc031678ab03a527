package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svaia/api/internal/config"
)

func TestLLMClient_GenerateReport(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"model":"m","choices":[{"message":{"role":"assistant","content":"# Report","reasoning_content":"chain"}}]}`))
	}))
	defer srv.Close()

	c := NewLLMClient(&config.LLMConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "m", Timeout: time.Second})
	require.True(t, c.IsConfigured())

	out, err := c.GenerateReport(context.Background(), `{"components":[]}`, "max_total_vulns: 1")
	require.NoError(t, err)
	assert.Equal(t, "# Report", out.Content)
	assert.Equal(t, "chain", out.Reasoning)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.True(t, strings.HasSuffix(got.Messages[0].Content, "You should mention if the following requirements are met: max_total_vulns: 1"))
	assert.Equal(t, `{"components":[]}`, got.Messages[1].Content)
}

func TestLLMClient_InlineThinkBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"<think>\nhmm\n</think>\n\n# Body"}}]}`))
	}))
	defer srv.Close()

	c := NewLLMClient(&config.LLMConfig{APIKey: "k", BaseURL: srv.URL})
	out, err := c.GenerateReport(context.Background(), "{}", "")
	require.NoError(t, err)
	assert.Equal(t, "# Body", out.Content)
	assert.Equal(t, "hmm", out.Reasoning)
}

func TestLLMClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusServiceUnavailable, `overloaded`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewLLMClient(&config.LLMConfig{APIKey: "k", BaseURL: srv.URL})
			_, err := c.GenerateReport(context.Background(), "{}", "")
			assert.Error(t, err)
		})
	}
}

func TestAlertClient_SendReport(t *testing.T) {
	var got ReportNotification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alert/send-report", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewAlertClient(&config.AlertConfig{URL: srv.URL})
	require.True(t, c.IsConfigured())
	err := c.SendReport(context.Background(), &ReportNotification{
		UserEmail: "a@x.com", Subject: "s", Body: "b", ProjectName: "P1",
	})
	require.NoError(t, err)
	assert.Equal(t, "P1", got.ProjectName)

	assert.False(t, NewAlertClient(&config.AlertConfig{}).IsConfigured())
}

func TestAlertClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewAlertClient(&config.AlertConfig{URL: srv.URL}).SendReport(context.Background(), &ReportNotification{})
	assert.ErrorContains(t, err, "status 500")
}

func TestReportKey(t *testing.T) {
	assert.Equal(t, "reports/a@x.com/P1_report.txt", ReportKey("a@x.com", "P1_report.txt"))
}

func TestNewR2Archive(t *testing.T) {
	_, err := NewR2Archive(context.Background(), &config.R2Config{AccountID: "acc"})
	assert.Error(t, err)

	a, err := NewR2Archive(context.Background(), &config.R2Config{
		AccountID:       "acc",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		BucketName:      "reports",
		PublicURL:       "https://files.svaia.test/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://files.svaia.test/reports/a@x.com/shop_report.txt", a.URL(ReportKey("a@x.com", "shop_report.txt")))

	a.publicURL = ""
	assert.Equal(t, "https://reports.r2.cloudflarestorage.com/k", a.URL("k"))
}
