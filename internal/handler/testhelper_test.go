package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/svaia/api/internal/auth"
	"github.com/svaia/api/internal/client"
	"github.com/svaia/api/internal/config"
	"github.com/svaia/api/internal/events"
	"github.com/svaia/api/internal/middleware"
	"github.com/svaia/api/internal/service"
	"github.com/svaia/api/internal/store"
	"github.com/svaia/api/internal/worker"
)

const testJWTSecret = "test-secret-key-for-testing"

// inlineQueue runs enqueued tasks on a goroutine instead of asynq. When
// gate is set, tasks wait until it is closed.
type inlineQueue struct {
	worker *worker.ReportWorker
	gate   chan struct{}

	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *inlineQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	go func() {
		if q.gate != nil {
			<-q.gate
		}
		_ = q.worker.ProcessTask(context.Background(), task)
	}()
	return &asynq.TaskInfo{Queue: "reports", Type: task.Type()}, nil
}

func (q *inlineQueue) enqueued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastStarted(string, string)               {}
func (nopBroadcaster) BroadcastComplete(string, string, string)      {}
func (nopBroadcaster) BroadcastError(string, string, string, string) {}

type testEnv struct {
	app      *fiber.App
	store    *store.MemoryProjectStore
	queue    *inlineQueue
	verifier *auth.LegacyVerifier
}

type envOption func(*envConfig)

type envConfig struct {
	gate      chan struct{}
	generator client.ReportGenerator
	wait      time.Duration
}

func withGate(gate chan struct{}) envOption {
	return func(c *envConfig) { c.gate = gate }
}

func withGenerator(g client.ReportGenerator) envOption {
	return func(c *envConfig) { c.generator = g }
}

func withWaitTimeout(d time.Duration) envOption {
	return func(c *envConfig) { c.wait = d }
}

// setupApp creates a test Fiber app backed by in-memory stores.
func setupApp(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	ec := envConfig{wait: 5 * time.Second}
	for _, o := range opts {
		o(&ec)
	}

	projects := store.NewMemoryProjectStore()
	bus := events.NewMemoryBus()
	queue := &inlineQueue{gate: ec.gate}
	log := zerolog.Nop()

	svc := service.NewReportService(projects, bus, queue, config.ReportConfig{
		Queue:       "reports",
		MaxRetry:    0,
		WaitTimeout: ec.wait,
	}, log)
	queue.worker = worker.NewReportWorker(svc, ec.generator, nil, nil, nopBroadcaster{}, log)

	verifier := auth.NewLegacyVerifier(testJWTSecret)
	authMW := middleware.NewAuthMiddleware(verifier, "admin")

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	Mount(app, Routes{
		Reports: NewReportHandler(svc, NewValidator(), log),
		Auth:    NewAuthHandler(verifier),
		APIAuth: authMW.Authenticate(),
	})

	return &testEnv{app: app, store: projects, queue: queue, verifier: verifier}
}

// generateToken creates a valid HS256 token for testing.
func (e *testEnv) generateToken(t *testing.T, email string, roles ...string) string {
	t.Helper()
	token, err := e.verifier.Sign("user-"+email, email, roles, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

// doRequest performs an HTTP request against the test app.
func (e *testEnv) doRequest(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = jsonBody(t, body)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func jsonBody(t *testing.T, body interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

// registerProject uploads a small SBOM for email.
func (e *testEnv) registerProject(t *testing.T, token, name string) {
	t.Helper()
	resp := e.doRequest(t, http.MethodPost, "/api/projects", map[string]interface{}{
		"project_name":       name,
		"file_data":          `{"bomFormat":"CycloneDX","components":[{"name":"openssl","version":"1.1.1"}]}`,
		"max_total_vulns":    5,
		"min_fixable_ratio":  0.5,
		"max_severity_level": 7.5,
		"composite_score":    20,
	}, token)
	assertStatus(t, resp, http.StatusCreated)
	resp.Body.Close()
}

// parseJSON reads and decodes the response body.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, string(body))
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d. Body: %s", expected, resp.StatusCode, string(body))
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
