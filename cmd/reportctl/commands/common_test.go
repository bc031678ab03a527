package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/svaia/api/internal/config"
	"github.com/svaia/api/internal/reportjob"
)

func TestLoginURL(t *testing.T) {
	tests := []struct {
		api, login string
		want       string
	}{
		{"http://localhost:8000", "/login", "http://localhost:8000/login"},
		{"https://svaia.test/api/", "/login", "https://svaia.test/login"},
		{"https://svaia.test", "https://auth.svaia.test/login", "https://auth.svaia.test/login"},
		{"https://svaia.test/app", "login", "https://svaia.test/app/login"},
	}
	for _, tt := range tests {
		got := LoginURL(&config.ClientConfig{APIURL: tt.api, LoginURL: tt.login})
		assert.Equal(t, tt.want, got, "api=%s login=%s", tt.api, tt.login)
	}
}

func TestFlagOverrides(t *testing.T) {
	var got map[string]any
	cmd := &cli.Command{
		Name:  "reportctl",
		Flags: GlobalFlags(),
		Action: func(_ context.Context, c *cli.Command) error {
			got = flagOverrides(c)
			return nil
		},
	}

	err := cmd.Run(context.Background(), []string{"reportctl", "--email", "bob@x.com", "--admin", "--interval", "5s"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"email":    "bob@x.com",
		"admin":    true,
		"interval": 5 * time.Second,
	}, got)
}

func TestNewSessionStore(t *testing.T) {
	ctx := context.Background()

	s, closer, err := newSessionStore(ctx, &config.ClientConfig{Store: "memory"})
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &reportjob.MemoryStore{}, s)

	path := filepath.Join(t.TempDir(), "session.json")
	s, closer, err = newSessionStore(ctx, &config.ClientConfig{Store: "file", StorePath: path})
	require.NoError(t, err)
	assert.Nil(t, closer)
	require.NoError(t, s.Set(ctx, "k", "v"))
	assert.FileExists(t, path)

	_, _, err = newSessionStore(ctx, &config.ClientConfig{Store: "redis", RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}

// fakeBackend answers the report API with a single finished generation.
// With slow set, generate-report answers 504 and the status endpoint lists
// the job once before it finishes.
type fakeBackend struct {
	status    atomic.Int32
	generated atomic.Int32
	fetched   atomic.Int32
	expired   bool
	slow      bool
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/api/check-generation-status", func(w http.ResponseWriter, r *http.Request) {
		if b.expired {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if n := b.status.Add(1); b.slow && n == 1 {
			write(w, map[string]any{"projects": []string{"shop"}})
			return
		}
		write(w, map[string]any{"projects": []string{}})
	})
	mux.HandleFunc("/api/get-report-data", func(w http.ResponseWriter, r *http.Request) {
		b.fetched.Add(1)
		write(w, map[string]any{"ok": true, "content": map[string]string{
			"report_name": "shop_report.txt",
			"report_data": "# Findings for shop",
		}})
	})
	mux.HandleFunc("/chat/generate-report", func(w http.ResponseWriter, r *http.Request) {
		b.generated.Add(1)
		if b.slow {
			w.WriteHeader(http.StatusGatewayTimeout)
			write(w, map[string]any{"ok": false, "code": "TIMEOUT", "message": "Report generation is still running"})
			return
		}
		write(w, map[string]any{"ok": true, "content": map[string]string{
			"report_name": "shop_report.txt",
			"report_data": "# Findings for shop",
		}})
	})
	mux.HandleFunc("/api/projects", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"ok": true, "content": []map[string]any{
			{"email": "alice@x.com", "project_name": "shop", "has_report": true, "report_name": "shop_report.txt"},
		}})
	})
	return mux
}

// captureUI routes command output into buffers for the rest of the test.
func captureUI(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	prev := newUI
	newUI = func() *UI { return NewUI(strings.NewReader(""), out, errOut) }
	t.Cleanup(func() { newUI = prev })
	return out, errOut
}

func runCLI(t *testing.T, srv *httptest.Server, args ...string) error {
	t.Helper()
	root := &cli.Command{
		Name:  "reportctl",
		Flags: GlobalFlags(),
		Commands: []*cli.Command{
			{Name: "watch", Action: WatchAction},
			{Name: "status", Action: StatusAction},
			{
				Name: "generate",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner"},
					&cli.StringFlag{Name: "project"},
					&cli.BoolFlag{Name: "yes"},
					&cli.BoolFlag{Name: "reasoning"},
				},
				Action: GenerateAction,
			},
		},
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
	base := []string{
		"reportctl",
		"--env", "",
		"--config", writeConfig(t),
		"--api-url", srv.URL,
		"--chat-url", srv.URL,
		"--email", "alice@x.com",
		"--store", "memory",
	}
	return root.Run(context.Background(), append(base, args...))
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reportctl.yaml")
	require.NoError(t, writeFile(path, "interval: 10ms\n"))
	return path
}

func TestGenerateAction(t *testing.T) {
	captureUI(t)
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	err := runCLI(t, srv, "generate", "--project", "shop", "--yes")
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.generated.Load())
}

func TestWatchAction_NothingInFlight(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	require.NoError(t, runCLI(t, srv, "watch"))
	assert.Equal(t, int32(1), backend.status.Load())
}

func TestStatusAction_SessionExpired(t *testing.T) {
	backend := &fakeBackend{expired: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	err := runCLI(t, srv, "status")
	require.Error(t, err)

	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.ExitCode())
	assert.Contains(t, err.Error(), srv.URL+"/login")
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func TestGenerateAction_StillRunningWaitsForReport(t *testing.T) {
	out, errOut := captureUI(t)
	backend := &fakeBackend{slow: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	require.NoError(t, runCLI(t, srv, "generate", "--project", "shop", "--yes"))

	assert.Equal(t, int32(1), backend.generated.Load())
	assert.Equal(t, int32(2), backend.status.Load())
	assert.Equal(t, int32(1), backend.fetched.Load())
	assert.Contains(t, errOut.String(), "still being generated")
	assert.Contains(t, out.String(), "# Findings for shop")
}

func TestStatusAction_PrintsMarker(t *testing.T) {
	out, _ := captureUI(t)
	backend := &fakeBackend{slow: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	require.NoError(t, runCLI(t, srv, "status"))

	got := out.String()
	assert.Contains(t, got, "In flight")
	assert.Contains(t, got, "Marker")
	assert.Equal(t, 2, strings.Count(got, "alice@x.com/shop"), "job listed as in flight and as marked:\n%s", got)
}
