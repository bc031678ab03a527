package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Report.Queue != "reports" {
		t.Errorf("queue = %q, want reports", cfg.Report.Queue)
	}
	if cfg.Report.WaitTimeout != 15*time.Minute {
		t.Errorf("wait timeout = %s, want 15m", cfg.Report.WaitTimeout)
	}
	if cfg.JWT.AdminRole != "admin" {
		t.Errorf("admin role = %q", cfg.JWT.AdminRole)
	}
	if cfg.Store.Backend != "redis" {
		t.Errorf("store backend = %q", cfg.Store.Backend)
	}
}

func TestLoad_SecretFile(t *testing.T) {
	chdir(t, t.TempDir())

	secret := filepath.Join(t.TempDir(), "llm_key")
	if err := os.WriteFile(secret, []byte("sk-from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_API_KEY_FILE", secret)
	t.Setenv("REPORT_WAIT_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-from-file" {
		t.Errorf("api key = %q, want sk-from-file", cfg.LLM.APIKey)
	}
	if cfg.Report.WaitTimeout != 30*time.Second {
		t.Errorf("wait timeout = %s, want 30s", cfg.Report.WaitTimeout)
	}
}

func TestLoadClient_FileEnvAndOverrides(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "reportctl.yaml")
	body := "api_url: http://api.local\nemail: a@x.com\nstore: memory\ninterval: 3s\n"
	if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REPORTCTL_CHAT_URL", "http://chat.local")

	cfg, err := LoadClient(file, map[string]any{"admin": true})
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.APIURL != "http://api.local" || cfg.ChatURL != "http://chat.local" {
		t.Errorf("urls = %q %q", cfg.APIURL, cfg.ChatURL)
	}
	if cfg.Email != "a@x.com" || !cfg.Admin {
		t.Errorf("email=%q admin=%v", cfg.Email, cfg.Admin)
	}
	if cfg.Interval != 3*time.Second {
		t.Errorf("interval = %s", cfg.Interval)
	}
}

func TestLoadClient_RejectsUnknownStore(t *testing.T) {
	chdir(t, t.TempDir())

	if _, err := LoadClient("", map[string]any{"store": "sqlite"}); err == nil {
		t.Fatal("expected error for unknown store")
	}
}

func TestLoadClient_TimeoutOutlastsServerWait(t *testing.T) {
	chdir(t, t.TempDir())

	server, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	client, err := LoadClient("", nil)
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if client.Timeout <= server.Report.WaitTimeout {
		t.Errorf("client timeout %s must exceed server wait timeout %s", client.Timeout, server.Report.WaitTimeout)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+): it changes the working directory
// for the duration of the test and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
