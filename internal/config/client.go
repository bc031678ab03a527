package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultClientTimeout bounds one reportctl request. It stays above the
// server's default report.wait_timeout so the server's 504 arrives first.
const DefaultClientTimeout = 20 * time.Minute

// ClientConfig configures reportctl.
type ClientConfig struct {
	APIURL   string
	ChatURL  string
	LoginURL string
	Token    string
	Email    string
	Admin    bool

	// Store selects the session store behind the job marker:
	// memory, file or redis.
	Store     string
	StorePath string
	RedisAddr string

	Interval time.Duration
	Timeout  time.Duration
	Log      LogConfig
}

// LoadClient reads reportctl.yaml (or file when set), REPORTCTL_* env vars
// and finally overrides, which carry the command line flags the user set.
func LoadClient(file string, overrides map[string]any) (*ClientConfig, error) {
	readSecret("REPORTCTL_TOKEN")

	v := viper.New()
	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("reportctl")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "svaia"))
		}
	}

	v.SetEnvPrefix("REPORTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_url", "http://localhost:8000")
	v.SetDefault("chat_url", "http://localhost:8000")
	v.SetDefault("login_url", "/login")
	v.SetDefault("admin", false)
	v.SetDefault("store", "file")
	v.SetDefault("store_path", defaultStorePath())
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("interval", "10s")
	v.SetDefault("timeout", DefaultClientTimeout)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	cfg := &ClientConfig{
		APIURL:    v.GetString("api_url"),
		ChatURL:   v.GetString("chat_url"),
		LoginURL:  v.GetString("login_url"),
		Token:     v.GetString("token"),
		Email:     v.GetString("email"),
		Admin:     v.GetBool("admin"),
		Store:     v.GetString("store"),
		StorePath: v.GetString("store_path"),
		RedisAddr: v.GetString("redis_addr"),
		Interval:  v.GetDuration("interval"),
		Timeout:   v.GetDuration("timeout"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	switch cfg.Store {
	case "memory", "file", "redis":
	default:
		return nil, fmt.Errorf("unknown store %q (want memory, file or redis)", cfg.Store)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}

	return cfg, nil
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "svaia", "session.json")
}
