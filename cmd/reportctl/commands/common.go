package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/svaia/api/internal/config"
	"github.com/svaia/api/internal/logging"
	"github.com/svaia/api/internal/reportjob"
)

// sessionTTL bounds how long a marker left behind by a crashed client
// survives in a shared Redis session.
const sessionTTL = 24 * time.Hour

// newUI builds the terminal the commands talk to. Tests swap it.
var newUI = func() *UI {
	return NewUI(os.Stdin, os.Stdout, os.Stderr)
}

// GlobalFlags are accepted by every command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to reportctl.yaml"},
		&cli.StringFlag{Name: "env", Value: ".env", Usage: "Environment file loaded before the config"},
		&cli.StringFlag{Name: "api-url", Usage: "Report API base URL"},
		&cli.StringFlag{Name: "chat-url", Usage: "Base URL of the generate-report endpoint"},
		&cli.StringFlag{Name: "login-url", Usage: "Where to send the user when the session expired"},
		&cli.StringFlag{Name: "token", Usage: "Access token (prefer REPORTCTL_TOKEN)"},
		&cli.StringFlag{Name: "email", Usage: "Email of the signed-in user"},
		&cli.BoolFlag{Name: "admin", Usage: "Use the admin view across all owners"},
		&cli.StringFlag{Name: "store", Usage: "Session store: memory, file or redis"},
		&cli.StringFlag{Name: "store-path", Usage: "Session file used by the file store"},
		&cli.StringFlag{Name: "redis-addr", Usage: "Redis address used by the redis store"},
		&cli.DurationFlag{Name: "interval", Usage: "Delay between status polls"},
		&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
	}
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"api-url":    "api_url",
	"chat-url":   "chat_url",
	"login-url":  "login_url",
	"token":      "token",
	"email":      "email",
	"admin":      "admin",
	"store":      "store",
	"store-path": "store_path",
	"redis-addr": "redis_addr",
	"interval":   "interval",
	"log-level":  "log.level",
}

// AppContext holds the shared dependencies of every command.
type AppContext struct {
	Config     *config.ClientConfig
	API        *reportjob.HTTPClient
	Marker     *reportjob.Marker
	Board      *reportjob.Board
	Controller *reportjob.Controller
	Log        zerolog.Logger
	UI         *UI

	closers []io.Closer
}

// NewAppContext loads configuration and wires the session store, the
// backend client and the polling controller.
func NewAppContext(ctx context.Context, cmd *cli.Command) (*AppContext, error) {
	if env := cmd.String("env"); env != "" {
		if err := godotenv.Load(env); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", env, err)
		}
	}

	cfg, err := config.LoadClient(cmd.String("config"), flagOverrides(cmd))
	if err != nil {
		return nil, err
	}
	if cfg.Email == "" {
		return nil, errors.New("no user email configured (set --email or REPORTCTL_EMAIL)")
	}

	log := logging.NewWriter(cfg.Log, os.Stderr)
	app := &AppContext{
		Config: cfg,
		API:    reportjob.NewHTTPClient(cfg),
		Board:  reportjob.NewBoard(),
		Log:    log,
		UI:     newUI(),
	}

	store, closer, err := newSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		app.closers = append(app.closers, closer)
	}
	app.Marker = reportjob.NewMarker(store)

	app.Controller = reportjob.NewController(app.API, app.Marker, app.Board, reportjob.Options{
		Scope:     app.Scope(),
		Viewer:    cfg.Email,
		Interval:  cfg.Interval,
		Notifier:  app.UI,
		Confirmer: app.UI,
		Logger:    log,
	})
	return app, nil
}

// Scope is the admin scope when --admin is set.
func (a *AppContext) Scope() reportjob.Scope {
	if a.Config.Admin {
		return reportjob.ScopeAdmin
	}
	return reportjob.ScopeSelf
}

// Owner resolves the --owner flag, defaulting to the signed-in user.
func (a *AppContext) Owner(cmd *cli.Command) string {
	if owner := cmd.String("owner"); owner != "" {
		return owner
	}
	return a.Config.Email
}

// Close releases the session store.
func (a *AppContext) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("failed to close session store")
		}
	}
}

// Handle turns an expired session into a login hint and exit code 1.
func (a *AppContext) Handle(err error) error {
	if errors.Is(err, reportjob.ErrUnauthorized) {
		return cli.Exit("session expired, log in at "+LoginURL(a.Config), 1)
	}
	return err
}

func flagOverrides(cmd *cli.Command) map[string]any {
	out := make(map[string]any)
	for flag, key := range flagKeys {
		if !cmd.IsSet(flag) {
			continue
		}
		switch flag {
		case "admin":
			out[key] = cmd.Bool(flag)
		case "interval":
			out[key] = cmd.Duration(flag)
		default:
			out[key] = cmd.String(flag)
		}
	}
	return out
}

// newSessionStore opens the store selected by cfg.Store. The returned
// closer is nil for stores that hold no connection.
func newSessionStore(ctx context.Context, cfg *config.ClientConfig) (reportjob.SessionStore, io.Closer, error) {
	switch cfg.Store {
	case "memory":
		return reportjob.NewMemoryStore(), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis session store unavailable: %w", err)
		}
		return reportjob.NewRedisStore(client, cfg.Email, sessionTTL), client, nil
	default:
		store, err := reportjob.NewFileStore(cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

// LoginURL resolves a relative login path against the API URL.
func LoginURL(cfg *config.ClientConfig) string {
	login, err := url.Parse(cfg.LoginURL)
	if err != nil || login.IsAbs() {
		return cfg.LoginURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.APIURL, "/") + "/")
	if err != nil {
		return cfg.LoginURL
	}
	return base.ResolveReference(login).String()
}
