package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/svaia/api/internal/auth"
	"github.com/svaia/api/internal/client"
	"github.com/svaia/api/internal/config"
	"github.com/svaia/api/internal/events"
	"github.com/svaia/api/internal/handler"
	"github.com/svaia/api/internal/logging"
	"github.com/svaia/api/internal/metrics"
	"github.com/svaia/api/internal/middleware"
	"github.com/svaia/api/internal/service"
	"github.com/svaia/api/internal/store"
	ws "github.com/svaia/api/internal/websocket"
	"github.com/svaia/api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.Log)
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not available")
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	var (
		projects store.ProjectStore
		bus      events.Bus
	)
	switch cfg.Store.Backend {
	case "memory":
		log.Warn().Msg("using in-memory project store; data is lost on restart and workers must run in this process")
		projects = store.NewMemoryProjectStore()
		bus = events.NewMemoryBus()
	default:
		projects = store.NewRedisProjectStore(redisClient)
		bus = events.NewRedisBus(redisClient, log)
	}

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	reportService := service.NewReportService(projects, bus, asynqClient, cfg.Report, log)

	verifier := buildVerifier(ctx, cfg, log)
	defer verifier.Close()

	var apiAuth fiber.Handler
	if cfg.Gateway.Enabled {
		log.Info().Msg("gateway mode enabled, using header-based auth")
		apiAuth = middleware.GatewayAuthMiddleware(cfg.JWT.AdminRole)
	} else {
		apiAuth = middleware.NewAuthMiddleware(verifier, cfg.JWT.AdminRole).Authenticate()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler,
		BodyLimit:    20 * 1024 * 1024,
		// generate-report holds the connection for the whole generation.
		WriteTimeout: cfg.Report.WaitTimeout + time.Minute,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     originOrAll(cfg.Server.ApiDomain),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: cfg.Server.ApiDomain != "",
	}))

	handler.Mount(app, handler.Routes{
		Reports:     handler.NewReportHandler(reportService, handler.NewValidator(), log),
		Auth:        handler.NewAuthHandler(verifier),
		APIAuth:     apiAuth,
		RateLimiter: middleware.NewRateLimiter(redisClient, log),
		RateLimit:   cfg.RateLimit,
		Hub:         hub,
	})

	workerSrv := startWorkerServer(ctx, cfg, log, reportService, hub)

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		workerSrv.Shutdown()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Str("env", cfg.Server.Env).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

// buildVerifier prefers Zitadel tokens and keeps the HMAC secret as fallback.
func buildVerifier(ctx context.Context, cfg *config.Config, log zerolog.Logger) auth.TokenVerifier {
	chain := auth.ChainVerifier{}
	if cfg.Zitadel.Issuer != "" {
		oidc, err := auth.NewOIDCVerifier(ctx, &cfg.Zitadel)
		if err != nil {
			log.Warn().Err(err).Msg("OIDC verifier unavailable, falling back to HMAC tokens")
		} else {
			chain = append(chain, oidc)
		}
	}
	if cfg.JWT.Secret != "" {
		chain = append(chain, auth.NewLegacyVerifier(cfg.JWT.Secret))
	}
	return chain
}

func startWorkerServer(ctx context.Context, cfg *config.Config, log zerolog.Logger, reportService *service.ReportService, hub *ws.Hub) *asynq.Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Report.Concurrency,
			Queues: map[string]int{
				cfg.Report.Queue: 1,
			},
			Logger:   logging.NewAsynqLogger(log),
			LogLevel: logging.AsynqLevel(cfg.Log.Level),
		},
	)

	var archive client.ReportArchive
	if r2, err := client.NewR2Archive(ctx, &cfg.R2); err != nil {
		log.Info().Err(err).Msg("report archive disabled")
	} else {
		archive = r2
	}

	llm := client.NewLLMClient(&cfg.LLM)
	if !llm.IsConfigured() {
		log.Warn().Msg("LLM not configured, reports will be mocked")
	}

	reportWorker := worker.NewReportWorker(
		reportService,
		llm,
		archive,
		client.NewAlertClient(&cfg.Alert),
		hub,
		log,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeReport, reportWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Error().Err(err).Msg("asynq worker error")
	}
	return srv
}

func originOrAll(domain string) string {
	if domain == "" {
		return "*"
	}
	return domain
}
