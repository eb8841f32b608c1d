package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/npezzotti/go-devhub/internal/api"
	"github.com/npezzotti/go-devhub/internal/assistant"
	"github.com/npezzotti/go-devhub/internal/cache"
	"github.com/npezzotti/go-devhub/internal/config"
	"github.com/npezzotti/go-devhub/internal/database"
	"github.com/npezzotti/go-devhub/internal/moderation"
	"github.com/npezzotti/go-devhub/internal/server"
	"github.com/npezzotti/go-devhub/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*s = append(*s, v)
		}
	}
	return nil
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func main() {
	// a missing .env is fine, the environment and flags still apply
	_ = godotenv.Load()

	var (
		opts           config.Options
		allowedOrigins stringSliceFlag
	)

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		allowedOrigins.Set(origins)
	}

	cacheTTL, err := time.ParseDuration(envOr("STATS_CACHE_TTL", "30s"))
	if err != nil {
		log.Fatalln("STATS_CACHE_TTL:", err)
	}

	flag.StringVar(&opts.ServerAddr, "addr", envOr("SERVER_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&opts.DatabaseDSN, "dsn", envOr("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=devhub sslmode=disable"), "database connection string")
	flag.StringVar(&opts.SigningKey, "signing-key", envOr("SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&opts.AdminToken, "admin-token", os.Getenv("ADMIN_TOKEN"), "bearer token for the admin dashboard, empty disables it")
	flag.StringVar(&opts.RedisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address for the stats cache, empty disables caching")
	flag.DurationVar(&opts.StatsCacheTTL, "stats-cache-ttl", cacheTTL, "how long aggregate stats are cached")
	flag.StringVar(&opts.UploadDir, "upload-dir", envOr("UPLOAD_DIR", "uploads"), "directory for uploaded files")
	flag.StringVar(&opts.AssistantEndpoint, "assistant-endpoint", envOr("OPENAI_API_URL", "https://api.openai.com/v1/chat/completions"), "chat completions endpoint")
	flag.StringVar(&opts.AssistantModel, "assistant-model", os.Getenv("OPENAI_MODEL"), "chat completions model")
	flag.StringVar(&opts.AssistantApiKey, "assistant-api-key", os.Getenv("OPENAI_API_KEY"), "chat completions api key")
	flag.StringVar(&opts.ModerationEndpoint, "moderation-endpoint", os.Getenv("PERSPECTIVE_API_URL"), "toxicity analysis endpoint, empty disables moderation")
	flag.StringVar(&opts.ModerationApiKey, "moderation-api-key", os.Getenv("PERSPECTIVE_API_KEY"), "toxicity analysis api key")
	flag.Parse()
	opts.AllowedOrigins = allowedOrigins

	logger := log.New(os.Stderr, "[devhub] ", log.LstdFlags)

	cfg, err := config.NewConfig(opts)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgCommunityRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	var statsCache api.StatsCache
	if cfg.RedisAddr != "" {
		c := cache.New(cache.NewRedisClient(cfg.RedisAddr), cache.DefaultPrefix, cfg.StatsCacheTTL)
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.Ping(ctx); err != nil {
			logger.Printf("redis unavailable, stats will not be cached: %v", err)
		}
		cancel()
		statsCache = c
	}

	var classifier moderation.Classifier = moderation.Noop{}
	if cfg.ModerationEndpoint != "" {
		classifier = moderation.NewPerspectiveClient(cfg.ModerationEndpoint, cfg.ModerationApiKey)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, statsUpdater, classifier)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	asst := assistant.New(logger, cfg.AssistantEndpoint, cfg.AssistantModel, cfg.AssistantApiKey)

	srv := api.NewDevHubApp(mux, logger, chatServer, dbConn, statsCache, asst, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
