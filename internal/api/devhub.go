package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-devhub/internal/assistant"
	"github.com/npezzotti/go-devhub/internal/config"
	"github.com/npezzotti/go-devhub/internal/database"
	"github.com/npezzotti/go-devhub/internal/server"
)

// StatsCache is the cache-aside store for the aggregate counts.
type StatsCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

type DevHubApp struct {
	log            *log.Logger
	db             database.CommunityRepository
	srv            *http.Server
	cs             *server.ChatServer
	cache          StatsCache
	assistant      *assistant.Assistant
	probe          *http.Client
	signingKey     []byte
	adminToken     string
	allowedOrigins []string
	uploadDir      string
}

func NewDevHubApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.CommunityRepository,
	sc StatsCache, asst *assistant.Assistant, cfg *config.Config) *DevHubApp {
	s := &DevHubApp{
		log:            logger,
		db:             db,
		cs:             cs,
		cache:          sc,
		assistant:      asst,
		probe:          &http.Client{Timeout: probeTimeout},
		signingKey:     cfg.SigningKey,
		adminToken:     cfg.AdminToken,
		allowedOrigins: cfg.AllowedOrigins,
		uploadDir:      cfg.UploadDir,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.logout)
	mux.HandleFunc("GET /api/projects", s.listProjects)
	mux.HandleFunc("POST /api/projects", s.authMiddleware(s.createProject))
	mux.HandleFunc("POST /api/ai/assistant", s.askAssistant)
	mux.HandleFunc("GET /api/apis", s.listApis)
	mux.HandleFunc("POST /api/apis", s.authMiddleware(s.submitApi))
	mux.HandleFunc("POST /api/apis/{id}/test", s.testApi)
	mux.HandleFunc("GET /api/lessons", s.listLessons)
	mux.HandleFunc("GET /api/hackathons", s.listHackathons)
	mux.HandleFunc("GET /api/messages", s.listMessages)
	mux.HandleFunc("GET /api/stats", s.getStats)
	mux.HandleFunc("GET /api/admin/dashboard", s.adminMiddleware(s.adminDashboard))
	mux.HandleFunc("POST /api/upload", s.upload)
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = handlers.LoggingHandler(logger.Writer(), h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *DevHubApp) Start() error {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *DevHubApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
