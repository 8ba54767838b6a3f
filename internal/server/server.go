// Package server is the composition root: it opens the store, builds the
// services and routes, and runs the HTTP server next to the background
// loops until the context ends.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  → repository.Store (sqlite or postgres)
//	  → service.AuthService (session provider) ─┐
//	  → storage.Disk (avatars)                  ├→ profilesync.Registry → handler.ProfileHandler
//	  → search.OutboxNotifier (optional)        ┘
//	  → profilesync.Watcher   (auth events → registry)
//	  → search.Worker         (outbox → Elasticsearch, optional)
//
// Every dependency is built here and nowhere else, so each package only
// sees the interfaces it needs.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/opsdash/internal/auth"
	"github.com/sakif/opsdash/internal/config"
	"github.com/sakif/opsdash/internal/handler"
	"github.com/sakif/opsdash/internal/metrics"
	"github.com/sakif/opsdash/internal/middleware"
	"github.com/sakif/opsdash/internal/profilesync"
	"github.com/sakif/opsdash/internal/repository"
	"github.com/sakif/opsdash/internal/repository/postgres"
	sqliteRepo "github.com/sakif/opsdash/internal/repository/sqlite"
	"github.com/sakif/opsdash/internal/search"
	"github.com/sakif/opsdash/internal/service"
	"github.com/sakif/opsdash/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// Server owns every long-lived dependency. Close releases them.
type Server struct {
	cfg    config.Config
	logger *slog.Logger

	store    repository.Store
	auth     *service.AuthService
	registry *profilesync.Registry
	watcher  *profilesync.Watcher
	indexer  *search.Worker // nil without ELASTIC_URL
	router   *chi.Mux
}

// OpenStore opens the backend named by cfg.StoreDriver.
func OpenStore(cfg config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return postgres.Open(cfg.PostgresDSN)
	default:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		return sqliteRepo.New(cfg.DBPath)
	}
}

// NewAuthService builds the session provider for cfg. GitHub sign-in is
// only wired when its credentials are set.
func NewAuthService(cfg config.Config, store repository.Store, logger *slog.Logger) (*service.AuthService, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	var gh service.GitHubAuthenticator
	if cfg.GitHubEnabled() {
		gh = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.CallbackURL())
	}
	return service.NewAuthService(store, tokens, auth.NewPasswordService(), gh, logger), nil
}

// New wires the whole application. Nothing is started yet.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	metrics.Register()

	store, err := OpenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &Server{cfg: cfg, logger: logger, store: store}
	if err := s.wire(); err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) wire() error {
	authSvc, err := NewAuthService(s.cfg, s.store, s.logger)
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}
	s.auth = authSvc

	objects, err := storage.NewDisk(s.cfg.StorageDir, s.cfg.StoragePublicURL)
	if err != nil {
		return fmt.Errorf("creating object storage: %w", err)
	}

	// Search is optional. Without it profile changes are not queued and
	// the search endpoint answers 503.
	var (
		esClient *es.Client
		notifier profilesync.ChangeNotifier
		searcher handler.ProfileSearcher
	)
	if s.cfg.ElasticURL != "" {
		esClient, err = search.NewClient(s.cfg.ElasticURL)
		if err != nil {
			return err
		}
		notifier = search.NewOutboxNotifier(s.store)
		searcher = search.NewSearcher(esClient)
		s.indexer = search.NewWorker(s.store, s.store, esClient, s.logger.With(slog.String("component", "search")))
	}

	s.registry = profilesync.NewRegistry(profilesync.Deps{
		Sessions: authSvc,
		Store:    s.store,
		Objects:  objects,
		Notifier: notifier,
		Logger:   s.logger.With(slog.String("component", "profilesync")),
	}, profilesync.Options{
		SuccessTTL:     s.cfg.SuccessTTL,
		AutoSaveDelay:  s.cfg.AutoSaveDelay,
		MaxAvatarBytes: s.cfg.MaxAvatarBytes,
		IdleTTL:        s.cfg.SessionIdleTTL,
	})
	s.watcher = profilesync.NewWatcher(authSvc, s.registry, s.logger.With(slog.String("component", "watcher")))

	s.routes(objects, searcher)
	return nil
}

// routes
//
//	GET    /healthz
//	GET    /metrics
//	GET    /storage/*                       uploaded objects
//	POST   /auth/signup | /auth/login | /auth/logout
//	GET    /auth/github/login | /auth/github/callback
//	-- below here RequireAuth --
//	GET    /api/me
//	GET    /api/skills
//	GET    /api/profile?view=               PUT /api/profile (save)
//	POST   /api/profile/reload
//	PATCH  /api/profile/draft
//	POST   /api/profile/welcome/dismiss
//	POST   /api/profile/avatar
//	POST   /api/profile/skills/custom
//	POST   /api/profile/skills/{id}         DELETE /api/profile/skills/{id}
//	GET    /api/tasks                       POST /api/tasks
//	PATCH  /api/tasks/{id}                  DELETE /api/tasks/{id}
//	GET    /api/scopes                      POST /api/scopes
//	GET    /api/search/profiles?q=
func (s *Server) routes(objects *storage.Disk, searcher handler.ProfileSearcher) {
	r := chi.NewRouter()

	// Order matters: the request ID must exist before anything logs, and
	// Recoverer sits inside the logger so a panic still gets a log line.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Metrics)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	prefix := storagePrefix(s.cfg.StoragePublicURL)
	r.Handle(prefix+"/*", http.StripPrefix(prefix, objects.Handler()))

	authHandler := handler.NewAuthHandler(s.auth, s.logger)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignUp)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
	})

	profiles := handler.NewProfileHandler(s.registry, s.store, s.cfg.MaxAvatarBytes, s.logger)
	tasks := handler.NewTaskHandler(service.NewTaskService(s.store, s.logger), s.logger)
	searchHandler := handler.NewSearchHandler(searcher)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.auth))

		r.Get("/me", authHandler.HandleMe)
		r.Get("/skills", profiles.HandleListSkills)

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", profiles.HandleGet)
			r.Put("/", profiles.HandleSave)
			r.Post("/reload", profiles.HandleReload)
			r.Patch("/draft", profiles.HandleUpdateDraft)
			r.Post("/welcome/dismiss", profiles.HandleDismissWelcome)
			r.Post("/avatar", profiles.HandleUploadAvatar)
			r.Post("/skills/custom", profiles.HandleAddCustomSkill)
			r.Post("/skills/{id}", profiles.HandleAddSkill)
			r.Delete("/skills/{id}", profiles.HandleRemoveSkill)
		})

		r.Get("/tasks", tasks.HandleList)
		r.Post("/tasks", tasks.HandleCreate)
		r.Patch("/tasks/{id}", tasks.HandleUpdate)
		r.Delete("/tasks/{id}", tasks.HandleDelete)
		r.Get("/scopes", tasks.HandleListScopes)
		r.Post("/scopes", tasks.HandleCreateScope)

		r.Get("/search/profiles", searchHandler.HandleSearch)
	})

	s.router = r
}

// storagePrefix is the path part of the public storage URL, which is
// where the object handler has to be mounted for PublicURL to resolve.
func storagePrefix(publicURL string) string {
	p := "/storage"
	if u, err := url.Parse(publicURL); err == nil && strings.Trim(u.Path, "/") != "" {
		p = "/" + strings.Trim(u.Path, "/")
	}
	return p
}

// Handler is the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry exposes the mounted controllers.
func (s *Server) Registry() *profilesync.Registry {
	return s.registry
}

// RunWorkers runs the session watcher and, when search is configured,
// the outbox indexer until ctx ends.
func (s *Server) RunWorkers(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.watcher.Run(ctx) })
	if s.indexer != nil {
		g.Go(func() error { return s.indexer.Run(ctx) })
	}
	return g.Wait()
}

// Run serves HTTP and the background workers until ctx is cancelled, then
// gives in-flight requests shutdownTimeout to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // avatar uploads
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("store", s.cfg.StoreDriver),
			slog.Bool("search", s.indexer != nil),
			slog.Bool("github", s.cfg.GitHubEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error { return s.RunWorkers(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.logger.Info("server stopped")
	return err
}

// Close stops every controller and closes the store.
func (s *Server) Close() error {
	s.registry.Close()
	return s.store.Close()
}
