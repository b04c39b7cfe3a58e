package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Simplici0/hppengine/internal/alerts"
	"github.com/Simplici0/hppengine/internal/app"
	"github.com/Simplici0/hppengine/internal/automation"
	"github.com/Simplici0/hppengine/internal/catalog"
	"github.com/Simplici0/hppengine/internal/comparison"
	"github.com/Simplici0/hppengine/internal/config"
	"github.com/Simplici0/hppengine/internal/db"
	"github.com/Simplici0/hppengine/internal/export"
	"github.com/Simplici0/hppengine/internal/logger"
	"github.com/Simplici0/hppengine/internal/migrations"
	"github.com/Simplici0/hppengine/internal/recommendations"
	"github.com/Simplici0/hppengine/internal/seed"
	"github.com/Simplici0/hppengine/internal/snapshot"
)

type server struct {
	log             zerolog.Logger
	identity        *identityService
	coordinator     *automation.Coordinator
	snapshots       *snapshot.Store
	comparisons     *comparison.Engine
	alerts          *alerts.Log
	recommendations *recommendations.Store
	costs           *catalog.OperationalCosts
	exports         *export.Service
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()

	if err := migrations.Up(database, log); err != nil {
		log.Fatal().Err(err).Msg("failed to run database migrations")
	}
	if cfg.IsDev() {
		stats, err := seed.Run(database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to seed demo catalog")
		}
		log.Info().Int("inserts", stats.Inserts).Msg("demo catalog seeded")
	}

	srv := newServer(database, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched, err := srv.schedule(ctx, cfg.BatchSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid batch schedule")
	}
	if sched != nil {
		sched.Start()
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(cfg.CORSAllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	// Running batches observe the cancellation and finish their in-flight recipes.
	cancel()
	if sched != nil {
		<-sched.Stop().Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped")
}

func newServer(database *sql.DB, cfg config.Config, log zerolog.Logger) *server {
	a := app.New(database, cfg, log)
	return &server{
		log:             log.With().Str("component", "http").Logger(),
		identity:        newIdentityService(cfg.SessionSecret),
		coordinator:     a.Coordinator,
		snapshots:       a.Snapshots,
		comparisons:     a.Comparisons,
		alerts:          a.Alerts,
		recommendations: a.Recommendations,
		costs:           a.Costs,
		exports:         a.Exports,
	}
}

func (s *server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", userHeader, signatureHeader},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/hpp", func(r chi.Router) {
		r.Use(s.identityMiddleware)
		r.Post("/automation", s.handleAutomationTrigger)
		r.Get("/automation", s.handleAutomationStatus)
		r.Get("/comparison", s.handleComparison)
		r.Get("/snapshots", s.handleSnapshots)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/export", s.handleExport)

		r.Get("/recommendations", s.handleRecommendationsList)
		r.Post("/recommendations", s.handleRecommendationsCreate)
		r.Get("/recommendations/{id}", s.handleRecommendationsGet)
		r.Patch("/recommendations/{id}", s.handleRecommendationsUpdate)
		r.Delete("/recommendations/{id}", s.handleRecommendationsDelete)
	})
	return r
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// schedule registers the periodic batch recalculation. An empty expression disables it.
func (s *server) schedule(ctx context.Context, expr string) (*cron.Cron, error) {
	if expr == "" {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		res, err := s.coordinator.Handle(ctx, automation.BatchRecalculate{Reason: "scheduled", Force: true})
		if err != nil {
			s.log.Error().Err(err).Msg("scheduled recalculation failed")
			return
		}
		s.log.Info().
			Int("total", res.Total).
			Int("success", res.SuccessCount).
			Int("errors", res.ErrorCount).
			Msg("scheduled recalculation finished")
	})
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return c, nil
}
