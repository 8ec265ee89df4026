package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Simplici0/batchcost/internal/batch"
	"github.com/Simplici0/batchcost/internal/catalog"
	"github.com/Simplici0/batchcost/internal/config"
	"github.com/Simplici0/batchcost/internal/db"
	"github.com/Simplici0/batchcost/internal/migrations"
	"github.com/Simplici0/batchcost/internal/seed"
	"github.com/Simplici0/batchcost/internal/store"
	"github.com/Simplici0/batchcost/internal/technology"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	batches *batch.Service
	sets    *batch.SetService
	tech    *technology.Service
	auth    *authService
	log     *zap.Logger
}

func newServer(st *store.Store, cache *catalog.Cache, auth *authService, logger *zap.Logger) *server {
	batches := batch.NewService(st, cache, logger.Named("batch"))
	return &server{
		batches: batches,
		sets:    batch.NewSetService(batches),
		tech:    technology.NewService(st, cache, batches, logger.Named("technology")),
		auth:    auth,
		log:     logger,
	}
}

func main() {
	cfg := config.Load()

	logger, err := initLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer database.Close()

	if err := migrations.Up(database); err != nil {
		logger.Fatal("failed to run database migrations", zap.Error(err))
	}

	st := store.New(database)
	stats, err := seed.Run(context.Background(), st)
	if err != nil {
		logger.Fatal("failed to seed database", zap.Error(err))
	}
	logger.Info("seed complete", zap.Int("inserts", stats.Inserts))

	cache := catalog.New(st, catalog.WithTTL(cfg.CatalogCacheTTL))
	auth := newAuthService(cfg.SessionSecret, cfg.IsDev())
	srv := newServer(st, cache, auth, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", httpServer.Addr), zap.String("env", cfg.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.auth.principalMiddleware)

		r.Post("/batches", s.handleCreateBatch)
		r.Route("/batches/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetBatch)
			r.Put("/", s.handleUpdateBatch)
			r.Delete("/", s.handleDeleteBatch)
			r.Post("/recalculate", s.handleRecalculateBatch)
			r.Post("/freeze", s.handleFreezeBatch)
			r.Post("/clone", s.handleCloneBatch)
			r.Get("/costs", s.handleBatchCosts)
		})

		r.Post("/batch-sets", s.handleCreateSet)
		r.Route("/batch-sets/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSet)
			r.Delete("/", s.handleDeleteSet)
			r.Post("/batches", s.handleAddSetBatch)
			r.Delete("/batches/{batchID}", s.handleRemoveSetBatch)
			r.Post("/freeze", s.handleFreezeSet)
			r.Post("/recalculate", s.handleRecalculateSet)
			r.Post("/clone", s.handleCloneSet)
			r.Get("/costs", s.handleSetCosts)
		})

		r.Post("/parts", s.handleCreatePart)
		r.Get("/parts/{id}", s.handleGetPart)
		r.Put("/parts/{id}", s.handleUpdatePart)
		r.Post("/parts/{id}/operations", s.handleCreateOperation)
		r.Post("/parts/{id}/features", s.handleCreateFeature)
		r.Put("/operations/{id}", s.handleUpdateOperation)
		r.Delete("/operations/{id}", s.handleDeleteOperation)
		r.Put("/features/{id}", s.handleUpdateFeature)
		r.Delete("/features/{id}", s.handleDeleteFeature)

		r.Post("/material-groups", s.handleCreateMaterialGroup)
		r.Put("/material-groups/{id}", s.handleUpdateMaterialGroup)
		r.Post("/materials", s.handleCreateMaterial)
		r.Put("/materials/{id}", s.handleUpdateMaterial)
		r.Post("/machines", s.handleCreateMachine)
		r.Put("/machines/{id}", s.handleUpdateMachine)
	})

	return r
}

func initLogger(level, format string) (*zap.Logger, error) {
	var zapCfg zap.Config

	if format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}
