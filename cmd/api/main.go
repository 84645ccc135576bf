package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/juggajay/siteproof-v2-sub005/internal/cache"
	"github.com/juggajay/siteproof-v2-sub005/internal/config"
	"github.com/juggajay/siteproof-v2-sub005/internal/handler"
	"github.com/juggajay/siteproof-v2-sub005/internal/middleware"
	"github.com/juggajay/siteproof-v2-sub005/internal/repository"
	"github.com/juggajay/siteproof-v2-sub005/internal/router"
	"github.com/juggajay/siteproof-v2-sub005/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting SiteProof API...")

	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	inspectionRepo := openInspectionRepository(cfg)
	defer inspectionRepo.Close()

	ncrRepo := openNCRRepository(cfg)
	defer ncrRepo.Close()

	syncCache, cacheCheck := openCache(cfg)
	defer syncCache.Close()

	// Services
	syncService := service.NewSyncService(inspectionRepo, syncCache, service.SyncServiceConfig{
		IdempotencyTTL: cfg.Sync.IdempotencyTTL,
		MaxBatch:       cfg.Sync.MaxBatch,
	})
	ncrService := service.NewNCRService(ncrRepo, nil)

	// Handlers
	healthHandler := handler.New(cfg.App.Name, cfg.App.Version)
	healthHandler.AddCheck("inspection_db", inspectionRepo)
	healthHandler.AddCheck("ncr_db", ncrRepo)
	if cacheCheck != nil {
		healthHandler.AddCheck("cache", cacheCheck)
	}

	if len(cfg.Auth.APIKeys) == 0 {
		log.Println("Warning: API_KEYS is empty, API key check disabled")
	}
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		APIKeys: cfg.Auth.APIKeys,
	})

	r := router.New(router.Config{
		Handler:        healthHandler,
		SyncHandler:    handler.NewSyncHandler(syncService),
		NCRHandler:     handler.NewNCRHandler(ncrService),
		AdminHandler:   handler.NewAdminHandler(inspectionRepo, ncrRepo, syncCache),
		AuthMiddleware: authMiddleware,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

func openInspectionRepository(cfg *config.Config) repository.InspectionRepository {
	switch cfg.InspectionDB.Type {
	case "postgres", "postgresql":
		repo, err := repository.NewPostgresInspectionRepository(cfg.InspectionDB.PostgresDSN())
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL: %v", err)
		}
		log.Println("PostgreSQL inspection repository initialized")
		return repo
	default:
		repo, err := repository.NewSQLiteInspectionRepository(cfg.InspectionDB.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		log.Println("SQLite inspection repository initialized")
		return repo
	}
}

func openNCRRepository(cfg *config.Config) repository.NCRRepository {
	switch cfg.NCRDB.Type {
	case "mysql":
		db, err := repository.OpenMySQL(cfg.NCRDB.DSN())
		if err != nil {
			log.Fatalf("Failed to connect to MySQL: %v", err)
		}
		repo, err := repository.NewMySQLNCRRepository(db)
		if err != nil {
			db.Close()
			log.Fatalf("Failed to initialize MySQL NCR repository: %v", err)
		}
		log.Println("MySQL NCR repository initialized")
		return repo
	default:
		repo, err := repository.NewSQLiteNCRRepository(cfg.NCRDB.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		log.Println("SQLite NCR repository initialized")
		return repo
	}
}

// openCache returns the idempotency cache and, for Redis, a readiness check.
// An unreachable Redis falls back to the in-memory cache.
func openCache(cfg *config.Config) (cache.Cache, handler.Pinger) {
	if cfg.Cache.Type == "redis" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
		})
		if err == nil {
			log.Println("Redis idempotency cache initialized")
			return rc, rc
		}
		log.Printf("Warning: Redis connection failed, using in-memory cache: %v", err)
	}
	log.Println("In-memory idempotency cache initialized")
	return cache.NewMemoryCache(), nil
}
