package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"clearner-backend/internal/api"
	"clearner-backend/internal/config"
	"clearner-backend/internal/content"
	"clearner-backend/internal/database"
	"clearner-backend/internal/events"
	"clearner-backend/internal/identity"
	"clearner-backend/internal/logger"
	"clearner-backend/internal/progress"
	"clearner-backend/internal/store"
	syncpkg "clearner-backend/internal/sync"
)

func main() {
	// Load Config
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting Clearner backend")

	// Init Database
	db, err := database.New(cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	// Schema creation is idempotent; a failure here is not
	// recoverable at runtime
	if err := db.InitSchema(); err != nil {
		logger.Log.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Wire services
	st := store.NewSQLStore(db)
	resolver := identity.NewResolver(st)
	tracker := progress.NewTracker(st)
	recorder := events.NewRecorder(st)
	contentSvc := content.NewService(cfg.Content.Dir)

	maintenance := syncpkg.NewMaintenance(cfg.Maintenance, st)
	maintenance.Start()

	// Init API
	handler := api.NewHandler(resolver, tracker, recorder, contentSvc, maintenance, cfg.Server.CorsOrigins)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	maintenance.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
}
