package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/code-100-precent/EchoDesk/cmd/bootstrap"
	handlers "github.com/code-100-precent/EchoDesk/internal/handler"
	"github.com/code-100-precent/EchoDesk/internal/task"
	"github.com/code-100-precent/EchoDesk/pkg/audiometer"
	"github.com/code-100-precent/EchoDesk/pkg/backend"
	"github.com/code-100-precent/EchoDesk/pkg/calllog"
	"github.com/code-100-precent/EchoDesk/pkg/callsession"
	"github.com/code-100-precent/EchoDesk/pkg/config"
	"github.com/code-100-precent/EchoDesk/pkg/logger"
	"github.com/code-100-precent/EchoDesk/pkg/middleware"
	"github.com/code-100-precent/EchoDesk/pkg/recording"
	"github.com/code-100-precent/EchoDesk/pkg/signaling"
	stores "github.com/code-100-precent/EchoDesk/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// 1. Print Banner
	if err := bootstrap.PrintBannerFromFile("banner.txt"); err != nil {
		log.Fatalf("unload banner: %v", err)
	}

	// 2. Parse Command Line Parameters
	mode := flag.String("mode", "", "running environment (development, test, production)")
	initSQL := flag.String("init-sql", "", "path to database init .sql script (optional)")
	flag.Parse()

	// 3. Set Environment Variables
	if *mode != "" {
		os.Setenv("APP_ENV", *mode)
	}

	// 4. Load Global Configuration
	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}

	// 5. Load Log Configuration
	if err := logger.Init(&config.GlobalConfig.Log, config.GlobalConfig.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 6. Print Configuration
	bootstrap.LogConfigInfo()

	// 7. Load Data Source
	db, err := bootstrap.SetupDatabase(os.Stdout, &bootstrap.Options{
		InitSQLPath: *initSQL,
		AutoMigrate: true,
		SeedNonProd: os.Getenv("APP_ENV") != "production",
	})
	if err != nil {
		logger.Error("database setup failed", zap.Error(err))
		return
	}

	// 8. Build the call-session core
	cfg := config.GlobalConfig

	client := backend.NewClient(cfg.BackendBaseURL, cfg.BackendAPIKey, cfg.BackendTimeout)
	store := stores.NewLocalStore(cfg.RecordingStorePath)
	resolver := recording.NewResolver(client, store, cfg.RecordingCacheTTL)
	meter := audiometer.NewMeter(audiometer.Config{
		SampleRate:     cfg.MeterSampleRate,
		WaveformPoints: cfg.WaveformPoints,
	})

	// The completion callback routes finished sessions to whichever lead
	// surface is open. Submission happens off the event path so a slow
	// backend never delays the next signaling event.
	var h *handlers.Handlers
	machine := callsession.NewMachine(func(snap callsession.Snapshot, status callsession.CallStatus) {
		rec := h.ActiveReconciler()
		if rec == nil {
			logger.Warn("call finished with no open lead surface, dropping log entry",
				zap.String("number", snap.Number))
			return
		}
		go func(rec *calllog.Reconciler) {
			if err := rec.RecordCompletion(context.Background(), snap, status); err != nil {
				logger.Warn("call log submission failed", zap.Error(err))
			}
		}(rec)
	})

	manager := signaling.NewManager(client, func() signaling.Device {
		return signaling.NewWSDevice(cfg.SignalingURL)
	}, machine)

	h = handlers.NewHandlers(db, machine, manager, meter, resolver, client, store)

	// 9. Start Timed Tasks
	go task.StartMirrorPruner(db, 30*24*time.Hour)
	go task.StartRecordingSweeper(store, 24*time.Hour)

	// 10. Initialize Gin Routing
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	// 11. Use Middleware
	r.Use(middleware.CorsMiddleware())
	r.Use(middleware.LoggerMiddleware(logger.L()))

	// 12. Register Routes
	h.Register(r)
	r.GET(cfg.MonitorPrefix, gin.WrapH(promhttp.Handler()))

	// 13. Start HTTP Server
	httpServer := &http.Server{
		Addr:           cfg.Addr,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server run failed", zap.Error(err))
		}
	}()

	// 14. Graceful Shutdown: surface teardown first, then the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	h.Teardown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
}
