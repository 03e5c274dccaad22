package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fakeman1232/Contract-Ledger-app/config"
	"github.com/fakeman1232/Contract-Ledger-app/handler"
	"github.com/fakeman1232/Contract-Ledger-app/middleware"
	"github.com/fakeman1232/Contract-Ledger-app/pkg/logger"
	"github.com/fakeman1232/Contract-Ledger-app/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	config.GlobalConfig = cfg

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slog.Info("configuration loaded successfully", "store", cfg.Store.Driver)

	store, err := service.OpenStore(&cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	minioSvc, err := service.NewMinioService(&cfg.Minio)
	if err != nil {
		slog.Error("failed to initialize MINIO service", "error", err)
		os.Exit(1)
	}
	if err := minioSvc.EnsureBucket(context.Background()); err != nil {
		slog.Error("failed to ensure MINIO bucket", "error", err)
		os.Exit(1)
	}

	mineruSvc := service.NewMineruService(&cfg.Mineru)
	if mineruSvc.CallbackEnabled() {
		slog.Info("MinerU results delivered by callback", "url", cfg.Mineru.CallbackURL)
	} else {
		slog.Info("MinerU results polled", "interval", cfg.Mineru.PollInterval, "attempts", cfg.Mineru.PollAttempts)
	}

	ingestor := service.NewIngestor(store, minioSvc, mineruSvc, service.NewPDFInspector(cfg.Upload.MaxPages), &cfg.Upload)

	authHandler := handler.NewAuthHandler(cfg)
	projectHandler := handler.NewProjectHandler(store, minioSvc)
	contractHandler := handler.NewContractHandler(store, ingestor)
	statementHandler := handler.NewStatementHandler(store, ingestor, cfg.Upload.MaxSizeBytes())
	callbackHandler := handler.NewCallbackHandler(mineruSvc, ingestor)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	// multipart parts beyond this are spooled to disk
	router.MaxMultipartMemory = cfg.Upload.MaxSizeBytes()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware())
	router.Use(cacheMiddleware())
	router.Use(middleware.RateLimit(cfg.Server.RateLimit, time.Minute))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/mineru/callback", callbackHandler.HandleCallback)
	}

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		protected.GET("/projects", projectHandler.List)
		protected.POST("/projects", projectHandler.Create)
		protected.GET("/projects/:id", projectHandler.Get)
		protected.DELETE("/projects/:id", middleware.RequireRole("admin"), projectHandler.Delete)
		protected.GET("/projects/:id/summary", projectHandler.Summary)
		protected.GET("/projects/:id/export", projectHandler.Export)

		protected.GET("/projects/:id/contracts", contractHandler.List)
		protected.POST("/projects/:id/contracts", contractHandler.Create)
		protected.POST("/projects/:id/statements", statementHandler.Upload)
		protected.POST("/projects/:id/statements/batch", statementHandler.UploadBatch)
		protected.POST("/projects/:id/statements/text", statementHandler.SubmitText)
		protected.GET("/statements/:id", statementHandler.Get)

		protected.GET("/contracts/:id", contractHandler.Get)
		protected.PUT("/contracts/:id", contractHandler.Update)
		protected.DELETE("/contracts/:id", contractHandler.Delete)
		protected.POST("/contracts/:id/timeline", contractHandler.Timeline)
		protected.PUT("/contracts/:id/billing/:month", contractHandler.SetBilling)
		protected.PUT("/contracts/:id/payment/:month", contractHandler.SetPayment)
		protected.GET("/contracts/:id/reconciliation", contractHandler.Reconciliation)
		protected.POST("/contracts/:id/sync", contractHandler.Sync)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	// cancels in-flight parsing; those statements are marked failed
	ingestor.Close()

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// cacheMiddleware keeps API responses, ledgers and exports included, out of
// browser and proxy caches.
func cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
		}
		c.Next()
	}
}
