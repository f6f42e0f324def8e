package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/dealhawk/gamedeals-aggregator/internal/aggregator"
	"github.com/dealhawk/gamedeals-aggregator/internal/config"
	"github.com/dealhawk/gamedeals-aggregator/internal/notifier"
	"github.com/dealhawk/gamedeals-aggregator/internal/sources"
	"github.com/dealhawk/gamedeals-aggregator/internal/storage"
	"github.com/dealhawk/gamedeals-aggregator/internal/stores"
)

const runTimeout = 4 * time.Minute

type Server struct {
	aggregator *aggregator.Aggregator
	store      *storage.Client
	cfg        *config.Config
}

func main() {
	slog.Info("Starting game deals aggregator...")

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := storage.New(ctx, cfg.ProjectID, cfg.KeepDuration)
	if err != nil {
		slog.Error("Critical error initializing Firestore client", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	registry := stores.NewRegistry()
	adapters := []sources.Adapter{
		sources.NewDiscountAPIAdapter(cfg, registry),
		sources.NewStorefrontRSSAdapter(cfg, registry),
		sources.NewVendorPromotionsAdapter(cfg, registry),
	}
	agg := aggregator.New(adapters, store, notifier.New(cfg.DiscordWebhookURL), cfg.MinSavingsPercent, cfg.MaxDeals)

	srv := &Server{aggregator: agg, store: store, cfg: cfg}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", srv.healthHandler)
	router.GET("/deals", srv.dealsHandler)
	// Manual trigger, meant for interactive testing only.
	router.GET("/aggregate", srv.aggregateHandler)
	router.POST("/aggregate", srv.aggregateHandler)
	router.POST("/cron/aggregate", srv.requireCronSecret, srv.cronAggregateHandler)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// The scheduled trigger holds the response open for the whole run.
		WriteTimeout: runTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("Received signal, shutting down gracefully...", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

// requireCronSecret rejects scheduled-trigger requests whose bearer token
// does not match the configured secret, before any pipeline work starts.
func (s *Server) requireCronSecret(c *gin.Context) {
	if s.cfg.CronSecret == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "scheduled trigger not configured"})
		return
	}
	auth := c.GetHeader("Authorization")
	if auth != "Bearer "+s.cfg.CronSecret {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// aggregateHandler kicks off a manual run asynchronously so the HTTP
// response isn't held open across provider fetches and the Firestore batch.
func (s *Server) aggregateHandler(c *gin.Context) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in aggregation run", "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if err := s.aggregator.Run(ctx); err != nil {
			slog.Error("Aggregation run failed", "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "aggregation started"})
}

// cronAggregateHandler runs the cycle synchronously. The scheduler owns
// retrying a failed cycle, so a fetch or persistence failure has to reach
// it as a non-2xx response rather than a fire-and-forget 202.
func (s *Server) cronAggregateHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), runTimeout)
	defer cancel()
	if err := s.aggregator.Run(ctx); err != nil {
		slog.Error("Scheduled aggregation run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "aggregation run failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "aggregation complete"})
}

func (s *Server) healthHandler(c *gin.Context) {
	state, err := s.store.GetRunState(c.Request.Context())
	if err != nil {
		slog.Warn("Failed to read run state for health check", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"lastRunAt": state.LastRunAt,
		"lastBatch": state.LastBatchID,
		"dealCount": state.DealCount,
	})
}

func (s *Server) dealsHandler(c *gin.Context) {
	limit := s.cfg.MaxDeals
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}
	deals, err := s.store.GetActiveDeals(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Failed to query active deals", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deals": deals, "count": len(deals)})
}
