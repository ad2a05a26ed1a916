package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kelvins/geocoder"

	httpapi "github.com/angelassilviane/EVAONLINE/internal/api/http"
	"github.com/angelassilviane/EVAONLINE/internal/cache"
	"github.com/angelassilviane/EVAONLINE/internal/climate"
	"github.com/angelassilviane/EVAONLINE/internal/climate/sources"
	"github.com/angelassilviane/EVAONLINE/internal/config"
	"github.com/angelassilviane/EVAONLINE/internal/ratelimit"
	"github.com/angelassilviane/EVAONLINE/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if cfg.GoogleAPIKey != "" {
		geocoder.ApiKey = cfg.GoogleAPIKey
	}

	// Shared HTTP client for outbound source calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	limiter := ratelimit.New()
	clientCfg := sources.ClientConfig{
		Client:    httpClient,
		UserAgent: cfg.UserAgent,
		Limiter:   limiter,
	}

	srcs := []climate.Source{
		sources.NewMETNorwaySource(clientCfg, cfg.MinSampleFraction),
		sources.NewNASAPowerSource(clientCfg),
		sources.NewNWSForecastSource(clientCfg, cfg.MinSampleFraction),
		sources.NewNWSStationsSource(clientCfg, cfg.MinSampleFraction),
		sources.NewOpenMeteoArchiveSource(clientCfg, cfg.OpenMeteoAPIKey),
		sources.NewOpenMeteoForecastSource(clientCfg, cfg.OpenMeteoAPIKey),
	}
	for _, src := range srcs {
		d := src.Descriptor()
		limiter.Register(d.ID, ratelimit.Policy{
			Requests:        d.RequestsPerSecond,
			Window:          time.Second,
			FixedRetryAfter: d.FixedRetryAfter,
		})
	}

	// Two-tier cache: Redis primary when configured, in-process fallback
	// always.
	var primary cache.Store
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisStore, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cancel()
		if err != nil {
			log.Printf("redis unavailable, running on the in-process cache only: %v", err)
		} else {
			primary = redisStore
			defer redisStore.Close()
		}
	}
	layer := cache.NewLayer(primary, cache.NewMemoryStore(cfg.CacheMaxEntries))

	orch := climate.NewOrchestrator(srcs, layer)

	sched := scheduler.New(cfg.WarmLocations, cfg.WarmInterval, orch)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "evaonline",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          45 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "evaonline",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, orch, srcs, cfg.QueryTimeout)

	// Start server with graceful shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
