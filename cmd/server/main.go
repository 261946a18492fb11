package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/plumehq/plume/counters"
	"github.com/plumehq/plume/images"
	"github.com/plumehq/plume/internal/cache"
	"github.com/plumehq/plume/internal/clients"
	"github.com/plumehq/plume/internal/database/postgres"
	"github.com/plumehq/plume/internal/httperr"
	"github.com/plumehq/plume/internal/middleware/authjwt"
	"github.com/plumehq/plume/internal/middleware/requestid"
	"github.com/plumehq/plume/internal/pkg/log"
	platformconfig "github.com/plumehq/plume/internal/platform/config"
	"github.com/plumehq/plume/internal/types"
	"github.com/plumehq/plume/posts"
	postHandlers "github.com/plumehq/plume/posts/handlers"
	postRepository "github.com/plumehq/plume/posts/repository"
	postServices "github.com/plumehq/plume/posts/services"
	"github.com/plumehq/plume/schema"
	"github.com/plumehq/plume/storage/provider"
	"github.com/plumehq/plume/votes"
	voteHandlers "github.com/plumehq/plume/votes/handlers"
	voteRepository "github.com/plumehq/plume/votes/repository"
	voteServices "github.com/plumehq/plume/votes/services"
)

func main() {
	cfg, err := platformconfig.LoadFromEnv()
	if err != nil {
		log.Error("failed to load config: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pgClient, err := postgres.NewClient(ctx, &cfg.Database.Postgres)
	if err != nil {
		log.Error("failed to connect to postgres: %v", err)
		os.Exit(1)
	}

	runner, err := schema.NewRunner(pgClient.DB())
	if err != nil {
		log.Error("failed to load migrations: %v", err)
		os.Exit(1)
	}
	if err := runner.Run(ctx); err != nil {
		log.Error("failed to apply migrations: %v", err)
		os.Exit(1)
	}

	cacheService, err := cache.NewCache(&cache.CacheConfig{
		TTL:             cfg.Cache.TTL,
		Backend:         cache.CacheType(cfg.Cache.Backend),
		MaxMemory:       cfg.Cache.MaxMemory,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Redis: cache.RedisConfig{
			Address:      cfg.Cache.Redis.Address,
			Password:     cfg.Cache.Redis.Password,
			Database:     cfg.Cache.Redis.Database,
			PoolSize:     cfg.Cache.Redis.PoolSize,
			MinIdleConns: cfg.Cache.Redis.MinIdleConns,
			MaxConnAge:   cfg.Cache.Redis.MaxConnAge,
			Cluster: cache.ClusterConfig{
				Enabled:   cfg.Cache.Redis.Cluster.Enabled,
				Addresses: cfg.Cache.Redis.Cluster.Addresses,
			},
		},
	})
	if err != nil {
		log.Error("failed to create cache: %v", err)
		os.Exit(1)
	}

	blobs, err := provider.NewS3Provider(&cfg.Storage)
	if err != nil {
		log.Error("failed to create storage provider: %v", err)
		os.Exit(1)
	}

	pipeline, err := images.NewPipeline(cfg.Images, blobs)
	if err != nil {
		log.Error("failed to create image pipeline: %v", err)
		os.Exit(1)
	}

	tagClient := clients.NewTagClient(cfg.Services.TagServiceURL, cfg.Services.HTTPTimeout)
	userClient := clients.NewUserClient(cfg.Services.UserServiceURL, cfg.Services.HTTPTimeout)
	cdnClient := clients.NewCDNClient(cfg.Services.CDNURL, cfg.Services.HTTPTimeout)

	postRepo := postRepository.NewPostgresRepository(pgClient)
	userRepo := postRepository.NewPostgresUserRepository(pgClient)
	voteRepo := voteRepository.NewPostgresRepository(pgClient)

	counterService := counters.NewService(cacheService, counters.NewSQLSource(pgClient))
	counterPool := counters.NewPool(counterService, cfg.Counters.Workers, cfg.Counters.QueueSize)

	postService := postServices.NewPostService(
		postRepo, userRepo, blobs, pipeline,
		tagClient, userClient, cdnClient,
		cacheService, counterPool, cfg.Images,
	)
	voteService := voteServices.NewVoteService(voteRepo, postRepo, cacheService)

	app := fiber.New(fiber.Config{
		ErrorHandler: httperr.ErrorHandler,
		BodyLimit:    64 * 1024 * 1024,
	})

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:request_id} ${status} ${method} ${path} ${latency}\n",
	}))

	auth := authjwt.New(authjwt.Config{
		Secret:      cfg.Auth.JWTSecret,
		ClaimKey:    "claim",
		UserCtxName: types.UserCtxName,
	})

	posts.RegisterRoutes(app, postHandlers.NewPostHandler(postService), auth)
	votes.RegisterRoutes(app, voteHandlers.NewVoteHandler(voteService), auth)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		status := fiber.Map{"status": "ok", "postgres": "ok", "cache": "ok"}
		code := fiber.StatusOK
		if err := pgClient.HealthCheck(c.UserContext()); err != nil {
			status["status"] = "degraded"
			status["postgres"] = err.Error()
			code = fiber.StatusServiceUnavailable
		}
		if _, err := cacheService.Exists(c.UserContext(), "healthz"); err != nil {
			status["status"] = "degraded"
			status["cache"] = err.Error()
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(status)
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Error("server stopped: %v", err)
		}
	}()
	log.Info("listening on %s", addr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		log.Error("failed to stop server: %v", err)
	}

	// The listener is closed, so no new counter deltas can arrive; drain
	// what is queued before closing the stores underneath the workers.
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := counterPool.Shutdown(drainCtx); err != nil {
		log.Error("failed to drain counter pool: %v", err)
	}

	if err := cacheService.Close(); err != nil {
		log.Error("failed to close cache: %v", err)
	}
	if err := pgClient.Close(); err != nil {
		log.Error("failed to close postgres: %v", err)
	}
}
