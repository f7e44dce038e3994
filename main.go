package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/handlers"
	"github.com/contextforge/contextforge/backend/go-services/internal/batches"
	"github.com/contextforge/contextforge/backend/go-services/internal/config"
	"github.com/contextforge/contextforge/backend/go-services/internal/database"
	"github.com/contextforge/contextforge/backend/go-services/internal/document/handler"
	"github.com/contextforge/contextforge/backend/go-services/internal/document/service"
	"github.com/contextforge/contextforge/backend/go-services/internal/ingest"
	"github.com/contextforge/contextforge/backend/go-services/internal/oidc"
	"github.com/contextforge/contextforge/backend/go-services/internal/pipeline"
	"github.com/contextforge/contextforge/backend/go-services/internal/query"
	"github.com/contextforge/contextforge/backend/go-services/internal/storage"
	"github.com/contextforge/contextforge/backend/go-services/pkg/logger"
	"github.com/contextforge/contextforge/backend/go-services/pkg/metrics"
	"github.com/contextforge/contextforge/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: storage=%s mongo=%v redis=%v keycloak=%v", cfg.Storage.Driver, cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.Keycloak.URL != "")
	ctx := context.Background()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+handlers.BatchHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Retry-After")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	// Redis backs batch snapshots and the shared rate limiter when configured
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
		} else {
			rdb = client
			logger.Infof("connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	catalog := service.NewMemoryService()
	var mongoClient *mongo.Client
	if cfg.MongoDB.URI != "" {
		// retry/backoff to tolerate startup races with the database container
		const maxAttempts = 5
		var errConn error
		mongoClient, errConn = database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, maxAttempts, time.Second)
		if errConn != nil {
			logger.Warnf("using in-memory catalog: %v", errConn)
			mongoClient = nil
		} else {
			defer func() { _ = mongoClient.Disconnect(ctx) }()
			col := mongoClient.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection)
			svc, err := service.NewMongoService(ctx, col)
			if err != nil {
				logger.Fatalf("catalog init failed: %v", err)
			}
			catalog = svc
		}
	}

	gw, local, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatalf("storage init failed: %v", err)
	}

	pipe := pipeline.New(gw,
		ingest.NewDispatcher(cfg.Backend.IndexerURL, nil, cfg.Backend.Timeout),
		catalog,
		pipeline.WithSignedURLTTL(cfg.Storage.SignedURLTTL),
		pipeline.WithValidator(pipeline.Validator{MaxBytes: cfg.Upload.MaxBytes, Sniff: cfg.Upload.SniffBytes}),
	)
	var batchStore batches.Store = batches.NewMemoryStore()
	if rdb != nil {
		batchStore = batches.NewRedisStore(rdb, "batch:", cfg.Redis.BatchTTL)
	}
	tracker := batches.NewTracker(batchStore)
	coord := pipeline.NewCoordinator(pipe, tracker)
	relay := query.NewRelay(cfg.Backend.AnswerURL, nil, cfg.Backend.Timeout)

	var verifier middleware.Verifier
	if v, err := oidc.FromConfig(ctx, cfg.Keycloak); err == nil {
		verifier = v
	} else if err != oidc.ErrNotConfigured {
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	}
	if verifier == nil && strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN")), "true") {
		logger.Warn("enabling insecure OIDC verifier (integration mode)")
		verifier = oidc.InsecureVerifier{}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready only when every configured dependency answered
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{"storage": gw != nil, "catalog": true, "redis": true, "oidc": true}
		if cfg.MongoDB.URI != "" {
			deps["catalog"] = mongoClient != nil && mongoClient.Ping(c.Request.Context(), nil) == nil
		}
		if cfg.Redis.Host != "" {
			deps["redis"] = rdb != nil && rdb.Ping(c.Request.Context()).Err() == nil
		}
		if cfg.Keycloak.URL != "" {
			deps["oidc"] = verifier != nil
		}
		ready := true
		for _, ok := range deps {
			ready = ready && ok
		}
		uptime := time.Since(startTime).String()
		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": uptime})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": uptime})
	})

	api := r.Group("/")
	if verifier != nil {
		api.Use(middleware.AuthMiddleware(verifier))
	}
	if cfg.RateLimit.Enabled {
		var lim middleware.Limiter = middleware.NewMemoryLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		if cfg.RateLimit.UseRedis && rdb != nil {
			lim = middleware.NewRedisLimiter(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
		}
		api.Use(middleware.RateLimitMiddleware(lim))
		logger.Infof("rate limiter enabled (%s)", lim.Name())
	}
	handlers.NewIngestHandler(cfg.Upload, pipe, coord, tracker, relay).Register(api)
	handler.RegisterDocumentRoutes(api, catalog)

	if local != nil {
		handlers.RegisterBlobRoute(r, local)
	}
	handlers.RegisterSwagger(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: cfg.Server.ReadTimeout, WriteTimeout: cfg.Server.WriteTimeout}
	logger.Infof("starting gateway on %s (indexer=%s answer=%s)", addr, cfg.Backend.IndexerURL, cfg.Backend.AnswerURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server failed: %v", err)
	}
}
