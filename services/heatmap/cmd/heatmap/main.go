package main

import (
	"context"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/playback-heatmap/internal/platform/analytics"
	"github.com/example/playback-heatmap/internal/platform/auth"
	"github.com/example/playback-heatmap/internal/platform/config"
	"github.com/example/playback-heatmap/internal/platform/db"
	"github.com/example/playback-heatmap/internal/platform/httpserver"
	"github.com/example/playback-heatmap/internal/platform/logging"
	"github.com/example/playback-heatmap/internal/platform/metrics"
	"github.com/example/playback-heatmap/internal/platform/natsconn"
	"github.com/example/playback-heatmap/internal/platform/run"
	"github.com/example/playback-heatmap/services/heatmap/internal/cache"
	hmconfig "github.com/example/playback-heatmap/services/heatmap/internal/config"
	"github.com/example/playback-heatmap/services/heatmap/internal/handlers"
	"github.com/example/playback-heatmap/services/heatmap/internal/idempotency"
	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
	"github.com/example/playback-heatmap/services/heatmap/internal/service"
	"github.com/example/playback-heatmap/services/heatmap/internal/store"
	"github.com/example/playback-heatmap/services/heatmap/internal/worker"
)

func main() {
	appCfg, err := config.Load("heatmap")
	if err != nil {
		panic(err)
	}
	log, err := logging.New(appCfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", appCfg.ServiceName))

	cfg, err := hmconfig.LoadHeatmap()
	if err != nil {
		log.Error("heatmap config", zap.Error(err))
		run.Exit(1)
	}

	ctx := context.Background()

	var (
		pool    *pgxpool.Pool
		actions store.ActionStore
	)
	if strings.TrimSpace(os.Getenv("DATABASE_URL")) == "" && !cfg.IsProd() {
		log.Warn("DATABASE_URL not set; using in-memory action store")
		actions = store.NewMemoryActionStore()
	} else {
		pool, err = db.Open(ctx, db.Options{})
		if err != nil {
			log.Error("db open", zap.Error(err))
			run.Exit(1)
		}
		defer pool.Close()
		pg := store.NewPostgresActionStore(pool)
		if cfg.EnsureSchema {
			if err := pg.EnsureSchema(ctx); err != nil {
				log.Error("ensure schema", zap.Error(err))
				run.Exit(1)
			}
		}
		actions = pg
	}

	var (
		rdb          *redis.Client
		heatmapCache cache.Cache
	)
	switch {
	case cfg.RedisURL == "" && cfg.IsProd():
		log.Warn("REDIS_URL not set; heatmaps are computed on every read")
	case cfg.RedisURL == "":
		heatmapCache = cache.NewMemory(cfg.CacheTTL)
	default:
		cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "heatmap-cache",
			Timeout: cfg.CBTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.CBFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		rc, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL, cb)
		if err != nil {
			log.Error("redis cache", zap.Error(err))
			run.Exit(1)
		}
		defer func() { _ = rc.Close() }()
		rdb = rc.Client
		heatmapCache = rc
	}

	idem, err := idempotency.NewStore(rdb, pool, cfg.EventTTL, cfg.IsProd())
	if err != nil {
		log.Error("idempotency store", zap.Error(err))
		run.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := &service.Heatmaps{
		Store:   actions,
		Cache:   heatmapCache,
		Reduce:  playback.ReduceOptions{Budget: cfg.Budget, FanIn: cfg.FanIn, Workers: cfg.Workers},
		Log:     log.Named("service"),
		Metrics: m,
	}

	var (
		js       nats.JetStreamContext
		consumer *worker.ActionsConsumer
	)
	nc, err := natsconn.Connect(natsconn.Options{Name: appCfg.ServiceName})
	if err != nil {
		if cfg.IsProd() {
			log.Error("nats connect", zap.Error(err))
			run.Exit(1)
		}
		log.Warn("nats unavailable; uploads are ingested synchronously", zap.Error(err))
	} else {
		defer nc.Close()
		js, err = nc.JetStream()
		if err != nil {
			log.Error("jetstream", zap.Error(err))
			run.Exit(1)
		}
		for _, subject := range []string{cfg.Subject, analytics.SubjectHeatmapViewed} {
			if _, err := natsconn.EnsureStream(js, subject); err != nil {
				log.Error("ensure stream", zap.String("subject", subject), zap.Error(err))
				run.Exit(1)
			}
		}
		consumer = &worker.ActionsConsumer{
			JS:          js,
			Subject:     cfg.Subject,
			Durable:     cfg.Durable,
			BatchSize:   cfg.BatchSize,
			BatchWait:   cfg.BatchWait,
			Ingester:    svc,
			Idempotency: idem,
			Log:         log.Named("worker"),
			Metrics:     m,
		}
	}

	var ready func() error
	if pool != nil {
		ready = db.Ready(pool)
	}
	router := chi.NewRouter()
	httpserver.SetupRouter(router, httpserver.RouterConfig{ReadyFunc: ready, Logger: log.Named("http")})

	var publisher *handlers.EventPublisher
	var an *analytics.Publisher
	if js != nil {
		publisher = handlers.NewEventPublisher(js, cfg.Subject, cfg.AsyncWrites)
		an = analytics.New(js, log.Named("analytics"))
	}
	var uploadLimiter *httpserver.RateLimiter
	if cfg.UploadRate > 0 {
		uploadLimiter = httpserver.NewRateLimiter(cfg.UploadRate, cfg.UploadBurst, handlers.UserKey)
	}
	handlers.Mount(router, handlers.Deps{
		Service:       svc,
		Publisher:     publisher,
		Analytics:     an,
		Verifier:      auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)},
		Metrics:       m.Handler(),
		Log:           log.Named("handlers"),
		UploadLimiter: uploadLimiter,
	})

	srv := httpserver.New(httpserver.Options{Addr: appCfg.HTTP.Addr, ServiceName: appCfg.ServiceName, Logger: log, Router: router})

	runner := run.New(log)
	runner.ShutdownTimeout = appCfg.HTTP.ShutdownTimeout
	code := runner.WithSignals(func(ctx context.Context) error {
		if consumer != nil {
			go func() {
				if err := consumer.Run(ctx); err != nil {
					log.Error("actions consumer stopped", zap.Error(err))
				}
			}()
		}
		return srv.Start()
	})
	runner.Graceful(srv.Shutdown, func(context.Context) error {
		if nc == nil {
			return nil
		}
		return nc.Drain()
	})
	run.Exit(code)
}
