package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionpricing/internal/pricing/application"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/messaging"
	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/persistence/mysql"
	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/persistence/redis"
	"github.com/wyfcoding/optionpricing/internal/pricing/interfaces/consumer"
	httpserver "github.com/wyfcoding/optionpricing/internal/pricing/interfaces/http"
	"github.com/wyfcoding/optionpricing/pkg/cache"
	"github.com/wyfcoding/optionpricing/pkg/config"
	"github.com/wyfcoding/optionpricing/pkg/db"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
	"github.com/wyfcoding/optionpricing/pkg/mq"
	"github.com/wyfcoding/optionpricing/pkg/ratelimit"
	"github.com/wyfcoding/optionpricing/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

var configPath = flag.String("config", "configs/pricing/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
		Service:    cfg.ServiceName,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	if err := run(cfg); err != nil {
		logger.Fatal(context.Background(), "server exited with error", "error", err)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	// 3. 追踪与指标
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.Version,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	m := metrics.New(cfg.ServiceName)

	// 4. 数据库
	database, err := db.Init(ctx, db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := mysql.AutoMigrate(database.DB); err != nil {
			return fmt.Errorf("failed to migrate pricing tables: %w", err)
		}
		if err := messaging.AutoMigrate(database.DB); err != nil {
			return fmt.Errorf("failed to migrate outbox table: %w", err)
		}
	}

	// 5. Redis 结果缓存，不可用时关闭缓存
	var resultCache domain.PricingResultCache
	redisCache, err := cache.New(ctx, cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Warn(ctx, "redis unavailable, result cache disabled", "error", err)
	} else {
		defer redisCache.Close()
		resultCache = redis.NewPricingResultCache(redisCache, time.Duration(cfg.Redis.ResultTTL)*time.Second)
	}

	// 6. Kafka 与 Outbox
	kafkaCfg := mq.KafkaConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
		MaxRetries:     cfg.Kafka.MaxRetries,
		RetryBackoff:   cfg.Kafka.RetryBackoff,
	}
	producer := mq.NewProducer(kafkaCfg)
	defer producer.Close()
	publisher := messaging.NewOutboxEventPublisher(database.DB, producer, cfg.Kafka.EventsTopic, m)

	// 7. 应用服务
	repo := mysql.NewPricingRepository(database.DB)
	commandSvc := application.NewPricingCommandService(repo, resultCache, publisher, application.NewOptionBook(), cfg.Pricing, m)
	querySvc := application.NewPricingQueryService(repo, resultCache, m)
	appService := application.NewPricingService(commandSvc, querySvc)

	volConsumer := mq.NewConsumer(kafkaCfg, cfg.Kafka.VolatilityTopic)
	defer volConsumer.Close()
	volHandler := consumer.NewVolatilityHandler(appService)

	// 8. HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	opts := httpserver.RouterOptions{ServiceName: cfg.ServiceName}
	if cfg.Metrics.Enabled {
		opts.Metrics = m
		opts.MetricsPath = cfg.Metrics.Path
	}
	if cfg.RateLimit.Enabled {
		opts.RateLimit = ratelimit.PerSecond(cfg.RateLimit.QPS, cfg.RateLimit.Burst)
		if cfg.RateLimit.Backend == "redis" && redisCache != nil {
			opts.Limiter = ratelimit.NewRedisRateLimiter(redisCache.GetClient())
		} else {
			opts.Limiter = ratelimit.NewLocalRateLimiter()
		}
	}
	router := httpserver.NewRouter(httpserver.NewPricingHandler(appService), opts)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 9. 启动服务
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return publisher.Run(gctx,
			time.Duration(cfg.Kafka.OutboxInterval)*time.Millisecond,
			cfg.Kafka.OutboxBatchSize,
			time.Duration(cfg.Kafka.OutboxRetention)*time.Hour,
		)
	})

	g.Go(func() error {
		return volConsumer.Run(gctx, volHandler.Handle)
	})

	// 10. 优雅关闭
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			logger.Info(gctx, "shutting down servers...")
		case <-gctx.Done():
			logger.Info(gctx, "context cancelled, shutting down...")
		}

		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			return err
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}

// errShutdown 由信号协程返回，用于取消其余协程
var errShutdown = errors.New("shutdown requested")
