// README: Entry point; loads config, wires stores and services, starts the event dispatcher, sweeper and HTTP server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medbid/internal/config"
	"medbid/internal/events"
	httptransport "medbid/internal/http"
	"medbid/internal/infra"
	"medbid/internal/modules/assignment"
	"medbid/internal/modules/ledger"
	"medbid/internal/modules/provider"
	"medbid/internal/modules/ranking"
	"medbid/internal/modules/scoring"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("medbid-api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var (
		store      ledger.Store
		providers  provider.Store
		registry   scoring.Registry
		evals      scoring.EvaluationLog = scoring.NewMemoryEvaluationLog()
		locker     assignment.Locker
		broadcasts assignment.BroadcastLog
		geo        provider.GeoIndexer
		directory  provider.Directory
		sinks      = []events.Sink{events.NewLogSink(logger)}
	)

	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = ledger.NewPGStore(pool)
		providers = provider.NewPGDirectory(pool)
		registry = scoring.NewPGRegistry(pool)
		logger.Info("using postgres stores")
	} else {
		store = ledger.NewMemoryStore()
		providers = provider.NewMemoryDirectory()
		registry = scoring.NewMemoryRegistry()
		logger.Info("using in-memory stores")
	}
	directory = providers

	if cfg.Redis.Addr != "" {
		client, err := infra.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		locker = assignment.NewRedisLocker(client, cfg.Redis.LockTTL)
		broadcasts = assignment.NewRedisBroadcastLog(client)
		index := provider.NewRedisGeoIndex(client)
		geo = index
		directory = provider.NewIndexedDirectory(providers, index)
		logger.Info("using redis locks and geo index", zap.String("addr", cfg.Redis.Addr))
	} else {
		locker = assignment.NewLocalLocker()
		broadcasts = assignment.NewMemoryBroadcastLog()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = kafkaSink.Close() }()
		sinks = append(sinks, kafkaSink)
	}
	if cfg.Mongo.URI != "" {
		client, err := infra.NewMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}()
		mongoSink := events.NewMongoSink(client, cfg.Mongo.Database)
		if err := mongoSink.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo index setup failed", zap.Error(err))
		}
		sinks = append(sinks, mongoSink)
		mongoEvals := scoring.NewMongoEvaluationLog(client, cfg.Mongo.Database)
		if err := mongoEvals.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo index setup failed", zap.Error(err))
		}
		evals = mongoEvals
	}

	dispatcher := events.NewDispatcher(cfg.Events.Buffer, logger, sinks...)
	go dispatcher.Run(ctx)
	// Registered after the store defers so queued events flush before connections close.
	defer dispatcher.Close()

	l := ledger.New(store, directory, dispatcher, logger)
	rank := ranking.NewService(directory, cfg.Ranking.MaxDistanceKm, logger)
	orch := assignment.NewOrchestrator(l, rank, registry, evals, locker, broadcasts, dispatcher, logger, assignment.Options{
		BroadcastLimit: cfg.Ranking.BroadcastLimit,
		MaxDistanceKm:  cfg.Ranking.MaxDistanceKm,
		AwardAttempts:  cfg.Sweeper.AwardAttempts,
	})

	go orch.RunSweeper(ctx, cfg.Sweeper.Interval)

	gin.SetMode(gin.ReleaseMode)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Orchestrator: orch,
		Catalog:      provider.NewCatalog(providers, geo),
		Ranking:      rank,
		Registry:     registry,
		Logger:       logger,
	})
	return httptransport.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.ShutdownTimeout, logger).Run(ctx)
}
