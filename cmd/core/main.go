// Command core runs the inference platform's scheduler, model cache, camera
// stream pipeline, event emitter, dashboard broadcaster, and thin HTTP
// shell as one process, wired the way go-services/ml-stream-processor and
// go-services/cache-coordinator wire their own main()s.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nexuscore/inference-core/internal/broadcaster"
	"github.com/nexuscore/inference-core/internal/config"
	"github.com/nexuscore/inference-core/internal/events"
	"github.com/nexuscore/inference-core/internal/executor"
	"github.com/nexuscore/inference-core/internal/httpapi"
	"github.com/nexuscore/inference-core/internal/logging"
	"github.com/nexuscore/inference-core/internal/metrics"
	"github.com/nexuscore/inference-core/internal/modelcache"
	"github.com/nexuscore/inference-core/internal/provider"
	"github.com/nexuscore/inference-core/internal/scheduler"
	"github.com/nexuscore/inference-core/internal/store"
	"github.com/nexuscore/inference-core/internal/stream"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Service.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	if cfg.Metrics.Enabled {
		reg.RegisterAll(prometheus.DefaultRegisterer)
	}

	docStore, err := store.NewMongoStore(ctx, cfg.Store.MongoURI, cfg.Store.MongoDB, cfg.Store.EventsCollection, cfg.Store.JobsCollection)
	if err != nil {
		logger.Fatal("connect document store", zap.Error(err))
	}
	if err := docStore.EnsureIndexes(ctx); err != nil {
		logger.Warn("ensure document store indexes", zap.Error(err))
	}

	objStore, err := store.NewS3Store(ctx, cfg.Store.S3Endpoint, cfg.Store.S3Region, cfg.Store.S3UseSSL)
	if err != nil {
		logger.Fatal("connect object store", zap.Error(err))
	}
	_ = objStore // used by the model cache's download-on-miss path via modelResolver below

	emitter := events.New(docStore, cfg.Store.EventsCollection, cfg.Store.JobsCollection, logger)

	providers := provider.NewRegistry(
		provider.NewONNXProvider(os.Getenv("ONNXRUNTIME_SHARED_LIB")),
		provider.NewGorgoniaProvider(),
		provider.NewTensorFlowProvider(),
		provider.NewGoLearnProvider(),
	)

	var statsRecorder modelcache.StatsRecorder = modelcache.NoopStats()
	if cfg.ModelCache.RedisAddr != "" {
		statsRecorder = modelcache.NewRedisStats(cfg.ModelCache.RedisAddr, cfg.ModelCache.RedisDB)
	}
	cache := modelcache.New(cfg.ModelCache.MaxEntries, cfg.ModelCache.MaxBytes, logger, statsRecorder)
	cache.SetMetrics(reg)

	resolveModel := buildModelResolver(objStore, cfg.Store.S3Region)
	exec := executor.New(cache, providers, resolveModel)

	registry := scheduler.NewRegistry(time.Duration(cfg.Scheduler.JobTTLSeconds)*time.Second, emitter.ArchiveJob)
	sched := scheduler.New(scheduler.Config{
		MaxQueueDepth: cfg.Scheduler.MaxQueueDepth,
		MaxWorkers:    cfg.Scheduler.MaxWorkers,
		JobTTL:        time.Duration(cfg.Scheduler.JobTTLSeconds) * time.Second,
	}, registry, exec, logger)
	sched.SetMetrics(reg)

	streamCfg := stream.Config{
		FrameQueueCapacity:   cfg.Stream.FrameQueueCapacity,
		FrameBufferCapacity:  cfg.Stream.FrameBufferCapacity,
		MotionThreshold:      cfg.Stream.MotionThreshold,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		ReconnectDelay:       time.Duration(cfg.Stream.ReconnectDelaySeconds * float64(time.Second)),
		JPEGQuality:          cfg.Stream.JPEGQuality,
	}
	streamManager := stream.NewManager(streamCfg, emitter, logger)
	streamManager.SetMetrics(reg)

	var natsConn *nats.Conn
	if cfg.Broadcaster.NATSURL != "" {
		if nc, err := nats.Connect(cfg.Broadcaster.NATSURL); err != nil {
			logger.Warn("nats connect failed, dashboard snapshots stay local-only", zap.Error(err))
		} else {
			natsConn = nc
			defer natsConn.Close()
		}
	}
	bcast := broadcaster.New(
		broadcaster.Samplers{Scheduler: sched, Cache: cache, Streams: streamManager},
		time.Duration(cfg.Broadcaster.SnapshotIntervalSeconds)*time.Second,
		cfg.Broadcaster.SubscriberQueueDepth,
		natsConn,
		cfg.Broadcaster.NATSSubject,
		logger,
	)
	bcast.SetMetrics(reg)

	registryGCStop := make(chan struct{})
	go registry.RunGC(registryGCStop, time.Minute)
	defer close(registryGCStop)

	go bcast.Run(ctx)
	go func() {
		if err := sched.Start(ctx); err != nil {
			logger.Error("scheduler start", zap.Error(err))
		}
	}()

	router := httpapi.NewRouter(httpapi.Deps{
		Scheduler:   sched,
		Registry:    registry,
		Cache:       cache,
		Streams:     streamManager,
		Broadcaster: bcast,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutS) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutS) * time.Second,
	}

	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}

	streamManager.StopAll()
	sched.Stop()
	if err := docStore.Close(shutdownCtx); err != nil {
		logger.Warn("document store close error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// buildModelResolver maps a job's opaque model_ref to a loadable local path,
// downloading from object storage first if the model isn't already resident
// (spec §4.2 load protocol step 2). The framework is inferred from the
// model_ref's suffix-like prefix convention (e.g. "onnx:yolov8n").
func buildModelResolver(objStore store.ObjectStore, region string) executor.ConfigResolver {
	return func(modelRef string) (executor.ModelInfo, error) {
		fw, key := splitModelRef(modelRef)

		localPath := fmt.Sprintf("/var/cache/inference-core/models/%s", key)
		if _, err := os.Stat(localPath); os.IsNotExist(err) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := objStore.GetToFile(ctx, store.BucketModels, key, localPath); err != nil {
				return executor.ModelInfo{}, fmt.Errorf("download model %s: %w", key, err)
			}
		}

		return executor.ModelInfo{
			Framework: fw,
			Path:      localPath,
			Metadata:  map[string]interface{}{"model_ref": modelRef},
		}, nil
	}
}

func splitModelRef(modelRef string) (provider.Framework, string) {
	for i := 0; i < len(modelRef); i++ {
		if modelRef[i] == ':' {
			return provider.Framework(modelRef[:i]), modelRef[i+1:]
		}
	}
	return provider.FrameworkONNX, modelRef
}
