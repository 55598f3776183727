package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"loadcast/internal/dataset"
	"loadcast/internal/handler/api"
	"loadcast/internal/monitoring"
	"loadcast/internal/orchestrator"
	"loadcast/internal/prep"
	"loadcast/internal/registry"
	"loadcast/internal/serving"
	"loadcast/internal/store"
	"loadcast/internal/training"
	"loadcast/pkg/cache"
	"loadcast/pkg/config"
	xhttp "loadcast/pkg/http"
	"loadcast/pkg/kafka"
	"loadcast/pkg/logger"
	"loadcast/pkg/metrics"
	"loadcast/pkg/queue"
)

// jobQueue is the queue backend contract the app drives.
type jobQueue interface {
	queue.QueueService
	RegisterJob(job queue.Job)
	Start() error
	Stop(ctx context.Context) error
}

// App wires the whole service together and owns its lifecycle.
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	store  *store.Store
	queue  jobQueue
	sched  *monitoring.Scheduler
	server *xhttp.Server
	kafka  *kafka.Producer
}

// New builds the application from configuration.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rec := metrics.New()
	reg := registry.New(st.DB())
	processor := prep.NewProcessor(cfg.Storage.RawDir, cfg.Storage.ProcessedDir, nil, log)
	trainer := training.NewTrainer(reg, cfg.Storage.ModelDir, training.Config{
		TestFraction:       cfg.Training.TestFraction,
		ValidationFraction: cfg.Training.ValidationFraction,
		SearchTrials:       cfg.Training.SearchTrials,
		ARIMAOrder:         [3]int{cfg.Training.ARIMA.P, cfg.Training.ARIMA.D, cfg.Training.ARIMA.Q},
	}, log)

	var redisClient *redis.Client
	if cfg.Queue.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
		})
	}

	q, err := buildQueue(cfg, log, redisClient)
	if err != nil {
		st.Close()
		return nil, err
	}
	q.RegisterJob(orchestrator.NewRunJob(st, processor, trainer, cfg.Training.ModelNamePrefix, log, rec))

	orch := orchestrator.New(st, processor, q, log, rec)

	// Responses for identical prediction requests are cached briefly; with the
	// redis backend the cache layer is shared across replicas.
	var results cache.Service = cache.NewMemoryCache()
	if redisClient != nil {
		results = cache.NewLayered(results, cache.NewRedisCache(redisClient, "loadcast"), 30*time.Second)
	}
	dispatcher := serving.NewDispatcher(reg, cfg.Serving.Stage, log, rec,
		serving.WithResultCache(results, 30*time.Second))

	app := &App{cfg: cfg, log: log, store: st, queue: q}

	sinks := []monitoring.AlertSink{monitoring.NewLogSink(log)}
	if cfg.Alerting.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Alerting.Kafka.Brokers, cfg.Alerting.Kafka.Topic)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("kafka alert sink: %w", err)
		}
		app.kafka = producer
		sinks = append(sinks, monitoring.NewKafkaSink(producer))
	}

	if cfg.Monitoring.Enabled {
		monitor := monitoring.NewMonitor(nil, "", monitoring.Config{
			DriftThreshold: cfg.Monitoring.DriftThreshold,
			MAPEThreshold:  cfg.Monitoring.MAPEThreshold,
			HealthURL:      cfg.Monitoring.HealthURL,
			HealthTimeout:  cfg.Monitoring.HealthTimeout,
		}, sinks, log, rec)
		app.sched = monitoring.NewScheduler(cfg.Monitoring.CheckInterval, cfg.Monitoring.StopGrace,
			app.monitoringCycle(monitor), log)
	}

	router := api.NewRouter(
		api.NewProjectsHandler(log, st, orch),
		api.NewModelsHandler(log, dispatcher),
	)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
	}
	app.server = xhttp.NewServer(router,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		xhttp.WithLogger(log),
	)

	return app, nil
}

// monitoringCycle builds the periodic check over every project whose pipeline
// has completed: the head of its processed series is the reference window, the
// most recent tail the current one. Projects without a processed file are
// skipped silently.
func (a *App) monitoringCycle(monitor *monitoring.Monitor) monitoring.CycleFunc {
	return func(ctx context.Context) {
		projects, err := a.store.ListProjects(ctx)
		if err != nil {
			a.log.Error("monitoring cycle: list projects", logger.Error(err))
			return
		}
		for _, p := range projects {
			if p.Status != store.StatusReady || p.ProcessedPath == "" {
				continue
			}
			frame, err := dataset.ReadCSV(p.ProcessedPath)
			if err != nil {
				a.log.Warn("monitoring cycle: read processed data",
					logger.String("project_id", p.ID), logger.Error(err))
				continue
			}
			cut := frame.Len() * 4 / 5
			if cut < 2 || frame.Len()-cut < 2 {
				continue
			}
			monitor.SetReference(frame.Slice(0, cut), p.ValueCol)
			report := monitor.RunChecks(ctx, frame.Slice(cut, frame.Len()), nil, nil)
			if report.Alerts > 0 {
				a.log.Warn("monitoring cycle raised alerts",
					logger.String("project_id", p.ID), logger.Int("alerts", report.Alerts))
			}
		}
	}
}

func buildQueue(cfg *config.Config, log *logger.Logger, redisClient *redis.Client) (jobQueue, error) {
	qc := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}

	switch cfg.Queue.Backend {
	case "redis":
		var opts []queue.RedisQueueOption
		if cfg.Queue.Redis.KeyPrefix != "" {
			opts = append(opts, queue.WithKeyPrefix(cfg.Queue.Redis.KeyPrefix))
		}
		return queue.NewRedisQueue(log, qc, redisClient, opts...), nil
	case "memory", "":
		return queue.NewMemoryQueue(log, qc), nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
}

// Run starts everything and blocks until SIGINT/SIGTERM, then shuts down in
// reverse order: scheduler, HTTP, queue, store.
func (a *App) Run() error {
	if err := a.queue.Start(); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}
	if a.sched != nil {
		a.sched.Start()
	}
	if err := a.server.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	a.log.Info("application started",
		logger.String("environment", a.cfg.Environment),
		logger.Int("port", a.cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.log.Info("shutdown signal received")
	return a.Shutdown()
}

// Shutdown stops all components with a bounded deadline.
func (a *App) Shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.sched != nil {
		a.sched.Stop()
	}
	if err := a.server.Stop(ctx); err != nil {
		a.log.Error("http shutdown", logger.Error(err))
	}
	if err := a.queue.Stop(ctx); err != nil {
		a.log.Error("queue shutdown", logger.Error(err))
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.log.Error("kafka shutdown", logger.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Error("store shutdown", logger.Error(err))
	}

	a.log.Info("application stopped")
	return nil
}
