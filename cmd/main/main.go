package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/filestore"
	"gitlab.com/timkado/api/doc-intake-relay/internal/healthcheck"
	"gitlab.com/timkado/api/doc-intake-relay/internal/httpapi"
	"gitlab.com/timkado/api/doc-intake-relay/internal/leadsystem"
	"gitlab.com/timkado/api/doc-intake-relay/internal/notification"
	"gitlab.com/timkado/api/doc-intake-relay/internal/observer"
	"gitlab.com/timkado/api/doc-intake-relay/internal/queue"
	"gitlab.com/timkado/api/doc-intake-relay/internal/storage"
	"gitlab.com/timkado/api/doc-intake-relay/internal/usecase"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/utils"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting document intake relay",
		zap.String("environment", cfg.Environment),
		zap.String("queue_driver", cfg.Queue.Driver),
		zap.Bool("lead_system_configured", cfg.LeadSystem.BaseURL != ""),
	)

	repo, err := storage.Open(cfg.Database.DSN, cfg.Database.AutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize intake repository", zap.Error(err))
	}

	files := filestore.New(cfg.Upload.Dir, logger.Log)
	if err := files.EnsureDir(); err != nil {
		logger.Log.Fatal("Failed to prepare upload directory", zap.Error(err))
	}

	leads := leadsystem.NewClient(cfg.LeadSystem)
	if !leads.Configured() {
		logger.Log.Warn("Lead System base URL is empty; reconciliation will record lead errors")
	}
	notifier := notification.NewClient(cfg.Notification, nil)

	reconciler := usecase.NewReconciler(repo, leads, notifier, files)
	worker, err := usecase.NewReconcileWorker(cfg.WorkerPools.Reconcile, reconciler, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize reconcile worker pool", zap.Error(err))
	}

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	// memory: jobs go straight to the pool. jetstream: jobs are published and
	// pulled back by the consumer, which feeds the pool.
	var (
		dispatcher usecase.Dispatcher = worker
		jsClient   *queue.Client
		consumer   *queue.Consumer
	)
	if cfg.Queue.Driver == config.QueueDriverJetStream {
		jsClient, err = queue.NewClient(cfg.Queue.NatsURL)
		if err != nil {
			logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
		}
		consumer = queue.NewConsumer(jsClient, worker, cfg.Queue, logger.Log)
		if err := consumer.Setup(mainCtx); err != nil {
			logger.Log.Fatal("Failed to set up reconcile queue", zap.Error(err))
		}
		if err := consumer.Start(mainCtx); err != nil {
			logger.Log.Fatal("Failed to start reconcile consumer", zap.Error(err))
		}
		dispatcher = queue.NewPublisher(jsClient, cfg.Queue.Subject)
	}

	intakes := usecase.NewIntakeService(repo, files, dispatcher, cfg.Upload)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(httpapi.Deps{
		Submitter:  intakes,
		Intakes:    repo,
		Dispatcher: dispatcher,
		Upload:     cfg.Upload,
		Admin:      cfg.Admin,
		Logger:     logger.Log,
	})
	apiServer := httpapi.NewServer(cfg, router, logger.Log)

	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Health.Port), logger.Log)
	healthServer.AddChecker("database", repo.Ping)
	if metricsEnabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Health.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}
	healthServer.Start()

	serverErr := make(chan error, 1)
	apiServer.Start(serverErr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Log.Error("Intake HTTP server failed, initiating shutdown...", zap.Error(err))
	}

	mainCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", shutdownTimeout))

	// Intake and health servers first so no new jobs arrive, then the
	// consumer, then the pool drains, then connections close.
	stopInParallel(
		component{"intake HTTP server", func() error { return apiServer.Stop(shutdownCtx) }},
		component{"health check server", func() error { return healthServer.Stop(shutdownCtx) }},
	)
	if consumer != nil {
		stopInParallel(component{"reconcile consumer", func() error { consumer.Stop(); return nil }})
	}
	stopInParallel(component{"reconcile worker pool", func() error { worker.Stop(); return nil }})
	stopInParallel(
		component{"database connection", func() error { return repo.Close(shutdownCtx) }},
		component{"JetStream connection", func() error {
			if jsClient != nil {
				jsClient.Close()
			}
			return nil
		}},
	)

	logger.Log.Info("Document intake relay shutdown complete")
}

type component struct {
	name string
	stop func() error
}

// stopInParallel stops every component concurrently and waits for all of them.
// The deferred Done also runs when stop panics.
func stopInParallel(components ...component) {
	var wg sync.WaitGroup
	wg.Add(len(components))
	for _, c := range components {
		utils.SafeGo(func() {
			defer wg.Done()
			logger.Log.Info("[shutdown] Stopping " + c.name)
			start := time.Now()
			if err := c.stop(); err != nil {
				logger.Log.Error("[shutdown] Error stopping "+c.name, zap.Error(err))
				return
			}
			logger.Log.Info("[shutdown] Stopped "+c.name, zap.Duration("duration", time.Since(start)))
		}, func(r interface{}, stack []byte) {
			logger.Log.Error("[shutdown] Panic while stopping "+c.name,
				zap.Any("panic", r),
				zap.ByteString("stack", stack),
			)
		})
	}
	wg.Wait()
}
