// Package consumer wires the SEFT consumer together: key material, the pgmq
// inbound queue, the scan and receipt clients, file delivery and the health
// endpoints. It runs until a termination signal or a fatal configuration
// fault.
package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/seftconsumer/internal/consumer/config"
	"github.com/dmitrijs2005/seftconsumer/internal/consumer/health"
	"github.com/dmitrijs2005/seftconsumer/internal/consumer/repositories/repomanager"
	"github.com/dmitrijs2005/seftconsumer/internal/cryptox"
	"github.com/dmitrijs2005/seftconsumer/internal/delivery"
	"github.com/dmitrijs2005/seftconsumer/internal/keystore"
	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"github.com/dmitrijs2005/seftconsumer/internal/netx"
	"github.com/dmitrijs2005/seftconsumer/internal/pipeline"
	"github.com/dmitrijs2005/seftconsumer/internal/queue"
	"github.com/dmitrijs2005/seftconsumer/internal/receipt"
	"github.com/dmitrijs2005/seftconsumer/internal/scan"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	registry *prometheus.Registry
	consumer *queue.Consumer
	checker  *health.Checker
	closers  []io.Closer
}

// NewApp validates cfg and builds every component. Nothing is consumed until
// Run is called.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	materials, err := keystore.LoadFile(cfg.KeysFile)
	if err != nil {
		return nil, fmt.Errorf("key init error: %w", err)
	}
	keys, err := keystore.New(materials, cfg.KeyPurpose)
	if err != nil {
		return nil, fmt.Errorf("key init error: %w", err)
	}

	app := &App{config: cfg, logger: logger, registry: prometheus.NewRegistry()}
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	q := queue.New(db, cfg.QueueName, cfg.QuarantineQueueName)
	if err := q.Ensure(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("queue init error: %w", err)
	}

	deliverer, err := app.newDeliverer(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("delivery init error: %w", err)
	}

	hc, err := netx.NewHTTPClient(cfg.ScanCACert, netx.DefaultTimeout)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("http client init error: %w", err)
	}

	metrics := pipeline.NewMetrics(app.registry)

	var scanner pipeline.Scanner
	if cfg.ScanEnabled {
		scanClient := scan.NewHTTPClient(scan.HTTPConfig{
			BaseURL:      cfg.ScanBaseURL,
			APIKey:       cfg.ScanAPIKey,
			Rule:         cfg.ScanRule,
			UserAgent:    cfg.ScanUserAgent,
			WaitInterval: cfg.ScanWaitInterval,
		}, hc, nil, logger)

		scanner = scan.NewCoordinator(
			scan.Config{WaitInterval: cfg.ScanWaitInterval, MaxAttempts: cfg.ScanMaxAttempts},
			scanClient,
			rm.ScanReports(db),
			logger,
			scan.WithHandleStore(app.newHandleStore()),
			scan.WithPollObserver(metrics.ObservePoll),
		)
	}

	controller := pipeline.NewController(
		pipeline.Config{Purpose: cfg.KeyPurpose, ScanEnabled: cfg.ScanEnabled, DeliveryRoot: cfg.DeliveryRoot},
		pipeline.Deps{
			Unsealer:  cryptox.NewUnsealer(keys, logger),
			Receipts:  receipt.NewGateway(receipt.Config{URL: cfg.ReceiptURL, User: cfg.ReceiptUser, Password: cfg.ReceiptPassword}, &http.Client{Timeout: netx.DefaultTimeout}, logger),
			Scanner:   scanner,
			Deliverer: deliverer,
			Metrics:   metrics,
		},
		logger,
	)

	app.consumer = queue.NewConsumer(queue.ConsumerConfig{
		Workers:           cfg.Workers,
		PollInterval:      cfg.PollInterval,
		VisibilityTimeout: cfg.VisibilityTimeout,
		RetryDelay:        cfg.RetryDelay,
	}, q, controller, logger)

	app.checker = health.NewChecker(map[string]health.Pinger{
		"database":          health.PingFunc(db.PingContext),
		cfg.DeliveryBackend: deliverer,
	}, cfg.HealthCheckInterval, logger)

	return app, nil
}

func (app *App) newDeliverer(ctx context.Context) (delivery.Deliverer, error) {
	switch app.config.DeliveryBackend {
	case config.DeliveryS3:
		return delivery.NewS3Deliverer(ctx, delivery.S3Config{
			Region:       app.config.S3Region,
			BaseEndpoint: app.config.S3BaseEndpoint,
			AccessKey:    app.config.S3AccessKey,
			SecretKey:    app.config.S3SecretKey,
			Bucket:       app.config.S3Bucket,
		}, app.logger)
	case config.DeliveryFTP:
		d := delivery.NewFTPDeliverer(delivery.FTPConfig{
			Host:     app.config.FTPHost,
			Port:     app.config.FTPPort,
			User:     app.config.FTPUser,
			Password: app.config.FTPPassword,
		}, app.logger)
		app.closers = append(app.closers, d)
		return d, nil
	default:
		return nil, fmt.Errorf("unknown delivery backend %q", app.config.DeliveryBackend)
	}
}

// newHandleStore keeps scan handles in Redis when configured, so a restarted
// consumer resumes polling instead of resubmitting.
func (app *App) newHandleStore() scan.HandleStore {
	if app.config.RedisAddr == "" {
		return scan.NewMemoryHandleStore()
	}
	rdb := redis.NewClient(&redis.Options{Addr: app.config.RedisAddr, Password: app.config.RedisPassword})
	app.closers = append(app.closers, rdb)
	return scan.NewRedisHandleStore(rdb, "", 0)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := health.NewGRPCServer(app.config.HealthAddrGRPC, app.checker, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := health.NewHTTPServer(app.config.HealthAddrHTTP, app.checker, app.registry, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run consumes until a signal arrives or the consumer stops on a fatal
// error, which is returned.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.Close()

	app.logger.Info(ctx, "Starting SEFT consumer...", "queue", app.config.QueueName)

	app.initSignalHandler(cancelFunc)

	var (
		wg       sync.WaitGroup
		fatalErr error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		app.checker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		if err := app.consumer.Run(ctx); err != nil {
			app.logger.Error(ctx, "consumer stopped", "error", err)
			fatalErr = err
		}
		cancelFunc()
	}()

	wg.Wait()
	app.logger.Info(context.Background(), "SEFT consumer stopped")
	return fatalErr
}

// Close releases connections in reverse order of creation.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Warn(context.Background(), "close error", "error", err)
		}
	}
	app.closers = nil
}
