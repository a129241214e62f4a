package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/joseph-ayodele/receipt-vision/internal/entity"
	"github.com/joseph-ayodele/receipt-vision/internal/events"
	"github.com/joseph-ayodele/receipt-vision/internal/export"
	"github.com/joseph-ayodele/receipt-vision/internal/llm/openai"
	"github.com/joseph-ayodele/receipt-vision/internal/pipeline"
	"github.com/joseph-ayodele/receipt-vision/internal/quota"
	"github.com/joseph-ayodele/receipt-vision/internal/receipts"
	repo "github.com/joseph-ayodele/receipt-vision/internal/repository"
	"github.com/joseph-ayodele/receipt-vision/internal/server"
	"github.com/joseph-ayodele/receipt-vision/internal/storage"
	"github.com/joseph-ayodele/receipt-vision/internal/upload"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("receipt-vision stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	db, err := repo.Open(ctx, repo.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	receiptRepo := repo.NewReceiptRepository(db, logger)
	uploadRepo := repo.NewUploadRepository(db, logger)
	requestRepo := repo.NewUserRequestRepository(db, logger)
	rawLog := repo.NewReceiptRequestRepository(db, logger)

	probes := map[string]server.Probe{
		"database": func(ctx context.Context) error { return db.HealthCheck(ctx, time.Second) },
	}

	loc := cfg.QuotaLocation()
	var counter quota.Counter
	switch cfg.Upload.QuotaBackend {
	case "redis":
		rdb, err := openRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		counter = quota.NewRedisCounter(rdb, requestRepo, cfg.Upload.MonthlyLimit, loc, logger)
		probes["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	default:
		counter = quota.NewStoreCounter(requestRepo, cfg.Upload.MonthlyLimit, loc, logger)
	}
	logger.Info("quota configured", "backend", cfg.Upload.QuotaBackend, "limit", cfg.Upload.MonthlyLimit, "tz", loc.String())

	blobs, err := storage.NewS3Store(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}

	extractor := openai.NewClient(openai.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		OrganizationID: cfg.LLM.OrganizationID,
		ProjectID:      cfg.LLM.ProjectID,
		Timeout:        cfg.LLM.Timeout,
		MaxRetries:     cfg.LLM.MaxRetries,
		RetryBackoff:   cfg.LLM.RetryBackoff,
	}, logger)

	validator := upload.NewValidator(cfg.Upload.MaxImageBytes, counter, logger)
	processor := pipeline.NewProcessor(logger, pipeline.Deps{
		Validator:    validator,
		Fetcher:      upload.NewFetcher(&http.Client{Timeout: cfg.Upload.FetchTimeout}, cfg.Upload.MaxImageBytes, logger),
		Blobs:        blobs,
		BlobPrefix:   cfg.Storage.Prefix,
		Extractor:    extractor,
		Receipts:     receiptRepo,
		UserRequests: requestRepo,
		RawLog:       rawLog,
	})

	deps := server.Deps{
		Processor:     processor,
		Receipts:      receipts.NewService(receiptRepo, blobs, logger),
		Exporter:      export.NewService(logger),
		Probes:        probes,
		MaxImageBytes: cfg.Upload.MaxImageBytes,
		JWTSecret:     cfg.Auth.JWTSecret,
	}

	var consumer *events.UploadConsumer
	if cfg.RabbitMQ.URL != "" {
		conn, err := events.Dial(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		defer closeAMQP(conn, logger)
		probes["rabbitmq"] = func(context.Context) error {
			if conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}

		deps.Intake = pipeline.NewIntake(uploadRepo, events.NewUploadPublisher(conn, cfg.RabbitMQ.UploadsQueue, logger), logger)
		consumer = events.NewUploadConsumer(conn, cfg.RabbitMQ.UploadsQueue,
			func(ctx context.Context, up entity.Upload) error {
				_, err := processor.ProcessUpload(ctx, up)
				return err
			},
			cfg.RabbitMQ.Workers, cfg.RabbitMQ.EventTimeout, logger)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
	} else {
		logger.Warn("RABBITMQ_URL not set, URL uploads disabled")
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.NewRouter(cfg.Server.GinMode, deps, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv, healthSrv, lis, err := startGRPCHealth(cfg.Server.GRPCHealthAddr, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("receipt-vision listening", "http_addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case runErr = <-errCh:
	}

	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if consumer != nil {
		consumer.Close(shutdownCtx)
	}
	grpcSrv.GracefulStop()
	logger.Info("receipt-vision stopped")
	return runErr
}

func startGRPCHealth(addr string, logger *slog.Logger) (*grpc.Server, *health.Server, net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := grpc.NewServer()
	healthSrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthSrv)
	reflection.Register(srv)
	// Empty service name is the overall server status.
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	logger.Info("grpc health listening", "addr", addr)
	return srv, healthSrv, lis, nil
}

func openRedis(ctx context.Context, cfg common.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func closeAMQP(conn *amqp.Connection, logger *slog.Logger) {
	if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		logger.Warn("rabbitmq close error", "error", err)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
