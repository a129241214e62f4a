package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/joseph-ayodele/receipt-vision/internal/export"
	"github.com/joseph-ayodele/receipt-vision/internal/ingest"
	"github.com/joseph-ayodele/receipt-vision/internal/llm/openai"
	"github.com/joseph-ayodele/receipt-vision/internal/pipeline"
	"github.com/joseph-ayodele/receipt-vision/internal/quota"
	repo "github.com/joseph-ayodele/receipt-vision/internal/repository"
	"github.com/joseph-ayodele/receipt-vision/internal/storage"
	"github.com/joseph-ayodele/receipt-vision/internal/upload"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir    = flag.String("dir", "", "directory to process receipt images from (required)")
		out    = flag.String("out", "", "output XLSX file path (defaults to <parent of dir>/receipts.xlsx)")
		dbPath = flag.String("db", "", "SQLite database file (defaults to in-memory)")
		blobs  = flag.String("blobs", "", "directory for stored image copies (defaults to <dir>/.receipt-vision)")
		user   = flag.String("user", "local-batch", "user id the receipts are recorded for")
		limit  = flag.Int("limit", 0, "monthly upload limit (defaults to UPLOAD_MONTHLY_LIMIT)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "receipts.xlsx")
	}
	if *blobs == "" {
		*blobs = filepath.Join(*dir, ".receipt-vision")
	}
	dsn := ":memory:"
	if *dbPath != "" {
		dsn = *dbPath
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.LLM.APIKey == "" {
		printError("Error: OPENAI_API_KEY is required\n")
		os.Exit(1)
	}
	if *limit <= 0 {
		*limit = cfg.Upload.MonthlyLimit
	}

	ctx := context.Background()

	db, err := repo.Open(ctx, repo.Config{Driver: "sqlite", DSN: dsn}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewLocalStore(*blobs, logger)
	if err != nil {
		logger.Error("failed to prepare blob directory", "error", err)
		os.Exit(1)
	}

	receiptsRepo := repo.NewReceiptRepository(db, logger)
	requestsRepo := repo.NewUserRequestRepository(db, logger)
	counter := quota.NewStoreCounter(requestsRepo, *limit, cfg.QuotaLocation(), logger)

	processor := pipeline.NewProcessor(logger, pipeline.Deps{
		Validator:  upload.NewValidator(cfg.Upload.MaxImageBytes, counter, logger),
		Blobs:      store,
		BlobPrefix: cfg.Storage.Prefix,
		Extractor: openai.NewClient(openai.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			OrganizationID: cfg.LLM.OrganizationID,
			ProjectID:      cfg.LLM.ProjectID,
			Timeout:        cfg.LLM.Timeout,
			MaxRetries:     cfg.LLM.MaxRetries,
			RetryBackoff:   cfg.LLM.RetryBackoff,
		}, logger),
		Receipts:     receiptsRepo,
		UserRequests: requestsRepo,
		RawLog:       repo.NewReceiptRequestRepository(db, logger),
	})

	logger.Info("starting scan", "dir", *dir, "user_id", *user)
	results, stats, err := ingest.ScanDir(*dir, true, 0, logger)
	if err != nil {
		logger.Error("failed to scan directory", "error", err)
		os.Exit(1)
	}

	processed, failures := 0, 0
	for _, r := range results {
		if r.File == nil {
			continue
		}
		runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		res, err := processor.ProcessInline(runCtx, *user, upload.NewImage(r.File.Data))
		cancel()
		if err != nil {
			logger.Error("failed to process file", "path", r.Path, "error", err)
			failures++
			continue
		}
		logger.Info("processed file", "path", r.Path, "receipt_id", res.ReceiptID, "rows", len(res.Rows))
		processed++
	}

	recs, err := receiptsRepo.ListByUser(ctx, *user)
	if err != nil {
		logger.Error("failed to list receipts", "error", err)
		os.Exit(1)
	}
	xlsx, err := export.NewService(logger).ReceiptsXLSX(recs)
	if err != nil {
		logger.Error("failed to export receipts", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		"matched", stats.Matched,
		"deduplicated", stats.Deduplicated,
		"processed", processed,
		"failures", failures,
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Images found: %d (%d duplicates skipped)\n", stats.Matched, stats.Deduplicated)
	fmt.Printf("- Receipts stored: %d\n", processed)
	fmt.Printf("- Failures: %d\n", failures+int(stats.Failed))
	fmt.Printf("- Output: %s\n", *out)
}
