package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/joseph-ayodele/receipt-vision/internal/llm"
	"github.com/joseph-ayodele/receipt-vision/internal/llm/openai"
	"github.com/joseph-ayodele/receipt-vision/internal/receipts"
	"github.com/joseph-ayodele/receipt-vision/internal/upload"
)

// llm runs the receipt extraction against one image and prints the flattened rows.
//
//	llm <image-file|url> [times]
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: llm <image-file|url> [times]")
		os.Exit(2)
	}
	source := os.Args[1]
	times := 1
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			times = n
		}
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(2)
	}
	if cfg.LLM.APIKey == "" {
		logger.Error("OPENAI_API_KEY env var is required")
		os.Exit(2)
	}

	ctx := context.Background()
	input, err := imageInput(ctx, source, cfg.Upload.MaxImageBytes, logger)
	if err != nil {
		logger.Error("load image", "source", source, "error", err)
		os.Exit(1)
	}

	client := openai.NewClient(openai.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		OrganizationID: cfg.LLM.OrganizationID,
		ProjectID:      cfg.LLM.ProjectID,
		Timeout:        cfg.LLM.Timeout,
		MaxRetries:     cfg.LLM.MaxRetries,
		RetryBackoff:   cfg.LLM.RetryBackoff,
	}, logger)

	failures := 0
	for i := 1; i <= times; i++ {
		runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		start := time.Now()
		ext, err := client.ExtractReceipt(runCtx, input)
		cancel()
		if err != nil {
			failures++
			logger.Error("llm.run.error", "iter", i, "error", err)
			if ext != nil && len(ext.Raw) > 0 {
				fmt.Fprintf(os.Stderr, "raw response:\n%s\n", ext.Raw)
			}
			continue
		}
		logger.Info("llm.run.ok", "iter", i, "elapsed_ms", time.Since(start).Milliseconds())
		printRows(ext)
	}

	if failures > 0 {
		os.Exit(1)
	}
}

func imageInput(ctx context.Context, source string, maxBytes int, logger *slog.Logger) (llm.ImageInput, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		// Checked here so an oversized image fails before the API call.
		if _, err := upload.NewFetcher(&http.Client{Timeout: 20 * time.Second}, maxBytes, logger).Fetch(ctx, source); err != nil {
			return llm.ImageInput{}, err
		}
		return llm.ImageInput{URL: source}, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return llm.ImageInput{}, err
	}
	img := upload.NewImage(data)
	if len(img.Data) > maxBytes {
		return llm.ImageInput{}, upload.TooLarge(maxBytes)
	}
	return llm.ImageInput{URL: img.DataURL()}, nil
}

func printRows(ext *llm.Extraction) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, row := range receipts.Flatten(ext.Document) {
		fmt.Fprintf(w, "%s\t%s\n", row.Name, strconv.FormatFloat(row.Value, 'f', 2, 64))
	}
	_ = w.Flush()
}
