package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/receipt-vision/constants"
	"github.com/joseph-ayodele/receipt-vision/internal/entity"
	"github.com/joseph-ayodele/receipt-vision/internal/llm"
	"github.com/joseph-ayodele/receipt-vision/internal/receipts"
	"github.com/joseph-ayodele/receipt-vision/internal/repository"
	"github.com/joseph-ayodele/receipt-vision/internal/storage"
	"github.com/joseph-ayodele/receipt-vision/internal/upload"
)

// ImageFetcher downloads the image behind an upload URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (upload.Image, error)
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Validator    *upload.Validator
	Fetcher      ImageFetcher
	Blobs        storage.BlobStore
	BlobPrefix   string
	Extractor    llm.Extractor
	Receipts     repository.ReceiptRepository
	UserRequests repository.UserRequestRepository
	RawLog       repository.ReceiptRequestRepository
}

// Processor runs one upload from image bytes to a stored, flattened receipt.
type Processor struct {
	logger *slog.Logger
	deps   Deps
	now    func() time.Time
}

func NewProcessor(logger *slog.Logger, deps Deps) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger, deps: deps, now: time.Now}
}

// Result is what a successful upload produced.
type Result struct {
	ReceiptID string
	Document  entity.ReceiptDocument
	// Content is the model's JSON as it was returned.
	Content json.RawMessage
	Rows    []entity.Row
}

// ProcessInline handles an image submitted in the request body: size check, quota,
// blob write, extraction on the inline data, then receipt and audit writes.
func (p *Processor) ProcessInline(ctx context.Context, userID string, img upload.Image) (*Result, error) {
	now := p.now()
	log := p.logger.With("user_id", userID, "path", "inline")

	if err := p.deps.Validator.CheckSize(len(img.Data)); err != nil {
		return nil, err
	}
	release, err := p.deps.Validator.Admit(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	done := false
	defer func() {
		if !done {
			release(context.WithoutCancel(ctx))
		}
	}()

	key := storage.ObjectKey(p.deps.BlobPrefix, userID)
	imageURL, err := p.deps.Blobs.Put(ctx, key, img.Data, img.ContentType)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline.blob_stored", "key", key, "bytes", len(img.Data))

	ext, err := p.deps.Extractor.ExtractReceipt(ctx, llm.ImageInput{URL: img.DataURL()})
	p.logRaw(ctx, userID, nil, ext, now)
	if err != nil {
		log.Warn("pipeline.extract_failed", "error", err)
		p.dropBlob(ctx, key)
		return nil, err
	}

	res, err := p.store(ctx, userID, imageURL, ext, now)
	if err != nil {
		return nil, err
	}
	done = true
	log.Info("pipeline.done", "receipt_id", res.ReceiptID, "rows", len(res.Rows))
	return res, nil
}

// ProcessUpload handles an upload-created event: bounded fetch, size check, quota,
// extraction against the URL, raw log, then receipt and audit writes.
func (p *Processor) ProcessUpload(ctx context.Context, up entity.Upload) (*Result, error) {
	now := p.now()
	log := p.logger.With("user_id", up.UserID, "upload_id", up.ID, "path", "event")

	img, err := p.deps.Fetcher.Fetch(ctx, up.URL)
	if err != nil {
		return nil, err
	}
	if err := p.deps.Validator.CheckSize(len(img.Data)); err != nil {
		return nil, err
	}
	release, err := p.deps.Validator.Admit(ctx, up.UserID, now)
	if err != nil {
		return nil, err
	}
	done := false
	defer func() {
		if !done {
			release(context.WithoutCancel(ctx))
		}
	}()

	ext, err := p.deps.Extractor.ExtractReceipt(ctx, llm.ImageInput{URL: up.URL})
	uploadID := up.ID
	p.logRaw(ctx, up.UserID, &uploadID, ext, now)
	if err != nil {
		log.Warn("pipeline.extract_failed", "error", err)
		return nil, err
	}

	res, err := p.store(ctx, up.UserID, up.URL, ext, now)
	if err != nil {
		return nil, err
	}
	done = true
	log.Info("pipeline.done", "receipt_id", res.ReceiptID, "rows", len(res.Rows))
	return res, nil
}

func (p *Processor) store(ctx context.Context, userID, imageURL string, ext *llm.Extraction, now time.Time) (*Result, error) {
	rows := receipts.Flatten(ext.Document)
	rec, err := p.deps.Receipts.Create(ctx, &repository.CreateReceiptRequest{
		UserID:     userID,
		ImageURL:   imageURL,
		Rows:       rows,
		UploadedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("store receipt: %w", err)
	}

	// The receipt is already stored, so a failed audit write is logged rather than returned.
	if err := p.deps.UserRequests.Record(ctx, userID, constants.ActionUploadReceipt, now); err != nil {
		p.logger.Error("pipeline.audit_failed", "user_id", userID, "receipt_id", rec.ID, "error", err)
	}

	return &Result{
		ReceiptID: rec.ID,
		Document:  ext.Document,
		Content:   ext.Content,
		Rows:      rows,
	}, nil
}

func (p *Processor) logRaw(ctx context.Context, userID string, uploadID *string, ext *llm.Extraction, now time.Time) {
	if ext == nil || len(ext.Raw) == 0 || p.deps.RawLog == nil {
		return
	}
	if err := p.deps.RawLog.Record(ctx, userID, uploadID, ext.Raw, now); err != nil {
		p.logger.Warn("pipeline.raw_log_failed", "user_id", userID, "error", err)
	}
}

func (p *Processor) dropBlob(ctx context.Context, key string) {
	if err := p.deps.Blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		p.logger.Warn("pipeline.blob_cleanup_failed", "key", key, "error", err)
	}
}
