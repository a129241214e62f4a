package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/receipt-vision/internal/entity"
	"github.com/joseph-ayodele/receipt-vision/internal/export"
	"github.com/joseph-ayodele/receipt-vision/internal/pipeline"
	"github.com/joseph-ayodele/receipt-vision/internal/receipts"
	"github.com/joseph-ayodele/receipt-vision/internal/upload"
)

// InlineProcessor runs an upload whose image arrived in the request body.
type InlineProcessor interface {
	ProcessInline(ctx context.Context, userID string, img upload.Image) (*pipeline.Result, error)
}

// UploadSubmitter accepts URL uploads for the event path.
type UploadSubmitter interface {
	Submit(ctx context.Context, req pipeline.SubmitRequest) (*entity.Upload, error)
}

// ReceiptService reads and edits stored receipts.
type ReceiptService interface {
	List(ctx context.Context, userID string) ([]*entity.ReceiptRecord, error)
	Get(ctx context.Context, rawID string) (*entity.ReceiptRecord, error)
	ReplaceRows(ctx context.Context, rawID string, req receipts.ReplaceRowsRequest) error
	Delete(ctx context.Context, rawID string) error
}

// Exporter renders a receipt as a downloadable file.
type Exporter interface {
	Receipt(ctx context.Context, rec *entity.ReceiptRecord, format export.Format) (*export.File, error)
}

// Probe checks one dependency for /healthz.
type Probe func(ctx context.Context) error

// Deps are the collaborators behind the HTTP API.
type Deps struct {
	Processor InlineProcessor
	Intake    UploadSubmitter
	Receipts  ReceiptService
	Exporter  Exporter
	Probes    map[string]Probe
	// MaxImageBytes bounds the decoded image; the request body limit is derived from it.
	MaxImageBytes int
	// JWTSecret enables bearer auth on every route but /healthz when set.
	JWTSecret string
}

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

// NewRouter builds the gin engine serving the upload and receipt API.
func NewRouter(mode string, deps Deps, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if mode != "" {
		gin.SetMode(mode)
	}
	h := &handlers{deps: deps, logger: logger}

	router := gin.New()
	router.Use(RequestLogger(logger), gin.Recovery())
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"message": "Method not allowed"})
	})

	router.GET("/healthz", h.health)

	auth := AuthJWT(deps.JWTSecret, logger)
	// Only POST is registered so other methods hit NoMethod before auth runs.
	router.POST("/upload_image", auth, h.uploadImage)

	api := router.Group("/")
	api.Use(auth)

	v1 := api.Group("/v1")
	v1.POST("/uploads", h.submitUpload)
	v1.GET("/receipts", h.listReceipts)
	v1.GET("/receipts/:id", h.getReceipt)
	v1.PUT("/receipts/:id", h.replaceRows)
	v1.DELETE("/receipts/:id", h.deleteReceipt)
	v1.GET("/receipts/:id/export", h.exportReceipt)

	return router
}
